package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/mudra/internal/transport"
)

// mailbox is a single-slot, latest-wins handoff between the reader and the
// processing loop.
type mailbox struct {
	mu    sync.Mutex
	msg   []byte
	has   bool
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// put stores msg, replacing any unprocessed message. It reports whether a
// message was displaced.
func (m *mailbox) put(msg []byte) bool {
	m.mu.Lock()
	displaced := m.has
	m.msg, m.has = msg, true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return displaced
}

func (m *mailbox) take() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has {
		return nil, false
	}
	msg := m.msg
	m.msg, m.has = nil, false
	return msg, true
}

// Run drives one session over conn until the peer disconnects, a write fails
// or ctx is cancelled. The connection is closed when Run returns. A clean
// disconnect returns nil.
//
// Frames are read on a separate goroutine into a single-slot mailbox: when
// processing falls behind, the newest frame wins and displaced frames are
// counted as backpressure drops.
func (p *Pipeline) Run(ctx context.Context, conn transport.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.cfg.Metrics.SessionOpened()
	defer p.cfg.Metrics.SessionClosed()
	p.logger.Info("session started")

	mb := newMailbox()
	readErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if mb.put(msg) {
				p.dropBackpressure()
			}
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		conn.Close()
	}()

	err := p.loop(ctx, conn, mb, readErr)
	cancel()
	wg.Wait()

	stats := p.Stats()
	p.logger.Info("session ended",
		"received", stats.Received,
		"processed", stats.Processed,
		"actions", stats.Actions,
		"error", err,
	)
	return err
}

func (p *Pipeline) loop(ctx context.Context, conn transport.Conn, mb *mailbox, readErr <-chan error) error {
	process := func() error {
		msg, ok := mb.take()
		if !ok {
			return nil
		}
		out := p.OnFrame(msg)
		if out == nil {
			return nil
		}
		if err := conn.WriteMessage(out); err != nil {
			return fmt.Errorf("write command: %w", err)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-mb.ready:
			if err := process(); err != nil {
				return err
			}
		case err := <-readErr:
			// The last frame read before the disconnect is still processed,
			// but its command can only be sent if the peer is still writable.
			if perr := process(); perr != nil && !errors.Is(perr, transport.ErrClosed) {
				p.logger.Debug("final command not delivered", "error", perr)
			}
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
	}
}
