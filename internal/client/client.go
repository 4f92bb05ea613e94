// Package client streams landmark frames from a source to a mudra server and
// hands the commands it sends back to an actuator.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/clock"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/protocol"
	"github.com/ayusman/mudra/internal/source"
	"github.com/ayusman/mudra/internal/transport"
)

const (
	// DefaultFPS is the frame rate used when Config.FPS is unset.
	DefaultFPS = 30
	// DefaultLinger is how long the connection stays open after the source
	// ends so commands for the last frames can still arrive.
	DefaultLinger = 500 * time.Millisecond

	dispatchQueue = 16
)

// Config holds the collaborators of a client. Source and Codec are required.
type Config struct {
	Source   source.Source
	Codec    *protocol.Codec
	Actuator plugin.Actuator // defaults to a LogActuator
	FPS      int
	Linger   time.Duration

	Clock   clock.Clock // defaults to clock.Real()
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Stats is a snapshot of a client's counters.
type Stats struct {
	Sent      uint64 `json:"sent"`
	Skipped   uint64 `json:"skipped"`
	Commands  uint64 `json:"commands"`
	Performed uint64 `json:"performed"`
	Failed    uint64 `json:"failed"`
}

// Client paces frames from its source onto a connection.
type Client struct {
	cfg    Config
	logger *slog.Logger
	seq    uint64

	sent      atomic.Uint64
	skipped   atomic.Uint64
	commands  atomic.Uint64
	performed atomic.Uint64
	failed    atomic.Uint64
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Client, error) {
	if cfg.Source == nil {
		return nil, errors.New("client: source is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("client: codec is required")
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Linger <= 0 {
		cfg.Linger = DefaultLinger
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Actuator == nil {
		cfg.Actuator = plugin.LogActuator{Logger: cfg.Logger}
	}
	return &Client{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "client", "encoding", string(cfg.Codec.Encoding())),
	}, nil
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	return Stats{
		Sent:      c.sent.Load(),
		Skipped:   c.skipped.Load(),
		Commands:  c.commands.Load(),
		Performed: c.performed.Load(),
		Failed:    c.failed.Load(),
	}
}

// Run streams frames over conn until the source is exhausted, ctx is
// cancelled or the server goes away. Commands are read and dispatched
// concurrently with sending. conn is closed when Run returns. The end of
// the source and cancellation return nil.
func (c *Client) Run(ctx context.Context, conn transport.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands := make(chan *protocol.Command, dispatchQueue)
	readErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer close(commands)
		c.receive(conn, commands, readErr)
	}()
	go func() {
		defer wg.Done()
		// Queued commands still run after shutdown starts; the actuator
		// bounds each one.
		dctx := context.WithoutCancel(ctx)
		for cmd := range commands {
			c.perform(dctx, cmd)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		conn.Close()
	}()

	c.logger.Info("streaming", "fps", c.cfg.FPS, "remote", conn.RemoteAddr())
	err := c.send(ctx, conn, readErr)
	cancel()
	wg.Wait()

	stats := c.Stats()
	c.logger.Info("stream ended",
		"sent", stats.Sent,
		"commands", stats.Commands,
		"performed", stats.Performed,
		"failed", stats.Failed,
		"error", err,
	)
	return err
}

func (c *Client) send(ctx context.Context, conn transport.Conn, readErr <-chan error) error {
	ticker := c.cfg.Clock.NewTicker(time.Second / time.Duration(c.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("server closed the stream: %w", err)
		case <-ticker.C:
			frame, err := c.cfg.Source.Next(ctx)
			switch {
			case errors.Is(err, io.EOF):
				c.logger.Info("source exhausted")
				return c.linger(ctx, readErr)
			case ctx.Err() != nil:
				return nil
			case err != nil:
				return fmt.Errorf("read source: %w", err)
			}

			// Sequence ids are assigned here so a looping replay stays
			// strictly increasing.
			c.seq++
			frame.SequenceID = c.seq
			frame.Timestamp = c.cfg.Clock.Now()

			data, err := c.cfg.Codec.EncodeFrame(frame)
			if err != nil {
				c.skipped.Add(1)
				c.logger.Warn("skipping frame", "sequence_id", frame.SequenceID, "error", err)
				continue
			}
			if err := conn.WriteMessage(data); err != nil {
				return fmt.Errorf("send frame: %w", err)
			}
			c.sent.Add(1)
		}
	}
}

// linger waits for in-flight commands after the last frame.
func (c *Client) linger(ctx context.Context, readErr <-chan error) error {
	select {
	case <-c.cfg.Clock.After(c.cfg.Linger):
	case <-ctx.Done():
	case <-readErr:
	}
	return nil
}

func (c *Client) receive(conn transport.Conn, commands chan<- *protocol.Command, readErr chan<- error) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		cmd, err := c.cfg.Codec.DecodeCommand(msg)
		if err != nil {
			c.logger.Warn("ignoring server message", "error", err)
			continue
		}
		c.commands.Add(1)
		c.cfg.Metrics.CommandReceived(cmd.Action.String())

		select {
		case commands <- cmd:
		default:
			c.failed.Add(1)
			c.logger.Warn("actuator busy, dropping command", "action", cmd.Action)
		}
	}
}

func (c *Client) perform(ctx context.Context, cmd *protocol.Command) {
	if err := c.cfg.Actuator.Perform(ctx, cmd); err != nil {
		c.failed.Add(1)
		c.logger.Error("command failed", "action", cmd.Action, "error", err)
		return
	}
	c.performed.Add(1)
}
