package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/protocol"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/transport"
)

// handleWebSocket upgrades /ws?encoding=json|cbor and runs a landmark
// session over the connection. JSON sessions use text messages, CBOR
// sessions binary ones.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	enc, err := protocol.ParseEncoding(r.URL.Query().Get("encoding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.track() {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := transport.Upgrade(w, r, enc.Binary())
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.runSession(s.ctx, conn, enc)
}

// ServeFramed accepts length-prefixed TCP sessions on l until ctx is
// cancelled. Every session uses enc.
func (s *Server) ServeFramed(ctx context.Context, l *transport.Listener, enc protocol.Encoding) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	s.logger.Info("framed listener accepting", "addr", l.Addr(), "encoding", string(enc))

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		if !s.track() {
			conn.Close()
			return nil
		}
		go func() {
			defer s.sessions.Done()
			s.runSession(s.ctx, conn, enc)
		}()
	}
}

// runSession wires one connection to a fresh pipeline, registers it and
// persists its summary when it ends.
func (s *Server) runSession(ctx context.Context, conn transport.Conn, enc protocol.Encoding) {
	codec, err := protocol.NewCodec(enc)
	if err != nil {
		s.logger.Error("codec unavailable", "encoding", string(enc), "error", err)
		conn.Close()
		return
	}

	id := uuid.New().String()
	openedAt := s.config.Clock.Now()

	p := session.New(session.Config{
		SessionID:       id,
		Remote:          conn.RemoteAddr(),
		Codec:           codec,
		Classifier:      s.config.Classifier,
		Validator:       s.config.Validator,
		Debouncer:       s.config.Debouncer,
		SmoothingWindow: s.config.SmoothingWindow,
		Clock:           s.config.Clock,
		Logger:          s.config.Logger,
		Metrics:         s.config.Metrics,
		OnEvent:         s.recordEvent,
	})

	if s.config.Store != nil {
		rec := &store.SessionRecord{ID: id, Remote: conn.RemoteAddr(), Encoding: string(enc), OpenedAt: openedAt}
		if err := s.config.Store.Sessions().Open(rec); err != nil {
			s.logger.Error("failed to record session", "session_id", id, "error", err)
		}
	}

	s.config.Registry.Add(p, string(enc), openedAt)
	defer s.config.Registry.Remove(id)

	if err := p.Run(ctx, conn); err != nil {
		s.logger.Warn("session failed", "session_id", id, "error", err)
	}

	if s.config.Store != nil {
		st := p.Stats()
		counts := store.SessionCounts{
			Received:  st.Received,
			Processed: st.Processed,
			Dropped:   st.Decode + st.OutOfOrder + st.Backpressure,
			Actions:   st.Actions,
		}
		if err := s.config.Store.Sessions().Close(id, s.config.Clock.Now(), counts); err != nil {
			s.logger.Error("failed to close session record", "session_id", id, "error", err)
		}
	}
}

func (s *Server) recordEvent(ev *action.Event) {
	if s.config.Journal != nil {
		s.config.Journal.Record(ev)
	}
}
