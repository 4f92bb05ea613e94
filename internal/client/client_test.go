package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/clock"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/protocol"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/transport"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// sliceSource yields copies of frames, then err, or io.EOF when err is nil.
type sliceSource struct {
	mu     sync.Mutex
	frames []*landmark.Frame
	err    error
}

func (s *sliceSource) Next(ctx context.Context) (*landmark.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	f := *s.frames[0]
	s.frames = s.frames[1:]
	return &f, nil
}

func (s *sliceSource) Close() error { return nil }

func handFrames(hand *landmark.Hand, n int) []*landmark.Frame {
	frames := make([]*landmark.Frame, n)
	for i := range frames {
		// Stale ids from the source are replaced by the client.
		frames[i] = &landmark.Frame{SequenceID: 7, Hand: hand}
	}
	return frames
}

// recordingActuator collects performed commands.
type recordingActuator struct {
	mu   sync.Mutex
	cmds []*protocol.Command
	err  error
}

func (a *recordingActuator) Perform(_ context.Context, cmd *protocol.Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cmds = append(a.cmds, cmd)
	return a.err
}

func (a *recordingActuator) performed() []*protocol.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*protocol.Command(nil), a.cmds...)
}

// startServer runs a heuristic session on the far end of a pipe.
func startServer(t *testing.T, codec *protocol.Codec) (transport.Conn, <-chan error) {
	t.Helper()
	clientEnd, serverEnd := transport.Pipe()
	p := session.New(session.Config{
		SessionID:  "client-test",
		Remote:     serverEnd.RemoteAddr(),
		Codec:      codec,
		Classifier: gesture.NewHeuristic(gesture.DefaultThresholds()),
		Debouncer:  gesture.NewDebouncer(gesture.DefaultDebounceConfig()),
		Logger:     discard,
	})
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), serverEnd) }()
	t.Cleanup(func() { serverEnd.Close() })
	return clientEnd, done
}

func TestNew(t *testing.T) {
	if _, err := New(Config{Codec: protocol.JSON()}); err == nil {
		t.Error("expected error without a source")
	}
	if _, err := New(Config{Source: &sliceSource{}}); err == nil {
		t.Error("expected error without a codec")
	}

	c, err := New(Config{Source: &sliceSource{}, Codec: protocol.JSON()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.cfg.FPS != DefaultFPS || c.cfg.Linger != DefaultLinger {
		t.Errorf("defaults = fps %d, linger %v", c.cfg.FPS, c.cfg.Linger)
	}
	if _, ok := c.cfg.Actuator.(plugin.LogActuator); !ok {
		t.Errorf("default actuator = %T, want plugin.LogActuator", c.cfg.Actuator)
	}
}

func TestClient_RoundTrip(t *testing.T) {
	for _, codec := range []*protocol.Codec{protocol.JSON(), protocol.CBOR()} {
		t.Run(string(codec.Encoding()), func(t *testing.T) {
			conn, serverDone := startServer(t, codec)
			act := &recordingActuator{}
			m := metrics.New()

			c, err := New(Config{
				Source:   &sliceSource{frames: handFrames(landmark.TwoFingerHand(), 10)},
				Codec:    codec,
				Actuator: act,
				FPS:      100,
				Linger:   300 * time.Millisecond,
				Logger:   discard,
				Metrics:  m,
			})
			if err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.Run(ctx, conn); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			cmds := act.performed()
			if len(cmds) != 1 || cmds[0].Action != action.NextTrack {
				t.Fatalf("performed = %+v, want one next_track", cmds)
			}
			if cmds[0].SessionID != "client-test" {
				t.Errorf("session id = %q", cmds[0].SessionID)
			}

			stats := c.Stats()
			if stats.Sent != 10 || stats.Commands != 1 || stats.Performed != 1 || stats.Failed != 0 {
				t.Errorf("stats = %+v", stats)
			}

			select {
			case err := <-serverDone:
				if err != nil {
					t.Errorf("server Run() error = %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Error("server session did not end after the client closed")
			}
		})
	}
}

func TestClient_PacesAndSequences(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clk := clock.Fake(start)
	clientEnd, serverEnd := transport.Pipe()
	defer serverEnd.Close()

	c, err := New(Config{
		Source: &sliceSource{frames: handFrames(landmark.FistHand(), 3)},
		Codec:  protocol.JSON(),
		FPS:    10,
		Linger: 10 * time.Millisecond,
		Clock:  clk,
		Logger: discard,
	})
	if err != nil {
		t.Fatal(err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(context.Background(), clientEnd) }()

	msgs := make(chan []byte, 8)
	go func() {
		for {
			msg, err := serverEnd.ReadMessage()
			if err != nil {
				close(msgs)
				return
			}
			msgs <- msg
		}
	}()

	codec := protocol.JSON()
	var prev time.Time
	for want := uint64(1); want <= 3; want++ {
		var msg []byte
		// The ticker may be created after the first Advance, so keep
		// stepping until a frame arrives.
		for msg == nil {
			clk.Advance(100 * time.Millisecond)
			select {
			case msg = <-msgs:
			case <-time.After(20 * time.Millisecond):
			}
		}
		env, err := codec.Decode(msg)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		f := env.Frame
		if f.SequenceID != want {
			t.Errorf("frame %d sequence id = %d", want, f.SequenceID)
		}
		if !f.Timestamp.After(start) || f.Timestamp.Before(prev) {
			t.Errorf("frame %d timestamp %v went back from %v", want, f.Timestamp, prev)
		}
		prev = f.Timestamp
	}

	// The source is now empty; the next tick ends the stream.
	deadline := time.After(2 * time.Second)
	for {
		clk.Advance(100 * time.Millisecond)
		select {
		case err := <-runDone:
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := c.Stats().Sent; got != 3 {
				t.Errorf("sent = %d, want 3", got)
			}
			return
		case <-deadline:
			t.Fatal("Run did not return after the source ended")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestClient_LingerUsesClock(t *testing.T) {
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	clientEnd, serverEnd := transport.Pipe()
	defer serverEnd.Close()
	go func() {
		for {
			if _, err := serverEnd.ReadMessage(); err != nil {
				return
			}
		}
	}()

	c, err := New(Config{
		Source: &sliceSource{frames: handFrames(landmark.FistHand(), 1)},
		Codec:  protocol.JSON(),
		FPS:    10,
		Linger: time.Hour,
		Clock:  clk,
		Logger: discard,
	})
	if err != nil {
		t.Fatal(err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(context.Background(), clientEnd) }()

	lingering := make(chan struct{})
	go func() {
		clk.WaitForTimers(1)
		close(lingering)
	}()

	// Tick until the source is drained and the client starts waiting.
	deadline := time.After(2 * time.Second)
	for waiting := false; !waiting; {
		clk.Advance(100 * time.Millisecond)
		select {
		case <-lingering:
			waiting = true
		case err := <-runDone:
			t.Fatalf("Run() returned %v before the linger elapsed", err)
		case <-deadline:
			t.Fatal("client never started lingering")
		case <-time.After(20 * time.Millisecond):
		}
	}

	select {
	case err := <-runDone:
		t.Fatalf("Run() returned %v without the clock advancing", err)
	case <-time.After(50 * time.Millisecond):
	}

	clk.Advance(time.Hour)
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the linger elapsed")
	}
}

func TestClient_ServerGone(t *testing.T) {
	clientEnd, serverEnd := transport.Pipe()
	c, err := New(Config{
		Source: &sliceSource{frames: handFrames(landmark.FistHand(), 1000)},
		Codec:  protocol.JSON(),
		FPS:    200,
		Logger: discard,
	})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		serverEnd.Close()
	}()

	err = c.Run(context.Background(), clientEnd)
	if err == nil {
		t.Fatal("Run() should fail when the server goes away")
	}
	if !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Run() error = %v, want transport.ErrClosed", err)
	}
}

func TestClient_SourceError(t *testing.T) {
	clientEnd, serverEnd := transport.Pipe()
	defer serverEnd.Close()

	c, _ := New(Config{
		Source: &sliceSource{err: errors.New("camera unplugged")},
		Codec:  protocol.JSON(),
		FPS:    200,
		Logger: discard,
	})
	err := c.Run(context.Background(), clientEnd)
	if err == nil || !strings.Contains(err.Error(), "camera unplugged") {
		t.Errorf("Run() error = %v, want source error", err)
	}
}

func TestClient_Cancel(t *testing.T) {
	clientEnd, serverEnd := transport.Pipe()
	defer serverEnd.Close()
	go func() {
		for {
			if _, err := serverEnd.ReadMessage(); err != nil {
				return
			}
		}
	}()

	c, _ := New(Config{
		Source: &sliceSource{frames: handFrames(landmark.FistHand(), 100000)},
		Codec:  protocol.CBOR(),
		FPS:    100,
		Logger: discard,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := c.Run(ctx, clientEnd); err != nil {
		t.Errorf("Run() after cancel error = %v, want nil", err)
	}
	if c.Stats().Sent == 0 {
		t.Error("expected frames to be sent before cancellation")
	}
}

func TestClient_ActuatorFailure(t *testing.T) {
	conn, _ := startServer(t, protocol.JSON())
	act := &recordingActuator{err: errors.New("no player")}

	c, _ := New(Config{
		Source:   &sliceSource{frames: handFrames(landmark.FistHand(), 8)},
		Codec:    protocol.JSON(),
		Actuator: act,
		FPS:      100,
		Linger:   300 * time.Millisecond,
		Logger:   discard,
	})
	if err := c.Run(context.Background(), conn); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := c.Stats()
	if stats.Commands != 1 || stats.Failed != 1 || stats.Performed != 0 {
		t.Errorf("stats = %+v, want one failed command", stats)
	}
}
