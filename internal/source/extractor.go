package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/landmark"
)

// DefaultIdleTimeout stops an extractor nobody has read from for this long.
const DefaultIdleTimeout = 30 * time.Second

// Extractor runs an external landmark extractor and reads the JSON lines it
// writes to stdout:
//
//	{"hands":[{"points":[{"x":..,"y":..,"z":..}, ...],"handedness":"Right","score":0.97}],"pose":[...]}
//
// The process is started lazily on the first Next and stopped after the
// idle timeout; the next call starts it again. Only the newest unread
// frame is kept.
type Extractor struct {
	command []string
	idle    time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	proc      *process
	idleTimer *time.Timer
	lastUsed  time.Time
	closed    bool
}

type process struct {
	cancel context.CancelFunc
	frames chan *landmark.Frame
	done   chan struct{}
	err    error
}

// NewExtractor creates an extractor for command (program and arguments).
func NewExtractor(command []string, idle time.Duration, logger *slog.Logger) (*Extractor, error) {
	if len(command) == 0 {
		return nil, errors.New("extractor command is empty")
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		command: command,
		idle:    idle,
		logger:  logger.With("component", "extractor"),
	}, nil
}

// Next waits for the next frame from the extractor.
func (e *Extractor) Next(ctx context.Context) (*landmark.Frame, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	p, err := e.ensureStarted()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.lastUsed = time.Now()
	e.resetIdleTimer()
	e.mu.Unlock()

	select {
	case f := <-p.frames:
		return f, nil
	case <-p.done:
		// Frames read just before exit are still delivered.
		select {
		case f := <-p.frames:
			return f, nil
		default:
		}
		if p.err != nil {
			return nil, fmt.Errorf("extractor exited: %w", p.err)
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Running reports whether the extractor process is alive.
func (e *Extractor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil {
		return false
	}
	select {
	case <-e.proc.done:
		return false
	default:
		return true
	}
}

// Close stops the extractor process.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.shutdown()
	return nil
}

func (e *Extractor) ensureStarted() (*process, error) {
	if e.proc != nil {
		select {
		case <-e.proc.done:
			// Exited on its own; start a fresh one.
			e.proc = nil
		default:
			return e.proc, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = &logWriter{logger: e.logger}
	// Children that inherited the pipes must not hold up Wait.
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start extractor: %w", err)
	}
	e.logger.Info("extractor started", "command", e.command, "pid", cmd.Process.Pid)

	p := &process{
		cancel: cancel,
		frames: make(chan *landmark.Frame, 1),
		done:   make(chan struct{}),
	}
	go e.read(p, cmd, stdout)
	e.proc = p
	return p, nil
}

func (e *Extractor) read(p *process, cmd *exec.Cmd, stdout io.Reader) {
	defer close(p.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		f, err := parseExtractorLine(scanner.Bytes())
		if err != nil {
			e.logger.Warn("skipping extractor line", "error", err)
			continue
		}
		// Latest wins: replace an unread frame.
		select {
		case <-p.frames:
		default:
		}
		p.frames <- f
	}

	err := cmd.Wait()
	if err == nil {
		err = scanner.Err()
	}
	p.err = err
}

func (e *Extractor) shutdown() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
	if e.proc == nil {
		return
	}
	e.proc.cancel()
	<-e.proc.done
	e.proc = nil
	e.logger.Info("extractor stopped")
}

func (e *Extractor) resetIdleTimer() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.idleTimer = time.AfterFunc(e.idle, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if time.Since(e.lastUsed) < e.idle {
			return
		}
		e.logger.Debug("extractor idle", "timeout", e.idle)
		e.shutdown()
	})
}

type jsonHand struct {
	Points     []landmark.Point3D `json:"points"`
	Handedness string             `json:"handedness"`
	Score      float64            `json:"score"`
}

type extractorLine struct {
	Hands []jsonHand         `json:"hands"`
	Pose  []landmark.Point3D `json:"pose"`
}

// parseExtractorLine converts one output line into a frame carrying the
// first detected hand.
func parseExtractorLine(line []byte) (*landmark.Frame, error) {
	var out extractorLine
	if err := json.Unmarshal(line, &out); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	f := &landmark.Frame{Pose: out.Pose}
	if len(out.Hands) == 0 {
		return f, nil
	}

	h := out.Hands[0]
	if len(h.Points) != landmark.NumLandmarks {
		return nil, fmt.Errorf("hand has %d points, expected %d", len(h.Points), landmark.NumLandmarks)
	}
	hand := &landmark.Hand{Handedness: h.Handedness, Score: h.Score}
	copy(hand.Points[:], h.Points)
	if !hand.IsFinite() {
		return nil, errors.New("hand has non-finite points")
	}
	f.Hand = hand
	return f, nil
}

// logWriter forwards extractor stderr to the logger line by line.
type logWriter struct {
	logger *slog.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.logger.Debug("extractor stderr", "output", string(p))
	return len(p), nil
}
