// Package session runs the per-connection landmark-to-command pipeline:
// decode, order check, classification, validation and debouncing.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/clock"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/protocol"
)

// Config holds the collaborators of one session. Codec, Classifier and
// Debouncer are required.
type Config struct {
	SessionID  string
	Remote     string
	Codec      *protocol.Codec
	Classifier gesture.Classifier
	Validator  gesture.Validator // defaults to gesture.AllowAll
	Debouncer  *gesture.Debouncer
	// SmoothingWindow averages the landmarks of the last N hands before
	// classification. 0 or 1 disables smoothing.
	SmoothingWindow int

	Clock   clock.Clock // defaults to clock.Real()
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// OnEvent is called synchronously for every confirmed action. It must
	// not block.
	OnEvent func(*action.Event)

	// DropLogEvery limits drop log lines per reason. Defaults to one per
	// second with a burst of 5.
	DropLogEvery time.Duration
}

// Stats is a snapshot of a session's counters.
type Stats struct {
	Received     uint64 `json:"received"`
	Processed    uint64 `json:"processed"`
	Decode       uint64 `json:"dropped_decode"`
	OutOfOrder   uint64 `json:"dropped_out_of_order"`
	Backpressure uint64 `json:"dropped_backpressure"`
	Classifier   uint64 `json:"classifier_errors"`
	Actions      uint64 `json:"actions"`
}

type counters struct {
	received     atomic.Uint64
	processed    atomic.Uint64
	decode       atomic.Uint64
	outOfOrder   atomic.Uint64
	backpressure atomic.Uint64
	classifier   atomic.Uint64
	actions      atomic.Uint64
}

// Pipeline owns one session's state. OnFrame must be called from a single
// goroutine; Stats may be called concurrently.
type Pipeline struct {
	cfg      Config
	state    *gesture.State
	smoother *smoother
	logger   *slog.Logger
	stats    counters

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a pipeline with fresh session state.
func New(cfg Config) *Pipeline {
	if cfg.Validator == nil {
		cfg.Validator = gesture.AllowAll{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DropLogEvery <= 0 {
		cfg.DropLogEvery = time.Second
	}

	return &Pipeline{
		cfg:      cfg,
		state:    cfg.Debouncer.NewState(cfg.SessionID),
		smoother: newSmoother(cfg.SmoothingWindow),
		logger:   cfg.Logger.With("session_id", cfg.SessionID, "remote", cfg.Remote),
		limiters: make(map[string]*rate.Limiter),
	}
}

// SessionID returns the session identifier.
func (p *Pipeline) SessionID() string {
	return p.cfg.SessionID
}

// State returns the read-only view of the session state.
func (p *Pipeline) State() gesture.StateView {
	return p.state
}

// OnFrame processes one raw landmark message and returns the encoded command
// envelope to send back, or nil. It never blocks and never retries; a bad
// frame is dropped without touching the session state.
func (p *Pipeline) OnFrame(raw []byte) []byte {
	start := p.cfg.Clock.Now()
	p.stats.received.Add(1)
	p.cfg.Metrics.FrameReceived()

	env, err := p.cfg.Codec.Decode(raw)
	if err != nil {
		p.stats.decode.Add(1)
		p.drop(metrics.DropDecode, "dropping undecodable frame", "error", err, "bytes", len(raw))
		return nil
	}

	ev := p.Step(env.Frame)
	p.cfg.Metrics.ObserveProcess(p.cfg.Clock.Now().Sub(start))
	if ev == nil {
		return nil
	}

	out, err := p.cfg.Codec.EncodeCommand(protocol.CommandFromEvent(ev))
	if err != nil {
		p.logger.Error("encode command failed", "action", ev.Action, "error", err)
		return nil
	}
	return out
}

// Step runs a decoded frame through ordering, classification, validation
// and debouncing. It returns the confirmed event, if any.
func (p *Pipeline) Step(frame *landmark.Frame) *action.Event {
	if !p.state.AcceptSequence(frame.SequenceID) {
		p.stats.outOfOrder.Add(1)
		last, _ := p.state.LastSequence()
		p.drop(metrics.DropOutOfOrder, "dropping stale frame", "sequence_id", frame.SequenceID, "last_sequence_id", last)
		return nil
	}
	p.stats.processed.Add(1)

	smoothed := p.smoother.apply(frame)

	cand, err := p.cfg.Classifier.Classify(smoothed, p.state)
	if err != nil {
		p.stats.classifier.Add(1)
		var ce *gesture.ClassifierError
		if !errors.As(err, &ce) {
			err = &gesture.ClassifierError{Classifier: "unknown", Err: err}
		}
		p.drop(metrics.DropClassifier, "classifier failed, treating frame as none", "sequence_id", frame.SequenceID, "error", err)
		cand = gesture.NoneCandidate(frame.SequenceID)
	}

	if cand.Kind != gesture.None && !p.cfg.Validator.Allow(smoothed, cand) {
		p.logger.Debug("candidate rejected by validator", "kind", cand.Kind, "sequence_id", frame.SequenceID)
		cand = gesture.NoneCandidate(frame.SequenceID)
	}

	ev := p.cfg.Debouncer.Advance(p.state, cand, p.cfg.Clock.Now())
	if ev == nil {
		return nil
	}

	p.stats.actions.Add(1)
	p.cfg.Metrics.ActionEmitted(ev.Action.String())
	attrs := []any{"action", ev.Action, "sequence_id", frame.SequenceID}
	if ev.Magnitude != nil {
		attrs = append(attrs, "magnitude", *ev.Magnitude)
	}
	p.logger.Info("action confirmed", attrs...)

	if p.cfg.OnEvent != nil {
		p.cfg.OnEvent(ev)
	}
	return ev
}

// Stats returns a snapshot of the session counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:     p.stats.received.Load(),
		Processed:    p.stats.processed.Load(),
		Decode:       p.stats.decode.Load(),
		OutOfOrder:   p.stats.outOfOrder.Load(),
		Backpressure: p.stats.backpressure.Load(),
		Classifier:   p.stats.classifier.Load(),
		Actions:      p.stats.actions.Load(),
	}
}

// dropBackpressure records a frame displaced from the mailbox before it was
// processed.
func (p *Pipeline) dropBackpressure() {
	p.stats.received.Add(1)
	p.stats.backpressure.Add(1)
	p.cfg.Metrics.FrameReceived()
	p.drop(metrics.DropBackpressure, "dropping frame, processing is behind")
}

// drop counts the drop and logs it, throttled per reason.
func (p *Pipeline) drop(reason, msg string, attrs ...any) {
	p.cfg.Metrics.FrameDropped(reason)
	if !p.allowLog(reason) {
		return
	}
	p.logger.Warn(msg, append([]any{"reason", reason}, attrs...)...)
}

func (p *Pipeline) allowLog(reason string) bool {
	p.limMu.Lock()
	defer p.limMu.Unlock()

	lim, ok := p.limiters[reason]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.cfg.DropLogEvery), 5)
		p.limiters[reason] = lim
	}
	return lim.AllowN(p.cfg.Clock.Now(), 1)
}
