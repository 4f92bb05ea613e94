package store

import (
	"log/slog"
	"sync"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/metrics"
)

// Journal writes action events to the store from a single background
// goroutine so that the frame path never waits on disk. When the queue is
// full the event is dropped and counted.
type Journal struct {
	events  *EventRepository
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan *action.Event
	done   chan struct{}
}

// NewJournal starts a journal with a queue of the given size.
func NewJournal(s *Store, size int, logger *slog.Logger, m *metrics.Metrics) *Journal {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{
		events:  s.Events(),
		logger:  logger,
		metrics: m,
		queue:   make(chan *action.Event, size),
		done:    make(chan struct{}),
	}
	go j.run()
	return j
}

// Record enqueues e. It reports false if the event was dropped.
func (j *Journal) Record(e *action.Event) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.closed {
		select {
		case j.queue <- e:
			return true
		default:
		}
	}

	j.metrics.JournalDropped()
	j.logger.Warn("journal dropped event", "session", e.SessionID, "action", e.Action.String())
	return false
}

// Close stops accepting events and waits for queued ones to be written.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.done
		return
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
}

func (j *Journal) run() {
	defer close(j.done)
	for e := range j.queue {
		if _, err := j.events.Create(e); err != nil {
			j.logger.Error("journal write failed", "session", e.SessionID, "action", e.Action.String(), "error", err)
		}
	}
}
