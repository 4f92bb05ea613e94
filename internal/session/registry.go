package session

import (
	"sort"
	"sync"
	"time"
)

// Info describes a live session.
type Info struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	Encoding string    `json:"encoding"`
	OpenedAt time.Time `json:"opened_at"`
	Stats    Stats     `json:"stats"`
}

type entry struct {
	pipeline *Pipeline
	remote   string
	encoding string
	openedAt time.Time
}

// Registry tracks the sessions currently connected.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Add registers a running pipeline.
func (r *Registry) Add(p *Pipeline, encoding string, openedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[p.SessionID()] = &entry{
		pipeline: p,
		remote:   p.cfg.Remote,
		encoding: encoding,
		openedAt: openedAt,
	}
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns every live session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, Info{
			ID:       id,
			Remote:   e.remote,
			Encoding: e.encoding,
			OpenedAt: e.openedAt,
			Stats:    e.pipeline.Stats(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}
