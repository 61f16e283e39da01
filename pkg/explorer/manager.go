package explorer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrExplorationNotFound is returned for an unknown exploration id.
var ErrExplorationNotFound = errors.New("exploration not found")

// Manager keeps the explorations of a process by id.
type Manager struct {
	logger *slog.Logger

	mu           sync.RWMutex
	explorations map[string]*Exploration
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, explorations: make(map[string]*Exploration)}
}

// Start runs an exploration detached from ctx's cancellation, so it outlives
// the request that started it. Stop it with Cancel.
func (m *Manager) Start(ctx context.Context, ec *ExplorerContext, build Builder, opts Options) *Exploration {
	if opts.Logger == nil {
		opts.Logger = m.logger
	}
	e := Run(context.WithoutCancel(ctx), ec, build, opts)
	m.mu.Lock()
	m.explorations[e.ID] = e
	m.mu.Unlock()
	return e
}

func (m *Manager) Get(id string) (*Exploration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.explorations[id]
	return e, ok
}

// Cancel cancels a running exploration. Canceling a finished one is a no-op.
func (m *Manager) Cancel(id string) error {
	e, ok := m.Get(id)
	if !ok {
		return ErrExplorationNotFound
	}
	e.Cancel()
	m.logger.Info("exploration cancel requested", slog.String("exploration_id", id))
	return nil
}

// List returns every known exploration.
func (m *Manager) List() []*Exploration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Exploration, 0, len(m.explorations))
	for _, e := range m.explorations {
		out = append(out, e)
	}
	return out
}

// Prune forgets explorations that finished more than maxAge ago and returns
// how many were removed.
func (m *Manager) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.explorations {
		if f := e.Finished(); !f.IsZero() && f.Before(cutoff) {
			delete(m.explorations, id)
			n++
		}
	}
	return n
}

// CancelAll cancels every exploration, for shutdown.
func (m *Manager) CancelAll() {
	for _, e := range m.List() {
		e.Cancel()
	}
}
