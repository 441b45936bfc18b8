package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Conn        core.Conn
	Client      string
	State       domain.ConnState
	ConnectedAt time.Time
	Cancel      context.CancelFunc
}

// Registry tracks live connections. It owns no membership state.
type Registry struct {
	mu      sync.RWMutex
	conns   map[domain.ConnID]*connEntry
	metrics *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		conns:   make(map[domain.ConnID]*connEntry),
		metrics: m,
	}
}

// Register adds conn in StateConnected. It reports false if the id is taken.
func (r *Registry) Register(conn core.Conn, client string, cancel context.CancelFunc) bool {
	id := conn.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[id]; exists {
		return false
	}
	r.conns[id] = &connEntry{
		Conn:        conn,
		Client:      client,
		State:       domain.StateConnected,
		ConnectedAt: time.Now(),
		Cancel:      cancel,
	}
	r.metrics.ConnOpened()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("client", client).Msg("registered connection")
	return true
}

func (r *Registry) Get(id domain.ConnID) (core.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Client(id domain.ConnID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Client
	}
	return ""
}

func (r *Registry) State(id domain.ConnID) domain.ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.State
	}
	return domain.StateDisconnected
}

func (r *Registry) SetState(id domain.ConnID, s domain.ConnState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || e.State == domain.StateDisconnected {
		return false
	}
	if e.State != s {
		log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("from", e.State.String()).Str("to", s.String()).Msg("state change")
	}
	e.State = s
	return true
}

// Remove marks the entry disconnected and drops it. Only the first caller
// for a given id gets ok == true.
func (r *Registry) Remove(id domain.ConnID) (core.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	e.State = domain.StateDisconnected
	delete(r.conns, id)
	r.metrics.ConnClosed()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	return e.Conn, true
}

// Cancel stops the transport of id; the adapter then runs the disconnect path.
func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
