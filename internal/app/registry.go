package app

import (
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Sink  core.EventSink
	Rooms map[domain.StreamID]struct{}
}

// Registry tracks live connections and the rooms each one has joined, so
// that disconnect cleanup never has to scan room state.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnID]*connEntry),
	}
}

// Register is a no-op for an already registered connection.
func (r *Registry) Register(conn core.ConnID, sink core.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn]; ok {
		return
	}
	r.conns[conn] = &connEntry{
		Sink:  sink,
		Rooms: make(map[domain.StreamID]struct{}),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("registered connection")
}

// Unregister drops the connection and returns the rooms it had joined.
// Only the first call for a connection reports ok.
func (r *Registry) Unregister(conn core.ConnID) ([]domain.StreamID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok {
		return nil, false
	}
	delete(r.conns, conn)
	rooms := slices.Sorted(maps.Keys(e.Rooms))
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Int("rooms", len(rooms)).Msg("unregistered connection")
	return rooms, true
}

// JoinRoom records stream in the connection's room set. It reports false
// for an unknown connection.
func (r *Registry) JoinRoom(conn core.ConnID, stream domain.StreamID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok {
		return false
	}
	e.Rooms[stream] = struct{}{}
	return true
}

func (r *Registry) LeaveRoom(conn core.ConnID, stream domain.StreamID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[conn]; ok {
		delete(e.Rooms, stream)
	}
}

func (r *Registry) Rooms(conn core.ConnID) []domain.StreamID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(e.Rooms))
}

func (r *Registry) Sink(conn core.ConnID) (core.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok {
		return nil, false
	}
	return e.Sink, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
