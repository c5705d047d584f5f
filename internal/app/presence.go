package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("connection not registered")

// Presence owns room membership and bridges it to the persisted viewer list.
// Membership is updated before any store call, so a failing store never
// leaves the in-memory side half-written.
type Presence struct {
	mu    sync.RWMutex
	rooms map[domain.StreamID]map[core.ConnID]struct{}

	reg     *Registry
	store   core.Store
	timeout time.Duration
}

func NewPresence(reg *Registry, store core.Store, timeout time.Duration) *Presence {
	return &Presence{
		rooms:   make(map[domain.StreamID]map[core.ConnID]struct{}),
		reg:     reg,
		store:   store,
		timeout: timeout,
	}
}

// Join subscribes conn to the room of stream, records user as a viewer in
// the store and returns the persisted viewer count.
func (p *Presence) Join(ctx context.Context, stream domain.StreamID, conn core.ConnID, user domain.UserID) (int, error) {
	if !p.reg.JoinRoom(conn, stream) {
		return 0, ErrNotConnected
	}
	p.mu.Lock()
	members, ok := p.rooms[stream]
	if !ok {
		members = make(map[core.ConnID]struct{})
		p.rooms[stream] = members
	}
	members[conn] = struct{}{}
	p.mu.Unlock()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := p.store.AddViewer(ctx, stream, user); err != nil {
		return 0, fmt.Errorf("add viewer: %w", err)
	}
	count, err := p.store.ViewerCount(ctx, stream)
	if err != nil {
		return 0, fmt.Errorf("viewer count: %w", err)
	}
	log.Info().Str("module", "app.presence").Str("stream", string(stream)).Str("conn", string(conn)).Str("user", string(user)).Int("count", count).Msg("joined")
	return count, nil
}

// Leave is the inverse of Join.
func (p *Presence) Leave(ctx context.Context, stream domain.StreamID, conn core.ConnID, user domain.UserID) (int, error) {
	p.reg.LeaveRoom(conn, stream)
	p.removeMember(stream, conn)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := p.store.RemoveViewer(ctx, stream, user); err != nil {
		return 0, fmt.Errorf("remove viewer: %w", err)
	}
	count, err := p.store.ViewerCount(ctx, stream)
	if err != nil {
		return 0, fmt.Errorf("viewer count: %w", err)
	}
	log.Info().Str("module", "app.presence").Str("stream", string(stream)).Str("conn", string(conn)).Str("user", string(user)).Int("count", count).Msg("left")
	return count, nil
}

// LeaveAll drops conn from each of rooms. Persisted viewer lists are keyed
// by user and stay untouched, the user id is unknown at this point.
func (p *Presence) LeaveAll(conn core.ConnID, rooms []domain.StreamID) {
	for _, stream := range rooms {
		p.removeMember(stream, conn)
	}
}

func (p *Presence) removeMember(stream domain.StreamID, conn core.ConnID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	members, ok := p.rooms[stream]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(p.rooms, stream)
	}
}

// Members returns the connections currently in the room of stream.
func (p *Presence) Members(stream domain.StreamID) []core.ConnID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Sorted(maps.Keys(p.rooms[stream]))
}

func (p *Presence) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}
