// Package memory is a process-local core.Store used in development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/oklog/ulid/v2"
)

type Store struct {
	mu       sync.RWMutex
	viewers  map[domain.StreamID]map[domain.UserID]struct{}
	messages []domain.ChatMessage
	now      func() time.Time
}

func New() *Store {
	return &Store{
		viewers: make(map[domain.StreamID]map[domain.UserID]struct{}),
		now:     time.Now,
	}
}

func (s *Store) AddViewer(ctx context.Context, stream domain.StreamID, user domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.viewers[stream]
	if !ok {
		set = make(map[domain.UserID]struct{})
		s.viewers[stream] = set
	}
	set[user] = struct{}{}
	return nil
}

func (s *Store) RemoveViewer(ctx context.Context, stream domain.StreamID, user domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.viewers[stream]; ok {
		delete(set, user)
		if len(set) == 0 {
			delete(s.viewers, stream)
		}
	}
	return nil
}

func (s *Store) ViewerCount(ctx context.Context, stream domain.StreamID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.viewers[stream]), nil
}

func (s *Store) CreateMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChatMessage{}, err
	}
	msg.ID = ulid.Make().String()
	msg.Timestamp = s.now().UTC()
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg, nil
}

// RecentMessages returns the last limit messages of stream in creation order.
func (s *Store) RecentMessages(ctx context.Context, stream domain.StreamID, limit int) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = core.DefaultHistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ChatMessage{}
	for _, m := range s.messages {
		if m.StreamID == stream {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
