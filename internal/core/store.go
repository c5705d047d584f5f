package core

import (
	"context"

	"github.com/dkeye/Live/internal/domain"
)

//go:generate mockgen -source=store.go -destination=mock/store_mock.go -package=mock

// Store is the persistence collaborator consumed by the relay.
// Broadcaster ownership is never delegated here, it lives in memory only.
type Store interface {
	// AddViewer adds user to the stream's viewer set. Adding a present id is a no-op.
	AddViewer(ctx context.Context, stream domain.StreamID, user domain.UserID) error
	RemoveViewer(ctx context.Context, stream domain.StreamID, user domain.UserID) error
	ViewerCount(ctx context.Context, stream domain.StreamID) (int, error)
	// CreateMessage persists msg and returns it with ID and Timestamp set.
	CreateMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	Close() error
}
