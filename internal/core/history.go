package core

import (
	"context"

	"github.com/dkeye/Live/internal/domain"
)

// DefaultHistoryLimit applies when a history read passes a non-positive limit.
const DefaultHistoryLimit = 50

// History reads persisted chat back. Both stores implement it.
type History interface {
	// RecentMessages returns up to limit messages of stream, oldest first.
	RecentMessages(ctx context.Context, stream domain.StreamID, limit int) ([]domain.ChatMessage, error)
}
