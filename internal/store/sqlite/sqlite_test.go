package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/Live/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "live.db")
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Viewers(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.AddViewer(ctx, "s1", "alice"))
	require.NoError(t, s.AddViewer(ctx, "s1", "alice"))
	require.NoError(t, s.AddViewer(ctx, "s1", "bob"))
	require.NoError(t, s.AddViewer(ctx, "s2", "carol"))

	n, err := s.ViewerCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.RemoveViewer(ctx, "s1", "bob"))
	n, err = s.ViewerCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_Messages(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	for _, content := range []string{"one", "two", "three"} {
		msg, err := s.CreateMessage(ctx, domain.ChatMessage{
			StreamID: "s1",
			UserID:   "alice",
			Content:  content,
			Type:     domain.MessageText,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.Timestamp.IsZero())
	}
	_, err := s.CreateMessage(ctx, domain.ChatMessage{StreamID: "s2", UserID: "bob", Content: "x", Type: domain.MessageOther})
	require.NoError(t, err)

	msgs, err := s.RecentMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
	assert.Equal(t, domain.StreamID("s1"), msgs[1].StreamID)
	assert.Equal(t, domain.MessageText, msgs[1].Type)
}

func TestOpen_SchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "live.db")

	first, err := Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, first.AddViewer(ctx, "s1", "alice"))
	require.NoError(t, first.Close())

	second, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer second.Close()
	n, err := second.ViewerCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
