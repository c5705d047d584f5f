// Package sqlite implements core.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to dsn and makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	const viewersTable = `
    CREATE TABLE IF NOT EXISTS stream_viewers (
        stream_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        joined_at TIMESTAMP NOT NULL,
        PRIMARY KEY (stream_id, user_id)
    );`
	if _, err := db.ExecContext(ctx, viewersTable); err != nil {
		return err
	}

	const messagesTable = `
    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        stream_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        content TEXT NOT NULL,
        type TEXT NOT NULL,
        filtered INTEGER NOT NULL DEFAULT 0,
        created_at TIMESTAMP NOT NULL
    );`
	if _, err := db.ExecContext(ctx, messagesTable); err != nil {
		return err
	}

	const messagesIndex = `CREATE INDEX IF NOT EXISTS messages_stream ON messages (stream_id, created_at);`
	_, err := db.ExecContext(ctx, messagesIndex)
	return err
}

func (s *Store) AddViewer(ctx context.Context, stream domain.StreamID, user domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stream_viewers (stream_id, user_id, joined_at) VALUES (?, ?, ?)`,
		string(stream), string(user), s.now().UTC())
	return err
}

func (s *Store) RemoveViewer(ctx context.Context, stream domain.StreamID, user domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM stream_viewers WHERE stream_id = ? AND user_id = ?`,
		string(stream), string(user))
	return err
}

func (s *Store) ViewerCount(ctx context.Context, stream domain.StreamID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stream_viewers WHERE stream_id = ?`, string(stream)).Scan(&n)
	return n, err
}

func (s *Store) CreateMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.ID = ulid.Make().String()
	msg.Timestamp = s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, stream_id, user_id, content, type, filtered, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.StreamID), string(msg.UserID), msg.Content, string(msg.Type), msg.Filtered, msg.Timestamp)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// RecentMessages returns up to limit messages of stream, oldest first.
func (s *Store) RecentMessages(ctx context.Context, stream domain.StreamID, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = core.DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, stream_id, user_id, content, type, filtered, created_at
        FROM messages
        WHERE stream_id = ?
        ORDER BY id DESC
        LIMIT ?
    `, string(stream), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.ChatMessage{}
	for rows.Next() {
		var m domain.ChatMessage
		var streamID, userID, typ string
		if err := rows.Scan(&m.ID, &streamID, &userID, &m.Content, &typ, &m.Filtered, &m.Timestamp); err != nil {
			return nil, err
		}
		m.StreamID, m.UserID, m.Type = domain.StreamID(streamID), domain.UserID(userID), domain.MessageType(typ)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
