package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const queryTimeout = 5 * time.Second

// SQLiteStore keeps conversation state across restarts.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			sender TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			parent_message_id TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(key string) (ConversationState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var state ConversationState
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, parent_message_id, updated_at FROM conversations WHERE sender = ?`, key,
	).Scan(&state.ConversationID, &state.ParentMessageID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationState{}, ErrNotFound
	}
	if err != nil {
		return ConversationState{}, fmt.Errorf("query conversation: %w", err)
	}
	state.UpdatedAt = time.UnixMilli(updated)
	return state, nil
}

func (s *SQLiteStore) Set(key string, state ConversationState) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (sender, conversation_id, parent_message_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sender) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			parent_message_id = excluded.parent_message_id,
			updated_at = excluded.updated_at
	`, key, state.ConversationID, state.ParentMessageID, state.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE sender = ?`, key); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *SQLiteStore) Range(fn func(key string, state ConversationState) bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, conversation_id, parent_message_id, updated_at FROM conversations`)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	type row struct {
		key   string
		state ConversationState
	}
	var all []row
	for rows.Next() {
		var r row
		var updated int64
		if err := rows.Scan(&r.key, &r.state.ConversationID, &r.state.ParentMessageID, &updated); err != nil {
			rows.Close()
			return fmt.Errorf("scan conversation: %w", err)
		}
		r.state.UpdatedAt = time.UnixMilli(updated)
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	// fn may call back into the store; the single connection is free now.
	for _, r := range all {
		if !fn(r.key, r.state) {
			break
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
