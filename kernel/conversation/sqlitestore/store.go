// Package sqlitestore keeps conversations in a single SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	_ "modernc.org/sqlite"
)

const (
	driver = "sqlite"
	dsnOpt = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
)

// Store implements conversation.Store on SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: create dir: %w", err)
	}
	db, err := sql.Open(driver, path+dsnOpt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, c *conversation.Conversation) (*conversation.Conversation, error) {
	if c == nil {
		return nil, fmt.Errorf("sqlitestore: conversation is nil")
	}
	cp := c.Clone()
	if cp.ID == "" {
		cp.ID = conversation.New("", "").ID
	}
	if cp.Title == "" {
		cp.Title = conversation.DefaultTitle
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	conversation.EnsureMessageIDs(cp.Messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	const q = `
INSERT INTO conversations (id, title, system_prompt, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, cp.ID, cp.Title, cp.SystemPrompt, cp.CreatedAt.UnixMilli(), cp.UpdatedAt.UnixMilli()); err != nil {
		return nil, fmt.Errorf("sqlitestore: insert conversation: %w", err)
	}
	if err := insertMessages(ctx, tx, cp.ID, 0, cp.Messages); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cp.Clone(), nil
}

func (s *Store) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	const q = `SELECT id, title, system_prompt, created_at, updated_at FROM conversations WHERE id = ?`
	var (
		c                    conversation.Conversation
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Title, &c.SystemPrompt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var msg model.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, fmt.Errorf("sqlitestore: decode message: %w", err)
		}
		c.Messages = append(c.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]conversation.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT c.id, c.title, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
	COALESCE((SELECT m.preview FROM messages m
		WHERE m.conversation_id = c.id AND m.role = 'user'
		ORDER BY m.seq DESC LIMIT 1), '')
FROM conversations c
ORDER BY c.updated_at DESC, c.created_at DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]conversation.Summary, 0, limit)
	for rows.Next() {
		var rec conversation.Summary
		var createdAt, updatedAt int64
		if err := rows.Scan(&rec.ID, &rec.Title, &createdAt, &updatedAt, &rec.MessageCount, &rec.LastUserMessage); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		rec.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, conversation.ErrNotFound)
}

func (s *Store) Rename(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, title, s.now().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res, conversation.ErrNotFound)
}

func (s *Store) AppendMessages(ctx context.Context, id string, msgs ...model.Message) ([]model.Message, error) {
	stored := model.CloneMessages(msgs)
	conversation.EnsureMessageIDs(stored)

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, s.now().UnixMilli(), id)
	if err != nil {
		return nil, err
	}
	if err := requireRow(res, conversation.ErrNotFound); err != nil {
		return nil, err
	}
	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE conversation_id = ?`, id).Scan(&next); err != nil {
		return nil, err
	}
	if err := insertMessages(ctx, tx, id, next, stored); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return model.CloneMessages(stored), nil
}

func (s *Store) UpdateMessage(ctx context.Context, id string, msg model.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	const q = `
UPDATE messages SET role = ?, preview = ?, body = ?
WHERE conversation_id = ? AND id = ?`
	res, err := tx.ExecContext(ctx, q, string(msg.Role), preview(msg), body, id, msg.ID)
	if err != nil {
		return err
	}
	if err := requireRow(res, conversation.ErrMessageNotFound); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, s.now().UnixMilli(), id); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMessages(ctx context.Context, tx *sql.Tx, conversationID string, seq int64, msgs []model.Message) error {
	const q = `
INSERT INTO messages (conversation_id, seq, id, role, preview, body)
VALUES (?, ?, ?, ?, ?, ?)`
	for i, msg := range msgs {
		body, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, conversationID, seq+int64(i), msg.ID, string(msg.Role), preview(msg), body); err != nil {
			return fmt.Errorf("sqlitestore: insert message: %w", err)
		}
	}
	return nil
}

func preview(msg model.Message) string {
	if msg.Role != model.RoleUser {
		return ""
	}
	return strings.TrimSpace(msg.PlainText())
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated
ON conversations(updated_at DESC);
CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	id TEXT NOT NULL,
	role TEXT NOT NULL,
	preview TEXT NOT NULL DEFAULT '',
	body BLOB NOT NULL,
	PRIMARY KEY (conversation_id, seq),
	UNIQUE (conversation_id, id)
);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return nil
}
