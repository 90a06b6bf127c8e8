package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

const (
	metaFile     = "meta.json"
	messagesFile = "messages.jsonl"
)

// Store persists each conversation as a directory holding meta.json and an
// append-only messages.jsonl.
type Store struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

type meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("filestore: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, now: time.Now}, nil
}

func (s *Store) Create(ctx context.Context, c *conversation.Conversation) (*conversation.Conversation, error) {
	_ = ctx
	if c == nil {
		return nil, fmt.Errorf("filestore: conversation is nil")
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
	dir, err := s.dir(cp.ID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("filestore: conversation %q already exists", cp.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := writeMessages(dir, cp.Messages); err != nil {
		return nil, err
	}
	if err := writeMeta(dir, metaOf(cp)); err != nil {
		return nil, err
	}
	return cp.Clone(), nil
}

func (s *Store) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	_ = ctx
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return load(dir)
}

func (s *Store) List(ctx context.Context, limit int) ([]conversation.Summary, error) {
	_ = ctx
	s.mu.Lock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	out := make([]conversation.Summary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		c, err := load(filepath.Join(s.root, entry.Name()))
		if err != nil {
			// Directories without meta.json are not conversations.
			if errors.Is(err, conversation.ErrNotFound) {
				continue
			}
			s.mu.Unlock()
			return nil, err
		}
		out = append(out, c.Summarize())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_ = ctx
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(filepath.Join(dir, metaFile)); errors.Is(err, os.ErrNotExist) {
		return conversation.ErrNotFound
	}
	return os.RemoveAll(dir)
}

func (s *Store) Rename(ctx context.Context, id, title string) error {
	_ = ctx
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := readMeta(dir)
	if err != nil {
		return err
	}
	m.Title = title
	m.UpdatedAt = s.now()
	return writeMeta(dir, m)
}

func (s *Store) AppendMessages(ctx context.Context, id string, msgs ...model.Message) ([]model.Message, error) {
	_ = ctx
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	stored := model.CloneMessages(msgs)
	conversation.EnsureMessageIDs(stored)
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := readMeta(dir)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, messagesFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	for _, msg := range stored {
		raw, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(append(raw, '\n')); err != nil {
			return nil, err
		}
	}
	m.UpdatedAt = s.now()
	if err := writeMeta(dir, m); err != nil {
		return nil, err
	}
	return model.CloneMessages(stored), nil
}

// UpdateMessage rewrites messages.jsonl with msg in place.
func (s *Store) UpdateMessage(ctx context.Context, id string, msg model.Message) error {
	_ = ctx
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := readMeta(dir)
	if err != nil {
		return err
	}
	msgs, err := readMessages(dir)
	if err != nil {
		return err
	}
	found := false
	for i := range msgs {
		if msgs[i].ID == msg.ID {
			msgs[i] = msg.Clone()
			found = true
			break
		}
	}
	if !found {
		return conversation.ErrMessageNotFound
	}
	if err := writeMessages(dir, msgs); err != nil {
		return err
	}
	m.UpdatedAt = s.now()
	return writeMeta(dir, m)
}

func (s *Store) dir(id string) (string, error) {
	if err := validatePathComponent(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

func load(dir string) (*conversation.Conversation, error) {
	m, err := readMeta(dir)
	if err != nil {
		return nil, err
	}
	msgs, err := readMessages(dir)
	if err != nil {
		return nil, err
	}
	return &conversation.Conversation{
		ID:           m.ID,
		Title:        m.Title,
		SystemPrompt: m.SystemPrompt,
		Messages:     msgs,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func metaOf(c *conversation.Conversation) meta {
	return meta{
		ID:           c.ID,
		Title:        c.Title,
		SystemPrompt: c.SystemPrompt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func readMeta(dir string) (meta, error) {
	var m meta
	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, conversation.ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("filestore: decode meta: %w", err)
	}
	return m, nil
}

func writeMeta(dir string, m meta) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, metaFile), raw)
}

func readMessages(dir string) ([]model.Message, error) {
	f, err := os.Open(filepath.Join(dir, messagesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []model.Message{}
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var msg model.Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("filestore: decode messages: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func writeMessages(dir string, msgs []model.Message) error {
	var b strings.Builder
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		b.Write(raw)
		b.WriteByte('\n')
	}
	return writeAtomic(filepath.Join(dir, messagesFile), []byte(b.String()))
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func validatePathComponent(value string) error {
	value = strings.TrimSpace(value)
	if value == "" || value == "." || value == ".." {
		return fmt.Errorf("filestore: invalid conversation id")
	}
	if strings.Contains(value, "/") || strings.Contains(value, "\\") {
		return fmt.Errorf("filestore: invalid conversation id")
	}
	if filepath.Clean(value) != value {
		return fmt.Errorf("filestore: invalid conversation id")
	}
	return nil
}
