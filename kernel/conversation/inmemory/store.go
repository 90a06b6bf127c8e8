package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// Store is a thread-safe in-memory conversation store.
type Store struct {
	mu   sync.RWMutex
	data map[string]*conversation.Conversation
	now  func() time.Time
}

func New() *Store {
	return &Store{data: make(map[string]*conversation.Conversation), now: time.Now}
}

func (s *Store) Create(ctx context.Context, c *conversation.Conversation) (*conversation.Conversation, error) {
	_ = ctx
	if c == nil {
		return nil, fmt.Errorf("conversation: conversation is nil")
	}
	cp := c.Clone()
	if cp.ID == "" {
		cp.ID = conversation.New("", "").ID
	}
	if cp.Title == "" {
		cp.Title = conversation.DefaultTitle
	}
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	conversation.EnsureMessageIDs(cp.Messages)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[cp.ID]; exists {
		return nil, fmt.Errorf("conversation: %q already exists", cp.ID)
	}
	s.data[cp.ID] = cp
	return cp.Clone(), nil
}

func (s *Store) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) List(ctx context.Context, limit int) ([]conversation.Summary, error) {
	_ = ctx
	s.mu.RLock()
	out := make([]conversation.Summary, 0, len(s.data))
	for _, c := range s.data {
		out = append(out, c.Summarize())
	}
	s.mu.RUnlock()
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
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return conversation.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

func (s *Store) Rename(ctx context.Context, id, title string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[id]
	if !ok {
		return conversation.ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) AppendMessages(ctx context.Context, id string, msgs ...model.Message) ([]model.Message, error) {
	_ = ctx
	stored := model.CloneMessages(msgs)
	conversation.EnsureMessageIDs(stored)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	c.Messages = append(c.Messages, stored...)
	c.UpdatedAt = s.now()
	return model.CloneMessages(stored), nil
}

func (s *Store) UpdateMessage(ctx context.Context, id string, msg model.Message) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[id]
	if !ok {
		return conversation.ErrNotFound
	}
	for i := range c.Messages {
		if c.Messages[i].ID == msg.ID {
			c.Messages[i] = msg.Clone()
			c.UpdatedAt = s.now()
			return nil
		}
	}
	return conversation.ErrMessageNotFound
}
