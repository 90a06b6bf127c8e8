// Package conversation defines persisted chat threads and the Store
// contract the runtime writes them through.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("conversation: not found")
	ErrMessageNotFound = errors.New("conversation: message not found")
)

const (
	DefaultTitle    = "New Chat"
	WelcomeTitle    = "Welcome to WisdomCore"
	WelcomeMessage  = "Hello! I'm WisdomCore, your AI knowledge companion. I'm here to help you explore any topic, answer your questions, and engage in meaningful discussions. What would you like to learn about today?"
	maxDerivedTitle = 48
)

// Conversation is one chat thread. Messages never contain a system message;
// SystemPrompt is prepended when a request is built.
type Conversation struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	SystemPrompt string          `json:"system_prompt"`
	Messages     []model.Message `json:"messages"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Summary is the listing view of a conversation.
type Summary struct {
	ID              string
	Title           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	MessageCount    int
	LastUserMessage string
}

// Store persists conversations. Implementations return deep copies; callers
// never share memory with the store.
type Store interface {
	Create(context.Context, *Conversation) (*Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context, limit int) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, title string) error
	// AppendMessages assigns ids to messages that have none and returns the
	// stored copies.
	AppendMessages(ctx context.Context, id string, msgs ...model.Message) ([]model.Message, error)
	// UpdateMessage replaces the message with msg.ID.
	UpdateMessage(ctx context.Context, id string, msg model.Message) error
}

// New returns an empty conversation with a fresh id.
func New(title, systemPrompt string) *Conversation {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := time.Now()
	return &Conversation{
		ID:           uuid.NewString(),
		Title:        title,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Welcome returns the first-run conversation with its greeting.
func Welcome(systemPrompt string) *Conversation {
	c := New(WelcomeTitle, systemPrompt)
	c.Messages = []model.Message{{
		ID:   uuid.NewString(),
		Role: model.RoleAssistant,
		Text: WelcomeMessage,
	}}
	return c
}

// Clone deep copies c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = model.CloneMessages(c.Messages)
	return &out
}

// Summarize builds the listing view of c.
func (c *Conversation) Summarize() Summary {
	s := Summary{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == model.RoleUser {
			s.LastUserMessage = strings.TrimSpace(c.Messages[i].PlainText())
			break
		}
	}
	return s
}

// DeriveTitle builds a title from the first line of a user message.
func DeriveTitle(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(line) <= maxDerivedTitle {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:maxDerivedTitle-1])) + "…"
}

// EnsureMessageIDs fills empty message ids in place.
func EnsureMessageIDs(msgs []model.Message) {
	for i := range msgs {
		if msgs[i].ID == "" {
			msgs[i].ID = uuid.NewString()
		}
	}
}

// ValidateID rejects blank ids.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("conversation: id is required")
	}
	return nil
}
