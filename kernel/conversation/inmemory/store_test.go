package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

func TestStore_CreateAppendUpdate(t *testing.T) {
	store := New()
	ctx := context.Background()
	c, err := store.Create(ctx, conversation.Welcome("tutor"))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Messages) != 1 || c.Messages[0].ID == "" {
		t.Fatalf("expected welcome message with id, got %+v", c.Messages)
	}
	stored, err := store.AppendMessages(ctx, c.ID,
		model.Message{Role: model.RoleUser, Text: "hi"},
		model.Message{Role: model.RoleAssistant},
	)
	if err != nil {
		t.Fatal(err)
	}
	placeholder := stored[1]
	placeholder.Text = "hello there"
	if err := store.UpdateMessage(ctx, c.ID, placeholder); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 3 || got.Messages[2].Text != "hello there" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if err := store.UpdateMessage(ctx, c.ID, model.Message{ID: "missing"}); !errors.Is(err, conversation.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestStore_GetReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	c, err := store.Create(ctx, conversation.Welcome(""))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, c.ID)
	got.Messages[0].Text = "mutated"
	again, _ := store.Get(ctx, c.ID)
	if again.Messages[0].Text != conversation.WelcomeMessage {
		t.Fatal("store shares memory with callers")
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := New()
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()
	a, _ := store.Create(ctx, conversation.New("a", ""))
	b, _ := store.Create(ctx, conversation.New("b", ""))
	if _, err := store.AppendMessages(ctx, a.ID, model.Message{Role: model.RoleUser, Text: "latest"}); err != nil {
		t.Fatal(err)
	}
	list, err := store.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected order %+v", list)
	}
	if list[0].LastUserMessage != "latest" {
		t.Fatalf("unexpected last user message %q", list[0].LastUserMessage)
	}
	if err := store.Delete(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, b.ID); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
