package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "wisdom.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_CreateGetAppend(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	c, err := store.Create(ctx, conversation.Welcome("tutor"))
	if err != nil {
		t.Fatal(err)
	}
	stored, err := store.AppendMessages(ctx, c.ID,
		model.Message{Role: model.RoleUser, Parts: []model.ContentPart{model.TextPart("look"), model.ImagePart("data:image/png;base64,AA==")}},
		model.Message{Role: model.RoleAssistant},
	)
	if err != nil {
		t.Fatal(err)
	}
	if stored[0].ID == "" || stored[1].ID == "" {
		t.Fatalf("expected ids to be assigned: %+v", stored)
	}
	stored[1].Text = "an image of a cell"
	if err := store.UpdateMessage(ctx, c.ID, stored[1]); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Text != conversation.WelcomeMessage {
		t.Fatalf("unexpected first message %+v", got.Messages[0])
	}
	if got.Messages[1].Parts[1].ImageURL == nil || got.Messages[2].Text != "an image of a cell" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if err := store.UpdateMessage(ctx, c.ID, model.Message{ID: "nope"}); !errors.Is(err, conversation.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestStore_ListOrdersByActivity(t *testing.T) {
	store := openStore(t)
	base := time.UnixMilli(1_700_000_000_000)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()
	a, _ := store.Create(ctx, conversation.New("a", ""))
	if _, err := store.Create(ctx, conversation.New("b", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendMessages(ctx, a.ID, model.Message{Role: model.RoleUser, Text: "  newest question "}); err != nil {
		t.Fatal(err)
	}
	list, err := store.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != a.ID {
		t.Fatalf("unexpected order %+v", list)
	}
	if list[0].MessageCount != 1 || list[0].LastUserMessage != "newest question" {
		t.Fatalf("unexpected summary %+v", list[0])
	}
}

func TestStore_DeleteCascades(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	c, _ := store.Create(ctx, conversation.Welcome(""))
	if err := store.Delete(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, c.ID); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var n int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected messages to be deleted, %d remain", n)
	}
	if err := store.Delete(ctx, c.ID); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := store.Rename(ctx, c.ID, "x"); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on rename, got %v", err)
	}
}
