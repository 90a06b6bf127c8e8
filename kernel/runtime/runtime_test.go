package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation/inmemory"
	"github.com/FireFreezer630/Wisdom-Core/kernel/llmagent"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// fakeCompleter streams chunks, then returns messages. When block is set it
// waits for cancellation after the chunks.
type fakeCompleter struct {
	chunks   []string
	messages []model.Message
	block    bool
	started  chan struct{}
	seen     [][]model.Message
}

func (f *fakeCompleter) StreamCompletion(ctx context.Context, messages []model.Message, cb llmagent.Callbacks) (*llmagent.Result, error) {
	f.seen = append(f.seen, model.CloneMessages(messages))
	text := ""
	for _, c := range f.chunks {
		text += c
		if cb.OnChunk != nil {
			cb.OnChunk(c)
		}
	}
	if f.started != nil {
		close(f.started)
	}
	if f.block {
		<-ctx.Done()
		return nil, model.Canceled(ctx.Err())
	}
	msgs := f.messages
	if msgs == nil {
		msgs = []model.Message{{Role: model.RoleAssistant, Text: text}}
	}
	return &llmagent.Result{Messages: msgs, Text: text, Usage: model.Usage{TotalTokens: 7}}, nil
}

func newTestRuntime(t *testing.T, agent Completer, policy ConflictPolicy) (*Runtime, *inmemory.Store) {
	t.Helper()
	store := inmemory.New()
	rt, err := New(Config{
		Store:         store,
		Agent:         agent,
		SystemPrompt:  "you are a tutor",
		Conflict:      policy,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		FlushInterval: -1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return rt, store
}

func TestNew_Validates(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New(Config{Store: inmemory.New()}); err == nil {
		t.Fatal("expected error without agent")
	}
}

func TestSend_PersistsReplyAndBuildsHistory(t *testing.T) {
	agent := &fakeCompleter{chunks: []string{"Photo", "synthesis"}}
	rt, store := newTestRuntime(t, agent, ConflictReject)
	ctx := context.Background()
	conv, err := rt.Resume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Title != conversation.WelcomeTitle {
		t.Fatalf("expected welcome conversation on first run, got %q", conv.Title)
	}

	var chunks []string
	res, err := rt.Send(ctx, SendRequest{
		ConversationID: conv.ID,
		Text:           "what is photosynthesis?",
		Callbacks:      llmagent.Callbacks{OnChunk: func(s string) { chunks = append(chunks, s) }},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "Photosynthesis" || len(chunks) != 2 || res.Usage.TotalTokens != 7 {
		t.Fatalf("unexpected result %+v chunks=%v", res, chunks)
	}

	sent := agent.seen[0]
	if len(sent) != 3 || sent[0].Role != model.RoleSystem || sent[0].Text != "you are a tutor" {
		t.Fatalf("unexpected request history %+v", sent)
	}
	if sent[1].Text != conversation.WelcomeMessage || sent[2].Text != "what is photosynthesis?" {
		t.Fatalf("unexpected request history %+v", sent)
	}

	stored, _ := store.Get(ctx, conv.ID)
	if len(stored.Messages) != 3 {
		t.Fatalf("expected welcome, user, reply; got %+v", stored.Messages)
	}
	if stored.Messages[2].Text != "Photosynthesis" || stored.Messages[2].ID != res.Messages[0].ID {
		t.Fatalf("placeholder not finalized: %+v", stored.Messages[2])
	}
	if rt.Active(conv.ID) {
		t.Fatal("lease not released")
	}
}

func TestSend_RenamesNewConversation(t *testing.T) {
	rt, store := newTestRuntime(t, &fakeCompleter{chunks: []string{"ok"}}, ConflictReject)
	ctx := context.Background()
	conv, err := rt.NewConversation(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "Explain mitosis\nplease"}); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, conv.ID)
	if got.Title != "Explain mitosis" {
		t.Fatalf("unexpected title %q", got.Title)
	}
}

func TestSend_ToolTurnPersistsAllMessages(t *testing.T) {
	agent := &fakeCompleter{
		chunks: []string{"Sure."},
		messages: []model.Message{
			{Role: model.RoleAssistant, Text: "Sure.", ToolCalls: []model.ToolCall{{ID: "c1", Name: "create_flashcard", Arguments: "{}"}}},
			{Role: model.RoleTool, ToolCallID: "c1", Name: "create_flashcard", Text: "I've created a flashcard for you."},
			{Role: model.RoleAssistant, Text: "Here it is."},
		},
	}
	rt, store := newTestRuntime(t, agent, ConflictReject)
	ctx := context.Background()
	conv, _ := rt.NewConversation(ctx, "cards")
	res, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "card please"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Messages) != 3 {
		t.Fatalf("expected 3 persisted messages, got %d", len(res.Messages))
	}
	got, _ := store.Get(ctx, conv.ID)
	if len(got.Messages) != 4 || len(got.Messages[1].ToolCalls) != 1 || got.Messages[2].Role != model.RoleTool {
		t.Fatalf("unexpected stored messages %+v", got.Messages)
	}
}

func TestSend_ImagesBecomeParts(t *testing.T) {
	agent := &fakeCompleter{chunks: []string{"a leaf"}}
	rt, _ := newTestRuntime(t, agent, ConflictReject)
	ctx := context.Background()
	conv, _ := rt.NewConversation(ctx, "img")
	if _, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "what is this", Images: []string{"data:image/png;base64,AA=="}}); err != nil {
		t.Fatal(err)
	}
	user := agent.seen[0][1]
	if len(user.Parts) != 2 || user.Parts[1].Type != model.PartImageURL {
		t.Fatalf("unexpected user message %+v", user)
	}
}

func TestSend_RejectsEmptyMessage(t *testing.T) {
	rt, _ := newTestRuntime(t, &fakeCompleter{}, ConflictReject)
	if _, err := rt.Send(context.Background(), SendRequest{ConversationID: "x", Text: "  "}); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestSend_CancelKeepsPartialText(t *testing.T) {
	agent := &fakeCompleter{chunks: []string{"half an ", "answer"}, block: true, started: make(chan struct{})}
	rt, store := newTestRuntime(t, agent, ConflictReject)
	ctx := context.Background()
	conv, _ := rt.NewConversation(ctx, "c")

	errCh := make(chan error, 1)
	go func() {
		_, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "q"})
		errCh <- err
	}()
	<-agent.started
	if !rt.Cancel(conv.ID) {
		t.Fatal("expected an active send to cancel")
	}
	err := <-errCh
	if !errors.Is(err, llmagent.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if rt.Cancel(conv.ID) {
		t.Fatal("cancel after completion should be a no-op")
	}
	got, _ := store.Get(ctx, conv.ID)
	last := got.Messages[len(got.Messages)-1]
	if last.Role != model.RoleAssistant || last.Text != "half an answer" {
		t.Fatalf("partial reply not kept: %+v", last)
	}
}

func TestSend_RejectsConcurrentSend(t *testing.T) {
	agent := &fakeCompleter{block: true, started: make(chan struct{})}
	rt, _ := newTestRuntime(t, agent, ConflictReject)
	ctx := context.Background()
	conv, _ := rt.NewConversation(ctx, "c")

	errCh := make(chan error, 1)
	go func() {
		_, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "first"})
		errCh <- err
	}()
	<-agent.started
	_, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "second"})
	if !IsConversationBusy(err) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if err := rt.DeleteConversation(ctx, conv.ID); !IsConversationBusy(err) {
		t.Fatalf("expected delete to be refused while busy, got %v", err)
	}
	rt.Cancel(conv.ID)
	<-errCh
}

// switchingCompleter blocks on the first call and answers the second.
type switchingCompleter struct {
	started chan struct{}
	calls   int
}

func (s *switchingCompleter) StreamCompletion(ctx context.Context, _ []model.Message, cb llmagent.Callbacks) (*llmagent.Result, error) {
	s.calls++
	if s.calls == 1 {
		close(s.started)
		<-ctx.Done()
		return nil, model.Canceled(ctx.Err())
	}
	return &llmagent.Result{Messages: []model.Message{{Role: model.RoleAssistant, Text: "second"}}, Text: "second"}, nil
}

func TestSend_ReplaceCancelsRunningSend(t *testing.T) {
	agent := &switchingCompleter{started: make(chan struct{})}
	rt, _ := newTestRuntime(t, agent, ConflictReplace)
	ctx := context.Background()
	conv, _ := rt.NewConversation(ctx, "c")

	errCh := make(chan error, 1)
	go func() {
		_, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "first"})
		errCh <- err
	}()
	<-agent.started
	res, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "second" {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, llmagent.ErrCanceled) {
			t.Fatalf("expected first send to be canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first send did not finish")
	}
}

func TestSend_RecoversDanglingToolCall(t *testing.T) {
	agent := &fakeCompleter{chunks: []string{"ok"}}
	rt, store := newTestRuntime(t, agent, ConflictReject)
	ctx := context.Background()
	conv := conversation.New("c", "")
	conv.Messages = []model.Message{
		{Role: model.RoleUser, Text: "card"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "c9", Name: "create_flashcard"}}},
	}
	if _, err := store.Create(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "again"}); err != nil {
		t.Fatal(err)
	}
	sent := agent.seen[0]
	if len(sent) != 5 || sent[3].Role != model.RoleTool || sent[3].ToolCallID != "c9" {
		t.Fatalf("expected synthesized tool answer before the new turn: %+v", sent)
	}
	got, _ := store.Get(ctx, conv.ID)
	if got.Messages[2].Role != model.RoleTool || got.Messages[2].Text != InterruptedToolOutput {
		t.Fatalf("expected recovery to be persisted: %+v", got.Messages)
	}
}

func TestSend_SkipsEmptyPlaceholdersInHistory(t *testing.T) {
	agent := &fakeCompleter{chunks: []string{"ok"}}
	rt, store := newTestRuntime(t, agent, ConflictReject)
	ctx := context.Background()
	conv := conversation.New("c", "custom prompt")
	conv.Messages = []model.Message{
		{Role: model.RoleUser, Text: "first"},
		{Role: model.RoleAssistant},
	}
	if _, err := store.Create(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Send(ctx, SendRequest{ConversationID: conv.ID, Text: "second"}); err != nil {
		t.Fatal(err)
	}
	sent := agent.seen[0]
	if len(sent) != 3 || sent[0].Text != "custom prompt" || sent[2].Text != "second" {
		t.Fatalf("unexpected history %+v", sent)
	}
}
