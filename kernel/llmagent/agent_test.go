package llmagent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool/builtin/flashcards"
)

type countingTool struct {
	name  string
	calls int
	args  []string
}

func (t *countingTool) Name() string        { return t.name }
func (t *countingTool) Description() string { return t.name }
func (t *countingTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{Name: t.name, Description: t.name, Parameters: map[string]any{"type": "object"}}
}
func (t *countingTool) Run(_ context.Context, arguments string) (*tool.Result, error) {
	t.calls++
	t.args = append(t.args, arguments)
	return tool.TextResult("ran "+t.name, "output of "+t.name), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAgent(t *testing.T, llm model.LLM, tools ...tool.Tool) *Agent {
	t.Helper()
	reg, err := tool.NewRegistry(tool.RegistryConfig{Logger: quietLogger()}, tools...)
	if err != nil {
		t.Fatal(err)
	}
	ag, err := New(Config{Name: "test", Model: llm, Tools: reg, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	return ag
}

type recorder struct {
	chunks  []string
	usages  []model.Usage
	results []model.ContentPart
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnChunk:      func(s string) { r.chunks = append(r.chunks, s) },
		OnUsage:      func(u model.Usage) { r.usages = append(r.usages, u) },
		OnToolResult: func(p model.ContentPart) { r.results = append(r.results, p) },
	}
}

func userTurn(text string) []model.Message {
	return []model.Message{{Role: model.RoleUser, Text: text}}
}

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without model")
	}
}

func TestStreamCompletion_TextOnly(t *testing.T) {
	llm := newTestLLM(
		textChunk("Hel"),
		textChunk("lo, "),
		textChunk("world"),
		&model.Chunk{FinishReason: model.FinishStop, Usage: &model.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8}},
	)
	ag := newTestAgent(t, llm)
	var rec recorder
	res, err := ag.StreamCompletion(context.Background(), userTurn("hi"), rec.callbacks())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(rec.chunks, ""); got != "Hello, world" || res.Text != got {
		t.Fatalf("unexpected text %q / %q", got, res.Text)
	}
	if len(rec.chunks) != 3 {
		t.Fatalf("expected 3 chunks in order, got %v", rec.chunks)
	}
	if len(res.Messages) != 1 || res.Messages[0].Text != "Hello, world" {
		t.Fatalf("unexpected messages %+v", res.Messages)
	}
	if len(rec.usages) != 1 || rec.usages[0].TotalTokens != 8 {
		t.Fatalf("expected usage once, got %+v", rec.usages)
	}
	if len(llm.Requests()) != 1 {
		t.Fatalf("expected no second pass, got %d requests", len(llm.Requests()))
	}
}

func TestStreamCompletion_UsageReportedOnceWithLatestRecord(t *testing.T) {
	llm := newTestLLM(
		&model.Chunk{Content: "a", Usage: &model.Usage{TotalTokens: 1}},
		&model.Chunk{Content: "b", Usage: &model.Usage{TotalTokens: 9}},
	)
	ag := newTestAgent(t, llm)
	var rec recorder
	if _, err := ag.StreamCompletion(context.Background(), userTurn("hi"), rec.callbacks()); err != nil {
		t.Fatal(err)
	}
	if len(rec.usages) != 1 || rec.usages[0].TotalTokens != 9 {
		t.Fatalf("unexpected usages %+v", rec.usages)
	}
}

func TestStreamCompletion_FlashcardAcrossChunks(t *testing.T) {
	llm := newTestLLM(
		toolDelta(0, "call_a", "create_flashcard", `{"question":"Wha`),
		toolDelta(0, "", "", `t is 2+2?","answer":"`),
		toolDelta(0, "", "", `4"}`),
		finish(model.FinishToolCalls),
	)
	llm.complete = func(req *model.Request) (*model.Response, error) {
		if len(req.Tools) != 0 {
			t.Errorf("second pass must not advertise tools, got %d", len(req.Tools))
		}
		return &model.Response{Message: model.Message{Role: model.RoleAssistant, Text: "Try it out!"}}, nil
	}
	ag := newTestAgent(t, llm, flashcards.Tools()...)
	var states []State
	ag.cfg.OnState = func(s State) { states = append(states, s) }

	var rec recorder
	res, err := ag.StreamCompletion(context.Background(), userTurn("make a card"), rec.callbacks())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.results) != 1 || rec.results[0].Type != model.PartFlashcard {
		t.Fatalf("expected one flashcard part, got %+v", rec.results)
	}
	card := rec.results[0].Flashcard
	if card == nil || card.Question != "What is 2+2?" || card.Answer != "4" {
		t.Fatalf("unexpected card %+v", card)
	}
	if !strings.Contains(res.Text, "I've created a flashcard for you.") {
		t.Fatalf("expected summary in visible text, got %q", res.Text)
	}
	if !strings.HasSuffix(res.Text, "Try it out!") {
		t.Fatalf("expected second pass text at the end, got %q", res.Text)
	}
	if len(res.Outcomes) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(res.Outcomes))
	}

	reqs := llm.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected stream plus second pass, got %d requests", len(reqs))
	}
	if reqs[0].ToolChoice != model.ToolChoiceAuto || len(reqs[0].Tools) == 0 {
		t.Fatalf("first pass should advertise tools: %+v", reqs[0])
	}
	second := reqs[1].Messages
	if len(second) != 3 {
		t.Fatalf("expected user, assistant, tool messages; got %d", len(second))
	}
	if second[1].Role != model.RoleAssistant || len(second[1].ToolCalls) != 1 || second[1].ToolCalls[0].ID != "call_a" {
		t.Fatalf("unexpected assistant message %+v", second[1])
	}
	if second[2].Role != model.RoleTool || second[2].ToolCallID != "call_a" || second[2].Name != "create_flashcard" {
		t.Fatalf("unexpected tool message %+v", second[2])
	}
	if len(res.Messages) != 3 || res.Messages[2].Text != "Try it out!" {
		t.Fatalf("unexpected result messages %+v", res.Messages)
	}
	want := []State{StateStreaming, StateToolCallPending, StateStreaming, StateFinalizing, StateDone}
	if len(states) != len(want) {
		t.Fatalf("unexpected states %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d: got %v want %v", i, states[i], want[i])
		}
	}
}

func TestStreamCompletion_DispatchesAtMostOnce(t *testing.T) {
	echo := &countingTool{name: "echo"}
	llm := newTestLLM(
		toolDelta(0, "c1", "echo", `{"text":"hi"}`),
		toolDelta(1, "c2", "echo", `{"text":`),
		toolDelta(1, "", "", `"there"}`),
		finish(model.FinishToolCalls),
	)
	ag := newTestAgent(t, llm, echo)
	res, err := ag.StreamCompletion(context.Background(), userTurn("go"), Callbacks{})
	if err != nil {
		t.Fatal(err)
	}
	if echo.calls != 2 {
		t.Fatalf("expected 2 dispatches, got %d", echo.calls)
	}
	if echo.args[0] != `{"text":"hi"}` || echo.args[1] != `{"text":"there"}` {
		t.Fatalf("unexpected arguments %q", echo.args)
	}
	if len(res.Outcomes) != 2 || res.Outcomes[0].Call.ID != "c1" || res.Outcomes[1].Call.ID != "c2" {
		t.Fatalf("unexpected outcomes %+v", res.Outcomes)
	}
	tools := llm.Requests()[1].Messages[2:]
	if len(tools) != 2 || tools[0].Text != "output of echo" || tools[1].ToolCallID != "c2" {
		t.Fatalf("unexpected tool messages %+v", tools)
	}
}

func TestStreamCompletion_SecondPassSendsDispatchedArguments(t *testing.T) {
	echo := &countingTool{name: "echo"}
	llm := newTestLLM(
		toolDelta(0, "c1", "echo", `{"text":"hi"}`),
		toolDelta(0, "", "", "  \n"),
		finish(model.FinishToolCalls),
	)
	ag := newTestAgent(t, llm, echo)
	if _, err := ag.StreamCompletion(context.Background(), userTurn("go"), Callbacks{}); err != nil {
		t.Fatal(err)
	}
	if echo.calls != 1 || echo.args[0] != `{"text":"hi"}` {
		t.Fatalf("unexpected dispatches %q", echo.args)
	}
	assistant := llm.Requests()[1].Messages[1]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Arguments != `{"text":"hi"}` {
		t.Fatalf("second pass must replay the dispatched arguments, got %+v", assistant.ToolCalls)
	}
}

func TestStreamCompletion_NameBeforeIDDispatchesOnce(t *testing.T) {
	echo := &countingTool{name: "echo"}
	llm := newTestLLM(
		toolDelta(0, "", "echo", `{"text":`),
		toolDelta(0, "c9", "", `"hi"}`),
		finish(model.FinishToolCalls),
	)
	ag := newTestAgent(t, llm, echo)
	res, err := ag.StreamCompletion(context.Background(), userTurn("go"), Callbacks{})
	if err != nil {
		t.Fatal(err)
	}
	if echo.calls != 1 || echo.args[0] != `{"text":"hi"}` {
		t.Fatalf("unexpected dispatches %q", echo.args)
	}
	if len(res.Outcomes) != 1 || res.Outcomes[0].Call.ID != "c9" || res.Outcomes[0].Result.Failed() {
		t.Fatalf("unexpected outcomes %+v", res.Outcomes)
	}
}

func TestStreamCompletion_DispatchesOpenCallAtEndOfStream(t *testing.T) {
	echo := &countingTool{name: "echo"}
	// No finish reason and arguments that never parse.
	llm := newTestLLM(toolDelta(0, "", "echo", `{"text":"unterminated`))
	ag := newTestAgent(t, llm, echo)
	res, err := ag.StreamCompletion(context.Background(), userTurn("go"), Callbacks{})
	if err != nil {
		t.Fatal(err)
	}
	if echo.calls != 0 {
		t.Fatalf("invalid JSON must not reach the handler, got %d calls", echo.calls)
	}
	if len(res.Outcomes) != 1 || !res.Outcomes[0].Result.Failed() {
		t.Fatalf("expected one failed outcome, got %+v", res.Outcomes)
	}
	if res.Outcomes[0].Call.ID != "call_0" {
		t.Fatalf("expected synthesized id, got %q", res.Outcomes[0].Call.ID)
	}
}

func TestStreamCompletion_InvalidMCQReachesModel(t *testing.T) {
	args := `{"question":"Pick","options":[{"id":"a","text":"A"},{"id":"b","text":"B"}],"correctOptionId":"c"}`
	llm := newTestLLM(
		toolDelta(0, "m1", "create_mcq", args),
		finish(model.FinishToolCalls),
	)
	ag := newTestAgent(t, llm, flashcards.Tools()...)
	var rec recorder
	res, err := ag.StreamCompletion(context.Background(), userTurn("quiz me"), rec.callbacks())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.results) != 0 {
		t.Fatalf("failed tool must not produce UI content, got %+v", rec.results)
	}
	if len(res.Outcomes) != 1 || !res.Outcomes[0].Result.Failed() {
		t.Fatalf("expected failed outcome, got %+v", res.Outcomes)
	}
	toolMsg := llm.Requests()[1].Messages[2]
	if !strings.Contains(toolMsg.Text, "correctOptionId") {
		t.Fatalf("expected tool message to report the invalid reference, got %q", toolMsg.Text)
	}
}

func TestStreamCompletion_UnknownToolGetsToolMessage(t *testing.T) {
	llm := newTestLLM(
		toolDelta(0, "x1", "teleport", `{}`),
		finish(model.FinishToolCalls),
	)
	ag := newTestAgent(t, llm)
	res, err := ag.StreamCompletion(context.Background(), userTurn("go"), Callbacks{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcomes[0].Result != nil {
		t.Fatalf("expected nil result for unknown tool")
	}
	toolMsg := llm.Requests()[1].Messages[2]
	if toolMsg.Text != "unknown tool teleport" {
		t.Fatalf("unexpected tool message %q", toolMsg.Text)
	}
}

func TestStreamCompletion_CancelMidStream(t *testing.T) {
	echo := &countingTool{name: "echo"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	llm := newTestLLM(
		textChunk("one "),
		textChunk("two "),
		toolDelta(0, "c1", "echo", `{"text":`),
		textChunk("three"),
	)
	llm.beforeChunk = func(i int) {
		if i == 2 {
			cancel()
		}
	}
	ag := newTestAgent(t, llm, echo)
	var rec recorder
	res, err := ag.StreamCompletion(ctx, userTurn("go"), rec.callbacks())
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
	if len(rec.chunks) != 2 {
		t.Fatalf("expected exactly 2 chunks, got %v", rec.chunks)
	}
	if echo.calls != 0 || len(rec.usages) != 0 {
		t.Fatalf("no dispatch or usage expected after cancel: calls=%d usages=%v", echo.calls, rec.usages)
	}

	// Cancelling again after the cycle settled is a no-op.
	cancel()
	if len(rec.chunks) != 2 {
		t.Fatal("callbacks fired after cancellation")
	}
}

func TestStreamCompletion_CancelDuringToolSkipsSecondPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slow, err := tool.NewFunction[struct{}]("slow", "cancels", func(context.Context, struct{}) (*tool.Result, error) {
		cancel()
		return tool.TextResult("finished", ""), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	llm := newTestLLM(toolDelta(0, "s1", "slow", `{}`), finish(model.FinishToolCalls))
	ag := newTestAgent(t, llm, slow)
	var rec recorder
	if _, err := ag.StreamCompletion(ctx, userTurn("go"), rec.callbacks()); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if len(rec.chunks) != 0 {
		t.Fatalf("expected no visible text after cancel, got %v", rec.chunks)
	}
	if len(llm.Requests()) != 1 {
		t.Fatalf("second pass should not run, got %d requests", len(llm.Requests()))
	}
}

func TestStreamCompletion_EmptySecondPass(t *testing.T) {
	echo := &countingTool{name: "echo"}
	llm := newTestLLM(toolDelta(0, "c1", "echo", `{}`), finish(model.FinishToolCalls))
	llm.complete = func(*model.Request) (*model.Response, error) {
		return &model.Response{Message: model.Message{Role: model.RoleAssistant, Text: "  "}, Usage: model.Usage{TotalTokens: 4}}, nil
	}
	ag := newTestAgent(t, llm, echo)
	var rec recorder
	res, err := ag.StreamCompletion(context.Background(), userTurn("go"), rec.callbacks())
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "ran echo" {
		t.Fatalf("expected only the summary, got %q", res.Text)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("expected assistant and tool messages only, got %+v", res.Messages)
	}
	if len(rec.usages) != 1 || rec.usages[0].TotalTokens != 4 {
		t.Fatalf("unexpected usages %+v", rec.usages)
	}
}

func TestStreamCompletion_TransportErrorIsUnavailable(t *testing.T) {
	cause := errors.New("status 502")
	llm := newTestLLM(textChunk("partial"))
	llm.streamErr = cause
	ag := newTestAgent(t, llm)
	_, err := ag.StreamCompletion(context.Background(), userTurn("go"), Callbacks{})
	if !errors.Is(err, ErrCompletionUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrCompletionUnavailable wrapping cause, got %v", err)
	}
	if errors.Is(err, ErrCanceled) {
		t.Fatal("transport failure must not look like cancellation")
	}
}

func TestStreamCompletion_SecondPassFailure(t *testing.T) {
	echo := &countingTool{name: "echo"}
	llm := newTestLLM(toolDelta(0, "c1", "echo", `{}`), finish(model.FinishToolCalls))
	llm.complete = func(*model.Request) (*model.Response, error) {
		return nil, errors.New("boom")
	}
	ag := newTestAgent(t, llm, echo)
	if _, err := ag.StreamCompletion(context.Background(), userTurn("go"), Callbacks{}); !errors.Is(err, ErrCompletionUnavailable) {
		t.Fatalf("expected ErrCompletionUnavailable, got %v", err)
	}
}

func TestStreamCompletion_SystemPromptNormalized(t *testing.T) {
	llm := newTestLLM(textChunk("ok"))
	ag, err := New(Config{Model: llm, SystemPrompt: "be a tutor", Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	history := []model.Message{
		{Role: model.RoleSystem, Text: "old"},
		{Role: model.RoleUser, Text: "hi"},
	}
	if _, err := ag.StreamCompletion(context.Background(), history, Callbacks{}); err != nil {
		t.Fatal(err)
	}
	sent := llm.Requests()[0].Messages
	if len(sent) != 2 || sent[0].Text != "be a tutor" {
		t.Fatalf("unexpected request history %+v", sent)
	}
	if history[0].Text != "old" {
		t.Fatal("input history was mutated")
	}
}

func TestStreamCompletion_RejectsMisplacedSystemMessage(t *testing.T) {
	ag := newTestAgent(t, newTestLLM())
	history := []model.Message{
		{Role: model.RoleUser, Text: "hi"},
		{Role: model.RoleSystem, Text: "late"},
	}
	if _, err := ag.StreamCompletion(context.Background(), history, Callbacks{}); !errors.Is(err, model.ErrSystemMessageOrder) {
		t.Fatalf("expected ErrSystemMessageOrder, got %v", err)
	}
}
