// Package llmagent drives one streamed chat completion: it relays text
// deltas, assembles tool calls, dispatches each completed call once and runs
// the follow-up completion that answers after the tools.
package llmagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
)

var (
	// ErrCanceled is returned when the caller cancels a cycle. It is the same
	// value as model.ErrCanceled.
	ErrCanceled = model.ErrCanceled
	// ErrCompletionUnavailable wraps transport and decode failures of either
	// completion pass.
	ErrCompletionUnavailable = errors.New("llmagent: could not reach completion service")
)

// Dispatcher runs tool calls by name. *tool.Registry implements it.
type Dispatcher interface {
	Declarations() []model.ToolDefinition
	Dispatch(ctx context.Context, name, arguments string) *tool.Result
}

// Config controls behavior of Agent.
type Config struct {
	Name  string
	Model model.LLM
	// Tools may be nil, in which case no tools are advertised.
	Tools Dispatcher
	// SystemPrompt, when set, replaces every system message of the input
	// history.
	SystemPrompt string
	Logger       *slog.Logger
	// OnState observes phase transitions of every cycle.
	OnState func(State)
}

// Callbacks receive the side channels of one cycle. Any of them may be nil.
type Callbacks struct {
	// OnChunk receives visible text in order: model deltas, tool summaries
	// and the follow-up answer.
	OnChunk func(text string)
	// OnUsage is called at most once, after the cycle's completions end.
	OnUsage func(model.Usage)
	// OnToolResult receives the structured payload of each dispatched tool.
	OnToolResult func(model.ContentPart)
}

// ToolOutcome pairs a dispatched call with its result. Result is nil for
// unknown tools.
type ToolOutcome struct {
	Call   model.ToolCall
	Result *tool.Result
}

// Result is the outcome of a completed cycle.
type Result struct {
	// Messages are the new history entries: a plain assistant reply, or the
	// assistant tool-call message, its tool messages and the final answer.
	Messages []model.Message
	// Text is the concatenation of everything delivered through OnChunk.
	Text     string
	Usage    model.Usage
	Outcomes []ToolOutcome
}

// Agent runs completion cycles. It holds no per-cycle state and is safe for
// concurrent use.
type Agent struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("llmagent: model is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model.Name()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{cfg: cfg, logger: logger.With("agent", cfg.Name)}, nil
}

func (a *Agent) Name() string {
	return a.cfg.Name
}

// StreamCompletion runs one cycle over messages. On cancellation it returns
// an error matching ErrCanceled and stops delivering callbacks.
func (a *Agent) StreamCompletion(ctx context.Context, messages []model.Message, cb Callbacks) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	history := model.CloneMessages(messages)
	if a.cfg.SystemPrompt != "" {
		history = model.NormalizeHistory(history, a.cfg.SystemPrompt)
	}
	if err := model.ValidateHistory(history); err != nil {
		return nil, fmt.Errorf("llmagent: %w", err)
	}
	c := &cycle{
		agent:   a,
		ctx:     ctx,
		cb:      cb,
		history: history,
		acc:     newAccumulator(),
		logger:  a.logger,
	}
	return c.run()
}

// cycle is the state of one StreamCompletion call.
type cycle struct {
	agent   *Agent
	ctx     context.Context
	cb      Callbacks
	history []model.Message
	acc     *accumulator
	logger  *slog.Logger

	state     State
	modelText strings.Builder
	visible   strings.Builder
	usage     *model.Usage
	outcomes  []ToolOutcome
}

func (c *cycle) run() (*Result, error) {
	c.setState(StateStreaming)
	req := &model.Request{
		Messages: c.history,
		Stream:   true,
	}
	if c.agent.cfg.Tools != nil {
		req.Tools = c.agent.cfg.Tools.Declarations()
		if len(req.Tools) > 0 {
			req.ToolChoice = model.ToolChoiceAuto
		}
	}

	for chunk, err := range c.agent.cfg.Model.Stream(c.ctx, req) {
		if err != nil {
			return nil, c.completionError(err)
		}
		if c.ctx.Err() != nil {
			return nil, model.Canceled(c.ctx.Err())
		}
		if chunk == nil {
			continue
		}
		if chunk.Content != "" {
			c.modelText.WriteString(chunk.Content)
			c.emitText(chunk.Content)
		}
		for _, delta := range chunk.ToolCalls {
			entry := c.acc.merge(delta)
			if entry.processed && strings.TrimSpace(delta.Arguments) != "" {
				c.logger.Debug("argument delta after dispatch ignored", "call_id", entry.id, "tool", entry.name)
			}
		}
		if chunk.Usage != nil {
			u := *chunk.Usage
			c.usage = &u
		}
		if model.IsToolFinish(chunk.FinishReason) {
			c.acc.markFinished()
		}
		for _, entry := range c.acc.ready() {
			trigger := "complete_json"
			if entry.finished {
				trigger = "finish_reason"
			}
			if err := c.dispatch(entry, trigger); err != nil {
				return nil, err
			}
		}
	}
	if c.ctx.Err() != nil {
		return nil, model.Canceled(c.ctx.Err())
	}
	for _, entry := range c.acc.pending() {
		c.logger.Warn("dispatching tool call left open at end of stream", "call_id", entry.id, "tool", entry.name)
		if err := c.dispatch(entry, "end_of_stream"); err != nil {
			return nil, err
		}
	}

	if c.acc.empty() {
		reply := model.Message{Role: model.RoleAssistant, Text: c.modelText.String()}
		c.setState(StateDone)
		c.reportUsage()
		return c.result([]model.Message{reply}), nil
	}
	return c.secondPass()
}

// dispatch runs one call. processed is set before the tool runs, so a call
// is never dispatched twice.
func (c *cycle) dispatch(entry *toolCallAccumulator, trigger string) error {
	if c.ctx.Err() != nil {
		return model.Canceled(c.ctx.Err())
	}
	entry.processed = true
	call := entry.call()
	c.setState(StateToolCallPending)
	c.logger.Debug("dispatching tool call", "call_id", call.ID, "tool", call.Name, "trigger", trigger)

	var result *tool.Result
	if c.agent.cfg.Tools != nil {
		result = c.agent.cfg.Tools.Dispatch(c.ctx, call.Name, call.Arguments)
	}
	if c.ctx.Err() != nil {
		return model.Canceled(c.ctx.Err())
	}
	c.outcomes = append(c.outcomes, ToolOutcome{Call: call, Result: result})
	if result != nil {
		if result.Content != nil && c.cb.OnToolResult != nil {
			c.cb.OnToolResult(*result.Content)
		}
		if result.Summary != "" {
			c.emitText(c.separator() + result.Summary)
		}
	}
	c.setState(StateStreaming)
	return nil
}

func (c *cycle) completionError(err error) error {
	if c.ctx.Err() != nil {
		return model.Canceled(c.ctx.Err())
	}
	if model.IsCanceled(err) {
		return model.Canceled(err)
	}
	return fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
}

func (c *cycle) emitText(text string) {
	if text == "" || c.ctx.Err() != nil {
		return
	}
	c.visible.WriteString(text)
	if c.cb.OnChunk != nil {
		c.cb.OnChunk(text)
	}
}

// separator returns the paragraph break placed before appended text.
func (c *cycle) separator() string {
	current := c.visible.String()
	switch {
	case current == "":
		return ""
	case strings.HasSuffix(current, "\n\n"):
		return ""
	case strings.HasSuffix(current, "\n"):
		return "\n"
	default:
		return "\n\n"
	}
}

func (c *cycle) addUsage(u model.Usage) {
	if c.usage == nil {
		c.usage = &model.Usage{}
	}
	c.usage.PromptTokens += u.PromptTokens
	c.usage.CompletionTokens += u.CompletionTokens
	c.usage.TotalTokens += u.TotalTokens
}

func (c *cycle) reportUsage() {
	if c.usage == nil || c.ctx.Err() != nil || c.cb.OnUsage == nil {
		return
	}
	c.cb.OnUsage(*c.usage)
}

func (c *cycle) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.agent.cfg.OnState != nil {
		c.agent.cfg.OnState(s)
	}
}

func (c *cycle) result(messages []model.Message) *Result {
	out := &Result{
		Messages: messages,
		Text:     c.visible.String(),
		Outcomes: c.outcomes,
	}
	if c.usage != nil {
		out.Usage = *c.usage
	}
	return out
}
