// Package runtime runs chat turns against stored conversations. It allows one
// in-flight send per conversation and persists the streamed reply as it
// arrives.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/llmagent"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// Completer runs one completion cycle. *llmagent.Agent implements it.
type Completer interface {
	StreamCompletion(ctx context.Context, messages []model.Message, cb llmagent.Callbacks) (*llmagent.Result, error)
}

// ConflictPolicy decides what a send does when its conversation is busy.
type ConflictPolicy int

const (
	// ConflictReject fails the new send with *ConversationBusyError.
	ConflictReject ConflictPolicy = iota
	// ConflictReplace cancels the running send and waits for it to finish.
	ConflictReplace
)

const defaultFlushInterval = 250 * time.Millisecond

// Config configures Runtime.
type Config struct {
	Store conversation.Store
	Agent Completer
	// SystemPrompt applies to conversations created by the runtime and to
	// stored conversations without one.
	SystemPrompt string
	Conflict     ConflictPolicy
	Logger       *slog.Logger
	// FlushInterval throttles placeholder writes while a reply streams.
	// Negative writes on every chunk.
	FlushInterval time.Duration
}

// Runtime orchestrates conversation turns.
type Runtime struct {
	store         conversation.Store
	agent         Completer
	systemPrompt  string
	conflict      ConflictPolicy
	logger        *slog.Logger
	flushInterval time.Duration

	runMu  sync.Mutex
	active map[string]*lease
}

type lease struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config) (*Runtime, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("runtime: store is nil")
	}
	if cfg.Agent == nil {
		return nil, fmt.Errorf("runtime: agent is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	flush := cfg.FlushInterval
	if flush == 0 {
		flush = defaultFlushInterval
	}
	return &Runtime{
		store:         cfg.Store,
		agent:         cfg.Agent,
		systemPrompt:  cfg.SystemPrompt,
		conflict:      cfg.Conflict,
		logger:        logger,
		flushInterval: flush,
		active:        map[string]*lease{},
	}, nil
}

// SendRequest is one user turn.
type SendRequest struct {
	ConversationID string
	Text           string
	// Images are URLs or data URLs attached to the user message.
	Images    []string
	Callbacks llmagent.Callbacks
}

// SendResult describes a completed turn.
type SendResult struct {
	ConversationID string
	// Reply is the visible assistant text, including tool summaries.
	Reply string
	// Messages are the stored assistant and tool messages of the turn.
	Messages []model.Message
	Usage    model.Usage
	Outcomes []llmagent.ToolOutcome
}

// Send appends the user turn, streams the reply into a placeholder message
// and stores the finalized messages. On cancellation or failure the text
// delivered so far stays in the placeholder and the error is returned.
func (r *Runtime) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := conversation.ValidateID(req.ConversationID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Images) == 0 {
		return nil, fmt.Errorf("runtime: message is empty")
	}
	runCtx, release, err := r.acquire(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	defer release()
	log := r.logger.With("conversation_id", req.ConversationID)

	conv, err := r.store.Get(runCtx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	history, synthesized := repairToolCalls(conv.Messages)
	if len(synthesized) > 0 {
		log.Warn("answering interrupted tool calls", "count", len(synthesized))
		if danglingAtTail(conv.Messages, synthesized) {
			if _, err := r.store.AppendMessages(runCtx, conv.ID, synthesized...); err != nil {
				return nil, err
			}
		}
	}

	user := userMessage(req.Text, req.Images)
	stored, err := r.store.AppendMessages(runCtx, conv.ID, user, model.Message{Role: model.RoleAssistant})
	if err != nil {
		return nil, err
	}
	if conv.Title == conversation.DefaultTitle && !hasUserMessage(conv.Messages) {
		if err := r.store.Rename(runCtx, conv.ID, conversation.DeriveTitle(req.Text)); err != nil {
			log.Warn("rename conversation failed", "error", err)
		}
	}
	placeholder := stored[1]

	systemPrompt := conv.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = r.systemPrompt
	}
	request := model.NormalizeHistory(append(requestHistory(history), stored[0]), systemPrompt)

	w := &replyWriter{
		store:    r.store,
		convID:   conv.ID,
		msg:      placeholder,
		interval: r.flushInterval,
		logger:   log,
	}
	cb := req.Callbacks
	wrapped := llmagent.Callbacks{
		OnChunk: func(text string) {
			w.append(runCtx, text)
			if cb.OnChunk != nil {
				cb.OnChunk(text)
			}
		},
		OnUsage:      cb.OnUsage,
		OnToolResult: cb.OnToolResult,
	}

	res, err := r.agent.StreamCompletion(runCtx, request, wrapped)
	if err != nil {
		if flushErr := w.flush(context.WithoutCancel(ctx)); flushErr != nil {
			log.Warn("persist partial reply failed", "error", flushErr)
		}
		if errors.Is(err, llmagent.ErrCanceled) {
			log.Info("send canceled", "delivered_bytes", w.text.Len())
		} else {
			log.Error("send failed", "error", err)
		}
		return nil, err
	}

	persisted, err := r.persist(context.WithoutCancel(ctx), conv.ID, placeholder.ID, res.Messages)
	if err != nil {
		return nil, err
	}
	return &SendResult{
		ConversationID: conv.ID,
		Reply:          res.Text,
		Messages:       persisted,
		Usage:          res.Usage,
		Outcomes:       res.Outcomes,
	}, nil
}

// persist stores the finalized turn. The first message takes the
// placeholder's slot.
func (r *Runtime) persist(ctx context.Context, convID, placeholderID string, msgs []model.Message) ([]model.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	first := msgs[0].Clone()
	first.ID = placeholderID
	if err := r.store.UpdateMessage(ctx, convID, first); err != nil {
		return nil, err
	}
	out := []model.Message{first}
	if len(msgs) > 1 {
		rest, err := r.store.AppendMessages(ctx, convID, msgs[1:]...)
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}
	return out, nil
}

// Cancel stops the in-flight send of a conversation. It reports whether one
// was running; cancelling an idle conversation is a no-op.
func (r *Runtime) Cancel(conversationID string) bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	l, ok := r.active[conversationID]
	if !ok {
		return false
	}
	l.cancel()
	return true
}

// Active reports whether a send is running for the conversation.
func (r *Runtime) Active(conversationID string) bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	_, ok := r.active[conversationID]
	return ok
}

func (r *Runtime) acquire(ctx context.Context, id string) (context.Context, func(), error) {
	for {
		r.runMu.Lock()
		current, busy := r.active[id]
		if !busy {
			runCtx, cancel := context.WithCancel(ctx)
			l := &lease{cancel: cancel, done: make(chan struct{})}
			r.active[id] = l
			r.runMu.Unlock()
			return runCtx, func() { r.release(id, l) }, nil
		}
		r.runMu.Unlock()

		if r.conflict != ConflictReplace {
			return nil, nil, &ConversationBusyError{ConversationID: id}
		}
		current.cancel()
		select {
		case <-current.done:
		case <-ctx.Done():
			return nil, nil, model.Canceled(ctx.Err())
		}
	}
}

func (r *Runtime) release(id string, l *lease) {
	r.runMu.Lock()
	if r.active[id] == l {
		delete(r.active, id)
	}
	r.runMu.Unlock()
	l.cancel()
	close(l.done)
}

func userMessage(text string, images []string) model.Message {
	msg := model.Message{Role: model.RoleUser, Text: text}
	if len(images) == 0 {
		return msg
	}
	parts := make([]model.ContentPart, 0, len(images)+1)
	if strings.TrimSpace(text) != "" {
		parts = append(parts, model.TextPart(text))
	}
	for _, url := range images {
		parts = append(parts, model.ImagePart(url))
	}
	msg.Parts = parts
	return msg
}

func hasUserMessage(msgs []model.Message) bool {
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			return true
		}
	}
	return false
}

// requestHistory drops assistant messages left empty by cancelled turns.
func requestHistory(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		if m.Role == model.RoleAssistant && len(m.ToolCalls) == 0 && strings.TrimSpace(m.PlainText()) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// replyWriter mirrors streamed text into the placeholder message.
type replyWriter struct {
	store    conversation.Store
	convID   string
	msg      model.Message
	interval time.Duration
	logger   *slog.Logger

	text      strings.Builder
	lastFlush time.Time
	dirty     bool
}

func (w *replyWriter) append(ctx context.Context, text string) {
	w.text.WriteString(text)
	w.dirty = true
	if w.interval > 0 && time.Since(w.lastFlush) < w.interval {
		return
	}
	if err := w.flush(ctx); err != nil {
		w.logger.Warn("update streaming reply failed", "error", err)
	}
}

func (w *replyWriter) flush(ctx context.Context) error {
	if !w.dirty {
		return nil
	}
	w.msg.Text = w.text.String()
	w.lastFlush = time.Now()
	w.dirty = false
	return w.store.UpdateMessage(ctx, w.convID, w.msg)
}
