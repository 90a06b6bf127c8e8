package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

type openAICompatLLM struct {
	name     string
	provider string
	baseURL  string
	token    string
	headers  map[string]string
	client   *http.Client
	retry    RetryPolicy
	logger   *slog.Logger
}

func newOpenAICompat(cfg Config) *openAICompatLLM {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = timeout
		client = &http.Client{Transport: transport}
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai-compatible"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &openAICompatLLM{
		name:     cfg.Model,
		provider: provider,
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:    cfg.APIKey,
		headers:  cfg.Headers,
		client:   client,
		retry:    cfg.Retry,
		logger:   logger.With("provider", provider, "model", cfg.Model),
	}
}

func (l *openAICompatLLM) Name() string {
	return l.name
}

// Stream issues a streaming request and yields one chunk per decoded SSE
// event. Chunks that carry nothing are skipped.
func (l *openAICompatLLM) Stream(ctx context.Context, req *model.Request) iter.Seq2[*model.Chunk, error] {
	return func(yield func(*model.Chunk, error) bool) {
		if req == nil {
			yield(nil, fmt.Errorf("model: request is nil"))
			return
		}
		resp, err := l.post(ctx, l.payload(req, true))
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		reader := newSSEReader(resp.Body)
		for {
			data, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(nil, canceled(ctxErr))
					return
				}
				yield(nil, fmt.Errorf("providers: read stream: %w", err))
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(nil, canceled(ctxErr))
				return
			}
			chunk, err := decodeStreamChunk(data)
			if err != nil {
				yield(nil, err)
				return
			}
			if chunk == nil {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Complete issues a non-streaming request.
func (l *openAICompatLLM) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("model: request is nil")
	}
	resp, err := l.post(ctx, l.payload(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out openAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceled(ctxErr)
		}
		return nil, fmt.Errorf("providers: decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("providers: endpoint error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("providers: empty choices")
	}
	choice := out.Choices[0]
	msg := toKernelMessage(choice.Message)
	result := &model.Response{
		Message:      msg,
		FinishReason: choice.FinishReason,
		Model:        out.Model,
		Provider:     l.provider,
	}
	if u := out.Usage.kernel(); u != nil {
		result.Usage = *u
	}
	return result, nil
}

func (l *openAICompatLLM) post(ctx context.Context, payload openAICompatRequest) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("providers: encode request: %w", err)
	}
	build := func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/chat/completions", bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+l.token)
		if payload.Stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}
		for k, v := range l.headers {
			httpReq.Header.Set(k, v)
		}
		return httpReq, nil
	}
	policy := l.retry
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		attrs := []any{"attempt", attempt + 1, "delay", delay, "error", err}
		if te, ok := IsTransportError(err); ok && te.StatusCode != 0 {
			attrs = append(attrs, "status", te.StatusCode)
		}
		l.logger.Warn("completion request failed, retrying", attrs...)
		if userHook != nil {
			userHook(attempt, delay, err)
		}
	}
	resp, err := FetchWithRetry(ctx, l.client, build, policy)
	if err != nil {
		if !model.IsCanceled(err) {
			l.logger.Error("completion request failed", "error", err)
		}
		return nil, err
	}
	return resp, nil
}

func (l *openAICompatLLM) payload(req *model.Request, stream bool) openAICompatRequest {
	out := openAICompatRequest{
		Model:    l.name,
		Messages: fromKernelMessages(req.Messages),
		Stream:   stream,
	}
	if stream {
		out.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	if len(req.Tools) > 0 {
		out.Tools = fromKernelTools(req.Tools)
		choice := req.ToolChoice
		if choice == "" {
			choice = model.ToolChoiceAuto
		}
		out.ToolChoice = string(choice)
	}
	return out
}

func decodeStreamChunk(data []byte) (*model.Chunk, error) {
	var raw openAICompatStreamChunk
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("providers: decode stream chunk: %w", err)
	}
	if raw.Error != nil {
		return nil, fmt.Errorf("providers: endpoint error: %s", raw.Error.Message)
	}
	chunk := &model.Chunk{Model: raw.Model, Usage: raw.Usage.kernel()}
	for _, choice := range raw.Choices {
		if choice.Index != 0 {
			continue
		}
		delta := choice.Delta
		chunk.Content += contentText(delta.Content)
		for i, tc := range delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			chunk.ToolCalls = append(chunk.ToolCalls, model.ToolCallDelta{
				Index:     idx,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if fc := delta.FunctionCall; fc != nil {
			chunk.ToolCalls = append(chunk.ToolCalls, model.ToolCallDelta{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			})
		}
		if choice.FinishReason != nil {
			chunk.FinishReason = *choice.FinishReason
		}
	}
	if chunk.Content == "" && len(chunk.ToolCalls) == 0 && chunk.FinishReason == "" && chunk.Usage == nil {
		return nil, nil
	}
	return chunk, nil
}

func fromKernelMessages(messages []model.Message) []openAICompatReqMsg {
	out := make([]openAICompatReqMsg, 0, len(messages))
	for _, m := range messages {
		out = append(out, fromKernelMessage(m))
	}
	return out
}

func fromKernelTools(tools []model.ToolDefinition) []openAICompatTool {
	out := make([]openAICompatTool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openAICompatTool{
			Type: "function",
			Function: openAICompatFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func fromKernelMessage(m model.Message) openAICompatReqMsg {
	switch {
	case m.Role == model.RoleTool:
		return openAICompatReqMsg{
			Role:       string(model.RoleTool),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
			Content:    m.PlainText(),
		}
	case len(m.ToolCalls) > 0:
		calls := make([]openAICompatToolCall, 0, len(m.ToolCalls))
		for _, c := range m.ToolCalls {
			args := c.Arguments
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			calls = append(calls, openAICompatToolCall{
				ID:   c.ID,
				Type: "function",
				Function: openAICompatCallFunction{
					Name:      c.Name,
					Arguments: args,
				},
			})
		}
		var content any
		if text := m.PlainText(); text != "" {
			content = text
		}
		return openAICompatReqMsg{
			Role:      string(m.Role),
			Content:   content,
			ToolCalls: calls,
		}
	default:
		return openAICompatReqMsg{
			Role:    string(m.Role),
			Content: requestContent(m),
		}
	}
}

// requestContent returns a plain string unless the message has an image, in
// which case the typed part array is sent. UI-only parts are dropped.
func requestContent(m model.Message) any {
	if len(m.Parts) == 0 {
		return m.Text
	}
	hasImage := false
	parts := make([]openAIContentPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case model.PartText:
			if p.Text != "" {
				parts = append(parts, openAIContentPart{Type: "text", Text: p.Text})
			}
		case model.PartImageURL:
			if p.ImageURL != nil && p.ImageURL.URL != "" {
				hasImage = true
				parts = append(parts, openAIContentPart{
					Type:     "image_url",
					ImageURL: &openAIImageURL{URL: p.ImageURL.URL, Detail: p.ImageURL.Detail},
				})
			}
		}
	}
	if !hasImage {
		return m.PlainText()
	}
	return parts
}

func toKernelMessage(m openAICompatMsg) model.Message {
	role := model.Role(m.Role)
	if role == "" {
		role = model.RoleAssistant
	}
	out := model.Message{
		Role: role,
		Text: contentText(m.Content),
	}
	for i, c := range m.ToolCalls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:        id,
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		})
	}
	if fc := m.FunctionCall; fc != nil && fc.Name != "" {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:        fmt.Sprintf("call_%d", len(out.ToolCalls)),
			Name:      fc.Name,
			Arguments: fc.Arguments,
		})
	}
	return out
}

// contentText accepts a string, null, or an array of text parts.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []openAIContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
