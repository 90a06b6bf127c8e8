package model

import (
	"context"
	"iter"
)

// Role identifies message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolDefinition describes a callable tool for model planning.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model-emitted tool invocation request. Arguments is kept as
// the raw JSON text the model produced.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is a single turn element in model context.
//
// Content is either Text or Parts; Parts wins when non-empty. An assistant
// message carrying only ToolCalls has no content at all.
type Message struct {
	ID         string
	Role       Role
	Text       string
	Parts      []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// HasContent reports whether the message carries text or parts.
func (m Message) HasContent() bool {
	return m.Text != "" || len(m.Parts) > 0
}

// PlainText returns the message text, joining text parts when Parts is set.
func (m Message) PlainText() string {
	if len(m.Parts) == 0 {
		return m.Text
	}
	out := ""
	for _, p := range m.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]ContentPart, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	return out
}

// CloneMessages deep copies a message slice.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// ToolChoice controls whether the model may call tools.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// Request is a provider-agnostic model request.
type Request struct {
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice ToolChoice
	Stream     bool
}

// Usage reports model token usage (best-effort).
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// IsZero reports whether no usage was recorded.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// ToolCallDelta is one fragment of a streamed tool call. Continuation
// fragments usually carry only Index and an Arguments piece.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Chunk is one decoded element of a streaming response.
type Chunk struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
	Usage        *Usage
	Model        string
}

// Finish reasons reported by chat-completion endpoints.
const (
	FinishStop         = "stop"
	FinishToolCalls    = "tool_calls"
	FinishFunctionCall = "function_call"
	FinishLength       = "length"
)

// IsToolFinish reports whether reason signals completed tool calls.
func IsToolFinish(reason string) bool {
	return reason == FinishToolCalls || reason == FinishFunctionCall
}

// Response is a complete non-streaming model response.
type Response struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string
	Provider     string
}

// LLM is the model abstraction used by the kernel.
type LLM interface {
	Name() string
	Stream(context.Context, *Request) iter.Seq2[*Chunk, error]
	Complete(context.Context, *Request) (*Response, error)
}
