package model

import (
	"errors"
	"fmt"
)

// ErrSystemMessageOrder is returned when a history has a misplaced or
// repeated system message.
var ErrSystemMessageOrder = errors.New("model: system message must be unique and first")

// ValidateHistory checks the request-level message invariants.
func ValidateHistory(messages []Message) error {
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			if i != 0 {
				return fmt.Errorf("%w: found at index %d", ErrSystemMessageOrder, i)
			}
		case RoleUser, RoleAssistant:
		case RoleTool:
			if m.ToolCallID == "" {
				return fmt.Errorf("model: tool message at index %d has no tool_call_id", i)
			}
		default:
			return fmt.Errorf("model: unknown role %q at index %d", m.Role, i)
		}
	}
	return nil
}

// NormalizeHistory drops every system message from messages and prepends a
// single one carrying systemPrompt, when it is non-empty.
func NormalizeHistory(messages []Message, systemPrompt string) []Message {
	out := make([]Message, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Text: systemPrompt})
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}
