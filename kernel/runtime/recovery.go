package runtime

import (
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// InterruptedToolOutput answers a tool call whose result was never stored.
const InterruptedToolOutput = "Error: tool call interrupted before completion"

// repairToolCalls answers every assistant tool call that has no tool message
// in history. Synthesized answers are placed right after the tool messages
// that follow their assistant message. The second return lists only the
// synthesized messages.
func repairToolCalls(history []model.Message) ([]model.Message, []model.Message) {
	answered := map[string]struct{}{}
	for _, msg := range history {
		if msg.Role == model.RoleTool && msg.ToolCallID != "" {
			answered[msg.ToolCallID] = struct{}{}
		}
	}

	out := make([]model.Message, 0, len(history))
	var synthesized []model.Message
	for i := 0; i < len(history); i++ {
		msg := history[i]
		out = append(out, msg)
		if msg.Role != model.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		for i+1 < len(history) && history[i+1].Role == model.RoleTool {
			i++
			out = append(out, history[i])
		}
		for _, call := range msg.ToolCalls {
			if call.ID == "" {
				continue
			}
			if _, ok := answered[call.ID]; ok {
				continue
			}
			answered[call.ID] = struct{}{}
			tm := model.Message{
				Role:       model.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Text:       InterruptedToolOutput,
			}
			out = append(out, tm)
			synthesized = append(synthesized, tm)
		}
	}
	return out, synthesized
}

// danglingAtTail reports whether every synthesized answer belongs to the
// trailing assistant turn, which is the only place they can be appended to
// stored history without reordering it.
func danglingAtTail(history []model.Message, synthesized []model.Message) bool {
	if len(synthesized) == 0 {
		return false
	}
	last := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleAssistant && len(history[i].ToolCalls) > 0 {
			last = i
			break
		}
		if history[i].Role != model.RoleTool {
			return false
		}
	}
	if last < 0 {
		return false
	}
	owned := map[string]struct{}{}
	for _, call := range history[last].ToolCalls {
		owned[call.ID] = struct{}{}
	}
	for _, msg := range synthesized {
		if _, ok := owned[msg.ToolCallID]; !ok {
			return false
		}
	}
	return true
}
