package runtime

import (
	"testing"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

func TestRepairToolCalls_SynthesizesInterruptedAnswer(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleUser, Text: "make cards"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "call_1", Name: "create_flashcard"},
			{ID: "call_2", Name: "create_mcq"},
		}},
		{Role: model.RoleTool, ToolCallID: "call_1", Text: "done"},
		{Role: model.RoleUser, Text: "next"},
	}
	out, synthesized := repairToolCalls(history)
	if len(synthesized) != 1 || synthesized[0].ToolCallID != "call_2" {
		t.Fatalf("expected call_2 to be answered, got %+v", synthesized)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(out))
	}
	if out[3].ToolCallID != "call_2" || out[3].Text != InterruptedToolOutput || out[4].Text != "next" {
		t.Fatalf("synthesized answer not placed after its turn: %+v", out)
	}
	if danglingAtTail(history, synthesized) {
		t.Fatal("dangling call is not at the tail")
	}
}

func TestRepairToolCalls_SkipsClosedToolCalls(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "call_1", Name: "get_syllabus"}}},
		{Role: model.RoleTool, ToolCallID: "call_1", Text: "syllabus"},
	}
	out, synthesized := repairToolCalls(history)
	if len(synthesized) != 0 || len(out) != 2 {
		t.Fatalf("expected no recovery, got %+v", synthesized)
	}
}

func TestDanglingAtTail(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleUser, Text: "q"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}},
		{Role: model.RoleTool, ToolCallID: "a", Text: "ok"},
	}
	_, synthesized := repairToolCalls(history)
	if !danglingAtTail(history, synthesized) {
		t.Fatal("expected tail recovery to be appendable")
	}
}
