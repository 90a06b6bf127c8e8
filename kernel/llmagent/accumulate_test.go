package llmagent

import (
	"testing"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

func TestAccumulatorMergesByIndex(t *testing.T) {
	acc := newAccumulator()
	acc.merge(model.ToolCallDelta{Index: 0, ID: "a", Name: "create_flashcard", Arguments: `{"question":"Wha`})
	acc.merge(model.ToolCallDelta{Index: 0, Arguments: `t is 2+2?","answer":"`})
	if ready := acc.ready(); len(ready) != 0 {
		t.Fatalf("incomplete arguments must not be ready, got %d", len(ready))
	}
	acc.merge(model.ToolCallDelta{Index: 0, Arguments: `4"}`})
	ready := acc.ready()
	if len(ready) != 1 || ready[0].id != "a" {
		t.Fatalf("expected call a ready, got %+v", ready)
	}
	ready[0].processed = true
	if len(acc.ready()) != 0 || len(acc.pending()) != 0 {
		t.Fatal("processed call reported again")
	}
}

func TestAccumulatorNameSetOnce(t *testing.T) {
	acc := newAccumulator()
	acc.merge(model.ToolCallDelta{Index: 0, ID: "a", Name: "first"})
	acc.merge(model.ToolCallDelta{Index: 0, Name: "second"})
	if got := acc.toolCalls()[0].Name; got != "first" {
		t.Fatalf("expected name to stick, got %q", got)
	}
}

func TestAccumulatorNewIDAtSameIndexStartsNewCall(t *testing.T) {
	acc := newAccumulator()
	acc.merge(model.ToolCallDelta{Index: 0, ID: "a", Name: "x", Arguments: `{}`})
	acc.merge(model.ToolCallDelta{Index: 0, ID: "b", Name: "y", Arguments: `{"k":1}`})
	calls := acc.toolCalls()
	if len(calls) != 2 || calls[0].ID != "a" || calls[1].ID != "b" || calls[1].Arguments != `{"k":1}` {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestAccumulatorSyntheticIDAdoptsLateID(t *testing.T) {
	acc := newAccumulator()
	acc.merge(model.ToolCallDelta{Index: 2, Arguments: `{"a"`})
	acc.merge(model.ToolCallDelta{Index: 2, ID: "real", Name: "t", Arguments: `:1}`})
	calls := acc.toolCalls()
	if len(calls) != 1 || calls[0].ID != "real" || calls[0].Arguments != `{"a":1}` {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestAccumulatorFinishMarksAll(t *testing.T) {
	acc := newAccumulator()
	acc.merge(model.ToolCallDelta{Index: 0, Name: "x", Arguments: `{"broken`})
	acc.markFinished()
	ready := acc.ready()
	if len(ready) != 1 || ready[0].id != "call_0" {
		t.Fatalf("expected finished call ready, got %+v", ready)
	}
}

func TestAccumulatorNameBeforeIDStaysOneCall(t *testing.T) {
	acc := newAccumulator()
	acc.merge(model.ToolCallDelta{Index: 0, Name: "create_flashcard", Arguments: `{"question":"q",`})
	acc.merge(model.ToolCallDelta{Index: 0, ID: "call_real", Arguments: `"answer":"a"}`})
	calls := acc.toolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %+v", calls)
	}
	if calls[0].ID != "call_real" || calls[0].Name != "create_flashcard" || calls[0].Arguments != `{"question":"q","answer":"a"}` {
		t.Fatalf("unexpected call %+v", calls[0])
	}
	ready := acc.ready()
	if len(ready) != 1 || ready[0].id != "call_real" {
		t.Fatalf("expected call_real ready, got %+v", ready)
	}
}

func TestAccumulatorPlaceholderKeepsDifferentToolApart(t *testing.T) {
	acc := newAccumulator()
	acc.merge(model.ToolCallDelta{Index: 0, Name: "x", Arguments: `{}`})
	acc.merge(model.ToolCallDelta{Index: 0, ID: "b", Name: "y", Arguments: `{"k":1}`})
	calls := acc.toolCalls()
	if len(calls) != 2 || calls[0].Name != "x" || calls[1].ID != "b" || calls[1].Name != "y" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestAccumulatorFreezesArgumentsAfterDispatch(t *testing.T) {
	acc := newAccumulator()
	entry := acc.merge(model.ToolCallDelta{Index: 0, ID: "a", Name: "x", Arguments: `{"k":1}`})
	entry.processed = true
	acc.merge(model.ToolCallDelta{Index: 0, Arguments: ` trailing`})
	if got := acc.toolCalls()[0].Arguments; got != `{"k":1}` {
		t.Fatalf("expected dispatched arguments, got %q", got)
	}
}
