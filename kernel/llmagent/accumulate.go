package llmagent

import (
	"fmt"
	"strings"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/partialjson"
)

// toolCallAccumulator is the scratch state of one streamed tool call.
type toolCallAccumulator struct {
	index     int
	id        string
	name      string
	arguments strings.Builder
	// finished is set when the stream reports a tool-call finish reason.
	finished bool
	// processed flips to true exactly once, when the call is dispatched.
	processed bool
}

func (a *toolCallAccumulator) call() model.ToolCall {
	return model.ToolCall{
		ID:        a.id,
		Name:      a.name,
		Arguments: a.arguments.String(),
	}
}

// complete reports whether the arguments received so far form a full JSON
// object.
func (a *toolCallAccumulator) complete() bool {
	return partialjson.IsComplete(a.arguments.String())
}

// accumulator merges tool-call deltas of one response. Calls keep the order
// in which they first appeared.
type accumulator struct {
	calls   []*toolCallAccumulator
	byID    map[string]*toolCallAccumulator
	byIndex map[int]*toolCallAccumulator
}

func newAccumulator() *accumulator {
	return &accumulator{
		byID:    map[string]*toolCallAccumulator{},
		byIndex: map[int]*toolCallAccumulator{},
	}
}

// merge folds one delta into its call. Continuation deltas usually carry only
// the index, so a delta without id resolves through the index. A late id is
// adopted by the synthetic placeholder at its index; any other new id at a
// bound index starts a new call.
func (a *accumulator) merge(d model.ToolCallDelta) *toolCallAccumulator {
	var entry *toolCallAccumulator
	if d.ID != "" {
		entry = a.byID[d.ID]
		if entry == nil {
			if cur := a.byIndex[d.Index]; cur != nil && cur.id == syntheticID(d.Index) && !cur.processed && sameTool(cur.name, d.Name) {
				// A placeholder created by an id-less delta; the name may
				// already have arrived with it.
				entry = cur
				delete(a.byID, cur.id)
				entry.id = d.ID
				a.byID[d.ID] = entry
			}
		}
	} else {
		entry = a.byIndex[d.Index]
	}
	if entry == nil {
		id := d.ID
		if id == "" {
			id = syntheticID(d.Index)
			if _, taken := a.byID[id]; taken {
				id = fmt.Sprintf("%s_%d", id, len(a.calls))
			}
		}
		entry = &toolCallAccumulator{index: d.Index, id: id}
		a.calls = append(a.calls, entry)
		a.byID[id] = entry
	}
	a.byIndex[d.Index] = entry
	if entry.name == "" && d.Name != "" {
		entry.name = d.Name
	}
	if !entry.processed {
		// Arguments are frozen once dispatched.
		entry.arguments.WriteString(d.Arguments)
	}
	return entry
}

func sameTool(current, incoming string) bool {
	return current == "" || incoming == "" || current == incoming
}

// markFinished flags every call as finished by the authoritative signal.
func (a *accumulator) markFinished() {
	for _, c := range a.calls {
		c.finished = true
	}
}

// ready returns unprocessed calls whose finish was signalled or whose
// arguments already parse, in appearance order.
func (a *accumulator) ready() []*toolCallAccumulator {
	var out []*toolCallAccumulator
	for _, c := range a.calls {
		if c.processed {
			continue
		}
		if c.finished || (c.name != "" && c.complete()) {
			out = append(out, c)
		}
	}
	return out
}

// pending returns calls never dispatched.
func (a *accumulator) pending() []*toolCallAccumulator {
	var out []*toolCallAccumulator
	for _, c := range a.calls {
		if !c.processed {
			out = append(out, c)
		}
	}
	return out
}

func (a *accumulator) empty() bool {
	return len(a.calls) == 0
}

func (a *accumulator) toolCalls() []model.ToolCall {
	out := make([]model.ToolCall, 0, len(a.calls))
	for _, c := range a.calls {
		out = append(out, c.call())
	}
	return out
}

func syntheticID(index int) string {
	return fmt.Sprintf("call_%d", index)
}
