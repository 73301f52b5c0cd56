package llm

import "strings"

// ToolCallDelta is one fragment of a tool call from a streaming
// response. The transport tags each fragment with the slot index of the
// call it belongs to; ID, Name, and Arguments are all partial and may
// arrive across many events, interleaved with content deltas.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ToolCallAccumulator reassembles fragmented tool-call deltas into
// complete, ordered tool invocations. Slots are keyed by the
// transport-provided index, so output order is deterministic regardless
// of delta arrival order.
type ToolCallAccumulator struct {
	slots []*toolCallSlot
}

type toolCallSlot struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// Add folds one delta into the accumulator, growing the slot list with
// empty entries if the index skips ahead.
func (a *ToolCallAccumulator) Add(d ToolCallDelta) {
	if d.Index < 0 {
		return
	}
	for len(a.slots) <= d.Index {
		a.slots = append(a.slots, &toolCallSlot{})
	}

	slot := a.slots[d.Index]
	if d.ID != "" && slot.id == "" {
		slot.id = d.ID
	}
	slot.name.WriteString(d.Name)
	slot.args.WriteString(d.Arguments)
}

// Len returns the number of slots seen so far.
func (a *ToolCallAccumulator) Len() int {
	return len(a.slots)
}

// Calls returns one complete tool call per slot, in slot-index order.
// Arguments are the concatenated fragments; whether they form valid
// JSON is the executor's concern, not the accumulator's.
func (a *ToolCallAccumulator) Calls() []ToolCall {
	if len(a.slots) == 0 {
		return nil
	}
	calls := make([]ToolCall, 0, len(a.slots))
	for _, slot := range a.slots {
		calls = append(calls, ToolCall{
			ID:        slot.id,
			Name:      slot.name.String(),
			Arguments: slot.args.String(),
		})
	}
	return calls
}
