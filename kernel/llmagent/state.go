package llmagent

// State is the phase of one completion cycle.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateToolCallPending
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateToolCallPending:
		return "tool_call_pending"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
