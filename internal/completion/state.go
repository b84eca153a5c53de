package completion

// State is a step of one completion run
type State int

const (
	Idle State = iota
	Navigating
	ModelSelected
	MessageSent
	AwaitingResponse
	Streaming
	Complete
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Navigating:
		return "navigating"
	case ModelSelected:
		return "model_selected"
	case MessageSent:
		return "message_sent"
	case AwaitingResponse:
		return "awaiting_response"
	case Streaming:
		return "streaming"
	case Complete:
		return "complete"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == Complete || s == TimedOut || s == Failed
}
