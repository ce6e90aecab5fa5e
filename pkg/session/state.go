package session

// State enumerates the lifecycle of a chat session between turns.
//
//	Idle → Sending → Streaming → Idle        success
//	Idle → Sending/Streaming → Failed → Idle on any error
//
// Failed is transient: the session rolls back the optimistic student
// message and the partial buffer, then re-enters Idle before SendTurn
// returns. Idle is both initial and terminal between turns.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
