package acquisition

// State is the lifecycle position of an engine
type State int32

const (
	StateIdle State = iota
	StateConfigured
	StateArmed
	StateStreaming
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateArmed:
		return "armed"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
