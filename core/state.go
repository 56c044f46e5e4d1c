package core

// ConnState is the lifecycle state of the transport connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
