package domain

type ConnectionState int

const (
	StateInitializing ConnectionState = iota
	StatePendingAuthentication
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StatePendingAuthentication:
		return "pending_authentication"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether the handle state machine allows s -> to.
// Closed is terminal; a restart is a new handle.
func (s ConnectionState) CanTransition(to ConnectionState) bool {
	switch s {
	case StateInitializing:
		return to == StatePendingAuthentication || to == StateClosing || to == StateClosed
	case StatePendingAuthentication:
		return to == StateOpen || to == StateClosing || to == StateClosed
	case StateOpen:
		return to == StateClosing || to == StateClosed
	case StateClosing:
		return to == StateClosed
	default:
		return false
	}
}
