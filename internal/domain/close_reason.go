package domain

import (
	"errors"
	"fmt"
)

// Disconnect codes reported by the messaging network. They follow HTTP
// semantics where one exists.
const (
	CodeLoggedOut           = 401
	CodeForbidden           = 403
	CodeTimedOut            = 408
	CodeMultideviceMismatch = 411
	CodeConnectionClosed    = 428
	CodeConnectionReplaced  = 440
	CodeBadSession          = 500
	CodeUnavailableService  = 503
	CodeRestartRequired     = 515
)

type CloseClass int

const (
	// CloseRecoverable faults are retried with backoff.
	CloseRecoverable CloseClass = iota
	// CloseTerminal means the remote revoked the credentials: purge, no retry.
	CloseTerminal
	// CloseFinal stops the supervisor but keeps the credentials.
	CloseFinal
	// CloseLocal is a close requested by the owner of the handle.
	CloseLocal
)

func (c CloseClass) String() string {
	switch c {
	case CloseRecoverable:
		return "recoverable"
	case CloseTerminal:
		return "terminal"
	case CloseFinal:
		return "final"
	case CloseLocal:
		return "local"
	default:
		return "unknown"
	}
}

// CloseReason explains why a connection reached Closed. Code is zero for
// closes that did not come from the remote.
type CloseReason struct {
	Code    int
	Message string
	Err     error
}

func LocalClose() CloseReason {
	return CloseReason{Message: "closed locally"}
}

func TransportLost(err error) CloseReason {
	return CloseReason{Message: "connection lost", Err: fmt.Errorf("%w: %w", ErrTransport, err)}
}

func StorageFailure(err error) CloseReason {
	return CloseReason{Message: "credential storage failed", Err: fmt.Errorf("%w: %w", ErrStorage, err)}
}

func (r CloseReason) Classify() CloseClass {
	if r.Code == 0 {
		switch {
		case r.Err == nil:
			return CloseLocal
		case errors.Is(r.Err, ErrStorage):
			return CloseFinal
		case errors.Is(r.Err, ErrTransport):
			return CloseRecoverable
		default:
			return CloseFinal
		}
	}

	switch {
	case r.Code == CodeLoggedOut, r.Code == CodeForbidden, r.Code == CodeMultideviceMismatch:
		return CloseTerminal
	case r.Code == CodeTimedOut, r.Code == CodeConnectionClosed:
		return CloseRecoverable
	case r.Code >= 500 && r.Code < 600:
		return CloseRecoverable
	default:
		return CloseFinal
	}
}

func (r CloseReason) Error() string {
	switch {
	case r.Code != 0 && r.Err != nil:
		return fmt.Sprintf("%s (code %d): %v", r.Message, r.Code, r.Err)
	case r.Code != 0:
		return fmt.Sprintf("%s (code %d)", r.Message, r.Code)
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Message, r.Err)
	default:
		return r.Message
	}
}

func (r CloseReason) Unwrap() error {
	return r.Err
}
