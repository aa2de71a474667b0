package domain

import "time"

type TransportEventKind int

const (
	TransportConnecting TransportEventKind = iota
	TransportOpen
	TransportClosed
	TransportCredentials
	TransportMessage
)

// TransportEvent is one event produced by a transport connection, in the
// order the transport observed it.
type TransportEvent struct {
	Kind    TransportEventKind
	Reason  CloseReason
	Delta   CredentialDelta
	Message InboundMessage
}

type ControlKind int

const (
	ControlConnecting ControlKind = iota
	ControlPairingCodeIssued
	ControlPairingFailed
	ControlOpen
	ControlClosed
)

func (k ControlKind) String() string {
	switch k {
	case ControlConnecting:
		return "connecting"
	case ControlPairingCodeIssued:
		return "pairing_code_issued"
	case ControlPairingFailed:
		return "pairing_failed"
	case ControlOpen:
		return "open"
	case ControlClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ControlEvent is a lifecycle event emitted by a connection handle.
type ControlEvent struct {
	Kind        ControlKind
	PairingCode string
	Reason      CloseReason
	// Err is set on PairingFailed events.
	Err error
}

type InboundMessage struct {
	ID        string
	From      AccountID
	Content   string
	Timestamp time.Time
}

type Ack struct {
	MessageID string
	Timestamp time.Time
}
