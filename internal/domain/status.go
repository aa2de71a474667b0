package domain

import "time"

type StatusKind string

const (
	StatusInitializing StatusKind = "initializing"
	StatusPairingCode  StatusKind = "pairing_code"
	StatusConnected    StatusKind = "connected"
	StatusReconnecting StatusKind = "reconnecting"
	StatusFailed       StatusKind = "failed"
)

// StatusEvent is the structured status a supervisor reports to an operator.
// Presentation is left to the consumer.
type StatusEvent struct {
	Kind        StatusKind
	PairingCode string
	Reason      string
	Attempt     int
	At          time.Time
}

func (e StatusEvent) Terminal() bool {
	return e.Kind == StatusConnected || e.Kind == StatusFailed
}
