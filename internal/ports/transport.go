package ports

import (
	"context"

	"github.com/bnema/multisession/internal/domain"
)

type Dialer interface {
	Dial(ctx context.Context, id domain.AccountID, bundle domain.CredentialBundle) (Conn, error)
}

// Conn is one transport-level session. Events delivers transport events in
// order and is closed once the connection is gone.
type Conn interface {
	Events() <-chan domain.TransportEvent
	RequestPairingCode(ctx context.Context, phone domain.AccountID) (string, error)
	Send(ctx context.Context, to domain.AccountID, content string) (domain.Ack, error)
	Close() error
}
