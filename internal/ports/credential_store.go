package ports

import (
	"context"

	"github.com/bnema/multisession/internal/domain"
)

type CredentialStore interface {
	Load(ctx context.Context, id domain.AccountID) (domain.CredentialBundle, error)
	Apply(ctx context.Context, id domain.AccountID, delta domain.CredentialDelta) error
	Delete(ctx context.Context, id domain.AccountID) error
	Paired(ctx context.Context, id domain.AccountID) (bool, error)
}
