package ports

import (
	"context"

	"github.com/bnema/multisession/internal/domain"
)

// ActiveAccountRepository persists the ordered set of accounts that reached
// Open at least once.
type ActiveAccountRepository interface {
	List(ctx context.Context) ([]domain.AccountID, error)
	Add(ctx context.Context, id domain.AccountID) error
	Remove(ctx context.Context, id domain.AccountID) error
}
