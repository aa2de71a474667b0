package application

import (
	"context"
	"fmt"

	"github.com/bnema/multisession/internal/domain"
)

// BotStatus is one row of the operator's bot list.
type BotStatus struct {
	ID        domain.AccountID `json:"id"`
	Paired    bool             `json:"paired"`
	Connected bool             `json:"connected"`
}

// Roster lists every account in the active list plus any connected account
// that is not recorded there yet, in active list order.
func (m *Manager) Roster(ctx context.Context) ([]BotStatus, error) {
	ids, err := m.deps.active.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	seen := make(map[domain.AccountID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range m.registry.List() {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}

	statuses := make([]BotStatus, 0, len(ids))
	for _, id := range ids {
		paired, err := m.deps.credentials.Paired(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check credentials for %s: %w", id, err)
		}
		statuses = append(statuses, BotStatus{
			ID:        id,
			Paired:    paired,
			Connected: m.IsConnected(id),
		})
	}

	return statuses, nil
}
