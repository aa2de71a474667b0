package application

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/bnema/multisession/internal/domain"
)

// Registry is the in-memory map of live connections. It only ever exposes
// handles that are Open.
type Registry struct {
	mu      sync.RWMutex
	handles map[domain.AccountID]*Handle
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handles: make(map[domain.AccountID]*Handle),
		logger:  logger,
	}
}

// Put registers an Open handle. A different handle already registered for
// the same account is closed after the swap.
func (r *Registry) Put(id domain.AccountID, h *Handle) error {
	if state := h.State(); state != domain.StateOpen {
		return fmt.Errorf("%w: register %s handle for %s", domain.ErrInvalidTransition, state, id)
	}

	r.mu.Lock()
	previous := r.handles[id]
	r.handles[id] = h
	r.mu.Unlock()

	if previous != nil && previous != h {
		r.logger.Warn("replaced live handle",
			zap.String("account", id.String()),
			zap.Uint64("previous_generation", previous.Generation()),
			zap.Uint64("generation", h.Generation()),
		)
		_ = previous.Close()
	}

	return nil
}

func (r *Registry) Get(id domain.AccountID) (*Handle, bool) {
	r.mu.RLock()
	h, ok := r.handles[id]
	r.mu.RUnlock()

	if !ok || h.State() != domain.StateOpen {
		return nil, false
	}
	return h, true
}

func (r *Registry) Remove(id domain.AccountID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	return h, ok
}

// CompareAndRemove removes the entry for id only while it still points at h,
// so a stale handle never evicts its replacement.
func (r *Registry) CompareAndRemove(id domain.AccountID, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.handles[id]; ok && current == h {
		delete(r.handles, id)
		return true
	}
	return false
}

// List returns a sorted snapshot of the accounts with an Open handle.
func (r *Registry) List() []domain.AccountID {
	r.mu.RLock()
	ids := make([]domain.AccountID, 0, len(r.handles))
	for id, h := range r.handles {
		if h.State() == domain.StateOpen {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Len() int {
	return len(r.List())
}
