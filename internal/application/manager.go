package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/logging"
	"github.com/bnema/multisession/internal/ports"
)

type ManagerDeps struct {
	Credentials    ports.CredentialStore
	ActiveAccounts ports.ActiveAccountRepository
	Dialer         ports.Dialer
	Registry       *Registry
	Clock          ports.Clock
	Logger         *zap.Logger
	Config         SupervisorConfig
	Inbound        InboundHandler
}

// Manager is the surface the command layer talks to. It keeps at most one
// Supervisor per account.
type Manager struct {
	registry *Registry
	cfg      SupervisorConfig
	deps     supervisorDeps
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	supervisors map[domain.AccountID]*Supervisor
	closed      bool
}

func NewManager(deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry: registry,
		cfg:      deps.Config,
		deps: supervisorDeps{
			credentials: deps.Credentials,
			active:      deps.ActiveAccounts,
			dialer:      deps.Dialer,
			registry:    registry,
			clock:       clock,
			logger:      logger,
			inbound:     deps.Inbound,
		},
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		supervisors: make(map[domain.AccountID]*Supervisor),
	}
	m.deps.exited = m.forget

	return m
}

type connectOptions struct {
	allowPairing bool
}

type ConnectOption func(*connectOptions)

// WithoutPairing makes Connect fail with ErrInconsistentState instead of
// requesting a pairing code when the account has no credentials.
func WithoutPairing() ConnectOption {
	return func(o *connectOptions) { o.allowPairing = false }
}

// Connect starts a Supervisor for id. The Supervisor outlives ctx; use
// Disconnect or Shutdown to stop it. If one is already running it is
// returned together with ErrDuplicateConnectionRequest.
func (m *Manager) Connect(ctx context.Context, id domain.AccountID, notifier ports.Notifier, opts ...ConnectOption) (*Supervisor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.ErrInvalidAccountID
	}

	options := connectOptions{allowPairing: true}
	for _, opt := range opts {
		opt(&options)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("manager is shut down")
	}
	if _, ok := m.registry.Get(id); ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyConnected, id)
	}
	if running, ok := m.supervisors[id]; ok {
		return running, fmt.Errorf("%w: %s", domain.ErrDuplicateConnectionRequest, id)
	}

	sup := newSupervisor(m.ctx, id, m.cfg, options.allowPairing, notifier, m.deps)
	m.supervisors[id] = sup
	go sup.run()

	m.logger.Info("supervisor started", logging.Account(id), zap.Bool("pairing", options.allowPairing))
	return sup, nil
}

// forget drops sup from the running set. It runs before sup's Done closes,
// so a Connect issued after Done never sees the stopped Supervisor.
func (m *Manager) forget(sup *Supervisor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.supervisors[sup.id] == sup {
		delete(m.supervisors, sup.id)
	}
}

func (m *Manager) ListConnected() []domain.AccountID {
	return m.registry.List()
}

func (m *Manager) IsConnected(id domain.AccountID) bool {
	_, ok := m.registry.Get(id)
	return ok
}

// SendVia sends through the live connection of via. Nothing reaches the
// network when via is not connected.
func (m *Manager) SendVia(ctx context.Context, via, to domain.AccountID, content string) (domain.Ack, error) {
	handle, ok := m.registry.Get(via)
	if !ok {
		return domain.Ack{}, fmt.Errorf("%w: %s", domain.ErrNotConnected, via)
	}
	return handle.Send(ctx, to, content)
}

// SendViaAny sends through the first connected account in List order.
func (m *Manager) SendViaAny(ctx context.Context, to domain.AccountID, content string) (domain.AccountID, domain.Ack, error) {
	for _, via := range m.registry.List() {
		ack, err := m.SendVia(ctx, via, to, content)
		if errors.Is(err, domain.ErrNotConnected) {
			continue
		}
		return via, ack, err
	}
	return "", domain.Ack{}, fmt.Errorf("%w: no connected accounts", domain.ErrNotConnected)
}

// Disconnect stops the account's Supervisor and waits for its handle to
// close. Credentials are kept.
func (m *Manager) Disconnect(ctx context.Context, id domain.AccountID) error {
	m.mu.Lock()
	sup, ok := m.supervisors[id]
	m.mu.Unlock()

	if !ok {
		if handle, found := m.registry.Remove(id); found {
			return handle.Close()
		}
		return fmt.Errorf("%w: %s", domain.ErrNotConnected, id)
	}

	sup.Stop()
	select {
	case <-sup.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("disconnect %s: %w", id, ctx.Err())
	}
}

// Logout disconnects id, deletes its credentials, and removes it from the
// active list.
func (m *Manager) Logout(ctx context.Context, id domain.AccountID) error {
	if err := m.Disconnect(ctx, id); err != nil && !errors.Is(err, domain.ErrNotConnected) {
		return err
	}

	var errs []error
	if err := m.deps.credentials.Delete(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("delete credentials: %w", err))
	}
	if err := m.deps.active.Remove(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("remove active account: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	m.logger.Info("account logged out", logging.Account(id))
	return nil
}

// Shutdown stops every Supervisor and waits until all handles are closed or
// ctx expires. Connect fails afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	running := make([]*Supervisor, 0, len(m.supervisors))
	for _, sup := range m.supervisors {
		running = append(running, sup)
	}
	m.mu.Unlock()

	m.cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, sup := range running {
		g.Go(func() error {
			select {
			case <-sup.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("stop supervisor %s: %w", sup.id, gctx.Err())
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, id := range m.registry.List() {
		if handle, ok := m.registry.Remove(id); ok {
			_ = handle.Close()
		}
	}

	m.logger.Info("manager shut down", zap.Int("supervisors", len(running)))
	return nil
}
