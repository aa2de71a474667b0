package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/logging"
	"github.com/bnema/multisession/internal/ports"
)

// BootstrapReport summarises one startup pass over the active account list.
type BootstrapReport struct {
	Started   []domain.AccountID
	Connected []domain.AccountID
	Failed    []domain.AccountID
	Skipped   []domain.AccountID
}

// Bootstrap reconnects every account recorded in the active list without
// ever requesting a pairing code.
type Bootstrap struct {
	active        ports.ActiveAccountRepository
	credentials   ports.CredentialStore
	manager       *Manager
	notifier      ports.Notifier
	settleTimeout time.Duration
	logger        *zap.Logger
}

func NewBootstrap(active ports.ActiveAccountRepository, credentials ports.CredentialStore, manager *Manager, settleTimeout time.Duration, logger *zap.Logger) *Bootstrap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{
		active:        active,
		credentials:   credentials,
		manager:       manager,
		notifier:      ports.NopNotifier{},
		settleTimeout: settleTimeout,
		logger:        logger,
	}
}

// WithNotifier replaces the default no-op notifier used for restored
// accounts.
func (b *Bootstrap) WithNotifier(notifier ports.Notifier) *Bootstrap {
	if notifier != nil {
		b.notifier = notifier
	}
	return b
}

// Run starts a Supervisor for every paired account in the active list and
// waits up to the settle timeout for each one to connect or fail. A zero
// settle timeout returns as soon as the Supervisors are started.
func (b *Bootstrap) Run(ctx context.Context) (BootstrapReport, error) {
	ids, err := b.active.List(ctx)
	if err != nil {
		return BootstrapReport{}, fmt.Errorf("list active accounts: %w", err)
	}
	b.logger.Info("found active sessions", zap.Int("total", len(ids)))

	var report BootstrapReport
	started := make([]*Supervisor, 0, len(ids))

	for _, id := range ids {
		paired, err := b.credentials.Paired(ctx, id)
		if err != nil {
			b.logger.Error("check credentials", logging.Account(id), zap.Error(err))
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if !paired {
			b.logger.Error("skip account",
				logging.Account(id),
				zap.Error(fmt.Errorf("%w: listed as active without paired credentials", domain.ErrInconsistentState)),
			)
			report.Skipped = append(report.Skipped, id)
			continue
		}

		sup, err := b.manager.Connect(ctx, id, b.notifier, WithoutPairing())
		switch {
		case errors.Is(err, domain.ErrAlreadyConnected), errors.Is(err, domain.ErrDuplicateConnectionRequest):
			b.logger.Info("account already running", logging.Account(id))
			report.Skipped = append(report.Skipped, id)
			continue
		case err != nil:
			return report, fmt.Errorf("connect %s: %w", id, err)
		}

		b.logger.Info("connecting", logging.Account(id))
		report.Started = append(report.Started, id)
		started = append(started, sup)
	}

	if b.settleTimeout <= 0 || len(started) == 0 {
		return report, nil
	}

	settleCtx, cancel := context.WithTimeout(ctx, b.settleTimeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(settleCtx)
	for _, sup := range started {
		g.Go(func() error {
			status, err := sup.Wait(gctx)
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				if status.Kind == "" {
					b.logger.Warn("account did not settle", logging.Account(sup.id))
					return nil
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if status.Kind == domain.StatusConnected {
				report.Connected = append(report.Connected, sup.id)
			} else {
				report.Failed = append(report.Failed, sup.id)
			}
			return nil
		})
	}
	_ = g.Wait()

	sortIDs(report.Connected)
	sortIDs(report.Failed)

	b.logger.Info("bootstrap settled",
		zap.Int("started", len(report.Started)),
		zap.Int("connected", len(report.Connected)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

func sortIDs(ids []domain.AccountID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
