package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	blobfile "github.com/bnema/multisession/internal/adapters/blob/file"
	blobsqlite "github.com/bnema/multisession/internal/adapters/blob/sqlite"
	statusadapter "github.com/bnema/multisession/internal/adapters/render/status"
	tomlrepo "github.com/bnema/multisession/internal/adapters/repo/toml"
	"github.com/bnema/multisession/internal/adapters/sealed"
	"github.com/bnema/multisession/internal/adapters/transport/ws"
	"github.com/bnema/multisession/internal/application"
	"github.com/bnema/multisession/internal/config"
	"github.com/bnema/multisession/internal/logging"
	"github.com/bnema/multisession/internal/ports"
)

type app struct {
	home           string
	cfg            config.Config
	logger         *zap.Logger
	credentials    *application.CredentialStore
	active         *tomlrepo.Repository
	dialer         ports.Dialer
	statusRenderer func([]application.BotStatus, statusadapter.RenderOptions) (string, error)
	closers        []func() error
}

func wireApp(verbose bool) (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg, err := config.Load(viper.New(), homeDir)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	a := &app{
		home:           homeDir,
		cfg:            cfg,
		logger:         logger,
		statusRenderer: statusadapter.Render,
	}

	blobs, err := a.wireBlobStore()
	if err != nil {
		_ = a.close()
		return nil, err
	}

	sealer, err := wireSealer(cfg.Storage.IdentityFile)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.credentials = application.NewCredentialStore(blobs, sealer, logger.Named("credentials"))

	a.active, err = tomlrepo.NewRepository(filepath.Join(cfg.Sessions.Root, tomlrepo.DefaultFileName))
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("wire active account repository: %w", err)
	}

	a.dialer = ws.NewDialer(cfg.Transport.URL, cfg.Transport.DialTimeout, logger.Named("transport"))

	return a, nil
}

func (a *app) wireBlobStore() (ports.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.SQLitePath), 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		store, err := blobsqlite.Open(a.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("wire sqlite credential backend: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return blobfile.NewStore(a.cfg.Sessions.Root), nil
	}
}

// wireSealer returns a nil interface when no identity file is configured.
func wireSealer(identityFile string) (ports.Sealer, error) {
	if identityFile == "" {
		return nil, nil
	}

	sealer, err := sealed.LoadIdentityFile(identityFile)
	if err != nil {
		return nil, fmt.Errorf("wire credential sealing: %w", err)
	}
	return sealer, nil
}

func (a *app) supervisorConfig() application.SupervisorConfig {
	s := a.cfg.Supervisor
	return application.SupervisorConfig{
		HandshakeTimeout: s.HandshakeTimeout,
		PairingTimeout:   s.PairingTimeout,
		Backoff:          application.BackoffPolicy{Initial: s.BackoffInitial, Max: s.BackoffMax},
		MaxAttempts:      s.MaxAttempts,
		PruneOnLogout:    s.PruneOnLogout,
	}
}

func (a *app) newManager(inbound application.InboundHandler) *application.Manager {
	return application.NewManager(application.ManagerDeps{
		Credentials:    a.credentials,
		ActiveAccounts: a.active,
		Dialer:         a.dialer,
		Clock:          ports.SystemClock{},
		Logger:         a.logger.Named("sessions"),
		Config:         a.supervisorConfig(),
		Inbound:        inbound,
	})
}

// shutdown stops manager within a bounded grace period.
func (a *app) shutdown(manager *application.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return manager.Shutdown(ctx)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
