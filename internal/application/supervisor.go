package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/logging"
	"github.com/bnema/multisession/internal/ports"
)

type SupervisorConfig struct {
	HandshakeTimeout time.Duration
	PairingTimeout   time.Duration
	Backoff          BackoffPolicy
	// MaxAttempts caps consecutive reconnects; zero means unlimited.
	MaxAttempts int
	// PruneOnLogout removes the account from the active list when the
	// remote revokes its credentials.
	PruneOnLogout bool
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		HandshakeTimeout: 30 * time.Second,
		PairingTimeout:   2 * time.Minute,
		Backoff:          DefaultBackoffPolicy(),
		PruneOnLogout:    true,
	}
}

// InboundHandler receives every inbound message of every account. It runs on
// the account's forwarding goroutine and should not block for long.
type InboundHandler func(id domain.AccountID, msg domain.InboundMessage)

type supervisorDeps struct {
	credentials ports.CredentialStore
	active      ports.ActiveAccountRepository
	dialer      ports.Dialer
	registry    *Registry
	clock       ports.Clock
	logger      *zap.Logger
	inbound     InboundHandler
	// exited runs after the loop stops and before Done is closed.
	exited func(*Supervisor)
}

// Supervisor owns the connection lifecycle of one account: it opens
// handles, registers them once Open, and decides whether to reconnect when
// they close. Exactly one Supervisor runs per account.
type Supervisor struct {
	id           domain.AccountID
	cfg          SupervisorConfig
	allowPairing bool
	notifier     ports.Notifier
	deps         supervisorDeps
	logger       *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	settled chan struct{}
	settle  sync.Once
	forward sync.WaitGroup

	mu      sync.Mutex
	outcome domain.StatusEvent
	err     error
}

func newSupervisor(parent context.Context, id domain.AccountID, cfg SupervisorConfig, allowPairing bool, notifier ports.Notifier, deps supervisorDeps) *Supervisor {
	if notifier == nil {
		notifier = ports.NopNotifier{}
	}
	ctx, cancel := context.WithCancel(parent)

	return &Supervisor{
		id:           id,
		cfg:          cfg,
		allowPairing: allowPairing,
		notifier:     notifier,
		deps:         deps,
		logger:       deps.logger.With(logging.Account(id)),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		settled:      make(chan struct{}),
	}
}

func (s *Supervisor) AccountID() domain.AccountID { return s.id }

// Stop asks the loop to close the current handle and exit.
func (s *Supervisor) Stop() {
	s.cancel()
}

// Done is closed when the loop has exited and every handle it opened is
// Closed.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the first Connected or Failed status, returning that
// status and, for Failed, the cause.
func (s *Supervisor) Wait(ctx context.Context) (domain.StatusEvent, error) {
	select {
	case <-s.settled:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.outcome, s.err
	case <-ctx.Done():
		return domain.StatusEvent{}, ctx.Err()
	}
}

type attemptResult struct {
	reason domain.CloseReason
	opened bool
	err    error
}

func (s *Supervisor) run() {
	defer close(s.done)
	defer func() {
		if s.deps.exited != nil {
			s.deps.exited(s)
		}
	}()
	defer s.forward.Wait()
	defer s.cancel()

	s.notify(domain.StatusEvent{Kind: domain.StatusInitializing})

	failures := 0
	for {
		result := s.attempt()
		if s.ctx.Err() != nil {
			s.fail(fmt.Errorf("supervisor stopped: %w", s.ctx.Err()), true)
			return
		}
		if result.opened {
			failures = 0
		}

		class, cause := s.classify(result)
		s.logger.Debug("attempt ended", zap.Stringer("class", class), zap.Error(cause))

		switch class {
		case domain.CloseRecoverable:
			failures++
			if s.cfg.MaxAttempts > 0 && failures > s.cfg.MaxAttempts {
				s.fail(fmt.Errorf("give up after %d reconnect attempts: %w", s.cfg.MaxAttempts, cause), false)
				return
			}

			delay := s.cfg.Backoff.Delay(failures)
			s.logger.Warn("reconnecting",
				zap.Int("attempt", failures),
				zap.Duration("delay", delay),
				zap.Error(cause),
			)
			s.notify(domain.StatusEvent{Kind: domain.StatusReconnecting, Attempt: failures, Reason: cause.Error()})

			select {
			case <-s.ctx.Done():
				s.fail(fmt.Errorf("supervisor stopped: %w", s.ctx.Err()), true)
				return
			case <-s.deps.clock.After(delay):
			}

		case domain.CloseTerminal:
			s.purge(s.cfg.PruneOnLogout)
			s.fail(fmt.Errorf("%w: %w", domain.ErrAuthenticationExpired, cause), false)
			return

		case domain.CloseLocal:
			s.fail(errors.New("supervisor stopped: closed locally"), true)
			return

		default:
			if errors.Is(cause, domain.ErrPairingFailed) {
				s.purge(false)
			}
			s.fail(cause, false)
			return
		}
	}
}

func (s *Supervisor) classify(result attemptResult) (domain.CloseClass, error) {
	if result.err == nil {
		return result.reason.Classify(), result.reason
	}

	switch {
	case errors.Is(result.err, domain.ErrAuthenticationExpired):
		return domain.CloseTerminal, result.err
	case errors.Is(result.err, domain.ErrStorage),
		errors.Is(result.err, domain.ErrPairingFailed),
		errors.Is(result.err, domain.ErrInconsistentState):
		return domain.CloseFinal, result.err
	case errors.Is(result.err, domain.ErrTransport):
		return domain.CloseRecoverable, result.err
	default:
		return domain.CloseFinal, result.err
	}
}

// attempt runs one handle from Initializing to Closed.
func (s *Supervisor) attempt() attemptResult {
	bundle, err := s.deps.credentials.Load(s.ctx, s.id)
	if err != nil {
		return attemptResult{err: fmt.Errorf("load credentials: %w", err)}
	}
	if !bundle.Paired() && !s.allowPairing {
		return attemptResult{err: fmt.Errorf("%w: account %s has no paired credentials", domain.ErrInconsistentState, s.id)}
	}
	// An operator is waiting on a pairing attempt, so it is never retried.
	pairingAttempt := !bundle.Paired()

	handle := NewHandle(s.id, s.deps.dialer, s.deps.credentials, HandleOptions{
		AllowPairing: s.allowPairing,
		Logger:       s.deps.logger,
	})
	dialCtx, cancelDial := context.WithTimeout(s.ctx, s.cfg.HandshakeTimeout)
	updates, control, err := handle.Open(dialCtx, bundle)
	cancelDial()
	if err != nil {
		if pairingAttempt {
			return attemptResult{err: fmt.Errorf("%w: %w", domain.ErrPairingFailed, err)}
		}
		return attemptResult{err: err}
	}
	s.forwardInbound(updates)

	deadline := s.deps.clock.After(s.cfg.HandshakeTimeout)
	pairing := false
	opened := false

	for {
		select {
		case <-s.ctx.Done():
			s.release(handle, control)
			return attemptResult{reason: domain.LocalClose(), opened: opened}

		case <-deadline:
			s.release(handle, control)
			if pairing {
				return attemptResult{err: fmt.Errorf("%w: pairing code not confirmed within %s", domain.ErrPairingFailed, s.cfg.PairingTimeout)}
			}
			if pairingAttempt {
				return attemptResult{err: fmt.Errorf("%w: no pairing code within %s", domain.ErrPairingFailed, s.cfg.HandshakeTimeout)}
			}
			return attemptResult{err: fmt.Errorf("%w: handshake not completed within %s", domain.ErrTransport, s.cfg.HandshakeTimeout)}

		case ev, ok := <-control:
			if !ok {
				s.deps.registry.CompareAndRemove(s.id, handle)
				reason := handle.CloseReason()
				if pairingAttempt && !opened && reason.Classify() == domain.CloseRecoverable && !s.pairedNow() {
					return attemptResult{err: fmt.Errorf("%w: %w", domain.ErrPairingFailed, reason)}
				}
				return attemptResult{reason: reason, opened: opened}
			}

			switch ev.Kind {
			case domain.ControlConnecting:
				s.logger.Debug("connecting", zap.Uint64("generation", handle.Generation()))

			case domain.ControlPairingCodeIssued:
				if !opened {
					pairing = true
					deadline = s.deps.clock.After(s.cfg.PairingTimeout)
				}
				s.notify(domain.StatusEvent{Kind: domain.StatusPairingCode, PairingCode: ev.PairingCode})

			case domain.ControlPairingFailed:
				s.release(handle, control)
				return attemptResult{err: fmt.Errorf("%w: %w", domain.ErrPairingFailed, ev.Err)}

			case domain.ControlOpen:
				if err := s.deps.registry.Put(s.id, handle); err != nil {
					s.logger.Warn("register handle", zap.Error(err))
					continue
				}
				opened = true
				deadline = nil
				if err := s.deps.active.Add(s.ctx, s.id); err != nil {
					s.logger.Error("record active account", zap.Error(err))
				}
				s.logger.Info("connected", zap.Uint64("generation", handle.Generation()))
				s.notify(domain.StatusEvent{Kind: domain.StatusConnected})

			case domain.ControlClosed:
				// The control channel closes right after; the reason is
				// read from the handle there.
			}
		}
	}
}

// pairedNow reports whether credentials were persisted during the attempt.
// A restart request right after pairing is then an ordinary reconnect.
func (s *Supervisor) pairedNow() bool {
	paired, err := s.deps.credentials.Paired(context.WithoutCancel(s.ctx), s.id)
	if err != nil {
		s.logger.Warn("check paired credentials", zap.Error(err))
		return false
	}
	return paired
}

// release closes the handle, drains its control channel, and only then
// removes it from the registry.
func (s *Supervisor) release(handle *Handle, control <-chan domain.ControlEvent) {
	_ = handle.Close()
	for range control {
	}
	s.deps.registry.CompareAndRemove(s.id, handle)
}

func (s *Supervisor) forwardInbound(updates <-chan domain.InboundMessage) {
	s.forward.Add(1)
	go func() {
		defer s.forward.Done()
		for msg := range updates {
			if s.deps.inbound != nil {
				s.deps.inbound(s.id, msg)
			}
		}
	}()
}

// purge deletes the account's credentials and optionally prunes it from
// the active list. It runs after the loop has no open handle.
func (s *Supervisor) purge(prune bool) {
	ctx := context.WithoutCancel(s.ctx)

	if err := s.deps.credentials.Delete(ctx, s.id); err != nil {
		s.logger.Error("delete credentials", zap.Error(err))
	} else {
		s.logger.Info("credentials deleted")
	}

	if !prune {
		return
	}
	if err := s.deps.active.Remove(ctx, s.id); err != nil {
		s.logger.Error("prune active account", zap.Error(err))
	}
}

// fail reports Failed. A quiet failure after the account already connected
// (the owner stopped it) is only logged.
func (s *Supervisor) fail(err error, quiet bool) {
	select {
	case <-s.settled:
		if quiet {
			s.logger.Info("supervisor stopped")
			return
		}
	default:
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}

	s.logger.Error("connection failed", zap.Error(err))
	s.notify(domain.StatusEvent{Kind: domain.StatusFailed, Reason: err.Error()})
}

func (s *Supervisor) notify(ev domain.StatusEvent) {
	ev.At = s.deps.clock.Now()
	s.notifier.Notify(s.id, ev)

	if !ev.Terminal() {
		return
	}
	s.settle.Do(func() {
		s.mu.Lock()
		s.outcome = ev
		s.mu.Unlock()
		close(s.settled)
	})
}
