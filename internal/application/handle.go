package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/logging"
	"github.com/bnema/multisession/internal/ports"
)

const controlBuffer = 16

var handleGenerations atomic.Uint64

// Handle wraps one transport session for one account and drives its
// connection state machine:
//
//	Initializing -> PendingAuthentication -> Open -> Closing -> Closed
//
// Closed is terminal. A reconnect creates a new Handle with a new
// generation.
type Handle struct {
	id           domain.AccountID
	generation   uint64
	session      string
	dialer       ports.Dialer
	creds        ports.CredentialStore
	logger       *zap.Logger
	allowPairing bool

	mu               sync.Mutex
	state            domain.ConnectionState
	conn             ports.Conn
	paired           bool
	pairingRequested bool
	closeReason      domain.CloseReason
	cancel           context.CancelFunc

	control    chan domain.ControlEvent
	updates    *inboxQueue[domain.InboundMessage]
	done       chan struct{}
	finishOnce sync.Once
}

type HandleOptions struct {
	// AllowPairing lets the handle request a pairing code when it is opened
	// with an unpaired bundle.
	AllowPairing bool
	Logger       *zap.Logger
}

func NewHandle(id domain.AccountID, dialer ports.Dialer, creds ports.CredentialStore, opts HandleOptions) *Handle {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Handle{
		id:           id,
		generation:   handleGenerations.Add(1),
		session:      uuid.NewString(),
		dialer:       dialer,
		creds:        creds,
		allowPairing: opts.AllowPairing,
		state:        domain.StateInitializing,
		control:      make(chan domain.ControlEvent, controlBuffer),
		updates:      newInboxQueue[domain.InboundMessage](),
		done:         make(chan struct{}),
	}
	h.logger = logger.With(logging.Account(id), zap.Uint64("generation", h.generation), zap.String("session", h.session))

	return h
}

func (h *Handle) AccountID() domain.AccountID { return h.id }

func (h *Handle) Generation() uint64 { return h.generation }

func (h *Handle) State() domain.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// CloseReason is valid once Done is closed.
func (h *Handle) CloseReason() domain.CloseReason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeReason
}

// Done is closed when the handle reaches Closed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Open dials the transport and starts the handshake. The returned inbound
// channel is unbounded and closes after the handle closes; the control
// channel delivers lifecycle events in transport order and is closed after
// the Closed event. ctx bounds the dial only.
func (h *Handle) Open(ctx context.Context, bundle domain.CredentialBundle) (<-chan domain.InboundMessage, <-chan domain.ControlEvent, error) {
	h.mu.Lock()
	if h.state != domain.StateInitializing {
		state := h.state
		h.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: open from %s", domain.ErrInvalidTransition, state)
	}
	h.mu.Unlock()

	conn, err := h.dialer.Dial(ctx, h.id, bundle)
	if err != nil {
		h.finish(domain.TransportLost(err))
		return nil, nil, fmt.Errorf("%w: dial: %w", domain.ErrTransport, err)
	}

	h.mu.Lock()
	if h.state != domain.StateInitializing {
		h.mu.Unlock()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: handle closed while dialing", domain.ErrNotConnected)
	}
	pumpCtx, cancel := context.WithCancel(context.Background())
	h.conn = conn
	h.cancel = cancel
	h.paired = bundle.Paired()
	h.state = domain.StatePendingAuthentication
	h.mu.Unlock()

	h.logger.Debug("transport dialed", zap.Bool("paired", bundle.Paired()))

	go h.pump(pumpCtx, conn)

	return h.updates.C(), h.control, nil
}

// Send transmits one message. It never touches the network unless the
// handle is Open.
func (h *Handle) Send(ctx context.Context, to domain.AccountID, content string) (domain.Ack, error) {
	h.mu.Lock()
	state, conn := h.state, h.conn
	h.mu.Unlock()

	if state != domain.StateOpen {
		return domain.Ack{}, fmt.Errorf("%w: account %s is %s", domain.ErrNotConnected, h.id, state)
	}

	ack, err := conn.Send(ctx, to, content)
	if err != nil {
		return domain.Ack{}, classifyTransportErr("send", err)
	}

	return ack, nil
}

// RequestPairingCode asks the remote for a pairing code for phone. At most
// one code is issued per handle.
func (h *Handle) RequestPairingCode(ctx context.Context, phone domain.AccountID) (string, error) {
	h.mu.Lock()
	switch {
	case h.paired:
		h.mu.Unlock()
		return "", domain.ErrAlreadyPaired
	case h.state != domain.StatePendingAuthentication:
		state := h.state
		h.mu.Unlock()
		return "", fmt.Errorf("%w: pairing requires pending authentication, handle is %s", domain.ErrNotConnected, state)
	case h.pairingRequested:
		h.mu.Unlock()
		return "", domain.ErrPairingCodeIssued
	}
	h.pairingRequested = true
	conn := h.conn
	h.mu.Unlock()

	code, err := conn.RequestPairingCode(ctx, phone)
	if err != nil {
		return "", classifyTransportErr("request pairing code", err)
	}

	return code, nil
}

// Close unsubscribes from the transport, closes it, and waits for Closed.
// It is safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	switch h.state {
	case domain.StateInitializing:
		h.mu.Unlock()
		h.finish(domain.LocalClose())
		return nil
	case domain.StateClosing, domain.StateClosed:
		h.mu.Unlock()
		<-h.done
		return nil
	}
	h.state = domain.StateClosing
	cancel := h.cancel
	h.mu.Unlock()

	cancel()
	<-h.done
	return nil
}

func (h *Handle) pump(ctx context.Context, conn ports.Conn) {
	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			h.finish(domain.LocalClose())
			return

		case ev, ok := <-events:
			if !ok {
				h.finish(domain.TransportLost(io.ErrUnexpectedEOF))
				return
			}

			switch ev.Kind {
			case domain.TransportConnecting:
				h.emit(ctx, domain.ControlEvent{Kind: domain.ControlConnecting})
				h.requestPairing(ctx)

			case domain.TransportCredentials:
				if err := h.creds.Apply(ctx, h.id, ev.Delta); err != nil {
					if ctx.Err() != nil {
						h.finish(domain.LocalClose())
						return
					}
					h.logger.Error("persist rotated credentials", zap.Error(err))
					h.finish(domain.StorageFailure(err))
					return
				}
				if ev.Delta.Creds != nil {
					h.mu.Lock()
					h.paired = true
					h.mu.Unlock()
				}

			case domain.TransportOpen:
				if !h.transition(domain.StateOpen) {
					continue
				}
				h.logger.Info("connection open")
				h.emit(ctx, domain.ControlEvent{Kind: domain.ControlOpen})

			case domain.TransportClosed:
				h.finish(ev.Reason)
				return

			case domain.TransportMessage:
				h.updates.Push(ev.Message)
			}
		}
	}
}

// requestPairing asks for a code on the first Connecting of an unpaired
// handle. The pump waits for the reply, so the code is reported ahead of
// every event the transport delivered after it.
func (h *Handle) requestPairing(ctx context.Context) {
	h.mu.Lock()
	request := h.allowPairing && !h.paired && !h.pairingRequested
	h.mu.Unlock()
	if !request {
		return
	}

	code, err := h.RequestPairingCode(ctx, h.id)
	switch {
	case errors.Is(err, domain.ErrPairingCodeIssued), ctx.Err() != nil:
	case err != nil:
		h.logger.Warn("pairing code request failed", zap.Error(err))
		h.emit(ctx, domain.ControlEvent{Kind: domain.ControlPairingFailed, Err: err})
	default:
		h.logger.Info("pairing code issued")
		h.emit(ctx, domain.ControlEvent{Kind: domain.ControlPairingCodeIssued, PairingCode: code})
	}
}

func (h *Handle) transition(to domain.ConnectionState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.state.CanTransition(to) {
		h.logger.Warn("ignored invalid transition", zap.Stringer("from", h.state), zap.Stringer("to", to))
		return false
	}
	h.state = to
	return true
}

// emit delivers a lifecycle event unless the handle has been unsubscribed.
func (h *Handle) emit(ctx context.Context, ev domain.ControlEvent) {
	select {
	case h.control <- ev:
	case <-ctx.Done():
	}
}

func (h *Handle) finish(reason domain.CloseReason) {
	h.finishOnce.Do(func() {
		h.mu.Lock()
		conn, cancel := h.conn, h.cancel
		h.state = domain.StateClosed
		h.closeReason = reason
		h.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				h.logger.Debug("close transport", zap.Error(err))
			}
		}

		h.updates.Close()
		select {
		case h.control <- domain.ControlEvent{Kind: domain.ControlClosed, Reason: reason}:
		default:
		}
		close(h.control)
		close(h.done)

		h.logger.Info("connection closed",
			zap.Int("code", reason.Code),
			zap.Stringer("class", reason.Classify()),
			zap.String("reason", reason.Error()),
		)
	})
}

func classifyTransportErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrThrottled),
		errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrUnsupportedAccount),
		errors.Is(err, domain.ErrAlreadyPaired),
		errors.Is(err, domain.ErrTransport),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrTransport, op, err)
	}
}
