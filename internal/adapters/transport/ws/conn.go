// Package ws connects accounts through a messaging gateway that speaks a
// JSON protocol over WebSocket. The gateway terminates the network's own
// protocol; this side only sees credentials, lifecycle, and messages.
package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/logging"
	"github.com/bnema/multisession/internal/ports"
)

const (
	eventBuffer  = 256
	writeTimeout = 10 * time.Second
	maxFrameSize = 4 << 20
)

var _ ports.Dialer = (*Dialer)(nil)
var _ ports.Conn = (*Conn)(nil)

type Dialer struct {
	url         string
	dialTimeout time.Duration
	dialer      *websocket.Dialer
	logger      *zap.Logger
}

func NewDialer(url string, dialTimeout time.Duration, logger *zap.Logger) *Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{
		url:         url,
		dialTimeout: dialTimeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
		},
		logger: logger,
	}
}

// Dial opens a gateway session for id and announces its credentials.
func (d *Dialer) Dial(ctx context.Context, id domain.AccountID, bundle domain.CredentialBundle) (ports.Conn, error) {
	if d.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.dialTimeout)
		defer cancel()
	}

	socket, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial gateway %s: %w", d.url, err)
	}
	socket.SetReadLimit(maxFrameSize)

	c := &Conn{
		socket:   socket,
		account:  id,
		logger:   d.logger.With(logging.Account(id)),
		events:   make(chan domain.TransportEvent, eventBuffer),
		pending:  make(map[string]pendingRequest),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}

	hello := Hello{Type: TypeHello, Account: id.String(), Creds: bundle.Creds, Keys: bundle.Keys}
	if err := c.write(hello); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	go c.readLoop()
	return c, nil
}

type reply struct {
	code string
	ack  domain.Ack
	err  error
}

type pendingRequest struct {
	op string
	ch chan reply
}

// Conn is one gateway session. Writes are serialized; a single goroutine
// reads.
type Conn struct {
	socket  *websocket.Conn
	account domain.AccountID
	logger  *zap.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]pendingRequest

	events    chan domain.TransportEvent
	closeOnce sync.Once
	closed    chan struct{}
	readDone  chan struct{}
}

func (c *Conn) Events() <-chan domain.TransportEvent {
	return c.events
}

func (c *Conn) RequestPairingCode(ctx context.Context, phone domain.AccountID) (string, error) {
	id := uuid.NewString()
	res, err := c.request(ctx, TypePair, id, Pair{Type: TypePair, ID: id, Phone: phone.String()})
	if err != nil {
		return "", err
	}
	return res.code, nil
}

func (c *Conn) Send(ctx context.Context, to domain.AccountID, content string) (domain.Ack, error) {
	id := uuid.NewString()
	res, err := c.request(ctx, TypeSend, id, Send{Type: TypeSend, ID: id, To: to.String(), Content: content})
	if err != nil {
		return domain.Ack{}, err
	}
	return res.ack, nil
}

// Close ends the session and waits for the reader to exit. Events is closed
// without a close event.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		_ = c.socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.socket.Close()
	})
	<-c.readDone
	return err
}

func (c *Conn) request(ctx context.Context, op, id string, frame any) (reply, error) {
	ch := make(chan reply, 1)

	c.pendingMu.Lock()
	c.pending[id] = pendingRequest{op: op, ch: ch}
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(frame); err != nil {
		return reply{}, fmt.Errorf("%w: write %s: %w", domain.ErrTransport, op, err)
	}

	select {
	case res := <-ch:
		return res, res.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-c.readDone:
		return reply{}, fmt.Errorf("%w: gateway session ended", domain.ErrNotConnected)
	}
}

func (c *Conn) write(frame any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return domain.ErrNotConnected
	default:
	}

	if err := c.socket.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.socket.WriteJSON(frame)
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer close(c.events)

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Debug("gateway read failed", zap.Error(err))
			}
			return
		}

		env, err := decodeFrame[Envelope](data)
		if err != nil {
			c.logger.Warn("drop malformed frame", zap.Error(err))
			continue
		}

		if done := c.dispatch(env, data); done {
			_ = c.socket.Close()
			return
		}
	}
}

// dispatch handles one frame and reports whether the session is over.
func (c *Conn) dispatch(env Envelope, data []byte) bool {
	switch env.Type {
	case TypeConnecting:
		c.emit(domain.TransportEvent{Kind: domain.TransportConnecting})

	case TypeOpen:
		c.emit(domain.TransportEvent{Kind: domain.TransportOpen})

	case TypeClose:
		frame, err := decodeFrame[Close](data)
		if err != nil {
			c.logger.Warn("drop malformed close frame", zap.Error(err))
			return false
		}
		c.emit(domain.TransportEvent{
			Kind:   domain.TransportClosed,
			Reason: domain.CloseReason{Code: frame.Code, Message: frame.Message},
		})
		return true

	case TypeCreds:
		frame, err := decodeFrame[Creds](data)
		if err != nil {
			c.logger.Warn("drop malformed creds frame", zap.Error(err))
			return false
		}
		c.emit(domain.TransportEvent{
			Kind:  domain.TransportCredentials,
			Delta: domain.CredentialDelta{Creds: frame.Creds, Keys: frame.Keys},
		})

	case TypeMessage:
		frame, err := decodeFrame[Message](data)
		if err != nil {
			c.logger.Warn("drop malformed message frame", zap.Error(err))
			return false
		}
		c.emit(domain.TransportEvent{
			Kind: domain.TransportMessage,
			Message: domain.InboundMessage{
				ID:        frame.MessageID,
				From:      domain.AccountID(frame.From),
				Content:   frame.Content,
				Timestamp: unixMillis(frame.Timestamp),
			},
		})

	case TypePairingCode:
		frame, err := decodeFrame[PairingCode](data)
		if err == nil {
			c.resolve(frame.ID, reply{code: frame.Code})
		}

	case TypeAck:
		frame, err := decodeFrame[Ack](data)
		if err == nil {
			c.resolve(frame.ID, reply{ack: domain.Ack{MessageID: frame.MessageID, Timestamp: unixMillis(frame.Timestamp)}})
		}

	case TypeError:
		frame, err := decodeFrame[Error](data)
		if err != nil {
			return false
		}
		c.pendingMu.Lock()
		req, ok := c.pending[frame.ID]
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Warn("gateway error", zap.Int("code", frame.Code), zap.String("message", frame.Message))
			return false
		}
		c.deliver(req, reply{err: gatewayError(req.op, frame)})

	default:
		c.logger.Debug("ignore unknown frame", zap.String("type", env.Type))
	}

	return false
}

func (c *Conn) resolve(id string, res reply) {
	c.pendingMu.Lock()
	req, ok := c.pending[id]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug("reply for unknown request", zap.String("id", id))
		return
	}
	c.deliver(req, res)
}

func (c *Conn) deliver(req pendingRequest, res reply) {
	select {
	case req.ch <- res:
	default:
	}
}

func (c *Conn) emit(ev domain.TransportEvent) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}
