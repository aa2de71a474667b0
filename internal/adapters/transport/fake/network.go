// Package fake is a scripted in-memory messaging network for exercising the
// session lifecycle without a gateway.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/ports"
)

const (
	DefaultPairingCode = "ABCD1234"
	eventBuffer        = 256
)

var _ ports.Dialer = (*Network)(nil)
var _ ports.Conn = (*Conn)(nil)

// Sent records one message accepted by the network.
type Sent struct {
	Via     domain.AccountID
	To      domain.AccountID
	Content string
}

// Network accepts paired bundles immediately and answers pairing requests
// with DefaultPairingCode. Tests steer it with the control helpers.
type Network struct {
	mu          sync.Mutex
	conns       map[domain.AccountID]*Conn
	dials       map[domain.AccountID]int
	dialErrs    map[domain.AccountID]error
	holdOpen    map[domain.AccountID]bool
	unsupported map[domain.AccountID]bool
	throttled   map[domain.AccountID]bool
	sent        []Sent
	sequence    int
	now         func() time.Time
}

func NewNetwork() *Network {
	return &Network{
		conns:       make(map[domain.AccountID]*Conn),
		dials:       make(map[domain.AccountID]int),
		dialErrs:    make(map[domain.AccountID]error),
		holdOpen:    make(map[domain.AccountID]bool),
		unsupported: make(map[domain.AccountID]bool),
		throttled:   make(map[domain.AccountID]bool),
		now:         time.Now,
	}
}

func (n *Network) Dial(ctx context.Context, id domain.AccountID, bundle domain.CredentialBundle) (ports.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.dials[id]++
	if err := n.dialErrs[id]; err != nil {
		n.mu.Unlock()
		return nil, err
	}
	conn := &Conn{
		network: n,
		id:      id,
		events:  make(chan domain.TransportEvent, eventBuffer),
	}
	n.conns[id] = conn
	hold := n.holdOpen[id]
	n.mu.Unlock()

	conn.emit(domain.TransportEvent{Kind: domain.TransportConnecting})
	if bundle.Paired() && !hold {
		conn.emit(domain.TransportEvent{Kind: domain.TransportOpen})
	}

	return conn, nil
}

// FailDials makes every dial for id return err until cleared with nil.
func (n *Network) FailDials(id domain.AccountID, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dialErrs[id] = err
}

// HoldOpen keeps new connections for id pending authentication.
func (n *Network) HoldOpen(id domain.AccountID, hold bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.holdOpen[id] = hold
}

// RejectPairing makes pairing requests for id fail as unsupported.
func (n *Network) RejectPairing(id domain.AccountID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unsupported[id] = true
}

func (n *Network) Throttle(id domain.AccountID, throttled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.throttled[id] = throttled
}

// ConfirmPairing completes a pending pairing: the remote rotates in fresh
// credentials and opens the connection.
func (n *Network) ConfirmPairing(id domain.AccountID) error {
	conn, err := n.current(id)
	if err != nil {
		return err
	}
	conn.emit(domain.TransportEvent{
		Kind: domain.TransportCredentials,
		Delta: domain.CredentialDelta{
			Creds: []byte(fmt.Sprintf(`{"me":"%s"}`, id)),
			Keys:  map[string][]byte{"pre-key:1": []byte("k1")},
		},
	})
	conn.emit(domain.TransportEvent{Kind: domain.TransportOpen})
	return nil
}

// Open opens a held connection.
func (n *Network) Open(id domain.AccountID) error {
	conn, err := n.current(id)
	if err != nil {
		return err
	}
	conn.emit(domain.TransportEvent{Kind: domain.TransportOpen})
	return nil
}

// Drop closes the current connection of id with a remote close code.
func (n *Network) Drop(id domain.AccountID, code int, message string) error {
	conn, err := n.current(id)
	if err != nil {
		return err
	}
	conn.emit(domain.TransportEvent{Kind: domain.TransportClosed, Reason: domain.CloseReason{Code: code, Message: message}})
	conn.shutdown()
	return nil
}

// Sever ends the current connection of id without a close frame.
func (n *Network) Sever(id domain.AccountID) error {
	conn, err := n.current(id)
	if err != nil {
		return err
	}
	conn.shutdown()
	return nil
}

func (n *Network) Rotate(id domain.AccountID, delta domain.CredentialDelta) error {
	conn, err := n.current(id)
	if err != nil {
		return err
	}
	conn.emit(domain.TransportEvent{Kind: domain.TransportCredentials, Delta: delta})
	return nil
}

// Deliver sends an inbound message to id from from.
func (n *Network) Deliver(id, from domain.AccountID, content string) error {
	conn, err := n.current(id)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.sequence++
	msg := domain.InboundMessage{
		ID:        fmt.Sprintf("in-%d", n.sequence),
		From:      from,
		Content:   content,
		Timestamp: n.now(),
	}
	n.mu.Unlock()

	conn.emit(domain.TransportEvent{Kind: domain.TransportMessage, Message: msg})
	return nil
}

func (n *Network) Dials(id domain.AccountID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials[id]
}

func (n *Network) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}

func (n *Network) current(id domain.AccountID) (*Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	conn, ok := n.conns[id]
	if !ok || conn.isClosed() {
		return nil, fmt.Errorf("%w: no live fake connection for %s", domain.ErrNotConnected, id)
	}
	return conn, nil
}

// Conn is one fake transport session.
type Conn struct {
	network *Network
	id      domain.AccountID

	mu     sync.Mutex
	events chan domain.TransportEvent
	closed bool
}

func (c *Conn) Events() <-chan domain.TransportEvent {
	return c.events
}

func (c *Conn) RequestPairingCode(ctx context.Context, phone domain.AccountID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.isClosed() {
		return "", domain.ErrNotConnected
	}

	c.network.mu.Lock()
	unsupported := c.network.unsupported[phone]
	c.network.mu.Unlock()
	if unsupported {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedAccount, phone)
	}

	return DefaultPairingCode, nil
}

func (c *Conn) Send(ctx context.Context, to domain.AccountID, content string) (domain.Ack, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ack{}, err
	}
	if c.isClosed() {
		return domain.Ack{}, domain.ErrNotConnected
	}

	n := c.network
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.throttled[c.id] {
		return domain.Ack{}, domain.ErrThrottled
	}
	n.sequence++
	n.sent = append(n.sent, Sent{Via: c.id, To: to, Content: content})

	return domain.Ack{MessageID: fmt.Sprintf("out-%d", n.sequence), Timestamp: n.now()}, nil
}

func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

func (c *Conn) emit(ev domain.TransportEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
