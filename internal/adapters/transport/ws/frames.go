package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bnema/multisession/internal/domain"
)

// Frame types of the gateway protocol. Every frame is one JSON text message
// with a "type" field.
const (
	TypeHello       = "hello"
	TypePair        = "pair"
	TypeSend        = "send"
	TypeConnecting  = "connecting"
	TypeOpen        = "open"
	TypeClose       = "close"
	TypeCreds       = "creds"
	TypeMessage     = "message"
	TypePairingCode = "pairing_code"
	TypeAck         = "ack"
	TypeError       = "error"
)

type Envelope struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type Hello struct {
	Type    string            `json:"type"`
	Account string            `json:"account"`
	Creds   []byte            `json:"creds,omitempty"`
	Keys    map[string][]byte `json:"keys,omitempty"`
}

type Pair struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Phone string `json:"phone"`
}

type Send struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	To      string `json:"to"`
	Content string `json:"content"`
}

type Close struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// Creds carries a credential rotation. A null key value deletes that key.
type Creds struct {
	Type  string            `json:"type"`
	Creds []byte            `json:"creds,omitempty"`
	Keys  map[string][]byte `json:"keys,omitempty"`
}

type Message struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type PairingCode struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Code string `json:"code"`
}

type Ack struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Timestamp int64  `json:"timestamp"`
}

type Error struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func unixMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func decodeFrame[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode frame: %w", err)
	}
	return out, nil
}

// gatewayError maps an error frame onto the domain errors for op.
func gatewayError(op string, frame Error) error {
	switch {
	case frame.Code == 429:
		return fmt.Errorf("%w: %s", domain.ErrThrottled, frame.Message)
	case op == TypePair && (frame.Code == 400 || frame.Code == 404):
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAccount, frame.Message)
	case op == TypePair && frame.Code == 409:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyPaired, frame.Message)
	default:
		return fmt.Errorf("%w: gateway error %d: %s", domain.ErrTransport, frame.Code, frame.Message)
	}
}
