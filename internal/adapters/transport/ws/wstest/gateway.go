// Package wstest runs an in-process messaging gateway for tests of the ws
// transport and the CLI.
package wstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bnema/multisession/internal/adapters/transport/ws"
)

const PairingCode = "WXYZ9876"

// Sent is one send frame accepted by the gateway.
type Sent struct {
	Via     string
	To      string
	Content string
}

// Gateway accepts paired hellos immediately, answers pair frames with
// PairingCode, and acknowledges every send.
type Gateway struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	sessions  map[string]*session
	hellos    map[string]int
	rejected  map[string]int
	pairs     map[string]int
	confirm   bool
	throttled bool
	sent      []Sent
	sequence  int
}

type session struct {
	account string
	socket  *websocket.Conn
	mu      sync.Mutex
}

func (s *session) write(frame any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socket.WriteJSON(frame)
}

func NewGateway() *Gateway {
	g := &Gateway{
		sessions: make(map[string]*session),
		hellos:   make(map[string]int),
		rejected: make(map[string]int),
		pairs:    make(map[string]int),
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.serve))
	return g
}

// URL is the ws:// address of the gateway.
func (g *Gateway) URL() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

// Close drops every session and stops the server.
func (g *Gateway) Close() {
	g.mu.Lock()
	for _, s := range g.sessions {
		_ = s.socket.Close()
	}
	g.mu.Unlock()
	g.server.Close()
}

// RejectPairing answers pair frames for account with an error frame.
func (g *Gateway) RejectPairing(account string, code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejected[account] = code
}

// AutoConfirm makes the gateway complete pairing right after it issues a
// code, as if the operator entered it on the phone.
func (g *Gateway) AutoConfirm(confirm bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirm = confirm
}

func (g *Gateway) PairRequests(account string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pairs[account]
}

func (g *Gateway) Throttle(throttled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.throttled = throttled
}

func (g *Gateway) Hellos(account string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hellos[account]
}

func (g *Gateway) Connected(account string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.sessions[account]
	return ok
}

func (g *Gateway) Sent() []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Sent(nil), g.sent...)
}

// ConfirmPairing rotates fresh credentials into account and opens it.
func (g *Gateway) ConfirmPairing(account string) error {
	s, err := g.session(account)
	if err != nil {
		return err
	}
	return confirmPairing(s)
}

func confirmPairing(s *session) error {
	account := s.account
	if err := s.write(ws.Creds{
		Type:  ws.TypeCreds,
		Creds: []byte(fmt.Sprintf(`{"me":"%s"}`, account)),
		Keys:  map[string][]byte{"pre-key:1": []byte("k1")},
	}); err != nil {
		return err
	}
	return s.write(ws.Envelope{Type: ws.TypeOpen})
}

// Drop sends a close frame with code and hangs up.
func (g *Gateway) Drop(account string, code int, message string) error {
	s, err := g.session(account)
	if err != nil {
		return err
	}
	err = s.write(ws.Close{Type: ws.TypeClose, Code: code, Message: message})
	_ = s.socket.Close()
	return err
}

func (g *Gateway) Deliver(account, from, content string) error {
	s, err := g.session(account)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.sequence++
	id := fmt.Sprintf("in-%d", g.sequence)
	g.mu.Unlock()

	return s.write(ws.Message{
		Type:      ws.TypeMessage,
		MessageID: id,
		From:      from,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (g *Gateway) session(account string) (*session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[account]
	if !ok {
		return nil, fmt.Errorf("no gateway session for %s", account)
	}
	return s, nil
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = socket.Close() }()

	var hello ws.Hello
	if err := socket.ReadJSON(&hello); err != nil || hello.Type != ws.TypeHello {
		return
	}

	s := &session{account: hello.Account, socket: socket}
	g.mu.Lock()
	g.sessions[hello.Account] = s
	g.hellos[hello.Account]++
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		if g.sessions[hello.Account] == s {
			delete(g.sessions, hello.Account)
		}
		g.mu.Unlock()
	}()

	if err := s.write(ws.Envelope{Type: ws.TypeConnecting}); err != nil {
		return
	}
	if len(hello.Creds) > 0 {
		if err := s.write(ws.Envelope{Type: ws.TypeOpen}); err != nil {
			return
		}
	}

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			return
		}
		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case ws.TypePair:
			var pair ws.Pair
			if err := json.Unmarshal(data, &pair); err != nil {
				continue
			}
			g.mu.Lock()
			g.pairs[pair.Phone]++
			code := g.rejected[pair.Phone]
			confirm := g.confirm
			g.mu.Unlock()
			if code != 0 {
				_ = s.write(ws.Error{Type: ws.TypeError, ID: pair.ID, Code: code, Message: "pairing rejected"})
				continue
			}
			if err := s.write(ws.PairingCode{Type: ws.TypePairingCode, ID: pair.ID, Code: PairingCode}); err != nil {
				return
			}
			if confirm {
				_ = confirmPairing(s)
			}

		case ws.TypeSend:
			var send ws.Send
			if err := json.Unmarshal(data, &send); err != nil {
				continue
			}
			g.mu.Lock()
			if g.throttled {
				g.mu.Unlock()
				_ = s.write(ws.Error{Type: ws.TypeError, ID: send.ID, Code: 429, Message: "rate limited"})
				continue
			}
			g.sequence++
			messageID := fmt.Sprintf("out-%d", g.sequence)
			g.sent = append(g.sent, Sent{Via: hello.Account, To: send.To, Content: send.Content})
			g.mu.Unlock()
			_ = s.write(ws.Ack{Type: ws.TypeAck, ID: send.ID, MessageID: messageID, Timestamp: time.Now().UnixMilli()})
		}
	}
}
