// Package notify delivers supervisor status events to operators.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/logging"
	"github.com/bnema/multisession/internal/ports"
)

var (
	_ ports.Notifier = (*Log)(nil)
	_ ports.Notifier = (*Terminal)(nil)
	_ ports.Notifier = Multi(nil)
)

// FormatPairingCode groups a pairing code in blocks of four: ABCD1234 becomes
// ABCD-1234.
func FormatPairingCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	runes := []rune(code)
	if len(runes) <= 4 {
		return code
	}

	var b strings.Builder
	for i, r := range runes {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Log writes every status event to a zap logger.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(id domain.AccountID, event domain.StatusEvent) {
	fields := []zap.Field{logging.Account(id), zap.String("status", string(event.Kind))}
	if event.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", event.Attempt))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}

	switch event.Kind {
	case domain.StatusFailed:
		l.logger.Error("session status", fields...)
	case domain.StatusReconnecting:
		l.logger.Warn("session status", fields...)
	case domain.StatusPairingCode:
		l.logger.Info("session status", append(fields, zap.String("pairing_code", FormatPairingCode(event.PairingCode)))...)
	default:
		l.logger.Info("session status", fields...)
	}
}

// Terminal prints one styled line per status event.
type Terminal struct {
	out io.Writer
	mu  sync.Mutex

	stamp   lipgloss.Style
	account lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	code    lipgloss.Style
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{
		out:     out,
		stamp:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		account: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		fail:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		code:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
	}
}

func (t *Terminal) Notify(id domain.AccountID, event domain.StatusEvent) {
	var text string
	switch event.Kind {
	case domain.StatusInitializing:
		text = "initializing session"
	case domain.StatusPairingCode:
		text = "pairing code " + t.code.Render(FormatPairingCode(event.PairingCode)) +
			" (Linked devices > Link with phone number)"
	case domain.StatusConnected:
		text = t.ok.Render("connected")
	case domain.StatusReconnecting:
		text = t.warn.Render(fmt.Sprintf("reconnecting (attempt %d): %s", event.Attempt, event.Reason))
	case domain.StatusFailed:
		text = t.fail.Render("failed: " + event.Reason)
	default:
		text = string(event.Kind)
	}

	at := event.At
	if at.IsZero() {
		at = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintf(t.out, "%s %s %s\n", t.stamp.Render(at.Format("15:04:05")), t.account.Render(id.String()), text)
}

// Multi fans one event out to several notifiers in order.
type Multi []ports.Notifier

func (m Multi) Notify(id domain.AccountID, event domain.StatusEvent) {
	for _, n := range m {
		if n != nil {
			n.Notify(id, event)
		}
	}
}
