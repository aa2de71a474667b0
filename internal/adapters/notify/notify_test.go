package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/ports/mocks"
)

func TestFormatPairingCode(t *testing.T) {
	tests := map[string]string{
		"ABCD1234":  "ABCD-1234",
		"abcd1234":  "ABCD-1234",
		"ABC":       "ABC",
		"ABCDEFGHI": "ABCD-EFGH-I",
		" WXYZ9876": "WXYZ-9876",
	}

	for in, want := range tests {
		assert.Equal(t, want, FormatPairingCode(in), in)
	}
}

func TestFormatPairingCodeGroupsByCharacter(t *testing.T) {
	tests := map[string]string{
		"ÄBCD1234": "ÄBCD-1234",
		"ÉÉÉÉ":     "ÉÉÉÉ",
		"日本語テスト12": "日本語テ-スト12",
	}

	for in, want := range tests {
		assert.Equal(t, want, FormatPairingCode(in), in)
	}
}

func TestTerminalPrintsPairingCode(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out)

	term.Notify("111", domain.StatusEvent{
		Kind:        domain.StatusPairingCode,
		PairingCode: "ABCD1234",
		At:          time.Date(2026, 3, 1, 10, 4, 5, 0, time.UTC),
	})
	term.Notify("111", domain.StatusEvent{Kind: domain.StatusFailed, Reason: "logged out"})

	assert.Contains(t, out.String(), "10:04:05")
	assert.Contains(t, out.String(), "111")
	assert.Contains(t, out.String(), "ABCD-1234")
	assert.Contains(t, out.String(), "failed: logged out")
}

func TestLogUsesSeverityPerStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	notifier := NewLog(zap.New(core))

	notifier.Notify("111", domain.StatusEvent{Kind: domain.StatusConnected})
	notifier.Notify("111", domain.StatusEvent{Kind: domain.StatusReconnecting, Attempt: 2, Reason: "bad session"})
	notifier.Notify("111", domain.StatusEvent{Kind: domain.StatusFailed, Reason: "logged out"})

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		assert.Equal(t, zap.WarnLevel, entries[1].Level)
		assert.Equal(t, int64(2), entries[1].ContextMap()["attempt"])
		assert.Equal(t, zap.ErrorLevel, entries[2].Level)
		assert.Equal(t, "111", entries[2].ContextMap()["account"])
	}
}

func TestMultiFansOut(t *testing.T) {
	first := mocks.NewMockNotifier(t)
	second := mocks.NewMockNotifier(t)
	event := domain.StatusEvent{Kind: domain.StatusConnected}

	first.EXPECT().Notify(domain.AccountID("111"), event).Return().Once()
	second.EXPECT().Notify(domain.AccountID("111"), event).Return().Once()

	Multi{first, nil, second}.Notify("111", event)
}
