package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/multisession/internal/domain"
)

func TestBootstrapRestoresActiveAccountsWithoutPairing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111", "222")
	require.NoError(t, h.active.Add(context.Background(), "111"))
	require.NoError(t, h.active.Add(context.Background(), "222"))
	notes := &statusRecorder{}

	report, err := NewBootstrap(h.active, h.creds, h.manager, waitFor, nil).
		WithNotifier(notes).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.AccountID{"111", "222"}, report.Started)
	assert.Equal(t, []domain.AccountID{"111", "222"}, report.Connected)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.Skipped)

	assert.True(t, h.manager.IsConnected("111"))
	assert.True(t, h.manager.IsConnected("222"))
	assert.Zero(t, notes.count(domain.StatusPairingCode))
}

func TestBootstrapSkipsAccountsWithoutCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111")
	require.NoError(t, h.active.Add(context.Background(), "111"))
	require.NoError(t, h.active.Add(context.Background(), "333"))

	report, err := NewBootstrap(h.active, h.creds, h.manager, waitFor, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.AccountID{"111"}, report.Connected)
	assert.Equal(t, []domain.AccountID{"333"}, report.Skipped)
	assert.Zero(t, h.network.Dials("333"))
	assert.False(t, h.manager.IsConnected("333"))
}

func TestBootstrapReportsFailedAccounts(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.HandshakeTimeout = 10 * time.Millisecond
	cfg.MaxAttempts = 1
	h := newHarness(t, cfg)
	h.seedPaired(t, "111", "222")
	require.NoError(t, h.active.Add(context.Background(), "111"))
	require.NoError(t, h.active.Add(context.Background(), "222"))
	h.network.HoldOpen("222", true)

	report, err := NewBootstrap(h.active, h.creds, h.manager, waitFor, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.AccountID{"111"}, report.Connected)
	assert.Equal(t, []domain.AccountID{"222"}, report.Failed)
}

func TestBootstrapWithoutSettleTimeoutReturnsImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111")
	require.NoError(t, h.active.Add(context.Background(), "111"))

	report, err := NewBootstrap(h.active, h.creds, h.manager, 0, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.AccountID{"111"}, report.Started)
	assert.Empty(t, report.Connected)
	require.Eventually(t, func() bool { return h.manager.IsConnected("111") }, waitFor, 5*time.Millisecond)
}
