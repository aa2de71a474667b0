package application

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/multisession/internal/adapters/blob/file"
	tomlrepo "github.com/bnema/multisession/internal/adapters/repo/toml"
	"github.com/bnema/multisession/internal/adapters/transport/fake"
	"github.com/bnema/multisession/internal/adapters/transport/ws"
	"github.com/bnema/multisession/internal/adapters/transport/ws/wstest"
	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/ports"
)

func TestSupervisorPairsNewAccount(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return notes.pairingCode() == fake.DefaultPairingCode
	}, waitFor, 5*time.Millisecond)
	assert.False(t, h.manager.IsConnected("111"))

	require.NoError(t, h.network.ConfirmPairing("111"))

	status, err := waitSettled(t, sup)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, status.Kind)
	assert.True(t, h.manager.IsConnected("111"))
	assert.Equal(t, []domain.AccountID{"111"}, h.manager.ListConnected())
	assert.True(t, h.paired(t, "111"))

	bundle, err := h.creds.Load(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, []byte("k1"), bundle.Keys["pre-key:1"])

	active, err := h.active.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"111"}, active)

	assert.Equal(t, []domain.StatusKind{
		domain.StatusInitializing,
		domain.StatusPairingCode,
		domain.StatusConnected,
	}, notes.kinds())
}

func TestSupervisorRestoresPairedAccountWithoutPairing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111")
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes, WithoutPairing())
	require.NoError(t, err)

	status, err := waitSettled(t, sup)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, status.Kind)
	assert.Zero(t, notes.count(domain.StatusPairingCode))
	assert.Equal(t, 1, h.network.Dials("111"))
}

func TestSupervisorRejectsUnpairedAccountWhenPairingDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes, WithoutPairing())
	require.NoError(t, err)

	status, err := waitSettled(t, sup)
	assert.Equal(t, domain.StatusFailed, status.Kind)
	require.ErrorIs(t, err, domain.ErrInconsistentState)
	waitDone(t, sup)
	assert.Zero(t, h.network.Dials("111"))
}

func TestSupervisorReconnectsAfterRecoverableClose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		close func(n *fake.Network) error
	}{
		{name: "server error", close: func(n *fake.Network) error { return n.Drop("111", domain.CodeBadSession, "bad session") }},
		{name: "restart required", close: func(n *fake.Network) error { return n.Drop("111", domain.CodeRestartRequired, "restart required") }},
		{name: "connection closed", close: func(n *fake.Network) error { return n.Drop("111", domain.CodeConnectionClosed, "closed") }},
		{name: "timed out", close: func(n *fake.Network) error { return n.Drop("111", domain.CodeTimedOut, "timed out") }},
		{name: "transport lost", close: func(n *fake.Network) error { return n.Sever("111") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, testConfig())
			h.seedPaired(t, "111")
			notes := &statusRecorder{}

			sup, err := h.manager.Connect(context.Background(), "111", notes, WithoutPairing())
			require.NoError(t, err)
			_, err = waitSettled(t, sup)
			require.NoError(t, err)

			require.NoError(t, tt.close(h.network))

			require.Eventually(t, func() bool {
				return notes.count(domain.StatusConnected) == 2
			}, waitFor, 5*time.Millisecond)
			assert.True(t, h.manager.IsConnected("111"))
			assert.Equal(t, 2, h.network.Dials("111"))
			assert.Equal(t, 1, notes.count(domain.StatusReconnecting))
			assert.True(t, h.paired(t, "111"))
		})
	}
}

func TestSupervisorLoggedOutPurgesCredentials(t *testing.T) {
	t.Parallel()

	for _, code := range []int{domain.CodeLoggedOut, domain.CodeForbidden, domain.CodeMultideviceMismatch} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, testConfig())
			h.seedPaired(t, "111")
			notes := &statusRecorder{}

			sup, err := h.manager.Connect(context.Background(), "111", notes, WithoutPairing())
			require.NoError(t, err)
			_, err = waitSettled(t, sup)
			require.NoError(t, err)

			require.NoError(t, h.network.Drop("111", code, "logged out"))
			waitDone(t, sup)

			assert.False(t, h.manager.IsConnected("111"))
			assert.Empty(t, h.manager.ListConnected())
			assert.Equal(t, 1, h.network.Dials("111"))
			assert.Zero(t, notes.count(domain.StatusReconnecting))
			assert.Equal(t, domain.StatusFailed, notes.kinds()[len(notes.kinds())-1])

			assert.False(t, h.paired(t, "111"))
			records, err := h.blobs.List(context.Background(), Namespace("111"))
			require.NoError(t, err)
			assert.Empty(t, records)

			active, err := h.active.List(context.Background())
			require.NoError(t, err)
			assert.NotContains(t, active, domain.AccountID("111"))
		})
	}
}

func TestSupervisorLoggedOutKeepsActiveListWhenPruneDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PruneOnLogout = false
	h := newHarness(t, cfg)
	h.seedPaired(t, "111")

	sup, err := h.manager.Connect(context.Background(), "111", nil, WithoutPairing())
	require.NoError(t, err)
	_, err = waitSettled(t, sup)
	require.NoError(t, err)

	require.NoError(t, h.network.Drop("111", domain.CodeLoggedOut, "logged out"))
	waitDone(t, sup)

	assert.False(t, h.paired(t, "111"))
	active, err := h.active.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"111"}, active)
}

func TestSupervisorReplacedConnectionKeepsCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111")
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes, WithoutPairing())
	require.NoError(t, err)
	_, err = waitSettled(t, sup)
	require.NoError(t, err)

	require.NoError(t, h.network.Drop("111", domain.CodeConnectionReplaced, "replaced"))
	waitDone(t, sup)

	assert.False(t, h.manager.IsConnected("111"))
	assert.Equal(t, 1, h.network.Dials("111"))
	assert.True(t, h.paired(t, "111"))
	assert.Equal(t, 1, notes.count(domain.StatusFailed))
}

func TestSupervisorHandshakeTimeoutRetriesUntilMaxAttempts(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.HandshakeTimeout = 20 * time.Millisecond
	cfg.MaxAttempts = 2
	h := newHarness(t, cfg)
	h.seedPaired(t, "111")
	h.network.HoldOpen("111", true)
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes, WithoutPairing())
	require.NoError(t, err)

	status, err := waitSettled(t, sup)
	assert.Equal(t, domain.StatusFailed, status.Kind)
	require.ErrorIs(t, err, domain.ErrTransport)
	waitDone(t, sup)

	assert.Equal(t, 3, h.network.Dials("111"))
	assert.Equal(t, 2, notes.count(domain.StatusReconnecting))
	assert.True(t, h.paired(t, "111"))
}

func TestSupervisorDialErrorsAreRetried(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111")
	h.network.FailDials("111", assert.AnError)

	sup, err := h.manager.Connect(context.Background(), "111", nil, WithoutPairing())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.network.Dials("111") >= 3 }, waitFor, 5*time.Millisecond)
	h.network.FailDials("111", nil)

	status, err := waitSettled(t, sup)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, status.Kind)
}

func TestSupervisorPairingTimeoutDropsNamespace(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PairingTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg)
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes)
	require.NoError(t, err)

	status, err := waitSettled(t, sup)
	assert.Equal(t, domain.StatusFailed, status.Kind)
	require.ErrorIs(t, err, domain.ErrPairingFailed)
	waitDone(t, sup)

	assert.Equal(t, fake.DefaultPairingCode, notes.pairingCode())
	assert.Equal(t, 1, h.network.Dials("111"))
	records, err := h.blobs.List(context.Background(), Namespace("111"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSupervisorUnsupportedNumberFailsPairing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.network.RejectPairing("111")
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes)
	require.NoError(t, err)

	status, err := waitSettled(t, sup)
	assert.Equal(t, domain.StatusFailed, status.Kind)
	require.ErrorIs(t, err, domain.ErrPairingFailed)
	require.ErrorIs(t, err, domain.ErrUnsupportedAccount)
	waitDone(t, sup)
	assert.Zero(t, notes.count(domain.StatusPairingCode))
}

func TestSupervisorStorageFailureDuringRotationIsFinal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111")
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes, WithoutPairing())
	require.NoError(t, err)
	_, err = waitSettled(t, sup)
	require.NoError(t, err)

	h.blobs.failPuts.Store(true)
	require.NoError(t, h.network.Rotate("111", domain.CredentialDelta{Creds: []byte(`{"me":"111","v":2}`)}))
	waitDone(t, sup)
	h.blobs.failPuts.Store(false)

	assert.False(t, h.manager.IsConnected("111"))
	assert.Equal(t, 1, h.network.Dials("111"))
	assert.Equal(t, 1, notes.count(domain.StatusFailed))
	assert.True(t, h.paired(t, "111"))
}

func TestSupervisorPersistsRotatedCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111")

	sup, err := h.manager.Connect(context.Background(), "111", nil, WithoutPairing())
	require.NoError(t, err)
	_, err = waitSettled(t, sup)
	require.NoError(t, err)

	require.NoError(t, h.network.Rotate("111", domain.CredentialDelta{
		Creds: []byte(`{"me":"111","v":2}`),
		Keys:  map[string][]byte{"session:abc": []byte("s1")},
	}))

	require.Eventually(t, func() bool {
		bundle, err := h.creds.Load(context.Background(), "111")
		return err == nil && string(bundle.Creds) == `{"me":"111","v":2}` && string(bundle.Keys["session:abc"]) == "s1"
	}, waitFor, 5*time.Millisecond)
}

func TestSupervisorStopBeforeConnectReportsFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seedPaired(t, "111")
	h.network.HoldOpen("111", true)
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes, WithoutPairing())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.network.Dials("111") == 1 }, waitFor, time.Millisecond)

	sup.Stop()
	waitDone(t, sup)

	status, err := waitSettled(t, sup)
	assert.Equal(t, domain.StatusFailed, status.Kind)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, h.paired(t, "111"))
}

func TestSupervisorReportsPairingCodeBeforeImmediateConfirmation(t *testing.T) {
	t.Parallel()

	gateway := wstest.NewGateway()
	t.Cleanup(gateway.Close)
	gateway.AutoConfirm(true)

	for i := 0; i < 10; i++ {
		root := t.TempDir()
		active, err := tomlrepo.NewRepository(filepath.Join(root, tomlrepo.DefaultFileName))
		require.NoError(t, err)
		manager := NewManager(ManagerDeps{
			Credentials:    NewCredentialStore(file.NewStore(root), nil, nil),
			ActiveAccounts: active,
			Dialer:         ws.NewDialer(gateway.URL(), time.Second, nil),
			Clock:          ports.SystemClock{},
			Config:         testConfig(),
		})
		notes := &statusRecorder{}

		id := domain.AccountID(strconv.Itoa(5550000 + i))
		sup, err := manager.Connect(context.Background(), id, notes)
		require.NoError(t, err)
		status, err := waitSettled(t, sup)
		require.NoError(t, err)
		require.Equal(t, domain.StatusConnected, status.Kind)

		assert.Equal(t, []domain.StatusKind{
			domain.StatusInitializing,
			domain.StatusPairingCode,
			domain.StatusConnected,
		}, notes.kinds(), "round %d", i)
		assert.Equal(t, wstest.PairingCode, notes.pairingCode())

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		require.NoError(t, manager.Shutdown(ctx))
		cancel()
	}
}

func TestSupervisorPairingDialFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.network.FailDials("111", assert.AnError)
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes)
	require.NoError(t, err)

	status, err := waitSettled(t, sup)
	assert.Equal(t, domain.StatusFailed, status.Kind)
	require.ErrorIs(t, err, domain.ErrPairingFailed)
	require.ErrorIs(t, err, assert.AnError)
	waitDone(t, sup)

	assert.Equal(t, 1, h.network.Dials("111"))
	assert.Zero(t, notes.count(domain.StatusReconnecting))
}

func TestSupervisorConnectionLostWhilePairingFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return notes.pairingCode() == fake.DefaultPairingCode
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, h.network.Sever("111"))

	status, err := waitSettled(t, sup)
	assert.Equal(t, domain.StatusFailed, status.Kind)
	require.ErrorIs(t, err, domain.ErrPairingFailed)
	waitDone(t, sup)
	assert.Equal(t, 1, h.network.Dials("111"))
}

func TestSupervisorRestartAfterPairingReconnects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	notes := &statusRecorder{}

	sup, err := h.manager.Connect(context.Background(), "111", notes)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return notes.pairingCode() == fake.DefaultPairingCode
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, h.network.Rotate("111", domain.CredentialDelta{Creds: []byte(`{"me":"111"}`)}))
	require.NoError(t, h.network.Drop("111", domain.CodeRestartRequired, "restart required"))

	status, err := waitSettled(t, sup)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, status.Kind)
	assert.Equal(t, 2, h.network.Dials("111"))
	assert.Equal(t, 1, notes.count(domain.StatusReconnecting))
}
