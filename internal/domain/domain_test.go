package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAccountID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    AccountID
		wantErr bool
	}{
		{name: "digits only", raw: "6281234567890", want: "6281234567890"},
		{name: "strips formatting", raw: "+62 812-3456-7890", want: "6281234567890"},
		{name: "short id", raw: "111", want: "111"},
		{name: "no digits", raw: "abc", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "too long", raw: "1234567890123456", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAccountID(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAccountID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectionStateTransitions(t *testing.T) {
	assert.True(t, StateInitializing.CanTransition(StatePendingAuthentication))
	assert.True(t, StatePendingAuthentication.CanTransition(StateOpen))
	assert.True(t, StateOpen.CanTransition(StateClosing))
	assert.True(t, StateClosing.CanTransition(StateClosed))

	assert.False(t, StateOpen.CanTransition(StatePendingAuthentication))
	assert.False(t, StateOpen.CanTransition(StateInitializing))
	assert.False(t, StateClosed.CanTransition(StateInitializing))
	assert.False(t, StateClosed.CanTransition(StateOpen))
}

func TestCloseReasonClassify(t *testing.T) {
	tests := []struct {
		name   string
		reason CloseReason
		want   CloseClass
	}{
		{name: "logged out", reason: CloseReason{Code: CodeLoggedOut}, want: CloseTerminal},
		{name: "forbidden", reason: CloseReason{Code: CodeForbidden}, want: CloseTerminal},
		{name: "multidevice mismatch", reason: CloseReason{Code: CodeMultideviceMismatch}, want: CloseTerminal},
		{name: "server error", reason: CloseReason{Code: CodeBadSession}, want: CloseRecoverable},
		{name: "restart required", reason: CloseReason{Code: CodeRestartRequired}, want: CloseRecoverable},
		{name: "timed out", reason: CloseReason{Code: CodeTimedOut}, want: CloseRecoverable},
		{name: "connection closed", reason: CloseReason{Code: CodeConnectionClosed}, want: CloseRecoverable},
		{name: "replaced", reason: CloseReason{Code: CodeConnectionReplaced}, want: CloseFinal},
		{name: "unknown remote code", reason: CloseReason{Code: 499}, want: CloseFinal},
		{name: "local", reason: LocalClose(), want: CloseLocal},
		{name: "transport lost", reason: TransportLost(errors.New("eof")), want: CloseRecoverable},
		{name: "storage", reason: StorageFailure(errors.New("disk full")), want: CloseFinal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reason.Classify())
		})
	}
}

func TestCloseReasonUnwrapsCause(t *testing.T) {
	reason := StorageFailure(errors.New("disk full"))

	assert.ErrorIs(t, reason, ErrStorage)
	assert.Contains(t, reason.Error(), "disk full")
}

func TestCredentialBundleApply(t *testing.T) {
	bundle := CredentialBundle{Keys: map[string][]byte{"pre-key-1": []byte("a"), "pre-key-2": []byte("b")}}
	require.False(t, bundle.Paired())

	next := bundle.Apply(CredentialDelta{
		Creds: []byte("creds"),
		Keys: map[string][]byte{
			"pre-key-1": nil,
			"session-9": []byte("s"),
		},
	})

	assert.True(t, next.Paired())
	assert.Equal(t, map[string][]byte{"pre-key-2": []byte("b"), "session-9": []byte("s")}, next.Keys)
	assert.Len(t, bundle.Keys, 2, "apply must not mutate the receiver")
}

func TestStatusEventTerminal(t *testing.T) {
	assert.True(t, StatusEvent{Kind: StatusConnected}.Terminal())
	assert.True(t, StatusEvent{Kind: StatusFailed}.Terminal())
	assert.False(t, StatusEvent{Kind: StatusReconnecting}.Terminal())
	assert.False(t, StatusEvent{Kind: StatusPairingCode}.Terminal())
}
