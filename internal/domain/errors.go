package domain

import "errors"

var (
	ErrInvalidAccountID = errors.New("invalid account id")
	ErrRecordNotFound   = errors.New("record not found")
	ErrCorruptRecord    = errors.New("corrupt credential record")

	ErrNotConnected       = errors.New("not connected")
	ErrTransport          = errors.New("transport error")
	ErrThrottled          = errors.New("throttled by remote")
	ErrAlreadyPaired      = errors.New("account already paired")
	ErrUnsupportedAccount = errors.New("account rejected by remote")
	ErrPairingCodeIssued  = errors.New("pairing code already issued for this attempt")
	ErrInvalidTransition  = errors.New("invalid connection state transition")

	ErrAuthenticationExpired      = errors.New("authentication expired")
	ErrPairingFailed              = errors.New("pairing failed")
	ErrStorage                    = errors.New("credential storage error")
	ErrDuplicateConnectionRequest = errors.New("connection request already in progress")
	ErrAlreadyConnected           = errors.New("account already connected")
	ErrInconsistentState          = errors.New("account listed as active but has no credentials")
)
