package domain

import "errors"

var (
	ErrProviderUnavailable  = errors.New("no signing provider available")
	ErrUserRejected         = errors.New("user rejected the connection request")
	ErrSignerNotInitialized = errors.New("signer not initialized")
	ErrEventTimeout         = errors.New("timed out waiting for contract event")
	ErrMalformedEvent       = errors.New("contract event carried no payload")
	ErrValueOutOfRange      = errors.New("on-chain value exceeds uint64 range")
	ErrNoSession            = errors.New("no active session")
	ErrSessionExpired       = errors.New("session expired")
	ErrNotConnected         = errors.New("wallet not connected")
	ErrInvalidInput         = errors.New("invalid input")
)

// RevertError carries a contract-level revert reason. The reason string is
// surfaced verbatim to the caller.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return e.Reason
}

// CallError wraps any non-revert contract call failure with an
// operation-specific prefix.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return "failed to " + e.Op
	}
	return "failed to " + e.Op + ": " + e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}
