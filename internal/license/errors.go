package license

import (
	"errors"
	"fmt"

	"licensegate/pkg/contracts/domain"
)

// VerificationReason is the closed enumeration of offline verification
// failures. Callers branch on these values, never on error strings.
type VerificationReason string

const (
	ReasonNoToken          VerificationReason = "no_token"
	ReasonCorruptToken     VerificationReason = "corrupt_token"
	ReasonInvalidSignature VerificationReason = "invalid_signature"
	ReasonTokenExpired     VerificationReason = "token_expired"
	ReasonWrongApp         VerificationReason = "wrong_app"
	ReasonDeviceMismatch   VerificationReason = "device_mismatch"
	ReasonLicenseInactive  VerificationReason = "license_inactive"
)

// Verification is the result of an offline token check. When Valid is false,
// Reason holds the first check that failed; every reason is recoverable by
// re-activation, never by retrying verification.
type Verification struct {
	Valid  bool
	Reason VerificationReason
	Claims *domain.TokenClaims
}

// Token store sentinel errors.
var (
	// ErrNoToken means no token has ever been stored (or it was reset).
	ErrNoToken = errors.New("no license token stored")
	// ErrCorruptToken means a token file exists but cannot be read back.
	// It is distinct from ErrNoToken so a half-written file is surfaced
	// instead of silently looking like a fresh install.
	ErrCorruptToken = errors.New("license token file is corrupt")
)

// ActivationError is a server-rejected activation or check-in. Reason is one
// of the domain.Reject* constants; the user can recover by acting on it
// (entering a different key, freeing a device slot, waiting out a block).
type ActivationError struct {
	Reason     string
	Message    string
	StatusCode int
	RetryAfter int
}

func (e *ActivationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("activation rejected (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("activation rejected (%s)", e.Reason)
}

// NetworkError wraps a transport failure where no server response was
// received. The outcome is ambiguous: the server may have processed the
// request, so callers must not retry blindly against single-slot licenses.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("activation request failed before a response was received: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
