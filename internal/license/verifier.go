package license

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"licensegate/pkg/contracts/domain"
)

// Verifier performs offline validation of the stored license token: the
// Ed25519 signature, the app binding, the device binding, and the license
// status, in that order, reporting the first failure. It performs no I/O
// beyond reading the local token file and never mutates the store, so it is
// safe to call before every privileged operation.
type Verifier struct {
	store     *TokenStore
	publicKey ed25519.PublicKey
	appCode   string
	deviceID  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewVerifier creates an offline verifier bound to the current device
// identity and the configured app code.
func NewVerifier(store *TokenStore, publicKey ed25519.PublicKey, appCode, deviceID string, logger *slog.Logger) *Verifier {
	return &Verifier{
		store:     store,
		publicKey: publicKey,
		appCode:   appCode,
		deviceID:  deviceID,
		logger:    logger.With(slog.String("component", "token_verifier")),
		now:       time.Now,
	}
}

// WithTimeFunc overrides the clock. Tests use this to advance past expiry.
func (v *Verifier) WithTimeFunc(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify runs the full offline check. Checks are fail-fast: the reported
// reason is the first one that failed.
func (v *Verifier) Verify() Verification {
	resp, err := v.store.Load()
	if err != nil {
		reason := ReasonNoToken
		if errors.Is(err, ErrCorruptToken) {
			reason = ReasonCorruptToken
		}
		v.logger.Debug("verification failed before signature check",
			slog.String("reason", string(reason)),
		)
		return Verification{Valid: false, Reason: reason}
	}

	claims := &domain.TokenClaims{}
	_, err = jwt.ParseWithClaims(resp.Token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		// An expired token is reported separately from a bad signature:
		// it drives re-activation in the UI, not a hard failure.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Verification{Valid: false, Reason: ReasonTokenExpired}
		}
		v.logger.Warn("token signature verification failed",
			slog.String("error", err.Error()),
		)
		return Verification{Valid: false, Reason: ReasonInvalidSignature}
	}

	if claims.AppCode != v.appCode {
		return Verification{Valid: false, Reason: ReasonWrongApp}
	}

	if claims.DeviceHash != domain.DeviceHashOf(v.deviceID) {
		return Verification{Valid: false, Reason: ReasonDeviceMismatch}
	}

	if claims.LicenseStatus != domain.LicenseStatusActive {
		return Verification{Valid: false, Reason: ReasonLicenseInactive}
	}

	return Verification{Valid: true, Claims: claims}
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.publicKey, nil
}
