package services

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"licensegate/pkg/contracts/domain"
)

// SigningIssuer is the reference Issuer: it validates the key against a
// KeyStore, enforces status, expiry, and device slots, and signs an Ed25519
// token binding the license to the requesting device.
type SigningIssuer struct {
	keys       KeyStore
	privateKey ed25519.PrivateKey
	tokenTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewSigningIssuer creates an issuer signing with the given Ed25519 key.
func NewSigningIssuer(keys KeyStore, privateKey ed25519.PrivateKey, tokenTTL time.Duration, logger *slog.Logger) *SigningIssuer {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &SigningIssuer{
		keys:       keys,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
		logger:     logger.With(slog.String("component", "signing_issuer")),
		now:        time.Now,
	}
}

// WithTimeFunc overrides the clock for tests.
func (i *SigningIssuer) WithTimeFunc(now func() time.Time) *SigningIssuer {
	i.now = now
	return i
}

// Activate implements Issuer.
func (i *SigningIssuer) Activate(ctx context.Context, req IssueRequest) (*domain.ActivationResponse, error) {
	rec, err := i.lookupValid(ctx, req)
	if err != nil {
		return nil, err
	}

	// Slot enforcement happens inside BindDevice, under the store's own
	// lock. A check against the Lookup snapshot would race with a
	// concurrent activation and over-subscribe the license.
	if !rec.BoundTo(req.DeviceID) {
		if err := i.keys.BindDevice(ctx, req.LicenseKey, req.DeviceID); err != nil {
			if errors.Is(err, ErrNoFreeSlot) {
				if rec.MaxDevices == 1 {
					return nil, &IssueError{
						Reason:  domain.RejectAlreadyActivated,
						Message: "this license is already activated on another device",
					}
				}
				return nil, &IssueError{
					Reason:  domain.RejectMaxDevicesReached,
					Message: fmt.Sprintf("this license allows at most %d devices", rec.MaxDevices),
				}
			}
			return nil, fmt.Errorf("failed to bind device: %w", err)
		}
	}

	resp, err := i.issue(rec, req)
	if err != nil {
		return nil, err
	}

	i.logger.InfoContext(ctx, "license activated",
		slog.String("app_code", req.AppCode),
		slog.String("device_id_prefix", prefix8(req.DeviceID)),
		slog.Time("license_expires_at", rec.ExpiresAt),
	)
	return resp, nil
}

// CheckIn implements Issuer. Unlike activation it never consumes a device
// slot: a device that is not already bound is rejected.
func (i *SigningIssuer) CheckIn(ctx context.Context, req IssueRequest) (*domain.ActivationResponse, error) {
	rec, err := i.lookupValid(ctx, req)
	if err != nil {
		return nil, err
	}

	if !rec.BoundTo(req.DeviceID) {
		return nil, &IssueError{
			Reason:  domain.RejectInvalidKey,
			Message: "license is not activated on this device",
		}
	}

	resp, err := i.issue(rec, req)
	if err != nil {
		return nil, err
	}

	i.logger.DebugContext(ctx, "license check-in completed",
		slog.String("device_id_prefix", prefix8(req.DeviceID)),
	)
	return resp, nil
}

// lookupValid fetches the record and applies the status and expiry gates
// shared by activation and check-in.
func (i *SigningIssuer) lookupValid(ctx context.Context, req IssueRequest) (*LicenseRecord, error) {
	rec, err := i.keys.Lookup(ctx, req.LicenseKey)
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, &IssueError{
				Reason:  domain.RejectInvalidKey,
				Message: "the provided license key is not valid",
			}
		}
		return nil, fmt.Errorf("license lookup failed: %w", err)
	}

	// A key issued for another app is indistinguishable from an unknown
	// key on purpose.
	if rec.AppCode != req.AppCode {
		return nil, &IssueError{
			Reason:  domain.RejectInvalidKey,
			Message: "the provided license key is not valid",
		}
	}

	switch rec.Status {
	case domain.LicenseStatusRevoked:
		return nil, &IssueError{Reason: domain.RejectRevoked, Message: "this license has been revoked"}
	case domain.LicenseStatusSuspended:
		return nil, &IssueError{Reason: domain.RejectSuspended, Message: "this license is suspended"}
	case domain.LicenseStatusExpired:
		// An administratively expired record is rejected even when its
		// ExpiresAt disagrees; a token claiming an active status must
		// never be minted from it.
		return nil, &IssueError{Reason: domain.RejectExpired, Message: "this license has expired"}
	}

	if i.now().After(rec.ExpiresAt) {
		return nil, &IssueError{Reason: domain.RejectExpired, Message: "this license has expired"}
	}

	return rec, nil
}

// issue signs the short-lived token for the device.
func (i *SigningIssuer) issue(rec *LicenseRecord, req IssueRequest) (*domain.ActivationResponse, error) {
	now := i.now()
	tokenExpiry := now.Add(i.tokenTTL)
	// The token never outlives the license itself.
	if tokenExpiry.After(rec.ExpiresAt) {
		tokenExpiry = rec.ExpiresAt
	}

	claims := domain.TokenClaims{
		AppCode:       rec.AppCode,
		DeviceHash:    domain.DeviceHashOf(req.DeviceID),
		LicenseStatus: domain.LicenseStatusActive,
		MaxDevices:    rec.MaxDevices,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(tokenExpiry),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.ActivationResponse{
		Token: token,
		LicenseInfo: domain.LicenseInfo{
			LicenseKey: rec.Key,
			Status:     rec.Status,
			ExpiresAt:  rec.ExpiresAt,
			MaxDevices: rec.MaxDevices,
			Tier:       rec.Tier,
		},
		ExpiresAt: tokenExpiry,
	}, nil
}

func prefix8(s string) string {
	if len(s) < 8 {
		return s
	}
	return s[:8]
}
