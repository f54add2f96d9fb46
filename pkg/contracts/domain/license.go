// Package domain contains the wire-level contract types shared between the
// activation client and the license server. These types serve as the Single
// Source of Truth (SSOT) for the activation and check-in protocol.
package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Header names used by the request signing scheme.
const (
	HeaderRequestSignature = "X-Request-Signature"
	HeaderRequestTimestamp = "X-Request-Timestamp"
)

// LicenseStatus represents the server-side status of a license
type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusExpired   LicenseStatus = "expired"
	LicenseStatusRevoked   LicenseStatus = "revoked"
)

// ActivationRequest is the body sent to the activation and check-in
// endpoints. The raw bytes of this body, exactly as sent, are covered by the
// request signature.
type ActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=8,max=64"`
	AppCode    string `json:"app_code" validate:"required,alphanum,max=32"`
	DeviceID   string `json:"device_id" validate:"required,hexadecimal,len=64"`
	AppVersion string `json:"app_version" validate:"omitempty,max=32"`
}

// LicenseInfo is server-supplied display metadata about the license. It is
// not part of the signed token claims and must never be used for trust
// decisions on the client.
type LicenseInfo struct {
	LicenseKey string        `json:"license_key,omitempty"`
	Status     LicenseStatus `json:"status"`
	ExpiresAt  time.Time     `json:"expires_at"`
	MaxDevices int           `json:"max_devices,omitempty"`
	Tier       string        `json:"tier,omitempty"`
}

// ActivationResponse is returned by a successful activation or check-in.
// The client persists this document verbatim.
type ActivationResponse struct {
	Token       string      `json:"token"`
	LicenseInfo LicenseInfo `json:"license_info"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// TokenClaims is the signed claims blob carried by ActivationResponse.Token.
// The token is short-lived relative to the license term; clients renew it
// through check-in before it expires.
type TokenClaims struct {
	AppCode       string        `json:"app_code"`
	DeviceHash    string        `json:"device_hash"`
	LicenseStatus LicenseStatus `json:"license_status"`
	MaxDevices    int           `json:"max_devices"`
	jwt.RegisteredClaims
}

// Rejection reasons returned by the activation endpoint in the error body.
const (
	RejectInvalidKey        = "invalid_key"
	RejectAlreadyActivated  = "already_activated"
	RejectMaxDevicesReached = "max_devices_reached"
	RejectRevoked           = "revoked"
	RejectSuspended         = "suspended"
	RejectExpired           = "expired"
	RejectRateLimited       = "rate_limit_exceeded"
	RejectUnauthorized      = "unauthorized"
)

// ErrorResponse is the body sent with any non-2xx protocol response.
type ErrorResponse struct {
	Error      string        `json:"error"`
	Message    string        `json:"message,omitempty"`
	RetryAfter int           `json:"retryAfter,omitempty"`
	Details    *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails carries machine-readable context for rate-limit rejections.
type ErrorDetails struct {
	Reason      string `json:"reason"`
	WaitSeconds int    `json:"waitSeconds"`
}

// DeviceHashOf returns the binding value the server embeds in token claims
// for a given device identity. The derivation must be reproducible by the
// client for offline verification, so it uses no server-side secret.
func DeviceHashOf(deviceID string) string {
	return hashHex(deviceID)
}
