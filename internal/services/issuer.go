package services

import (
	"context"
	"fmt"

	"licensegate/pkg/contracts/domain"
)

// Issuer is the boundary to the license issuance logic. The transport layer
// only talks to this interface; the backing persistence (users, apps,
// orders) is outside this system.
type Issuer interface {
	// Activate exchanges a license key and device identity for a signed
	// token, binding the device to the license.
	Activate(ctx context.Context, req IssueRequest) (*domain.ActivationResponse, error)

	// CheckIn re-issues a short-lived token for an already-bound device.
	CheckIn(ctx context.Context, req IssueRequest) (*domain.ActivationResponse, error)
}

// IssueRequest is the issuance input assembled by the transport layer.
type IssueRequest struct {
	LicenseKey string
	AppCode    string
	DeviceID   string
	AppVersion string
}

// IssueError is a typed issuance rejection. Reason is one of the
// domain.Reject* constants so transports and clients can branch on it
// without string matching.
type IssueError struct {
	Reason  string
	Message string
}

func (e *IssueError) Error() string {
	return fmt.Sprintf("issuance rejected (%s): %s", e.Reason, e.Message)
}
