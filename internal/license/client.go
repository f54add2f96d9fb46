package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"licensegate/internal/security"
	"licensegate/pkg/contracts/domain"
)

// Client exchanges a license key plus the device identity for a signed
// token, and renews it through check-in. Every request is HMAC-signed over
// the exact body bytes sent on the wire.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appCode    string
	appVersion string
	deviceID   string
	signer     *security.Signer
	store      *TokenStore
	logger     *slog.Logger
	now        func() time.Time
}

// ClientOptions configures an activation client.
type ClientOptions struct {
	ServerURL  string
	AppCode    string
	AppVersion string
	DeviceID   string
	Signer     *security.Signer
	Store      *TokenStore
	Timeout    time.Duration
}

// NewClient creates an activation client. Timeout defaults to 30s; there is
// no cancellation semantics beyond it and the caller's context.
func NewClient(opts ClientOptions, logger *slog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    opts.ServerURL,
		appCode:    opts.AppCode,
		appVersion: opts.AppVersion,
		deviceID:   opts.DeviceID,
		signer:     opts.Signer,
		store:      opts.Store,
		logger:     logger.With(slog.String("component", "activation_client")),
		now:        time.Now,
	}
}

// Activate exchanges the license key for a signed token and persists the
// full server response verbatim, overwriting any previously stored token.
// Retrying after a NetworkError is not idempotent: the first attempt may
// have consumed the device slot server-side.
func (c *Client) Activate(ctx context.Context, licenseKey string) (*domain.ActivationResponse, error) {
	req := domain.ActivationRequest{
		LicenseKey: licenseKey,
		AppCode:    c.appCode,
		DeviceID:   c.deviceID,
		AppVersion: c.appVersion,
	}
	resp, err := c.post(ctx, "/api/license/activate", req)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "license activated",
		slog.String("license_key_masked", MaskLicenseKey(licenseKey)),
		slog.Time("token_expires_at", resp.ExpiresAt),
	)
	return resp, nil
}

// CheckIn renews the short-lived token before its expiry using the license
// key recorded in the stored activation response. The renewed response
// supersedes the stored one.
func (c *Client) CheckIn(ctx context.Context) (*domain.ActivationResponse, error) {
	stored, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("check-in requires a stored activation: %w", err)
	}
	if stored.LicenseInfo.LicenseKey == "" {
		return nil, fmt.Errorf("%w: stored activation has no license key", ErrCorruptToken)
	}

	req := domain.ActivationRequest{
		LicenseKey: stored.LicenseInfo.LicenseKey,
		AppCode:    c.appCode,
		DeviceID:   c.deviceID,
		AppVersion: c.appVersion,
	}
	resp, err := c.post(ctx, "/api/license/checkin", req)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "license check-in completed",
		slog.Time("token_expires_at", resp.ExpiresAt),
	)
	return resp, nil
}

// post sends a signed request and persists a successful response.
func (c *Client) post(ctx context.Context, path string, payload domain.ActivationRequest) (*domain.ActivationResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	timestamp := c.now().UnixMilli()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(domain.HeaderRequestTimestamp, strconv.FormatInt(timestamp, 10))
	httpReq.Header.Set(domain.HeaderRequestSignature, c.signer.Sign(body, timestamp))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "activation request transport failure",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, c.rejectionError(httpResp.StatusCode, respBody)
	}

	var resp domain.ActivationResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse activation response: %w", err)
	}

	if err := c.store.Save(&resp); err != nil {
		return nil, fmt.Errorf("activation succeeded but token could not be persisted: %w", err)
	}
	return &resp, nil
}

func (c *Client) rejectionError(status int, body []byte) error {
	var errResp domain.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		errResp.Error = fmt.Sprintf("http_%d", status)
	}
	return &ActivationError{
		Reason:     errResp.Error,
		Message:    errResp.Message,
		StatusCode: status,
		RetryAfter: errResp.RetryAfter,
	}
}

// MaskLicenseKey masks a license key for safe logging, keeping only the
// first and last two characters.
func MaskLicenseKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-2:]
}
