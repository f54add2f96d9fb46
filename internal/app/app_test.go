package app

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/config"
	"licensegate/internal/security"
	"licensegate/internal/services"
	"licensegate/pkg/contracts/domain"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApplication(t *testing.T) *Application {
	t.Helper()

	_, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	t.Setenv("LICENSEGATE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("LICENSEGATE_SECURITY_SIGNING_SECRET", "shared-secret")
	t.Setenv("LICENSEGATE_LOGGING_OUTPUT", "console")

	keys := services.NewMemoryKeyStore()
	keys.Put(&services.LicenseRecord{
		Key:        "ABCD-1234-EFGH",
		AppCode:    "APP001",
		Status:     domain.LicenseStatusActive,
		ExpiresAt:  time.Now().Add(365 * 24 * time.Hour),
		MaxDevices: 1,
	})

	app, err := NewApplication(services.NewSigningIssuer(keys, private, time.Hour, noopLogger()))
	require.NoError(t, err)
	return app
}

func TestApplicationRouter(t *testing.T) {
	app := newTestApplication(t)

	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("signed activation succeeds", func(t *testing.T) {
		body, _ := json.Marshal(domain.ActivationRequest{
			LicenseKey: "ABCD-1234-EFGH",
			AppCode:    "APP001",
			DeviceID:   "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		})
		ts := time.Now().UnixMilli()

		req := httptest.NewRequest(http.MethodPost, "/api/license/activate", bytes.NewReader(body))
		req.RemoteAddr = "1.2.3.4:55555"
		req.Header.Set(domain.HeaderRequestTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(domain.HeaderRequestSignature, security.NewSigner("shared-secret").Sign(body, ts))

		rec := httptest.NewRecorder()
		app.Router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp domain.ActivationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("unsigned activation is unauthorized", func(t *testing.T) {
		body, _ := json.Marshal(domain.ActivationRequest{
			LicenseKey: "ABCD-1234-EFGH",
			AppCode:    "APP001",
			DeviceID:   "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/license/activate", bytes.NewReader(body))
		req.RemoteAddr = "5.6.7.8:55555"

		rec := httptest.NewRecorder()
		app.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestNewApplicationRequiresSigningSecret(t *testing.T) {
	t.Setenv("LICENSEGATE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("LICENSEGATE_SECURITY_SIGNING_SECRET", "")

	_, err := NewApplication(nil)
	assert.Error(t, err)
}

func TestBuildSigningIssuerKeyDecoding(t *testing.T) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	appFor := func(encodedKey string) *Application {
		cfg := config.Default()
		cfg.Issuer.PrivateKey = encodedKey
		return &Application{Config: cfg, Logger: noopLogger()}
	}

	t.Run("accepts a seed", func(t *testing.T) {
		_, err := appFor(base64.StdEncoding.EncodeToString(private.Seed())).buildSigningIssuer()
		assert.NoError(t, err)
	})

	t.Run("accepts a full private key", func(t *testing.T) {
		_, err := appFor(base64.StdEncoding.EncodeToString(private)).buildSigningIssuer()
		assert.NoError(t, err)
	})

	t.Run("rejects missing key", func(t *testing.T) {
		_, err := appFor("").buildSigningIssuer()
		assert.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := appFor("not-base64!!!").buildSigningIssuer()
		assert.Error(t, err)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := appFor(base64.StdEncoding.EncodeToString([]byte("short"))).buildSigningIssuer()
		assert.Error(t, err)
	})
}
