package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/security"
	"licensegate/internal/shared/testutil"
	"licensegate/pkg/contracts/domain"
)

const signatureTestSecret = "shared-secret"

func signatureHandler(t *testing.T) (http.Handler, *security.Signer) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	signer := security.NewSigner(signatureTestSecret)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Echo the body so tests can confirm it survived verification.
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})

	mw := SignatureVerify(signer, SignatureConfig{
		MaxAge:  5 * time.Minute,
		MaxSkew: 60 * time.Second,
	}, logger, nil)

	return mw(inner), signer
}

func signedRequest(signer *security.Signer, body []byte, ts int64) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/license/activate", bytes.NewReader(body))
	req.Header.Set(domain.HeaderRequestTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(domain.HeaderRequestSignature, signer.Sign(body, ts))
	return req
}

func TestSignatureVerifyAccepts(t *testing.T) {
	handler, signer := signatureHandler(t)
	body := []byte(`{"license_key":"ABCD-1234-EFGH"}`)

	t.Run("fresh signed request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(signer, body, time.Now().UnixMilli()))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, string(body), rec.Body.String(), "body must be restored for the handler")
	})

	t.Run("timestamp 30 seconds in the future", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ts := time.Now().Add(30 * time.Second).UnixMilli()
		handler.ServeHTTP(rec, signedRequest(signer, body, ts))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("timestamp 4 minutes old", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ts := time.Now().Add(-4 * time.Minute).UnixMilli()
		handler.ServeHTTP(rec, signedRequest(signer, body, ts))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSignatureVerifyRejects(t *testing.T) {
	handler, signer := signatureHandler(t)
	body := []byte(`{"license_key":"ABCD-1234-EFGH"}`)

	requireUniform401 := func(t *testing.T, rec *httptest.ResponseRecorder) {
		t.Helper()
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var resp domain.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, domain.RejectUnauthorized, resp.Error)
		assert.Equal(t, "Request could not be authenticated", resp.Message)
	}

	t.Run("missing headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/license/activate", bytes.NewReader(body))
		handler.ServeHTTP(rec, req)
		requireUniform401(t, rec)
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := signedRequest(signer, body, time.Now().UnixMilli())
		req.Header.Set(domain.HeaderRequestTimestamp, "not-a-number")
		handler.ServeHTTP(rec, req)
		requireUniform401(t, rec)
	})

	t.Run("timestamp 6 minutes old", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ts := time.Now().Add(-6 * time.Minute).UnixMilli()
		handler.ServeHTTP(rec, signedRequest(signer, body, ts))
		requireUniform401(t, rec)
	})

	t.Run("timestamp 2 minutes in the future", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ts := time.Now().Add(2 * time.Minute).UnixMilli()
		handler.ServeHTTP(rec, signedRequest(signer, body, ts))
		requireUniform401(t, rec)
	})

	t.Run("mutated body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ts := time.Now().UnixMilli()
		req := httptest.NewRequest(http.MethodPost, "/api/license/activate",
			bytes.NewReader([]byte(`{"license_key":"XXXX-0000-YYYY"}`)))
		req.Header.Set(domain.HeaderRequestTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(domain.HeaderRequestSignature, signer.Sign(body, ts))
		handler.ServeHTTP(rec, req)
		requireUniform401(t, rec)
	})

	t.Run("wrong secret", func(t *testing.T) {
		rec := httptest.NewRecorder()
		other := security.NewSigner("other-secret")
		handler.ServeHTTP(rec, signedRequest(other, body, time.Now().UnixMilli()))
		requireUniform401(t, rec)
	})
}
