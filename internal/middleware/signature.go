package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/security"
	"licensegate/pkg/contracts/domain"
)

// maxSignedBodyBytes bounds the body read for signature verification.
const maxSignedBodyBytes = 1 << 20

// SignatureConfig holds the verifier's freshness tolerances.
type SignatureConfig struct {
	// MaxAge rejects timestamps older than this (replay/staleness bound).
	MaxAge time.Duration
	// MaxSkew tolerates future-dated timestamps up to this much.
	MaxSkew time.Duration
}

// SignatureVerify authenticates requests by recomputing the HMAC-SHA256 over
// the exact received body bytes concatenated with the timestamp header.
//
// This middleware always fails closed: it gates authenticity, not volume.
// Every rejection renders the same unauthorized body so an attacker probing
// the scheme cannot tell which check failed; the distinguishing detail goes
// to the log only.
func SignatureVerify(signer *security.Signer, cfg SignatureConfig, logger *slog.Logger, metrics *infrastructure.Metrics) func(next http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "signature_verifier"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			reject := func(cause string) {
				logger.WarnContext(ctx, "request signature rejected",
					slog.String("cause", cause),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				if metrics != nil {
					metrics.SignatureRejections.WithLabelValues(r.URL.Path).Inc()
				}
				render.Render(w, r, apierrors.Unauthorized())
			}

			signature := r.Header.Get(domain.HeaderRequestSignature)
			tsHeader := r.Header.Get(domain.HeaderRequestTimestamp)
			if signature == "" || tsHeader == "" {
				reject("missing headers")
				return
			}

			timestamp, err := strconv.ParseInt(tsHeader, 10, 64)
			if err != nil {
				reject("malformed timestamp")
				return
			}

			now := time.Now().UnixMilli()
			if now-timestamp > cfg.MaxAge.Milliseconds() {
				reject("stale timestamp")
				return
			}
			if timestamp-now > cfg.MaxSkew.Milliseconds() {
				reject("future timestamp")
				return
			}

			var body []byte
			if r.Body != nil {
				body, err = io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes))
				if err != nil {
					reject("unreadable body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			if !signer.Verify(body, timestamp, signature) {
				reject("signature mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
