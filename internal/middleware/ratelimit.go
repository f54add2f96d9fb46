package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/ratelimit"
)

// maxPeekBytes bounds how much body the limiter reads when extracting the
// device ID and license key.
const maxPeekBytes = 64 * 1024

// limitIdentifiers is the subset of the request body the limiter keys on.
type limitIdentifiers struct {
	DeviceID   string `json:"device_id"`
	LicenseKey string `json:"license_key"`
}

// RateLimit gates an endpoint class behind the multi-key sliding-window
// limiter. It runs BEFORE signature verification so volumetric abuse is shed
// before any HMAC work, and before business logic ever sees the request.
func RateLimit(limiter *ratelimit.Limiter, class ratelimit.EndpointClass, metrics *infrastructure.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			info := ratelimit.RequestInfo{IP: clientIP(r)}

			// Peek the body for the device and license identifiers; the
			// body is restored for downstream middleware. A body that
			// fails to parse here is left to the handler to reject.
			if r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
				if err == nil {
					r.Body = io.NopCloser(bytes.NewReader(body))
					var ids limitIdentifiers
					if json.Unmarshal(body, &ids) == nil {
						info.DeviceID = ids.DeviceID
						info.LicenseKey = ids.LicenseKey
					}
				}
			}

			decision := limiter.Allow(ctx, class, info)
			if !decision.Allowed {
				if metrics != nil {
					metrics.RateLimitRejections.WithLabelValues(string(class), string(decision.Reason)).Inc()
				}
				waitSeconds := int(math.Ceil(decision.RetryAfter.Seconds()))
				if waitSeconds < 1 {
					waitSeconds = 1
				}
				render.Render(w, r, apierrors.RateLimited(string(decision.Reason), waitSeconds))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the originating IP, honoring X-Forwarded-For when a
// proxy added it.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
