package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// EndpointClass selects which limit profile applies.
type EndpointClass string

const (
	ClassActivate EndpointClass = "activate"
	ClassCheckIn  EndpointClass = "checkin"
	ClassGlobal   EndpointClass = "global"
)

// RequestInfo carries the identifiers a request can be limited on.
type RequestInfo struct {
	IP         string
	DeviceID   string
	LicenseKey string
}

// ipBudgetFactor widens the per-class IP budget relative to the per-device
// budget. A single exhausted device must not trip the shared IP key for
// well-behaved siblings behind the same NAT.
const ipBudgetFactor = 3

// Limiter evaluates every composite key that applies to a request and lets
// the most restrictive one win. One device being blocked must not block a
// sibling device behind the same IP unless the shared IP key is itself
// exhausted.
type Limiter struct {
	store    Store
	profiles map[EndpointClass]Profile
	logger   *slog.Logger

	// onFailOpen is invoked when an internal store error lets a request
	// through unchecked.
	onFailOpen func()
}

// NewLimiter creates a limiter over the given store and per-class profiles.
// The ClassGlobal profile must be present; it backs the global-by-IP key.
func NewLimiter(store Store, profiles map[EndpointClass]Profile, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:    store,
		profiles: profiles,
		logger:   logger.With(slog.String("component", "rate_limiter")),
	}
}

// WithFailOpenCallback registers a counter hook for fail-open events.
func (l *Limiter) WithFailOpenCallback(fn func()) *Limiter {
	l.onFailOpen = fn
	return l
}

// Allow checks the request against all applicable keys. A request is
// rejected if any key is blocked or newly exceeds its limit. An internal
// error evaluating limits allows the request through (fail-open) rather than
// turning the defense layer into an outage.
func (l *Limiter) Allow(ctx context.Context, class EndpointClass, info RequestInfo) Decision {
	type check struct {
		key     string
		profile Profile
	}

	checks := []check{
		{key: "global:ip:" + info.IP, profile: l.profiles[ClassGlobal]},
	}
	if class != ClassGlobal {
		profile := l.profiles[class]
		ipProfile := profile
		ipProfile.MaxAttempts *= ipBudgetFactor
		checks = append(checks, check{
			key:     fmt.Sprintf("%s:ip:%s", class, info.IP),
			profile: ipProfile,
		})
		if info.DeviceID != "" {
			checks = append(checks, check{
				key:     fmt.Sprintf("%s:device:%s", class, info.DeviceID),
				profile: profile,
			})
		}
		// License keys are limited only on activation, and hashed so the
		// table never holds raw keys.
		if class == ClassActivate && info.LicenseKey != "" {
			checks = append(checks, check{
				key:     fmt.Sprintf("%s:key:%s", class, hashIdentifier(info.LicenseKey)),
				profile: profile,
			})
		}
	}

	worst := Decision{Allowed: true}
	for _, c := range checks {
		decision, err := l.store.Check(ctx, c.key, c.profile)
		if err != nil {
			l.logger.WarnContext(ctx, "rate limit check failed, allowing request",
				slog.String("key", c.key),
				slog.String("error", err.Error()),
			)
			if l.onFailOpen != nil {
				l.onFailOpen()
			}
			continue
		}
		if decision.Allowed {
			continue
		}
		l.logger.WarnContext(ctx, "rate limit exceeded",
			slog.String("key", c.key),
			slog.String("reason", string(decision.Reason)),
			slog.Duration("retry_after", decision.RetryAfter),
		)
		if worst.Allowed || moreRestrictive(decision, worst) {
			worst = decision
		}
	}
	return worst
}

// moreRestrictive orders rejections: an active block outranks a fresh
// limit breach, then the longer wait wins.
func moreRestrictive(a, b Decision) bool {
	if a.Reason == ReasonBlocked && b.Reason != ReasonBlocked {
		return true
	}
	if a.Reason != ReasonBlocked && b.Reason == ReasonBlocked {
		return false
	}
	return a.RetryAfter > b.RetryAfter
}

// hashIdentifier hides sensitive identifiers used as table keys.
func hashIdentifier(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
