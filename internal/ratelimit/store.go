package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable signals an internal limiter failure. Callers treat it
// as fail-open: rate limiting is defense in depth, not the primary
// authorization mechanism, so availability wins.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Reason explains a rejection.
type Reason string

const (
	// ReasonBlocked means the key is serving a block penalty; attempts are
	// not counted while blocked.
	ReasonBlocked Reason = "blocked"
	// ReasonTooManyAttempts means this request just exceeded the window
	// limit and started the block.
	ReasonTooManyAttempts Reason = "too_many_attempts"
)

// Profile defines one endpoint class's sliding-window limits.
type Profile struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Decision is the outcome of checking one key.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
}

// Store is the per-key atomic check-and-increment contract. The in-memory
// implementation serves a single instance; the Redis implementation serves
// clustered deployments behind the same semantics.
type Store interface {
	// Check atomically records an attempt for key under the profile and
	// decides whether it is allowed. Blocked keys do not accrue attempts.
	Check(ctx context.Context, key string, p Profile) (Decision, error)

	// Cleanup discards records whose window and block period have both
	// been expired for at least a minute. Advisory: skipping a busy key
	// is safe because staleness is bounded, not correctness.
	Cleanup(now time.Time)
}
