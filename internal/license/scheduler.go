package license

import (
	"context"
	"log/slog"
	"time"
)

// RecheckScheduler runs the offline verifier on a fixed interval. A failed
// verification is fatal for the current session: the callback fires once and
// the scheduler stops, rather than retrying silently against a check that
// can only be fixed by re-activation.
type RecheckScheduler struct {
	verifier *Verifier
	interval time.Duration
	onFatal  func(Verification)
	logger   *slog.Logger
}

// NewRecheckScheduler creates a scheduler. interval defaults to one hour.
func NewRecheckScheduler(verifier *Verifier, interval time.Duration, onFatal func(Verification), logger *slog.Logger) *RecheckScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RecheckScheduler{
		verifier: verifier,
		interval: interval,
		onFatal:  onFatal,
		logger:   logger.With(slog.String("component", "recheck_scheduler")),
	}
}

// Run checks immediately, then on every tick, until the context is done or a
// verification fails.
func (s *RecheckScheduler) Run(ctx context.Context) {
	if !s.check(ctx) {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.check(ctx) {
				return
			}
		}
	}
}

func (s *RecheckScheduler) check(ctx context.Context) bool {
	result := s.verifier.Verify()
	if result.Valid {
		s.logger.DebugContext(ctx, "periodic license verification passed")
		return true
	}

	// The specific reason stays in the log; user-facing surfaces get a
	// generic "license invalid" so binding internals are not exposed.
	s.logger.ErrorContext(ctx, "periodic license verification failed, ending session",
		slog.String("reason", string(result.Reason)),
	)
	if s.onFatal != nil {
		s.onFatal(result)
	}
	return false
}
