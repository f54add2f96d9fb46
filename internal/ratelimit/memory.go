package ratelimit

import (
	"context"
	"sync"
	"time"
)

// gcGrace is how long after both window and block expiry a record must idle
// before cleanup removes it.
const gcGrace = time.Minute

// record holds one composite key's sliding window. All read-modify-write
// sequences on a record happen under its own mutex so two concurrent
// requests for the same key cannot both observe a pre-increment count.
type record struct {
	mu           sync.Mutex
	attempts     []time.Time
	windowStart  time.Time
	blockedUntil time.Time
}

// MemoryStore is the process-local sliding-window table.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time

	// onSize, when set, receives the record count after each cleanup.
	onSize func(int)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// WithTimeFunc overrides the clock for tests.
func (s *MemoryStore) WithTimeFunc(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// WithSizeCallback registers a gauge callback for observability.
func (s *MemoryStore) WithSizeCallback(fn func(int)) *MemoryStore {
	s.onSize = fn
	return s
}

// Check implements Store.
func (s *MemoryStore) Check(_ context.Context, key string, p Profile) (Decision, error) {
	rec := s.getOrCreate(key)
	now := s.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// A key serving a block penalty rejects immediately and does not
	// accrue attempts.
	if rec.blockedUntil.After(now) {
		return Decision{
			Allowed:    false,
			Reason:     ReasonBlocked,
			RetryAfter: rec.blockedUntil.Sub(now),
		}, nil
	}

	// windowStart only marks recent activity for cleanup. The attempt
	// log itself is a strict trailing window maintained by pruning;
	// clearing it on a window boundary would forget attempts that are
	// still inside [now-window, now] and let a burst straddle the
	// boundary at up to twice the limit.
	if now.Sub(rec.windowStart) >= p.Window {
		rec.windowStart = now
	}

	rec.attempts = append(rec.attempts, now)
	rec.attempts = pruneBefore(rec.attempts, now.Add(-p.Window))

	if len(rec.attempts) > p.MaxAttempts {
		rec.blockedUntil = now.Add(p.BlockDuration)
		return Decision{
			Allowed:    false,
			Reason:     ReasonTooManyAttempts,
			RetryAfter: p.BlockDuration,
		}, nil
	}

	return Decision{Allowed: true}, nil
}

// Cleanup implements Store. Busy records are skipped; they will be caught on
// a later sweep.
func (s *MemoryStore) Cleanup(now time.Time) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	var stale []string
	for _, k := range keys {
		s.mu.RLock()
		rec := s.records[k]
		s.mu.RUnlock()
		if rec == nil {
			continue
		}
		if !rec.mu.TryLock() {
			continue
		}
		expired := s.isStale(rec, now)
		rec.mu.Unlock()
		if expired {
			stale = append(stale, k)
		}
	}

	if len(stale) > 0 {
		s.mu.Lock()
		for _, k := range stale {
			rec := s.records[k]
			if rec == nil || !rec.mu.TryLock() {
				continue
			}
			if s.isStale(rec, now) {
				delete(s.records, k)
			}
			rec.mu.Unlock()
		}
		s.mu.Unlock()
	}

	if s.onSize != nil {
		s.mu.RLock()
		size := len(s.records)
		s.mu.RUnlock()
		s.onSize(size)
	}
}

// Size returns the current record count.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// isStale reports whether both the last attempt and any block have been
// expired for at least gcGrace. Caller holds rec.mu.
func (s *MemoryStore) isStale(rec *record, now time.Time) bool {
	cutoff := now.Add(-gcGrace)
	if rec.blockedUntil.After(cutoff) {
		return false
	}
	if len(rec.attempts) > 0 && rec.attempts[len(rec.attempts)-1].After(cutoff) {
		return false
	}
	return rec.windowStart.Before(cutoff)
}

func (s *MemoryStore) getOrCreate(key string) *record {
	s.mu.RLock()
	rec := s.records[key]
	s.mu.RUnlock()
	if rec != nil {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec = s.records[key]; rec == nil {
		rec = &record{windowStart: s.now()}
		s.records[key] = rec
	}
	return rec
}

// pruneBefore drops timestamps earlier than cutoff. Attempts are appended in
// order, so the slice stays sorted and a single scan suffices.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
