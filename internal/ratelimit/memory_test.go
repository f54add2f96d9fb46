package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfile = Profile{
	MaxAttempts:   10,
	Window:        time.Minute,
	BlockDuration: 15 * time.Minute,
}

// fakeClock is a settable clock for driving window and block expiry.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreAllowsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore().WithTimeFunc(clock.Now)
	ctx := context.Background()

	for i := 0; i < testProfile.MaxAttempts; i++ {
		d, err := store.Check(ctx, "activate:ip:1.2.3.4", testProfile)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d should be allowed", i+1)
	}
}

func TestMemoryStoreBlocksOverLimit(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore().WithTimeFunc(clock.Now)
	ctx := context.Background()
	key := "activate:ip:1.2.3.4"

	for i := 0; i < testProfile.MaxAttempts; i++ {
		_, err := store.Check(ctx, key, testProfile)
		require.NoError(t, err)
	}

	d, err := store.Check(ctx, key, testProfile)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonTooManyAttempts, d.Reason)
	assert.Equal(t, testProfile.BlockDuration, d.RetryAfter)

	t.Run("subsequent attempts report the penalty", func(t *testing.T) {
		clock.Advance(5 * time.Minute)
		d, err := store.Check(ctx, key, testProfile)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonBlocked, d.Reason)
		assert.Equal(t, 10*time.Minute, d.RetryAfter)
	})

	t.Run("attempts during the block do not extend it", func(t *testing.T) {
		clock.Advance(10 * time.Minute)
		d, err := store.Check(ctx, key, testProfile)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})
}

func TestMemoryStoreWindowSlides(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore().WithTimeFunc(clock.Now)
	ctx := context.Background()
	key := "checkin:device:abc"

	profile := Profile{MaxAttempts: 3, Window: time.Minute, BlockDuration: 5 * time.Minute}

	for i := 0; i < 3; i++ {
		d, err := store.Check(ctx, key, profile)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		clock.Advance(10 * time.Second)
	}

	// 30s elapsed, window full. Advancing past the window start frees it.
	clock.Advance(time.Minute)
	d, err := store.Check(ctx, key, profile)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStoreWindowBoundaryKeepsTrailingAttempts(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore().WithTimeFunc(clock.Now)
	ctx := context.Background()
	key := "activate:device:abc"

	profile := Profile{MaxAttempts: 3, Window: time.Minute, BlockDuration: 5 * time.Minute}

	// One early attempt anchors the window marker, then a burst near the
	// end of the window uses up the rest of the budget.
	_, err := store.Check(ctx, key, profile)
	require.NoError(t, err)
	clock.Advance(55 * time.Second)
	for i := 0; i < 2; i++ {
		d, err := store.Check(ctx, key, profile)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	// Just past the window boundary the burst is still inside the
	// trailing minute. The budget must not restart; only the t=0 attempt
	// has aged out.
	clock.Advance(6 * time.Second)
	d, err := store.Check(ctx, key, profile)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	clock.Advance(time.Second)
	d, err = store.Check(ctx, key, profile)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonTooManyAttempts, d.Reason)
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore().WithTimeFunc(clock.Now)
	ctx := context.Background()

	profile := Profile{MaxAttempts: 2, Window: time.Minute, BlockDuration: 5 * time.Minute}

	for i := 0; i < 3; i++ {
		store.Check(ctx, "activate:device:aaa", profile)
	}

	d, err := store.Check(ctx, "activate:device:bbb", profile)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStoreConcurrentChecksCountExactly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	profile := Profile{MaxAttempts: 50, Window: time.Minute, BlockDuration: 5 * time.Minute}

	const goroutines = 100
	var wg sync.WaitGroup
	allowed := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := store.Check(ctx, "activate:ip:9.9.9.9", profile)
			require.NoError(t, err)
			allowed <- d.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	// Exactly MaxAttempts must pass regardless of interleaving.
	assert.Equal(t, profile.MaxAttempts, count)
}

func TestMemoryStoreCleanup(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore().WithTimeFunc(clock.Now)
	ctx := context.Background()

	var lastSize int
	store.WithSizeCallback(func(n int) { lastSize = n })

	store.Check(ctx, "activate:ip:1.1.1.1", testProfile)
	store.Check(ctx, "activate:ip:2.2.2.2", testProfile)
	require.Equal(t, 2, store.Size())

	t.Run("fresh records survive", func(t *testing.T) {
		store.Cleanup(clock.Now())
		assert.Equal(t, 2, store.Size())
		assert.Equal(t, 2, lastSize)
	})

	t.Run("stale records are removed", func(t *testing.T) {
		clock.Advance(testProfile.Window + gcGrace + time.Minute)
		store.Cleanup(clock.Now())
		assert.Equal(t, 0, store.Size())
		assert.Equal(t, 0, lastSize)
	})
}

func TestMemoryStoreCleanupKeepsBlockedRecords(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore().WithTimeFunc(clock.Now)
	ctx := context.Background()
	key := "activate:ip:1.2.3.4"

	profile := Profile{MaxAttempts: 1, Window: time.Minute, BlockDuration: time.Hour}
	store.Check(ctx, key, profile)
	d, _ := store.Check(ctx, key, profile)
	require.False(t, d.Allowed)

	// Window long gone, but the block is still serving.
	clock.Advance(30 * time.Minute)
	store.Cleanup(clock.Now())
	assert.Equal(t, 1, store.Size())

	d, err := store.Check(ctx, key, profile)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBlocked, d.Reason)
}
