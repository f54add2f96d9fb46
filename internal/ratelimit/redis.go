package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript performs the window increment and block transition in one
// round trip so concurrent requests for the same key serialize in Redis.
//
// KEYS[1] = window counter, KEYS[2] = block marker
// ARGV[1] = window ms, ARGV[2] = max attempts, ARGV[3] = block ms
//
// Returns {state, ttl_ms} where state is 0 (allowed), 1 (blocked) or
// 2 (limit just exceeded).
var checkScript = redis.NewScript(`
	local blockTTL = redis.call("PTTL", KEYS[2])
	if blockTTL > 0 then
		return {1, blockTTL}
	end
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	if count > tonumber(ARGV[2]) then
		redis.call("SET", KEYS[2], "1", "PX", ARGV[3])
		redis.call("DEL", KEYS[1])
		return {2, tonumber(ARGV[3])}
	end
	return {0, 0}
`)

// RedisStore is the distributed rate-limit store for clustered deployments.
// Expiry is handled by Redis TTLs, so Cleanup is a no-op.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store on the given client. prefix namespaces the
// keys (default "rl").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Check implements Store. Any Redis failure maps to ErrStoreUnavailable so
// the limiter fails open.
func (s *RedisStore) Check(ctx context.Context, key string, p Profile) (Decision, error) {
	countKey := fmt.Sprintf("%s:%s", s.prefix, key)
	blockKey := fmt.Sprintf("%s:block:%s", s.prefix, key)

	res, err := checkScript.Run(ctx, s.client,
		[]string{countKey, blockKey},
		p.Window.Milliseconds(), p.MaxAttempts, p.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil || len(res) != 2 {
		return Decision{}, ErrStoreUnavailable
	}

	switch res[0] {
	case 1:
		return Decision{
			Allowed:    false,
			Reason:     ReasonBlocked,
			RetryAfter: time.Duration(res[1]) * time.Millisecond,
		}, nil
	case 2:
		return Decision{
			Allowed:    false,
			Reason:     ReasonTooManyAttempts,
			RetryAfter: time.Duration(res[1]) * time.Millisecond,
		}, nil
	default:
		return Decision{Allowed: true}, nil
	}
}

// Cleanup implements Store. Redis TTLs bound memory growth on their own.
func (s *RedisStore) Cleanup(time.Time) {}
