// Package ratelimit implements the multi-key sliding-window abuse control
// that gates the activation and check-in endpoints.
//
// Every request is checked against each composite key that applies to it
// (global-by-IP, endpoint-by-IP, endpoint-by-device, and for activation
// endpoint-by-license-key); the check is conjunctive, so the most
// restrictive key decides. Each key follows a small state machine:
//
//	Open -> Open (counting) -> Blocked -> Open (after the block elapses)
//
// Attempts are pruned to the trailing window before evaluation, blocked
// keys do not accrue attempts, and exceeding the limit starts a fixed
// block penalty. Internal store failures fail open.
//
// The Store interface keeps the in-memory table and the Redis-backed
// implementation interchangeable; only clustered deployments need Redis.
package ratelimit
