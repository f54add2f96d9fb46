// Package license implements the client side of the device-bound license
// trust protocol: activating a license key against the server, persisting
// the signed token it returns, and verifying that token offline.
//
// The trust chain is:
//
//  1. The device identity (internal/security) is derived once and persisted.
//  2. Activate sends a signed request carrying the license key and device
//     ID; the server answers with an Ed25519-signed token binding the
//     license to this app and device.
//  3. Verify checks the stored token entirely offline before every
//     privileged operation: signature, expiry, app code, device binding,
//     and license status, in that order, reporting the first failure.
//
// Tokens are short-lived relative to the license term; CheckIn renews them.
// Verification failures are never auto-corrected: only a fresh activation
// or check-in may replace a bad token.
package license
