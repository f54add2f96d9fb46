// Package security provides the client-side trust primitives of the license
// protocol: deterministic device fingerprinting with a persisted identity,
// HMAC request signing, atomic file persistence, and optional at-rest
// encryption of locally stored secrets.
//
// The device identity is derived once from hardware/OS signals (hostname,
// OS username, platform, architecture, primary MAC address) hashed with a
// fixed salt, then persisted. A persisted identity is authoritative and is
// never recomputed while the file exists.
package security
