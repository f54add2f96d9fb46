// Package middleware provides the server's HTTP middleware chain. The
// protocol endpoints are mounted behind, in order: RequestID, RealIP,
// StructuredLogger, Recoverer, GlobalThrottle, RateLimit (per endpoint
// class), and finally SignatureVerify. The rate limiter runs before the
// signature check so abusive volume is shed cheaply; the signature verifier
// fails closed while the limiter fails open.
package middleware
