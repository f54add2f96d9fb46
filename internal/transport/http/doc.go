// Package http contains the HTTP transport for the license server: the
// activation and check-in endpoints, mounted behind the per-class rate
// limiter and the request-signature verifier, plus health and metrics.
package http
