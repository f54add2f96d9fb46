// Package app wires configuration, logging, metrics, the rate limiter,
// and the HTTP transport into a runnable license server.
package app
