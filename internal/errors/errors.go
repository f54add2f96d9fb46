// Package errors provides the structured API error responses rendered by the
// license server. Response bodies follow the protocol contract: rate-limit
// rejections carry retryAfter plus machine-readable details, signature
// rejections carry a deliberately uniform unauthorized body.
package errors

import (
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"licensegate/pkg/contracts/domain"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int                  `json:"-"`
	ErrorCode  string               `json:"error"`
	Message    string               `json:"message,omitempty"`
	RetryAfter int                  `json:"retryAfter,omitempty"`
	Details    *domain.ErrorDetails `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// Unauthorized is the uniform signature-verification rejection. The message
// never varies by failure cause so probing clients learn nothing about which
// check failed.
func Unauthorized() *APIError {
	return New(http.StatusUnauthorized, domain.RejectUnauthorized, "Request could not be authenticated")
}

// RateLimited builds the 429 rejection body. reason is one of "blocked" or
// "too_many_attempts"; waitSeconds is the remaining penalty.
func RateLimited(reason string, waitSeconds int) *APIError {
	return &APIError{
		StatusCode: http.StatusTooManyRequests,
		ErrorCode:  domain.RejectRateLimited,
		Message:    "Too many requests. Please try again later",
		RetryAfter: waitSeconds,
		Details: &domain.ErrorDetails{
			Reason:      reason,
			WaitSeconds: waitSeconds,
		},
	}
}

// InvalidRequest creates a bad request error
func InvalidRequest(message string) *APIError {
	return New(http.StatusBadRequest, "invalid_request", message)
}

// Internal creates an internal server error without leaking the cause
func Internal() *APIError {
	return New(http.StatusInternalServerError, "internal_error", "An unexpected error occurred. Please try again later")
}

// Rejection maps a protocol rejection reason to its HTTP response.
func Rejection(reason, message string) *APIError {
	status := http.StatusForbidden
	switch reason {
	case domain.RejectInvalidKey:
		status = http.StatusNotFound
	case domain.RejectAlreadyActivated, domain.RejectMaxDevicesReached:
		status = http.StatusConflict
	case domain.RejectUnauthorized:
		status = http.StatusUnauthorized
	}
	return New(status, reason, message)
}
