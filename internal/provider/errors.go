// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/lessonmedia/internal/resilience"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnavailable     = errors.New("provider unavailable")
	ErrTimeout         = errors.New("provider timeout")
	ErrRateLimited     = errors.New("provider rate limited")
	ErrInvalidResponse = errors.New("invalid provider response")
	ErrRejected        = errors.New("provider rejected request")
)

// Error carries operation context for a failed provider call.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Err       error
}

func (e *Error) Error() string {
	msg := e.Operation
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Sentinel, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Sentinel)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// sentinelForStatus maps an HTTP status to a sentinel.
func sentinelForStatus(status int) error {
	switch {
	case status == http.StatusNotFound, status == http.StatusGone:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}

// Outcome classifies err into a metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrRejected):
		return "invalid"
	default:
		return "error"
	}
}

// IsTransient reports whether a retry later could succeed. Only transient
// failures count against the circuit breaker.
func IsTransient(err error) bool {
	switch Outcome(err) {
	case "success", "not_found", "invalid", "canceled":
		return false
	default:
		return true
	}
}
