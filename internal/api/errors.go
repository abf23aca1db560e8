// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/lessonmedia/internal/delivery"
	"github.com/ManuGH/lessonmedia/internal/fetch"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/provider"
	"github.com/ManuGH/lessonmedia/internal/resilience"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

// ErrorResponse is the body of every non-2xx API answer.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, code int, errCode, detail string) {
	writeJSON(w, code, ErrorResponse{Error: errCode, Detail: detail})
}

// classify maps domain errors to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, resource.ErrInvalidID), errors.Is(err, resource.ErrUnknownKind):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout, "provider_timeout"
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests, "provider_rate_limited"
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, provider.ErrUnavailable):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, provider.ErrInvalidResponse), errors.Is(err, resource.ErrInvalidDescriptor), errors.Is(err, resource.ErrExpired):
		return http.StatusBadGateway, "invalid_provider_response"
	case errors.Is(err, provider.ErrRejected):
		return http.StatusUnprocessableEntity, "rejected"
	case errors.Is(err, delivery.ErrUploadsDisabled):
		return http.StatusNotImplemented, "uploads_disabled"
	case errors.Is(err, fetch.ErrClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError logs server-side failures and writes the classified response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, errCode := classify(err)
	if code >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "api.request_failed").
			Int("status", code).
			Msg("request failed")
	}
	writeProblem(w, code, errCode, err.Error())
}
