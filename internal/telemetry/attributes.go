// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for consistent tracing across the application.
const (
	ResourceIDKey   = "resource.id"
	ResourceKindKey = "resource.kind"
	FetchTokenKey   = "fetch.token"
	FetchPathKey    = "fetch.path"

	ProviderOutcomeKey = "provider.outcome"
	UploadBytesKey     = "upload.bytes"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ResourceAttributes identifies the resource a span works on.
func ResourceAttributes(kind, id string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if kind != "" {
		attrs = append(attrs, attribute.String(ResourceKindKey, kind))
	}
	if id != "" {
		attrs = append(attrs, attribute.String(ResourceIDKey, id))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// RecordError marks span as failed. Nil errors are ignored.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(ErrorAttributes(errorType)...)
	span.SetStatus(codes.Error, errorType)
}
