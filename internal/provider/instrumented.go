// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/lessonmedia/internal/metrics"
	"github.com/ManuGH/lessonmedia/internal/resource"
	"github.com/ManuGH/lessonmedia/internal/telemetry"
)

const tracerName = "github.com/ManuGH/lessonmedia/internal/provider"

// Instrumented records a span and metrics for every call.
type Instrumented struct {
	next   Resolver
	tracer trace.Tracer
}

func NewInstrumented(next Resolver) *Instrumented {
	return &Instrumented{next: next, tracer: telemetry.Tracer(tracerName)}
}

func (i *Instrumented) Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	ctx, span := i.tracer.Start(ctx, "provider.Resolve", trace.WithAttributes(telemetry.ResourceAttributes(string(kind), id)...))
	defer span.End()

	start := time.Now()
	d, err := i.next.Resolve(ctx, kind, id)

	outcome := Outcome(err)
	if err == nil && d == nil {
		outcome = "not_found"
	}
	metrics.RecordProviderCall(string(kind), outcome, time.Since(start))
	span.SetAttributes(attribute.String(telemetry.ProviderOutcomeKey, outcome))
	telemetry.RecordError(span, err, outcome)
	return d, err
}

// InstrumentedUploader records a span and the upload outcome.
type InstrumentedUploader struct {
	next   Uploader
	tracer trace.Tracer
}

func NewInstrumentedUploader(next Uploader) *InstrumentedUploader {
	return &InstrumentedUploader{next: next, tracer: telemetry.Tracer(tracerName)}
}

func (i *InstrumentedUploader) Upload(ctx context.Context, kind resource.Kind, body io.Reader, meta UploadMetadata) (string, error) {
	ctx, span := i.tracer.Start(ctx, "provider.Upload", trace.WithAttributes(telemetry.ResourceAttributes(string(kind), "")...))
	defer span.End()

	cr := &countingReader{r: body}
	id, err := i.next.Upload(ctx, kind, cr, meta)

	outcome := Outcome(err)
	metrics.RecordUpload(string(kind), outcome)
	span.SetAttributes(
		attribute.String(telemetry.ProviderOutcomeKey, outcome),
		attribute.Int64(telemetry.UploadBytesKey, cr.n),
	)
	if id != "" {
		span.SetAttributes(attribute.String(telemetry.ResourceIDKey, id))
	}
	telemetry.RecordError(span, err, outcome)
	return id, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
