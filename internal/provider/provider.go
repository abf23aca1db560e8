// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package provider is the boundary to the external signing and ingestion
// services. Decorators in this package add a shared descriptor tier, rate
// limiting, a circuit breaker and instrumentation around any Resolver.
package provider

import (
	"context"
	"io"

	"github.com/ManuGH/lessonmedia/internal/resource"
)

// Resolver resolves a resource id into a freshly signed descriptor.
// A nil descriptor with a nil error means the resource does not exist.
type Resolver interface {
	Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error)

func (f ResolverFunc) Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	return f(ctx, kind, id)
}

// UploadMetadata describes an upload.
type UploadMetadata struct {
	Filename    string
	ContentType string
	Title       string
	Description string
	SizeBytes   int64
}

// Uploader hands raw media to the external ingestion path and returns the
// new resource id.
type Uploader interface {
	Upload(ctx context.Context, kind resource.Kind, body io.Reader, meta UploadMetadata) (string, error)
}

type bypassKey struct{}

// WithStoreBypass marks ctx so descriptor tiers are skipped and the origin is
// asked for new signatures.
func WithStoreBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

// StoreBypassed reports whether ctx carries WithStoreBypass.
func StoreBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}
