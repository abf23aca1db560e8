// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/resilience"
)

// StackOptions selects the decorators applied around an origin resolver.
type StackOptions struct {
	Store   cache.DescriptorStore // nil disables the shared tier
	Tiered  TieredOptions
	RPS     float64
	Burst   int
	Breaker *resilience.CircuitBreaker // nil disables the breaker
}

// Stack wraps origin as store -> breaker -> rate limit -> instrumentation.
// Store hits never consume rate budget or count as provider calls.
func Stack(origin Resolver, opts StackOptions) (Resolver, *RateLimited) {
	var r Resolver = NewInstrumented(origin)
	limited := NewRateLimited(r, opts.RPS, opts.Burst)
	r = limited
	if opts.Breaker != nil {
		r = NewGuarded(r, opts.Breaker)
	}
	if opts.Store != nil {
		r = NewTiered(r, opts.Store, opts.Tiered)
	}
	return r, limited
}
