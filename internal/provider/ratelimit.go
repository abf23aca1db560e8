// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ManuGH/lessonmedia/internal/resource"
)

// RateLimited bounds the call rate towards the origin. Callers wait for a
// token; a context that ends first yields ErrRateLimited.
type RateLimited struct {
	next    Resolver
	limiter *rate.Limiter
}

// NewRateLimited allows rps calls per second with the given burst.
// rps <= 0 disables limiting.
func NewRateLimited(next Resolver, rps float64, burst int) *RateLimited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &Error{Sentinel: ErrRateLimited, Operation: "resolve", Err: err}
	}
	return r.next.Resolve(ctx, kind, id)
}

// SetLimit changes the rate at runtime.
func (r *RateLimited) SetLimit(rps float64, burst int) {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	r.limiter.SetLimit(limit)
	r.limiter.SetBurst(burst)
}
