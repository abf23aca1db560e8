// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/lessonmedia/internal/resilience"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

// Guarded runs calls through a circuit breaker. Only transient failures
// count; a missing resource never opens the breaker.
type Guarded struct {
	next    Resolver
	breaker *resilience.CircuitBreaker
}

// NewBreaker builds a breaker that classifies failures with IsTransient.
func NewBreaker(name string, threshold int, reset time.Duration, cfg ...resilience.Option) *resilience.CircuitBreaker {
	opts := append([]resilience.Option{resilience.WithFailureClassifier(IsTransient)}, cfg...)
	return resilience.NewCircuitBreaker(name, threshold, reset, opts...)
}

func NewGuarded(next Resolver, breaker *resilience.CircuitBreaker) *Guarded {
	if next == nil || breaker == nil {
		panic("provider: NewGuarded requires resolver and breaker")
	}
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	var out *resource.Descriptor
	err := g.breaker.Execute(func() error {
		d, err := g.next.Resolve(ctx, kind, id)
		out = d
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &Error{Sentinel: ErrUnavailable, Operation: "resolve", Err: err}
	}
	return out, err
}

// Breaker exposes the breaker for health checks.
func (g *Guarded) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}
