// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/lessonmedia/internal/resilience"
)

// PingChecker wraps a ping function, such as a descriptor store Ping or the
// usage database integrity check.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

// NewPingChecker reports unhealthy when ping fails.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// NewOptionalPingChecker reports degraded when ping fails. The service keeps
// working without the component.
func NewOptionalPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, optional: true}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := c.ping(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// BreakerChecker reports the provider circuit breaker. An open breaker is
// degraded: cached descriptors keep being served while the provider recovers.
type BreakerChecker struct {
	cb *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for cb.
func NewBreakerChecker(cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{cb: cb}
}

func (c *BreakerChecker) Name() string {
	if c.cb == nil {
		return "provider_breaker"
	}
	return "breaker_" + c.cb.Name()
}

func (c *BreakerChecker) Check(context.Context) CheckResult {
	if c.cb == nil {
		return CheckResult{Status: StatusHealthy, Message: "disabled"}
	}
	switch state := c.cb.State(); state {
	case resilience.StateOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit open, provider calls rejected"}
	case resilience.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit half-open, probing provider"}
	default:
		return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("circuit %s", state)}
	}
}
