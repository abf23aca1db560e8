// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/lessonmedia/internal/validate"
)

// Validate checks ranges and cross-field rules of a resolved config.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("logLevel", strings.ToLower(cfg.LogLevel))

	d := cfg.Delivery
	v.FloatRange("delivery.prefetchThresholdPercent", d.PrefetchThresholdPercent, 0, 100, true)
	v.PositiveDuration("delivery.expiryLeadTimeMs", d.ExpiryLeadTime)
	v.PositiveDuration("delivery.refreshIntervalMs", d.RefreshInterval)
	// A periodic check must always land inside the lead window before expiry.
	if d.ExpiryLeadTime > 0 && d.RefreshInterval > 0 && d.ExpiryLeadTime <= d.RefreshInterval {
		v.AddError("delivery.expiryLeadTimeMs",
			fmt.Sprintf("lead time %s must exceed refresh interval %s", d.ExpiryLeadTime, d.RefreshInterval),
			d.ExpiryLeadTime)
	}
	v.FloatRange("delivery.visibilityThreshold", d.VisibilityThreshold, 0, 1, false)
	v.FloatRange("delivery.visibilityRootMargin", d.VisibilityRootMargin, 0, 100000, false)
	v.NonNegative("delivery.maxEntries", d.MaxEntries)

	p := cfg.Provider
	v.OneOf("provider.mode", p.Mode, []string{ProviderModeMemory, ProviderModeHTTP})
	if p.Mode == ProviderModeHTTP {
		v.URL("provider.baseUrl", p.BaseURL, []string{"http", "https"})
	}
	v.PositiveDuration("provider.timeout", p.Timeout)
	if p.RPS < 0 {
		v.AddError("provider.rps", "value cannot be negative", p.RPS)
	}
	if p.RPS > 0 {
		v.Positive("provider.burst", p.Burst)
	}
	v.NonNegative("provider.breakerThreshold", p.BreakerThreshold)
	if p.BreakerThreshold > 0 {
		v.PositiveDuration("provider.breakerReset", p.BreakerReset)
	}
	if p.SignedURLTTL < 0 {
		v.AddError("provider.signedUrlTtl", "duration cannot be negative", p.SignedURLTTL)
	}

	s := cfg.Store
	v.OneOf("store.backend", s.Backend, []string{StoreBackendNone, StoreBackendRedis, StoreBackendBadger})
	switch s.Backend {
	case StoreBackendRedis:
		v.NotEmpty("store.redis.addr", s.RedisAddr)
		v.Range("store.redis.db", s.RedisDB, 0, 15)
	case StoreBackendBadger:
		v.NotEmpty("store.badger.path", s.BadgerPath)
	}
	if s.Backend != StoreBackendNone {
		v.PositiveDuration("store.fallbackTtl", s.FallbackTTL)
		if s.TTLMargin < 0 {
			v.AddError("store.ttlMargin", "duration cannot be negative", s.TTLMargin)
		}
	}

	u := cfg.Usage
	v.OneOf("usage.sink", u.Sink, []string{UsageSinkNone, UsageSinkLog, UsageSinkSQLite})
	if u.Sink == UsageSinkSQLite {
		v.NotEmpty("usage.path", u.Path)
	}
	v.Positive("usage.buffer", u.Buffer)
	v.Positive("usage.batchSize", u.BatchSize)
	v.PositiveDuration("usage.flushInterval", u.FlushInterval)

	a := cfg.API
	v.NotEmpty("api.listenAddr", a.ListenAddr)
	v.NonNegative("api.rateLimit", a.RateLimit)
	if a.MaxUploadBytes <= 0 {
		v.AddError("api.maxUploadBytes", "value must be positive", a.MaxUploadBytes)
	}
	v.PositiveDuration("api.shutdownTimeout", a.ShutdownTimeout)

	t := cfg.Telemetry
	if t.Enabled {
		v.OneOf("telemetry.exporter", t.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", t.Endpoint)
		v.FloatRange("telemetry.sampleRate", t.SampleRate, 0, 1, false)
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
