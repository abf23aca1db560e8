// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the delivery stack from configuration and owns its
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ManuGH/lessonmedia/internal/api"
	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/config"
	"github.com/ManuGH/lessonmedia/internal/delivery"
	"github.com/ManuGH/lessonmedia/internal/health"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/provider"
	"github.com/ManuGH/lessonmedia/internal/resilience"
	"github.com/ManuGH/lessonmedia/internal/telemetry"
	"github.com/ManuGH/lessonmedia/internal/usage"
)

const serviceName = "lessonmedia"

// memoryBaseURL signs URLs in memory mode when no base URL is configured.
const memoryBaseURL = "http://media.localhost"

// Runtime is the fully wired delivery stack built from one configuration.
type Runtime struct {
	Config   config.AppConfig
	Service  *delivery.Service
	Health   *health.Manager
	API      *api.Server
	Recorder *usage.Recorder
	Limiter  *provider.RateLimited
	Breaker  *resilience.CircuitBreaker

	telemetry *telemetry.Provider
	store     cache.DescriptorStore
	sink      usage.Sink
	logger    zerolog.Logger

	usageCtx     context.Context
	usageCancel  context.CancelFunc
	usageClaimed atomic.Bool
	usageDone    chan struct{}
}

// Build constructs every component named by cfg. On error, anything already
// opened is closed again.
func Build(ctx context.Context, cfg config.AppConfig) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg, logger: log.WithComponent("daemon"), usageDone: make(chan struct{})}
	rt.usageCtx, rt.usageCancel = context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		if err != nil {
			rt.usageCancel()
			if rt.sink != nil {
				_ = rt.sink.Close()
			}
			_ = rt.closeResources(context.WithoutCancel(ctx))
		}
	}()

	rt.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	rt.store, err = openStore(ctx, cfg.Store, rt.logger)
	if err != nil {
		return nil, err
	}

	origin, uploader, err := buildOrigin(cfg.Provider)
	if err != nil {
		return nil, err
	}

	if cfg.Provider.BreakerThreshold > 0 {
		rt.Breaker = provider.NewBreaker("provider", cfg.Provider.BreakerThreshold, cfg.Provider.BreakerReset)
	}
	resolver, limiter := provider.Stack(origin, provider.StackOptions{
		Store: rt.store,
		Tiered: provider.TieredOptions{
			Margin:      cfg.Store.TTLMargin,
			FallbackTTL: cfg.Store.FallbackTTL,
		},
		RPS:     cfg.Provider.RPS,
		Burst:   cfg.Provider.Burst,
		Breaker: rt.Breaker,
	})
	rt.Limiter = limiter

	sink, err := openUsageSink(ctx, cfg.Usage)
	if err != nil {
		return nil, err
	}
	rt.sink = sink
	rt.Recorder = usage.NewRecorder(sink, usage.Options{
		Buffer:        cfg.Usage.Buffer,
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: cfg.Usage.FlushInterval,
	})

	rt.Service, err = delivery.New(delivery.Options{
		Resolver: resolver,
		Uploader: uploader,
		Usage:    rt.Recorder,
		Settings: DeliverySettings(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("delivery: %w", err)
	}

	rt.Health = health.NewManager(cfg.Version)
	if rt.Breaker != nil {
		rt.Health.RegisterChecker(health.NewBreakerChecker(rt.Breaker))
	}
	if rt.store != nil {
		rt.Health.RegisterChecker(health.NewOptionalPingChecker("store_"+cfg.Store.Backend, rt.store.Ping))
	}
	if s, ok := sink.(*usage.SQLiteSink); ok {
		rt.Health.RegisterChecker(health.NewOptionalPingChecker("usage_sqlite", s.Check))
	}

	rt.API = api.New(rt.Service, rt.Health, api.Config{
		RateLimitPerMinute: cfg.API.RateLimit,
		MaxUploadBytes:     cfg.API.MaxUploadBytes,
		TracingService:     tracingService(cfg),
		AccessLog:          true,
	})

	rt.logger.Info().
		Str(log.FieldEvent, "daemon.built").
		Str("provider", cfg.Provider.Mode).
		Str("store", cfg.Store.Backend).
		Str("usage_sink", cfg.Usage.Sink).
		Bool("breaker", rt.Breaker != nil).
		Msg("delivery stack ready")
	return rt, nil
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return serviceName
}

// DeliverySettings maps configuration onto the delivery tuning knobs.
func DeliverySettings(cfg config.AppConfig) delivery.Settings {
	d := cfg.Delivery
	return delivery.Settings{
		PrefetchThresholdPercent: d.PrefetchThresholdPercent,
		ExpiryLeadTime:           d.ExpiryLeadTime,
		RefreshInterval:          d.RefreshInterval,
		VisibilityThreshold:      d.VisibilityThreshold,
		VisibilityRootMargin:     d.VisibilityRootMargin,
		MaxEntries:               d.MaxEntries,
		ProviderTimeout:          cfg.Provider.Timeout,
	}
}

func openStore(ctx context.Context, s config.StoreSettings, logger zerolog.Logger) (cache.DescriptorStore, error) {
	switch s.Backend {
	case config.StoreBackendRedis:
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:      s.RedisAddr,
			Password:  s.RedisPassword,
			DB:        s.RedisDB,
			KeyPrefix: s.RedisPrefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		return store, nil
	case config.StoreBackendBadger:
		store, err := cache.OpenBadgerStore(s.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

func buildOrigin(p config.ProviderSettings) (provider.Resolver, provider.Uploader, error) {
	switch p.Mode {
	case config.ProviderModeHTTP:
		client, err := provider.NewHTTPClient(provider.HTTPConfig{
			BaseURL:   p.BaseURL,
			Token:     p.Token,
			Timeout:   p.Timeout,
			UserAgent: p.UserAgent,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("provider: %w", err)
		}
		return client, provider.NewInstrumentedUploader(client), nil
	default:
		base := p.BaseURL
		if base == "" {
			base = memoryBaseURL
		}
		mem := provider.NewMemory(base, p.SignedURLTTL, nil)
		return mem, provider.NewInstrumentedUploader(mem), nil
	}
}

func openUsageSink(ctx context.Context, u config.UsageSettings) (usage.Sink, error) {
	switch u.Sink {
	case config.UsageSinkSQLite:
		s, err := usage.OpenSQLiteSink(ctx, u.Path)
		if err != nil {
			return nil, fmt.Errorf("usage sink: %w", err)
		}
		return s, nil
	case config.UsageSinkLog:
		return usage.LogSink{Logger: log.WithComponent("usage")}, nil
	default:
		return usage.NopSink{}, nil
	}
}

// RegisterHooks installs shutdown hooks on m. Hooks run LIFO: the service
// drains first so its final usage events still reach the sink.
func (rt *Runtime) RegisterHooks(m Manager) {
	m.RegisterShutdownHook("telemetry", func(ctx context.Context) error {
		if rt.telemetry == nil {
			return nil
		}
		return rt.telemetry.Shutdown(ctx)
	})
	m.RegisterShutdownHook("usage", rt.stopUsage)
	m.RegisterShutdownHook("store", func(context.Context) error {
		if rt.store == nil {
			return nil
		}
		return rt.store.Close()
	})
	m.RegisterShutdownHook("delivery", func(ctx context.Context) error {
		return rt.Service.Close(ctx)
	})
}

// RunUsage writes usage batches until the usage shutdown hook runs. It
// returns immediately if the hook already ran.
func (rt *Runtime) RunUsage() error {
	if !rt.usageClaimed.CompareAndSwap(false, true) {
		return nil
	}
	defer close(rt.usageDone)
	return rt.Recorder.Run(rt.usageCtx)
}

func (rt *Runtime) stopUsage(ctx context.Context) error {
	rt.usageCancel()
	if rt.usageClaimed.CompareAndSwap(false, true) {
		// The recorder never ran; the sink is still ours to close.
		if rt.sink == nil {
			return nil
		}
		return rt.sink.Close()
	}
	select {
	case <-rt.usageDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyConfig pushes hot-reloadable settings into the running stack.
// Provider, store and listen changes need a restart.
func (rt *Runtime) ApplyConfig(cfg config.AppConfig) error {
	var errs []error
	if err := rt.Service.ApplySettings(DeliverySettings(cfg)); err != nil {
		errs = append(errs, err)
	}
	if rt.Limiter != nil {
		rt.Limiter.SetLimit(cfg.Provider.RPS, cfg.Provider.Burst)
	}
	if cfg.LogLevel != rt.Config.LogLevel {
		log.Configure(log.Config{Level: cfg.LogLevel, Service: serviceName, Version: cfg.Version})
	}
	rt.Config = cfg
	return errors.Join(errs...)
}

// Close releases everything Build opened without a manager; used when the
// daemon exits before serving.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Service != nil {
		errs = append(errs, rt.Service.Close(ctx))
	}
	errs = append(errs, rt.stopUsage(ctx), rt.closeResources(ctx))
	return errors.Join(errs...)
}

func (rt *Runtime) closeResources(ctx context.Context) error {
	var errs []error
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
		rt.store = nil
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
		rt.telemetry = nil
	}
	return errors.Join(errs...)
}
