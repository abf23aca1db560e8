// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package expiry keeps signed URLs valid. It checks descriptors at render
// time and periodically while a resource is active, and refreshes them ahead
// of expiry without disturbing the descriptor currently in use.
package expiry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/clock"
	"github.com/ManuGH/lessonmedia/internal/fetch"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/metrics"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

const (
	DefaultLeadTime = 10 * time.Minute
	DefaultInterval = 60 * time.Second
)

// Refresh triggers, used as metric labels.
const (
	TriggerManual = "manual"
	TriggerRender = "render"
	TriggerWatch  = "watch"
)

// Options configures a Monitor.
type Options struct {
	Coordinator *fetch.Coordinator
	Clock       clock.Clock
	LeadTime    time.Duration
	Interval    time.Duration
}

// Monitor decides when descriptors need new signatures.
type Monitor struct {
	coord  *fetch.Coordinator
	cache  *cache.Cache
	clock  clock.Clock
	logger zerolog.Logger

	lead     atomic.Int64
	interval atomic.Int64

	group singleflight.Group
	wg    sync.WaitGroup
}

// New creates a monitor on top of a coordinator.
func New(opts Options) *Monitor {
	if opts.Coordinator == nil {
		panic("expiry: New requires Coordinator")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	m := &Monitor{
		coord:  opts.Coordinator,
		cache:  opts.Coordinator.Cache(),
		clock:  clk,
		logger: log.WithComponent("expiry"),
	}
	m.SetTiming(opts.LeadTime, opts.Interval)
	return m
}

// SetTiming updates lead time and re-check interval. Non-positive values
// fall back to the defaults.
func (m *Monitor) SetTiming(lead, interval time.Duration) {
	if lead <= 0 {
		lead = DefaultLeadTime
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.lead.Store(int64(lead))
	m.interval.Store(int64(interval))
}

// LeadTime returns the configured lead time.
func (m *Monitor) LeadTime() time.Duration { return time.Duration(m.lead.Load()) }

// Interval returns the configured re-check interval.
func (m *Monitor) Interval() time.Duration { return time.Duration(m.interval.Load()) }

// IsExpiringSoon reports whether the cached descriptor for (kind, id) expires
// within lead. lead <= 0 uses the configured lead time. Unknown ids and
// descriptors without expiry are never expiring.
func (m *Monitor) IsExpiringSoon(kind resource.Kind, id string, lead time.Duration) bool {
	if lead <= 0 {
		lead = m.LeadTime()
	}
	e, ok := m.cache.Get(kind, id)
	if !ok || e.Descriptor == nil {
		return false
	}
	return e.Descriptor.ExpiresWithin(m.clock.Now(), lead)
}

// Refresh forces new signatures for (kind, id). Concurrent refreshes for the
// same resource share one provider call. On failure the entry keeps its
// last-known descriptor and moves to the error state.
func (m *Monitor) Refresh(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	return m.refresh(ctx, kind, id, TriggerManual)
}

func (m *Monitor) refresh(ctx context.Context, kind resource.Kind, id, trigger string) (*resource.Descriptor, error) {
	key := string(kind) + "/" + id
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return m.coord.Refresh(detached, kind, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		outcome := "success"
		if res.Err != nil {
			outcome = "failed"
		} else if res.Shared {
			outcome = "shared"
		}
		metrics.RecordRefresh(trigger, outcome)
		if res.Err != nil {
			return nil, res.Err
		}
		d, _ := res.Val.(*resource.Descriptor)
		if d == nil {
			return nil, errors.New("refresh returned no descriptor")
		}
		out := d.Clone()
		return &out, nil
	}
}

// refreshInBackground starts a refresh that outlives the caller. Failures are
// logged and counted only.
func (m *Monitor) refreshInBackground(ctx context.Context, kind resource.Kind, id, trigger string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.refresh(context.WithoutCancel(ctx), kind, id, trigger); err != nil {
			m.logger.Warn().Err(err).
				Str(log.FieldEvent, "refresh.failed").
				Str(log.FieldTrigger, trigger).
				Str(log.FieldKind, string(kind)).
				Str(log.FieldResourceID, id).
				Msg("background refresh failed, keeping last-known descriptor")
		}
	}()
}

// EnsureFresh is the render-time check. Missing or non-ready entries are
// fetched; an expired descriptor is treated as a miss and refreshed before
// returning; a descriptor inside the lead window is returned as is while a
// refresh runs in the background.
func (m *Monitor) EnsureFresh(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	e, ok := m.cache.Get(kind, id)
	if !ok || e.Descriptor == nil || e.Status != resource.StatusReady {
		return m.coord.Fetch(ctx, kind, id)
	}

	now := m.clock.Now()
	d := e.Descriptor
	switch {
	case !d.UsableAt(now):
		return m.refresh(ctx, kind, id, TriggerRender)
	case d.ExpiresWithin(now, m.LeadTime()):
		m.logger.Debug().
			Str(log.FieldEvent, "refresh.ahead").
			Str(log.FieldKind, string(kind)).
			Str(log.FieldResourceID, id).
			Time(log.FieldExpiresAt, d.ExpiresAt).
			Msg("descriptor inside lead window, refreshing in background")
		m.refreshInBackground(ctx, kind, id, TriggerRender)
		return d, nil
	default:
		return d, nil
	}
}

// Watch re-checks (kind, id) every interval until ctx ends and refreshes the
// descriptor once it enters the lead window. It is meant for the resource
// that is currently playing; refresh failures never stop the loop.
func (m *Monitor) Watch(ctx context.Context, kind resource.Kind, id string) {
	logger := m.logger.With().Str(log.FieldKind, string(kind)).Str(log.FieldResourceID, id).Logger()
	logger.Debug().Str(log.FieldEvent, "watch.started").Msg("watching descriptor expiry")
	defer logger.Debug().Str(log.FieldEvent, "watch.stopped").Msg("stopped watching descriptor expiry")

	for {
		m.checkActive(ctx, kind, id, logger)
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.Interval()):
		}
	}
}

func (m *Monitor) checkActive(ctx context.Context, kind resource.Kind, id string, logger zerolog.Logger) {
	e, ok := m.cache.Get(kind, id)
	if !ok || e.Descriptor == nil || e.Status == resource.StatusLoading {
		return
	}
	now := m.clock.Now()
	if !e.Descriptor.ExpiresWithin(now, m.LeadTime()) {
		return
	}
	logger.Info().
		Str(log.FieldEvent, "refresh.due").
		Dur(log.FieldExpiresIn, e.Descriptor.ExpiresAt.Sub(now)).
		Msg("active descriptor nearing expiry")
	if _, err := m.refresh(ctx, kind, id, TriggerWatch); err != nil && ctx.Err() == nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "refresh.failed").Str(log.FieldTrigger, TriggerWatch).Msg("refresh failed, playback continues on last-known descriptor")
	}
}

// Close waits for background refreshes.
func (m *Monitor) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
