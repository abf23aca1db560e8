// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/clock"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

// TieredOptions configures Tiered.
type TieredOptions struct {
	// Margin is subtracted from descriptor expiry for the store TTL and is the
	// minimum remaining validity for a stored descriptor to be served.
	Margin time.Duration
	// FallbackTTL applies to descriptors without expiry.
	FallbackTTL time.Duration
	Clock       clock.Clock
}

// Tiered consults a DescriptorStore before the origin and writes origin
// results back. Store errors degrade to origin calls and are only logged.
type Tiered struct {
	next   Resolver
	store  cache.DescriptorStore
	opts   TieredOptions
	logger zerolog.Logger
}

func NewTiered(next Resolver, store cache.DescriptorStore, opts TieredOptions) *Tiered {
	if next == nil || store == nil {
		panic("provider: NewTiered requires resolver and store")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.FallbackTTL <= 0 {
		opts.FallbackTTL = time.Hour
	}
	return &Tiered{next: next, store: store, opts: opts, logger: log.WithComponent("provider.tiered")}
}

func (t *Tiered) Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	now := t.opts.Clock.Now()
	if !StoreBypassed(ctx) {
		d, err := t.store.Load(ctx, kind, id)
		switch {
		case err == nil && d.UsableAt(now.Add(t.opts.Margin)):
			return d, nil
		case err != nil && !errors.Is(err, cache.ErrStoreMiss):
			t.logger.Warn().Err(err).Str(log.FieldKind, string(kind)).Str(log.FieldResourceID, id).Msg("descriptor store load failed")
		}
	}

	d, err := t.next.Resolve(ctx, kind, id)
	if err != nil || d == nil {
		return d, err
	}

	ttl := cache.TTLFor(*d, t.opts.Clock.Now(), t.opts.Margin, t.opts.FallbackTTL)
	if err := t.store.Save(ctx, *d, ttl); err != nil {
		t.logger.Warn().Err(err).Str(log.FieldKind, string(kind)).Str(log.FieldResourceID, id).Msg("descriptor store save failed")
	}
	return d, nil
}
