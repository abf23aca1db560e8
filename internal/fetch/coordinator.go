// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fetch coordinates provider calls for resource descriptors.
//
// Every call claims its slot before it starts: the entry moves to loading,
// receives a new token and the call is registered as in flight, all under one
// lock. Results are applied only if their token is still the entry's token.
// Callers that give up detach; the provider call itself keeps running until
// it completes or hits the provider timeout.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/clock"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/metrics"
	"github.com/ManuGH/lessonmedia/internal/provider"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 15 * time.Second

// ErrClosed is returned once the coordinator is shut down.
var ErrClosed = errors.New("fetch coordinator closed")

// Options configures a Coordinator.
type Options struct {
	Resolver provider.Resolver
	Cache    *cache.Cache
	Clock    clock.Clock
	Timeout  time.Duration
}

// call is one provider invocation. Fields other than the channels are
// guarded by Coordinator.mu until done is closed.
type call struct {
	key        cache.Key
	token      uint64
	force      bool
	background bool // started by Prefetch
	joined     bool // a foreground caller attached to a background call
	prior      resource.Entry

	done chan struct{}
	desc *resource.Descriptor
	err  error

	// moved is closed when a newer call for the same key supersedes this one.
	moved     chan struct{}
	successor *call
}

// Coordinator deduplicates and orders provider calls per resource.
type Coordinator struct {
	resolver provider.Resolver
	cache    *cache.Cache
	clock    clock.Clock
	timeout  atomic.Int64
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[cache.Key]*call
	seq      uint64
	closed   bool
	wg       sync.WaitGroup
}

// New creates a coordinator. Resolver and Cache are required.
func New(opts Options) *Coordinator {
	if opts.Resolver == nil || opts.Cache == nil {
		panic("fetch: New requires Resolver and Cache")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	c := &Coordinator{
		resolver: opts.Resolver,
		cache:    opts.Cache,
		clock:    clk,
		logger:   log.WithComponent("fetch"),
		inflight: make(map[cache.Key]*call),
	}
	c.SetTimeout(opts.Timeout)
	return c
}

// SetTimeout changes the provider timeout for calls started afterwards.
func (c *Coordinator) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	c.timeout.Store(int64(d))
}

// Cache returns the cache the coordinator writes to.
func (c *Coordinator) Cache() *cache.Cache {
	return c.cache
}

// Fetch returns a usable descriptor for (kind, id): from the cache when it is
// ready and unexpired, by joining the call in flight, or by starting one.
func (c *Coordinator) Fetch(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	if err := validate(kind, id); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	key := cache.Key{Kind: kind, ID: id}
	if e, ok := c.cache.Get(kind, id); ok && e.Status == resource.StatusReady && e.Descriptor != nil && e.Descriptor.UsableAt(c.clock.Now()) {
		c.mu.Unlock()
		metrics.RecordFetch(string(kind), "hit")
		return e.Descriptor, nil
	}
	cl, ok := c.inflight[key]
	if ok {
		cl.joined = true
		c.mu.Unlock()
		metrics.RecordFetch(string(kind), "joined")
		return c.await(ctx, cl)
	}
	cl = c.startLocked(ctx, key, false, false)
	c.mu.Unlock()

	metrics.RecordFetch(string(kind), "started")
	return c.await(ctx, cl)
}

// Refresh forces a new provider call even when the entry is ready or a call
// is already in flight. Waiters of the older call move to this one.
func (c *Coordinator) Refresh(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	if err := validate(kind, id); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	key := cache.Key{Kind: kind, ID: id}
	older := c.inflight[key]
	cl := c.startLocked(ctx, key, true, false)
	if older != nil {
		older.successor = cl
		close(older.moved)
	}
	c.mu.Unlock()

	metrics.RecordFetch(string(kind), "forced")
	return c.await(ctx, cl)
}

// Prefetch starts a background call unless the entry is already usable or
// loading. It never blocks and never reports failures; it returns whether a
// call was started. ctx only contributes values (request id, trace).
func (c *Coordinator) Prefetch(ctx context.Context, kind resource.Kind, id string) bool {
	if err := validate(kind, id); err != nil {
		c.logger.Debug().Err(err).Str(log.FieldEvent, "prefetch.rejected").Msg("prefetch rejected")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	key := cache.Key{Kind: kind, ID: id}
	if e, ok := c.cache.Get(kind, id); ok && e.Status == resource.StatusReady && e.Descriptor != nil && e.Descriptor.UsableAt(c.clock.Now()) {
		metrics.RecordPrefetch(string(kind), "hit")
		return false
	}
	if _, ok := c.inflight[key]; ok {
		metrics.RecordPrefetch(string(kind), "joined")
		return false
	}
	c.startLocked(ctx, key, false, true)
	metrics.RecordPrefetch(string(kind), "started")
	return true
}

// InFlight reports whether a provider call for (kind, id) is outstanding.
func (c *Coordinator) InFlight(kind resource.Kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[cache.Key{Kind: kind, ID: id}]
	return ok
}

// Close rejects new work and waits for outstanding provider calls.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startLocked claims the slot for key and launches the provider call.
// Caller must hold c.mu.
func (c *Coordinator) startLocked(ctx context.Context, key cache.Key, force, background bool) *call {
	c.seq++
	token := c.seq

	prior, _ := c.cache.Get(key.Kind, key.ID)
	c.cache.Put(key.Kind, key.ID, func(e *resource.Entry) {
		e.Status = resource.StatusLoading
		e.Token = token
	})

	cl := &call{
		key:        key,
		token:      token,
		force:      force,
		background: background,
		prior:      prior,
		done:       make(chan struct{}),
		moved:      make(chan struct{}),
	}
	c.inflight[key] = cl

	c.logger.Debug().
		Str(log.FieldEvent, "fetch.started").
		Str(log.FieldKind, string(key.Kind)).
		Str(log.FieldResourceID, key.ID).
		Uint64(log.FieldToken, token).
		Bool("forced", force).
		Bool("background", background).
		Msg("provider call started")

	callCtx := context.WithoutCancel(ctx)
	if force {
		callCtx = provider.WithStoreBypass(callCtx)
	}
	timeout := time.Duration(c.timeout.Load())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		runCtx, cancel := context.WithTimeout(callCtx, timeout)
		defer cancel()
		d, err := c.resolve(runCtx, key)
		c.complete(cl, d, err)
	}()
	return cl
}

// resolve calls the provider and validates its answer.
func (c *Coordinator) resolve(ctx context.Context, key cache.Key) (*resource.Descriptor, error) {
	d, err := c.resolver.Resolve(ctx, key.Kind, key.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, provider.ErrTimeout) {
			err = &provider.Error{Sentinel: provider.ErrTimeout, Operation: "resolve", Err: err}
		}
		return nil, fmt.Errorf("resolve %s %q: %w", key.Kind, key.ID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("resolve %s %q: %w", key.Kind, key.ID, provider.ErrNotFound)
	}
	norm, err := resource.Normalize(*d, key.ID, key.Kind, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("resolve %s %q: %w: %w", key.Kind, key.ID, provider.ErrInvalidResponse, err)
	}
	return &norm, nil
}

// complete applies a call result under the token guard and releases waiters.
func (c *Coordinator) complete(cl *call, d *resource.Descriptor, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind, id := cl.key.Kind, cl.key.ID
	logger := c.logger.With().
		Str(log.FieldKind, string(kind)).
		Str(log.FieldResourceID, id).
		Uint64(log.FieldToken, cl.token).
		Logger()

	revert := err != nil && cl.background && !cl.joined
	_, applied := c.cache.Update(kind, id, func(e *resource.Entry) bool {
		if e.Token != cl.token {
			return false
		}
		switch {
		case err == nil:
			e.Status = resource.StatusReady
			e.Descriptor = d
		case revert:
			e.Status = cl.prior.Status
			if e.Status == "" || e.Status == resource.StatusLoading {
				e.Status = resource.StatusIdle
			}
			e.LastError = cl.prior.LastError
		default:
			e.Status = resource.StatusError
			e.LastError = err
		}
		return true
	})

	if c.inflight[cl.key] == cl {
		delete(c.inflight, cl.key)
	}

	switch {
	case !applied:
		metrics.RecordStaleDiscard(string(kind))
		logger.Debug().Str(log.FieldEvent, "fetch.stale_discarded").Msg("discarding superseded result")
	case err == nil:
		logger.Debug().Str(log.FieldEvent, "fetch.completed").Msg("descriptor ready")
	case revert:
		logger.Warn().Err(err).Str(log.FieldEvent, "prefetch.failed").Msg("prefetch failed, entry reverted")
	default:
		logger.Warn().Err(err).Str(log.FieldEvent, "fetch.failed").Msg("provider call failed")
	}

	if cl.background {
		outcome := "success"
		if err != nil {
			outcome = "failed"
		}
		metrics.RecordPrefetch(string(kind), outcome)
	}

	cl.desc, cl.err = d, err
	if !applied && cl.successor == nil {
		// Superseded without a registered successor: point waiters at the cache.
		cl.err = errSuperseded
	}
	close(cl.done)
}

var errSuperseded = errors.New("superseded")

// await blocks until cl or one of its successors settles, or ctx ends.
func (c *Coordinator) await(ctx context.Context, cl *call) (*resource.Descriptor, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-cl.moved:
			c.mu.Lock()
			next := cl.successor
			c.mu.Unlock()
			cl = next
			continue
		case <-cl.done:
		}

		// successor is final once done is closed.
		if cl.successor != nil {
			cl = cl.successor
			continue
		}
		if errors.Is(cl.err, errSuperseded) {
			return c.fromCache(cl.key)
		}
		if cl.err != nil {
			return nil, cl.err
		}
		d := cl.desc.Clone()
		return &d, nil
	}
}

func (c *Coordinator) fromCache(key cache.Key) (*resource.Descriptor, error) {
	e, ok := c.cache.Get(key.Kind, key.ID)
	switch {
	case !ok:
		return nil, fmt.Errorf("resolve %s %q: %w", key.Kind, key.ID, provider.ErrNotFound)
	case e.Status == resource.StatusReady && e.Descriptor != nil:
		return e.Descriptor, nil
	case e.Status == resource.StatusError && e.LastError != nil:
		return nil, e.LastError
	default:
		return nil, fmt.Errorf("resolve %s %q: %w", key.Kind, key.ID, provider.ErrUnavailable)
	}
}

func validate(kind resource.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", resource.ErrUnknownKind, kind)
	}
	return resource.ValidateID(id)
}
