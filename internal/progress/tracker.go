// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package progress watches playback position and prefetches the next
// resource in a sequence once the viewer is far enough into the current one.
package progress

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/metrics"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

// DefaultThresholdPercent is the completion share that triggers a prefetch.
const DefaultThresholdPercent = 70.0

// Prefetcher starts a background fetch; see fetch.Coordinator.Prefetch.
type Prefetcher interface {
	Prefetch(ctx context.Context, kind resource.Kind, id string) bool
}

// Outcome describes what a progress sample did.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"     // invalid sample
	OutcomeBelow      Outcome = "below"       // threshold not reached
	OutcomeDone       Outcome = "done"        // already handled this session
	OutcomePending    Outcome = "pending"     // threshold reached, descriptor not cached yet
	OutcomeChainEnd   Outcome = "chain_end"   // no successor
	OutcomeChainError Outcome = "chain_error" // self-referencing or circular sequence
	OutcomePrefetched Outcome = "prefetched"
)

// Session is a snapshot of one playback session.
type Session struct {
	ID         string
	Kind       resource.Kind
	ResourceID string
	Ratio      float64
	Fired      bool
}

// Options configures a Tracker.
type Options struct {
	Prefetcher       Prefetcher
	Cache            *cache.Cache
	ThresholdPercent float64
}

// maxAnonymous bounds sessions opened by samples without a known session id.
const maxAnonymous = 4096

// Tracker holds playback sessions. Sessions opened with Activate are keyed by
// their id; samples without a known session id share one session per
// resource.
type Tracker struct {
	prefetcher Prefetcher
	cache      *cache.Cache
	threshold  atomic.Uint64 // math.Float64bits of the percent
	logger     zerolog.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	anonymous map[cache.Key]*Session
}

// New creates a tracker.
func New(opts Options) *Tracker {
	if opts.Prefetcher == nil || opts.Cache == nil {
		panic("progress: New requires Prefetcher and Cache")
	}
	t := &Tracker{
		prefetcher: opts.Prefetcher,
		cache:      opts.Cache,
		logger:     log.WithComponent("progress"),
		sessions:   make(map[string]*Session),
		anonymous:  make(map[cache.Key]*Session),
	}
	t.SetThreshold(opts.ThresholdPercent)
	return t
}

// SetThreshold updates the prefetch threshold. Values outside (0, 100] use
// the default.
func (t *Tracker) SetThreshold(percent float64) {
	if math.IsNaN(percent) || percent <= 0 || percent > 100 {
		percent = DefaultThresholdPercent
	}
	t.threshold.Store(math.Float64bits(percent))
}

// Threshold returns the prefetch threshold in percent.
func (t *Tracker) Threshold() float64 {
	return math.Float64frombits(t.threshold.Load())
}

// Activate starts a new playback session for (kind, id), even when id is
// already being played (replay). It returns the session id.
func (t *Tracker) Activate(kind resource.Kind, id string) string {
	s := t.newSession(uuid.NewString(), kind, id)
	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()
	return s.ID
}

// Deactivate ends the session with the given id. It reports whether the
// session existed.
func (t *Tracker) Deactivate(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[sessionID]; !ok {
		return false
	}
	delete(t.sessions, sessionID)
	return true
}

// Session returns a snapshot of an activated session.
func (t *Tracker) Session(sessionID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len returns the number of open sessions, anonymous ones included.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions) + len(t.anonymous)
}

func (t *Tracker) newSession(sessionID string, kind resource.Kind, id string) *Session {
	s := &Session{ID: sessionID, Kind: kind, ResourceID: id}
	t.logger.Debug().
		Str(log.FieldEvent, "progress.session_started").
		Str(log.FieldSessionID, s.ID).
		Str(log.FieldKind, string(kind)).
		Str(log.FieldResourceID, id).
		Msg("playback session started")
	return s
}

// sessionLocked returns the session a sample belongs to. A known session
// that receives a sample for a different resource starts over on it.
func (t *Tracker) sessionLocked(sessionID string, kind resource.Kind, id string) *Session {
	if s, ok := t.sessions[sessionID]; ok {
		if s.ResourceID != id || s.Kind != kind {
			fresh := t.newSession(s.ID, kind, id)
			t.sessions[s.ID] = fresh
			return fresh
		}
		return s
	}

	key := cache.Key{Kind: kind, ID: id}
	if s, ok := t.anonymous[key]; ok {
		return s
	}
	if len(t.anonymous) >= maxAnonymous {
		for k := range t.anonymous {
			delete(t.anonymous, k)
			break
		}
	}
	s := t.newSession(uuid.NewString(), kind, id)
	t.anonymous[key] = s
	return s
}

// RecordProgress feeds one playback sample for sessionID. The first sample of
// a session at or past the threshold prefetches the successor; every later
// sample in the same session is a no-op, however the position moves. An
// empty or unknown sessionID uses the resource's anonymous session.
func (t *Tracker) RecordProgress(ctx context.Context, sessionID string, kind resource.Kind, id string, currentTime, duration float64) Outcome {
	if !finite(currentTime) || !finite(duration) || duration <= 0 || currentTime < 0 {
		return OutcomeIgnored
	}
	ratio := math.Min(currentTime/duration, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sessionLocked(sessionID, kind, id)
	s.Ratio = ratio
	if s.Fired {
		return OutcomeDone
	}
	if ratio*100 < t.Threshold() {
		return OutcomeBelow
	}

	logger := t.logger.With().
		Str(log.FieldSessionID, s.ID).
		Str(log.FieldKind, string(kind)).
		Str(log.FieldResourceID, id).
		Logger()

	e, ok := t.cache.Get(kind, id)
	if !ok || e.Descriptor == nil {
		// Retried on the next sample once the descriptor has landed.
		return OutcomePending
	}
	s.Fired = true

	next := e.Descriptor.NextInSequenceID
	if next == "" {
		return OutcomeChainEnd
	}

	if err := resource.CheckChain(id, t.lookupNext(kind)); err != nil {
		metrics.RecordPrefetch(string(kind), "skipped_chain")
		ev := logger.Error()
		if errors.Is(err, resource.ErrSelfReference) {
			ev = ev.Str("chain", "self")
		}
		ev.Err(err).Str(log.FieldEvent, "progress.chain_invalid").Str(log.FieldNextID, next).Msg("invalid resource sequence, not prefetching")
		return OutcomeChainError
	}

	started := t.prefetcher.Prefetch(context.WithoutCancel(ctx), kind, next)
	logger.Info().
		Str(log.FieldEvent, "progress.threshold_crossed").
		Str(log.FieldNextID, next).
		Float64("ratio", ratio).
		Bool("started", started).
		Msg("prefetching next resource")
	return OutcomePrefetched
}

func (t *Tracker) lookupNext(kind resource.Kind) resource.NextLookup {
	return func(id string) (string, bool) {
		e, ok := t.cache.Get(kind, id)
		if !ok || e.Descriptor == nil {
			return "", false
		}
		return e.Descriptor.NextInSequenceID, true
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
