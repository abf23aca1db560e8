// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package progress

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/fetch"
	"github.com/ManuGH/lessonmedia/internal/provider"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingPrefetcher struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingPrefetcher) Prefetch(_ context.Context, _ resource.Kind, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return true
}

func (r *recordingPrefetcher) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func seed(c *cache.Cache, id, next string) {
	c.Put(resource.KindVideo, id, func(e *resource.Entry) {
		e.Status = resource.StatusReady
		e.Descriptor = &resource.Descriptor{ID: id, Kind: resource.KindVideo, PrimaryURL: "https://cdn.example.com/" + id, NextInSequenceID: next}
	})
}

func newTracker(t *testing.T) (*Tracker, *recordingPrefetcher, *cache.Cache) {
	t.Helper()
	c := cache.New(cache.Options{})
	p := &recordingPrefetcher{}
	return New(Options{Prefetcher: p, Cache: c, ThresholdPercent: 70}), p, c
}

func TestRecordProgress_FiresOnceWhileOscillating(t *testing.T) {
	tr, p, c := newTracker(t)
	seed(c, "video-101", "video-102")
	ctx := context.Background()

	samples := []float64{10, 69.9, 70.1, 69.5, 71, 69, 72, 100, 0, 75}
	var outcomes []Outcome
	for _, s := range samples {
		outcomes = append(outcomes, tr.RecordProgress(ctx, "", resource.KindVideo, "video-101", s, 100))
	}

	assert.Equal(t, []string{"video-102"}, p.calls())
	assert.Equal(t, OutcomeBelow, outcomes[1])
	assert.Equal(t, OutcomePrefetched, outcomes[2])
	for _, o := range outcomes[3:] {
		assert.Equal(t, OutcomeDone, o)
	}
}

func TestRecordProgress_IgnoresInvalidSamples(t *testing.T) {
	tr, p, c := newTracker(t)
	seed(c, "v1", "v2")
	ctx := context.Background()

	for _, s := range [][2]float64{{90, 0}, {90, -1}, {math.NaN(), 100}, {90, math.Inf(1)}, {-5, 100}} {
		assert.Equal(t, OutcomeIgnored, tr.RecordProgress(ctx, "", resource.KindVideo, "v1", s[0], s[1]))
	}
	assert.Empty(t, p.calls())
	assert.Zero(t, tr.Len(), "ignored samples do not open a session")
}

func TestRecordProgress_NewSessionRearms(t *testing.T) {
	tr, p, c := newTracker(t)
	seed(c, "v1", "v2")
	seed(c, "v2", "v3")
	ctx := context.Background()

	first := tr.Activate(resource.KindVideo, "v1")
	tr.RecordProgress(ctx, first, resource.KindVideo, "v1", 80, 100)
	tr.RecordProgress(ctx, first, resource.KindVideo, "v1", 90, 100)

	// Switching resources within a session starts over on the new one.
	tr.RecordProgress(ctx, first, resource.KindVideo, "v2", 80, 100)
	s, ok := tr.Session(first)
	require.True(t, ok)
	assert.Equal(t, "v2", s.ResourceID)
	assert.True(t, s.Fired)

	// Replaying v1 is a new session too.
	replay := tr.Activate(resource.KindVideo, "v1")
	assert.NotEqual(t, first, replay)
	tr.RecordProgress(ctx, replay, resource.KindVideo, "v1", 75, 100)

	assert.Equal(t, []string{"v2", "v3", "v2"}, p.calls())
}

func TestRecordProgress_ConcurrentViewersKeepTheirSessions(t *testing.T) {
	tr, p, c := newTracker(t)
	seed(c, "v1", "v1n")
	seed(c, "v2", "v2n")
	ctx := context.Background()

	a := tr.Activate(resource.KindVideo, "v1")
	b := tr.Activate(resource.KindVideo, "v2")
	for i := 0; i < 5; i++ {
		tr.RecordProgress(ctx, a, resource.KindVideo, "v1", 80, 100)
		tr.RecordProgress(ctx, b, resource.KindVideo, "v2", 80, 100)
	}
	assert.Equal(t, []string{"v1n", "v2n"}, p.calls())

	// Samples without a session share one session per resource.
	for i := 0; i < 5; i++ {
		tr.RecordProgress(ctx, "", resource.KindVideo, "v1", 80, 100)
		tr.RecordProgress(ctx, "unknown", resource.KindVideo, "v2", 80, 100)
	}
	assert.Equal(t, []string{"v1n", "v2n", "v1n", "v2n"}, p.calls())
	assert.Equal(t, 4, tr.Len())

	assert.True(t, tr.Deactivate(a))
	assert.False(t, tr.Deactivate(a))
	_, ok := tr.Session(a)
	assert.False(t, ok)
	_, ok = tr.Session(b)
	assert.True(t, ok, "ending one session leaves the other open")
}

func TestRecordProgress_PendingUntilDescriptorCached(t *testing.T) {
	tr, p, c := newTracker(t)
	ctx := context.Background()

	assert.Equal(t, OutcomePending, tr.RecordProgress(ctx, "", resource.KindVideo, "v1", 80, 100))
	seed(c, "v1", "v2")
	assert.Equal(t, OutcomePrefetched, tr.RecordProgress(ctx, "", resource.KindVideo, "v1", 81, 100))
	assert.Equal(t, []string{"v2"}, p.calls())
}

func TestRecordProgress_ChainEndAndBrokenChains(t *testing.T) {
	tr, p, c := newTracker(t)
	ctx := context.Background()

	seed(c, "last", "")
	assert.Equal(t, OutcomeChainEnd, tr.RecordProgress(ctx, "", resource.KindVideo, "last", 90, 100))

	seed(c, "self", "self")
	assert.Equal(t, OutcomeChainError, tr.RecordProgress(ctx, "", resource.KindVideo, "self", 90, 100))

	seed(c, "a", "b")
	seed(c, "b", "c")
	seed(c, "c", "a")
	assert.Equal(t, OutcomeChainError, tr.RecordProgress(ctx, "", resource.KindVideo, "a", 90, 100))

	assert.Empty(t, p.calls())
}

func TestSetThreshold(t *testing.T) {
	tr, _, _ := newTracker(t)
	assert.Equal(t, 70.0, tr.Threshold())
	tr.SetThreshold(150)
	assert.Equal(t, DefaultThresholdPercent, tr.Threshold())
	tr.SetThreshold(50)
	assert.Equal(t, 50.0, tr.Threshold())
}

func TestSequenceChaining_NextIsReadyBeforeRequest(t *testing.T) {
	origin := provider.NewMemory("https://cdn.example.com", time.Hour, nil)
	origin.Add(resource.Descriptor{ID: "video-101", Kind: resource.KindVideo, NextInSequenceID: "video-102"})
	origin.Add(resource.Descriptor{ID: "video-102", Kind: resource.KindVideo})

	c := cache.New(cache.Options{})
	coord := fetch.New(fetch.Options{Resolver: origin, Cache: c})
	defer coord.Close(context.Background())
	tr := New(Options{Prefetcher: coord, Cache: c, ThresholdPercent: 70})
	ctx := context.Background()

	_, err := coord.Fetch(ctx, resource.KindVideo, "video-101")
	require.NoError(t, err)

	for _, pos := range []float64{30, 60, 69, 70.5} {
		tr.RecordProgress(ctx, "", resource.KindVideo, "video-101", pos, 100)
	}

	require.Eventually(t, func() bool {
		e, ok := c.Get(resource.KindVideo, "video-102")
		return ok && e.Status == resource.StatusReady
	}, time.Second, 5*time.Millisecond)

	d, err := coord.Fetch(ctx, resource.KindVideo, "video-102")
	require.NoError(t, err)
	assert.Equal(t, "video-102", d.ID)
	assert.Equal(t, 1, origin.Calls(resource.KindVideo, "video-102"), "user request is served from the prefetched entry")
}
