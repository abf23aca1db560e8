// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/clock"
	"github.com/ManuGH/lessonmedia/internal/resilience"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	args := m.Called(kind, id)
	d, _ := args.Get(0).(*resource.Descriptor)
	return d, args.Error(1)
}

func newRedisStore(t *testing.T) cache.DescriptorStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(context.Background(), cache.RedisConfig{Addr: mr.Addr(), KeyPrefix: "t"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTiered_ServesStoreHitsAndWritesBack(t *testing.T) {
	clk := clock.NewMock(time.Now().UTC())
	origin := NewMemory("https://cdn.test", time.Hour, clk)
	origin.Add(resource.Descriptor{ID: "v1", Kind: resource.KindVideo})

	tiered := NewTiered(origin, newRedisStore(t), TieredOptions{Margin: 5 * time.Minute, Clock: clk})

	first, err := tiered.Resolve(context.Background(), resource.KindVideo, "v1")
	require.NoError(t, err)
	second, err := tiered.Resolve(context.Background(), resource.KindVideo, "v1")
	require.NoError(t, err)

	assert.Equal(t, first.PrimaryURL, second.PrimaryURL)
	assert.Equal(t, 1, origin.Calls(resource.KindVideo, "v1"), "second resolve is a store hit")

	bypassed, err := tiered.Resolve(WithStoreBypass(context.Background()), resource.KindVideo, "v1")
	require.NoError(t, err)
	assert.NotEqual(t, first.PrimaryURL, bypassed.PrimaryURL)
	assert.Equal(t, 2, origin.Calls(resource.KindVideo, "v1"))
}

func TestTiered_SkipsStoredDescriptorInsideMargin(t *testing.T) {
	clk := clock.NewMock(time.Now().UTC())
	origin := NewMemory("https://cdn.test", time.Hour, clk)
	origin.Add(resource.Descriptor{ID: "v1", Kind: resource.KindVideo})

	store, err := cache.OpenBadgerStore("")
	require.NoError(t, err)
	defer store.Close()

	tiered := NewTiered(origin, store, TieredOptions{Margin: 10 * time.Minute, Clock: clk})
	_, err = tiered.Resolve(context.Background(), resource.KindVideo, "v1")
	require.NoError(t, err)

	clk.Advance(55 * time.Minute)
	_, err = tiered.Resolve(context.Background(), resource.KindVideo, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, origin.Calls(resource.KindVideo, "v1"))
}

func TestTiered_NotFoundIsNotStored(t *testing.T) {
	m := &mockResolver{}
	m.On("Resolve", resource.KindVideo, "gone").Return(nil, nil).Twice()

	tiered := NewTiered(m, newRedisStore(t), TieredOptions{})
	for i := 0; i < 2; i++ {
		d, err := tiered.Resolve(context.Background(), resource.KindVideo, "gone")
		assert.NoError(t, err)
		assert.Nil(t, d)
	}
	m.AssertExpectations(t)
}

func TestRateLimited_WaitHonoursContext(t *testing.T) {
	m := &mockResolver{}
	m.On("Resolve", resource.KindVideo, "v1").Return(&resource.Descriptor{ID: "v1"}, nil).Once()

	rl := NewRateLimited(m, 0.001, 1)
	_, err := rl.Resolve(context.Background(), resource.KindVideo, "v1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rl.Resolve(ctx, resource.KindVideo, "v1")
	assert.ErrorIs(t, err, ErrRateLimited)
	m.AssertExpectations(t)

	rl.SetLimit(0, 1)
	m.On("Resolve", resource.KindVideo, "v1").Return(&resource.Descriptor{ID: "v1"}, nil).Once()
	_, err = rl.Resolve(context.Background(), resource.KindVideo, "v1")
	assert.NoError(t, err, "rps 0 disables limiting")
}

func TestGuarded_NotFoundNeverTrips(t *testing.T) {
	m := &mockResolver{}
	m.On("Resolve", resource.KindVideo, "missing").Return(nil, &Error{Sentinel: ErrNotFound})
	m.On("Resolve", resource.KindVideo, "flaky").Return(nil, &Error{Sentinel: ErrUnavailable})

	g := NewGuarded(m, NewBreaker("test_provider", 2, time.Minute))
	for i := 0; i < 5; i++ {
		_, err := g.Resolve(context.Background(), resource.KindVideo, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, g.Breaker().State())

	for i := 0; i < 2; i++ {
		_, _ = g.Resolve(context.Background(), resource.KindVideo, "flaky")
	}
	assert.Equal(t, resilience.StateOpen, g.Breaker().State())

	_, err := g.Resolve(context.Background(), resource.KindVideo, "missing")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestStack_InstrumentsOriginCallsOnly(t *testing.T) {
	origin := NewMemory("https://cdn.test", time.Hour, nil)
	origin.Add(resource.Descriptor{ID: "stack-v1", Kind: resource.KindVideo})

	r, limited := Stack(origin, StackOptions{Store: newRedisStore(t), RPS: 100, Burst: 10})
	require.NotNil(t, limited)

	for i := 0; i < 3; i++ {
		d, err := r.Resolve(context.Background(), resource.KindVideo, "stack-v1")
		require.NoError(t, err)
		require.NotNil(t, d)
	}
	assert.Equal(t, 1, origin.Calls(resource.KindVideo, "stack-v1"))
}

func TestInstrumented_RecordsOutcomes(t *testing.T) {
	m := &mockResolver{}
	m.On("Resolve", resource.KindDocument, "absent").Return(nil, nil)
	m.On("Resolve", resource.KindDocument, "bad").Return(nil, errors.New("boom"))

	in := NewInstrumented(m)
	_, _ = in.Resolve(context.Background(), resource.KindDocument, "absent")
	_, err := in.Resolve(context.Background(), resource.KindDocument, "bad")
	assert.EqualError(t, err, "boom")
	m.AssertExpectations(t)
}
