// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package usage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/lessonmedia/internal/resource"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	closed  bool
}

func (s *memorySink) Write(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), events...))
	return s.err
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestRecorder_BatchesAndDrainsOnShutdown(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, Options{Buffer: 16, BatchSize: 4, FlushInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for i := 0; i < 6; i++ {
		r.Record(Event{Name: EventPlay, Kind: resource.KindVideo, ResourceID: "v1"})
	}
	require.Eventually(t, func() bool { return sink.total() == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 6, sink.total(), "remaining events are flushed on shutdown")
	assert.True(t, sink.closed)
}

func TestRecorder_FlushInterval(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, Options{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Record(Event{Name: EventDownload, Kind: resource.KindDocument, ResourceID: "d1"})
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRecorder_NeverBlocksWhenFull(t *testing.T) {
	r := NewRecorder(&memorySink{}, Options{Buffer: 2})

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Record(Event{Name: EventPlay})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Record blocked")
	}
	assert.Equal(t, int64(8), r.Dropped())
}

func TestRecorder_SinkErrorsAreSwallowed(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	r := NewRecorder(sink, Options{BatchSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Record(Event{Name: EventPlay})
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: zerolog.New(&buf)}
	require.NoError(t, s.Write(context.Background(), []Event{{Name: EventUpload, Kind: resource.KindVideo, ResourceID: "v9"}}))
	assert.Contains(t, buf.String(), `"event":"usage.upload"`)
	assert.Contains(t, buf.String(), `"resource_id":"v9"`)
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLiteSink(ctx, filepath.Join(t.TempDir(), "usage.sqlite"))
	require.NoError(t, err)
	defer sink.Close()

	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, sink.Write(ctx, []Event{
		{Name: EventPlay, Kind: resource.KindVideo, ResourceID: "v1", SessionID: "s1", At: at},
		{Name: EventStop, Kind: resource.KindVideo, ResourceID: "v1", SessionID: "s1", At: at.Add(time.Minute)},
		{Name: EventDownload, Kind: resource.KindDocument, ResourceID: "d1", At: at},
	}))

	n, err := sink.Count(ctx, resource.KindVideo, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = sink.Count(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recent, err := sink.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, EventDownload, recent[0].Name)
	assert.Equal(t, at.Add(time.Minute), recent[1].At)

	assert.NoError(t, sink.Check(ctx))
}
