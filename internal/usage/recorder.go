// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package usage ships fire-and-forget usage events (play, download, upload)
// to a sink without ever blocking the delivery path.
package usage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/metrics"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

// Event names.
const (
	EventPlay      = "play"
	EventStop      = "stop"
	EventDownload  = "download"
	EventUpload    = "upload"
	EventPrefetch  = "prefetch"
	EventRefreshed = "refreshed"
)

// Event is one usage record.
type Event struct {
	Name       string
	Kind       resource.Kind
	ResourceID string
	SessionID  string
	At         time.Time
}

// Sink persists batches of events.
type Sink interface {
	Write(ctx context.Context, events []Event) error
	Close() error
}

// Options configures a Recorder.
type Options struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

// Recorder queues events and writes them in batches from Run.
type Recorder struct {
	sink    Sink
	queue   chan Event
	batch   int
	flush   time.Duration
	dropped atomic.Int64
	logger  zerolog.Logger
}

// NewRecorder creates a recorder; nothing is written until Run starts.
func NewRecorder(sink Sink, opts Options) *Recorder {
	if sink == nil {
		sink = NopSink{}
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	return &Recorder{
		sink:   sink,
		queue:  make(chan Event, opts.Buffer),
		batch:  opts.BatchSize,
		flush:  opts.FlushInterval,
		logger: log.WithComponent("usage"),
	}
}

// Record enqueues an event. A full queue drops the event and counts it.
func (r *Recorder) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case r.queue <- e:
		metrics.RecordUsageEvent(e.Name, "queued")
	default:
		r.dropped.Add(1)
		metrics.RecordUsageEvent(e.Name, "dropped")
	}
}

// Dropped returns how many events were dropped on a full queue.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes batches until ctx ends, then drains the queue and closes the sink.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.flush)
	defer ticker.Stop()

	pending := make([]Event, 0, r.batch)
	write := func(wctx context.Context) {
		if len(pending) == 0 {
			return
		}
		outcome := "written"
		if err := r.sink.Write(wctx, pending); err != nil {
			outcome = "failed"
			r.logger.Warn().Err(err).Str(log.FieldEvent, "usage.write_failed").Int("count", len(pending)).Msg("usage sink write failed")
		}
		for _, e := range pending {
			metrics.RecordUsageEvent(e.Name, outcome)
		}
		pending = pending[:0]
	}

	for {
		select {
		case e := <-r.queue:
			pending = append(pending, e)
			if len(pending) >= r.batch {
				write(ctx)
			}
		case <-ticker.C:
			write(ctx)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			for drained := false; !drained; {
				select {
				case e := <-r.queue:
					pending = append(pending, e)
					if len(pending) >= r.batch {
						write(drainCtx)
					}
				default:
					drained = true
				}
			}
			write(drainCtx)
			return r.sink.Close()
		}
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Write(context.Context, []Event) error { return nil }
func (NopSink) Close() error                         { return nil }

// LogSink writes events as structured log lines.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Write(_ context.Context, events []Event) error {
	for _, e := range events {
		s.Logger.Info().
			Str(log.FieldEvent, "usage."+e.Name).
			Str(log.FieldKind, string(e.Kind)).
			Str(log.FieldResourceID, e.ResourceID).
			Str(log.FieldSessionID, e.SessionID).
			Time("at", e.At).
			Msg("usage event")
	}
	return nil
}

func (LogSink) Close() error { return nil }
