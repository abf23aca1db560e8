// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package delivery is the surface lesson pages talk to. It wires the cache,
// fetch coordinator, expiry monitor, visibility gates and progress tracker
// around one injected provider.
package delivery

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/lessonmedia/internal/cache"
	"github.com/ManuGH/lessonmedia/internal/clock"
	"github.com/ManuGH/lessonmedia/internal/expiry"
	"github.com/ManuGH/lessonmedia/internal/fetch"
	"github.com/ManuGH/lessonmedia/internal/log"
	"github.com/ManuGH/lessonmedia/internal/progress"
	"github.com/ManuGH/lessonmedia/internal/provider"
	"github.com/ManuGH/lessonmedia/internal/resource"
	"github.com/ManuGH/lessonmedia/internal/usage"
	"github.com/ManuGH/lessonmedia/internal/visibility"
)

// ErrUploadsDisabled is returned when no uploader is configured.
var ErrUploadsDisabled = errors.New("uploads are not configured")

// Options configures a Service.
type Options struct {
	Resolver provider.Resolver
	Uploader provider.Uploader
	Usage    *usage.Recorder
	Clock    clock.Clock
	Settings Settings
}

// Service is the delivery facade.
type Service struct {
	cache    *cache.Cache
	coord    *fetch.Coordinator
	monitor  *expiry.Monitor
	tracker  *progress.Tracker
	uploader provider.Uploader
	usage    *usage.Recorder
	logger   zerolog.Logger

	mu       sync.Mutex
	settings Settings
	playing  map[string]*playback
	playSeq  uint64
	closed   bool
	wg       sync.WaitGroup
}

// maxPlaybacks bounds concurrent playback sessions; the oldest is stopped
// when a new one would exceed it.
const maxPlaybacks = 1024

type playback struct {
	key       cache.Key
	sessionID string
	seq       uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

// Playback identifies one active playback session.
type Playback struct {
	ResourceID string `json:"id"`
	SessionID  string `json:"sessionId"`
}

// New builds a service. The zero Settings value means DefaultSettings.
func New(opts Options) (*Service, error) {
	if opts.Resolver == nil {
		panic("delivery: New requires Resolver")
	}
	settings := opts.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	c := cache.New(cache.Options{MaxEntries: settings.MaxEntries, Clock: opts.Clock})
	coord := fetch.New(fetch.Options{
		Resolver: opts.Resolver,
		Cache:    c,
		Clock:    opts.Clock,
		Timeout:  settings.ProviderTimeout,
	})
	s := &Service{
		cache: c,
		coord: coord,
		monitor: expiry.New(expiry.Options{
			Coordinator: coord,
			Clock:       opts.Clock,
			LeadTime:    settings.ExpiryLeadTime,
			Interval:    settings.RefreshInterval,
		}),
		tracker: progress.New(progress.Options{
			Prefetcher:       coord,
			Cache:            c,
			ThresholdPercent: settings.PrefetchThresholdPercent,
		}),
		uploader: opts.Uploader,
		usage:    opts.Usage,
		logger:   log.WithComponent("delivery"),
		settings: settings,
		playing:  make(map[string]*playback),
	}
	return s, nil
}

// FetchVideo returns a usable descriptor for a video.
func (s *Service) FetchVideo(ctx context.Context, id string) (*resource.Descriptor, error) {
	return s.monitor.EnsureFresh(ctx, resource.KindVideo, id)
}

// FetchDocument returns a usable descriptor for a document.
func (s *Service) FetchDocument(ctx context.Context, id string) (*resource.Descriptor, error) {
	return s.monitor.EnsureFresh(ctx, resource.KindDocument, id)
}

// Fetch is FetchVideo or FetchDocument by kind.
func (s *Service) Fetch(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	return s.monitor.EnsureFresh(ctx, kind, id)
}

// VideoResources returns a read-only snapshot of video entries keyed by id.
func (s *Service) VideoResources() map[string]resource.Entry {
	return s.cache.Snapshot(resource.KindVideo)
}

// DocumentResources returns a read-only snapshot of document entries keyed by id.
func (s *Service) DocumentResources() map[string]resource.Entry {
	return s.cache.Snapshot(resource.KindDocument)
}

// Entry returns the entry for (kind, id).
func (s *Service) Entry(kind resource.Kind, id string) (resource.Entry, bool) {
	return s.cache.Get(kind, id)
}

// Loading returns the ids of kind whose status is loading.
func (s *Service) Loading(kind resource.Kind) map[string]bool {
	out := make(map[string]bool)
	for id, e := range s.cache.Snapshot(kind) {
		if e.Status == resource.StatusLoading {
			out[id] = true
		}
	}
	return out
}

// Errors returns the last error message per id of kind in the error state.
func (s *Service) Errors(kind resource.Kind) map[string]string {
	out := make(map[string]string)
	for id, e := range s.cache.Snapshot(kind) {
		if msg := e.ErrorMessage(); msg != "" {
			out[id] = msg
		}
	}
	return out
}

// IsResourceExpiring reports whether the cached descriptor expires within the
// configured lead time.
func (s *Service) IsResourceExpiring(kind resource.Kind, id string) bool {
	return s.monitor.IsExpiringSoon(kind, id, 0)
}

// RefreshResourceURL forces new signatures for (kind, id).
func (s *Service) RefreshResourceURL(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	d, err := s.monitor.Refresh(ctx, kind, id)
	if err == nil {
		s.record(usage.EventRefreshed, kind, id, "")
	}
	return d, err
}

// TrackVideoProgress feeds a playback sample for sessionID, as returned by
// Play, to the progress tracker. An empty sessionID uses the video's shared
// anonymous session.
func (s *Service) TrackVideoProgress(ctx context.Context, sessionID, id string, currentTime, duration float64) progress.Outcome {
	outcome := s.tracker.RecordProgress(ctx, sessionID, resource.KindVideo, id, currentTime, duration)
	if outcome == progress.OutcomePrefetched {
		s.record(usage.EventPrefetch, resource.KindVideo, id, sessionID)
	}
	return outcome
}

// Placeholder returns a visibility gate for (kind, id). When the gate fires
// the resource is fetched in the background; failures land in the entry.
func (s *Service) Placeholder(kind resource.Kind, id string) *visibility.Gate {
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()

	return visibility.NewGate(visibility.Options{
		Threshold:  settings.VisibilityThreshold,
		RootMargin: settings.VisibilityRootMargin,
		Kind:       string(kind),
		OnVisible: func() {
			s.goBackground(func(ctx context.Context) {
				if _, err := s.monitor.EnsureFresh(ctx, kind, id); err != nil {
					s.logger.Debug().Err(err).
						Str(log.FieldEvent, "placeholder.fetch_failed").
						Str(log.FieldKind, string(kind)).
						Str(log.FieldResourceID, id).
						Msg("placeholder fetch failed")
				}
			})
		},
	})
}

// Play starts a playback session for a video: it returns a usable
// descriptor and the session id, and watches the descriptor for expiry until
// StopPlayback ends the session. Sessions of other viewers are unaffected.
func (s *Service) Play(ctx context.Context, id string) (*resource.Descriptor, string, error) {
	d, err := s.monitor.EnsureFresh(ctx, resource.KindVideo, id)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, "", fetch.ErrClosed
	}
	var evicted *playback
	if len(s.playing) >= maxPlaybacks {
		evicted = s.oldestLocked()
		delete(s.playing, evicted.sessionID)
	}
	sessionID := s.tracker.Activate(resource.KindVideo, id)
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.playSeq++
	pb := &playback{
		key:       cache.Key{Kind: resource.KindVideo, ID: id},
		sessionID: sessionID,
		seq:       s.playSeq,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.playing[sessionID] = pb
	s.wg.Add(1)
	s.mu.Unlock()

	if evicted != nil {
		s.logger.Warn().
			Str(log.FieldEvent, "playback.evicted").
			Str(log.FieldSessionID, evicted.sessionID).
			Str(log.FieldResourceID, evicted.key.ID).
			Msg("too many playback sessions, stopping the oldest")
		s.endPlayback(evicted)
	}

	go func() {
		defer s.wg.Done()
		defer close(pb.done)
		s.monitor.Watch(watchCtx, resource.KindVideo, id)
	}()

	s.record(usage.EventPlay, resource.KindVideo, id, sessionID)
	return d, sessionID, nil
}

func (s *Service) oldestLocked() *playback {
	var oldest *playback
	for _, pb := range s.playing {
		if oldest == nil || pb.seq < oldest.seq {
			oldest = pb
		}
	}
	return oldest
}

// StopPlayback ends the playback session sessionID. Stopping an unknown
// session is a no-op and returns false.
func (s *Service) StopPlayback(sessionID string) bool {
	s.mu.Lock()
	pb, ok := s.playing[sessionID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.playing, sessionID)
	s.mu.Unlock()

	s.endPlayback(pb)
	<-pb.done
	return true
}

// endPlayback cancels the watch of a playback already removed from the
// table and closes its progress session.
func (s *Service) endPlayback(pb *playback) {
	pb.cancel()
	s.tracker.Deactivate(pb.sessionID)
	s.record(usage.EventStop, pb.key.Kind, pb.key.ID, pb.sessionID)
}

// Playback returns the resource id of an active session.
func (s *Service) Playback(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pb, ok := s.playing[sessionID]
	if !ok {
		return "", false
	}
	return pb.key.ID, true
}

// Playing returns the active playback sessions, oldest first.
func (s *Service) Playing() []Playback {
	s.mu.Lock()
	pbs := make([]*playback, 0, len(s.playing))
	for _, pb := range s.playing {
		pbs = append(pbs, pb)
	}
	s.mu.Unlock()

	sort.Slice(pbs, func(i, j int) bool { return pbs[i].seq < pbs[j].seq })
	out := make([]Playback, len(pbs))
	for i, pb := range pbs {
		out[i] = Playback{ResourceID: pb.key.ID, SessionID: pb.sessionID}
	}
	return out
}

// Download is the explicit user action for documents. It bypasses the
// visibility gate and surfaces errors.
func (s *Service) Download(ctx context.Context, id string) (*resource.Descriptor, error) {
	d, err := s.monitor.EnsureFresh(ctx, resource.KindDocument, id)
	if err != nil {
		return nil, err
	}
	s.record(usage.EventDownload, resource.KindDocument, id, "")
	return d, nil
}

// UploadVideo hands a video to the ingestion path and returns its id.
func (s *Service) UploadVideo(ctx context.Context, body io.Reader, meta provider.UploadMetadata) (string, error) {
	return s.upload(ctx, resource.KindVideo, body, meta)
}

// UploadDocument hands a document to the ingestion path and returns its id.
func (s *Service) UploadDocument(ctx context.Context, body io.Reader, meta provider.UploadMetadata) (string, error) {
	return s.upload(ctx, resource.KindDocument, body, meta)
}

func (s *Service) upload(ctx context.Context, kind resource.Kind, body io.Reader, meta provider.UploadMetadata) (string, error) {
	if s.uploader == nil {
		return "", ErrUploadsDisabled
	}
	id, err := s.uploader.Upload(ctx, kind, body, meta)
	if err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "upload.failed").Str(log.FieldKind, string(kind)).Msg("upload failed")
		return "", err
	}
	if err := resource.ValidateID(id); err != nil {
		return "", err
	}
	s.record(usage.EventUpload, kind, id, "")
	return id, nil
}

// Subscribe delivers entry status transitions; see cache.Cache.Subscribe.
func (s *Service) Subscribe(buffer int) (<-chan resource.Transition, func()) {
	return s.cache.Subscribe(buffer)
}

// Settings returns the current settings.
func (s *Service) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// ApplySettings validates and applies new tuning values. Gates created
// earlier keep their geometry settings.
func (s *Service) ApplySettings(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()

	s.coord.SetTimeout(next.ProviderTimeout)
	s.monitor.SetTiming(next.ExpiryLeadTime, next.RefreshInterval)
	s.tracker.SetThreshold(next.PrefetchThresholdPercent)
	s.cache.SetMaxEntries(next.MaxEntries)

	s.logger.Info().
		Str(log.FieldEvent, "settings.applied").
		Float64("prefetch_threshold_percent", next.PrefetchThresholdPercent).
		Dur("expiry_lead_time", next.ExpiryLeadTime).
		Dur("refresh_interval", next.RefreshInterval).
		Int("max_entries", next.MaxEntries).
		Msg("delivery settings applied")
	return nil
}

// CacheStats exposes cache counters for diagnostics.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Close stops playback watches and waits for outstanding work.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	pbs := s.playing
	s.playing = make(map[string]*playback)
	s.mu.Unlock()

	for _, pb := range pbs {
		s.endPlayback(pb)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return errors.Join(s.monitor.Close(ctx), s.coord.Close(ctx))
}

// goBackground runs fn on a tracked goroutine unless the service is closed.
func (s *Service) goBackground(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(context.Background())
	}()
}

func (s *Service) record(name string, kind resource.Kind, id, sessionID string) {
	if s.usage == nil {
		return
	}
	s.usage.Record(usage.Event{Name: name, Kind: kind, ResourceID: id, SessionID: sessionID})
}
