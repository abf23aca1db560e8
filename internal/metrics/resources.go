// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of the delivery core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_provider_calls_total",
		Help: "Resource provider invocations by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=success|error|not_found|timeout

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lessonmedia_provider_call_duration_seconds",
		Help:    "Resource provider call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	fetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_fetch_requests_total",
		Help: "Fetch coordinator requests by resolution path",
	}, []string{"kind", "path"}) // path=hit|joined|started|forced

	staleDiscards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_fetch_stale_discards_total",
		Help: "Provider results discarded because a newer fetch had started",
	}, []string{"kind"})

	prefetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_prefetch_total",
		Help: "Prefetch attempts by outcome",
	}, []string{"kind", "outcome"}) // outcome=started|hit|joined|success|failed|skipped_chain

	refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_refresh_total",
		Help: "Signed URL refreshes by trigger and outcome",
	}, []string{"trigger", "outcome"}) // trigger=render|watch|manual

	visibilityFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_visibility_gate_fires_total",
		Help: "Visibility gate first-visible transitions",
	}, []string{"kind"})

	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lessonmedia_cache_entries",
		Help: "Resource cache entries by status",
	}, []string{"status"})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonmedia_cache_evictions_total",
		Help: "Entries evicted by the optional cache bound",
	})

	subscriberDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonmedia_cache_subscriber_drops_total",
		Help: "Transition events dropped because a subscriber was not keeping up",
	})

	usageEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_usage_events_total",
		Help: "Usage telemetry events by event kind and outcome",
	}, []string{"event", "outcome"}) // outcome=queued|dropped|written|failed

	uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_uploads_total",
		Help: "Upload passthrough attempts by kind and outcome",
	}, []string{"kind", "outcome"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lessonmedia_breaker_state",
		Help: "Provider circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"breaker"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonmedia_breaker_trips_total",
		Help: "Provider circuit breaker transitions to open",
	}, []string{"breaker", "reason"}) // reason=threshold_exceeded|half_open_failure
)

var breakerStateValues = map[string]float64{"closed": 0, "half-open": 1, "open": 2}

// RecordProviderCall records one provider invocation.
func RecordProviderCall(kind, outcome string, d time.Duration) {
	providerCalls.WithLabelValues(kind, outcome).Inc()
	providerLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordFetch records how a fetch request was resolved.
func RecordFetch(kind, path string) {
	fetchRequests.WithLabelValues(kind, path).Inc()
}

// RecordStaleDiscard records a provider result that lost the token race.
func RecordStaleDiscard(kind string) {
	staleDiscards.WithLabelValues(kind).Inc()
}

// RecordPrefetch records a prefetch outcome.
func RecordPrefetch(kind, outcome string) {
	prefetches.WithLabelValues(kind, outcome).Inc()
}

// RecordRefresh records a signed URL refresh.
func RecordRefresh(trigger, outcome string) {
	refreshes.WithLabelValues(trigger, outcome).Inc()
}

// RecordVisibilityFire records a gate firing.
func RecordVisibilityFire(kind string) {
	visibilityFires.WithLabelValues(kind).Inc()
}

// SetCacheEntries publishes the per-status entry counts.
func SetCacheEntries(counts map[string]int) {
	for status, n := range counts {
		cacheEntries.WithLabelValues(status).Set(float64(n))
	}
}

// RecordCacheEviction counts one bounded-cache eviction.
func RecordCacheEviction() {
	cacheEvictions.Inc()
}

// RecordSubscriberDrop counts one dropped transition event.
func RecordSubscriberDrop() {
	subscriberDrops.Inc()
}

// RecordUsageEvent records a usage telemetry outcome.
func RecordUsageEvent(event, outcome string) {
	usageEvents.WithLabelValues(event, outcome).Inc()
}

// RecordUpload records an upload passthrough outcome.
func RecordUpload(kind, outcome string) {
	uploads.WithLabelValues(kind, outcome).Inc()
}

// SetBreakerState publishes the state of a named breaker. Unknown states
// are ignored.
func SetBreakerState(breaker, state string) {
	if v, ok := breakerStateValues[state]; ok {
		breakerState.WithLabelValues(breaker).Set(v)
	}
}

// RecordBreakerTrip counts one transition to open.
func RecordBreakerTrip(breaker, reason string) {
	breakerTrips.WithLabelValues(breaker, reason).Inc()
}
