// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordProviderCall_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(providerCalls.WithLabelValues("video", "success"))
	RecordProviderCall("video", "success", 120*time.Millisecond)
	after := testutil.ToFloat64(providerCalls.WithLabelValues("video", "success"))
	assert.Equal(t, before+1, after)
}

func TestBreakerMetrics(t *testing.T) {
	SetBreakerState("provider", "open")
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("provider")))
	SetBreakerState("provider", "half-open")
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("provider")))
	SetBreakerState("provider", "bogus")
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("provider")), "unknown states are ignored")

	before := testutil.ToFloat64(breakerTrips.WithLabelValues("provider", "threshold_exceeded"))
	RecordBreakerTrip("provider", "threshold_exceeded")
	assert.Equal(t, before+1, testutil.ToFloat64(breakerTrips.WithLabelValues("provider", "threshold_exceeded")))
}

func TestSetCacheEntries(t *testing.T) {
	SetCacheEntries(map[string]int{"ready": 3, "error": 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(cacheEntries.WithLabelValues("ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cacheEntries.WithLabelValues("error")))
}
