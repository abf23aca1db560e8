// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package delivery

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ManuGH/lessonmedia/internal/expiry"
	"github.com/ManuGH/lessonmedia/internal/fetch"
	"github.com/ManuGH/lessonmedia/internal/progress"
	"github.com/ManuGH/lessonmedia/internal/visibility"
)

// ErrInvalidSettings classifies rejected tuning values.
var ErrInvalidSettings = errors.New("invalid delivery settings")

// Settings are the runtime tuning knobs of the delivery layer.
type Settings struct {
	PrefetchThresholdPercent float64
	ExpiryLeadTime           time.Duration
	RefreshInterval          time.Duration
	VisibilityThreshold      float64
	VisibilityRootMargin     float64
	MaxEntries               int
	ProviderTimeout          time.Duration
}

// DefaultSettings returns conservative defaults.
func DefaultSettings() Settings {
	return Settings{
		PrefetchThresholdPercent: progress.DefaultThresholdPercent,
		ExpiryLeadTime:           expiry.DefaultLeadTime,
		RefreshInterval:          expiry.DefaultInterval,
		VisibilityThreshold:      visibility.DefaultThreshold,
		VisibilityRootMargin:     visibility.DefaultRootMargin,
		MaxEntries:               0,
		ProviderTimeout:          fetch.DefaultTimeout,
	}
}

// Validate checks ranges. The lead time must exceed the re-check interval so
// a periodic check always lands inside the lead window before expiry.
func (s Settings) Validate() error {
	switch {
	case math.IsNaN(s.PrefetchThresholdPercent) || s.PrefetchThresholdPercent <= 0 || s.PrefetchThresholdPercent > 100:
		return fmt.Errorf("%w: prefetch threshold %v not in (0, 100]", ErrInvalidSettings, s.PrefetchThresholdPercent)
	case s.ExpiryLeadTime <= 0:
		return fmt.Errorf("%w: expiry lead time must be positive", ErrInvalidSettings)
	case s.RefreshInterval <= 0:
		return fmt.Errorf("%w: refresh interval must be positive", ErrInvalidSettings)
	case s.ExpiryLeadTime <= s.RefreshInterval:
		return fmt.Errorf("%w: expiry lead time %s must exceed refresh interval %s", ErrInvalidSettings, s.ExpiryLeadTime, s.RefreshInterval)
	case math.IsNaN(s.VisibilityThreshold) || s.VisibilityThreshold < 0 || s.VisibilityThreshold > 1:
		return fmt.Errorf("%w: visibility threshold %v not in [0, 1]", ErrInvalidSettings, s.VisibilityThreshold)
	case math.IsNaN(s.VisibilityRootMargin) || math.IsInf(s.VisibilityRootMargin, 0) || s.VisibilityRootMargin < 0:
		return fmt.Errorf("%w: visibility root margin must be a finite, non-negative pixel count", ErrInvalidSettings)
	case s.MaxEntries < 0:
		return fmt.Errorf("%w: max entries must not be negative", ErrInvalidSettings)
	case s.ProviderTimeout <= 0:
		return fmt.Errorf("%w: provider timeout must be positive", ErrInvalidSettings)
	}
	return nil
}
