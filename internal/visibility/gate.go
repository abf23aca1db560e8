// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package visibility defers work until a placeholder is on screen. Hosts feed
// element and viewport geometry; the gate fires its callback at most once.
package visibility

import (
	"math"
	"sync"

	"github.com/ManuGH/lessonmedia/internal/metrics"
)

const (
	DefaultThreshold  = 0.25
	DefaultRootMargin = 200.0
)

// Rect is an axis-aligned rectangle in host pixels.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) empty() bool { return r.Width <= 0 || r.Height <= 0 }

// expand grows r by m on every side.
func (r Rect) expand(m float64) Rect {
	return Rect{X: r.X - m, Y: r.Y - m, Width: r.Width + 2*m, Height: r.Height + 2*m}
}

// Observation is one geometry sample from the host.
type Observation struct {
	Element  Rect
	Viewport Rect
}

// Options configures a Gate.
type Options struct {
	// Threshold is the visible fraction of the element required to fire.
	// Zero fires on any intersection.
	Threshold float64
	// RootMargin grows the viewport by this many pixels so loading starts early.
	RootMargin float64
	// Kind labels the fire metric.
	Kind string
	// OnVisible runs once, outside the gate lock, on the observing goroutine.
	OnVisible func()
}

// Gate wraps one mounted placeholder.
type Gate struct {
	mu     sync.Mutex
	opts   Options
	fired  bool
	closed bool
}

// NewGate builds a gate. Threshold is clamped to [0, 1]; a negative margin
// shrinks the viewport.
func NewGate(opts Options) *Gate {
	if math.IsNaN(opts.Threshold) || opts.Threshold < 0 {
		opts.Threshold = 0
	}
	if opts.Threshold > 1 {
		opts.Threshold = 1
	}
	if math.IsNaN(opts.RootMargin) || math.IsInf(opts.RootMargin, 0) {
		opts.RootMargin = 0
	}
	return &Gate{opts: opts}
}

// Observe evaluates a sample and reports whether this call fired the gate.
func (g *Gate) Observe(o Observation) bool {
	g.mu.Lock()
	if g.fired || g.closed {
		g.mu.Unlock()
		return false
	}
	fraction, intersects := VisibleFraction(o.Element, o.Viewport.expand(g.opts.RootMargin))
	if !intersects || fraction < g.opts.Threshold || (g.opts.Threshold == 0 && fraction == 0 && !o.Element.empty()) {
		g.mu.Unlock()
		return false
	}
	g.fired = true
	cb := g.opts.OnVisible
	g.mu.Unlock()

	metrics.RecordVisibilityFire(g.opts.Kind)
	if cb != nil {
		cb()
	}
	return true
}

// Fired reports whether the gate has fired.
func (g *Gate) Fired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// Close disarms the gate (unmount). Later observations are ignored.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

// VisibleFraction returns the share of element inside root and whether the
// two intersect at all. Zero-area elements count as fully visible when they
// lie within root, edges included.
func VisibleFraction(element, root Rect) (float64, bool) {
	if root.empty() {
		return 0, false
	}
	left := math.Max(element.X, root.X)
	top := math.Max(element.Y, root.Y)
	right := math.Min(element.X+math.Max(element.Width, 0), root.X+root.Width)
	bottom := math.Min(element.Y+math.Max(element.Height, 0), root.Y+root.Height)
	if right < left || bottom < top {
		return 0, false
	}
	if element.empty() {
		return 1, true
	}
	area := (right - left) * (bottom - top)
	return area / (element.Width * element.Height), true
}
