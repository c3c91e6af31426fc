/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package snap

import (
	"log/slog"
	"math"

	"snapguide/internal/geom"
)

// AxisState records which center lines the tracked point is locked to.
type AxisState int

const (
	Unsnapped AxisState = iota
	SnappedHorizontal
	SnappedVertical
	SnappedBoth
)

func (s AxisState) String() string {
	switch s {
	case SnappedHorizontal:
		return "horizontal"
	case SnappedVertical:
		return "vertical"
	case SnappedBoth:
		return "both"
	default:
		return "unsnapped"
	}
}

// Visibility says which guides the host should draw. Horizontal is the line
// through the container's center y, Vertical the line through its center x.
type Visibility struct {
	Horizontal bool
	Vertical   bool
}

// Any reports whether at least one guide is visible.
func (v Visibility) Any() bool { return v.Horizontal || v.Vertical }

// PositionDecision is the outcome of one position change.
type PositionDecision struct {
	Applied        geom.Point
	State          AxisState
	ShowHorizontal bool
	ShowVertical   bool
}

// PositionEngine locks a tracked point onto the container's center lines.
// Entry uses the narrow capture band, exit the wider unsnap threshold.
// It is not safe for concurrent use; Controller serializes access.
type PositionEngine struct {
	container geom.Rect
	opts      Options
	state     AxisState
	current   geom.Point
	guides    Visibility
	log       *slog.Logger
}

// NewPositionEngine creates an engine for a container frame expressed in the
// same space as the points it will receive.
func NewPositionEngine(container geom.Rect, initial geom.Point, opts Options, l *slog.Logger) *PositionEngine {
	if l == nil {
		l = slog.Default()
	}
	return &PositionEngine{container: container, opts: opts.sanitized(), current: initial, log: l}
}

// ShouldSnap reports whether p falls inside the horizontal (h) and vertical (v)
// capture bands. An empty container never captures.
func (e *PositionEngine) ShouldSnap(p geom.Point) (h, v bool) {
	size := e.container.Size()
	if size.Empty() {
		return false, false
	}
	local := e.container.Local(p)
	band := e.opts.CaptureBand
	hBand := geom.R(0, size.H/2-band/2, size.W, band)
	vBand := geom.R(size.W/2-band/2, 0, band, size.H)
	h = e.opts.Axes.horizontal() && hBand.Contains(local)
	v = e.opts.Axes.vertical() && vBand.Contains(local)
	return h, v
}

// Apply evaluates a position change and returns the point the host should
// apply. old is only used for diagnostics.
func (e *PositionEngine) Apply(old, next geom.Point) PositionDecision {
	prev := e.state
	center := e.container.Center()
	threshold := e.opts.UnsnapThreshold

	switch e.state {
	case Unsnapped:
		e.acquire(next)

	case SnappedBoth:
		exceedX := math.Abs(next.X-center.X) > threshold
		exceedY := math.Abs(next.Y-center.Y) > threshold
		if !exceedX && !exceedY {
			e.current = center
			e.guides = Visibility{Horizontal: true, Vertical: true}
			break
		}
		// Both locks go together. The raw point is applied and the next
		// event may capture again.
		e.state = Unsnapped
		e.current = next
		e.guides = Visibility{}

	case SnappedHorizontal:
		if math.Abs(next.Y-center.Y) > threshold {
			e.state = Unsnapped
			e.current = next
			e.guides.Horizontal = false
			break
		}
		e.current = geom.Pt(next.X, center.Y)
		e.guides.Horizontal = true
		if _, v := e.ShouldSnap(e.current); v {
			e.state = SnappedBoth
			e.current = center
			e.guides.Vertical = true
		}

	case SnappedVertical:
		if math.Abs(next.X-center.X) > threshold {
			e.state = Unsnapped
			e.current = next
			e.guides.Vertical = false
			break
		}
		e.current = geom.Pt(center.X, next.Y)
		e.guides.Vertical = true
		if h, _ := e.ShouldSnap(e.current); h {
			e.state = SnappedBoth
			e.current = center
			e.guides.Horizontal = true
		}
	}

	if e.state != prev {
		e.log.Debug("axis state changed",
			slog.String("from", prev.String()),
			slog.String("to", e.state.String()),
			slog.Float64("old_x", old.X), slog.Float64("old_y", old.Y),
			slog.Float64("x", e.current.X), slog.Float64("y", e.current.Y))
	}
	return e.decision()
}

func (e *PositionEngine) acquire(next geom.Point) {
	center := e.container.Center()
	h, v := e.ShouldSnap(next)
	switch {
	case h && v:
		e.state = SnappedBoth
		e.current = center
		e.guides = Visibility{Horizontal: true, Vertical: true}
	case h:
		e.state = SnappedHorizontal
		e.current = geom.Pt(next.X, center.Y)
		e.guides.Horizontal = true
	case v:
		e.state = SnappedVertical
		e.current = geom.Pt(center.X, next.Y)
		e.guides.Vertical = true
	default:
		e.current = next
	}
}

func (e *PositionEngine) decision() PositionDecision {
	return PositionDecision{
		Applied:        e.current,
		State:          e.state,
		ShowHorizontal: e.guides.Horizontal,
		ShowVertical:   e.guides.Vertical,
	}
}

// hide clears the selected guides. Snap state is left untouched.
func (e *PositionEngine) hide(horizontal, vertical bool) {
	if horizontal {
		e.guides.Horizontal = false
	}
	if vertical {
		e.guides.Vertical = false
	}
}

func (e *PositionEngine) State() AxisState { return e.state }
func (e *PositionEngine) Current() geom.Point { return e.current }
func (e *PositionEngine) Guides() Visibility { return e.guides }
func (e *PositionEngine) Container() geom.Rect { return e.container }
