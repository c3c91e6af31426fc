/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package snap decides when a dragged or rotated object locks onto its
// container's center lines or onto a canonical rotation, and when the
// alignment guides for those lines should be shown or hidden.
//
// The engines are deterministic: given the same event history, options and
// clock they always produce the same decisions. Rendering the guides and
// moving the host object are left to the caller.
package snap

import (
	"fmt"
	"strings"
	"time"
)

// Axes selects which center lines take part in snapping.
type Axes int

const (
	AxesBoth Axes = iota
	AxesHorizontal
	AxesVertical
)

func (a Axes) String() string {
	switch a {
	case AxesHorizontal:
		return "horizontal"
	case AxesVertical:
		return "vertical"
	default:
		return "both"
	}
}

// ParseAxes accepts "both", "horizontal" or "vertical" (case-insensitive, empty means both).
func ParseAxes(s string) (Axes, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return AxesBoth, nil
	case "horizontal", "h":
		return AxesHorizontal, nil
	case "vertical", "v":
		return AxesVertical, nil
	}
	return AxesBoth, fmt.Errorf("unknown snap axes %q", s)
}

func (a Axes) horizontal() bool { return a == AxesBoth || a == AxesHorizontal }
func (a Axes) vertical() bool { return a == AxesBoth || a == AxesVertical }

// Options tunes the snapping behaviour. Zero thresholds are valid and mean
// "release on any movement"; use DefaultOptions for the usual feel.
type Options struct {
	// CaptureBand is the thickness of the band around each center line inside
	// which an unsnapped point locks on.
	CaptureBand float64
	// UnsnapThreshold is the distance from a center line beyond which a locked
	// axis releases. It is looser than CaptureBand to give hysteresis.
	UnsnapThreshold float64
	// UnsnapAngleThreshold is the tolerance in radians around each canonical angle.
	UnsnapAngleThreshold float64
	// MaxMoveCount is the number of angle changes received while locked after
	// which the rotation lock is forcibly released.
	MaxMoveCount int
	// GuideDelay is the quiet period before guide visibility is re-evaluated.
	GuideDelay time.Duration
	Axes       Axes
}

// DefaultOptions returns the tuning used by the interactive editor.
func DefaultOptions() Options {
	return Options{
		CaptureBand:          5,
		UnsnapThreshold:      10,
		UnsnapAngleThreshold: 0.01,
		MaxMoveCount:         5,
		GuideDelay:           500 * time.Millisecond,
		Axes:                 AxesBoth,
	}
}

// sanitized clamps negative values to zero so every decision stays bounded.
func (o Options) sanitized() Options {
	if o.CaptureBand < 0 {
		o.CaptureBand = 0
	}
	if o.UnsnapThreshold < 0 {
		o.UnsnapThreshold = 0
	}
	if o.UnsnapAngleThreshold < 0 {
		o.UnsnapAngleThreshold = 0
	}
	if o.MaxMoveCount < 0 {
		o.MaxMoveCount = 0
	}
	if o.GuideDelay < 0 {
		o.GuideDelay = 0
	}
	return o
}
