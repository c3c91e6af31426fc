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

// candidateSteps is the number of 45 degree steps scanned in each rotational
// sense, 0 through 180 degrees inclusive.
const candidateSteps = 5

// RotationDecision is the outcome of one angle change.
type RotationDecision struct {
	// Applied is the absolute angle the host should apply, in (-pi, pi].
	Applied float64
	// Locked reports whether Applied is a canonical direction held by the lock.
	Locked bool
	// Released is set when the lock was forcibly released by this event.
	Released  bool
	MoveCount int
}

// RotationEngine locks an angle onto multiples of pi/4. A held lock releases
// after MaxMoveCount consecutive angle changes, whatever their size, so a
// deliberate sustained rotation always escapes.
type RotationEngine struct {
	opts      Options
	transform geom.Affine
	angle     float64
	locked    bool
	moveCount int
	log       *slog.Logger
}

func NewRotationEngine(initial float64, opts Options, l *slog.Logger) *RotationEngine {
	if l == nil {
		l = slog.Default()
	}
	t := geom.Rotation(initial)
	return &RotationEngine{opts: opts.sanitized(), transform: t, angle: t.Angle(), log: l}
}

// Apply composes delta onto the current rotation and decides the angle to apply.
//
// The move counter is bumped before the candidate scan, so an event that
// would re-acquire a lock still counts toward the forced release.
func (r *RotationEngine) Apply(delta float64) RotationDecision {
	next := r.transform.Rotated(delta)
	raw := next.Angle()

	if r.locked {
		r.moveCount++
		if r.moveCount >= r.opts.MaxMoveCount {
			r.transform = next
			r.angle = raw
			r.locked = false
			r.moveCount = 0
			r.log.Debug("rotation lock released", slog.Float64("angle", raw))
			return RotationDecision{Applied: raw, Released: true}
		}
	}

	if target, ok := r.candidate(raw); ok {
		if !r.locked {
			r.log.Debug("rotation locked", slog.Float64("raw", raw), slog.Float64("target", target))
		}
		r.transform = geom.Rotation(target)
		r.angle = target
		r.locked = true
		return RotationDecision{Applied: target, Locked: true, MoveCount: r.moveCount}
	}

	if r.locked {
		r.log.Debug("rotation left tolerance", slog.Float64("angle", raw))
	}
	r.transform = next
	r.angle = raw
	r.locked = false
	r.moveCount = 0
	return RotationDecision{Applied: raw}
}

// candidate scans 0, +45, -45, +90, -90 ... +180, -180 degrees and returns the
// first one strictly within tolerance of a.
func (r *RotationEngine) candidate(a float64) (float64, bool) {
	tol := r.opts.UnsnapAngleThreshold
	step := math.Pi / 4
	for i := 0; i < candidateSteps; i++ {
		cw := float64(i) * step
		if a < cw+tol && a > cw-tol {
			return geom.NormalizeAngle(cw), true
		}
		ccw := -cw
		if a < ccw+tol && a > ccw-tol {
			return geom.NormalizeAngle(ccw), true
		}
	}
	return 0, false
}

func (r *RotationEngine) Angle() float64 { return r.angle }
func (r *RotationEngine) Locked() bool { return r.locked }
func (r *RotationEngine) MoveCount() int { return r.moveCount }
