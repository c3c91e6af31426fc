/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"snapguide/internal/geom"
	"snapguide/internal/snap"
)

// RecorderConfig bounds a live recording.
type RecorderConfig struct {
	// Name labels the trace; a random "rec-xxxxxxxx" name is used when empty.
	Name string
	// MaxEvents caps the recording (0 means unlimited). Events past the cap are
	// still forwarded to the controller but not recorded.
	MaxEvents int
	// MinInterval coalesces consecutive moves arriving closer together than
	// this. A move is only replaced when it left the controller exactly as it
	// found it, so replaying the trace still reproduces the live session.
	// Zero records every move.
	MinInterval time.Duration
	// Now overrides the wall clock, mainly for tests.
	Now func() time.Time
}

// Recorder forwards host events to a controller and records them as a trace
// that Replay can reproduce. It is safe for concurrent use.
type Recorder struct {
	cfg     RecorderConfig
	ctrl    *snap.Controller
	mu      sync.Mutex
	start   time.Time
	trace   Trace
	dropped int
	// lastNoop is set when the last recorded event is a move that changed nothing.
	lastNoop bool
}

// NewRecorder creates a controller with the given parameters and wraps it.
func NewRecorder(container geom.Rect, center geom.Point, angle float64, opts snap.Options, cfg RecorderConfig, options ...snap.Option) *Recorder {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "rec-" + uuid.New().String()[:8]
	}
	return &Recorder{
		cfg:   cfg,
		ctrl:  snap.New(container, center, angle, opts, options...),
		start: cfg.Now(),
		trace: Trace{
			Version:   CurrentVersion,
			Name:      cfg.Name,
			Container: Container{X: container.X, Y: container.Y, Width: container.W, Height: container.H},
			Initial:   Point{X: center.X, Y: center.Y},
			Angle:     angle,
			Events:    []Event{},
		},
	}
}

// Controller exposes the wrapped controller for read-only queries.
func (r *Recorder) Controller() *snap.Controller { return r.ctrl }

func (r *Recorder) OnPositionChanged(old, next geom.Point) snap.PositionDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.ctrl.Status()
	d := r.ctrl.OnPositionChanged(old, next)
	r.record(Event{Kind: KindMove, X: next.X, Y: next.Y}, r.ctrl.Status() == before)
	return d
}

func (r *Recorder) OnAngleChanged(delta float64) snap.RotationDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.ctrl.OnAngleChanged(delta)
	r.record(Event{Kind: KindRotate, Delta: delta}, false)
	return d
}

func (r *Recorder) NotifyInteractionEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctrl.NotifyInteractionEnded()
	r.record(Event{Kind: KindEnd}, false)
}

// record appends ev; r.mu must be held. noop reports that ev left the
// controller status unchanged.
func (r *Recorder) record(ev Event, noop bool) {
	ev.AtMs = r.cfg.Now().Sub(r.start).Milliseconds()
	if ev.AtMs < 0 {
		ev.AtMs = 0
	}
	events := r.trace.Events
	if n := len(events); n > 0 {
		last := events[n-1]
		if ev.AtMs < last.AtMs {
			ev.AtMs = last.AtMs
		}
		if ev.Kind == KindMove && last.Kind == KindMove && r.lastNoop && r.cfg.MinInterval > 0 &&
			time.Duration(ev.AtMs-last.AtMs)*time.Millisecond < r.cfg.MinInterval {
			events[n-1] = ev
			r.lastNoop = noop
			return
		}
	}
	if r.cfg.MaxEvents > 0 && len(events) >= r.cfg.MaxEvents {
		r.dropped++
		return
	}
	r.trace.Events = append(events, ev)
	r.lastNoop = noop
}

// Trace returns a copy of the recording so far.
func (r *Recorder) Trace() Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.trace
	t.Events = make([]Event, len(r.trace.Events))
	copy(t.Events, r.trace.Events)
	return t
}

// Stats reports recorded and dropped event counts.
func (r *Recorder) Stats() (recorded int, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trace.Events), r.dropped
}
