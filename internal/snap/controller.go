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
	"sync"

	"snapguide/internal/clock"
	"snapguide/internal/geom"
	applog "snapguide/internal/log"
)

// Controller ties the position engine, the rotation engine and the guide
// scheduler together behind the calls a host makes while the user drags or
// rotates an object. All methods are safe for concurrent use; the deferred
// guide check takes the same lock as the change events.
type Controller struct {
	mu     sync.Mutex
	pos    *PositionEngine
	rot    *RotationEngine
	guides *GuideScheduler
	log    *slog.Logger
}

type controllerConfig struct {
	sched    clock.Scheduler
	observer func(Visibility)
	log      *slog.Logger
}

// Option customizes a Controller.
type Option func(*controllerConfig)

// WithScheduler replaces the wall-clock scheduler, e.g. with clock.Manual.
func WithScheduler(s clock.Scheduler) Option {
	return func(c *controllerConfig) { c.sched = s }
}

// WithGuideObserver is called after every deferred guide check with the
// resulting visibility, whether or not it changed. The host should sync its
// guide layers to it.
func WithGuideObserver(fn func(Visibility)) Option {
	return func(c *controllerConfig) { c.observer = fn }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *controllerConfig) { c.log = l }
}

// New creates a controller for an object initially centered at center with
// the given rotation. container is fixed for the controller's lifetime;
// create a new controller when it changes.
func New(container geom.Rect, center geom.Point, angle float64, opts Options, options ...Option) *Controller {
	cfg := controllerConfig{sched: clock.Real{}}
	for _, o := range options {
		o(&cfg)
	}
	l := cfg.log
	if l == nil {
		l = applog.WithComponent("snap")
	}
	c := &Controller{log: l}
	c.pos = NewPositionEngine(container, center, opts, applog.WithOperation(l, "position"))
	c.rot = NewRotationEngine(angle, opts, applog.WithOperation(l, "rotation"))
	c.guides = NewGuideScheduler(c.pos, cfg.sched, c.pos.opts.GuideDelay, &c.mu, applog.WithOperation(l, "guides"))
	c.guides.SetObserver(cfg.observer)
	l.Debug("controller ready",
		slog.Float64("width", container.W), slog.Float64("height", container.H),
		slog.String("axes", opts.Axes.String()))
	return c
}

// OnPositionChanged handles a move of the object's center from old to next.
func (c *Controller) OnPositionChanged(old, next geom.Point) PositionDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guides.Arm()
	return c.pos.Apply(old, next)
}

// OnAngleChanged handles a rotation by delta radians.
func (c *Controller) OnAngleChanged(delta float64) RotationDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rot.Apply(delta)
}

// NotifyInteractionEnded records the current position as the resting point,
// so the next guide check hides every guide if nothing moves in between.
func (c *Controller) NotifyInteractionEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guides.Commit(c.pos.Current())
}

// Status is a point-in-time copy of the controller's state.
type Status struct {
	Position       geom.Point
	State          AxisState
	Guides         Visibility
	Angle          float64
	RotationLocked bool
	MoveCount      int
	TimerArmed     bool
	GuideChecks    int
	LastKnown      geom.Point
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Position:       c.pos.Current(),
		State:          c.pos.State(),
		Guides:         c.pos.Guides(),
		Angle:          c.rot.Angle(),
		RotationLocked: c.rot.Locked(),
		MoveCount:      c.rot.MoveCount(),
		TimerArmed:     c.guides.Armed(),
		GuideChecks:    c.guides.Fired(),
		LastKnown:      c.guides.LastKnown(),
	}
}

func (c *Controller) Guides() Visibility {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos.Guides()
}

func (c *Controller) State() AxisState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos.State()
}
