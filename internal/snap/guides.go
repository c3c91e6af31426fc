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
	"time"

	"snapguide/internal/clock"
	"snapguide/internal/geom"
)

// GuideScheduler debounces guide visibility. Arm schedules a single deferred
// check; arming again while one is pending does nothing. When the check runs
// it only ever hides guides, never changes snap state.
type GuideScheduler struct {
	pos       *PositionEngine
	clock     clock.Scheduler
	delay     time.Duration
	guard     sync.Locker
	observer  func(Visibility)
	armed     bool
	lastKnown geom.Point
	fired     int
	log       *slog.Logger
}

// NewGuideScheduler binds a scheduler to pos. guard, when non-nil, is held
// while the deferred check runs so it serializes with the change events.
func NewGuideScheduler(pos *PositionEngine, s clock.Scheduler, delay time.Duration, guard sync.Locker, l *slog.Logger) *GuideScheduler {
	if l == nil {
		l = slog.Default()
	}
	if delay < 0 {
		delay = 0
	}
	return &GuideScheduler{pos: pos, clock: s, delay: delay, guard: guard, lastKnown: pos.Current(), log: l}
}

// Arm schedules the deferred check and reports whether a new one was scheduled.
func (g *GuideScheduler) Arm() bool {
	if g.armed || g.clock == nil {
		return false
	}
	g.armed = true
	g.clock.ScheduleOnce(g.delay, g.fire)
	return true
}

// Armed reports whether a check is pending.
func (g *GuideScheduler) Armed() bool { return g.armed }

// Commit records p as the last known resting position.
func (g *GuideScheduler) Commit(p geom.Point) { g.lastKnown = p }

// LastKnown returns the position recorded by the last Commit.
func (g *GuideScheduler) LastKnown() geom.Point { return g.lastKnown }

// Fired returns how many deferred checks have run.
func (g *GuideScheduler) Fired() int { return g.fired }

// SetObserver installs a callback notified with the visibility produced by
// each deferred check. It is called without the guard held.
func (g *GuideScheduler) SetObserver(fn func(Visibility)) { g.observer = fn }

func (g *GuideScheduler) fire() {
	if g.guard != nil {
		g.guard.Lock()
	}
	vis := g.Check()
	obs := g.observer
	if g.guard != nil {
		g.guard.Unlock()
	}
	if obs != nil {
		obs(vis)
	}
}

// Check applies the visibility rules against the tracked position and clears
// the armed flag.
func (g *GuideScheduler) Check() Visibility {
	cur := g.pos.Current()
	if cur == g.lastKnown {
		g.pos.hide(true, true)
	} else {
		h, v := g.pos.ShouldSnap(cur)
		switch {
		case h && !v:
			g.pos.hide(false, true)
		case v && !h:
			g.pos.hide(true, false)
		default:
			g.pos.hide(true, true)
		}
	}
	g.armed = false
	g.fired++
	vis := g.pos.Guides()
	g.log.Debug("guide check",
		slog.Bool("horizontal", vis.Horizontal),
		slog.Bool("vertical", vis.Vertical),
		slog.Bool("at_rest", cur == g.lastKnown))
	return vis
}
