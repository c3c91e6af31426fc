/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package trace

import (
	"context"
	"log/slog"
	"time"

	"snapguide/internal/clock"
	"snapguide/internal/geom"
	applog "snapguide/internal/log"
	"snapguide/internal/snap"
)

// Step is the controller state observed right after one event.
type Step struct {
	Index          int             `json:"index"`
	AtMs           int64           `json:"at_ms"`
	Kind           EventKind       `json:"kind"`
	Input          geom.Point      `json:"input"`
	Delta          float64         `json:"delta"`
	Applied        geom.Point      `json:"applied"`
	State          string          `json:"state"`
	Angle          float64         `json:"angle"`
	RotationLocked bool            `json:"rotation_locked"`
	Released       bool            `json:"released"`
	Guides         snap.Visibility `json:"guides"`
}

// Summary counts what happened over a replay.
type Summary struct {
	Events           int   `json:"events"`
	Moves            int   `json:"moves"`
	Rotations        int   `json:"rotations"`
	Ends             int   `json:"ends"`
	PositionLocks    int   `json:"position_locks"`
	PositionReleases int   `json:"position_releases"`
	RotationLocks    int   `json:"rotation_locks"`
	RotationReleases int   `json:"rotation_releases"`
	ForcedReleases   int   `json:"forced_releases"`
	GuideChecks      int   `json:"guide_checks"`
	DurationMs       int64 `json:"duration_ms"`
}

// Report is the full outcome of a replay.
type Report struct {
	Name      string       `json:"name"`
	Container geom.Rect    `json:"container"`
	Options   snap.Options `json:"options"`
	Steps     []Step       `json:"steps"`
	Summary   Summary      `json:"summary"`
	Final     snap.Status  `json:"final"`
}

// Replay feeds t through a fresh controller on a virtual clock. Time jumps to
// each event's timestamp before it is applied, so pending guide checks fire in
// between exactly as they would live. After the last event the clock runs on
// for one guide delay so the final check is included.
func Replay(ctx context.Context, t Trace, opts snap.Options) (Report, error) {
	l := applog.WithOperation(applog.WithComponent("trace"), "replay").With(slog.String("trace", t.Name))
	clk := clock.NewManual()
	rep := Report{Name: t.Name, Container: t.Container.Rect(), Options: opts}

	var c *snap.Controller
	observe := func(v snap.Visibility) {
		rep.Summary.GuideChecks++
		st := c.Status()
		rep.Steps = append(rep.Steps, Step{
			Index:          len(rep.Steps),
			AtMs:           clk.Now().Milliseconds(),
			Kind:           KindGuides,
			Applied:        st.Position,
			State:          st.State.String(),
			Angle:          st.Angle,
			RotationLocked: st.RotationLocked,
			Guides:         v,
		})
	}
	c = snap.New(t.Container.Rect(), t.Initial.Geom(), t.Angle, opts,
		snap.WithScheduler(clk),
		snap.WithGuideObserver(observe),
		snap.WithLogger(applog.WithComponent("snap").With(slog.String("trace", t.Name))))

	prevApplied := t.Initial.Geom()
	for _, ev := range t.Events {
		if err := ctx.Err(); err != nil {
			l.Warn("replay cancelled", slog.Int("steps", len(rep.Steps)), slog.Any("err", err))
			return rep, err
		}
		clk.AdvanceTo(time.Duration(ev.AtMs) * time.Millisecond)

		before := c.Status()
		step := Step{AtMs: ev.AtMs, Kind: ev.Kind}
		switch ev.Kind {
		case KindMove:
			step.Input = geom.Pt(ev.X, ev.Y)
			d := c.OnPositionChanged(prevApplied, step.Input)
			prevApplied = d.Applied
			rep.Summary.Moves++
		case KindRotate:
			step.Delta = ev.Delta
			d := c.OnAngleChanged(ev.Delta)
			step.Released = d.Released
			if d.Released {
				rep.Summary.ForcedReleases++
			}
			rep.Summary.Rotations++
		case KindEnd:
			c.NotifyInteractionEnded()
			rep.Summary.Ends++
		}
		after := c.Status()
		countTransitions(&rep.Summary, before, after)

		step.Index = len(rep.Steps)
		step.Applied = after.Position
		step.State = after.State.String()
		step.Angle = after.Angle
		step.RotationLocked = after.RotationLocked
		step.Guides = after.Guides
		rep.Steps = append(rep.Steps, step)
		rep.Summary.Events++
	}

	if c.Status().TimerArmed {
		clk.Advance(max(opts.GuideDelay, 0))
	}
	rep.Final = c.Status()
	rep.Summary.DurationMs = clk.Now().Milliseconds()

	l.Info("replay finished",
		slog.Int("events", rep.Summary.Events),
		slog.Int("position_locks", rep.Summary.PositionLocks),
		slog.Int("rotation_locks", rep.Summary.RotationLocks),
		slog.Int("guide_checks", rep.Summary.GuideChecks))
	return rep, nil
}

func countTransitions(s *Summary, before, after snap.Status) {
	switch {
	case before.State == snap.Unsnapped && after.State != snap.Unsnapped:
		s.PositionLocks++
	case before.State != snap.Unsnapped && after.State == snap.Unsnapped:
		s.PositionReleases++
	}
	switch {
	case !before.RotationLocked && after.RotationLocked:
		s.RotationLocks++
	case before.RotationLocked && !after.RotationLocked:
		s.RotationReleases++
	}
}
