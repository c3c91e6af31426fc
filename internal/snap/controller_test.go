/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package snap

import (
	"testing"
	"time"

	"snapguide/internal/clock"
	"snapguide/internal/geom"
)

func newManualController(t *testing.T, start geom.Point) (*Controller, *clock.Manual, *[]Visibility) {
	t.Helper()
	clk := clock.NewManual()
	var seen []Visibility
	c := New(square, start, 0, DefaultOptions(),
		WithScheduler(clk),
		WithGuideObserver(func(v Visibility) { seen = append(seen, v) }))
	return c, clk, &seen
}

func TestArmIsSingleInFlight(t *testing.T) {
	c, clk, _ := newManualController(t, geom.Pt(10, 10))
	c.OnPositionChanged(geom.Pt(10, 10), geom.Pt(20, 20))
	c.OnPositionChanged(geom.Pt(20, 20), geom.Pt(30, 30))
	c.OnPositionChanged(geom.Pt(30, 30), geom.Pt(40, 40))
	if clk.Pending() != 1 {
		t.Fatalf("expected a single pending check, got %d", clk.Pending())
	}
	if !c.Status().TimerArmed {
		t.Fatalf("expected scheduler armed")
	}
	if n := clk.Advance(500 * time.Millisecond); n != 1 {
		t.Fatalf("expected one firing, got %d", n)
	}
	if clk.Pending() != 0 || c.Status().TimerArmed {
		t.Fatalf("check must not re-arm itself")
	}
	c.OnPositionChanged(geom.Pt(40, 40), geom.Pt(50, 50))
	if clk.Pending() != 1 {
		t.Fatalf("next move should arm again")
	}
}

func TestGuideSchedulerArmDirect(t *testing.T) {
	clk := clock.NewManual()
	pos := NewPositionEngine(square, geom.Pt(0, 0), DefaultOptions(), nil)
	g := NewGuideScheduler(pos, clk, 250*time.Millisecond, nil, nil)
	if !g.Arm() {
		t.Fatalf("first Arm should schedule")
	}
	if g.Arm() {
		t.Fatalf("second Arm while pending must be a no-op")
	}
	if clk.Pending() != 1 {
		t.Fatalf("expected one scheduled callback, got %d", clk.Pending())
	}
	clk.Advance(249 * time.Millisecond)
	if !g.Armed() {
		t.Fatalf("check fired early")
	}
	clk.Advance(time.Millisecond)
	if g.Armed() || g.Fired() != 1 {
		t.Fatalf("expected check to run once, armed=%v fired=%d", g.Armed(), g.Fired())
	}
}

func TestGuidesHideWhenAtRest(t *testing.T) {
	c, clk, seen := newManualController(t, geom.Pt(10, 10))
	d := c.OnPositionChanged(geom.Pt(10, 10), geom.Pt(100, 100))
	if !d.ShowHorizontal || !d.ShowVertical {
		t.Fatalf("expected both guides shown, got %+v", d)
	}
	c.NotifyInteractionEnded()
	clk.Advance(500 * time.Millisecond)

	if g := c.Guides(); g.Any() {
		t.Fatalf("expected all guides hidden at rest, got %+v", g)
	}
	if len(*seen) != 1 || (*seen)[0].Any() {
		t.Fatalf("observer should see one all-hidden update, got %+v", *seen)
	}
	if c.State() != SnappedBoth {
		t.Fatalf("hiding guides must not touch snap state, got %v", c.State())
	}
}

func TestGuidesKeepActiveAxisWhileMoving(t *testing.T) {
	c, clk, _ := newManualController(t, geom.Pt(10, 10))
	c.OnPositionChanged(geom.Pt(10, 10), geom.Pt(40, 101))
	clk.Advance(500 * time.Millisecond)
	g := c.Guides()
	if !g.Horizontal || g.Vertical {
		t.Fatalf("expected only the horizontal guide to survive, got %+v", g)
	}
}

func TestGuidesHideBothWhenCenteredOrOff(t *testing.T) {
	c, clk, _ := newManualController(t, geom.Pt(10, 10))
	c.OnPositionChanged(geom.Pt(10, 10), geom.Pt(100, 100))
	clk.Advance(500 * time.Millisecond)
	if c.Guides().Any() {
		t.Fatalf("both axes active should hide both guides")
	}

	c.OnPositionChanged(geom.Pt(100, 100), geom.Pt(101, 99))
	if g := c.Guides(); !g.Horizontal || !g.Vertical {
		t.Fatalf("a locked move shows the guides again, got %+v", g)
	}
	c.OnPositionChanged(geom.Pt(100, 100), geom.Pt(150, 150))
	clk.Advance(500 * time.Millisecond)
	if c.Guides().Any() {
		t.Fatalf("off every guide should hide both")
	}
}

func TestGuidesHideHorizontalForVerticalOnly(t *testing.T) {
	c, clk, _ := newManualController(t, geom.Pt(10, 10))
	c.OnPositionChanged(geom.Pt(10, 10), geom.Pt(100, 100))
	if d := c.OnPositionChanged(geom.Pt(100, 100), geom.Pt(100, 120)); d.State != Unsnapped {
		t.Fatalf("leaving the horizontal line releases both locks, got %v", d.State)
	}
	c.OnPositionChanged(geom.Pt(100, 120), geom.Pt(100, 121))
	g := c.Guides()
	if !g.Vertical || g.Horizontal {
		t.Fatalf("expected vertical lock on the next move, got %+v (state %v)", g, c.State())
	}
	clk.Advance(500 * time.Millisecond)
	g = c.Guides()
	if !g.Vertical || g.Horizontal {
		t.Fatalf("expected vertical guide to survive the check, got %+v", g)
	}
}

func TestObserverCalledOnEveryCheck(t *testing.T) {
	c, clk, seen := newManualController(t, geom.Pt(10, 10))
	c.OnPositionChanged(geom.Pt(10, 10), geom.Pt(50, 50))
	clk.Advance(500 * time.Millisecond)
	c.OnPositionChanged(geom.Pt(50, 50), geom.Pt(60, 60))
	clk.Advance(500 * time.Millisecond)

	if len(*seen) != 2 {
		t.Fatalf("expected one notification per check, got %d", len(*seen))
	}
	for i, v := range *seen {
		if v.Any() {
			t.Fatalf("check %d: nothing snapped, got %+v", i, v)
		}
	}
}

func TestNotifyInteractionEndedSnapshotsPosition(t *testing.T) {
	c, _, _ := newManualController(t, geom.Pt(10, 10))
	c.OnPositionChanged(geom.Pt(10, 10), geom.Pt(40, 101))
	c.NotifyInteractionEnded()
	if got := c.Status().LastKnown; got != geom.Pt(40, 100) {
		t.Fatalf("LastKnown = %+v, want applied point", got)
	}
}

func TestControllerWithRealClock(t *testing.T) {
	opts := DefaultOptions()
	opts.GuideDelay = time.Millisecond
	got := make(chan Visibility, 1)
	c := New(square, geom.Pt(10, 10), 0, opts, WithGuideObserver(func(v Visibility) { got <- v }))
	c.OnPositionChanged(geom.Pt(10, 10), geom.Pt(100, 100))
	c.NotifyInteractionEnded()
	select {
	case v := <-got:
		if v.Any() {
			t.Fatalf("expected guides hidden, got %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("guide check never fired")
	}
	if c.Status().TimerArmed {
		t.Fatalf("armed flag must be cleared after firing")
	}
}

func TestControllerRotation(t *testing.T) {
	c, _, _ := newManualController(t, geom.Pt(10, 10))
	d := c.OnAngleChanged(0.004)
	if !d.Locked || d.Applied != 0 {
		t.Fatalf("expected lock at 0, got %+v", d)
	}
	if s := c.Status(); !s.RotationLocked || s.Angle != 0 {
		t.Fatalf("status mismatch: %+v", s)
	}
}
