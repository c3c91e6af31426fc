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
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapguide/internal/geom"
	"snapguide/internal/snap"
)

func TestLoadValidTrace(t *testing.T) {
	tr, err := Load(filepath.Join("testdata", "center_drag.json"))
	require.NoError(t, err)
	assert.Equal(t, "center-drag", tr.Name)
	assert.Equal(t, geom.R(0, 0, 200, 200), tr.Container.Rect())
	assert.Len(t, tr.Events, 7)
	assert.Equal(t, KindRotate, tr.Events[4].Kind)
	assert.Equal(t, 0.004, tr.Events[4].Delta)
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing container": `{"version":1,"initial":{"x":0,"y":0},"events":[]}`,
		"move without y":    `{"version":1,"container":{"width":10,"height":10},"initial":{"x":0,"y":0},"events":[{"at_ms":0,"kind":"move","x":1}]}`,
		"rotate no delta":   `{"version":1,"container":{"width":10,"height":10},"initial":{"x":0,"y":0},"events":[{"at_ms":0,"kind":"rotate"}]}`,
		"unknown kind":      `{"version":1,"container":{"width":10,"height":10},"initial":{"x":0,"y":0},"events":[{"at_ms":0,"kind":"jump"}]}`,
		"negative width":    `{"version":1,"container":{"width":-1,"height":10},"initial":{"x":0,"y":0},"events":[]}`,
		"wrong version":     `{"version":2,"container":{"width":10,"height":10},"initial":{"x":0,"y":0},"events":[]}`,
		"not json":          `{"version":`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "expected ErrInvalid, got %v", err)
		})
	}
}

func TestParseRejectsUnorderedEvents(t *testing.T) {
	doc := `{"version":1,"container":{"width":10,"height":10},"initial":{"x":0,"y":0},
		"events":[{"at_ms":20,"kind":"end"},{"at_ms":10,"kind":"end"}]}`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "earlier")
}

func TestReplayCenterDrag(t *testing.T) {
	tr, err := Load(filepath.Join("testdata", "center_drag.json"))
	require.NoError(t, err)

	rep, err := Replay(context.Background(), tr, snap.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rep.Steps, 8)

	assert.Equal(t, geom.Pt(50, 60), rep.Steps[0].Applied)
	assert.Equal(t, "unsnapped", rep.Steps[0].State)

	assert.Equal(t, geom.Pt(100, 100), rep.Steps[1].Applied)
	assert.Equal(t, "both", rep.Steps[1].State)
	assert.Equal(t, snap.Visibility{Horizontal: true, Vertical: true}, rep.Steps[1].Guides)

	assert.Equal(t, geom.Pt(100, 100), rep.Steps[2].Applied)

	assert.Equal(t, geom.Pt(112, 100), rep.Steps[3].Applied)
	assert.Equal(t, "unsnapped", rep.Steps[3].State)
	assert.False(t, rep.Steps[3].Guides.Any())

	assert.True(t, rep.Steps[4].RotationLocked)
	assert.Equal(t, 0.0, rep.Steps[4].Angle)

	assert.Equal(t, geom.Pt(140, 130), rep.Steps[5].Applied)
	assert.Equal(t, "unsnapped", rep.Steps[5].State)
	assert.False(t, rep.Steps[5].Guides.Any())

	guides := rep.Steps[7]
	assert.Equal(t, KindGuides, guides.Kind)
	assert.Equal(t, int64(500), guides.AtMs)
	assert.False(t, guides.Guides.Any())

	s := rep.Summary
	assert.Equal(t, 7, s.Events)
	assert.Equal(t, 5, s.Moves)
	assert.Equal(t, 1, s.Rotations)
	assert.Equal(t, 1, s.Ends)
	assert.Equal(t, 1, s.PositionLocks)
	assert.Equal(t, 1, s.PositionReleases)
	assert.Equal(t, 1, s.RotationLocks)
	assert.Equal(t, 0, s.ForcedReleases)
	assert.Equal(t, 1, s.GuideChecks)
	assert.Equal(t, int64(596), s.DurationMs)
	assert.False(t, rep.Final.TimerArmed)
}

func TestReplayGuideCheckBetweenEvents(t *testing.T) {
	tr := Trace{
		Version:   CurrentVersion,
		Container: Container{Width: 200, Height: 200},
		Initial:   Point{X: 10, Y: 10},
		Events: []Event{
			{AtMs: 0, Kind: KindMove, X: 40, Y: 101},
			{AtMs: 700, Kind: KindMove, X: 60, Y: 101},
		},
	}
	rep, err := Replay(context.Background(), tr, snap.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rep.Steps, 4)

	check := rep.Steps[1]
	assert.Equal(t, KindGuides, check.Kind)
	assert.Equal(t, int64(500), check.AtMs)
	assert.Equal(t, snap.Visibility{Horizontal: true}, check.Guides, "horizontal lock keeps its guide while moving")

	assert.Equal(t, geom.Pt(60, 100), rep.Steps[2].Applied)
	assert.Equal(t, KindGuides, rep.Steps[3].Kind)
	assert.Equal(t, int64(1200), rep.Steps[3].AtMs)
	assert.Equal(t, 2, rep.Summary.GuideChecks)
}

func TestReplayCountsForcedRelease(t *testing.T) {
	tr := Trace{Version: CurrentVersion, Container: Container{Width: 100, Height: 100}, Initial: Point{X: 1, Y: 1}}
	for i := 0; i < 6; i++ {
		tr.Events = append(tr.Events, Event{AtMs: int64(i * 10), Kind: KindRotate, Delta: 0.001})
	}
	rep, err := Replay(context.Background(), tr, snap.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Summary.RotationLocks)
	assert.Equal(t, 1, rep.Summary.ForcedReleases)
	assert.Equal(t, 1, rep.Summary.RotationReleases)
	assert.True(t, rep.Steps[5].Released)
	assert.Equal(t, 0, rep.Summary.GuideChecks, "rotation alone never arms the guide check")
}

func TestReplayHonorsCancellation(t *testing.T) {
	tr, err := Load(filepath.Join("testdata", "center_drag.json"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Replay(ctx, tr, snap.DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecorderRoundTripsThroughReplay(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clockNow := func() time.Time { return now }
	opts := snap.DefaultOptions()
	opts.GuideDelay = time.Hour // keep the live wall-clock check out of the way

	rec := NewRecorder(geom.R(0, 0, 200, 200), geom.Pt(10, 10), 0, opts, RecorderConfig{Now: clockNow})
	var live []geom.Point
	prev := geom.Pt(10, 10)
	for _, p := range []geom.Point{geom.Pt(50, 60), geom.Pt(99, 99), geom.Pt(104, 100), geom.Pt(130, 100)} {
		now = now.Add(16 * time.Millisecond)
		d := rec.OnPositionChanged(prev, p)
		prev = d.Applied
		live = append(live, d.Applied)
	}
	now = now.Add(16 * time.Millisecond)
	rec.OnAngleChanged(0.2)
	rec.NotifyInteractionEnded()

	tr := rec.Trace()
	assert.True(t, strings.HasPrefix(tr.Name, "rec-"))
	require.Len(t, tr.Events, 6)
	assert.Equal(t, int64(16), tr.Events[0].AtMs)

	data, err := Encode(tr)
	require.NoError(t, err)
	parsed, err := Parse(data)
	require.NoError(t, err, "recorded traces must validate")

	rep, err := Replay(context.Background(), parsed, opts)
	require.NoError(t, err)
	for i, want := range live {
		assert.Equal(t, want, rep.Steps[i].Applied, "step %d", i)
	}
}

func TestRecorderCoalescingMatchesLiveSession(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := RecorderConfig{Name: "jitter", MinInterval: 10 * time.Millisecond, Now: func() time.Time { return now }}
	opts := snap.DefaultOptions()
	opts.GuideDelay = time.Hour
	rec := NewRecorder(geom.R(0, 0, 200, 200), geom.Pt(10, 10), 0, opts, cfg)

	inputs := []geom.Point{
		geom.Pt(100, 100), // captures both axes
		geom.Pt(105, 100), // jitter inside the lock, changes nothing
		geom.Pt(104, 101), // same
		geom.Pt(112, 100), // releases both
		geom.Pt(113, 100), // captures the horizontal line
		geom.Pt(40, 40),
	}
	prev := geom.Pt(10, 10)
	var live []snap.PositionDecision
	for _, p := range inputs {
		now = now.Add(4 * time.Millisecond)
		d := rec.OnPositionChanged(prev, p)
		prev = d.Applied
		live = append(live, d)
	}

	tr := rec.Trace()
	require.Len(t, tr.Events, 4, "only the two no-op moves are folded away")
	assert.Equal(t, 112.0, tr.Events[1].X)

	rep, err := Replay(context.Background(), tr, opts)
	require.NoError(t, err)
	want := []snap.PositionDecision{live[0], live[3], live[4], live[5]}
	for i, d := range want {
		assert.Equal(t, d.Applied, rep.Steps[i].Applied, "step %d", i)
		assert.Equal(t, d.State.String(), rep.Steps[i].State, "step %d", i)
	}
	assert.Equal(t, rec.Controller().Status().Position, rep.Final.Position)
	assert.Equal(t, rec.Controller().Status().State, rep.Final.State)
}

func TestRecorderKeepsStateChangingMoves(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := RecorderConfig{MinInterval: 10 * time.Millisecond, Now: func() time.Time { return now }}
	opts := snap.DefaultOptions()
	opts.GuideDelay = time.Hour
	rec := NewRecorder(geom.R(0, 0, 200, 200), geom.Pt(10, 10), 0, opts, cfg)

	live := rec.OnPositionChanged(geom.Pt(10, 10), geom.Pt(100, 100))
	now = now.Add(5 * time.Millisecond)
	live = rec.OnPositionChanged(live.Applied, geom.Pt(105, 100))
	require.Equal(t, snap.SnappedBoth, live.State)

	tr := rec.Trace()
	require.Len(t, tr.Events, 2, "the capturing move must survive coalescing")
	rep, err := Replay(context.Background(), tr, opts)
	require.NoError(t, err)
	assert.Equal(t, live.Applied, rep.Final.Position)
	assert.Equal(t, snap.SnappedBoth, rep.Final.State)
}

func TestRecorderCapsEvents(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := RecorderConfig{Name: "capped", MaxEvents: 3, Now: func() time.Time { return now }}
	opts := snap.DefaultOptions()
	opts.GuideDelay = time.Hour
	rec := NewRecorder(geom.R(0, 0, 200, 200), geom.Pt(0, 0), 0, opts, cfg)

	rec.OnPositionChanged(geom.Pt(0, 0), geom.Pt(1, 1))
	now = now.Add(5 * time.Millisecond)
	rec.OnPositionChanged(geom.Pt(1, 1), geom.Pt(2, 2))
	rec.OnAngleChanged(0.1)
	rec.OnPositionChanged(geom.Pt(2, 2), geom.Pt(3, 3)) // over the cap

	tr := rec.Trace()
	require.Len(t, tr.Events, 3)
	assert.Equal(t, "capped", tr.Name)
	assert.Equal(t, int64(5), tr.Events[1].AtMs)
	recorded, dropped := rec.Stats()
	assert.Equal(t, 3, recorded)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, geom.Pt(3, 3), rec.Controller().Status().Position, "dropped events still reach the controller")
}
