/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package snap

import "snapguide/internal/geom"

// Orientation of a guide line.
type Orientation string

const (
	OrientationHorizontal Orientation = "horizontal"
	OrientationVertical   Orientation = "vertical"
)

// GuideLine is a visible center guide in container coordinates. Position is the
// y of a horizontal guide or the x of a vertical one; From and To are the
// extents to draw. Values are rounded to 3 decimals.
type GuideLine struct {
	Orientation Orientation
	Position    float64
	From        geom.Point
	To          geom.Point
}

// Lines returns the guide lines to draw for vis inside container, horizontal
// first. An empty container has no guides.
func Lines(container geom.Rect, vis Visibility) []GuideLine {
	if container.Size().Empty() {
		return nil
	}
	var out []GuideLine
	c := container.Center()
	if vis.Horizontal {
		y := geom.Round(c.Y, 3)
		out = append(out, GuideLine{
			Orientation: OrientationHorizontal,
			Position:    y,
			From:        geom.Pt(geom.Round(container.X, 3), y),
			To:          geom.Pt(geom.Round(container.X+container.W, 3), y),
		})
	}
	if vis.Vertical {
		x := geom.Round(c.X, 3)
		out = append(out, GuideLine{
			Orientation: OrientationVertical,
			Position:    x,
			From:        geom.Pt(x, geom.Round(container.Y, 3)),
			To:          geom.Pt(x, geom.Round(container.Y+container.H, 3)),
		})
	}
	return out
}

// GuideLines returns the lines for the currently visible guides.
func (c *Controller) GuideLines() []GuideLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Lines(c.pos.Container(), c.pos.Guides())
}
