/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geom

// Basic 2D geometry for snapping decisions. Values are float64 so canonical
// angles (multiples of pi/4) can be returned exactly.

import "math"

// Point is an immutable (x, y) pair in the container's parent coordinate space.
type Point struct{ X, Y float64 }

func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Sub returns p - o.
func (p Point) Sub(o Point) Point { return Point{p.X - o.X, p.Y - o.Y} }

// Add returns p + o.
func (p Point) Add(o Point) Point { return Point{p.X + o.X, p.Y + o.Y} }

// Size is a width/height pair.
type Size struct{ W, H float64 }

// Empty reports whether either dimension is zero or negative.
func (s Size) Empty() bool { return s.W <= 0 || s.H <= 0 }

// Rect is an axis-aligned rectangle defined by min corner and size.
type Rect struct {
	X, Y float64
	W, H float64
}

func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, W: w, H: h} }

func (r Rect) Min() Point { return Point{r.X, r.Y} }
func (r Rect) Max() Point { return Point{r.X + r.W, r.Y + r.H} }
func (r Rect) Size() Size { return Size{r.W, r.H} }
func (r Rect) Center() Point { return Point{r.X + r.W/2, r.Y + r.H/2} }

// Contains reports whether p lies inside r. The min edges are inclusive and
// the max edges exclusive, so adjacent bands never both claim a point.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X < r.X+r.W && p.Y < r.Y+r.H
}

// Local converts p from the parent space into r's local space (origin at r.Min()).
func (r Rect) Local(p Point) Point { return p.Sub(r.Min()) }

// Affine represents a 2D affine transform as matrix:
// | a c e |
// | b d f |
// | 0 0 1 |
type Affine struct{ A, B, C, D, E, F float64 }

var Identity = Affine{A: 1, D: 1}

func (m Affine) Mul(n Affine) Affine {
	return Affine{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

func (m Affine) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

// Rotation returns a pure rotation by rad radians.
func Rotation(rad float64) Affine {
	c, s := math.Cos(rad), math.Sin(rad)
	return Affine{A: c, B: s, C: -s, D: c}
}

// Rotated composes m with an additional rotation by delta, applied in m's own
// space (the rotation happens first, then m).
func (m Affine) Rotated(delta float64) Affine { return m.Mul(Rotation(delta)) }

// Angle extracts the rotation component of m, normalized to (-pi, pi].
func (m Affine) Angle() float64 { return NormalizeAngle(math.Atan2(m.B, m.A)) }

// NormalizeAngle maps rad into (-pi, pi].
func NormalizeAngle(rad float64) float64 {
	if math.IsNaN(rad) || math.IsInf(rad, 0) {
		return rad
	}
	rad = math.Mod(rad, 2*math.Pi)
	if rad <= -math.Pi {
		rad += 2 * math.Pi
	} else if rad > math.Pi {
		rad -= 2 * math.Pi
	}
	return rad
}

// Round rounds v to n decimal places deterministically.
func Round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
