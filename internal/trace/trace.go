/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package trace records, validates and replays gesture traces: timed
// sequences of move, rotate and end events fed through a snap.Controller on a
// virtual clock. Traces make snapping behaviour reproducible outside a UI.
package trace

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"snapguide/internal/geom"
)

//go:embed schema.json
var schemaJSON []byte

// CurrentVersion is the trace format version written by this package.
const CurrentVersion = 1

// ErrInvalid is wrapped by Parse when a document does not match the trace schema.
var ErrInvalid = errors.New("invalid trace")

type EventKind string

const (
	KindMove   EventKind = "move"
	KindRotate EventKind = "rotate"
	KindEnd    EventKind = "end"
	// KindGuides only appears in replay reports, for deferred guide checks.
	KindGuides EventKind = "guides"
)

type Event struct {
	AtMs  int64     `json:"at_ms"`
	Kind  EventKind `json:"kind"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Delta float64   `json:"delta"`
}

type Container struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (c Container) Rect() geom.Rect { return geom.R(c.X, c.Y, c.Width, c.Height) }

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Geom() geom.Point { return geom.Pt(p.X, p.Y) }

// Trace is one recorded interaction against a fixed container.
type Trace struct {
	Version   int       `json:"version"`
	Name      string    `json:"name,omitempty"`
	Container Container `json:"container"`
	Initial   Point     `json:"initial"`
	Angle     float64   `json:"angle"`
	Events    []Event   `json:"events"`
}

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Parse validates data against the trace schema and decodes it. All schema
// violations are reported together.
func Parse(data []byte) (Trace, error) {
	s, err := compiledSchema()
	if err != nil {
		return Trace{}, fmt.Errorf("compile trace schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Trace{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !res.Valid() {
		errs := make([]error, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			errs = append(errs, errors.New(e.String()))
		}
		return Trace{}, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return Trace{}, fmt.Errorf("decode trace: %w", err)
	}
	for i := 1; i < len(t.Events); i++ {
		if t.Events[i].AtMs < t.Events[i-1].AtMs {
			return Trace{}, fmt.Errorf("%w: event %d at %dms is earlier than event %d at %dms",
				ErrInvalid, i, t.Events[i].AtMs, i-1, t.Events[i-1].AtMs)
		}
	}
	return t, nil
}

// Load reads and parses a trace file.
func Load(path string) (Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Trace{}, fmt.Errorf("read trace: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return Trace{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Encode renders t as indented JSON.
func Encode(t Trace) ([]byte, error) {
	if t.Version == 0 {
		t.Version = CurrentVersion
	}
	if t.Events == nil {
		t.Events = []Event{}
	}
	return json.MarshalIndent(t, "", "  ")
}

// Save writes t to path.
func Save(path string, t Trace) error {
	data, err := Encode(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
