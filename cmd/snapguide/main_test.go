/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("APPDATA", home)
	t.Setenv("SNAPGUIDE_LOG_LEVEL", "error")
}

func testdata() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "internal", "trace", "testdata", "center_drag.json")
}

func TestRunVersionAndUsage(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	assert.Equal(t, 0, run([]string{"version"}, &out))
	assert.NotEmpty(t, strings.TrimSpace(out.String()))

	out.Reset()
	assert.Equal(t, 2, run([]string{"nope"}, &out))
	assert.Contains(t, out.String(), "Usage:")
}

func TestRunReplayStoresAndLists(t *testing.T) {
	isolate(t)
	db := filepath.Join(t.TempDir(), "reports.db")

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"replay", testdata(), db}, &out), out.String())
	assert.Contains(t, out.String(), "guide_checks=1")
	assert.Contains(t, out.String(), "stored as")

	out.Reset()
	require.Equal(t, 0, run([]string{"sessions", db}, &out), out.String())
	assert.Contains(t, out.String(), "center-drag")
}

func TestRunStepsUnknownID(t *testing.T) {
	isolate(t)
	db := filepath.Join(t.TempDir(), "reports.db")
	var out bytes.Buffer
	assert.Equal(t, 2, run([]string{"steps", db, "missing"}, &out))
	assert.Contains(t, out.String(), "not found")
}

func TestRunValidateRejectsMissingArgs(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	assert.Equal(t, 2, run([]string{"validate"}, &out))
	out.Reset()
	assert.Equal(t, 0, run([]string{"validate", testdata()}, &out))
	assert.Contains(t, out.String(), "ok (7 events)")
}

func TestRunConfigPrintsYAML(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"config"}, &out))
	assert.Contains(t, out.String(), "unsnap_threshold: 10")
}
