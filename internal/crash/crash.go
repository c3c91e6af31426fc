/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the CLI into a logged error, a report file and
// a non-zero exit.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	applog "snapguide/internal/log"
	"snapguide/internal/telemetry"
	"snapguide/internal/version"
)

// exitFn is swapped in tests.
var exitFn = os.Exit

// Recover captures a panic, logs it with its stack, writes a report into
// reportDir (the temp dir when empty) and exits with code 2. Notes, such as
// the trace being replayed, are copied into the report.
//
// Usage: defer crash.Recover(dir, "trace=foo.json")
func Recover(reportDir string, notes ...string) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(reportDir, r, stack, notes)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err), slog.String("path", reportPath))
	}
	if _, err := fmt.Fprintf(os.Stderr, "snapguide crashed. Report: %s\nVersion: %s\nOS/Arch: %s/%s\n",
		reportPath, version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

func writeReport(dir string, panicVal any, stack []byte, notes []string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s-%s.log", stamp, uuid.New().String()[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, fmt.Errorf("create report dir: %w", err)
	}

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "SnapGuide Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	for _, n := range notes {
		_, _ = fmt.Fprintf(&buf, "Note: %s\n", n)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, fmt.Errorf("write report: %w", err)
	}
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
