/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package log configures slog for snapguide: a compact console format tuned
// for snapping traces and an optional rotating JSON file. Records carry the
// component and operation that produced them (snap/position, trace/replay ...).
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	lj "gopkg.in/natefinch/lumberjack.v2"

	"snapguide/internal/version"
)

// Options controls logger initialization. FromEnv fills it from
// SNAPGUIDE_LOG_LEVEL (debug|info|warn|error), SNAPGUIDE_LOG_FORMAT
// (console|json), SNAPGUIDE_LOG_FILE and SNAPGUIDE_LOG_SOURCE.
type Options struct {
	Level     string `env:"SNAPGUIDE_LOG_LEVEL" envDefault:"info"`
	Format    string `env:"SNAPGUIDE_LOG_FORMAT" envDefault:"console"`
	AddSource bool   `env:"SNAPGUIDE_LOG_SOURCE"`
	// File enables a rotating JSON log next to the console output.
	File string `env:"SNAPGUIDE_LOG_FILE"`
	// MaxSizeMB and MaxBackups tune rotation of File; zero picks 10 MB and 3.
	MaxSizeMB  int `env:"SNAPGUIDE_LOG_MAX_SIZE_MB"`
	MaxBackups int `env:"SNAPGUIDE_LOG_MAX_BACKUPS"`
	// Console overrides the console destination (stderr when nil).
	Console io.Writer
}

var (
	mu      sync.RWMutex
	current *slog.Logger
)

// L returns the application logger, initializing it from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Init installs the application logger and makes it slog's default.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	out := opts.Console
	if out == nil {
		out = os.Stderr
	}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource})
	} else {
		h = newConsoleHandler(out, lvl, opts.AddSource)
	}
	if strings.TrimSpace(opts.File) != "" {
		file := slog.NewJSONHandler(rotatingFile(opts), &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource})
		h = tee{h, file}
	}

	logger := slog.New(h).With(
		slog.String("app", "snapguide"),
		slog.String("ver", version.Version),
		slog.Time("ts_init", time.Now()),
	)
	mu.Lock()
	current = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

func rotatingFile(opts Options) io.Writer {
	size, backups := opts.MaxSizeMB, opts.MaxBackups
	if size <= 0 {
		size = 10
	}
	if backups <= 0 {
		backups = 3
	}
	return &lj.Logger{Filename: opts.File, MaxSize: size, MaxBackups: backups, MaxAge: 28, Compress: true}
}

// FromEnv builds Options from the environment. Unparseable values fall back
// to the defaults and are reported on stderr, since no logger exists yet.
func FromEnv() Options {
	opts, err := env.ParseAs[Options]()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "snapguide: ignoring log environment: %v\n", err)
		return Options{Level: "info", Format: "console"}
	}
	return opts
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// tee sends every record to both handlers.
type tee [2]slog.Handler

func (t tee) Enabled(ctx context.Context, l slog.Level) bool {
	return t[0].Enabled(ctx, l) || t[1].Enabled(ctx, l)
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs [2]error
	for i, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs[i] = h.Handle(ctx, r.Clone())
		}
	}
	if errs[0] != nil {
		return errs[0]
	}
	return errs[1]
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return tee{t[0].WithAttrs(attrs), t[1].WithAttrs(attrs)}
}

func (t tee) WithGroup(name string) slog.Handler {
	return tee{t[0].WithGroup(name), t[1].WithGroup(name)}
}

// consoleHandler writes one line per record:
//
//	15:04:05.000 DBG [snap/position] axis state changed from=unsnapped to=both at=(100, 100)
//
// component and op form the bracketed scope; x/y pairs print as points and
// angles in radians with degrees alongside. app, ver and ts_init stay in the
// JSON file only.
type consoleHandler struct {
	w      io.Writer
	wmu    *sync.Mutex
	level  slog.Level
	source bool
	scope  [2]string // component, op
	prefix string    // open groups joined with "."
	attrs  []slog.Attr
}

func newConsoleHandler(w io.Writer, level slog.Level, source bool) *consoleHandler {
	return &consoleHandler{w: w, wmu: &sync.Mutex{}, level: level, source: source}
}

var consoleQuiet = map[string]bool{"app": true, "ver": true, "ts_init": true}

// pointKeys maps the x key of a coordinate pair to its y key and label.
var pointKeys = map[string][2]string{"x": {"y", "at"}, "old_x": {"old_y", "from"}}

var angleKeys = map[string]bool{"angle": true, "raw": true, "target": true, "delta": true}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *consoleHandler) clone() *consoleHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		if !c.takeScope(a) {
			c.attrs = append(c.attrs, prefixed(c.prefix, a))
		}
	}
	return c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix += name + "."
	return c
}

// takeScope absorbs top-level component/op attributes into the scope.
func (h *consoleHandler) takeScope(a slog.Attr) bool {
	if h.prefix != "" {
		return false
	}
	switch a.Key {
	case "component":
		h.scope[0] = a.Value.String()
	case "op":
		h.scope[1] = a.Value.String()
	default:
		return false
	}
	return true
}

func prefixed(prefix string, a slog.Attr) slog.Attr {
	if prefix != "" {
		a.Key = prefix + a.Key
	}
	return a
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	scoped := h.clone()
	attrs := scoped.attrs
	r.Attrs(func(a slog.Attr) bool {
		if !scoped.takeScope(a) {
			attrs = append(attrs, prefixed(scoped.prefix, a))
		}
		return true
	})

	var b strings.Builder
	b.Grow(160)
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	if s := scoped.scopeString(); s != "" {
		b.WriteString(" [")
		b.WriteString(s)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	writeAttrs(&b, attrs)
	if h.source {
		if r.PC != 0 {
			f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
			b.WriteString(" src=")
			b.WriteString(f.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Line))
		}
	}
	b.WriteByte('\n')

	h.wmu.Lock()
	defer h.wmu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) scopeString() string {
	switch {
	case h.scope[0] != "" && h.scope[1] != "":
		return h.scope[0] + "/" + h.scope[1]
	case h.scope[0] != "":
		return h.scope[0]
	}
	return h.scope[1]
}

func writeAttrs(b *strings.Builder, attrs []slog.Attr) {
	used := make(map[string]bool)
	for x, pk := range pointKeys {
		_, hasX := find(attrs, x)
		_, hasY := find(attrs, pk[0])
		used[pk[0]] = hasX && hasY
	}
	for _, a := range attrs {
		if consoleQuiet[a.Key] || used[a.Key] {
			continue
		}
		b.WriteByte(' ')
		if pk, ok := pointKeys[a.Key]; ok {
			if y, found := find(attrs, pk[0]); found {
				b.WriteString(pk[1])
				b.WriteString("=(")
				b.WriteString(value(a.Value))
				b.WriteString(", ")
				b.WriteString(value(y.Value))
				b.WriteByte(')')
				continue
			}
		}
		b.WriteString(a.Key)
		b.WriteByte('=')
		if angleKeys[a.Key] && a.Value.Kind() == slog.KindFloat64 {
			rad := a.Value.Float64()
			b.WriteString(number(rad))
			b.WriteString("rad(")
			b.WriteString(number(rad * 180 / math.Pi))
			b.WriteString("°)")
			continue
		}
		b.WriteString(value(a.Value))
	}
}

func find(attrs []slog.Attr, key string) (slog.Attr, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a, true
		}
	}
	return slog.Attr{}, false
}

func value(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindFloat64:
		return number(v.Float64())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	}
	return v.String()
}

// number prints at most four decimals and drops trailing zeros.
func number(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERR"
	case l >= slog.LevelWarn:
		return "WRN"
	case l >= slog.LevelInfo:
		return "INF"
	}
	return "DBG"
}
