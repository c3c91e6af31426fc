/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous usage events (replay counters) and
// optional crash reports. Nothing is sent unless opted in and an endpoint is set.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"

	applog "snapguide/internal/log"
	"snapguide/internal/trace"
	"snapguide/internal/version"
)

// Config holds runtime configuration for telemetry and crash uploads.
//
// Environment variables (read by FromEnv):
//   - SNAPGUIDE_TELEMETRY_OPT_IN: boolean, enables events
//   - SNAPGUIDE_TELEMETRY_URL: endpoint receiving JSON events
//   - SNAPGUIDE_CRASH_UPLOAD_URL: endpoint receiving crash reports
//   - SNAPGUIDE_TELEMETRY_TIMEOUT: request timeout, default 1500ms
//   - SNAPGUIDE_TELEMETRY_DEBUG: logs send attempts
type Config struct {
	OptIn        bool          `env:"SNAPGUIDE_TELEMETRY_OPT_IN"`
	EventsURL    string        `env:"SNAPGUIDE_TELEMETRY_URL"`
	CrashURL     string        `env:"SNAPGUIDE_CRASH_UPLOAD_URL"`
	Timeout      time.Duration `env:"SNAPGUIDE_TELEMETRY_TIMEOUT" envDefault:"1500ms"`
	DebugLogging bool          `env:"SNAPGUIDE_TELEMETRY_DEBUG"`
	QueueSize    int           `env:"SNAPGUIDE_TELEMETRY_QUEUE" envDefault:"64"`
}

// FromEnv reads Config from the environment. Unparseable values disable telemetry.
func FromEnv() Config {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		applog.WithComponent("telemetry").Warn("invalid telemetry environment, disabled", slog.Any("err", err))
		return Config{Timeout: 1500 * time.Millisecond, QueueSize: 64}
	}
	return cfg
}

// Client is a small async sender. Events go through a bounded queue and are
// dropped when it is full or the request fails.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	q       chan map[string]any
	once    sync.Once
	closed  chan struct{}
	dropped atomic.Int64
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

func getDefault() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// NewDefault replaces the package-level client.
func NewDefault(cfg Config) {
	c := New(cfg)
	defaultMu.Lock()
	old := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if old != nil {
		old.Close()
	}
}

// New constructs a client and starts its sender goroutine.
func New(cfg Config) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, cfg.QueueSize),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the default client sends events.
func Enabled() bool { return getDefault().Enabled() }

// Dropped is the number of events discarded because the queue was full.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Event queues a JSON event. props must not carry personal data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	select {
	case c.q <- payload:
	default:
		c.dropped.Add(1)
	}
}

func Event(name string, props map[string]any) { getDefault().Event(name, props) }

// ReplayCompleted reports the counters of a finished replay.
func (c *Client) ReplayCompleted(s trace.Summary) {
	c.Event("replay_completed", map[string]any{
		"events":            s.Events,
		"position_locks":    s.PositionLocks,
		"position_releases": s.PositionReleases,
		"rotation_locks":    s.RotationLocks,
		"forced_releases":   s.ForcedReleases,
		"guide_checks":      s.GuideChecks,
		"duration_ms":       s.DurationMs,
	})
}

func ReplayCompleted(s trace.Summary) { getDefault().ReplayCompleted(s) }

// Flush waits up to 500ms, or until ctx is done, for the queue to drain.
func (c *Client) Flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		if len(c.q) == 0 || time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func Flush(ctx context.Context) { getDefault().Flush(ctx) }

// Close stops the sender goroutine. Queued events are discarded.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			buf, err := json.Marshal(item)
			if err != nil {
				continue
			}
			c.post(c.cfg.EventsURL, "application/json", buf, "event")
		}
	}
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("what", what), slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.String("what", what), slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a crash report to CrashURL when opted in. It does not block.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	go c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", append([]byte(nil), report...), "crash")
}

func UploadCrash(report []byte) { getDefault().UploadCrash(report) }
