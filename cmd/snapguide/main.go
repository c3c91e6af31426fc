/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"snapguide/internal/config"
	"snapguide/internal/crash"
	applog "snapguide/internal/log"
	"snapguide/internal/storage"
	"snapguide/internal/telemetry"
	"snapguide/internal/trace"
	"snapguide/internal/version"
)

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "snapguide - snapping engine replay tool")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  snapguide version|-v|--version        Show version")
	_, _ = fmt.Fprintln(w, "  snapguide validate <trace.json>       Check a trace against the schema")
	_, _ = fmt.Fprintln(w, "  snapguide replay <trace.json> [db]    Replay a trace, print steps, optionally store the report")
	_, _ = fmt.Fprintln(w, "  snapguide sessions <db>               List stored reports")
	_, _ = fmt.Fprintln(w, "  snapguide steps <db> <id>             Print the steps of a stored report")
	_, _ = fmt.Fprintln(w, "  snapguide config                      Print the effective configuration")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	cfg, cfgErr := config.Load()
	applog.Init(cfg.Logging.LogOptions())
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", cfgErr))
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintln(out, "Error: invalid config:", err)
		return 1
	}

	tcfg := telemetry.FromEnv()
	if cfg.General.TelemetryOptIn {
		tcfg.OptIn = true
	}
	telemetry.NewDefault(tcfg)

	var notes []string
	if len(args) > 1 {
		notes = append(notes, "input="+args[1])
	}
	defer crash.Recover("", notes...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	l.Debug("start", slog.Int("args", len(args)))
	if len(args) == 0 {
		usage(out)
		return 0
	}
	var err error
	switch args[0] {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(out, version.String())
		return 0
	case "validate":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(out, "validate requires <trace.json>")
			usage(out)
			return 2
		}
		err = validate(out, args[1])
	case "replay":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(out, "replay requires <trace.json>")
			usage(out)
			return 2
		}
		db := cfg.General.StorePath
		if len(args) > 2 {
			db = args[2]
		}
		err = replay(ctx, out, cfg, args[1], db)
	case "sessions":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(out, "sessions requires <db>")
			usage(out)
			return 2
		}
		err = sessions(ctx, out, args[1])
	case "steps":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(out, "steps requires <db> and <id>")
			usage(out)
			return 2
		}
		err = steps(ctx, out, args[1], args[2])
	case "config":
		var data []byte
		data, err = yaml.Marshal(cfg)
		if err == nil {
			_, _ = out.Write(data)
		}
	default:
		usage(out)
		return 2
	}
	if err != nil {
		l.Error("command failed", slog.String("cmd", args[0]), slog.Any("err", err))
		_, _ = fmt.Fprintln(out, "Error:", err)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, trace.ErrInvalid) {
			return 2
		}
		return 1
	}
	return 0
}

func validate(out io.Writer, path string) error {
	t, err := trace.Load(path)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s: ok (%d events)\n", path, len(t.Events))
	return nil
}

func replay(ctx context.Context, out io.Writer, cfg config.AppConfig, path, db string) error {
	t, err := trace.Load(path)
	if err != nil {
		return err
	}
	rep, err := trace.Replay(ctx, t, cfg.Snap.EngineOptions())
	if err != nil {
		return err
	}
	printSteps(out, rep.Steps)
	s := rep.Summary
	_, _ = fmt.Fprintf(out, "\nevents=%d locks=%d releases=%d rotation_locks=%d forced_releases=%d guide_checks=%d duration_ms=%d\n",
		s.Events, s.PositionLocks, s.PositionReleases, s.RotationLocks, s.ForcedReleases, s.GuideChecks, s.DurationMs)
	telemetry.ReplayCompleted(s)
	defer telemetry.Flush(ctx)

	if db == "" {
		return nil
	}
	st, err := storage.Open(ctx, db)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	id, err := st.SaveReport(ctx, rep)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "stored as", id)
	return nil
}

func sessions(ctx context.Context, out io.Writer, db string) error {
	st, err := storage.Open(ctx, db)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	list, err := st.ListSessions(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tCREATED\tEVENTS\tLOCKS\tFORCED\tCHECKS")
	for _, s := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", s.ID, s.Name, s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.Summary.Events, s.Summary.PositionLocks, s.Summary.ForcedReleases, s.Summary.GuideChecks)
	}
	return tw.Flush()
}

func steps(ctx context.Context, out io.Writer, db, id string) error {
	st, err := storage.Open(ctx, db)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	list, err := st.Steps(ctx, id)
	if err != nil {
		return err
	}
	printSteps(out, list)
	return nil
}

func printSteps(out io.Writer, list []trace.Step) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tAT_MS\tKIND\tX\tY\tANGLE\tSTATE\tGUIDES")
	for _, s := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%g\t%g\t%.4f\t%s\t%s\n", s.Index, s.AtMs, s.Kind,
			s.Applied.X, s.Applied.Y, s.Angle, s.State, guides(s.Guides.Horizontal, s.Guides.Vertical))
	}
	_ = tw.Flush()
}

func guides(h, v bool) string {
	switch {
	case h && v:
		return "h+v"
	case h:
		return "h"
	case v:
		return "v"
	}
	return "-"
}
