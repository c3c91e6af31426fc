/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	applog "snapguide/internal/log"
	"snapguide/internal/snap"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type SnapConfig struct {
	CaptureBand          float64 `yaml:"capture_band" env:"SNAPGUIDE_CAPTURE_BAND"`
	UnsnapThreshold      float64 `yaml:"unsnap_threshold" env:"SNAPGUIDE_UNSNAP_THRESHOLD"`
	UnsnapAngleThreshold float64 `yaml:"unsnap_angle_threshold" env:"SNAPGUIDE_UNSNAP_ANGLE_THRESHOLD"`
	MaxMoveCount         int     `yaml:"max_move_count" env:"SNAPGUIDE_MAX_MOVE_COUNT"`
	GuideDelayMs         int     `yaml:"guide_delay_ms" env:"SNAPGUIDE_GUIDE_DELAY_MS"`
	Axes                 string  `yaml:"axes" env:"SNAPGUIDE_AXES"` // "both" | "horizontal" | "vertical"
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in" env:"SNAPGUIDE_TELEMETRY_OPT_IN"`
	StorePath      string `yaml:"store_path" env:"SNAPGUIDE_STORE"` // default SQLite file for replay reports
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"SNAPGUIDE_LOG_LEVEL"`
	Format string `yaml:"format" env:"SNAPGUIDE_LOG_FORMAT"`
	Source bool   `yaml:"source" env:"SNAPGUIDE_LOG_SOURCE"`
	File   string `yaml:"file" env:"SNAPGUIDE_LOG_FILE"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Snap          SnapConfig    `yaml:"snap"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	o := snap.DefaultOptions()
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Snap: SnapConfig{
			CaptureBand:          o.CaptureBand,
			UnsnapThreshold:      o.UnsnapThreshold,
			UnsnapAngleThreshold: o.UnsnapAngleThreshold,
			MaxMoveCount:         o.MaxMoveCount,
			GuideDelayMs:         int(o.GuideDelay / time.Millisecond),
			Axes:                 o.Axes.String(),
		},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvCaptureBand          = "SNAPGUIDE_CAPTURE_BAND"
	EnvUnsnapThreshold      = "SNAPGUIDE_UNSNAP_THRESHOLD"
	EnvUnsnapAngleThreshold = "SNAPGUIDE_UNSNAP_ANGLE_THRESHOLD"
	EnvMaxMoveCount         = "SNAPGUIDE_MAX_MOVE_COUNT"
	EnvGuideDelayMs         = "SNAPGUIDE_GUIDE_DELAY_MS"
	EnvAxes                 = "SNAPGUIDE_AXES"
	EnvTelemetryOptIn       = "SNAPGUIDE_TELEMETRY_OPT_IN"
	EnvStorePath            = "SNAPGUIDE_STORE"
	EnvLogLevel             = "SNAPGUIDE_LOG_LEVEL"
	EnvLogFormat            = "SNAPGUIDE_LOG_FORMAT"
	EnvLogSource            = "SNAPGUIDE_LOG_SOURCE"
	EnvLogFile              = "SNAPGUIDE_LOG_FILE"
)

var envByKey = map[string]string{
	"snap.capture_band":           EnvCaptureBand,
	"snap.unsnap_threshold":       EnvUnsnapThreshold,
	"snap.unsnap_angle_threshold": EnvUnsnapAngleThreshold,
	"snap.max_move_count":         EnvMaxMoveCount,
	"snap.guide_delay_ms":         EnvGuideDelayMs,
	"snap.axes":                   EnvAxes,
	"general.telemetry_opt_in":    EnvTelemetryOptIn,
	"general.store_path":          EnvStorePath,
	"logging.level":               EnvLogLevel,
	"logging.format":              EnvLogFormat,
	"logging.source":              EnvLogSource,
	"logging.file":                EnvLogFile,
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "SnapGuide")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "SnapGuide")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "snapguide")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "snapguide")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path. A missing file is not an error;
// a malformed one is logged and ignored so a bad edit never blocks startup.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		} else {
			applog.WithComponent("config").Warn("ignoring malformed config file", "path", path, "err", err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the user config YAML to ConfigPath.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes cfg as YAML to path, creating parent directories.
func SaveTo(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if strings.TrimSpace(src.General.StorePath) != "" {
		dst.General.StorePath = strings.TrimSpace(src.General.StorePath)
	}
	// snap: zero in the file means "not set"; a zero threshold can still be
	// forced through the environment.
	if src.Snap.CaptureBand != 0 {
		dst.Snap.CaptureBand = src.Snap.CaptureBand
	}
	if src.Snap.UnsnapThreshold != 0 {
		dst.Snap.UnsnapThreshold = src.Snap.UnsnapThreshold
	}
	if src.Snap.UnsnapAngleThreshold != 0 {
		dst.Snap.UnsnapAngleThreshold = src.Snap.UnsnapAngleThreshold
	}
	if src.Snap.MaxMoveCount != 0 {
		dst.Snap.MaxMoveCount = src.Snap.MaxMoveCount
	}
	if src.Snap.GuideDelayMs != 0 {
		dst.Snap.GuideDelayMs = src.Snap.GuideDelayMs
	}
	if strings.TrimSpace(src.Snap.Axes) != "" {
		dst.Snap.Axes = strings.ToLower(strings.TrimSpace(src.Snap.Axes))
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.Snap.Axes = strings.ToLower(strings.TrimSpace(cfg.Snap.Axes))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	return nil
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envByKey[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Validate rejects values the engines cannot use.
func (c AppConfig) Validate() error {
	var errs []error
	s := c.Snap
	if s.CaptureBand < 0 {
		errs = append(errs, fmt.Errorf("snap.capture_band must not be negative (got %v)", s.CaptureBand))
	}
	if s.UnsnapThreshold < 0 {
		errs = append(errs, fmt.Errorf("snap.unsnap_threshold must not be negative (got %v)", s.UnsnapThreshold))
	}
	if s.UnsnapAngleThreshold < 0 {
		errs = append(errs, fmt.Errorf("snap.unsnap_angle_threshold must not be negative (got %v)", s.UnsnapAngleThreshold))
	}
	if s.MaxMoveCount < 0 {
		errs = append(errs, fmt.Errorf("snap.max_move_count must not be negative (got %d)", s.MaxMoveCount))
	}
	if s.GuideDelayMs < 0 {
		errs = append(errs, fmt.Errorf("snap.guide_delay_ms must not be negative (got %d)", s.GuideDelayMs))
	}
	if _, err := snap.ParseAxes(s.Axes); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EngineOptions converts the snap section into engine options. Call Validate first;
// an unknown axes value falls back to both.
func (s SnapConfig) EngineOptions() snap.Options {
	axes, _ := snap.ParseAxes(s.Axes)
	return snap.Options{
		CaptureBand:          s.CaptureBand,
		UnsnapThreshold:      s.UnsnapThreshold,
		UnsnapAngleThreshold: s.UnsnapAngleThreshold,
		MaxMoveCount:         s.MaxMoveCount,
		GuideDelay:           time.Duration(s.GuideDelayMs) * time.Millisecond,
		Axes:                 axes,
	}
}

// LogOptions converts the logging section into logger options.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
