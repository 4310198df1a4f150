// config.go — YAML configuration with defaults and GOCARD_* env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Compositor CompositorConfig `yaml:"compositor"`
	Remote     RemoteConfig     `yaml:"remote"`
	Catalog    string           `yaml:"catalog"` // catalog file or .gscards bundle; empty = built-in
}

// ServerConfig holds HTTP editor API settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	ExportPerMinute int           `yaml:"export_per_minute"`
	ExportBurst     int           `yaml:"export_burst"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// LoggerConfig selects the slog handler.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout or noop
}

// CompositorConfig tunes the editing session.
type CompositorConfig struct {
	HistoryDepth   int           `yaml:"history_depth"`
	Debounce       time.Duration `yaml:"debounce"`
	FontTimeout    time.Duration `yaml:"font_timeout"`
	FontsDir       string        `yaml:"fonts_dir"`
	ZoomMin        float64       `yaml:"zoom_min"`
	ZoomMax        float64       `yaml:"zoom_max"`
	ZoomStep       float64       `yaml:"zoom_step"`
	ExportPrefix   string        `yaml:"export_prefix"`
	ShareBaseURL   string        `yaml:"share_base_url"`
	ShareMessage   string        `yaml:"share_message"`
	PreviewMaxSide int           `yaml:"preview_max_side"`
}

// RemoteConfig governs fetching templates over HTTP.
type RemoteConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxFailures     uint32        `yaml:"max_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
	BreakerInterval time.Duration `yaml:"breaker_interval"`
}

// Defaults returns a configuration usable without any file.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			SessionTTL:      30 * time.Minute,
			ExportPerMinute: 30,
			ExportBurst:     5,
			AllowedOrigins:  []string{"localhost", "localhost:*", "127.0.0.1:*"},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Compositor: CompositorConfig{
			HistoryDepth:   10,
			Debounce:       50 * time.Millisecond,
			FontTimeout:    3 * time.Second,
			ZoomMin:        0.5,
			ZoomMax:        2.0,
			ZoomStep:       0.1,
			ExportPrefix:   "greeting-card",
			ShareBaseURL:   "https://twitter.com/intent/tweet",
			ShareMessage:   "Check out my custom greeting card!",
			PreviewMaxSide: 1080,
		},
		Remote: RemoteConfig{
			Timeout:         10 * time.Second,
			MaxFailures:     5,
			BreakerTimeout:  30 * time.Second,
			BreakerInterval: time.Minute,
		},
	}
}

// Load reads the YAML file at path on top of Defaults. A missing file is not
// an error; env overrides and validation apply either way.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// defaults only
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies GOCARD_* environment variables to cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOCARD_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" && os.Getenv("GOCARD_ADDR") == "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("GOCARD_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("GOCARD_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("GOCARD_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("GOCARD_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("GOCARD_FONTS_DIR"); v != "" {
		cfg.Compositor.FontsDir = v
	}
	if v := os.Getenv("GOCARD_FONT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Compositor.FontTimeout = d
		}
	}
	if v := os.Getenv("GOCARD_HISTORY_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Compositor.HistoryDepth = n
		}
	}
	if v := os.Getenv("GOCARD_CATALOG"); v != "" {
		cfg.Catalog = v
	}
}
