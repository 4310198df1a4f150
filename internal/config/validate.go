package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateCompositor(cfg, ve)
	validateRemote(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	}
	if cfg.Server.ExportPerMinute <= 0 {
		ve.Add("server.export_per_minute must be > 0")
	}
	if cfg.Server.ExportBurst <= 0 {
		ve.Add("server.export_burst must be > 0")
	}
	if cfg.Server.SessionTTL <= 0 {
		ve.Add("server.session_ttl must be > 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q must be stdout or noop", cfg.Tracer.Exporter)
	}
}

func validateCompositor(cfg *Config, ve *ValidationError) {
	c := cfg.Compositor
	if c.HistoryDepth <= 0 {
		ve.Add("compositor.history_depth must be > 0")
	}
	if c.Debounce < 0 {
		ve.Add("compositor.debounce must be >= 0")
	}
	if c.FontTimeout <= 0 {
		ve.Add("compositor.font_timeout must be > 0")
	}
	if c.ZoomMin <= 0 || c.ZoomMax < c.ZoomMin {
		ve.Add("compositor.zoom_min/zoom_max must satisfy 0 < min <= max")
	}
	if c.ZoomStep <= 0 {
		ve.Add("compositor.zoom_step must be > 0")
	}
	if c.PreviewMaxSide <= 0 {
		ve.Add("compositor.preview_max_side must be > 0")
	}
}

func validateRemote(cfg *Config, ve *ValidationError) {
	if cfg.Remote.Timeout <= 0 {
		ve.Add("remote.timeout must be > 0")
	}
	if cfg.Remote.MaxFailures == 0 {
		ve.Add("remote.max_failures must be > 0")
	}
}
