// app.go — Config, logging, tracing and compositor services shared by the subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/xob0t/GoCard/internal/config"
	"github.com/xob0t/GoCard/internal/logger"
	"github.com/xob0t/GoCard/internal/tracer"
	"github.com/xob0t/GoCard/pkg/catalog"
	"github.com/xob0t/GoCard/pkg/compositor"
)

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  *catalog.Catalog
	fonts    *compositor.FontService
	services compositor.Services
	cleanups []func()
}

// setup loads configuration and builds the compositor services. A
// non-empty catalogPath overrides the configured catalog.
func setup(ctx context.Context, configPath, catalogPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if catalogPath != "" {
		cfg.Catalog = catalogPath
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	a := &app{cfg: cfg, logger: log}
	a.cleanups = append(a.cleanups, func() { closeLog() })

	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.cleanups = append(a.cleanups, func() { shutdown(context.Background()) })

	if cfg.Catalog != "" {
		c, cleanup, err := catalog.Load(cfg.Catalog)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("catalog: %w", err)
		}
		a.catalog = c
		a.cleanups = append(a.cleanups, cleanup)
		for _, w := range catalog.Validate(c) {
			log.Warn("catalog", "warning", w)
		}
	}

	fontsDir := cfg.Compositor.FontsDir
	if fontsDir == "" && a.catalog != nil {
		fontsDir = a.catalog.ResolvedFontsDir()
	}
	a.fonts, err = compositor.NewFontService(compositor.FontOptions{
		Dir:      fontsDir,
		Families: profileFonts(),
		Timeout:  cfg.Compositor.FontTimeout,
		Logger:   log,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	renderer := compositor.NewRenderer(a.fonts, compositor.RendererOptions{
		FontWait:       cfg.Compositor.FontTimeout,
		PreviewMaxSide: cfg.Compositor.PreviewMaxSide,
		Logger:         log,
	})
	a.services = compositor.Services{
		Fetcher: compositor.NewFetcher(compositor.FetcherOptions{
			Timeout:         cfg.Remote.Timeout,
			MaxFailures:     cfg.Remote.MaxFailures,
			BreakerTimeout:  cfg.Remote.BreakerTimeout,
			BreakerInterval: cfg.Remote.BreakerInterval,
			Logger:          log,
		}),
		Renderer: renderer,
		Exporter: compositor.NewExporter(renderer, cfg.Compositor.ExportPrefix),
	}
	return a, nil
}

// loadFonts warms up the font service. A failure is logged, not returned:
// rendering falls back to the embedded faces.
func (a *app) loadFonts(ctx context.Context) {
	if err := a.fonts.Load(ctx); err != nil {
		a.logger.Warn("fonts unavailable, using fallback faces", "error", err)
	}
}

func (a *app) profile(occasion string) (*compositor.Profile, error) {
	if a.catalog != nil {
		return a.catalog.ProfileFor(occasion)
	}
	if p, ok := compositor.Profiles()[occasion]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown occasion %q", occasion)
}

func (a *app) sessionOptions(p *compositor.Profile) compositor.SessionOptions {
	c := a.cfg.Compositor
	return compositor.SessionOptions{
		Profile:      p,
		HistoryDepth: c.HistoryDepth,
		Debounce:     c.Debounce,
		Zoom:         compositor.ZoomRange{Min: c.ZoomMin, Max: c.ZoomMax, Step: c.ZoomStep},
		Logger:       a.logger,
	}
}

func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// profileFonts lists every family the built-in profiles offer.
func profileFonts() []string {
	var all []string
	for _, p := range compositor.Profiles() {
		all = append(all, p.AllFonts()...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}
