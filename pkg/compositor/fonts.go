// fonts.go — Font readiness service with TTF/OTF loading and embedded Go font fallback.
// Families are read from a fonts directory; anything missing renders with the
// Go fonts so text never comes out blank.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/sync/singleflight"
)

// DefaultFontTimeout bounds font warm-up.
const DefaultFontTimeout = 3 * time.Second

type variantKey struct {
	family string
	weight Weight
	slant  Slant
}

// FontService loads font families once per application session and tells
// renderers when faces are ready. It is safe for concurrent use.
type FontService struct {
	dir      string
	families []string
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	parsed   map[variantKey]*opentype.Font
	fallback map[variantKey]*opentype.Font
	lastErr  error

	ready     chan struct{}
	readyOnce sync.Once
	group     singleflight.Group
}

// FontOptions configures a FontService.
type FontOptions struct {
	Dir      string        // directory of TTF/OTF files; empty = Go fonts only
	Families []string      // families warmed up by Load
	Timeout  time.Duration // bound for Load; default 3s
	Logger   *slog.Logger
}

// NewFontService parses the embedded fallback fonts. It does not touch Dir
// until Load is called.
func NewFontService(opts FontOptions) (*FontService, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFontTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fs := &FontService{
		dir:      opts.Dir,
		families: opts.Families,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		parsed:   make(map[variantKey]*opentype.Font),
		fallback: make(map[variantKey]*opentype.Font),
		ready:    make(chan struct{}),
	}

	embedded := []struct {
		w    Weight
		s    Slant
		data []byte
	}{
		{WeightNormal, SlantNormal, goregular.TTF},
		{WeightBold, SlantNormal, gobold.TTF},
		{WeightNormal, SlantItalic, goitalic.TTF},
		{WeightBold, SlantItalic, gobolditalic.TTF},
	}
	for _, e := range embedded {
		f, err := opentype.Parse(e.data)
		if err != nil {
			return nil, fmt.Errorf("parse embedded font: %w", err)
		}
		fs.fallback[variantKey{weight: e.w, slant: e.s}] = f
	}
	return fs, nil
}

// Load warms up every configured family, bounded by the service timeout.
// The service is ready afterwards even on failure; the returned
// *FontLoadError is a warning, not a reason to stop rendering.
func (fs *FontService) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, fs.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fs.loadAll(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = &FontLoadError{Err: ErrFontTimeout}
	}

	fs.mu.Lock()
	fs.lastErr = err
	fs.mu.Unlock()
	fs.readyOnce.Do(func() { close(fs.ready) })

	if err != nil {
		fs.logger.Warn("font warm-up incomplete, using fallback faces", "error", err)
	} else {
		fs.logger.Debug("fonts ready", "families", len(fs.families))
	}
	return err
}

// Retry clears the last warning and loads again.
func (fs *FontService) Retry(ctx context.Context) error {
	fs.mu.Lock()
	fs.lastErr = nil
	fs.mu.Unlock()
	return fs.Load(ctx)
}

// IsReady reports whether Load has finished at least once.
func (fs *FontService) IsReady() bool {
	select {
	case <-fs.ready:
		return true
	default:
		return false
	}
}

// Ready is closed once the first Load finishes.
func (fs *FontService) Ready() <-chan struct{} { return fs.ready }

// Await blocks until the service is ready, ctx ends or timeout passes.
// A timeout returns ErrFontTimeout; callers then render with fallbacks.
func (fs *FontService) Await(ctx context.Context, timeout time.Duration) error {
	if fs.IsReady() {
		return nil
	}
	if timeout <= 0 {
		timeout = fs.timeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-fs.ready:
		return nil
	case <-t.C:
		return ErrFontTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the last warm-up warning, if any.
func (fs *FontService) Err() error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.lastErr
}

// Has reports whether family has at least a regular face loaded.
func (fs *FontService) Has(family string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.parsed[variantKey{family, WeightNormal, SlantNormal}]
	return ok
}

// Register adds a face from raw TTF/OTF bytes, e.g. an uploaded font.
func (fs *FontService) Register(family string, w Weight, s Slant, data []byte) error {
	if strings.TrimSpace(family) == "" {
		return invalid("Register", "empty font family")
	}
	if !w.Valid() || !s.Valid() {
		return invalid("Register", fmt.Sprintf("variant %s/%s", w, s))
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return &FontLoadError{Family: family, Err: err}
	}
	fs.mu.Lock()
	fs.parsed[variantKey{family, w, s}] = f
	fs.mu.Unlock()
	return nil
}

// LoadFamily loads one family on demand. Concurrent calls for the same
// family share one read.
func (fs *FontService) LoadFamily(ctx context.Context, family string) error {
	if fs.Has(family) {
		return nil
	}
	_, err, _ := fs.group.Do(family, func() (interface{}, error) {
		return nil, fs.loadFamily(ctx, family)
	})
	return err
}

// Face returns a face for the requested variant at sizePx. fallback is true
// when an embedded Go font stands in for the family.
func (fs *FontService) Face(family string, w Weight, s Slant, sizePx float64) (face font.Face, fallback bool, err error) {
	fs.mu.RLock()
	f, ok := fs.parsed[variantKey{family, w, s}]
	if !ok {
		f, ok = fs.parsed[variantKey{family, WeightNormal, SlantNormal}]
	}
	if !ok {
		f = fs.fallback[variantKey{weight: w, slant: s}]
		fallback = true
	}
	fs.mu.RUnlock()

	if f == nil {
		return nil, true, &FontLoadError{Family: family, Err: errors.New("no face available")}
	}

	face, err = opentype.NewFace(f, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fallback, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, fallback, nil
}

// ── Loading ──

func (fs *FontService) loadAll(ctx context.Context) error {
	if fs.dir == "" {
		return nil
	}
	var failed []string
	var firstErr error
	for _, family := range fs.families {
		if err := ctx.Err(); err != nil {
			return &FontLoadError{Err: ErrFontTimeout}
		}
		if err := fs.LoadFamily(ctx, family); err != nil {
			failed = append(failed, family)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(failed) > 0 {
		return &FontLoadError{Err: fmt.Errorf("%d families unavailable (%s): %w", len(failed), strings.Join(failed, ", "), firstErr)}
	}
	return nil
}

var variantSuffixes = []struct {
	w      Weight
	s      Slant
	suffix []string
}{
	{WeightNormal, SlantNormal, []string{"-Regular", ""}},
	{WeightBold, SlantNormal, []string{"-Bold"}},
	{WeightNormal, SlantItalic, []string{"-Italic"}},
	{WeightBold, SlantItalic, []string{"-BoldItalic"}},
}

// loadFamily reads every variant file of family present in the fonts dir.
// Only the regular face is required.
func (fs *FontService) loadFamily(ctx context.Context, family string) error {
	if fs.dir == "" {
		return &FontLoadError{Family: family, Err: errors.New("no fonts directory configured")}
	}

	bases := []string{family, strings.ReplaceAll(family, " ", "")}
	for _, v := range variantSuffixes {
		if err := ctx.Err(); err != nil {
			return &FontLoadError{Family: family, Err: err}
		}
		data, path := fs.readVariant(bases, v.suffix)
		if data == nil {
			continue
		}
		if err := fs.Register(family, v.w, v.s, data); err != nil {
			fs.logger.Warn("could not parse font file", "path", path, "error", err)
		}
	}

	if !fs.Has(family) {
		return &FontLoadError{Family: family, Err: os.ErrNotExist}
	}
	return nil
}

func (fs *FontService) readVariant(bases, suffixes []string) ([]byte, string) {
	for _, base := range bases {
		for _, suf := range suffixes {
			for _, ext := range []string{".ttf", ".otf"} {
				path := filepath.Join(fs.dir, base+suf+ext)
				data, err := os.ReadFile(path)
				if err == nil {
					return data, path
				}
			}
		}
	}
	return nil, ""
}
