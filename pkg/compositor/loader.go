// loader.go — Template decoding from files and URLs with stale-result suppression.
// Each selection takes a new ticket; a decode that finishes after a newer
// selection is dropped instead of overwriting it.
package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultFetchTimeout    = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
	defaultBreakerInterval = time.Minute
	maxTemplateBytes       = 32 << 20
)

// Ticket identifies one template selection. Higher tickets supersede lower ones.
type Ticket uint64

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	BaseDir         string // relative refs resolve against it
	HTTPClient      *http.Client
	Timeout         time.Duration
	MaxFailures     uint32
	BreakerTimeout  time.Duration
	BreakerInterval time.Duration
	Logger          *slog.Logger
}

// Fetcher reads and decodes templates. Remote fetches go through a
// circuit breaker so a dead image host fails fast. One Fetcher is shared
// by every session.
type Fetcher struct {
	baseDir string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// NewFetcher creates a fetcher. Zero options take defaults.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = defaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = defaultBreakerTimeout
	}
	if opts.BreakerInterval <= 0 {
		opts.BreakerInterval = defaultBreakerInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	maxFailures := opts.MaxFailures
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "template-fetch",
		MaxRequests: 1,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Fetcher{
		baseDir: opts.BaseDir,
		client:  client,
		breaker: cb,
		logger:  logger,
	}
}

// Decode fetches and decodes ref synchronously. ref may be a local path,
// a file:// URL or an http(s) URL.
func (f *Fetcher) Decode(ctx context.Context, ref string) (*Template, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, &ImageLoadError{Ref: ref, Err: ErrInvalidInput}
	}
	data, err := f.fetch(ctx, ref)
	if err != nil {
		return nil, &ImageLoadError{Ref: ref, Err: err}
	}
	return DecodeTemplate(ref, data)
}

// DecodeTemplate decodes raw image bytes into a template, honoring EXIF orientation.
func DecodeTemplate(ref string, data []byte) (*Template, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ImageLoadError{Ref: ref, Err: err}
	}
	return TemplateFromImage(ref, img)
}

// TemplateFromImage wraps an already decoded image.
func TemplateFromImage(ref string, img image.Image) (*Template, error) {
	if img == nil {
		return nil, &ImageLoadError{Ref: ref, Err: errors.New("nil image")}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &ImageLoadError{Ref: ref, Err: fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())}
	}
	return &Template{
		Ref:    ref,
		Name:   templateName(ref),
		Width:  b.Dx(),
		Height: b.Dy(),
		Image:  img,
	}, nil
}

// BreakerState reports the remote fetch breaker state.
func (f *Fetcher) BreakerState() gobreaker.State { return f.breaker.State() }

// Loader orders the template selections of one session. Each selection
// takes a ticket; only the latest ticket's result is delivered.
type Loader struct {
	fetcher *Fetcher
	latest  atomic.Uint64
}

// NewLoader creates a loader on top of a shared fetcher.
func NewLoader(f *Fetcher) *Loader {
	if f == nil {
		f = NewFetcher(FetcherOptions{})
	}
	return &Loader{fetcher: f}
}

// Begin takes a fresh ticket, superseding every earlier one.
func (l *Loader) Begin() Ticket { return Ticket(l.latest.Add(1)) }

// Current reports whether t is still the latest selection.
func (l *Loader) Current(t Ticket) bool { return uint64(t) == l.latest.Load() }

// Decode delegates to the fetcher.
func (l *Loader) Decode(ctx context.Context, ref string) (*Template, error) {
	return l.fetcher.Decode(ctx, ref)
}

// Load decodes ref in the background. done runs only when the decode
// finishes while its ticket is still current; stale results are discarded.
func (l *Loader) Load(ctx context.Context, ref string, done func(Ticket, *Template, error)) Ticket {
	t := l.Begin()
	go func() {
		tmpl, err := l.fetcher.Decode(ctx, ref)
		if !l.Current(t) {
			l.fetcher.logger.Debug("discarding stale template load", "ref", ref, "ticket", t)
			return
		}
		done(t, tmpl, err)
	}()
	return t
}

// ── Fetching ──

func (f *Fetcher) fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return f.fetchRemote(ctx, ref)
		case "file":
			return readLimited(u.Path)
		}
	}
	path := ref
	if !filepath.IsAbs(path) && f.baseDir != "" {
		path = filepath.Join(f.baseDir, path)
	}
	return readLimited(path)
}

func (f *Fetcher) fetchRemote(ctx context.Context, ref string) ([]byte, error) {
	data, err := f.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxTemplateBytes))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("template host unavailable: %w", err)
	}
	return data, err
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxTemplateBytes))
}

func templateName(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		ref = u.Path
	}
	base := filepath.Base(ref)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
