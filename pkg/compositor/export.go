// export.go — Full-resolution PNG export and the sinks that receive it.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/xob0t/GoCard/pkg/generator"
)

// DefaultExportPrefix starts every exported file name.
const DefaultExportPrefix = "greeting-card"

// Artifact is an encoded card ready for delivery.
type Artifact struct {
	Name   string // e.g. "greeting-card-Aisha-Omar.png"
	MIME   string
	Data   []byte
	Width  int
	Height int
}

// Sink receives a finished artifact. It is never called with partial output.
type Sink interface {
	Deliver(ctx context.Context, a Artifact) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a Artifact) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, a Artifact) error { return f(ctx, a) }

var unsafeName = regexp.MustCompile(`[\s/\\:*?"<>|]+`)

// FileName builds "<prefix>-<name-with-dashes>.png".
func FileName(prefix, text string) string {
	if prefix == "" {
		prefix = DefaultExportPrefix
	}
	name := unsafeName.ReplaceAllString(strings.TrimSpace(text), "-")
	return prefix + "-" + name + ".png"
}

// Exporter validates, renders and encodes cards.
type Exporter struct {
	renderer *Renderer
	prefix   string
	encode   func(image.Image) ([]byte, error)
}

// NewExporter creates an exporter. An empty prefix uses DefaultExportPrefix.
func NewExporter(r *Renderer, prefix string) *Exporter {
	if prefix == "" {
		prefix = DefaultExportPrefix
	}
	return &Exporter{renderer: r, prefix: prefix, encode: generator.PNGBytes}
}

// Build produces the artifact without delivering it.
func (x *Exporter) Build(ctx context.Context, tmpl *Template, style Style, anchor Point) (Artifact, error) {
	if tmpl == nil {
		return Artifact{}, &ExportValidationError{Reason: ErrNoTemplate}
	}
	if strings.TrimSpace(style.Text) == "" {
		return Artifact{}, &ExportValidationError{Reason: ErrEmptyText}
	}

	// Fonts are awaited here even though Render waits too, so an export
	// never races a warm-up that the preview already gave up on.
	if fs := x.renderer.Fonts(); fs != nil {
		if err := fs.Await(ctx, x.renderer.fontWait); err != nil && ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
	}

	img, err := x.renderer.Render(ctx, tmpl, style, anchor)
	if err != nil {
		return Artifact{}, &ExportEncodingError{Err: err}
	}
	data, err := x.encode(img)
	if err != nil {
		return Artifact{}, &ExportEncodingError{Err: err}
	}
	return Artifact{
		Name:   FileName(x.prefix, style.Text),
		MIME:   "image/png",
		Data:   data,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// Export builds the artifact and hands it to sink.
func (x *Exporter) Export(ctx context.Context, tmpl *Template, style Style, anchor Point, sink Sink) (Artifact, error) {
	a, err := x.Build(ctx, tmpl, style, anchor)
	if err != nil {
		return Artifact{}, err
	}
	if sink == nil {
		return a, nil
	}
	if err := sink.Deliver(ctx, a); err != nil {
		return a, fmt.Errorf("deliver %s: %w", a.Name, err)
	}
	return a, nil
}

// ── Sinks ──

// FileSink writes artifacts into Dir under their file name.
type FileSink struct {
	Dir string

	mu   sync.Mutex
	path string
}

// Deliver writes the file atomically via a temp file in Dir.
func (s *FileSink) Deliver(_ context.Context, a Artifact) error {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".gocard-*.png")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	dst := filepath.Join(dir, a.Name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	s.mu.Lock()
	s.path = dst
	s.mu.Unlock()
	return nil
}

// Path returns the last written file.
func (s *FileSink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// PathSink writes to one fixed path regardless of the artifact name.
type PathSink string

// Deliver writes the artifact to the path.
func (p PathSink) Deliver(_ context.Context, a Artifact) error {
	return os.WriteFile(string(p), a.Data, 0o644)
}

// WriterSink streams the artifact to W.
type WriterSink struct {
	W io.Writer
}

// Deliver copies the PNG bytes to W.
func (s WriterSink) Deliver(_ context.Context, a Artifact) error {
	_, err := s.W.Write(a.Data)
	return err
}

// ErrShareUnsupported is returned by a native share hook that cannot share files.
var ErrShareUnsupported = errors.New("native share unsupported")

// ShareLink is the fallback when native sharing is unavailable.
type ShareLink struct {
	URL    string `json:"url"`
	QRCode []byte `json:"qrCode,omitempty"` // PNG encoding URL
}

// ShareSink tries Native first; when it is nil or reports
// ErrShareUnsupported, it builds a pre-filled social share link and a QR
// code for it.
type ShareSink struct {
	Native  func(ctx context.Context, a Artifact) error
	BaseURL string // e.g. https://twitter.com/intent/tweet
	Message string
	QRSize  int

	mu   sync.Mutex
	link *ShareLink
}

// Deliver shares the artifact.
func (s *ShareSink) Deliver(ctx context.Context, a Artifact) error {
	if s.Native != nil {
		err := s.Native(ctx, a)
		if !errors.Is(err, ErrShareUnsupported) {
			return err
		}
	}

	u, err := ShareURL(s.BaseURL, s.Message)
	if err != nil {
		return err
	}
	qr, err := generator.QRCodePNG(u, s.QRSize)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.link = &ShareLink{URL: u, QRCode: qr}
	s.mu.Unlock()
	return nil
}

// Link returns the fallback link, or nil when native sharing succeeded.
func (s *ShareSink) Link() *ShareLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// ShareURL appends the message as the "text" query parameter of base.
func ShareURL(base, message string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", invalid("ShareURL", fmt.Sprintf("base URL %q", base))
	}
	q := u.Query()
	q.Set("text", message)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
