// session.go — Card compositor session: template, editor, preview scheduling and export.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xob0t/GoCard/internal/tracer"
)

// Services are shared by every session of a process.
type Services struct {
	Fetcher  *Fetcher
	Renderer *Renderer
	Exporter *Exporter
}

// SessionOptions configures one session.
type SessionOptions struct {
	Profile      *Profile
	HistoryDepth int
	Debounce     time.Duration
	Zoom         ZoomRange
	Logger       *slog.Logger
}

// WarningKind classifies a dismissible warning.
type WarningKind string

const (
	WarningFonts    WarningKind = "fonts"
	WarningTemplate WarningKind = "template"
	WarningRender   WarningKind = "render"
)

// Warning is a non-fatal problem shown to the user until dismissed.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// Preview is a rendered preview frame published to subscribers.
type Preview struct {
	Seq   uint64
	Image *image.NRGBA
	Zoom  float64
}

// TemplateInfo describes the selected template.
type TemplateInfo struct {
	Ref    string `json:"ref"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// View is the observable state of a session.
type View struct {
	Profile     string        `json:"profile"`
	Template    *TemplateInfo `json:"template,omitempty"`
	Style       Style         `json:"style"`
	Placement   Point         `json:"placement"`
	Interaction string        `json:"interaction"`
	HistoryLen  int           `json:"historyLen"`
	Zoom        float64       `json:"zoom"`
	Fonts       []string      `json:"fonts"`
	Presets     []string      `json:"presets"`
	Warnings    []Warning     `json:"warnings"`
}

// Session is one card being edited. All methods are safe for concurrent use.
type Session struct {
	svc    Services
	loader *Loader
	logger *slog.Logger

	mu        sync.Mutex
	editor    *Editor
	tmpl      *Template
	zoom      float64
	zoomRange ZoomRange
	displayW  int
	displayH  int
	warnings  map[WarningKind]string
	fontsSeen bool
	closed    bool

	debouncer *Debouncer
	renderSeq uint64
	subs      map[int]func(Preview)
	nextSub   int
}

// NewSession creates a session with no template selected.
func NewSession(svc Services, opts SessionOptions) (*Session, error) {
	if svc.Renderer == nil {
		return nil, errors.New("session requires a renderer")
	}
	if svc.Exporter == nil {
		svc.Exporter = NewExporter(svc.Renderer, "")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Zoom == (ZoomRange{}) {
		opts.Zoom = DefaultZoom
	}
	if opts.HistoryDepth <= 0 {
		opts.HistoryDepth = DefaultHistoryDepth
	}

	editor, err := NewEditor(opts.Profile, opts.HistoryDepth)
	if err != nil {
		return nil, err
	}

	return &Session{
		svc:       svc,
		loader:    NewLoader(svc.Fetcher),
		logger:    opts.Logger,
		editor:    editor,
		zoom:      opts.Zoom.Clamp(1),
		zoomRange: opts.Zoom,
		warnings:  make(map[WarningKind]string),
		debouncer: NewDebouncer(opts.Debounce),
		subs:      make(map[int]func(Preview)),
	}, nil
}

// ── Template selection ──

// SelectTemplate loads ref and binds it. If another selection starts
// before this one finishes, the result is dropped and ErrStaleLoad returned.
func (s *Session) SelectTemplate(ctx context.Context, ref string) error {
	ctx, span := tracer.StartSpan(ctx, "compositor.select_template")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("template.ref", ref))

	t := s.loader.Begin()
	tmpl, err := s.loader.Decode(ctx, ref)
	if err = s.applyLoad(t, ref, tmpl, err); err != nil && !errors.Is(err, ErrStaleLoad) {
		tracer.RecordError(span, err)
	}
	return err
}

// SelectTemplateAsync loads ref in the background. done, if set, runs
// with the outcome unless a newer selection superseded this one.
func (s *Session) SelectTemplateAsync(ctx context.Context, ref string, done func(error)) Ticket {
	return s.loader.Load(ctx, ref, func(t Ticket, tmpl *Template, err error) {
		err = s.applyLoad(t, ref, tmpl, err)
		if done != nil && !errors.Is(err, ErrStaleLoad) {
			done(err)
		}
	})
}

// UseTemplate binds an already decoded template, e.g. an upload.
func (s *Session) UseTemplate(tmpl *Template) error {
	if tmpl == nil {
		return ErrNoTemplate
	}
	return s.applyLoad(s.loader.Begin(), tmpl.Ref, tmpl, nil)
}

func (s *Session) applyLoad(t Ticket, ref string, tmpl *Template, loadErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if !s.loader.Current(t) {
		s.logger.Debug("template load superseded", "ref", ref)
		return ErrStaleLoad
	}

	if loadErr != nil {
		s.tmpl = nil
		s.debouncer.Cancel()
		s.warnings[WarningTemplate] = loadErr.Error()
		s.logger.Warn("template load failed", "ref", ref, "error", loadErr)
		return loadErr
	}

	s.tmpl = tmpl
	delete(s.warnings, WarningTemplate)
	s.editor.Bind(tmpl.Width, tmpl.Height)
	s.logger.Info("template selected", "ref", ref, "width", tmpl.Width, "height", tmpl.Height)
	s.scheduleLocked()
	return nil
}

// Template returns the bound template, or nil.
func (s *Session) Template() *Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tmpl
}

// ── Editing ──

// mutate runs fn on the editor and schedules a preview on success.
func (s *Session) mutate(fn func(e *Editor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := fn(s.editor); err != nil {
		return err
	}
	s.scheduleLocked()
	return nil
}

func (s *Session) SetText(text string) error {
	return s.mutate(func(e *Editor) error { return e.SetText(text) })
}

func (s *Session) SetColor(hex string) error {
	return s.mutate(func(e *Editor) error { return e.SetColor(hex) })
}

func (s *Session) SetFontFamily(family string) error {
	return s.mutate(func(e *Editor) error { return e.SetFontFamily(family) })
}

func (s *Session) SetWeight(w Weight) error {
	return s.mutate(func(e *Editor) error { return e.SetWeight(w) })
}

func (s *Session) SetSlant(sl Slant) error {
	return s.mutate(func(e *Editor) error { return e.SetSlant(sl) })
}

func (s *Session) SetFontStyle(style string) error {
	return s.mutate(func(e *Editor) error { return e.SetFontStyle(style) })
}

func (s *Session) SetFontSize(px float64) error {
	return s.mutate(func(e *Editor) error { return e.SetFontSize(px) })
}

func (s *Session) SetShadowRadius(px float64) error {
	return s.mutate(func(e *Editor) error { return e.SetShadowRadius(px) })
}

func (s *Session) SetLanguage(lang Language) error {
	return s.mutate(func(e *Editor) error { return e.SetLanguage(lang) })
}

// ApplyPreset applies a named preset as one undoable edit.
func (s *Session) ApplyPreset(name string) error {
	return s.mutate(func(e *Editor) error { return e.ApplyPreset(name) })
}

// Reset restores the profile defaults.
func (s *Session) Reset() error {
	return s.mutate(func(e *Editor) error { return e.Reset() })
}

// Undo reverts the last edit. It reports false when history is empty.
func (s *Session) Undo() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	if !s.editor.Undo() {
		return false, nil
	}
	s.scheduleLocked()
	return true, nil
}

// Click snaps the anchor to a screen point over the display rect.
func (s *Session) Click(sx, sy float64, rect Rect) error {
	return s.mutate(func(e *Editor) error { return e.Click(sx, sy, rect) })
}

// MoveTo places the anchor at an image-space point.
func (s *Session) MoveTo(p Point) error {
	return s.mutate(func(e *Editor) error { return e.MoveTo(p) })
}

func (s *Session) PointerDown(sx, sy float64, rect Rect) error {
	return s.mutate(func(e *Editor) error { return e.PointerDown(sx, sy, rect) })
}

func (s *Session) PointerMove(sx, sy float64, rect Rect) (Point, error) {
	var p Point
	err := s.mutate(func(e *Editor) error {
		var err error
		p, err = e.PointerMove(sx, sy, rect)
		return err
	})
	return p, err
}

// PointerUp ends a drag; it reports whether one was in progress.
func (s *Session) PointerUp() bool {
	var was bool
	s.mutate(func(e *Editor) error {
		was = e.PointerUp()
		return nil
	})
	return was
}

// ── Zoom and display ──

// SetZoom clamps and applies a preview zoom. Placement and export are unaffected.
func (s *Session) SetZoom(z float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = s.zoomRange.Clamp(z)
	s.scheduleLocked()
	return s.zoom
}

// ZoomIn raises the zoom by one step.
func (s *Session) ZoomIn() float64 { return s.stepZoom(1) }

// ZoomOut lowers the zoom by one step.
func (s *Session) ZoomOut() float64 { return s.stepZoom(-1) }

func (s *Session) stepZoom(dir float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = s.zoomRange.Clamp(s.zoom + dir*s.zoomRange.Step)
	s.scheduleLocked()
	return s.zoom
}

// Zoom returns the preview zoom.
func (s *Session) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

// SetDisplay sets the size of the preview surface used for published previews.
func (s *Session) SetDisplay(w, h int) error {
	if w < 0 || h < 0 {
		return invalid("SetDisplay", fmt.Sprintf("display %dx%d", w, h))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayW, s.displayH = w, h
	s.scheduleLocked()
	return nil
}

// ── Rendering ──

// OnPreview subscribes fn to rendered previews. The returned func unsubscribes.
func (s *Session) OnPreview(fn func(Preview)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Refresh schedules a preview render, e.g. after fonts finished loading.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked()
}

func (s *Session) scheduleLocked() {
	if s.closed || s.tmpl == nil || len(s.subs) == 0 {
		return
	}
	s.debouncer.Schedule(s.publish)
}

// publish renders the latest state and hands it to subscribers.
func (s *Session) publish() {
	s.mu.Lock()
	if s.closed || s.tmpl == nil {
		s.mu.Unlock()
		return
	}
	s.renderSeq++
	seq := s.renderSeq
	tmpl, style, anchor := s.tmpl, s.editor.Style(), s.editor.Anchor()
	w, h, zoom := s.displayW, s.displayH, s.zoom
	s.mu.Unlock()

	img, err := s.svc.Renderer.RenderPreview(context.Background(), tmpl, style, anchor, w, h, zoom)
	s.deliver(Preview{Seq: seq, Image: img, Zoom: zoom}, err)
}

// deliver records the outcome of one render and fans the frame out, but
// only while it is still the newest render.
func (s *Session) deliver(p Preview, err error) {
	s.mu.Lock()
	if s.closed || p.Seq != s.renderSeq {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.warnings[WarningRender] = err.Error()
		s.mu.Unlock()
		s.logger.Warn("preview render failed", "error", err)
		return
	}
	delete(s.warnings, WarningRender)
	subs := make([]func(Preview), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// Preview renders the preview synchronously at displayW×displayH times
// the current zoom. Zero dimensions fit the template into the default side.
func (s *Session) Preview(ctx context.Context, displayW, displayH int) (*image.NRGBA, error) {
	ctx, span := tracer.StartSpan(ctx, "compositor.preview")
	defer span.End()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	tmpl, style, anchor, zoom := s.tmpl, s.editor.Style(), s.editor.Anchor(), s.zoom
	s.mu.Unlock()

	if tmpl == nil {
		return nil, ErrNoTemplate
	}
	img, err := s.svc.Renderer.RenderPreview(ctx, tmpl, style, anchor, displayW, displayH, zoom)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	return img, nil
}

// Export renders the card at native resolution and delivers it to sink.
func (s *Session) Export(ctx context.Context, sink Sink) (Artifact, error) {
	ctx, span := tracer.StartSpan(ctx, "compositor.export")
	defer span.End()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Artifact{}, ErrSessionClosed
	}
	tmpl, style, anchor := s.tmpl, s.editor.Style(), s.editor.Anchor()
	s.mu.Unlock()

	a, err := s.svc.Exporter.Export(ctx, tmpl, style, anchor, sink)
	if err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("export failed", "error", err)
		return Artifact{}, err
	}
	span.SetAttributes(tracer.StringAttr("export.name", a.Name), tracer.IntAttr("export.bytes", len(a.Data)))
	s.logger.Info("card exported", "name", a.Name, "width", a.Width, "height", a.Height)
	return a, nil
}

// ── State ──

// Snapshot returns the current style and placement.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Snapshot()
}

// View returns the full observable state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	style := s.editor.Style()
	v := View{
		Profile:     s.editor.Profile().Name,
		Style:       style,
		Placement:   s.editor.Anchor(),
		Interaction: s.editor.Interaction().String(),
		HistoryLen:  s.editor.HistoryLen(),
		Zoom:        s.zoom,
		Fonts:       append([]string(nil), s.editor.Profile().Fonts[style.Language]...),
		Presets:     s.editor.Profile().PresetNames(),
		Warnings:    s.warningsLocked(),
	}
	if t := s.tmpl; t != nil {
		v.Template = &TemplateInfo{Ref: t.Ref, Name: t.Name, Width: t.Width, Height: t.Height}
	}
	return v
}

// Warnings returns active warnings sorted by kind.
func (s *Session) Warnings() []Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warningsLocked()
}

func (s *Session) warningsLocked() []Warning {
	if fs := s.svc.Renderer.Fonts(); fs != nil && !s.fontsSeen {
		if err := fs.Err(); err != nil {
			s.warnings[WarningFonts] = err.Error()
		}
	}
	out := make([]Warning, 0, len(s.warnings))
	for k, msg := range s.warnings {
		out = append(out, Warning{Kind: k, Message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// DismissWarning hides a warning. It reports whether one was shown.
func (s *Session) DismissWarning(kind WarningKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == WarningFonts {
		s.fontsSeen = true
	}
	_, ok := s.warnings[kind]
	delete(s.warnings, kind)
	return ok
}

// RetryFonts reloads fonts and re-renders the preview.
func (s *Session) RetryFonts(ctx context.Context) error {
	fs := s.svc.Renderer.Fonts()
	if fs == nil {
		return nil
	}
	err := fs.Retry(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fontsSeen = false
	delete(s.warnings, WarningFonts)
	s.scheduleLocked()
	return err
}

// Close cancels pending renders and drops subscribers. Later calls fail
// with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.debouncer.Close()
	s.subs = map[int]func(Preview){}
	s.tmpl = nil
}
