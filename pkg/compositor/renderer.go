// renderer.go — Draws the styled name over a template at native resolution.
// Layers: template copy -> blurred drop shadow -> fill text. The preview is
// the same raster scaled to the display surface and zoomed.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/text/unicode/bidi"

	"github.com/xob0t/GoCard/pkg/generator"
)

// shadowColor is the drop shadow, rgba(0,0,0,0.7).
var shadowColor = color.NRGBA{R: 0, G: 0, B: 0, A: 179}

const lineSpacing = 1.2

// ── Zoom ──

// ZoomRange bounds the preview zoom factor.
type ZoomRange struct {
	Min, Max, Step float64
}

// DefaultZoom is 0.5× to 2.0× in 0.1 steps.
var DefaultZoom = ZoomRange{Min: 0.5, Max: 2.0, Step: 0.1}

// Clamp limits z to the range and snaps it to the step grid.
func (zr ZoomRange) Clamp(z float64) float64 {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 1
	}
	if zr.Step > 0 {
		z = math.Round(z/zr.Step) * zr.Step
		// keep 1.1 from becoming 1.1000000000000001
		z = math.Round(z*1e6) / 1e6
	}
	return math.Max(zr.Min, math.Min(zr.Max, z))
}

// ClampZoom clamps z with DefaultZoom.
func ClampZoom(z float64) float64 { return DefaultZoom.Clamp(z) }

// ── Renderer ──

// RendererOptions configures a Renderer.
type RendererOptions struct {
	FontWait       time.Duration // bound on waiting for fonts; default 3s
	PreviewMaxSide int           // preview size when no display size is given
	Logger         *slog.Logger
}

// Renderer composites text onto templates. It holds no per-card state and
// is safe for concurrent use.
type Renderer struct {
	fonts          *FontService
	fontWait       time.Duration
	previewMaxSide int
	logger         *slog.Logger
}

// NewRenderer creates a renderer backed by fonts.
func NewRenderer(fonts *FontService, opts RendererOptions) *Renderer {
	if opts.FontWait <= 0 {
		opts.FontWait = DefaultFontTimeout
	}
	if opts.PreviewMaxSide <= 0 {
		opts.PreviewMaxSide = 1080
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Renderer{
		fonts:          fonts,
		fontWait:       opts.FontWait,
		previewMaxSide: opts.PreviewMaxSide,
		logger:         opts.Logger,
	}
}

// Fonts returns the font service.
func (r *Renderer) Fonts() *FontService { return r.fonts }

// Render draws style at anchor over tmpl. The result has the template's
// dimensions; tmpl itself is never modified. Empty or whitespace-only text
// yields a plain copy of the template.
func (r *Renderer) Render(ctx context.Context, tmpl *Template, style Style, anchor Point) (*image.RGBA, error) {
	if tmpl == nil || tmpl.Image == nil {
		return nil, ErrNoTemplate
	}

	dst := image.NewRGBA(image.Rect(0, 0, tmpl.Width, tmpl.Height))
	draw.Draw(dst, dst.Bounds(), tmpl.Image, tmpl.Image.Bounds().Min, draw.Src)

	if strings.TrimSpace(style.Text) == "" {
		return dst, nil
	}
	if style.FontSizePx <= 0 {
		return nil, invalid("Render", fmt.Sprintf("font size %g", style.FontSizePx))
	}

	face, err := r.face(ctx, style)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	lines := layoutLines(style.Text, style.Language.Direction())

	if style.ShadowRadiusPx > 0 {
		r.drawShadow(dst, face, lines, anchor, style.ShadowRadiusPx)
	}

	dc := gg.NewContextForRGBA(dst)
	dc.SetFontFace(face)
	dc.SetColor(generator.ParseHexRGBA(style.Color))
	drawLines(dc, face, lines, anchor.X, anchor.Y)

	return dst, nil
}

// RenderPreview renders like Render, then scales the raster to the
// displayW×displayH surface times zoom. With no display size the template
// is fitted into the configured preview side.
func (r *Renderer) RenderPreview(ctx context.Context, tmpl *Template, style Style, anchor Point, displayW, displayH int, zoom float64) (*image.NRGBA, error) {
	full, err := r.Render(ctx, tmpl, style, anchor)
	if err != nil {
		return nil, err
	}

	if displayW <= 0 || displayH <= 0 {
		displayW, displayH = fitWithin(tmpl.Width, tmpl.Height, r.previewMaxSide)
	}
	w := int(math.Round(float64(displayW) * zoom))
	h := int(math.Round(float64(displayH) * zoom))
	if w < 1 || h < 1 {
		return nil, invalid("RenderPreview", fmt.Sprintf("preview size %dx%d", w, h))
	}
	if w == tmpl.Width && h == tmpl.Height {
		return imaging.Clone(full), nil
	}
	return imaging.Resize(full, w, h, imaging.Lanczos), nil
}

// face waits for font readiness, bounded, then resolves the style's face.
// A timeout is not an error: the fallback face is used.
func (r *Renderer) face(ctx context.Context, style Style) (font.Face, error) {
	if r.fonts == nil {
		return nil, errors.New("renderer has no font service")
	}
	if err := r.fonts.Await(ctx, r.fontWait); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("fonts not ready, rendering with fallback", "error", err)
	}
	if !r.fonts.Has(style.FontFamily) {
		if err := r.fonts.LoadFamily(ctx, style.FontFamily); err != nil {
			r.logger.Debug("font family unavailable", "family", style.FontFamily, "error", err)
		}
	}
	face, fallback, err := r.fonts.Face(style.FontFamily, style.Weight, style.Slant, style.FontSizePx)
	if err != nil {
		return nil, err
	}
	if fallback {
		r.logger.Debug("using fallback face", "family", style.FontFamily)
	}
	return face, nil
}

// drawShadow paints the blurred shadow offset by (radius, radius). The blur
// runs on a layer just large enough for the text.
func (r *Renderer) drawShadow(dst *image.RGBA, face font.Face, lines []string, anchor Point, radius float64) {
	lh := lineHeight(face)
	var textW float64
	for _, l := range lines {
		textW = math.Max(textW, float64(font.MeasureString(face, l))/64)
	}
	textH := lh * float64(len(lines))

	pad := math.Ceil(3*radius) + 2
	lw := int(math.Ceil(textW + 2*pad))
	lhPx := int(math.Ceil(textH + 2*pad))
	layer := image.NewRGBA(image.Rect(0, 0, lw, lhPx))

	dc := gg.NewContextForRGBA(layer)
	dc.SetFontFace(face)
	dc.SetColor(shadowColor)
	drawLines(dc, face, lines, float64(lw)/2, float64(lhPx)/2)

	blurred := imaging.Blur(layer, radius)

	origin := image.Pt(
		int(math.Round(anchor.X+radius-float64(lw)/2)),
		int(math.Round(anchor.Y+radius-float64(lhPx)/2)),
	)
	draw.Draw(dst, blurred.Bounds().Add(origin), blurred, image.Point{}, draw.Over)
}

// ── Text layout ──

// drawLines centers the block of lines on (cx, cy). Each baseline sits
// (ascent-descent)/2 below its line center, like a canvas "middle" baseline.
func drawLines(dc *gg.Context, face font.Face, lines []string, cx, cy float64) {
	m := face.Metrics()
	lh := lineHeight(face)
	toBaseline := float64(m.Ascent-m.Descent) / 64 / 2
	top := cy - lh*float64(len(lines))/2
	for i, line := range lines {
		dc.DrawStringAnchored(line, cx, top+lh*(float64(i)+0.5)+toBaseline, 0.5, 0)
	}
}

func lineHeight(face font.Face) float64 {
	m := face.Metrics()
	return float64(m.Ascent+m.Descent) / 64 * lineSpacing
}

// layoutLines splits text on newlines and puts each line in display order.
func layoutLines(text string, dir Direction) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		out = append(out, visualOrder(l, dir))
	}
	return out
}

type runClass int

const (
	classNeutral runClass = iota
	classLTR
	classRTL
)

func classify(r rune) runClass {
	p, _ := bidi.LookupRune(r)
	switch p.Class() {
	case bidi.R, bidi.AL:
		return classRTL
	case bidi.L, bidi.EN, bidi.AN:
		return classLTR
	default:
		return classNeutral
	}
}

// visualOrder reorders a logical line for left-to-right glyph drawing.
// Right-to-left runs are reversed; in an rtl paragraph the run order is
// reversed too. Neutrals take the direction of their neighbors when both
// agree, otherwise the paragraph direction.
func visualOrder(line string, dir Direction) string {
	runes := []rune(line)
	if len(runes) == 0 {
		return line
	}
	para := classLTR
	if dir == RTL {
		para = classRTL
	}

	classes := make([]runClass, len(runes))
	hasRTL := false
	for i, r := range runes {
		classes[i] = classify(r)
		if classes[i] == classRTL {
			hasRTL = true
		}
	}
	if !hasRTL && para == classLTR {
		return line
	}

	for i := 0; i < len(classes); {
		if classes[i] != classNeutral {
			i++
			continue
		}
		j := i
		for j < len(classes) && classes[j] == classNeutral {
			j++
		}
		prev, next := para, para
		if i > 0 {
			prev = classes[i-1]
		}
		if j < len(classes) {
			next = classes[j]
		}
		resolved := para
		if prev == next {
			resolved = prev
		}
		for k := i; k < j; k++ {
			classes[k] = resolved
		}
		i = j
	}

	type run struct {
		text string
		rtl  bool
	}
	var runs []run
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i == len(runes) || classes[i] != classes[start] {
			s := string(runes[start:i])
			rtl := classes[start] == classRTL
			if rtl {
				s = bidi.ReverseString(s)
			}
			runs = append(runs, run{text: s, rtl: rtl})
			start = i
		}
	}

	if para == classRTL {
		for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
			runs[i], runs[j] = runs[j], runs[i]
		}
	}

	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.text)
	}
	return b.String()
}

func fitWithin(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	scale := float64(maxSide) / float64(max(w, h))
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale)))
}
