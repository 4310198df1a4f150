package compositor

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xob0t/GoCard/pkg/generator"
)

var navy = color.RGBA{R: 20, G: 40, B: 80, A: 255}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func solidTemplate(w, h int) *Template {
	return &Template{
		Ref:    "solid.png",
		Name:   "solid",
		Width:  w,
		Height: h,
		Image:  generator.NewSolidImage(w, h, navy),
	}
}

// readyFonts returns a font service with only the embedded faces, already loaded.
func readyFonts(t *testing.T) *FontService {
	t.Helper()
	fs, err := NewFontService(FontOptions{Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, fs.Load(context.Background()))
	return fs
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	return NewRenderer(readyFonts(t), RendererOptions{FontWait: 50 * time.Millisecond, Logger: quietLogger()})
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(Services{
		Fetcher:  NewFetcher(FetcherOptions{Logger: quietLogger()}),
		Renderer: newTestRenderer(t),
	}, SessionOptions{Debounce: 5 * time.Millisecond, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// changedPixels counts pixels in r that differ from the template color.
func changedPixels(img image.Image, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			if uint8(cr>>8) != navy.R || uint8(cg>>8) != navy.G || uint8(cb>>8) != navy.B {
				n++
			}
		}
	}
	return n
}

func lumaDelta(c color.Color) int {
	r, g, b, _ := c.RGBA()
	return int(r>>8+g>>8+b>>8) - int(navy.R) - int(navy.G) - int(navy.B)
}

// inkBox bounds the pixels that differ from the template color.
func inkBox(img image.Image) image.Rectangle {
	var box image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if lumaDelta(img.At(x, y)) != 0 {
				box = box.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return box
}

// weightedCenter is the centroid of pixels lighter (sign 1) or darker
// (sign -1) than the template, weighted by the difference.
func weightedCenter(img image.Image, sign int) (float64, float64) {
	var sx, sy, sw float64
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := lumaDelta(img.At(x, y)) * sign
			if d <= 0 {
				continue
			}
			w := float64(d)
			sx += w * (float64(x) + 0.5)
			sy += w * (float64(y) + 0.5)
			sw += w
		}
	}
	if sw == 0 {
		return 0, 0
	}
	return sx / sw, sy / sw
}
