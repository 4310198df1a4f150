// Package compositor overlays a styled name on a greeting-card template and
// exports the result at the template's native resolution.
package compositor

import (
	"image"
	"math"
)

// ── Geometry ──

// Point is a position in image space (template pixels).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Rect is where the preview surface sits on screen.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ── Style ──

// Weight is the font weight.
type Weight string

const (
	WeightNormal Weight = "normal"
	WeightBold   Weight = "bold"
)

// Valid reports whether w is normal or bold.
func (w Weight) Valid() bool { return w == WeightNormal || w == WeightBold }

// Slant is the font slant.
type Slant string

const (
	SlantNormal Slant = "normal"
	SlantItalic Slant = "italic"
)

// Valid reports whether s is normal or italic.
func (s Slant) Valid() bool { return s == SlantNormal || s == SlantItalic }

// Language selects the font list and the text direction.
type Language string

const (
	LanguageArabic  Language = "arabic"
	LanguageEnglish Language = "english"
)

// Direction is the text direction.
type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

// Direction returns rtl for arabic, ltr otherwise.
func (l Language) Direction() Direction {
	if l == LanguageArabic {
		return RTL
	}
	return LTR
}

// Valid reports whether l is a known language.
func (l Language) Valid() bool {
	return l == LanguageArabic || l == LanguageEnglish
}

// Style holds the rendering parameters of the overlay text.
type Style struct {
	Text           string   `json:"text"`
	Color          string   `json:"color"` // "#rrggbb"
	FontFamily     string   `json:"fontFamily"`
	Weight         Weight   `json:"fontWeight"`
	Slant          Slant    `json:"fontSlant"`
	FontSizePx     float64  `json:"fontSizePx"`
	ShadowRadiusPx float64  `json:"shadowRadiusPx"`
	Language       Language `json:"language"`
}

// Snapshot is a full copy of the editable state, as stored in history.
type Snapshot struct {
	Style     Style `json:"style"`
	Placement Point `json:"placement"`
}

// ── Template ──

// Template is a decoded card image. It is never mutated after loading.
type Template struct {
	Ref    string
	Name   string
	Width  int
	Height int
	Image  image.Image
}

// Center returns the midpoint of the template in image space.
func (t *Template) Center() Point {
	return Point{X: float64(t.Width) / 2, Y: float64(t.Height) / 2}
}
