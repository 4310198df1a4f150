// editor.go — Style state, placement and history as one synchronous state machine.
package compositor

import (
	"fmt"
	"image/color"
	"math"
	"slices"
	"strings"

	"github.com/xob0t/GoCard/pkg/generator"
)

// Editor owns the editable state of one card. Every edit pushes the
// pre-edit snapshot onto History; a rejected edit changes nothing.
// Editor is not safe for concurrent use; Session serializes access.
type Editor struct {
	profile *Profile
	style   Style
	tracker Tracker
	history *History
}

// NewEditor creates an editor seeded with the profile defaults.
func NewEditor(profile *Profile, historyDepth int) (*Editor, error) {
	if profile == nil {
		profile = RamadanProfile()
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Editor{
		profile: profile,
		style:   profile.Defaults,
		history: NewHistory(historyDepth),
	}, nil
}

// Profile returns the editor's profile.
func (e *Editor) Profile() *Profile { return e.profile }

// Style returns a copy of the current style.
func (e *Editor) Style() Style { return e.style }

// Anchor returns the current anchor.
func (e *Editor) Anchor() Point { return e.tracker.Anchor() }

// Interaction returns the pointer state.
func (e *Editor) Interaction() InteractionState { return e.tracker.State() }

// HistoryLen returns the number of undoable edits.
func (e *Editor) HistoryLen() int { return e.history.Len() }

// Snapshot copies the current style and placement.
func (e *Editor) Snapshot() Snapshot {
	return Snapshot{Style: e.style, Placement: e.tracker.Anchor()}
}

// Bind initializes placement for a freshly loaded w×h template. History is
// kept; it does not record the template.
func (e *Editor) Bind(w, h int) {
	e.tracker.Initialize(w, h)
	if p := e.profile.DefaultPoint; p != nil {
		e.tracker.SetAnchor(*p)
	}
}

// edit applies fn and records the pre-edit snapshot when fn succeeds.
func (e *Editor) edit(fn func() error) error {
	before := e.Snapshot()
	if err := fn(); err != nil {
		return err
	}
	e.history.Push(before)
	return nil
}

// ── Style setters ──

// SetText replaces the overlay text.
func (e *Editor) SetText(text string) error {
	return e.edit(func() error {
		e.style.Text = text
		return nil
	})
}

// SetColor sets the fill color ("#rrggbb").
func (e *Editor) SetColor(hex string) error {
	r, g, b, err := generator.ParseColor(hex)
	if err != nil || hex == "random" {
		return invalid("SetColor", fmt.Sprintf("color %q", hex))
	}
	return e.edit(func() error {
		e.style.Color = generator.FormatHex(color.RGBA{R: r, G: g, B: b, A: 255})
		return nil
	})
}

// SetFontFamily selects a family from the current language's list.
func (e *Editor) SetFontFamily(family string) error {
	if !slices.Contains(e.profile.Fonts[e.style.Language], family) {
		return invalid("SetFontFamily", fmt.Sprintf("font %q not available for %s", family, e.style.Language))
	}
	return e.edit(func() error {
		e.style.FontFamily = family
		return nil
	})
}

// SetWeight sets normal or bold.
func (e *Editor) SetWeight(w Weight) error {
	if !w.Valid() {
		return invalid("SetWeight", fmt.Sprintf("weight %q", w))
	}
	return e.edit(func() error {
		e.style.Weight = w
		return nil
	})
}

// SetSlant sets normal or italic.
func (e *Editor) SetSlant(s Slant) error {
	if !s.Valid() {
		return invalid("SetSlant", fmt.Sprintf("slant %q", s))
	}
	return e.edit(func() error {
		e.style.Slant = s
		return nil
	})
}

// SetFontStyle maps the single "normal|bold|italic|bold italic" selector
// onto weight and slant. "bold-italic" is accepted too.
func (e *Editor) SetFontStyle(s string) error {
	var w Weight
	var sl Slant
	switch strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(s, "-", " "))), "-") {
	case "normal":
		w, sl = WeightNormal, SlantNormal
	case "bold":
		w, sl = WeightBold, SlantNormal
	case "italic":
		w, sl = WeightNormal, SlantItalic
	case "bold-italic":
		w, sl = WeightBold, SlantItalic
	default:
		return invalid("SetFontStyle", fmt.Sprintf("style %q", s))
	}
	return e.edit(func() error {
		e.style.Weight, e.style.Slant = w, sl
		return nil
	})
}

// SetFontSize sets the size in template pixels.
func (e *Editor) SetFontSize(px float64) error {
	if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
		return invalid("SetFontSize", fmt.Sprintf("size %g", px))
	}
	return e.edit(func() error {
		e.style.FontSizePx = px
		return nil
	})
}

// SetShadowRadius sets the drop-shadow radius; 0 disables the shadow.
func (e *Editor) SetShadowRadius(px float64) error {
	if px < 0 || math.IsNaN(px) || math.IsInf(px, 0) {
		return invalid("SetShadowRadius", fmt.Sprintf("radius %g", px))
	}
	return e.edit(func() error {
		e.style.ShadowRadiusPx = px
		return nil
	})
}

// SetLanguage switches language and resets the family to its default face.
func (e *Editor) SetLanguage(lang Language) error {
	if !lang.Valid() {
		return invalid("SetLanguage", fmt.Sprintf("language %q", lang))
	}
	return e.edit(func() error {
		e.style.Language = lang
		e.style.FontFamily = e.profile.DefaultFonts[lang]
		return nil
	})
}

// ApplyPreset sets color, font, weight, slant, size and shadow as one edit.
// The language follows the preset font.
func (e *Editor) ApplyPreset(name string) error {
	pr, ok := e.profile.Presets[name]
	if !ok {
		return &OpError{Op: "ApplyPreset", Err: ErrUnknownPreset, Detail: name}
	}
	lang, ok := e.profile.LanguageOf(pr.Font)
	if !ok {
		return invalid("ApplyPreset", fmt.Sprintf("preset font %q", pr.Font))
	}
	return e.edit(func() error {
		e.style.Color = pr.Color
		e.style.FontFamily = pr.Font
		e.style.Language = lang
		e.style.Weight = pr.Weight
		e.style.Slant = pr.Slant
		e.style.FontSizePx = pr.FontSizePx
		e.style.ShadowRadiusPx = pr.ShadowRadiusPx
		return nil
	})
}

// Reset restores the profile defaults, including the anchor, as one edit.
func (e *Editor) Reset() error {
	return e.edit(func() error {
		e.style = e.profile.Defaults
		if !e.tracker.Ready() {
			return nil
		}
		e.tracker.PointerUp()
		anchor := Point{X: e.tracker.w / 2, Y: e.tracker.h / 2}
		if p := e.profile.DefaultPoint; p != nil {
			anchor = *p
		}
		return e.tracker.SetAnchor(anchor)
	})
}

// Undo restores the most recent snapshot. It reports false, and changes
// nothing, when there is nothing to undo.
func (e *Editor) Undo() bool {
	s, ok := e.history.Undo()
	if !ok {
		return false
	}
	e.tracker.PointerUp()
	e.style = s.Style
	if e.tracker.Ready() {
		e.tracker.SetAnchor(s.Placement)
	}
	return true
}

// ── Placement ──

// Click moves the anchor to the pointer.
func (e *Editor) Click(sx, sy float64, rect Rect) error {
	return e.edit(func() error {
		_, err := e.tracker.Click(sx, sy, rect)
		return err
	})
}

// MoveTo places the anchor at an image-space point.
func (e *Editor) MoveTo(p Point) error {
	if !e.tracker.Ready() {
		return ErrNoTemplate
	}
	return e.edit(func() error {
		return e.tracker.SetAnchor(p)
	})
}

// PointerDown starts a drag; the whole drag is one undoable edit.
func (e *Editor) PointerDown(sx, sy float64, rect Rect) error {
	return e.edit(func() error {
		return e.tracker.PointerDown(sx, sy, rect)
	})
}

// PointerMove updates the anchor during a drag. No history is recorded.
func (e *Editor) PointerMove(sx, sy float64, rect Rect) (Point, error) {
	return e.tracker.PointerMove(sx, sy, rect)
}

// PointerUp ends a drag.
func (e *Editor) PointerUp() bool {
	return e.tracker.PointerUp()
}
