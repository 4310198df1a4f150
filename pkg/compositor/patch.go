// patch.go — Partial style updates from API clients.
package compositor

// StylePatch carries the style fields a client wants to change. Nil fields
// are left alone.
type StylePatch struct {
	Language       *Language `json:"language,omitempty"`
	Text           *string   `json:"text,omitempty"`
	Color          *string   `json:"color,omitempty"`
	FontFamily     *string   `json:"fontFamily,omitempty"`
	Weight         *Weight   `json:"fontWeight,omitempty"`
	Slant          *Slant    `json:"fontSlant,omitempty"`
	FontStyle      *string   `json:"fontStyle,omitempty"` // "bold italic", "normal", ...
	FontSizePx     *float64  `json:"fontSizePx,omitempty"`
	ShadowRadiusPx *float64  `json:"shadowRadiusPx,omitempty"`
}

// Patch applies each set field as its own edit, all or nothing: when a
// field is rejected the style and history are restored. Language goes
// first since it selects the font list the family is checked against.
func (e *Editor) Patch(p StylePatch) error {
	steps := []struct {
		set bool
		fn  func() error
	}{
		{p.Language != nil, func() error { return e.SetLanguage(*p.Language) }},
		{p.Text != nil, func() error { return e.SetText(*p.Text) }},
		{p.Color != nil, func() error { return e.SetColor(*p.Color) }},
		{p.FontFamily != nil, func() error { return e.SetFontFamily(*p.FontFamily) }},
		{p.Weight != nil, func() error { return e.SetWeight(*p.Weight) }},
		{p.Slant != nil, func() error { return e.SetSlant(*p.Slant) }},
		{p.FontStyle != nil, func() error { return e.SetFontStyle(*p.FontStyle) }},
		{p.FontSizePx != nil, func() error { return e.SetFontSize(*p.FontSizePx) }},
		{p.ShadowRadiusPx != nil, func() error { return e.SetShadowRadius(*p.ShadowRadiusPx) }},
	}

	style, history := e.style, e.history.Clone()
	for _, st := range steps {
		if !st.set {
			continue
		}
		if err := st.fn(); err != nil {
			e.style, e.history = style, history
			return err
		}
	}
	return nil
}

// Patch applies p under one lock; see Editor.Patch.
func (s *Session) Patch(p StylePatch) error {
	return s.mutate(func(e *Editor) error { return e.Patch(p) })
}
