package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundEditor(t *testing.T) *Editor {
	t.Helper()
	e, err := NewEditor(nil, DefaultHistoryDepth)
	require.NoError(t, err)
	e.Bind(800, 600)
	return e
}

func TestEditorDefaults(t *testing.T) {
	e := newBoundEditor(t)
	st := e.Style()
	assert.Equal(t, "ramadan", e.Profile().Name)
	assert.Equal(t, "#ffffff", st.Color)
	assert.Equal(t, "Cairo", st.FontFamily)
	assert.Equal(t, 60.0, st.FontSizePx)
	assert.Equal(t, LanguageArabic, st.Language)
	assert.Equal(t, Point{X: 400, Y: 300}, e.Anchor())
	assert.Equal(t, 0, e.HistoryLen())
}

func TestEditorHistoryKeepsTenEdits(t *testing.T) {
	e := newBoundEditor(t)
	for i := 1; i <= 11; i++ {
		require.NoError(t, e.SetFontSize(60+float64(i)))
	}
	assert.Equal(t, 10, e.HistoryLen())

	for i := 0; i < 10; i++ {
		assert.True(t, e.Undo())
	}
	// Back to the state right before edit #2.
	assert.Equal(t, 61.0, e.Style().FontSizePx)

	assert.False(t, e.Undo())
	assert.Equal(t, 61.0, e.Style().FontSizePx)
}

func TestEditorUndoEmptyIsNoop(t *testing.T) {
	e := newBoundEditor(t)
	before := e.Snapshot()
	assert.False(t, e.Undo())
	assert.Equal(t, before, e.Snapshot())
}

func TestEditorPresetIsOneEdit(t *testing.T) {
	e := newBoundEditor(t)
	before := e.Style()

	require.NoError(t, e.ApplyPreset("festive"))
	assert.Equal(t, 1, e.HistoryLen())

	after := e.Style()
	assert.Equal(t, "#FFD700", after.Color)
	assert.Equal(t, "Scheherazade", after.FontFamily)
	assert.Equal(t, WeightBold, after.Weight)
	assert.Equal(t, 90.0, after.FontSizePx)
	assert.Equal(t, 4.0, after.ShadowRadiusPx)

	assert.NotEqual(t, before.Color, after.Color)
	assert.NotEqual(t, before.FontFamily, after.FontFamily)
	assert.NotEqual(t, before.Weight, after.Weight)
	assert.NotEqual(t, before.FontSizePx, after.FontSizePx)
	assert.NotEqual(t, before.ShadowRadiusPx, after.ShadowRadiusPx)

	require.True(t, e.Undo())
	assert.Equal(t, before, e.Style())
}

func TestEditorUnknownPreset(t *testing.T) {
	e := newBoundEditor(t)
	assert.ErrorIs(t, e.ApplyPreset("gaudy"), ErrUnknownPreset)
	assert.Equal(t, 0, e.HistoryLen())
}

func TestEditorRejectedEditsLeaveNoTrace(t *testing.T) {
	e := newBoundEditor(t)
	before := e.Snapshot()

	assert.ErrorIs(t, e.SetColor("#12345"), ErrInvalidInput)
	assert.ErrorIs(t, e.SetColor("random"), ErrInvalidInput)
	assert.ErrorIs(t, e.SetFontSize(0), ErrInvalidInput)
	assert.ErrorIs(t, e.SetShadowRadius(-1), ErrInvalidInput)
	assert.ErrorIs(t, e.SetFontFamily("Roboto"), ErrInvalidInput) // english font while arabic
	assert.ErrorIs(t, e.SetFontStyle("oblique"), ErrInvalidInput)
	assert.ErrorIs(t, e.SetLanguage("klingon"), ErrInvalidInput)

	assert.Equal(t, before, e.Snapshot())
	assert.Equal(t, 0, e.HistoryLen())
}

func TestEditorLanguageSwitchResetsFamily(t *testing.T) {
	e := newBoundEditor(t)
	require.NoError(t, e.SetFontFamily("Amiri"))
	require.NoError(t, e.SetLanguage(LanguageEnglish))

	assert.Equal(t, "Roboto", e.Style().FontFamily)
	assert.Equal(t, LTR, e.Style().Language.Direction())
	require.NoError(t, e.SetFontFamily("Lora"))
}

func TestEditorSetters(t *testing.T) {
	e := newBoundEditor(t)
	require.NoError(t, e.SetText("Aisha"))
	require.NoError(t, e.SetColor("#B91C1C"))
	require.NoError(t, e.SetFontStyle("bold-italic"))
	require.NoError(t, e.SetShadowRadius(0))

	st := e.Style()
	assert.Equal(t, "Aisha", st.Text)
	assert.Equal(t, "#b91c1c", st.Color)
	assert.Equal(t, WeightBold, st.Weight)
	assert.Equal(t, SlantItalic, st.Slant)
	assert.Equal(t, 0.0, st.ShadowRadiusPx)
	assert.Equal(t, 4, e.HistoryLen())
}

func TestEditorDragThenUndoRestoresAnchor(t *testing.T) {
	e := newBoundEditor(t)
	rect := Rect{Width: 800, Height: 600}

	require.NoError(t, e.PointerDown(400, 300, rect))
	_, err := e.PointerMove(250, 200, rect)
	require.NoError(t, err)
	p, err := e.PointerMove(100, 100, rect)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 100, Y: 100}, p)
	assert.True(t, e.PointerUp())
	assert.Equal(t, 1, e.HistoryLen())

	require.True(t, e.Undo())
	assert.Equal(t, Point{X: 400, Y: 300}, e.Anchor())
}

func TestEditorClickAndMoveTo(t *testing.T) {
	e := newBoundEditor(t)
	require.NoError(t, e.Click(100, 50, Rect{Width: 400, Height: 300}))
	assert.Equal(t, Point{X: 200, Y: 100}, e.Anchor())

	require.NoError(t, e.MoveTo(Point{X: 10, Y: 20}))
	assert.Equal(t, Point{X: 10, Y: 20}, e.Anchor())
	assert.Equal(t, 2, e.HistoryLen())
}

func TestEditorMoveToWithoutTemplate(t *testing.T) {
	e, err := NewEditor(FoundingDayProfile(), 0)
	require.NoError(t, err)
	assert.ErrorIs(t, e.MoveTo(Point{X: 1, Y: 1}), ErrNoTemplate)
	assert.ErrorIs(t, e.Click(1, 1, Rect{Width: 1, Height: 1}), ErrNoTemplate)
	assert.Equal(t, 0, e.HistoryLen())
}

func TestEditorReset(t *testing.T) {
	e := newBoundEditor(t)
	require.NoError(t, e.ApplyPreset("elegant"))
	require.NoError(t, e.MoveTo(Point{X: 5, Y: 5}))
	require.NoError(t, e.Reset())

	assert.Equal(t, e.Profile().Defaults, e.Style())
	assert.Equal(t, Point{X: 400, Y: 300}, e.Anchor())
	assert.Equal(t, 3, e.HistoryLen())
}

func TestProfilesValidate(t *testing.T) {
	for name, p := range Profiles() {
		assert.NoError(t, p.Validate(), name)
		assert.Equal(t, []string{"elegant", "festive", "professional"}, p.PresetNames())
	}

	p := RamadanProfile()
	p.DefaultFonts[LanguageEnglish] = "Comic Sans"
	assert.Error(t, p.Validate())
}

func TestEditorFontStyleSpellings(t *testing.T) {
	tests := []struct {
		in     string
		weight Weight
		slant  Slant
	}{
		{"normal", WeightNormal, SlantNormal},
		{"bold", WeightBold, SlantNormal},
		{"italic", WeightNormal, SlantItalic},
		{"bold italic", WeightBold, SlantItalic},
		{"bold-italic", WeightBold, SlantItalic},
		{"Bold  Italic", WeightBold, SlantItalic},
	}
	for _, tt := range tests {
		e := newBoundEditor(t)
		require.NoError(t, e.SetFontStyle(tt.in), tt.in)
		assert.Equal(t, tt.weight, e.Style().Weight, tt.in)
		assert.Equal(t, tt.slant, e.Style().Slant, tt.in)
	}
}

func TestEditorPatchIsAllOrNothing(t *testing.T) {
	e := newBoundEditor(t)
	for i := 0; i < DefaultHistoryDepth; i++ {
		require.NoError(t, e.SetFontSize(float64(40+i)))
	}
	before := e.Snapshot()

	text, color, family := "Aisha", "#000000", "Lora"
	err := e.Patch(StylePatch{Text: &text, Color: &color, FontFamily: &family})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, before, e.Snapshot())
	assert.Equal(t, DefaultHistoryDepth, e.HistoryLen())

	// The oldest entry survived the rolled-back pushes.
	for i := 0; i < DefaultHistoryDepth; i++ {
		require.True(t, e.Undo())
	}
	assert.Equal(t, 60.0, e.Style().FontSizePx)
}
