package compositor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerInitializeCenters(t *testing.T) {
	var tr Tracker
	assert.False(t, tr.Ready())

	tr.Initialize(801, 600)
	assert.True(t, tr.Ready())
	assert.Equal(t, Point{X: 400.5, Y: 300}, tr.Anchor())
	assert.Equal(t, Idle, tr.State())
}

func TestScreenToImageScales(t *testing.T) {
	rect := Rect{Left: 10, Top: 20, Width: 400, Height: 300}
	p, err := ScreenToImage(210, 170, rect, 800, 600)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 400, Y: 300}, p)

	// Outside the rect is not clamped.
	p, err = ScreenToImage(0, 0, rect, 800, 600)
	require.NoError(t, err)
	assert.Equal(t, Point{X: -20, Y: -40}, p)
}

func TestScreenImageRoundTrip(t *testing.T) {
	rects := []Rect{
		{Left: 0, Top: 0, Width: 800, Height: 600},
		{Left: 13.5, Top: 7.25, Width: 333, Height: 250},
		{Left: -40, Top: 100, Width: 1600, Height: 1200},
	}
	for _, rect := range rects {
		for _, pt := range [][2]float64{{0, 0}, {17.3, 99.1}, {rect.Left + rect.Width, rect.Top + rect.Height}} {
			p, err := ScreenToImage(pt[0], pt[1], rect, 800, 600)
			require.NoError(t, err)
			sx, sy, err := ImageToScreen(p, rect, 800, 600)
			require.NoError(t, err)
			assert.InDelta(t, pt[0], sx, 1e-9)
			assert.InDelta(t, pt[1], sy, 1e-9)
		}
	}
}

func TestScreenToImageRejectsEmptyRect(t *testing.T) {
	_, err := ScreenToImage(1, 1, Rect{Width: 0, Height: 10}, 800, 600)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = ScreenToImage(math.NaN(), 1, Rect{Width: 10, Height: 10}, 800, 600)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestTrackerDragKeepsGrabOffset(t *testing.T) {
	var tr Tracker
	tr.Initialize(800, 600)
	rect := Rect{Width: 400, Height: 300} // half scale

	// Grab 10px right of the anchor on screen.
	require.NoError(t, tr.PointerDown(210, 150, rect))
	assert.Equal(t, Dragging, tr.State())

	p, err := tr.PointerMove(110, 50, rect)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 200, Y: 100}, p)

	assert.True(t, tr.PointerUp())
	assert.Equal(t, Idle, tr.State())
	assert.False(t, tr.PointerUp())
}

func TestTrackerRejectsOutOfStateEvents(t *testing.T) {
	var tr Tracker
	rect := Rect{Width: 100, Height: 100}

	assert.ErrorIs(t, tr.PointerDown(1, 1, rect), ErrNoTemplate)
	_, err := tr.Click(1, 1, rect)
	assert.ErrorIs(t, err, ErrNoTemplate)

	tr.Initialize(100, 100)
	_, err = tr.PointerMove(1, 1, rect)
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, tr.PointerDown(50, 50, rect))
	assert.ErrorIs(t, tr.PointerDown(50, 50, rect), ErrInvalidInput)
	_, err = tr.Click(10, 10, rect)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, Point{X: 50, Y: 50}, tr.Anchor())
}
