// placement.go — Anchor tracking, screen/image transforms and the drag state machine.
package compositor

import "fmt"

// ScreenToImage maps a screen point inside rect to image space for an
// imgW×imgH template. The result is not clamped to the image.
func ScreenToImage(sx, sy float64, rect Rect, imgW, imgH float64) (Point, error) {
	if rect.Width <= 0 || rect.Height <= 0 {
		return Point{}, invalid("ScreenToImage", fmt.Sprintf("display rect %gx%g", rect.Width, rect.Height))
	}
	scaleX := imgW / rect.Width
	scaleY := imgH / rect.Height
	p := Point{
		X: (sx - rect.Left) * scaleX,
		Y: (sy - rect.Top) * scaleY,
	}
	if !p.finite() {
		return Point{}, invalid("ScreenToImage", "non-finite coordinates")
	}
	return p, nil
}

// ImageToScreen is the inverse of ScreenToImage.
func ImageToScreen(p Point, rect Rect, imgW, imgH float64) (sx, sy float64, err error) {
	if imgW <= 0 || imgH <= 0 {
		return 0, 0, invalid("ImageToScreen", fmt.Sprintf("image %gx%g", imgW, imgH))
	}
	sx = rect.Left + p.X*rect.Width/imgW
	sy = rect.Top + p.Y*rect.Height/imgH
	return sx, sy, nil
}

// InteractionState is the pointer state of the preview surface.
type InteractionState int

const (
	Idle InteractionState = iota
	Dragging
)

func (s InteractionState) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Tracker holds the text anchor in image space and the drag state.
// Failed calls leave it untouched.
type Tracker struct {
	anchor Point
	w, h   float64
	ready  bool

	state  InteractionState
	offset Point // pointer minus anchor, screen space, captured on PointerDown
}

// Initialize resets the tracker for a w×h template and centers the anchor.
func (t *Tracker) Initialize(w, h int) {
	t.w, t.h = float64(w), float64(h)
	t.anchor = Point{X: t.w / 2, Y: t.h / 2}
	t.ready = true
	t.state = Idle
	t.offset = Point{}
}

// Anchor returns the current anchor.
func (t *Tracker) Anchor() Point { return t.anchor }

// Ready reports whether a template has initialized the tracker.
func (t *Tracker) Ready() bool { return t.ready }

// State returns the interaction state.
func (t *Tracker) State() InteractionState { return t.state }

// SetAnchor places the anchor directly, e.g. when restoring a snapshot.
func (t *Tracker) SetAnchor(p Point) error {
	if !p.finite() {
		return invalid("SetAnchor", "non-finite coordinates")
	}
	t.anchor = p
	return nil
}

// Click snaps the anchor to the pointer. Ignored while dragging.
func (t *Tracker) Click(sx, sy float64, rect Rect) (Point, error) {
	if !t.ready {
		return Point{}, ErrNoTemplate
	}
	if t.state == Dragging {
		return t.anchor, invalid("Click", "pointer is dragging")
	}
	p, err := ScreenToImage(sx, sy, rect, t.w, t.h)
	if err != nil {
		return t.anchor, err
	}
	t.anchor = p
	return p, nil
}

// PointerDown starts a drag and records where the anchor was grabbed.
func (t *Tracker) PointerDown(sx, sy float64, rect Rect) error {
	if !t.ready {
		return ErrNoTemplate
	}
	if t.state == Dragging {
		return invalid("PointerDown", "already dragging")
	}
	ax, ay, err := ImageToScreen(t.anchor, rect, t.w, t.h)
	if err != nil {
		return err
	}
	if rect.Width <= 0 || rect.Height <= 0 {
		return invalid("PointerDown", fmt.Sprintf("display rect %gx%g", rect.Width, rect.Height))
	}
	t.offset = Point{X: sx - ax, Y: sy - ay}
	t.state = Dragging
	return nil
}

// PointerMove moves the anchor while dragging, keeping the grab offset.
func (t *Tracker) PointerMove(sx, sy float64, rect Rect) (Point, error) {
	if t.state != Dragging {
		return t.anchor, invalid("PointerMove", "not dragging")
	}
	p, err := ScreenToImage(sx-t.offset.X, sy-t.offset.Y, rect, t.w, t.h)
	if err != nil {
		return t.anchor, err
	}
	t.anchor = p
	return p, nil
}

// PointerUp ends a drag. It reports whether a drag was in progress.
func (t *Tracker) PointerUp() bool {
	was := t.state == Dragging
	t.state = Idle
	t.offset = Point{}
	return was
}
