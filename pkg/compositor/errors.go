// errors.go — Error taxonomy for the card compositor.
package compositor

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNoTemplate    = errors.New("no template selected")
	ErrEmptyText     = errors.New("text is empty")
	ErrUnknownPreset = errors.New("unknown preset")
	ErrFontTimeout   = errors.New("font loading timed out")
	ErrStaleLoad     = errors.New("template selection superseded")
	ErrSessionClosed = errors.New("session closed")
)

// ImageLoadError reports a template that failed to fetch or decode.
// The user must re-select; no retry happens automatically.
type ImageLoadError struct {
	Ref string
	Err error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("load template %q: %v", e.Ref, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// FontLoadError is non-fatal: rendering continues with a fallback face.
type FontLoadError struct {
	Family string // empty when the whole warm-up failed
	Err    error
}

func (e *FontLoadError) Error() string {
	if e.Family == "" {
		return fmt.Sprintf("load fonts: %v", e.Err)
	}
	return fmt.Sprintf("load font %q: %v", e.Family, e.Err)
}

func (e *FontLoadError) Unwrap() error { return e.Err }

// ExportValidationError blocks an export before anything is rendered.
type ExportValidationError struct {
	Reason error // ErrEmptyText or ErrNoTemplate
}

func (e *ExportValidationError) Error() string {
	return fmt.Sprintf("export refused: %v", e.Reason)
}

func (e *ExportValidationError) Unwrap() error { return e.Reason }

// ExportEncodingError reports a failed raster or PNG encode. No partial
// output is handed to the sink.
type ExportEncodingError struct {
	Err error
}

func (e *ExportEncodingError) Error() string {
	return fmt.Sprintf("export encoding failed: %v", e.Err)
}

func (e *ExportEncodingError) Unwrap() error { return e.Err }

// OpError adds the failing operation to an error.
type OpError struct {
	Op     string
	Err    error
	Detail string
}

func (e *OpError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func invalid(op, detail string) error {
	return &OpError{Op: op, Err: ErrInvalidInput, Detail: detail}
}
