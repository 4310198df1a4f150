// Package generator writes output media: PNG rasters and share QR codes.
//
// All output follows one pipeline: produce an image.Image first, then encode
// it. Composited cards come from the compositor; solid placeholders are built
// here from Config.
package generator

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
)

// Config describes a solid placeholder card.
type Config struct {
	Width  int    // Pixel width (default: 1080)
	Height int    // Pixel height (default: 1080)
	Color  string // Hex "#rrggbb" or "random" (default)
}

// Generate writes the placeholder to output. Only ".png" is supported.
func Generate(output string, cfg Config) error {
	if err := checkFormat(filepath.Ext(output)); err != nil {
		return err
	}
	img, err := cfg.Solid()
	if err != nil {
		return err
	}
	return WritePNG(output, img)
}

// GenerateToWriter encodes the placeholder to w in the format named by ext.
func GenerateToWriter(w io.Writer, ext string, cfg Config) error {
	if err := checkFormat(ext); err != nil {
		return err
	}
	img, err := cfg.Solid()
	if err != nil {
		return err
	}
	return EncodePNG(w, img)
}

func checkFormat(ext string) error {
	if strings.ToLower(ext) != ".png" {
		return fmt.Errorf("unsupported format %q: use .png", ext)
	}
	return nil
}

// Solid builds the placeholder image with defaults filled in.
func (c Config) Solid() (*image.RGBA, error) {
	w, h := c.Width, c.Height
	if w <= 0 {
		w = 1080
	}
	if h <= 0 {
		h = 1080
	}
	hex := c.Color
	if hex == "" {
		hex = "random"
	}
	r, g, b, err := ParseColor(hex)
	if err != nil {
		return nil, err
	}
	return NewSolidImage(w, h, toRGBA(r, g, b)), nil
}
