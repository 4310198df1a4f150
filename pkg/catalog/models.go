// Package catalog describes the occasions and greeting-card templates a user
// picks from, loaded from JSON/YAML files or .gscards bundles.
package catalog

import (
	"path/filepath"
	"strings"

	"github.com/xob0t/GoCard/pkg/compositor"
)

// DefaultOccasion is used when an unknown occasion is requested.
const DefaultOccasion = "ramadan"

// Catalog is the top-level structure of catalog.json / catalog.yaml.
type Catalog struct {
	Version   string     `json:"version" yaml:"version"`
	FontsDir  string     `json:"fontsDir,omitempty" yaml:"fonts_dir,omitempty"`
	Occasions []Occasion `json:"occasions" yaml:"occasions"`

	// BaseDir is where relative paths resolve; set by the loaders.
	BaseDir string `json:"-" yaml:"-"`
}

// Theme holds an occasion's UI colors.
type Theme struct {
	Primary   string `json:"primary" yaml:"primary"`
	Secondary string `json:"secondary" yaml:"secondary"`
	Accent    string `json:"accent" yaml:"accent"`
}

// Occasion groups the cards of one celebration.
type Occasion struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name"`
	Theme     Theme            `json:"theme" yaml:"theme"`
	CardsPath string           `json:"cardsPath,omitempty" yaml:"cards_path,omitempty"`
	Cards     []Card           `json:"cards" yaml:"cards"`
	Profile   string           `json:"profile,omitempty" yaml:"profile,omitempty"` // built-in profile; defaults to ID
	Overrides *ProfileOverride `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// Card is one template image.
type Card struct {
	Name string `json:"name" yaml:"name"`
	Src  string `json:"src" yaml:"src"`
}

// ProfileOverride replaces parts of a built-in profile. Zero fields keep
// the base value.
type ProfileOverride struct {
	Presets      map[string]compositor.Preset `json:"presets,omitempty" yaml:"presets,omitempty"`
	Defaults     *StyleOverride               `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	DefaultPoint *compositor.Point            `json:"defaultPoint,omitempty" yaml:"default_point,omitempty"`
}

// StyleOverride overlays the default style.
type StyleOverride struct {
	Color          string              `json:"color,omitempty" yaml:"color,omitempty"`
	FontFamily     string              `json:"fontFamily,omitempty" yaml:"font_family,omitempty"`
	Weight         compositor.Weight   `json:"fontWeight,omitempty" yaml:"font_weight,omitempty"`
	Slant          compositor.Slant    `json:"fontSlant,omitempty" yaml:"font_slant,omitempty"`
	FontSizePx     float64             `json:"fontSizePx,omitempty" yaml:"font_size_px,omitempty"`
	ShadowRadiusPx *float64            `json:"shadowRadiusPx,omitempty" yaml:"shadow_radius_px,omitempty"`
	Language       compositor.Language `json:"language,omitempty" yaml:"language,omitempty"`
}

// Occasion returns the occasion with id.
func (c *Catalog) Occasion(id string) (*Occasion, bool) {
	for i := range c.Occasions {
		if c.Occasions[i].ID == id {
			return &c.Occasions[i], true
		}
	}
	return nil, false
}

// CardsFor returns the cards of id, falling back to the default occasion.
func (c *Catalog) CardsFor(id string) []Card {
	if o, ok := c.Occasion(id); ok {
		return o.Cards
	}
	if o, ok := c.Occasion(DefaultOccasion); ok {
		return o.Cards
	}
	return nil
}

// Card finds a card by occasion and name.
func (c *Catalog) Card(occasionID, name string) (Card, bool) {
	o, ok := c.Occasion(occasionID)
	if !ok {
		return Card{}, false
	}
	for _, card := range o.Cards {
		if card.Name == name {
			return card, true
		}
	}
	return Card{}, false
}

// Resolve turns a card's Src into a ref the compositor can load. URLs
// pass through; relative paths join CardsPath and BaseDir.
func (c *Catalog) Resolve(o *Occasion, card Card) string {
	src := card.Src
	if src == "" || isURL(src) || filepath.IsAbs(src) {
		return src
	}
	if o != nil && o.CardsPath != "" {
		if isURL(o.CardsPath) {
			return strings.TrimSuffix(o.CardsPath, "/") + "/" + src
		}
		src = filepath.Join(o.CardsPath, src)
	}
	if filepath.IsAbs(src) || c.BaseDir == "" {
		return src
	}
	return filepath.Join(c.BaseDir, src)
}

// ResolvedFontsDir returns FontsDir joined to BaseDir when relative.
func (c *Catalog) ResolvedFontsDir() string {
	if c.FontsDir == "" || filepath.IsAbs(c.FontsDir) || c.BaseDir == "" {
		return c.FontsDir
	}
	return filepath.Join(c.BaseDir, c.FontsDir)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "file://")
}
