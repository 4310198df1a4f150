// profile.go — Per-occasion font lists, presets and default style.
package compositor

import (
	"fmt"
	"slices"
	"sort"
)

// Preset is a named bundle of style values applied as one edit.
type Preset struct {
	Color          string  `json:"color" yaml:"color"`
	Font           string  `json:"font" yaml:"font"`
	Weight         Weight  `json:"fontWeight" yaml:"font_weight"`
	Slant          Slant   `json:"fontSlant" yaml:"font_slant"`
	FontSizePx     float64 `json:"fontSizePx" yaml:"font_size_px"`
	ShadowRadiusPx float64 `json:"shadowRadiusPx" yaml:"shadow_radius_px"`
}

// Profile parameterizes an editing session: which fonts each language
// offers, which presets exist and what Reset restores.
type Profile struct {
	Name         string                `json:"name" yaml:"name"`
	Fonts        map[Language][]string `json:"fonts" yaml:"fonts"`
	DefaultFonts map[Language]string   `json:"defaultFonts" yaml:"default_fonts"`
	Presets      map[string]Preset     `json:"presets" yaml:"presets"`
	Defaults     Style                 `json:"defaults" yaml:"defaults"`
	DefaultPoint *Point                `json:"defaultPoint,omitempty" yaml:"default_point,omitempty"` // nil = template center
}

// Validate checks that every default and preset font belongs to a font list.
func (p *Profile) Validate() error {
	for _, lang := range []Language{LanguageArabic, LanguageEnglish} {
		def, ok := p.DefaultFonts[lang]
		if !ok {
			return fmt.Errorf("profile %q: no default font for %s", p.Name, lang)
		}
		if !slices.Contains(p.Fonts[lang], def) {
			return fmt.Errorf("profile %q: default font %q not in %s list", p.Name, def, lang)
		}
	}
	if !p.Defaults.Language.Valid() {
		return fmt.Errorf("profile %q: invalid default language %q", p.Name, p.Defaults.Language)
	}
	if !slices.Contains(p.Fonts[p.Defaults.Language], p.Defaults.FontFamily) {
		return fmt.Errorf("profile %q: default style font %q not in %s list", p.Name, p.Defaults.FontFamily, p.Defaults.Language)
	}
	for name, pr := range p.Presets {
		if _, ok := p.LanguageOf(pr.Font); !ok {
			return fmt.Errorf("profile %q: preset %q uses unknown font %q", p.Name, name, pr.Font)
		}
	}
	return nil
}

// LanguageOf returns the language whose font list contains family.
// Arabic wins when a family is listed for both.
func (p *Profile) LanguageOf(family string) (Language, bool) {
	for _, lang := range []Language{LanguageArabic, LanguageEnglish} {
		if slices.Contains(p.Fonts[lang], family) {
			return lang, true
		}
	}
	return "", false
}

// PresetNames returns preset names in sorted order.
func (p *Profile) PresetNames() []string {
	names := make([]string, 0, len(p.Presets))
	for n := range p.Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AllFonts returns every family of every language, arabic first.
func (p *Profile) AllFonts() []string {
	var out []string
	for _, lang := range []Language{LanguageArabic, LanguageEnglish} {
		for _, f := range p.Fonts[lang] {
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	return out
}

// ── Built-in profiles ──

var (
	arabicFonts  = []string{"Cairo", "Amiri", "Tajawal", "Scheherazade", "Lateef", "Noto Naskh Arabic"}
	englishFonts = []string{"Roboto", "Lora", "Playfair Display", "Arial"}
)

func baseProfile(name string, presets map[string]Preset) *Profile {
	return &Profile{
		Name: name,
		Fonts: map[Language][]string{
			LanguageArabic:  slices.Clone(arabicFonts),
			LanguageEnglish: slices.Clone(englishFonts),
		},
		DefaultFonts: map[Language]string{
			LanguageArabic:  "Cairo",
			LanguageEnglish: "Roboto",
		},
		Presets: presets,
		Defaults: Style{
			Color:          "#ffffff",
			FontFamily:     "Cairo",
			Weight:         WeightNormal,
			Slant:          SlantNormal,
			FontSizePx:     60,
			ShadowRadiusPx: 2,
			Language:       LanguageArabic,
		},
	}
}

// RamadanProfile is the default profile.
func RamadanProfile() *Profile {
	return baseProfile("ramadan", map[string]Preset{
		"elegant":      {Color: "#4B2E39", Font: "Amiri", Weight: WeightNormal, Slant: SlantNormal, FontSizePx: 85, ShadowRadiusPx: 3.5},
		"professional": {Color: "#2C5234", Font: "Cairo", Weight: WeightBold, Slant: SlantNormal, FontSizePx: 75, ShadowRadiusPx: 2},
		"festive":      {Color: "#FFD700", Font: "Scheherazade", Weight: WeightBold, Slant: SlantNormal, FontSizePx: 90, ShadowRadiusPx: 4},
	})
}

// FoundingDayProfile carries the darker, unbolded presets of the founding-day cards.
func FoundingDayProfile() *Profile {
	return baseProfile("founding-day", map[string]Preset{
		"elegant":      {Color: "#4B2E39", Font: "Amiri", Weight: WeightNormal, Slant: SlantNormal, FontSizePx: 85, ShadowRadiusPx: 3.5},
		"professional": {Color: "#000000", Font: "Cairo", Weight: WeightNormal, Slant: SlantNormal, FontSizePx: 70, ShadowRadiusPx: 2},
		"festive":      {Color: "#B91C1C", Font: "Scheherazade", Weight: WeightNormal, Slant: SlantNormal, FontSizePx: 90, ShadowRadiusPx: 4},
	})
}

// Profiles returns the built-in profiles by name.
func Profiles() map[string]*Profile {
	return map[string]*Profile{
		"ramadan":      RamadanProfile(),
		"founding-day": FoundingDayProfile(),
	}
}
