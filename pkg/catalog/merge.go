// merge.go — Merge occasion overrides onto built-in profiles.
package catalog

import (
	"fmt"
	"maps"

	"github.com/xob0t/GoCard/pkg/compositor"
)

// ProfileFor builds the editing profile of an occasion: the built-in named
// by Occasion.Profile (or its ID), with the occasion's overrides applied.
// Unknown occasions get the default occasion's profile.
func (c *Catalog) ProfileFor(occasionID string) (*compositor.Profile, error) {
	o, ok := c.Occasion(occasionID)
	if !ok {
		return compositor.Profiles()[DefaultOccasion], nil
	}

	name := o.Profile
	if name == "" {
		name = o.ID
	}
	base, ok := compositor.Profiles()[name]
	if !ok {
		base = compositor.Profiles()[DefaultOccasion]
	}

	p := MergeProfile(base, o.Overrides)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("occasion %q: %w", o.ID, err)
	}
	return p, nil
}

// MergeProfile overlays ov onto a copy of base. Presets are merged by name
// (an override replaces the whole preset); style fields replace only when set.
func MergeProfile(base *compositor.Profile, ov *ProfileOverride) *compositor.Profile {
	p := *base
	p.Presets = maps.Clone(base.Presets)
	if ov == nil {
		return &p
	}

	for name, pr := range ov.Presets {
		p.Presets[name] = pr
	}
	if ov.Defaults != nil {
		mergeStyle(&p.Defaults, *ov.Defaults)
	}
	if ov.DefaultPoint != nil {
		pt := *ov.DefaultPoint
		p.DefaultPoint = &pt
	}
	return &p
}

func mergeStyle(base *compositor.Style, over StyleOverride) {
	if over.Color != "" {
		base.Color = over.Color
	}
	if over.FontFamily != "" {
		base.FontFamily = over.FontFamily
	}
	if over.Weight != "" {
		base.Weight = over.Weight
	}
	if over.Slant != "" {
		base.Slant = over.Slant
	}
	if over.FontSizePx > 0 {
		base.FontSizePx = over.FontSizePx
	}
	if over.ShadowRadiusPx != nil {
		base.ShadowRadiusPx = *over.ShadowRadiusPx
	}
	if over.Language != "" {
		base.Language = over.Language
	}
}
