// validator.go — Validate a catalog and describe it for the CLI.
package catalog

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/xob0t/GoCard/pkg/compositor"
	"github.com/xob0t/GoCard/pkg/generator"
)

// Validate returns warnings (never fatal errors) for graceful degradation:
// duplicate IDs and card names, unknown profiles, bad theme colors, preset
// fonts outside the profile and, for catalogs loaded from disk, missing
// card files.
func Validate(c *Catalog) []string {
	if c == nil {
		return nil
	}
	builtins := compositor.Profiles()

	var warnings []string
	seen := make(map[string]struct{}, len(c.Occasions))
	for i := range c.Occasions {
		o := &c.Occasions[i]
		if o.ID == "" {
			warnings = append(warnings, fmt.Sprintf("occasion #%d has no id", i+1))
		}
		if _, dup := seen[o.ID]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate occasion %q; only the first is used", o.ID))
		}
		seen[o.ID] = struct{}{}

		name := o.Profile
		if name == "" {
			name = o.ID
		}
		if _, ok := builtins[name]; !ok {
			warnings = append(warnings, fmt.Sprintf("occasion %q: unknown profile %q, using %q", o.ID, name, DefaultOccasion))
		}
		if _, err := c.ProfileFor(o.ID); err != nil {
			warnings = append(warnings, err.Error())
		}

		for field, hex := range map[string]string{"primary": o.Theme.Primary, "secondary": o.Theme.Secondary, "accent": o.Theme.Accent} {
			if hex == "" {
				continue
			}
			if _, _, _, err := generator.ParseColor(hex); err != nil || hex == "random" {
				warnings = append(warnings, fmt.Sprintf("occasion %q: theme %s color %q is not #rrggbb", o.ID, field, hex))
			}
		}

		if len(o.Cards) == 0 {
			warnings = append(warnings, fmt.Sprintf("occasion %q has no cards", o.ID))
		}
		names := make(map[string]struct{}, len(o.Cards))
		for _, card := range o.Cards {
			if _, dup := names[card.Name]; dup {
				warnings = append(warnings, fmt.Sprintf("occasion %q: duplicate card %q", o.ID, card.Name))
			}
			names[card.Name] = struct{}{}

			if card.Src == "" {
				warnings = append(warnings, fmt.Sprintf("occasion %q: card %q has no src", o.ID, card.Name))
				continue
			}
			ref := c.Resolve(o, card)
			if c.BaseDir != "" && !isURL(ref) {
				if _, err := os.Stat(ref); err != nil {
					warnings = append(warnings, fmt.Sprintf("occasion %q: card %q file missing: %s", o.ID, card.Name, ref))
				}
			}
		}
	}
	slices.Sort(warnings)
	return warnings
}

// Describe returns a human-readable listing of the catalog.
func Describe(c *Catalog) string {
	var b strings.Builder
	if c.Version != "" {
		fmt.Fprintf(&b, "Catalog v%s\n", c.Version)
	}
	for i := range c.Occasions {
		o := &c.Occasions[i]
		fmt.Fprintf(&b, "\n  [%s] %s (%d cards)\n", o.ID, o.Name, len(o.Cards))
		if p, err := c.ProfileFor(o.ID); err == nil {
			fmt.Fprintf(&b, "    presets: %s\n", strings.Join(p.PresetNames(), ", "))
		}
		for _, card := range o.Cards {
			fmt.Fprintf(&b, "    %-12s %s\n", card.Name, c.Resolve(o, card))
		}
	}
	return b.String()
}
