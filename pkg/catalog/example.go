// example.go — Starter catalog for gocard init.
package catalog

import (
	"gopkg.in/yaml.v3"
)

var cardNames = []string{"RHC", "FHC", "Green", "Process", "Safe", "Verdifor"}

func exampleCards() []Card {
	cards := make([]Card, 0, len(cardNames))
	for _, n := range cardNames {
		cards = append(cards, Card{Name: n, Src: n + ".jpg"})
	}
	return cards
}

// ExampleCatalog returns the ramadan and founding-day occasions with their
// six cards each.
func ExampleCatalog() *Catalog {
	return &Catalog{
		Version:  "1.0",
		FontsDir: "fonts",
		Occasions: []Occasion{
			{
				ID:        "ramadan",
				Name:      "Ramadan",
				Theme:     Theme{Primary: "#1B3A5C", Secondary: "#0F2641", Accent: "#C9A84C"},
				CardsPath: "cards",
				Cards:     exampleCards(),
			},
			{
				ID:        "founding-day",
				Name:      "Founding Day",
				Theme:     Theme{Primary: "#6B4E45", Secondary: "#4A352F", Accent: "#D4A574"},
				CardsPath: "founding-day-cards",
				Cards:     exampleCards(),
			},
		},
	}
}

// ExampleYAML renders ExampleCatalog as catalog.yaml.
func ExampleYAML() ([]byte, error) {
	return yaml.Marshal(ExampleCatalog())
}
