package identity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tables is the static lookup data for owner resolution. It is loaded once at
// startup and never mutated afterwards.
type Tables struct {
	// NameVariants maps a spelling used in the topic table to the display
	// name used by the tracker (accents, transliterations).
	NameVariants map[string]string `yaml:"name_variants"`
	// Overrides are checked in order; the first keyword found in an item
	// title wins.
	Overrides []Override `yaml:"overrides"`
}

type Override struct {
	Keyword string `yaml:"keyword"`
	Owner   string `yaml:"owner"`
}

// DefaultTables are the built-in tables used when no tables file is
// deployed.
func DefaultTables() Tables {
	return Tables{
		NameVariants: map[string]string{
			"Vladimir Krska":   "Vladimír Kriška",
			"Zuzana Bednarova": "Zuzana Bednářová",
			"Jiri Zavora":      "Jiří Závora",
		},
		Overrides: []Override{
			{Keyword: "native datatypes", Owner: "Zuzana Bednarova"},
		},
	}
}

func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read identity tables: %w", err)
	}
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, fmt.Errorf("parse identity tables yaml: %w", err)
	}
	if err := t.validate(); err != nil {
		return Tables{}, fmt.Errorf("identity tables %s: %w", path, err)
	}
	return t, nil
}

func (t Tables) validate() error {
	for i, o := range t.Overrides {
		if strings.TrimSpace(o.Keyword) == "" {
			return fmt.Errorf("override %d: keyword is empty", i)
		}
		if strings.TrimSpace(o.Owner) == "" {
			return fmt.Errorf("override %d (%s): owner is empty", i, o.Keyword)
		}
	}
	return nil
}
