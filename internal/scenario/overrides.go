package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Override adjusts one scenario of the built-in table by name.
type Override struct {
	Name     string   `yaml:"name"`
	Weight   *int     `yaml:"weight,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
	Disabled bool     `yaml:"disabled,omitempty"`
}

// Overrides is the document stored in a scenarios file.
type Overrides struct {
	Scenarios []Override `yaml:"scenarios"`
}

// LoadOverrides reads a YAML scenarios file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios file: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes a YAML scenarios document.
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse scenarios file: %w", err)
	}
	for i, s := range o.Scenarios {
		if s.Name == "" {
			return nil, fmt.Errorf("scenario override %d: name is required", i)
		}
		if s.Weight != nil && *s.Weight < 0 {
			return nil, fmt.Errorf("scenario override %q: negative weight", s.Name)
		}
	}
	return &o, nil
}

// Apply returns a copy of table with the overrides applied. Unknown names are
// an error so typos do not silently run the default mix.
func (o *Overrides) Apply(table []Scenario) ([]Scenario, error) {
	byName := make(map[string]Override, len(o.Scenarios))
	for _, ov := range o.Scenarios {
		if _, ok := Find(table, ov.Name); !ok {
			return nil, fmt.Errorf("unknown scenario %q", ov.Name)
		}
		byName[ov.Name] = ov
	}

	out := make([]Scenario, 0, len(table))
	for _, s := range table {
		ov, ok := byName[s.Name]
		if !ok {
			out = append(out, s)
			continue
		}
		if ov.Disabled {
			continue
		}
		if ov.Weight != nil {
			s.Weight = *ov.Weight
		}
		if ov.Tags != nil {
			s.Tags = append([]string(nil), ov.Tags...)
		}
		out = append(out, s)
	}
	return out, nil
}
