// Package delivery maps a district/city selection onto a shipping fee using
// an ordered rule table. The first matching rule wins.
package delivery

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default fee tiers, in whole taka.
const (
	SpecialFee int64 = 100
	MetroFee   int64 = 70
	DefaultFee int64 = 130
)

// Rule matches when the city contains any of CityContains or the district
// equals any of Districts. Comparison ignores case and surrounding space.
type Rule struct {
	Name         string   `yaml:"name" json:"name"`
	Fee          int64    `yaml:"fee" json:"fee"`
	CityContains []string `yaml:"cities_containing" json:"citiesContaining,omitempty"`
	Districts    []string `yaml:"districts" json:"districts,omitempty"`
}

// Matches evaluates the rule against a normalised selection.
func (r Rule) Matches(city, district string) bool {
	city, district = normalize(city), normalize(district)
	if city != "" {
		for _, fragment := range r.CityContains {
			if f := normalize(fragment); f != "" && strings.Contains(city, f) {
				return true
			}
		}
	}
	if district != "" {
		for _, d := range r.Districts {
			if normalize(d) == district {
				return true
			}
		}
	}
	return false
}

// Calculator evaluates rules top-down and falls back to DefaultFee.
type Calculator struct {
	Rules      []Rule `yaml:"rules"`
	DefaultFee int64  `yaml:"default_fee"`
}

// DefaultCalculator returns the built-in rule table.
func DefaultCalculator() Calculator {
	return Calculator{
		Rules: []Rule{
			{
				Name:         "special-area",
				Fee:          SpecialFee,
				CityContains: []string{"Savar", "Keraniganj", "Ashulia", "Tongi"},
				Districts:    []string{"Gazipur"},
			},
			{Name: "metro", Fee: MetroFee, Districts: []string{"Dhaka"}},
		},
		DefaultFee: DefaultFee,
	}
}

// Quote is a computed fee and the rule that produced it.
type Quote struct {
	Fee  int64  `json:"fee"`
	Rule string `json:"rule"`
	// Determined is false while neither city nor district is selected.
	Determined bool `json:"determined"`
}

// Quote computes the fee for the selection. With nothing selected the fee is
// zero and the quote is undetermined.
func (c Calculator) Quote(city, district string) Quote {
	if normalize(city) == "" && normalize(district) == "" {
		return Quote{Rule: "unselected"}
	}
	for _, rule := range c.Rules {
		if rule.Matches(city, district) {
			return Quote{Fee: rule.Fee, Rule: rule.Name, Determined: true}
		}
	}
	return Quote{Fee: c.DefaultFee, Rule: "default", Determined: true}
}

// Fee is Quote(city, district).Fee.
func (c Calculator) Fee(city, district string) int64 {
	return c.Quote(city, district).Fee
}

// LoadRules reads a rule table from a YAML file. An empty path returns the
// built-in table.
func LoadRules(path string) (Calculator, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCalculator(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Calculator{}, fmt.Errorf("delivery: read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table.
func ParseRules(data []byte) (Calculator, error) {
	var c Calculator
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Calculator{}, fmt.Errorf("delivery: parse rules: %w", err)
	}
	if err := c.validate(); err != nil {
		return Calculator{}, err
	}
	return c, nil
}

func (c Calculator) validate() error {
	var errs []error
	if c.DefaultFee < 0 {
		errs = append(errs, errors.New("default_fee must not be negative"))
	}
	for i, rule := range c.Rules {
		if rule.Fee < 0 {
			errs = append(errs, fmt.Errorf("rule %d (%s): fee must not be negative", i, rule.Name))
		}
		if len(rule.CityContains) == 0 && len(rule.Districts) == 0 {
			errs = append(errs, fmt.Errorf("rule %d (%s): needs cities_containing or districts", i, rule.Name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("delivery: invalid rules: %w", errors.Join(errs...))
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
