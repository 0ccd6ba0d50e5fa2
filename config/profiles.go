package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Range is an optional min/max bound on a numeric listing field.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Location names the area a profile searches.
type Location struct {
	Province string `yaml:"province"`
	City     string `yaml:"city"`
}

// Profile is one saved search: a location plus the bounds a listing must
// satisfy to be notified.
type Profile struct {
	Name      string   `yaml:"name"`
	Enabled   *bool    `yaml:"enabled"`
	Location  Location `yaml:"location"`
	Price     Range    `yaml:"price"`
	Surface   Range    `yaml:"surface"`
	Bedrooms  Range    `yaml:"bedrooms"`
	Bathrooms Range    `yaml:"bathrooms"`
}

// IsEnabled defaults to true when the profile does not say otherwise.
func (p Profile) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Profiles is the parsed search profile file.
type Profiles struct {
	Global struct {
		OperationType string   `yaml:"operation_type"`
		PropertyTypes []string `yaml:"property_types"`
	} `yaml:"global"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// OperationType returns the configured operation, defaulting to a sale search.
func (p *Profiles) OperationType() string {
	if p.Global.OperationType == "" {
		return "compra"
	}
	return p.Global.OperationType
}

// PropertyType returns the primary property type, defaulting to flats.
func (p *Profiles) PropertyType() string {
	if len(p.Global.PropertyTypes) == 0 {
		return "piso"
	}
	return p.Global.PropertyTypes[0]
}

// LoadProfiles reads and parses the search profile file.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file %s: %w", path, err)
	}

	var profiles Profiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}

	if len(profiles.Profiles) == 0 {
		return nil, fmt.Errorf("profiles file %s defines no profiles", path)
	}

	return &profiles, nil
}
