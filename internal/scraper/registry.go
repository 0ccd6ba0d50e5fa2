package scraper

import (
	"fmt"
	"sort"
	"strings"
)

var adapterConstructors = map[string]func() Adapter{
	"idealista":  newIdealista,
	"fotocasa":   newFotocasa,
	"pisos":      newPisos,
	"habitaclia": newHabitaclia,
}

// NewAdapter constructs the adapter for a portal by name. Names are
// case-insensitive.
func NewAdapter(name string) (Adapter, error) {
	constructor, ok := adapterConstructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported portal %q (available: %s)",
			name, strings.Join(AvailablePortals(), ", "))
	}
	return constructor(), nil
}

// AvailablePortals returns the supported portal names, sorted.
func AvailablePortals() []string {
	names := make([]string, 0, len(adapterConstructors))
	for name := range adapterConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
