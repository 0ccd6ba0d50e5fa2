package scraper

import (
	"encoding/json"
	"strings"
	"time"
)

// RawItem is the untyped field map an adapter extracts from portal markup,
// before normalization. Any field may be missing; "url" is the only one a
// listing cannot be built without.
type RawItem map[string]any

// String returns the trimmed string value for key, or "" when absent or
// not a string.
func (r RawItem) String(key string) string {
	if v, ok := r[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Bool returns the boolean value for key, or nil when absent.
func (r RawItem) Bool(key string) *bool {
	if v, ok := r[key].(bool); ok {
		return &v
	}
	return nil
}

// Strings returns the string-slice value for key.
func (r RawItem) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Merge copies fields from other into r, overwriting only absent or empty
// values. Used to layer detail-page fields over index-page fields.
func (r RawItem) Merge(other RawItem) {
	for k, v := range other {
		if existing, ok := r[k]; ok {
			if s, isStr := existing.(string); !isStr || strings.TrimSpace(s) != "" {
				continue
			}
		}
		r[k] = v
	}
}

// Listing is the canonical, persisted property record.
type Listing struct {
	ID     string `json:"id"`
	Portal string `json:"portal"`
	URL    string `json:"url"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Price     *int `json:"price,omitempty"`
	Surface   *int `json:"surface,omitempty"`
	Bedrooms  *int `json:"bedrooms,omitempty"`
	Bathrooms *int `json:"bathrooms,omitempty"`

	Province string `json:"province,omitempty"`
	City     string `json:"city,omitempty"`
	Zone     string `json:"zone,omitempty"`

	HasElevator *bool `json:"has_elevator,omitempty"`
	HasParking  *bool `json:"has_parking,omitempty"`
	HasPool     *bool `json:"has_pool,omitempty"`
	HasTerrace  *bool `json:"has_terrace,omitempty"`
	HasAC       *bool `json:"has_ac,omitempty"`
	HasHeating  *bool `json:"has_heating,omitempty"`
	IsFurnished *bool `json:"is_furnished,omitempty"`
	IsExterior  *bool `json:"is_exterior,omitempty"`

	OperationType string   `json:"operation_type,omitempty"`
	PropertyType  string   `json:"property_type,omitempty"`
	Images        []string `json:"images,omitempty"`

	IsNew     bool      `json:"is_new"`
	IsActive  bool      `json:"is_active"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// RawData is the original RawItem, kept opaque for audit. Never parsed back.
	RawData json.RawMessage `json:"raw_data,omitempty"`
}

// IntRange bounds a numeric filter field. Zero means unset.
type IntRange struct {
	Min int
	Max int
}

// Active reports whether either bound is set.
func (r IntRange) Active() bool {
	return r.Min > 0 || r.Max > 0
}

// Contains reports whether v satisfies the set bounds.
func (r IntRange) Contains(v int) bool {
	if r.Min > 0 && v < r.Min {
		return false
	}
	if r.Max > 0 && v > r.Max {
		return false
	}
	return true
}

// ScrapeFilter is an immutable search criteria value passed to
// Adapter.BuildSearchURL and matched against normalized listings.
type ScrapeFilter struct {
	OperationType string
	PropertyType  string
	Province      string
	City          string
	Price         IntRange
	Surface       IntRange
	Bedrooms      IntRange
	Bathrooms     IntRange
}

// Adapter is the capability set every portal implements. Adapters are pure
// parsing and URL-building logic: no I/O, no delays, no robots.txt checks.
// That keeps the crawl engine the single owner of politeness and failure
// policy.
type Adapter interface {
	// Name returns the lowercase portal identifier.
	Name() string

	// BaseURL returns the portal root used to resolve relative URLs.
	BaseURL() string

	// UsesBrowser reports whether the portal needs JavaScript rendering.
	UsesBrowser() bool

	// BuildSearchURL deterministically builds the first results-page URL.
	BuildSearchURL(filter ScrapeFilter) string

	// ParseIndex extracts raw items from a results page. It never fails:
	// unrecognizable markup yields an empty slice.
	ParseIndex(pageHTML string) []RawItem

	// ParseDetail extracts additional fields from a listing's detail page.
	// Adapters without detail support return an empty RawItem.
	ParseDetail(pageHTML string, url string) RawItem

	// NextPageURL returns the next results-page URL, or "" when pagination
	// is exhausted. Implementations must not return currentURL.
	NextPageURL(pageHTML string, currentURL string) string
}
