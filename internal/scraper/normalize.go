package scraper

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	nonPriceChars = regexp.MustCompile(`[^0-9.,]`)
	surfacePat    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:m[²2]|metros)`)
	firstInt      = regexp.MustCompile(`\d+`)

	// Accent transliteration for URL path segments. Spanish portals use
	// unaccented, hyphenated city names in their routes.
	slugReplacer = strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
		"à", "a", "è", "e", "ì", "i", "ò", "o", "ù", "u",
		"ñ", "n", "ü", "u", "ç", "c",
		" ", "-",
	)
)

// CleanPrice parses a price string into whole euros. It disambiguates
// European ("1.234,56") and American ("1,234.56") separator conventions:
// when both separators appear the rightmost is the decimal mark, and a
// single separator followed by exactly three digits is a thousands mark.
// Decimals are truncated. Returns nil when no number can be extracted.
func CleanPrice(s string) *int {
	cleaned := nonPriceChars.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}

	dot := strings.LastIndex(cleaned, ".")
	comma := strings.LastIndex(cleaned, ",")

	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	case dot >= 0:
		if strings.Count(cleaned, ".") > 1 || len(cleaned)-dot-1 == 3 {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	case comma >= 0:
		if strings.Count(cleaned, ",") > 1 || len(cleaned)-comma-1 == 3 {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

// CleanSurface extracts a surface in square meters from strings like
// "85 m²" or "85,5 m2". Without a unit marker it falls back to the first
// integer in the string.
func CleanSurface(s string) *int {
	lower := strings.ToLower(s)
	if m := surfacePat.FindStringSubmatch(lower); m != nil {
		num := strings.ReplaceAll(m[1], ",", ".")
		if f, err := strconv.ParseFloat(num, 64); err == nil {
			n := int(f)
			return &n
		}
	}
	if m := firstInt.FindString(lower); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return &n
		}
	}
	return nil
}

// CleanCount extracts a room or bathroom count ("3 hab.", "2 baños").
func CleanCount(s string) *int {
	if m := firstInt.FindString(s); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return &n
		}
	}
	return nil
}

// ListingID derives the stable identifier for a listing: the first 16 hex
// characters of md5("portal:url"). The same portal and canonical URL always
// produce the same id, which is what upsert dedup relies on.
func ListingID(portal, url string) string {
	sum := md5.Sum([]byte(portal + ":" + url))
	return hex.EncodeToString(sum[:])[:16]
}

// NormalizeURL resolves rawURL against base and strips fragments and
// tracking query parameters, yielding the canonical listing URL.
func NormalizeURL(rawURL, base string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	baseU, err := url.Parse(base)
	if err != nil {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	resolved := baseU.ResolveReference(u)
	resolved.Fragment = ""

	q := resolved.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "fbclid" || key == "gclid" {
			q.Del(key)
		}
	}
	resolved.RawQuery = q.Encode()

	return resolved.String()
}

// Slugify lowercases text and transliterates Spanish accents for use in
// portal URL paths ("Móstoles" -> "mostoles", "San Sebastián" ->
// "san-sebastian").
func Slugify(text string) string {
	return slugReplacer.Replace(strings.ToLower(strings.TrimSpace(text)))
}

// BuildListing normalizes a raw adapter item into a canonical Listing.
// The only hard requirement is a listing URL; every other field is
// best-effort. The raw item is preserved verbatim in RawData.
func BuildListing(portal, baseURL string, item RawItem) (*Listing, error) {
	rawURL := item.String("url")
	if rawURL == "" {
		return nil, fmt.Errorf("item has no url")
	}

	canonical := NormalizeURL(rawURL, baseURL)
	now := time.Now().UTC()

	l := &Listing{
		ID:          ListingID(portal, canonical),
		Portal:      portal,
		URL:         canonical,
		Title:       item.String("title"),
		Description: item.String("description"),
		Province:    item.String("province"),
		City:        item.String("city"),
		Zone:        item.String("zone"),

		HasElevator: item.Bool("has_elevator"),
		HasParking:  item.Bool("has_parking"),
		HasPool:     item.Bool("has_pool"),
		HasTerrace:  item.Bool("has_terrace"),
		HasAC:       item.Bool("has_ac"),
		HasHeating:  item.Bool("has_heating"),
		IsFurnished: item.Bool("is_furnished"),
		IsExterior:  item.Bool("is_exterior"),

		OperationType: item.String("operation_type"),
		PropertyType:  item.String("property_type"),
		Images:        item.Strings("images"),

		IsActive:  true,
		FirstSeen: now,
		LastSeen:  now,
	}

	if s := item.String("price"); s != "" {
		l.Price = CleanPrice(s)
	}
	if s := item.String("surface"); s != "" {
		l.Surface = CleanSurface(s)
	}
	if s := item.String("bedrooms"); s != "" {
		l.Bedrooms = CleanCount(s)
	}
	if s := item.String("bathrooms"); s != "" {
		l.Bathrooms = CleanCount(s)
	}

	if raw, err := json.Marshal(item); err == nil {
		l.RawData = raw
	}

	return l, nil
}
