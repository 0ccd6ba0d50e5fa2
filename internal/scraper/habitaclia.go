package scraper

import (
	"fmt"
	"net/url"
)

// Habitaclia, strongest in Catalonia. Server-rendered, plain HTTP is
// enough.
func newHabitaclia() Adapter {
	return newPortalAdapter(PortalConfig{
		Name:      "habitaclia",
		BaseURL:   "https://www.habitaclia.com",
		SearchURL: habitacliaSearchURL,
		Selectors: Selectors{
			Item:      []string{"article[class*=list-item]", "article[class*=property-item]", "[data-listid]"},
			Link:      []string{"a[class*=list-item-link]", "a[href*='/vivienda']", "a[href*='/piso']"},
			Title:     []string{"h3[class*=list-item-title]", "h2[class*=title]", "a[class*=list-item-link]"},
			Price:     []string{"[class*=list-item-price]", "[class*=price]"},
			Location:  []string{"[class*=list-item-location]", "[class*=location]"},
			Surface:   []string{"[class*=list-item-feature]:contains('m²')", "[class*=feature]:contains('m2')"},
			Bedrooms:  []string{"[class*=list-item-feature]:contains('hab')", "[class*=feature]:contains('hab')"},
			Bathrooms: []string{"[class*=list-item-feature]:contains('baño')"},
			Image:     []string{"img"},
			Description: []string{
				"[class*=list-item-description]",
				"[class*=description]",
			},
			NextPage: []string{"a[class*=next]", "nav[class*=pagination] a[rel=next]"},
		},
	})
}

// habitacliaSearchURL builds /comprar-vivienda-en-{city}.htm style URLs.
func habitacliaSearchURL(baseURL string, f ScrapeFilter) string {
	operation := "comprar"
	if f.OperationType == "alquiler" {
		operation = "alquilar"
	}

	city := Slugify(f.City)
	province := Slugify(f.Province)

	var searchURL string
	switch {
	case city != "":
		searchURL = fmt.Sprintf("%s/%s-vivienda-en-%s.htm", baseURL, operation, city)
	case province != "":
		searchURL = fmt.Sprintf("%s/%s-vivienda-en-%s_provincia.htm", baseURL, operation, province)
	default:
		searchURL = fmt.Sprintf("%s/%s-vivienda.htm", baseURL, operation)
	}

	params := url.Values{}
	if f.Price.Max > 0 {
		params.Set("precio_max", fmt.Sprint(f.Price.Max))
	}
	if f.Bedrooms.Min > 0 {
		params.Set("habitaciones_min", fmt.Sprint(f.Bedrooms.Min))
	}
	if f.Surface.Min > 0 {
		params.Set("metros_min", fmt.Sprint(f.Surface.Min))
	}
	if len(params) > 0 {
		searchURL += "?" + params.Encode()
	}

	return searchURL
}
