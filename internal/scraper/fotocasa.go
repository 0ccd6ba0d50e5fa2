package scraper

import (
	"fmt"
	"net/url"
)

// Fotocasa renders its result grid with JavaScript, so it also needs the
// browser fetcher.
func newFotocasa() Adapter {
	return newPortalAdapter(PortalConfig{
		Name:       "fotocasa",
		BaseURL:    "https://www.fotocasa.es",
		UseBrowser: true,
		SearchURL:  fotocasaSearchURL,
		Selectors: Selectors{
			Item:      []string{"article[class*=re-Card]", "article[class*=PropertyCard]", "article"},
			Link:      []string{"a[class*=re-Card-link]", "a[href*='/inmueble/']", "a[href*='/vivienda/']", "a"},
			Title:     []string{"[class*=re-Card-title]", "h2", "h3"},
			Price:     []string{"[class*=re-Card-price]", "span[class*=price]"},
			Location:  []string{"[class*=re-Card-location]", "span[class*=location]"},
			Surface:   []string{"[class*=re-Card-features] span:contains('m²')", "span:contains('m²')"},
			Bedrooms:  []string{"[class*=re-Card-features] span:contains('hab')", "span:contains('hab')"},
			Bathrooms: []string{"[class*=re-Card-features] span:contains('baño')", "span:contains('baño')"},
			Image:     []string{"img"},
			Description: []string{
				"[class*=re-Card-description]",
				"[class*=description]",
			},
			NextPage: []string{"a[class*=sui-PaginationBasic-link][rel=next]", "a[class*=next]", ".pagination a[rel=next]"},
		},
	})
}

// fotocasaSearchURL builds /es/comprar/viviendas/{city}-capital/todas-las-zonas/l
// style URLs.
func fotocasaSearchURL(baseURL string, f ScrapeFilter) string {
	operation := "comprar"
	if f.OperationType == "alquiler" {
		operation = "alquiler"
	}

	city := Slugify(f.City)
	province := Slugify(f.Province)

	var locationPath string
	switch {
	case city != "":
		locationPath = city + "-capital"
	case province != "":
		locationPath = province + "-provincia"
	default:
		locationPath = "espana"
	}

	searchURL := fmt.Sprintf("%s/es/%s/viviendas/%s/todas-las-zonas/l", baseURL, operation, locationPath)

	params := url.Values{}
	if f.Price.Max > 0 {
		params.Set("maxPrice", fmt.Sprint(f.Price.Max))
	}
	if f.Bedrooms.Min > 0 {
		params.Set("minRooms", fmt.Sprint(f.Bedrooms.Min))
	}
	if f.Surface.Min > 0 {
		params.Set("minSurface", fmt.Sprint(f.Surface.Min))
	}
	if len(params) > 0 {
		searchURL += "?" + params.Encode()
	}

	return searchURL
}
