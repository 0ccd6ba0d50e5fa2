package scraper

import (
	"fmt"
	"net/url"
)

// Idealista is the market leader and the heaviest-guarded portal: results
// are rendered client-side behind anti-bot checks, so it goes through the
// browser fetcher.
func newIdealista() Adapter {
	return newPortalAdapter(PortalConfig{
		Name:       "idealista",
		BaseURL:    "https://www.idealista.com",
		UseBrowser: true,
		SearchURL:  idealistaSearchURL,
		Selectors: Selectors{
			Item:      []string{"article.item", "article[class*=item]", ".item-info-container"},
			Link:      []string{"a.item-link", "a[href*='/inmueble/']"},
			Title:     []string{"a.item-link", "h2.item-title"},
			Price:     []string{".item-price", ".price-row", "span.price"},
			Location:  []string{".item-location", "span.item-detail"},
			Surface:   []string{".item-detail-char span:contains('m²')", ".item-detail:contains('m²')"},
			Bedrooms:  []string{".item-detail-char span:contains('hab')", ".item-detail:contains('hab')"},
			Bathrooms: []string{".item-detail:contains('baño')"},
			Image:     []string{"img"},
			Description: []string{
				".item-description",
				".description",
			},
			NextPage: []string{"a.icon-arrow-right-after", "li.next a", ".pagination a[rel=next]", ".pagination li:last-child a"},

			DetailFeatures:    []string{".details-property li", ".details-property-feature-one li"},
			DetailDescription: []string{".comment p", ".adCommentsLanguage p"},
			DetailZone:        []string{".main-info__title-minor", "#headerMap li"},
		},
	})
}

// idealistaSearchURL builds /venta-viviendas/{city}-{province}/ style URLs.
func idealistaSearchURL(baseURL string, f ScrapeFilter) string {
	operation := "venta-viviendas"
	if f.OperationType == "alquiler" {
		operation = "alquiler-viviendas"
	}

	city := Slugify(f.City)
	province := Slugify(f.Province)

	var searchURL string
	switch {
	case city != "" && province != "":
		searchURL = fmt.Sprintf("%s/%s/%s-%s/", baseURL, operation, city, province)
	case province != "":
		searchURL = fmt.Sprintf("%s/%s/%s-provincia/", baseURL, operation, province)
	default:
		searchURL = fmt.Sprintf("%s/%s/", baseURL, operation)
	}

	params := url.Values{}
	if f.Price.Max > 0 {
		params.Set("precioHasta", fmt.Sprint(f.Price.Max))
	}
	if f.Bedrooms.Min > 0 {
		params.Set("habitaciones", fmt.Sprint(f.Bedrooms.Min))
	}
	if f.Surface.Min > 0 {
		params.Set("superficieMinima", fmt.Sprint(f.Surface.Min))
	}
	if len(params) > 0 {
		searchURL += "?" + params.Encode()
	}

	return searchURL
}
