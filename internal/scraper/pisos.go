package scraper

import (
	"fmt"
	"net/url"
)

// Pisos.com serves server-rendered markup and works over plain HTTP. It is
// the only portal with usable detail pages, so its detail selectors are
// populated.
func newPisos() Adapter {
	return newPortalAdapter(PortalConfig{
		Name:      "pisos",
		BaseURL:   "https://www.pisos.com",
		SearchURL: pisosSearchURL,
		Selectors: Selectors{
			Item:      []string{"article[class*=ad-preview]", "article[class*=property]", ".listing-item", ".anuncio"},
			Link:      []string{"a[class*=ad-title]", "a[href*='/piso/']", "a[href*='/vivienda/']", "a"},
			Title:     []string{"[class*=ad-title]", "h2", "h3"},
			Price:     []string{"[class*=ad-price]", "[class*=price]", ".precio"},
			Location:  []string{"[class*=location]", ".ubicacion", ".zona"},
			Surface:   []string{"[class*=feature]:contains('m²')", "[class*=detail]:contains('m²')"},
			Bedrooms:  []string{"[class*=feature]:contains('hab')", "[class*=detail]:contains('hab')"},
			Bathrooms: []string{"[class*=feature]:contains('baño')", "[class*=detail]:contains('baño')"},
			Image:     []string{"img"},
			Description: []string{
				"[class*=description]",
				".descripcion",
			},
			NextPage: []string{"a[rel=next]", "a[class*=next]", ".pagination a:contains('Siguiente')"},

			DetailFeatures:    []string{".features li", ".caracteristicas li", "[class*=features-list] li"},
			DetailDescription: []string{".description-body", "[class*=description] p"},
			DetailZone:        []string{".position-zone", "[class*=location-zone]"},
		},
	})
}

// pisosSearchURL builds /venta/pisos-{city}/ style URLs.
func pisosSearchURL(baseURL string, f ScrapeFilter) string {
	operation := "venta"
	if f.OperationType == "alquiler" {
		operation = "alquiler"
	}

	propertyPath := "pisos"
	switch f.PropertyType {
	case "casa":
		propertyPath = "casas"
	case "", "piso":
	default:
		propertyPath = "viviendas"
	}

	location := Slugify(f.City)
	if location == "" {
		location = Slugify(f.Province)
	}

	var searchURL string
	if location != "" {
		searchURL = fmt.Sprintf("%s/%s/%s-%s/", baseURL, operation, propertyPath, location)
	} else {
		searchURL = fmt.Sprintf("%s/%s/%s/", baseURL, operation, propertyPath)
	}

	params := url.Values{}
	if f.Price.Max > 0 {
		params.Set("preciomax", fmt.Sprint(f.Price.Max))
	}
	if f.Bedrooms.Min > 0 {
		params.Set("habitacionesmin", fmt.Sprint(f.Bedrooms.Min))
	}
	if f.Surface.Min > 0 {
		params.Set("superficiemin", fmt.Sprint(f.Surface.Min))
	}
	if len(params) > 0 {
		searchURL += "?" + params.Encode()
	}

	return searchURL
}
