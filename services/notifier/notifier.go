package notifier

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"pisowatch/helpers"
	"pisowatch/internal/scraper"
)

// Notifier is one notification channel for freshly discovered listings.
type Notifier interface {
	// Name returns the channel identifier used in notification records.
	Name() string

	// IsConfigured reports whether the channel has everything it needs
	// to send. Unconfigured channels are skipped, never errors.
	IsConfigured() bool

	// Notify sends the batch of new listings. In test mode the message
	// is logged instead of sent.
	Notify(ctx context.Context, listings []*scraper.Listing, testMode bool) error
}

// FormatPrice renders whole euros with dot thousands separators, the way
// Spanish portals print them.
func FormatPrice(price int) string {
	s := fmt.Sprint(price)
	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return b.String() + " €"
}

// summaryText builds the plain-HTML run summary shared by all channels.
func summaryText(listings []*scraper.Listing) string {
	lines := []string{
		"🏠 <b>Nuevos pisos encontrados</b>",
		"",
		fmt.Sprintf("📊 Total: <b>%d</b> anuncios", len(listings)),
		fmt.Sprintf("📅 %s", time.Now().Format("02/01/2006 15:04")),
	}

	byPortal := map[string]int{}
	for _, l := range listings {
		byPortal[l.Portal]++
	}
	portals := make([]string, 0, len(byPortal))
	for p := range byPortal {
		portals = append(portals, p)
	}
	sort.Strings(portals)

	lines = append(lines, "", "📱 Por portal:")
	for _, p := range portals {
		lines = append(lines, fmt.Sprintf("  • %s: %d", p, byPortal[p]))
	}

	var minPrice, maxPrice int
	for _, l := range listings {
		if l.Price == nil {
			continue
		}
		if minPrice == 0 || *l.Price < minPrice {
			minPrice = *l.Price
		}
		if *l.Price > maxPrice {
			maxPrice = *l.Price
		}
	}
	if minPrice > 0 {
		lines = append(lines, "", fmt.Sprintf("💰 Precios: %s - %s", FormatPrice(minPrice), FormatPrice(maxPrice)))
	}

	return strings.Join(lines, "\n")
}

// listingText builds the per-listing HTML message.
func listingText(l *scraper.Listing) string {
	var lines []string

	title := l.Title
	if title == "" {
		title = "Sin título"
	}
	lines = append(lines, fmt.Sprintf("🏢 <b>%s</b>", html.EscapeString(helpers.TruncateText(title, 100))))

	if l.Price != nil {
		lines = append(lines, fmt.Sprintf("💰 <b>%s</b>", FormatPrice(*l.Price)))
	} else {
		lines = append(lines, "💰 Consultar precio")
	}

	if loc := locationText(l); loc != "" {
		lines = append(lines, "📍 "+html.EscapeString(loc))
	}

	var features []string
	if l.Bedrooms != nil {
		features = append(features, fmt.Sprintf("🛏 %d hab", *l.Bedrooms))
	}
	if l.Bathrooms != nil {
		features = append(features, fmt.Sprintf("🚿 %d baños", *l.Bathrooms))
	}
	if l.Surface != nil {
		features = append(features, fmt.Sprintf("📐 %d m²", *l.Surface))
	}
	if len(features) > 0 {
		lines = append(lines, strings.Join(features, " | "))
	}

	var extras []string
	for _, e := range []struct {
		set  *bool
		name string
	}{
		{l.HasElevator, "Ascensor"},
		{l.HasParking, "Garaje"},
		{l.HasPool, "Piscina"},
		{l.HasTerrace, "Terraza"},
		{l.HasAC, "A/A"},
	} {
		if e.set != nil && *e.set {
			extras = append(extras, e.name)
		}
	}
	if len(extras) > 0 {
		lines = append(lines, "✨ "+strings.Join(extras, ", "))
	}

	if l.Description != "" {
		lines = append(lines, "", "📝 "+html.EscapeString(helpers.TruncateText(l.Description, 150)))
	}

	lines = append(lines, "", fmt.Sprintf("🔗 <a href=\"%s\">Ver anuncio</a>", l.URL))
	return strings.Join(lines, "\n")
}

func locationText(l *scraper.Listing) string {
	var parts []string
	if l.Zone != "" {
		parts = append(parts, l.Zone)
	}
	if l.City != "" {
		parts = append(parts, l.City)
	}
	if l.Province != "" && l.Province != l.City {
		parts = append(parts, l.Province)
	}
	return strings.Join(parts, ", ")
}
