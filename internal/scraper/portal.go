package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pisowatch/logger"
)

// Selectors configures markup extraction for one portal. Each field is a
// fallback cascade: selectors are tried in order and the first that yields
// content wins, so a portal redesign usually costs one new selector at the
// front of a list rather than a code change.
type Selectors struct {
	Item        []string
	Link        []string
	Title       []string
	Price       []string
	Location    []string
	Surface     []string
	Bedrooms    []string
	Bathrooms   []string
	Image       []string
	Description []string
	NextPage    []string

	// Detail-page selectors. Empty DetailFeatures disables detail parsing.
	DetailFeatures    []string
	DetailDescription []string
	DetailZone        []string
}

// PortalConfig is the declarative description of one portal.
type PortalConfig struct {
	Name       string
	BaseURL    string
	UseBrowser bool
	Selectors  Selectors

	// SearchURL builds the first results-page URL for a filter.
	SearchURL func(baseURL string, f ScrapeFilter) string
}

// featureKeywords maps Spanish amenity phrases found in detail-page feature
// lists to listing fields.
var featureKeywords = map[string]string{
	"ascensor":           "has_elevator",
	"garaje":             "has_parking",
	"parking":            "has_parking",
	"plaza de garaje":    "has_parking",
	"piscina":            "has_pool",
	"terraza":            "has_terrace",
	"aire acondicionado": "has_ac",
	"calefaccion":        "has_heating",
	"calefacción":        "has_heating",
	"amueblado":          "is_furnished",
	"exterior":           "is_exterior",
}

// portalAdapter is the shared Adapter implementation. All four portals are
// instances of it with different PortalConfigs.
type portalAdapter struct {
	cfg PortalConfig
	log *logger.Logger
}

func newPortalAdapter(cfg PortalConfig) *portalAdapter {
	return &portalAdapter{cfg: cfg, log: logger.ForPortal(cfg.Name)}
}

func (a *portalAdapter) Name() string      { return a.cfg.Name }
func (a *portalAdapter) BaseURL() string   { return a.cfg.BaseURL }
func (a *portalAdapter) UsesBrowser() bool { return a.cfg.UseBrowser }

func (a *portalAdapter) BuildSearchURL(f ScrapeFilter) string {
	return a.cfg.SearchURL(a.cfg.BaseURL, f)
}

func (a *portalAdapter) ParseIndex(pageHTML string) []RawItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to parse results page")
		return nil
	}

	nodes := findFirst(doc.Selection, a.cfg.Selectors.Item)
	if nodes == nil {
		return nil
	}

	var items []RawItem
	nodes.Each(func(_ int, s *goquery.Selection) {
		item := a.parseItem(s)
		if item.String("url") != "" {
			items = append(items, item)
		}
	})

	a.log.Debug().Int("count", len(items)).Msg("Parsed result items")
	return items
}

func (a *portalAdapter) parseItem(s *goquery.Selection) RawItem {
	item := RawItem{}

	if link := selectFirst(s, a.cfg.Selectors.Link); link != nil {
		if href, ok := link.Attr("href"); ok {
			item["url"] = strings.TrimSpace(href)
		}
		if title, ok := link.Attr("title"); ok && strings.TrimSpace(title) != "" {
			item["title"] = strings.TrimSpace(title)
		}
	}

	setText(item, "title", s, a.cfg.Selectors.Title)
	setText(item, "price", s, a.cfg.Selectors.Price)
	setText(item, "city", s, a.cfg.Selectors.Location)
	setText(item, "surface", s, a.cfg.Selectors.Surface)
	setText(item, "bedrooms", s, a.cfg.Selectors.Bedrooms)
	setText(item, "bathrooms", s, a.cfg.Selectors.Bathrooms)
	setText(item, "description", s, a.cfg.Selectors.Description)

	if img := selectFirst(s, a.cfg.Selectors.Image); img != nil {
		src, ok := img.Attr("data-src")
		if !ok || strings.TrimSpace(src) == "" {
			src, _ = img.Attr("src")
		}
		if src = strings.TrimSpace(src); src != "" {
			item["images"] = []string{src}
		}
	}

	return item
}

func (a *portalAdapter) ParseDetail(pageHTML string, url string) RawItem {
	item := RawItem{}
	if len(a.cfg.Selectors.DetailFeatures) == 0 {
		return item
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		a.log.Warn().Err(err).Str("url", url).Msg("Failed to parse detail page")
		return item
	}

	if features := findFirst(doc.Selection, a.cfg.Selectors.DetailFeatures); features != nil {
		features.Each(func(_ int, s *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(s.Text()))
			if text == "" {
				return
			}
			for keyword, field := range featureKeywords {
				if strings.Contains(text, keyword) {
					item[field] = true
				}
			}
		})
	}

	setText(item, "description", doc.Selection, a.cfg.Selectors.DetailDescription)
	setText(item, "zone", doc.Selection, a.cfg.Selectors.DetailZone)

	return item
}

func (a *portalAdapter) NextPageURL(pageHTML string, currentURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}

	link := selectFirst(doc.Selection, a.cfg.Selectors.NextPage)
	if link == nil {
		return ""
	}
	href, ok := link.Attr("href")
	if !ok {
		return ""
	}

	next := NormalizeURL(href, a.cfg.BaseURL)
	if next == "" || next == currentURL {
		return ""
	}
	return next
}

// findFirst tries each selector in order and returns the first non-empty
// match set.
func findFirst(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := root.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// selectFirst is findFirst narrowed to a single node.
func selectFirst(root *goquery.Selection, selectors []string) *goquery.Selection {
	if found := findFirst(root, selectors); found != nil {
		return found.First()
	}
	return nil
}

// setText writes the first non-empty selector text into item, leaving any
// existing value alone.
func setText(item RawItem, key string, root *goquery.Selection, selectors []string) {
	if item.String(key) != "" {
		return
	}
	for _, sel := range selectors {
		if text := strings.TrimSpace(root.Find(sel).First().Text()); text != "" {
			item[key] = text
			return
		}
	}
}
