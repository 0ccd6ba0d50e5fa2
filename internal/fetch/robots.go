package fetch

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"pisowatch/helpers"
	"pisowatch/logger"
	"pisowatch/services/cache"
)

const robotsCacheTTL = 24 * time.Hour

// RobotsGate answers whether a URL may be crawled according to the
// portal's robots.txt. The file is fetched lazily on first use and kept
// for the lifetime of the gate; when it cannot be fetched or parsed at
// all, the gate allows everything rather than silently killing the crawl.
type RobotsGate struct {
	portal  string
	baseURL string
	client  *http.Client
	cache   cache.CacheService
	log     *logger.Logger

	mu     sync.Mutex
	loaded bool
	group  *robotstxt.Group
}

func NewRobotsGate(portal, baseURL string, timeout time.Duration, cacheSvc cache.CacheService) *RobotsGate {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsGate{
		portal:  portal,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   cacheSvc,
		log:     logger.ForFetcher().WithField("portal", portal),
	}
}

// Allowed reports whether rawURL may be fetched by our crawler.
func (g *RobotsGate) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	g.mu.Lock()
	if !g.loaded {
		g.group = g.load()
		g.loaded = true
	}
	group := g.group
	g.mu.Unlock()

	if group == nil {
		return true
	}

	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

// load fetches and parses robots.txt, consulting the shared cache first.
// A nil return means no restrictions could be established.
func (g *RobotsGate) load() *robotstxt.Group {
	cacheKey := "robots:" + g.portal

	if g.cache != nil {
		if body, err := g.cache.Get(cacheKey); err == nil && len(body) > 0 {
			if data, err := robotstxt.FromBytes(body); err == nil {
				g.log.Debug().Msg("Loaded robots.txt from cache")
				return data.FindGroup("*")
			}
		}
	}

	req, err := http.NewRequest(http.MethodGet, g.baseURL+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	helpers.SetBrowserHeaders(req, nil)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn().Err(err).Msg("Could not fetch robots.txt, allowing all")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		g.log.Warn().Err(err).Msg("Could not read robots.txt, allowing all")
		return nil
	}

	// FromStatusAndBytes applies the RFC rules for HTTP errors: 4xx means
	// no restrictions, 5xx means disallow all.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		g.log.Warn().Err(err).Msg("Could not parse robots.txt, allowing all")
		return nil
	}

	if g.cache != nil && resp.StatusCode == http.StatusOK {
		if err := g.cache.Set(cacheKey, body, robotsCacheTTL); err != nil {
			g.log.Debug().Err(err).Msg("Failed to cache robots.txt")
		}
	}

	g.log.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("Fetched robots.txt")
	return data.FindGroup("*")
}
