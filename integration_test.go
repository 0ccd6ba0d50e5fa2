package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pisowatch/config"
	"pisowatch/internal/fetch"
	"pisowatch/internal/scraper"
	"pisowatch/services/store"
	"pisowatch/services/worker"
)

// Two pages of pisos.com style markup. Page one links to page two, page
// two has no pagination, so a full crawl yields four listings in two
// fetches.
const portalPageOne = `
<!DOCTYPE html>
<html>
<body>
	<article class="ad-preview">
		<a class="ad-title" href="/piso/zaragoza-centro-101/">Piso en Centro</a>
		<span class="ad-price">185.000 €</span>
		<span class="location">Centro, Zaragoza</span>
		<span class="feature">92 m²</span>
		<span class="feature">3 hab.</span>
	</article>
	<article class="ad-preview">
		<a class="ad-title" href="/piso/zaragoza-delicias-102/">Piso en Delicias</a>
		<span class="ad-price">120.000 €</span>
	</article>
	<nav class="pagination">
		<a rel="next" href="/venta/pisos-zaragoza/2/">Siguiente</a>
	</nav>
</body>
</html>`

const portalPageTwo = `
<!DOCTYPE html>
<html>
<body>
	<article class="ad-preview">
		<a class="ad-title" href="/piso/zaragoza-actur-103/">Piso en Actur</a>
		<span class="ad-price">150.000 €</span>
	</article>
	<article class="ad-preview">
		<a class="ad-title" href="/piso/zaragoza-romareda-104/">Piso en Romareda</a>
		<span class="ad-price">199.000 €</span>
	</article>
</body>
</html>`

// rewriteFetcher redirects every portal URL to the test server while
// keeping path and query intact, so the real adapter's URLs stay as-is.
type rewriteFetcher struct {
	serverURL string
	inner     fetch.Fetcher
	fetches   atomic.Int32
}

var _ fetch.Fetcher = (*rewriteFetcher)(nil)

func (f *rewriteFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	f.fetches.Add(1)
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	rewritten := f.serverURL + u.Path
	if u.RawQuery != "" {
		rewritten += "?" + u.RawQuery
	}
	return f.inner.Fetch(ctx, rewritten)
}

func testPortalServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if strings.Contains(r.URL.Path, "/2/") {
			w.Write([]byte(portalPageTwo))
			return
		}
		w.Write([]byte(portalPageOne))
	}))
}

func integrationProfiles() *config.Profiles {
	p := &config.Profiles{
		Profiles: map[string]config.Profile{
			"zaragoza": {
				Name:     "Zaragoza",
				Location: config.Location{Province: "Zaragoza", City: "Zaragoza"},
				Price:    config.Range{Max: 250000},
			},
		},
	}
	p.Global.OperationType = "compra"
	return p
}

// TestIntegration runs a full crawl against a fixture portal: real pisos
// adapter, real HTTP fetcher, real SQLite store, orchestrated by the
// worker.
func TestIntegration(t *testing.T) {
	server := testPortalServer()
	defer server.Close()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	assert.NoError(t, err)
	defer st.Close()

	fetcher := &rewriteFetcher{
		serverURL: server.URL,
		inner:     fetch.NewDirectFetcher("pisos", nil, fetch.Options{Timeout: 10 * time.Second}),
	}

	engines := func(portal string) (*scraper.Engine, error) {
		adapter, err := scraper.NewAdapter(portal)
		if err != nil {
			return nil, err
		}
		return scraper.NewEngine(adapter, fetcher, scraper.EngineOptions{MaxPages: 5}), nil
	}

	cfg := &config.Config{
		Portals:       []string{"pisos"},
		MaxPages:      5,
		RetentionDays: 90,
		BackoffFactor: 2,
	}

	w := worker.New(cfg, integrationProfiles(), st, nil, nil, engines)

	stats, err := w.Run(context.Background(), worker.RunOptions{})
	assert.NoError(t, err)

	assert.Equal(t, 4, stats.TotalFound)
	assert.Equal(t, 4, stats.TotalNew)
	assert.Equal(t, 0, stats.TotalErrors)
	assert.Equal(t, "completed", stats.Status)
	assert.Equal(t, int32(2), fetcher.fetches.Load())

	total, active, isNew, err := st.CountListings(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, int64(4), active)
	assert.Equal(t, int64(4), isNew)

	// The listing URLs stay on the portal's real domain
	id := scraper.ListingID("pisos", "https://www.pisos.com/piso/zaragoza-centro-101/")
	exists, err := st.Exists(context.Background(), id)
	assert.NoError(t, err)
	assert.True(t, exists)

	// A second run over the same pages discovers nothing new
	stats, err = w.Run(context.Background(), worker.RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 4, stats.TotalFound)
	assert.Equal(t, 0, stats.TotalNew)

	_, _, isNew, err = st.CountListings(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), isNew)
}
