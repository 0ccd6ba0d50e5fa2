package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"pisowatch/helpers"
	"pisowatch/logger"
	errs "pisowatch/pkg/errors"
)

// settleDelay gives client-side rendering time to finish after load.
const settleDelay = 2 * time.Second

// One Chromium for the whole process. Launching per portal triples memory
// and makes the anti-bot vendors more suspicious, not less.
var (
	browserMu     sync.Mutex
	sharedPW      *playwright.Playwright
	sharedBrowser playwright.Browser
)

// pageMu serializes page navigation across all browser fetchers. Parallel
// tabs against the same anti-bot vendor get the whole session banned.
var pageMu sync.Mutex

func sharedBrowserInstance() (playwright.Browser, error) {
	browserMu.Lock()
	defer browserMu.Unlock()

	if sharedBrowser != nil && sharedBrowser.IsConnected() {
		return sharedBrowser, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	sharedPW = pw
	sharedBrowser = browser
	return sharedBrowser, nil
}

// CloseSharedBrowser shuts down the shared Chromium. Call once on exit.
func CloseSharedBrowser() {
	browserMu.Lock()
	defer browserMu.Unlock()

	if sharedBrowser != nil {
		sharedBrowser.Close()
		sharedBrowser = nil
	}
	if sharedPW != nil {
		sharedPW.Stop()
		sharedPW = nil
	}
}

// consentSelectors covers the cookie banners the Spanish portals use,
// Didomi first since both Idealista and Fotocasa run it.
var consentSelectors = []string{
	"#didomi-notice-agree-button",
	"button[id*='accept']",
	"button[class*='accept']",
	"button:has-text('Aceptar')",
	"button:has-text('Aceptar y cerrar')",
	"button:has-text('Accept')",
	"button:has-text('OK')",
}

// blockMarkers are phrases an anti-bot interstitial contains where a real
// results page never would.
var blockMarkers = []string{
	"captcha",
	"are you a robot",
	"access denied",
	"request unsuccessful",
	"has sido bloqueado",
	"demasiadas solicitudes",
	"pardon our interruption",
}

// BrowserFetcher retrieves pages through headless Chromium for the portals
// that render listings client-side behind anti-bot checks.
type BrowserFetcher struct {
	portal     string
	robots     *RobotsGate
	userAgents []string
	log        *logger.Logger
}

func NewBrowserFetcher(portal string, robots *RobotsGate, opts Options) *BrowserFetcher {
	return &BrowserFetcher{
		portal:     portal,
		robots:     robots,
		userAgents: opts.UserAgents,
		log:        logger.ForFetcher().WithField("portal", portal),
	}
}

// Fetch navigates to url in a fresh page, waits for rendering to settle,
// dismisses the cookie banner and returns the rendered HTML.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.robots != nil && !f.robots.Allowed(url) {
		return "", errs.NewRobots(f.portal, url)
	}
	if err := ctx.Err(); err != nil {
		return "", errs.NewFetch(f.portal, "fetch cancelled", err)
	}

	browser, err := sharedBrowserInstance()
	if err != nil {
		return "", errs.NewFetch(f.portal, "browser unavailable", err)
	}

	pageMu.Lock()
	defer pageMu.Unlock()

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(helpers.RandomUserAgent(f.userAgents)),
		Locale:    playwright.String("es-ES"),
	})
	if err != nil {
		return "", errs.NewFetch(f.portal, "failed to open page", err)
	}
	defer page.Close()

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return "", errs.NewFetch(f.portal, fmt.Sprintf("navigation failed for %s", url), err)
	}

	page.WaitForTimeout(float64(settleDelay.Milliseconds()))
	f.dismissConsent(page)

	// One scroll to trigger lazy-loaded cards below the fold.
	page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`)
	page.WaitForTimeout(500)

	content, err := page.Content()
	if err != nil {
		return "", errs.NewFetch(f.portal, "failed to read page content", err)
	}

	if marker := detectBlockPage(content); marker != "" {
		f.log.Warn().Str("marker", marker).Str("url", url).Msg("Block page detected")
		return "", errs.NewBlocked(f.portal, fmt.Sprintf("block page detected (%s) for %s", marker, url), nil)
	}

	return content, nil
}

func (f *BrowserFetcher) dismissConsent(page playwright.Page) {
	for _, selector := range consentSelectors {
		btn := page.Locator(selector).First()
		if visible, _ := btn.IsVisible(); visible {
			f.log.Debug().Str("selector", selector).Msg("Dismissing cookie banner")
			btn.Click()
			page.WaitForTimeout(1000)
			return
		}
	}
}

// detectBlockPage returns the matched marker, or "" for a normal page.
// Suspiciously tiny documents count as blocked too.
func detectBlockPage(content string) string {
	lower := strings.ToLower(content)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	if len(content) < 2048 {
		return "page too small"
	}
	return ""
}
