package helpers

import (
	"bytes"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"

	"golang.org/x/net/html/charset"
)

// Browser header pools shared by every fetcher. Spanish portals serve
// localized markup, so Accept-Language is pinned to es-ES.
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}

	referers = []string{
		"https://www.google.com/",
		"https://www.google.es/",
		"https://www.bing.com/",
	}
)

// UserAgents returns the default user-agent pool.
func UserAgents() []string {
	return userAgents
}

// RandomUserAgent picks a user agent from the given pool, falling back to
// the default pool when none is configured.
func RandomUserAgent(pool []string) string {
	if len(pool) == 0 {
		pool = userAgents
	}
	return pool[mathrand.Intn(len(pool))]
}

// SetBrowserHeaders sets realistic browser headers on req.
func SetBrowserHeaders(req *http.Request, userAgentPool []string) {
	req.Header.Set("User-Agent", RandomUserAgent(userAgentPool))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", referers[mathrand.Intn(len(referers))])
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Sec-Fetch-User", "?1")
}

// ReadBodyUTF8 reads an HTTP response body and converts it to UTF-8 using
// the Content-Type header and content sniffing.
func ReadBodyUTF8(resp *http.Response) (string, error) {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	encoding, name, _ := charset.DetermineEncoding(bodyBytes, resp.Header.Get("Content-Type"))

	// Most portals already serve UTF-8
	if name == "utf-8" || name == "UTF-8" {
		return string(bodyBytes), nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(bodyBytes))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return "", fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}

	return buf.String(), nil
}
