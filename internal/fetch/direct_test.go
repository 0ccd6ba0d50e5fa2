package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	errs "pisowatch/pkg/errors"
)

func TestDirectFetchOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every fetch must look like a browser
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "es-ES")
		w.Write([]byte("<html><body>hola</body></html>"))
	}))
	defer server.Close()

	f := NewDirectFetcher("test", nil, Options{MaxRetries: 0})
	body, err := f.Fetch(context.Background(), server.URL)

	assert.NoError(t, err)
	assert.Contains(t, body, "hola")
}

func TestDirectFetchRetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewDirectFetcher("test", nil, Options{MaxRetries: 1, BackoffFactor: 1})
	body, err := f.Fetch(context.Background(), server.URL)

	assert.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDirectFetchForbiddenIsFatal(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := NewDirectFetcher("test", nil, Options{MaxRetries: 3, BackoffFactor: 1})
	_, err := f.Fetch(context.Background(), server.URL)

	assert.Error(t, err)
	assert.True(t, errs.IsBlocked(err))
	// No retries against an explicit refusal
	assert.Equal(t, int32(1), hits.Load())
}

func TestDirectFetchNotFoundIsFatal(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewDirectFetcher("test", nil, Options{MaxRetries: 3, BackoffFactor: 1})
	_, err := f.Fetch(context.Background(), server.URL)

	assert.Error(t, err)
	assert.False(t, errs.IsBlocked(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestDirectFetchExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := NewDirectFetcher("test", nil, Options{MaxRetries: 1, BackoffFactor: 1})
	_, err := f.Fetch(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Contains(t, err.Error(), "retries exhausted")
}

func TestRobotsGate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	gate := NewRobotsGate("test", server.URL, 0, nil)

	assert.True(t, gate.Allowed(server.URL+"/venta/pisos/"))
	assert.False(t, gate.Allowed(server.URL+"/private/admin"))
}

func TestRobotsGateUnreachableAllowsAll(t *testing.T) {
	// Nothing listens here; a missing robots.txt must never stop a crawl.
	gate := NewRobotsGate("test", "http://127.0.0.1:1", 0, nil)
	assert.True(t, gate.Allowed("http://127.0.0.1:1/whatever"))
}

func TestDirectFetchRobotsDisallow(t *testing.T) {
	var pageHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		pageHits.Add(1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	gate := NewRobotsGate("test", server.URL, 0, nil)
	f := NewDirectFetcher("test", gate, Options{})

	_, err := f.Fetch(context.Background(), server.URL+"/venta/pisos/")
	assert.Error(t, err)
	assert.True(t, errs.IsRobotsDisallow(err))
	assert.Equal(t, int32(0), pageHits.Load())
}

func TestDetectBlockPage(t *testing.T) {
	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'a'
	}

	assert.Equal(t, "", detectBlockPage("<html>"+string(big)+"</html>"))
	assert.Equal(t, "captcha", detectBlockPage("<html>Resuelve este CAPTCHA"+string(big)+"</html>"))
	assert.Equal(t, "page too small", detectBlockPage("<html></html>"))
}
