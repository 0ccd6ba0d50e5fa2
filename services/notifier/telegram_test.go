package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"pisowatch/internal/scraper"
)

type telegramCall struct {
	path string
	body map[string]any
}

func newTelegramServer(t *testing.T, status int) (*httptest.Server, *[]telegramCall) {
	t.Helper()
	var mu sync.Mutex
	calls := &[]telegramCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		*calls = append(*calls, telegramCall{path: r.URL.Path, body: body})
		mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	return server, calls
}

func TestTelegramNotify(t *testing.T) {
	server, calls := newTelegramServer(t, http.StatusOK)
	defer server.Close()

	n := NewTelegramNotifier("token123", "42")
	n.baseURL = server.URL

	err := n.Notify(context.Background(), []*scraper.Listing{sampleListing()}, false)
	assert.NoError(t, err)

	// One summary plus one listing message
	assert.Len(t, *calls, 2)
	first := (*calls)[0]
	assert.Equal(t, "/bottoken123/sendMessage", first.path)
	assert.Equal(t, "42", first.body["chat_id"])
	assert.Equal(t, "HTML", first.body["parse_mode"])
	assert.Equal(t, true, first.body["disable_web_page_preview"])
	assert.Contains(t, first.body["text"], "Nuevos pisos encontrados")
	assert.Contains(t, (*calls)[1].body["text"], "Piso luminoso")
}

func TestTelegramNotifyAPIError(t *testing.T) {
	server, _ := newTelegramServer(t, http.StatusBadRequest)
	defer server.Close()

	n := NewTelegramNotifier("token123", "42")
	n.baseURL = server.URL

	err := n.Notify(context.Background(), []*scraper.Listing{sampleListing()}, false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramTestModeSendsNothing(t *testing.T) {
	server, calls := newTelegramServer(t, http.StatusOK)
	defer server.Close()

	n := NewTelegramNotifier("token123", "42")
	n.baseURL = server.URL

	err := n.Notify(context.Background(), []*scraper.Listing{sampleListing()}, true)
	assert.NoError(t, err)
	assert.Empty(t, *calls)
}

func TestTelegramNotifyEmptyBatch(t *testing.T) {
	n := NewTelegramNotifier("token123", "42")
	assert.NoError(t, n.Notify(context.Background(), nil, false))
}

func TestTelegramIsConfigured(t *testing.T) {
	assert.True(t, NewTelegramNotifier("token", "chat").IsConfigured())
	assert.False(t, NewTelegramNotifier("", "chat").IsConfigured())
	assert.False(t, NewTelegramNotifier("token", "").IsConfigured())
}
