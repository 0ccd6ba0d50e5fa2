package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"pisowatch/config"
	"pisowatch/internal/fetch"
	"pisowatch/internal/scraper"
	errs "pisowatch/pkg/errors"
	"pisowatch/services/notifier"
	"pisowatch/services/publisher"
	"pisowatch/services/store"
)

// fixtureAdapter emits canned items for one index page.
type fixtureAdapter struct {
	name  string
	items []scraper.RawItem
}

var _ scraper.Adapter = (*fixtureAdapter)(nil)

func (a *fixtureAdapter) Name() string                              { return a.name }
func (a *fixtureAdapter) BaseURL() string                           { return "https://" + a.name + ".test" }
func (a *fixtureAdapter) UsesBrowser() bool                         { return false }
func (a *fixtureAdapter) BuildSearchURL(_ scraper.ScrapeFilter) string { return a.BaseURL() + "/search" }
func (a *fixtureAdapter) ParseIndex(_ string) []scraper.RawItem     { return a.items }
func (a *fixtureAdapter) ParseDetail(_, _ string) scraper.RawItem   { return scraper.RawItem{} }
func (a *fixtureAdapter) NextPageURL(_, _ string) string            { return "" }

type okFetcher struct{}

func (okFetcher) Fetch(_ context.Context, url string) (string, error) { return url, nil }

type failFetcher struct{}

func (failFetcher) Fetch(_ context.Context, url string) (string, error) {
	return "", errs.NewBlocked("broken", "block page detected", nil)
}

var _ fetch.Fetcher = okFetcher{}

// mockStore is an in-memory Store that records side effects.
type mockStore struct {
	mu            sync.Mutex
	listings      map[string]bool
	excluded      map[string]bool
	resets        int
	inactiveCalls map[string][]string
	notifications []string
	savedStats    []*store.RunStats
	cleanups      int
}

var _ store.Store = (*mockStore)(nil)

func newMockStore() *mockStore {
	return &mockStore{
		listings:      make(map[string]bool),
		excluded:      make(map[string]bool),
		inactiveCalls: make(map[string][]string),
	}
}

func (m *mockStore) Upsert(_ context.Context, l *scraper.Listing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listings[l.ID] {
		return false, nil
	}
	m.listings[l.ID] = true
	return true, nil
}

func (m *mockStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings[id], nil
}

func (m *mockStore) IsExcluded(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.excluded[id], nil
}

func (m *mockStore) AddExclusion(_ context.Context, id, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excluded[id] = true
	return nil
}

func (m *mockStore) MarkInactive(_ context.Context, portal string, activeIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inactiveCalls[portal] = activeIDs
	return 0, nil
}

func (m *mockStore) ResetNewFlags(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

func (m *mockStore) CleanupOld(_ context.Context, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups++
	return 0, nil
}

func (m *mockStore) RecordNotification(_ context.Context, listingID, channel, status, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, listingID+"/"+channel+"/"+status)
	return nil
}

func (m *mockStore) SaveRunStats(_ context.Context, rs *store.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savedStats = append(m.savedStats, rs)
	return nil
}

func (m *mockStore) CountListings(_ context.Context) (int64, int64, int64, error) {
	return 0, 0, 0, nil
}

func (m *mockStore) Close() error { return nil }

type mockPublisher struct {
	mu        sync.Mutex
	published []*scraper.Listing
	trims     int
}

var _ publisher.Publisher = (*mockPublisher)(nil)

func (m *mockPublisher) PublishListing(l *scraper.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, l)
	return nil
}

func (m *mockPublisher) TrimStreams() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trims++
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type mockNotifier struct {
	name       string
	configured bool
	fail       error
	batches    [][]*scraper.Listing
}

var _ notifier.Notifier = (*mockNotifier)(nil)

func (m *mockNotifier) Name() string       { return m.name }
func (m *mockNotifier) IsConfigured() bool { return m.configured }
func (m *mockNotifier) Notify(_ context.Context, listings []*scraper.Listing, _ bool) error {
	m.batches = append(m.batches, listings)
	return m.fail
}

func testConfig(portals ...string) *config.Config {
	return &config.Config{
		Portals:       portals,
		MaxPages:      3,
		RetentionDays: 90,
		BackoffFactor: 2,
	}
}

func testProfiles() *config.Profiles {
	p := &config.Profiles{
		Profiles: map[string]config.Profile{
			"centro": {
				Name:     "Centro",
				Location: config.Location{Province: "Zaragoza", City: "Zaragoza"},
				Price:    config.Range{Max: 200000},
			},
		},
	}
	p.Global.OperationType = "compra"
	return p
}

func fixtureEngines(adapters map[string]*fixtureAdapter, broken map[string]bool) EngineFactory {
	return func(portal string) (*scraper.Engine, error) {
		var fetcher fetch.Fetcher = okFetcher{}
		if broken[portal] {
			fetcher = failFetcher{}
		}
		return scraper.NewEngine(adapters[portal], fetcher, scraper.EngineOptions{MaxPages: 3}), nil
	}
}

func TestWorkerRun(t *testing.T) {
	adapters := map[string]*fixtureAdapter{
		"pisos": {name: "pisos", items: []scraper.RawItem{
			{"url": "/piso/1/", "title": "Uno", "price": "150.000 €"},
			{"url": "/piso/2/", "title": "Dos", "price": "120.000 €"},
		}},
	}
	st := newMockStore()
	pub := &mockPublisher{}
	tg := &mockNotifier{name: "telegram", configured: true}
	mail := &mockNotifier{name: "email", configured: false}

	w := New(testConfig("pisos"), testProfiles(), st, pub,
		[]notifier.Notifier{tg, mail}, fixtureEngines(adapters, nil))

	stats, err := w.Run(context.Background(), RunOptions{})
	assert.NoError(t, err)

	assert.Equal(t, 2, stats.TotalFound)
	assert.Equal(t, 2, stats.TotalNew)
	assert.Equal(t, 0, stats.TotalErrors)
	assert.Equal(t, "completed", stats.Status)
	assert.Equal(t, []string{"centro"}, stats.Profiles)

	assert.Equal(t, 1, st.resets)
	assert.Len(t, st.inactiveCalls["pisos"], 2)
	assert.Equal(t, 1, st.cleanups)
	assert.Len(t, st.savedStats, 1)

	// Configured channel got the batch, unconfigured one was skipped
	assert.Len(t, tg.batches, 1)
	assert.Len(t, tg.batches[0], 2)
	assert.Empty(t, mail.batches)

	// One record per listing, only for the live channel
	assert.Len(t, st.notifications, 2)
	assert.Contains(t, st.notifications[0], "telegram/sent")

	assert.Len(t, pub.published, 2)
	assert.Equal(t, 1, pub.trims)
}

func TestWorkerRunSecondPassFindsNothingNew(t *testing.T) {
	adapters := map[string]*fixtureAdapter{
		"pisos": {name: "pisos", items: []scraper.RawItem{
			{"url": "/piso/1/", "price": "150.000 €"},
		}},
	}
	st := newMockStore()
	tg := &mockNotifier{name: "telegram", configured: true}
	w := New(testConfig("pisos"), testProfiles(), st, &mockPublisher{},
		[]notifier.Notifier{tg}, fixtureEngines(adapters, nil))

	_, err := w.Run(context.Background(), RunOptions{})
	assert.NoError(t, err)

	stats, err := w.Run(context.Background(), RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFound)
	assert.Equal(t, 0, stats.TotalNew)

	// No new listings, no second notification
	assert.Len(t, tg.batches, 1)
}

func TestWorkerSkipsExcluded(t *testing.T) {
	adapters := map[string]*fixtureAdapter{
		"pisos": {name: "pisos", items: []scraper.RawItem{
			{"url": "/piso/1/", "price": "150.000 €"},
		}},
	}
	st := newMockStore()
	excludedID := scraper.ListingID("pisos", "https://pisos.test/piso/1/")
	st.excluded[excludedID] = true

	w := New(testConfig("pisos"), testProfiles(), st, &mockPublisher{}, nil,
		fixtureEngines(adapters, nil))

	stats, err := w.Run(context.Background(), RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFound)
	assert.Equal(t, 0, stats.TotalNew)
	assert.Empty(t, st.listings)
}

func TestWorkerFilterRejects(t *testing.T) {
	adapters := map[string]*fixtureAdapter{
		"pisos": {name: "pisos", items: []scraper.RawItem{
			{"url": "/piso/1/", "price": "350.000 €"}, // above the profile's max
			{"url": "/piso/2/", "price": "150.000 €"},
		}},
	}
	st := newMockStore()
	w := New(testConfig("pisos"), testProfiles(), st, &mockPublisher{}, nil,
		fixtureEngines(adapters, nil))

	stats, err := w.Run(context.Background(), RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFound)
	assert.Equal(t, 1, stats.TotalNew)
	assert.Len(t, st.listings, 1)
}

func TestWorkerPortalFailureIsIsolated(t *testing.T) {
	adapters := map[string]*fixtureAdapter{
		"broken": {name: "broken"},
		"pisos": {name: "pisos", items: []scraper.RawItem{
			{"url": "/piso/1/", "price": "150.000 €"},
		}},
	}
	st := newMockStore()
	w := New(testConfig("broken", "pisos"), testProfiles(), st, &mockPublisher{}, nil,
		fixtureEngines(adapters, map[string]bool{"broken": true}))

	stats, err := w.Run(context.Background(), RunOptions{})
	assert.NoError(t, err)

	// The healthy portal still delivered
	assert.Equal(t, 1, stats.TotalNew)
	assert.Equal(t, 1, stats.TotalErrors)
	assert.Equal(t, "completed_with_errors", stats.Status)
	assert.Equal(t, 1, stats.Portal("broken").Errors)

	// A failed crawl must not deactivate anything
	_, called := st.inactiveCalls["broken"]
	assert.False(t, called)
	_, called = st.inactiveCalls["pisos"]
	assert.True(t, called)
}

func TestWorkerPortalOption(t *testing.T) {
	adapters := map[string]*fixtureAdapter{
		"pisos":      {name: "pisos", items: []scraper.RawItem{{"url": "/piso/1/"}}},
		"habitaclia": {name: "habitaclia", items: []scraper.RawItem{{"url": "/v/2.htm"}}},
	}
	st := newMockStore()
	w := New(testConfig("pisos", "habitaclia"), testProfiles(), st, &mockPublisher{}, nil,
		fixtureEngines(adapters, nil))

	stats, err := w.Run(context.Background(), RunOptions{Portals: []string{"habitaclia"}})
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFound)
	assert.Nil(t, stats.Portals["pisos"])
}
