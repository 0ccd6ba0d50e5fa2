package notifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"pisowatch/internal/scraper"
)

func TestEmailIsConfigured(t *testing.T) {
	assert.True(t, NewEmailNotifier("smtp.example.com", 587, "", "", "bot@example.com", []string{"me@example.com"}).IsConfigured())
	assert.False(t, NewEmailNotifier("", 587, "", "", "bot@example.com", []string{"me@example.com"}).IsConfigured())
	assert.False(t, NewEmailNotifier("smtp.example.com", 587, "", "", "", []string{"me@example.com"}).IsConfigured())
	assert.False(t, NewEmailNotifier("smtp.example.com", 587, "", "", "bot@example.com", nil).IsConfigured())
}

func TestEmailBuildDigest(t *testing.T) {
	e := NewEmailNotifier("smtp.example.com", 587, "", "", "bot@example.com", []string{"me@example.com"})

	digest := e.buildDigest([]*scraper.Listing{sampleListing(), sampleListing()})

	assert.Contains(t, digest, "<html>")
	assert.Contains(t, digest, "Nuevos pisos encontrados")
	assert.Contains(t, digest, "Piso luminoso en el centro")
	assert.Contains(t, digest, "185.000 €")
}

func TestEmailTestModeSendsNothing(t *testing.T) {
	// Host points nowhere; test mode must return before dialing.
	e := NewEmailNotifier("127.0.0.1", 1, "", "", "bot@example.com", []string{"me@example.com"})
	assert.NoError(t, e.Notify(context.Background(), []*scraper.Listing{sampleListing()}, true))
}

func TestEmailEmptyBatch(t *testing.T) {
	e := NewEmailNotifier("127.0.0.1", 1, "", "", "bot@example.com", []string{"me@example.com"})
	assert.NoError(t, e.Notify(context.Background(), nil, false))
}
