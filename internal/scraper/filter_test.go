package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func TestFilterMatches(t *testing.T) {
	f := ScrapeFilter{
		Price:    IntRange{Min: 100000, Max: 200000},
		Bedrooms: IntRange{Min: 2},
	}

	ok := &Listing{Price: intp(150000), Bedrooms: intp(3)}
	assert.True(t, f.Matches(ok, false))

	tooExpensive := &Listing{Price: intp(250000), Bedrooms: intp(3)}
	assert.False(t, f.Matches(tooExpensive, false))

	tooCheap := &Listing{Price: intp(90000), Bedrooms: intp(3)}
	assert.False(t, f.Matches(tooCheap, false))

	tooFewRooms := &Listing{Price: intp(150000), Bedrooms: intp(1)}
	assert.False(t, f.Matches(tooFewRooms, false))
}

func TestFilterMissingFields(t *testing.T) {
	f := ScrapeFilter{Price: IntRange{Max: 200000}}
	noPrice := &Listing{Bedrooms: intp(3)}

	// Lenient by default: a portal that omits the price should not hide
	// the listing.
	assert.True(t, f.Matches(noPrice, false))

	// Strict mode rejects anything it cannot verify.
	assert.False(t, f.Matches(noPrice, true))
}

func TestFilterNoCriteria(t *testing.T) {
	var f ScrapeFilter
	assert.True(t, f.Matches(&Listing{}, false))
	assert.True(t, f.Matches(&Listing{}, true))
}

func TestIntRange(t *testing.T) {
	assert.False(t, IntRange{}.Active())
	assert.True(t, IntRange{Min: 1}.Active())
	assert.True(t, IntRange{Max: 10}.Active())

	r := IntRange{Min: 2, Max: 4}
	assert.False(t, r.Contains(1))
	assert.True(t, r.Contains(2))
	assert.True(t, r.Contains(4))
	assert.False(t, r.Contains(5))
}
