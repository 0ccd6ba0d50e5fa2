package scraper

// Matches reports whether a normalized listing satisfies the filter's
// range criteria. Portals routinely omit fields, so by default a listing
// with a missing field passes the corresponding check; strict mode rejects
// it instead. Location fields are not matched here: the search URL already
// scopes results to the requested area.
func (f ScrapeFilter) Matches(l *Listing, strict bool) bool {
	checks := []struct {
		rng   IntRange
		value *int
	}{
		{f.Price, l.Price},
		{f.Surface, l.Surface},
		{f.Bedrooms, l.Bedrooms},
		{f.Bathrooms, l.Bathrooms},
	}

	for _, c := range checks {
		if !c.rng.Active() {
			continue
		}
		if c.value == nil {
			if strict {
				return false
			}
			continue
		}
		if !c.rng.Contains(*c.value) {
			return false
		}
	}

	return true
}
