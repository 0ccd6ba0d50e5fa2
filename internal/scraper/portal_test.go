package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const pisosIndexHTML = `
<!DOCTYPE html>
<html>
<body>
	<div class="results">
		<article class="ad-preview">
			<a class="ad-title" href="/piso/zaragoza-centro-101/">Piso en Centro</a>
			<span class="ad-price">185.000 €</span>
			<span class="location">Centro, Zaragoza</span>
			<span class="feature">92 m²</span>
			<span class="feature">3 hab.</span>
			<span class="feature">2 baños</span>
			<p class="description">Piso reformado junto a la plaza.</p>
			<img data-src="https://img.pisos.com/101.jpg" src="placeholder.gif">
		</article>
		<article class="ad-preview">
			<a class="ad-title" href="/piso/zaragoza-delicias-102/">Piso en Delicias</a>
			<span class="ad-price">120.000 €</span>
		</article>
		<article class="ad-preview">
			<span class="ad-price">99.000 €</span>
		</article>
	</div>
	<nav class="pagination">
		<a rel="next" href="/venta/pisos-zaragoza/2/">Siguiente</a>
	</nav>
</body>
</html>`

const pisosDetailHTML = `
<html><body>
	<div class="description-body">Vivienda exterior muy luminosa.</div>
	<ul class="features">
		<li>Ascensor</li>
		<li>Plaza de garaje incluida</li>
		<li>Terraza de 10 m²</li>
		<li>Calefacción central</li>
	</ul>
</body></html>`

func TestPisosParseIndex(t *testing.T) {
	adapter, err := NewAdapter("pisos")
	assert.NoError(t, err)

	items := adapter.ParseIndex(pisosIndexHTML)

	// The third card has no link and must be dropped
	assert.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "/piso/zaragoza-centro-101/", first.String("url"))
	assert.Equal(t, "Piso en Centro", first.String("title"))
	assert.Equal(t, "185.000 €", first.String("price"))
	assert.Equal(t, "Centro, Zaragoza", first.String("city"))
	assert.Contains(t, first.String("surface"), "92")
	assert.Contains(t, first.String("bedrooms"), "3")
	assert.Contains(t, first.String("bathrooms"), "2")
	assert.Equal(t, []string{"https://img.pisos.com/101.jpg"}, first.Strings("images"))
}

func TestPisosParseDetail(t *testing.T) {
	adapter, err := NewAdapter("pisos")
	assert.NoError(t, err)

	detail := adapter.ParseDetail(pisosDetailHTML, "https://www.pisos.com/piso/101/")

	assertBoolField := func(key string) {
		v := detail.Bool(key)
		if assert.NotNil(t, v, key) {
			assert.True(t, *v, key)
		}
	}
	assertBoolField("has_elevator")
	assertBoolField("has_parking")
	assertBoolField("has_terrace")
	assertBoolField("has_heating")
	assert.Nil(t, detail.Bool("has_pool"))
	assert.Equal(t, "Vivienda exterior muy luminosa.", detail.String("description"))
}

func TestPisosNextPageURL(t *testing.T) {
	adapter, err := NewAdapter("pisos")
	assert.NoError(t, err)

	next := adapter.NextPageURL(pisosIndexHTML, "https://www.pisos.com/venta/pisos-zaragoza/")
	assert.Equal(t, "https://www.pisos.com/venta/pisos-zaragoza/2/", next)

	// Same-URL pagination must terminate
	assert.Equal(t, "", adapter.NextPageURL(pisosIndexHTML, "https://www.pisos.com/venta/pisos-zaragoza/2/"))

	// No pagination markup at all
	assert.Equal(t, "", adapter.NextPageURL("<html><body></body></html>", "https://www.pisos.com/x"))
}

func TestParseIndexGarbage(t *testing.T) {
	adapter, err := NewAdapter("habitaclia")
	assert.NoError(t, err)

	assert.Empty(t, adapter.ParseIndex(""))
	assert.Empty(t, adapter.ParseIndex("<html><body><p>mantenimiento</p></body></html>"))
}

func TestSearchURLs(t *testing.T) {
	filter := ScrapeFilter{
		OperationType: "compra",
		City:          "Zaragoza",
		Province:      "Zaragoza",
		Price:         IntRange{Max: 200000},
		Bedrooms:      IntRange{Min: 2},
		Surface:       IntRange{Min: 70},
	}

	cases := map[string][]string{
		"idealista":  {"venta-viviendas/zaragoza-zaragoza/", "precioHasta=200000", "habitaciones=2", "superficieMinima=70"},
		"fotocasa":   {"/es/comprar/viviendas/zaragoza-capital/todas-las-zonas/l", "maxPrice=200000", "minRooms=2", "minSurface=70"},
		"pisos":      {"/venta/pisos-zaragoza/", "preciomax=200000", "habitacionesmin=2", "superficiemin=70"},
		"habitaclia": {"/comprar-vivienda-en-zaragoza.htm", "precio_max=200000", "habitaciones_min=2", "metros_min=70"},
	}

	for portal, fragments := range cases {
		adapter, err := NewAdapter(portal)
		assert.NoError(t, err)

		searchURL := adapter.BuildSearchURL(filter)
		assert.True(t, strings.HasPrefix(searchURL, adapter.BaseURL()), "%s: %s", portal, searchURL)
		for _, fragment := range fragments {
			assert.Contains(t, searchURL, fragment, portal)
		}

		// Deterministic for identical filters
		assert.Equal(t, searchURL, adapter.BuildSearchURL(filter), portal)
	}
}

func TestSearchURLRental(t *testing.T) {
	filter := ScrapeFilter{OperationType: "alquiler", City: "Valencia"}

	adapter, _ := NewAdapter("idealista")
	assert.Contains(t, adapter.BuildSearchURL(filter), "alquiler-viviendas")

	adapter, _ = NewAdapter("habitaclia")
	assert.Contains(t, adapter.BuildSearchURL(filter), "alquilar-vivienda-en-valencia")
}

func TestSearchURLAccentedCity(t *testing.T) {
	filter := ScrapeFilter{City: "Móstoles", Province: "Madrid"}

	adapter, _ := NewAdapter("idealista")
	assert.Contains(t, adapter.BuildSearchURL(filter), "mostoles-madrid")
}
