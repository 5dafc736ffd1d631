package uses

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/datastore"
	"github.com/mkallio/herbid-go/internal/spreadsheet"
	"github.com/mkallio/herbid-go/internal/wiki"
)

func chainSettings(order ...string) *conf.Settings {
	settings := &conf.Settings{}
	settings.Uses.Order = order
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"
	settings.Wikipedia.Endpoint = "https://en.wikipedia.org/api/rest_v1/page/summary"
	return settings
}

func writeTestSheet(t *testing.T, rows string) *spreadsheet.Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herbs.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return spreadsheet.New(path)
}

func newCatalogStore(t *testing.T, settings *conf.Settings, herbs ...datastore.Herb) datastore.Interface {
	t.Helper()
	ds := datastore.New(settings)
	require.NotNil(t, ds)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })
	for i := range herbs {
		require.NoError(t, ds.SaveHerb(&herbs[i]))
	}
	return ds
}

func TestChain_SpreadsheetWins(t *testing.T) {
	settings := chainSettings("spreadsheet", "catalog", "wikipedia", "provider")

	index := writeTestSheet(t, "Common Name,Medicinal Uses\nNeem,Spreadsheet says antiseptic\n")
	ds := newCatalogStore(t, settings, datastore.Herb{
		CommonName: "Neem", ScientificName: "Azadirachta indica",
		Uses: "Catalog says skin disorders",
	})

	chain := NewChain(settings, index, ds, nil)
	usesText, source := chain.Resolve(context.Background(), "Neem", "Azadirachta indica", "Provider text")

	assert.Equal(t, "Spreadsheet says antiseptic", usesText)
	assert.Equal(t, "spreadsheet", source)
}

func TestChain_FallsThroughToCatalog(t *testing.T) {
	settings := chainSettings("spreadsheet", "catalog")

	index := writeTestSheet(t, "Common Name,Medicinal Uses\nTulsi,Adaptogen\n")
	ds := newCatalogStore(t, settings, datastore.Herb{
		CommonName: "Neem", ScientificName: "Azadirachta indica",
		Uses: "Catalog says skin disorders",
	})

	chain := NewChain(settings, index, ds, nil)
	usesText, source := chain.Resolve(context.Background(), "Neem", "Azadirachta indica", "")

	assert.Equal(t, "Catalog says skin disorders", usesText)
	assert.Equal(t, "catalog", source)
}

func TestChain_CatalogScientificNameVariant(t *testing.T) {
	settings := chainSettings("catalog")

	ds := newCatalogStore(t, settings, datastore.Herb{
		CommonName: "Turmeric", ScientificName: "Curcuma longa",
		Uses: "Anti-inflammatory rhizome",
	})

	chain := NewChain(settings, nil, ds, nil)

	// Common name misses, first word of the scientific name still matches.
	usesText, source := chain.Resolve(context.Background(), "Unknown herb", "Curcuma sp.", "")
	assert.Equal(t, "Anti-inflammatory rhizome", usesText)
	assert.Equal(t, "catalog", source)
}

func TestChain_CatalogContainmentScan(t *testing.T) {
	settings := chainSettings("catalog")

	ds := newCatalogStore(t, settings, datastore.Herb{
		CommonName: "Holy Basil", ScientificName: "Ocimum tenuiflorum",
		Uses: "Respiratory health.",
	})

	chain := NewChain(settings, nil, ds, nil)

	// No column lookup matches, but the query contains the stored name.
	usesText, source := chain.Resolve(context.Background(), "Indian Holy Basil", "Basilicum indicum", "")
	assert.Equal(t, "Respiratory health.", usesText)
	assert.Equal(t, "catalog", source)
}

func TestChain_CatalogScientificFirst(t *testing.T) {
	settings := chainSettings("catalog")

	// Two records: one reachable through the common name, one through the
	// scientific name. The scientific lookup runs first.
	ds := newCatalogStore(t, settings,
		datastore.Herb{
			CommonName: "Basil", ScientificName: "Ocimum basilicum",
			Uses: "Matched on common name",
		},
		datastore.Herb{
			CommonName: "Sweet herb", ScientificName: "Basilicum sanctum",
			Uses: "Matched on scientific name",
		},
	)

	chain := NewChain(settings, nil, ds, nil)
	usesText, source := chain.Resolve(context.Background(), "Basil", "Basilicum sanctum", "")

	assert.Equal(t, "Matched on scientific name", usesText)
	assert.Equal(t, "catalog", source)
}

func TestChain_Wikipedia(t *testing.T) {
	settings := chainSettings("wikipedia")

	// The summary client leaves its transport nil, so mocking the default
	// transport intercepts it.
	wikiClient := wiki.NewClient(settings)
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("GET",
		"https://en.wikipedia.org/api/rest_v1/page/summary/Azadirachta_indica",
		httpmock.NewStringResponder(200,
			`{"type":"standard","extract":"Neem extracts are used in traditional medicine to treat skin conditions."}`))
	httpmock.RegisterResponder("GET", `=~.*`,
		httpmock.NewStringResponder(404, `{"title":"Not found."}`))

	chain := NewChain(settings, nil, nil, wikiClient)
	usesText, source := chain.Resolve(context.Background(), "Neem", "Azadirachta indica", "")

	assert.Contains(t, usesText, "traditional medicine")
	assert.Equal(t, "wikipedia", source)
}

func TestChain_ProviderText(t *testing.T) {
	settings := chainSettings("provider")

	chain := NewChain(settings, nil, nil, nil)
	usesText, source := chain.Resolve(context.Background(), "Neem", "Azadirachta indica",
		"The provider describes neem as a medicinal tree.")

	assert.Equal(t, "The provider describes neem as a medicinal tree.", usesText)
	assert.Equal(t, "provider", source)
}

func TestChain_ConfigurableOrder(t *testing.T) {
	// Provider text outranks the spreadsheet when the order says so.
	settings := chainSettings("provider", "spreadsheet")

	index := writeTestSheet(t, "Common Name,Medicinal Uses\nNeem,Spreadsheet says antiseptic\n")

	chain := NewChain(settings, index, nil, nil)
	usesText, source := chain.Resolve(context.Background(), "Neem", "Azadirachta indica", "Provider text first")

	assert.Equal(t, "Provider text first", usesText)
	assert.Equal(t, "provider", source)
}

func TestChain_AdvisoryWhenAllMiss(t *testing.T) {
	settings := chainSettings("spreadsheet", "catalog", "provider")

	index := writeTestSheet(t, "Common Name,Medicinal Uses\nTulsi,Adaptogen\n")
	ds := newCatalogStore(t, settings)

	chain := NewChain(settings, index, ds, nil)
	usesText, source := chain.Resolve(context.Background(), "Obscure weed", "Obscura planta", "")

	assert.Equal(t, SourceAdvisory, source)
	assert.Contains(t, usesText, "Obscure weed")
	assert.Contains(t, usesText, "Obscura planta")
	assert.Contains(t, usesText, "Consult a qualified")
}

func TestChain_MissingComponentsSkipped(t *testing.T) {
	// Every source named but nothing wired: resolution still terminates.
	settings := chainSettings("spreadsheet", "catalog", "wikipedia", "provider")

	chain := NewChain(settings, nil, nil, nil)
	usesText, source := chain.Resolve(context.Background(), "Neem", "Azadirachta indica", "")

	assert.Equal(t, SourceAdvisory, source)
	assert.NotEmpty(t, usesText)
}

func TestNameVariants(t *testing.T) {
	assert.Equal(t,
		[]string{"Tulsi (Holy Basil)", "Tulsi"},
		nameVariants("Tulsi (Holy Basil)"))

	assert.Equal(t,
		[]string{"Curcuma longa", "Curcuma"},
		nameVariants("Curcuma longa"))

	assert.Empty(t, nameVariants("   "))
}

func TestWikiQueries(t *testing.T) {
	queries := wikiQueries("Neem", "Azadirachta indica")
	assert.Equal(t, []string{
		"Azadirachta indica",
		"Neem",
		"Neem herb",
		"Neem plant",
		"Neem medicinal plant",
	}, queries)

	// Sentinels are not sent to the encyclopedia.
	queries = wikiQueries("Unknown herb", "N/A")
	assert.Empty(t, queries)
}
