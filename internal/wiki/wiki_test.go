package wiki

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkallio/herbid-go/internal/conf"
)

const testEndpoint = "https://en.wikipedia.org/api/rest_v1/page/summary"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	settings := &conf.Settings{Version: "test"}
	settings.Wikipedia.Endpoint = testEndpoint
	c := NewClient(settings)
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func summaryJSON(extract string) string {
	return fmt.Sprintf(`{"type":"standard","title":"x","extract":%q}`, extract)
}

func TestMedicinalSummary_KeywordFilter(t *testing.T) {
	c := newTestClient(t)

	extract := "Azadirachta indica, commonly known as neem, is a tree in the mahogany family. " +
		"It is typically grown in tropical regions. " +
		"Neem oil is used in traditional medicine to treat skin disorders. " +
		"Its leaves have antioxidant properties. " +
		"The tree can reach 20 metres in height."

	httpmock.RegisterResponder("GET", testEndpoint+"/Azadirachta_indica",
		httpmock.NewStringResponder(200, summaryJSON(extract)))

	summary, err := c.MedicinalSummary(context.Background(), "Azadirachta indica")
	require.NoError(t, err)

	assert.Contains(t, summary, "traditional medicine")
	assert.Contains(t, summary, "antioxidant")
	assert.NotContains(t, summary, "20 metres")
}

func TestMedicinalSummary_PrefixFallback(t *testing.T) {
	c := newTestClient(t)

	// No keyword matches but long enough to be informative.
	extract := "Ocimum tenuiflorum is an aromatic perennial plant in the family Lamiaceae. " +
		"It is native to the Indian subcontinent and widespread as a cultivated plant throughout " +
		"the Southeast Asian tropics where it grows in gardens and near temples."

	httpmock.RegisterResponder("GET", testEndpoint+"/Ocimum_tenuiflorum",
		httpmock.NewStringResponder(200, summaryJSON(extract)))

	summary, err := c.MedicinalSummary(context.Background(), "Ocimum tenuiflorum")
	require.NoError(t, err)
	assert.Contains(t, summary, "Ocimum tenuiflorum is an aromatic perennial")
}

func TestMedicinalSummary_ShortExtractIsMiss(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder("GET", testEndpoint+"/Shortia",
		httpmock.NewStringResponder(200, summaryJSON("A genus of plants.")))
	httpmock.RegisterResponder("GET", `=~.*`,
		httpmock.NewStringResponder(404, `{"title":"Not found."}`))

	_, err := c.MedicinalSummary(context.Background(), "Shortia")
	assert.ErrorIs(t, err, ErrNoSummary)
}

func TestMedicinalSummary_TitleCascade(t *testing.T) {
	c := newTestClient(t)

	// Full binomial misses, genus alone hits.
	httpmock.RegisterResponder("GET", testEndpoint+"/Curcuma_longa",
		httpmock.NewStringResponder(404, `{"title":"Not found."}`))
	httpmock.RegisterResponder("GET", testEndpoint+"/Curcuma",
		httpmock.NewStringResponder(200, summaryJSON(
			"Curcuma is a genus of plants whose rhizomes are used as a remedy in herbal medicine.")))

	summary, err := c.MedicinalSummary(context.Background(), "Curcuma longa")
	require.NoError(t, err)
	assert.Contains(t, summary, "herbal medicine")
}

func TestMedicinalSummary_SpeciesRankStripped(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder("GET", testEndpoint+"/Mentha_sp.",
		httpmock.NewStringResponder(404, `{"title":"Not found."}`))
	httpmock.RegisterResponder("GET", testEndpoint+"/Mentha",
		httpmock.NewStringResponder(200, summaryJSON(
			"Mentha is a genus of plants widely used as a herbal remedy for digestion.")))

	summary, err := c.MedicinalSummary(context.Background(), "Mentha sp.")
	require.NoError(t, err)
	assert.Contains(t, summary, "herbal remedy")
}

func TestMedicinalSummary_Disambiguation(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder("GET", testEndpoint+"/Sage",
		httpmock.NewStringResponder(200,
			`{"type":"disambiguation","title":"Sage","extract":"Sage may refer to a plant used in traditional medicine or a wise person or several other things entirely."}`))

	_, err := c.MedicinalSummary(context.Background(), "Sage")
	assert.ErrorIs(t, err, ErrNoSummary)
}

func TestMedicinalSummary_ExtractHTMLFallback(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder("GET", testEndpoint+"/Zingiber_officinale",
		httpmock.NewStringResponder(200,
			`{"type":"standard","extract_html":"<p><b>Ginger</b> rhizome is widely used as a spice and in traditional medicine to treat nausea.</p>"}`))

	summary, err := c.MedicinalSummary(context.Background(), "Zingiber officinale")
	require.NoError(t, err)
	assert.Contains(t, summary, "traditional medicine")
	assert.NotContains(t, summary, "<p>")
}

func TestMedicinalSummary_CachesResults(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder("GET", testEndpoint+"/Allium_sativum",
		httpmock.NewStringResponder(200, summaryJSON(
			"Garlic has long been used as a remedy and is reported to have therapeutic properties.")))

	for range 3 {
		_, err := c.MedicinalSummary(context.Background(), "Allium sativum")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestMedicinalSummary_NegativeCaching(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder("GET", `=~.*`,
		httpmock.NewStringResponder(404, `{"title":"Not found."}`))

	for range 3 {
		_, err := c.MedicinalSummary(context.Background(), "Nonexistentia")
		assert.ErrorIs(t, err, ErrNoSummary)
	}

	// Single-word query has one candidate title, fetched once.
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestMedicinalSummary_EmptyQuery(t *testing.T) {
	c := newTestClient(t)

	_, err := c.MedicinalSummary(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoSummary)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestCandidateTitles(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"Azadirachta indica", []string{"Azadirachta indica", "Azadirachta"}},
		{"Mentha sp.", []string{"Mentha sp.", "Mentha"}},
		{"Curcuma spp.", []string{"Curcuma spp.", "Curcuma"}},
		{"Neem", []string{"Neem"}},
		// Genus token of 3 chars or fewer is not split out.
		{"Poa annua", []string{"Poa annua"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, candidateTitles(tt.query), "query %q", tt.query)
	}
}

func TestDistillTruncationKeepsValidUTF8(t *testing.T) {
	// Keyword sentences of multi-byte runes long enough to force the cap.
	sentence := "The herb is used as a traditional remedy mot förkylning åäö " +
		strings.Repeat("läkeört ", 40) + "."
	extract := strings.TrimSpace(strings.Repeat(sentence+" ", 5))

	summary := distillUseSentences(extract)
	require.NotEmpty(t, summary)
	assert.LessOrEqual(t, len(summary), maxSummaryLen+len("..."))
	assert.True(t, utf8.ValidString(summary), "truncation must not split a rune")
}

func TestTruncateAtWord(t *testing.T) {
	got := truncateAtWord("one two three four", 9)
	assert.Equal(t, "one two...", got)

	// Spaceless multi-byte text cut mid-rune backs up to a rune boundary.
	got = truncateAtWord(strings.Repeat("ä", 20), 9)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "short", truncateAtWord("short", 10))
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First one. Second one! Is this third? Yes.")
	assert.Equal(t, []string{"First one.", "Second one!", "Is this third?", "Yes."}, got)

	// Decimal points do not split.
	got = splitSentences("It grows 1.5 metres tall. It flowers in spring.")
	assert.Len(t, got, 2)
}
