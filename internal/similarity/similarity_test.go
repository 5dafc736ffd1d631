package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/datastore"
)

func testMatcherSettings(threshold float64) *conf.Settings {
	settings := &conf.Settings{}
	settings.Similarity.Threshold = threshold
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"
	return settings
}

func newTestStore(t *testing.T, settings *conf.Settings) datastore.Interface {
	t.Helper()
	ds := datastore.New(settings)
	require.NotNil(t, ds)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func saveWithEmbedding(t *testing.T, ds datastore.Interface, common, scientific string, embedding []float32) {
	t.Helper()
	herb := &datastore.Herb{
		CommonName:     common,
		ScientificName: scientific,
		Uses:           "test uses",
	}
	if embedding != nil {
		herb.Embedding = EncodeEmbedding(embedding)
	}
	require.NoError(t, ds.SaveHerb(herb))
}

func TestCodecRoundTrip(t *testing.T) {
	original := []float32{0.5, -0.25, 1.0, 0, -1.5}
	decoded, err := DecodeEmbedding(EncodeEmbedding(original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeEmbedding_BadLength(t *testing.T) {
	_, err := DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	v := []float32{0.6, 0.8}

	assert.InDelta(t, 1.0, Cosine(v, v), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)

	// Edge cases score zero.
	assert.Zero(t, Cosine(v, []float32{1, 2, 3}))
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{0, 0}, v))
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestBestMatch_RanksByCosine(t *testing.T) {
	settings := testMatcherSettings(0.3)
	ds := newTestStore(t, settings)

	saveWithEmbedding(t, ds, "Tulsi", "Ocimum tenuiflorum", []float32{1, 0, 0})
	saveWithEmbedding(t, ds, "Neem", "Azadirachta indica", []float32{0, 1, 0})
	saveWithEmbedding(t, ds, "Mint", "Mentha", []float32{0, 0, 1})

	query := []float32{0.1, 0.99, 0.1}
	Normalize(query)

	matcher := NewMatcher(settings, ds)
	match, err := matcher.BestMatch(query)
	require.NoError(t, err)

	assert.Equal(t, "Neem", match.Herb.CommonName)
	require.False(t, match.Degraded())
	assert.Greater(t, *match.Score, 0.9)
}

func TestBestMatch_BelowThresholdDegrades(t *testing.T) {
	settings := testMatcherSettings(0.9)
	ds := newTestStore(t, settings)

	saveWithEmbedding(t, ds, "Tulsi", "Ocimum tenuiflorum", []float32{1, 0, 0})
	saveWithEmbedding(t, ds, "Neem", "Azadirachta indica", []float32{0, 1, 0})

	// Roughly equidistant from both, best cosine well under 0.9.
	query := []float32{0.5, 0.5, 0.707}
	Normalize(query)

	matcher := NewMatcher(settings, ds)
	match, err := matcher.BestMatch(query)
	require.NoError(t, err)

	assert.True(t, match.Degraded())
	assert.Equal(t, "Tulsi", match.Herb.CommonName, "degraded match returns the first stored herb")
}

func TestBestMatch_ScoreAtThresholdDegrades(t *testing.T) {
	stored := []float32{1, 0, 0}
	query := []float32{0.3, 0.95, 0}
	Normalize(query)

	// Pin the threshold to the exact score so the boundary case is hit:
	// a score equal to the threshold is not a confident match.
	settings := testMatcherSettings(Cosine(query, stored))
	ds := newTestStore(t, settings)
	saveWithEmbedding(t, ds, "Tulsi", "Ocimum tenuiflorum", stored)

	matcher := NewMatcher(settings, ds)
	match, err := matcher.BestMatch(query)
	require.NoError(t, err)
	assert.True(t, match.Degraded())

	// Nudge the threshold just under the score and the match is confident.
	settings.Similarity.Threshold -= 1e-9
	match, err = NewMatcher(settings, ds).BestMatch(query)
	require.NoError(t, err)
	require.False(t, match.Degraded())
	assert.NotNil(t, match.Score)
}

func TestBestMatch_NoEmbeddingsDegrades(t *testing.T) {
	settings := testMatcherSettings(0.3)
	ds := newTestStore(t, settings)

	saveWithEmbedding(t, ds, "Tulsi", "Ocimum tenuiflorum", nil)
	saveWithEmbedding(t, ds, "Neem", "Azadirachta indica", nil)

	matcher := NewMatcher(settings, ds)
	match, err := matcher.BestMatch([]float32{1, 0, 0})
	require.NoError(t, err)

	assert.True(t, match.Degraded())
	assert.Equal(t, "Tulsi", match.Herb.CommonName)
}

func TestBestMatch_NilQueryDegrades(t *testing.T) {
	settings := testMatcherSettings(0.3)
	ds := newTestStore(t, settings)

	saveWithEmbedding(t, ds, "Tulsi", "Ocimum tenuiflorum", []float32{1, 0, 0})

	matcher := NewMatcher(settings, ds)
	match, err := matcher.BestMatch(nil)
	require.NoError(t, err)
	assert.True(t, match.Degraded())
}

func TestBestMatch_EmptyCatalog(t *testing.T) {
	settings := testMatcherSettings(0.3)
	ds := newTestStore(t, settings)

	matcher := NewMatcher(settings, ds)
	_, err := matcher.BestMatch([]float32{1, 0, 0})
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestBestMatch_SkipsCorruptEmbedding(t *testing.T) {
	settings := testMatcherSettings(0.3)
	ds := newTestStore(t, settings)

	herb := &datastore.Herb{
		CommonName:     "Broken",
		ScientificName: "Corrupta exempla",
		Uses:           "test uses",
		Embedding:      []byte{1, 2, 3}, // not a multiple of 4
	}
	require.NoError(t, ds.SaveHerb(herb))
	saveWithEmbedding(t, ds, "Neem", "Azadirachta indica", []float32{0, 1, 0})

	matcher := NewMatcher(settings, ds)
	match, err := matcher.BestMatch([]float32{0, 1, 0})
	require.NoError(t, err)
	require.False(t, match.Degraded())
	assert.Equal(t, "Neem", match.Herb.CommonName)
}
