package similarity

import (
	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/datastore"
	"github.com/mkallio/herbid-go/internal/errors"
)

// ErrEmptyCatalog is returned when no stored herbs exist to match against.
var ErrEmptyCatalog = errors.NewStd("herb catalog is empty")

// Match is the outcome of a catalog comparison. Score is nil when the match
// is degraded: no stored herb carried an embedding, or the query embedding
// could not be computed, so a sample record was returned without scoring.
type Match struct {
	Herb  datastore.Herb
	Score *float64
}

// Degraded reports whether the match was produced without similarity scoring.
func (m *Match) Degraded() bool { return m.Score == nil }

// Matcher ranks stored herbs by embedding similarity.
type Matcher struct {
	ds        datastore.Interface
	threshold float64
}

// NewMatcher creates a matcher over the herb catalog with the configured
// acceptance threshold.
func NewMatcher(settings *conf.Settings, ds datastore.Interface) *Matcher {
	return &Matcher{ds: ds, threshold: settings.Similarity.Threshold}
}

// BestMatch returns the stored herb most similar to the query embedding.
// A match is confident only when its score strictly exceeds the threshold; a
// best score at or below it, a nil query embedding, or a catalog without
// embeddings all degrade to the first stored herb with a nil Score.
// Returns ErrEmptyCatalog when there are no stored herbs at all.
func (m *Matcher) BestMatch(queryEmbedding []float32) (*Match, error) {
	herbs, err := m.ds.GetAllHerbs()
	if err != nil {
		return nil, err
	}
	if len(herbs) == 0 {
		return nil, ErrEmptyCatalog
	}

	logger := getLogger()

	if queryEmbedding == nil {
		logger.Warn("No query embedding, returning sample herb", "herb", herbs[0].CommonName)
		return &Match{Herb: herbs[0]}, nil
	}

	var (
		best      *datastore.Herb
		bestScore float64
		scored    int
	)
	for i := range herbs {
		if !herbs[i].HasEmbedding() {
			continue
		}
		stored, err := DecodeEmbedding(herbs[i].Embedding)
		if err != nil {
			logger.Warn("Skipping herb with corrupt embedding",
				"herb", herbs[i].CommonName, "error", err)
			continue
		}
		score := Cosine(queryEmbedding, stored)
		scored++
		if best == nil || score > bestScore {
			best = &herbs[i]
			bestScore = score
		}
	}

	if best != nil && bestScore > m.threshold {
		logger.Info("Similarity match accepted",
			"herb", best.CommonName, "score", bestScore, "candidates", scored)
		return &Match{Herb: *best, Score: &bestScore}, nil
	}

	if best != nil {
		logger.Info("Best similarity not above threshold, returning sample herb",
			"best_herb", best.CommonName, "best_score", bestScore, "threshold", m.threshold)
	} else {
		logger.Warn("No stored herb carries an embedding, returning sample herb")
	}
	return &Match{Herb: herbs[0]}, nil
}
