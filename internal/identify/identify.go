// Package identify orchestrates a full identification: provider lookup with
// a local similarity fallback, followed by uses resolution. It always
// produces a well-formed result, total failure yields the sentinel record.
package identify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/errors"
	"github.com/mkallio/herbid-go/internal/logging"
	"github.com/mkallio/herbid-go/internal/provider"
	"github.com/mkallio/herbid-go/internal/similarity"
	"github.com/mkallio/herbid-go/internal/uses"
)

// Sentinel values reported when no identification could be made at all.
const (
	UnknownCommonName     = "Unknown herb"
	UnknownScientificName = "N/A"
)

const degradedNote = "Note: no confident visual match was found, this is a sample " +
	"entry from the catalog. "

// Result is the outcome of one identification request.
type Result struct {
	CommonName      string   `json:"common_name"`
	ScientificName  string   `json:"scientific_name"`
	Uses            string   `json:"uses"`
	UsesSource      string   `json:"uses_source"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
	ElapsedSeconds  float64  `json:"elapsed_seconds"`
}

// Embedder computes a feature embedding from raw image bytes.
type Embedder interface {
	Extract(imageData []byte) ([]float32, error)
}

// CatalogMatcher finds the stored herb closest to an embedding.
type CatalogMatcher interface {
	BestMatch(queryEmbedding []float32) (*similarity.Match, error)
}

// Package-level logger for the identify service
var (
	identifyLogger   *slog.Logger
	identifyLevelVar = new(slog.LevelVar)
	loggerOnce       sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		identifyLevelVar.Set(slog.LevelInfo)

		var err error
		identifyLogger, _, err = logging.NewFileLogger("logs/identify.log", "identify", identifyLevelVar)
		if err != nil {
			logging.Error("Failed to initialize identify file logger", "error", err)
			identifyLogger = logging.NoopLogger("identify", identifyLevelVar)
		}
	})
	return identifyLogger
}

// Service runs identifications.
type Service struct {
	settings *conf.Settings
	provider provider.Provider // nil when no provider is configured
	embedder Embedder          // nil when the feature model is unavailable
	matcher  CatalogMatcher
	chain    *uses.Chain
}

// NewService wires an identification service. provider and embedder may be
// nil, the service then leans on whichever path remains.
func NewService(settings *conf.Settings, p provider.Provider, embedder Embedder, matcher CatalogMatcher, chain *uses.Chain) *Service {
	return &Service{
		settings: settings,
		provider: p,
		embedder: embedder,
		matcher:  matcher,
		chain:    chain,
	}
}

// Identify runs the full pipeline on one image and always returns a
// well-formed result.
func (s *Service) Identify(ctx context.Context, imageData []byte) Result {
	start := time.Now()
	logger := getLogger()

	result := s.identifyInner(ctx, imageData, logger)
	result.ElapsedSeconds = time.Since(start).Seconds()

	logger.Info("Identification complete",
		"common_name", result.CommonName,
		"scientific_name", result.ScientificName,
		"uses_source", result.UsesSource,
		"elapsed_seconds", result.ElapsedSeconds)
	return result
}

func (s *Service) identifyInner(ctx context.Context, imageData []byte, logger *slog.Logger) Result {
	if s.provider != nil && s.provider.Configured() {
		ident, err := s.provider.Identify(ctx, [][]byte{imageData})
		if err == nil {
			return s.resolveProviderResult(ctx, ident)
		}
		if errors.Is(err, provider.ErrNoMatch) {
			logger.Info("Provider had no match, falling back to similarity",
				"provider", s.provider.Name())
		} else {
			logger.Warn("Provider failed, falling back to similarity",
				"provider", s.provider.Name(), "error", err)
		}
	}

	return s.identifyBySimilarity(ctx, imageData, logger)
}

func (s *Service) resolveProviderResult(ctx context.Context, ident *provider.Identification) Result {
	commonName := ident.CommonName
	if commonName == "" {
		commonName = ident.ScientificName
	}

	usesText, source := s.chain.Resolve(ctx, commonName, ident.ScientificName, ident.Description)

	return Result{
		CommonName:     commonName,
		ScientificName: ident.ScientificName,
		Uses:           usesText,
		UsesSource:     source,
	}
}

func (s *Service) identifyBySimilarity(ctx context.Context, imageData []byte, logger *slog.Logger) Result {
	var embedding []float32
	if s.embedder != nil {
		var err error
		embedding, err = s.embedder.Extract(imageData)
		if err != nil {
			logger.Warn("Embedding extraction failed, match will be degraded", "error", err)
			embedding = nil
		}
	}

	match, err := s.matcher.BestMatch(embedding)
	if err != nil {
		if errors.Is(err, similarity.ErrEmptyCatalog) {
			logger.Warn("Catalog is empty, returning sentinel result")
		} else {
			logger.Error("Catalog match failed", "error", err)
		}
		return s.sentinelResult(ctx)
	}

	herb := match.Herb
	usesText, source := s.chain.Resolve(ctx, herb.CommonName, herb.ScientificName, "")
	if match.Degraded() {
		usesText = degradedNote + usesText
	}

	return Result{
		CommonName:      herb.CommonName,
		ScientificName:  herb.ScientificName,
		Uses:            usesText,
		UsesSource:      source,
		SimilarityScore: match.Score,
	}
}

// sentinelResult is the total-failure record. Uses is still resolved through
// the chain so the advisory text appears, keeping Uses non-empty.
func (s *Service) sentinelResult(ctx context.Context) Result {
	usesText, source := s.chain.Resolve(ctx, UnknownCommonName, UnknownScientificName, "")
	return Result{
		CommonName:     UnknownCommonName,
		ScientificName: UnknownScientificName,
		Uses:           usesText,
		UsesSource:     source,
	}
}
