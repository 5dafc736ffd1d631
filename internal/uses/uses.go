// Package uses resolves the medicinal-uses text for an identified herb by
// walking a configurable chain of sources: the spreadsheet index, the stored
// catalog, the encyclopedia, and the identification provider's own
// description. Resolution is total, when every source misses a generic
// advisory is returned.
package uses

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/datastore"
	"github.com/mkallio/herbid-go/internal/errors"
	"github.com/mkallio/herbid-go/internal/logging"
	"github.com/mkallio/herbid-go/internal/spreadsheet"
	"github.com/mkallio/herbid-go/internal/wiki"
)

// ErrNoUses signals that a source has no uses text for the herb. The chain
// treats it as "try the next source".
var ErrNoUses = errors.NewStd("no uses information found")

// SourceAdvisory is the source label reported when every source missed.
const SourceAdvisory = "advisory"

const advisoryTemplate = "No documented medicinal uses were found for %s (%s). " +
	"General advisory: many culinary and ornamental herbs have traditional uses that are " +
	"not well recorded. Consult a qualified herbalist or physician before using any " +
	"plant medicinally."

// Resolver is a single source of uses text. Resolve returns ErrNoUses when
// the source has nothing for the herb, other errors indicate the source
// itself failed.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, commonName, scientificName string) (string, error)
}

// Package-level logger for uses resolution
var (
	usesLogger   *slog.Logger
	usesLevelVar = new(slog.LevelVar)
	loggerOnce   sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		usesLevelVar.Set(slog.LevelInfo)

		var err error
		usesLogger, _, err = logging.NewFileLogger("logs/uses.log", "uses", usesLevelVar)
		if err != nil {
			logging.Error("Failed to initialize uses file logger", "error", err)
			usesLogger = logging.NoopLogger("uses", usesLevelVar)
		}
	})
	return usesLogger
}

// Chain walks the configured sources in priority order.
type Chain struct {
	order  []string
	static map[string]Resolver
}

// NewChain builds the resolution chain from the configured source order.
// Sources without a backing component (a nil index, store or client) are
// skipped at resolution time.
func NewChain(settings *conf.Settings, index *spreadsheet.Index, ds datastore.Interface, wikiClient *wiki.Client) *Chain {
	static := make(map[string]Resolver, 3)
	if index != nil {
		static["spreadsheet"] = &SpreadsheetResolver{Index: index}
	}
	if ds != nil {
		static["catalog"] = &CatalogResolver{Store: ds}
	}
	if wikiClient != nil {
		static["wikipedia"] = &WikipediaResolver{Client: wikiClient}
	}

	order := make([]string, 0, len(settings.Uses.Order))
	for _, source := range settings.Uses.Order {
		order = append(order, strings.ToLower(strings.TrimSpace(source)))
	}

	return &Chain{order: order, static: static}
}

// Resolve returns the uses text for a herb and the name of the source that
// supplied it. providerText is the description the identification provider
// returned for this request, consulted when "provider" appears in the order.
// Resolve never fails, when every source misses it returns the advisory.
func (c *Chain) Resolve(ctx context.Context, commonName, scientificName, providerText string) (usesText, source string) {
	logger := getLogger().With("common_name", commonName, "scientific_name", scientificName)

	for _, name := range c.order {
		var resolver Resolver
		if name == "provider" {
			resolver = &ProviderTextResolver{Text: providerText}
		} else {
			resolver = c.static[name]
			if resolver == nil {
				continue
			}
		}

		text, err := resolver.Resolve(ctx, commonName, scientificName)
		switch {
		case err == nil && strings.TrimSpace(text) != "":
			logger.Info("Uses resolved", "source", resolver.Name(), "length", len(text))
			return strings.TrimSpace(text), resolver.Name()
		case err != nil && !errors.Is(err, ErrNoUses):
			logger.Warn("Uses source failed, trying next", "source", resolver.Name(), "error", err)
		default:
			logger.Debug("Uses source missed", "source", resolver.Name())
		}
	}

	logger.Info("All uses sources missed, returning advisory")
	return fmt.Sprintf(advisoryTemplate, commonName, scientificName), SourceAdvisory
}
