package uses

import (
	"context"
	"strings"

	"github.com/mkallio/herbid-go/internal/datastore"
	"github.com/mkallio/herbid-go/internal/errors"
	"github.com/mkallio/herbid-go/internal/spreadsheet"
	"github.com/mkallio/herbid-go/internal/wiki"
)

// SpreadsheetResolver answers from the curated spreadsheet index.
type SpreadsheetResolver struct {
	Index *spreadsheet.Index
}

func (r *SpreadsheetResolver) Name() string { return "spreadsheet" }

func (r *SpreadsheetResolver) Resolve(_ context.Context, commonName, _ string) (string, error) {
	if usesText, ok := r.Index.Lookup(commonName); ok {
		return usesText, nil
	}
	return "", ErrNoUses
}

// CatalogResolver answers from the stored herb catalog. It tries cleaned
// variants of both names against the scientific and common name columns,
// then widens to a full-table containment scan in both directions.
type CatalogResolver struct {
	Store datastore.Interface
}

func (r *CatalogResolver) Name() string { return "catalog" }

func (r *CatalogResolver) Resolve(_ context.Context, commonName, scientificName string) (string, error) {
	type lookup struct {
		fn   func(string) (datastore.Herb, error)
		name string
	}

	var lookups []lookup
	for _, variant := range nameVariants(scientificName) {
		lookups = append(lookups, lookup{r.Store.GetHerbByScientificName, variant})
	}
	for _, variant := range nameVariants(commonName) {
		lookups = append(lookups, lookup{r.Store.GetHerbByCommonName, variant})
	}

	for _, l := range lookups {
		herb, err := l.fn(l.name)
		if err != nil {
			if errors.IsNotFound(err) || errors.IsCategory(err, errors.CategoryValidation) {
				continue
			}
			return "", err
		}
		if strings.TrimSpace(herb.Uses) != "" {
			return herb.Uses, nil
		}
	}

	return r.containmentScan(commonName, scientificName)
}

// containmentScan walks the whole catalog accepting a record when either name
// column contains the query or the query contains it, case-insensitively.
// The column lookups above only cover the stored-name-contains-query
// direction, a query like "Indian Holy Basil" still has to find the stored
// "Holy Basil". First record in storage order wins.
func (r *CatalogResolver) containmentScan(commonName, scientificName string) (string, error) {
	queries := scanQueries(commonName, scientificName)
	if len(queries) == 0 {
		return "", ErrNoUses
	}

	herbs, err := r.Store.GetAllHerbs()
	if err != nil {
		return "", err
	}

	for _, query := range queries {
		for i := range herbs {
			if strings.TrimSpace(herbs[i].Uses) == "" {
				continue
			}
			for _, stored := range []string{herbs[i].ScientificName, herbs[i].CommonName} {
				stored = strings.ToLower(strings.TrimSpace(stored))
				if stored == "" || stored == "n/a" {
					continue
				}
				if strings.Contains(query, stored) || strings.Contains(stored, query) {
					return herbs[i].Uses, nil
				}
			}
		}
	}
	return "", ErrNoUses
}

// scanQueries lowercases the two species names for the containment scan,
// scientific first, dropping empties and sentinels.
func scanQueries(commonName, scientificName string) []string {
	var queries []string
	for _, name := range []string{scientificName, commonName} {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "n/a" || name == "unknown herb" {
			continue
		}
		queries = append(queries, name)
	}
	return queries
}

// nameVariants expands a name into progressively looser lookup candidates:
// the name itself, the name with any parenthetical stripped, and its first
// word. Empty and duplicate variants are dropped.
func nameVariants(name string) []string {
	candidates := []string{
		strings.TrimSpace(name),
		spreadsheet.StripParenthetical(name),
		spreadsheet.FirstWord(name),
	}

	seen := make(map[string]bool, len(candidates))
	var variants []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[strings.ToLower(c)] {
			continue
		}
		seen[strings.ToLower(c)] = true
		variants = append(variants, c)
	}
	return variants
}

// WikipediaResolver answers from encyclopedia summaries. Scientific names
// make better article titles than common names, so they are tried first.
type WikipediaResolver struct {
	Client *wiki.Client
}

func (r *WikipediaResolver) Name() string { return "wikipedia" }

func (r *WikipediaResolver) Resolve(ctx context.Context, commonName, scientificName string) (string, error) {
	for _, query := range wikiQueries(commonName, scientificName) {
		summary, err := r.Client.MedicinalSummary(ctx, query)
		if err == nil {
			return summary, nil
		}
		if !errors.Is(err, wiki.ErrNoSummary) {
			return "", err
		}
	}
	return "", ErrNoUses
}

func wikiQueries(commonName, scientificName string) []string {
	var queries []string

	scientific := strings.TrimSpace(scientificName)
	if scientific != "" && !strings.EqualFold(scientific, "N/A") {
		queries = append(queries, scientific)
	}

	common := spreadsheet.StripParenthetical(commonName)
	if common != "" && !strings.EqualFold(common, "Unknown herb") {
		queries = append(queries,
			common,
			common+" herb",
			common+" plant",
			common+" medicinal plant")
	}

	seen := make(map[string]bool, len(queries))
	out := queries[:0]
	for _, q := range queries {
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	return out
}

// ProviderTextResolver answers with the description the identification
// provider returned for the current request. It is constructed per request.
type ProviderTextResolver struct {
	Text string
}

func (r *ProviderTextResolver) Name() string { return "provider" }

func (r *ProviderTextResolver) Resolve(_ context.Context, _, _ string) (string, error) {
	if strings.TrimSpace(r.Text) == "" {
		return "", ErrNoUses
	}
	return r.Text, nil
}
