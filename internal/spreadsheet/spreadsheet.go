// Package spreadsheet loads a tabular file of herb names and their medicinal
// uses into an in-memory index keyed by normalized name. The index reloads
// itself when the backing file's modification time changes.
package spreadsheet

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mkallio/herbid-go/internal/errors"
	"github.com/mkallio/herbid-go/internal/logging"
)

// Package-level logger for the spreadsheet index
var (
	sheetLogger   *slog.Logger
	sheetLevelVar = new(slog.LevelVar)
	loggerOnce    sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		sheetLevelVar.Set(slog.LevelInfo)

		var err error
		sheetLogger, _, err = logging.NewFileLogger("logs/spreadsheet.log", "spreadsheet", sheetLevelVar)
		if err != nil {
			logging.Error("Failed to initialize spreadsheet file logger", "error", err)
			sheetLogger = logging.NoopLogger("spreadsheet", sheetLevelVar)
		}
	})
	return sheetLogger
}

// Accepted header spellings, matched case-insensitively.
var (
	nameHeaders = []string{"common name", "herb", "herb name", "name", "plant", "plant name", "local name"}
	usesHeaders = []string{"uses", "medicinal uses", "medical uses", "benefits", "traditional uses", "properties"}
)

// Index is an in-memory normalized-name to uses-text lookup built from a
// tabular file. All methods are safe for concurrent use.
type Index struct {
	path string

	mu        sync.Mutex
	entries   map[string]string
	modTime   time.Time
	loaded    bool
	available bool // false when headers could not be resolved
}

// New creates an index backed by the given file path. An empty path produces
// an index whose lookups always miss.
func New(path string) *Index {
	return &Index{path: path}
}

// Lookup returns the uses text for a common name, or false when the source is
// unavailable or carries no matching row.
func (ix *Index) Lookup(commonName string) (string, bool) {
	if ix.path == "" || strings.TrimSpace(commonName) == "" {
		return "", false
	}

	snapshot := ix.snapshot()
	if snapshot == nil {
		return "", false
	}

	// Exact candidates, most specific first.
	candidates := []string{
		NormalizeName(commonName),
		NormalizeName(StripParenthetical(commonName)),
		NormalizeName(FirstWord(commonName)),
	}
	seen := make(map[string]bool, len(candidates))
	for _, key := range candidates {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if uses, ok := snapshot[key]; ok {
			return uses, true
		}
	}

	// Containment scan in both directions. Map iteration order decides ties,
	// which is an accepted limitation of the fuzzy path.
	query := NormalizeName(commonName)
	if query == "" {
		return "", false
	}
	for key, uses := range snapshot {
		if strings.Contains(query, key) || strings.Contains(key, query) {
			return uses, true
		}
	}
	return "", false
}

// snapshot returns the current entries map, reloading first when the backing
// file changed. Reload and swap happen under the lock so readers never
// observe a half-populated index.
func (ix *Index) snapshot() map[string]string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	info, err := os.Stat(ix.path)
	if err != nil {
		// Missing file silently disables the source.
		if ix.loaded {
			getLogger().Warn("Spreadsheet no longer readable, disabling source",
				"path", ix.path, "error", err)
			ix.loaded = false
			ix.entries = nil
		}
		return nil
	}

	if !ix.loaded || !info.ModTime().Equal(ix.modTime) {
		ix.reloadLocked(info.ModTime())
	}

	if !ix.available {
		return nil
	}
	return ix.entries
}

func (ix *Index) reloadLocked(modTime time.Time) {
	start := time.Now()

	rows, err := readRows(ix.path)
	if err != nil {
		getLogger().Warn("Failed to parse spreadsheet, disabling source",
			"path", ix.path, "error", err)
		ix.entries = nil
		ix.loaded = true
		ix.available = false
		ix.modTime = modTime
		return
	}

	entries, ok := buildEntries(rows)
	ix.entries = entries
	ix.loaded = true
	ix.available = ok
	ix.modTime = modTime

	if ok {
		getLogger().Info("Spreadsheet index loaded",
			"path", ix.path,
			"entries", len(entries),
			"duration_ms", time.Since(start).Milliseconds())
	} else {
		getLogger().Warn("Spreadsheet headers could not be resolved, source unavailable until file changes",
			"path", ix.path)
	}
}

// buildEntries resolves the name and uses columns and fans each row's aliases
// out to the row's uses text. Later rows overwrite earlier ones on collision.
func buildEntries(rows [][]string) (map[string]string, bool) {
	if len(rows) == 0 {
		return nil, false
	}

	nameCol, usesCol := resolveHeaders(rows[0])
	if nameCol < 0 || usesCol < 0 {
		return nil, false
	}

	entries := make(map[string]string)
	for _, row := range rows[1:] {
		if nameCol >= len(row) || usesCol >= len(row) {
			continue
		}
		uses := strings.TrimSpace(row[usesCol])
		if uses == "" {
			continue
		}
		for _, alias := range splitAliases(row[nameCol]) {
			if key := NormalizeName(alias); key != "" {
				entries[key] = uses
			}
		}
	}
	return entries, true
}

func resolveHeaders(header []string) (nameCol, usesCol int) {
	nameCol, usesCol = -1, -1
	for i, cell := range header {
		cell = strings.ToLower(strings.TrimSpace(cell))
		if nameCol < 0 && matchesAny(cell, nameHeaders) {
			nameCol = i
			continue
		}
		if usesCol < 0 && matchesAny(cell, usesHeaders) {
			usesCol = i
		}
	}
	return nameCol, usesCol
}

func matchesAny(cell string, accepted []string) bool {
	for _, h := range accepted {
		if cell == h {
			return true
		}
	}
	return false
}

// readRows parses the file into rows of cells, dispatching on extension.
func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	default:
		return readXLSX(path)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("spreadsheet").
			Category(errors.CategorySpreadsheet).
			Context("path", path).
			Build()
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Newf("spreadsheet has no sheets").
			Component("spreadsheet").
			Category(errors.CategorySpreadsheet).
			Build()
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.New(err).
			Component("spreadsheet").
			Category(errors.CategorySpreadsheet).
			Context("sheet", sheets[0]).
			Build()
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("spreadsheet").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New(err).
				Component("spreadsheet").
				Category(errors.CategorySpreadsheet).
				Context("path", path).
				Build()
		}
		rows = append(rows, record)
	}
	return rows, nil
}
