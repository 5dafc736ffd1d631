// Package importer implements the embedding import subcommand. It walks a
// dataset directory laid out as one subdirectory per herb, computes an
// averaged feature embedding per herb and stores it in the catalog.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/datastore"
	"github.com/mkallio/herbid-go/internal/errors"
	"github.com/mkallio/herbid-go/internal/logging"
	"github.com/mkallio/herbid-go/internal/similarity"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
}

const placeholderUses = "No uses recorded yet for this imported herb."

// Command creates the import subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "import [dataset directory]",
		Short: "Compute and store herb embeddings from a photo dataset",
		Long: "Walks a dataset directory with one subdirectory per herb, computes an " +
			"averaged feature embedding over each herb's photos and stores it in the catalog. " +
			"Herbs not yet in the catalog are created with placeholder uses.",
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runImport(settings, args[0])
		},
	}
}

func runImport(settings *conf.Settings, datasetDir string) error {
	info, err := os.Stat(datasetDir)
	if err != nil {
		return fmt.Errorf("dataset directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", datasetDir)
	}

	extractor, err := similarity.NewExtractor(settings)
	if err != nil {
		return fmt.Errorf("import requires the feature model: %w", err)
	}
	defer extractor.Close()

	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database is enabled in the configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logging.Error("Failed to close database", "error", err)
		}
	}()

	entries, err := os.ReadDir(datasetDir)
	if err != nil {
		return err
	}

	imported := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		herbName := entry.Name()

		embedding, imageCount, err := averageEmbedding(extractor, filepath.Join(datasetDir, herbName))
		if err != nil {
			logging.Error("Skipping herb directory", "herb", herbName, "error", err)
			continue
		}
		if embedding == nil {
			logging.Warn("No usable images in herb directory", "herb", herbName)
			continue
		}

		if err := storeEmbedding(ds, herbName, embedding); err != nil {
			return err
		}
		logging.Info("Imported embedding", "herb", herbName, "images", imageCount)
		imported++
	}

	fmt.Printf("Imported embeddings for %d herbs\n", imported)
	return nil
}

// averageEmbedding extracts an embedding from every image in dir, averages
// them and re-normalizes to unit length. Undecodable images are skipped.
func averageEmbedding(extractor *similarity.Extractor, dir string) (embedding []float32, imageCount int, err error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}

	var sum []float32
	for _, file := range files {
		if file.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
			continue
		}

		imageData, readErr := os.ReadFile(filepath.Join(dir, file.Name()))
		if readErr != nil {
			logging.Warn("Cannot read image file", "file", file.Name(), "error", readErr)
			continue
		}

		emb, extErr := extractor.Extract(imageData)
		if extErr != nil {
			logging.Warn("Cannot extract embedding", "file", file.Name(), "error", extErr)
			continue
		}

		if sum == nil {
			sum = make([]float32, len(emb))
		}
		for i := range emb {
			sum[i] += emb[i]
		}
		imageCount++
	}

	if imageCount == 0 {
		return nil, 0, nil
	}
	for i := range sum {
		sum[i] /= float32(imageCount)
	}
	similarity.Normalize(sum)
	return sum, imageCount, nil
}

// storeEmbedding attaches the embedding to the cataloged herb with the
// directory's name, creating the herb when it is not yet cataloged.
func storeEmbedding(ds datastore.Interface, herbName string, embedding []float32) error {
	encoded := similarity.EncodeEmbedding(embedding)

	herb, err := ds.GetHerbByCommonName(herbName)
	if err != nil {
		if !errors.IsNotFound(err) {
			return err
		}
		herb = datastore.Herb{
			CommonName:     herbName,
			ScientificName: "N/A",
			Uses:           placeholderUses,
			Embedding:      encoded,
		}
		return ds.SaveHerb(&herb)
	}

	return ds.UpdateHerbEmbedding(herb.ID, encoded)
}
