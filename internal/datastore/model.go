// model.go this code defines the data model for the application
package datastore

// Herb represents a single catalog entry for a known herb species.
type Herb struct {
	ID             uint   `gorm:"primaryKey"`
	CommonName     string `gorm:"index:idx_herbs_comname;not null"`
	ScientificName string `gorm:"index:idx_herbs_sciname;not null"`
	Uses           string `gorm:"type:text;not null"`
	Description    string `gorm:"type:text"`
	ImagePath      string // path to a representative sample image
	// Embedding holds the L2-normalized feature vector of the representative
	// image as little-endian float32 bytes. Empty until computed by the
	// import pipeline; recomputing overwrites.
	Embedding []byte `gorm:"type:blob"`
}

// HasEmbedding reports whether a feature vector has been computed for this herb.
func (h *Herb) HasEmbedding() bool {
	return len(h.Embedding) > 0
}
