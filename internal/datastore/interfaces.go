// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the rest of the application needs from the herb catalog.
type Interface interface {
	Open() error
	Close() error
	SaveHerb(herb *Herb) error
	GetHerb(id uint) (Herb, error)
	GetHerbByCommonName(name string) (Herb, error)
	GetHerbByScientificName(name string) (Herb, error)
	GetAllHerbs() ([]Herb, error)
	UpdateHerbEmbedding(id uint, embedding []byte) error
	CountHerbs() (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// SaveHerb inserts or updates a herb catalog record.
func (ds *DataStore) SaveHerb(herb *Herb) error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	if err := ds.DB.Save(herb).Error; err != nil {
		return errors.New(fmt.Errorf("saving herb %q: %w", herb.CommonName, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("common_name", herb.CommonName).
			Build()
	}
	return nil
}

// GetHerb retrieves a herb by its ID.
func (ds *DataStore) GetHerb(id uint) (Herb, error) {
	var herb Herb
	if err := ds.DB.First(&herb, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Herb{}, errors.NotFoundError("no herb with id %d", id)
		}
		return Herb{}, errors.New(fmt.Errorf("getting herb with id %d: %w", id, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return herb, nil
}

// GetHerbByCommonName retrieves the first herb whose common name contains the
// given name, case-insensitively. With duplicate or overlapping names the
// first record in storage order wins.
func (ds *DataStore) GetHerbByCommonName(name string) (Herb, error) {
	return ds.getHerbByNameColumn("common_name", name)
}

// GetHerbByScientificName retrieves the first herb whose scientific name
// contains the given name, case-insensitively.
func (ds *DataStore) GetHerbByScientificName(name string) (Herb, error) {
	return ds.getHerbByNameColumn("scientific_name", name)
}

func (ds *DataStore) getHerbByNameColumn(column, name string) (Herb, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Herb{}, errors.ValidationError("empty name lookup")
	}

	var herb Herb
	pattern := "%" + strings.ToLower(name) + "%"
	err := ds.DB.
		Where(fmt.Sprintf("LOWER(%s) LIKE ?", column), pattern).
		Order("id").
		First(&herb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Herb{}, errors.NotFoundError("no herb matching %q on %s", name, column)
		}
		return Herb{}, errors.New(fmt.Errorf("looking up herb by %s %q: %w", column, name, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("column", column).
			Build()
	}
	return herb, nil
}

// GetAllHerbs returns every herb in the catalog in storage order.
func (ds *DataStore) GetAllHerbs() ([]Herb, error) {
	var herbs []Herb
	if err := ds.DB.Order("id").Find(&herbs).Error; err != nil {
		return nil, errors.New(fmt.Errorf("listing herbs: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return herbs, nil
}

// UpdateHerbEmbedding replaces the stored feature vector of a herb.
// Recomputing is idempotent, the previous embedding is overwritten.
func (ds *DataStore) UpdateHerbEmbedding(id uint, embedding []byte) error {
	result := ds.DB.Model(&Herb{}).Where("id = ?", id).Update("embedding", embedding)
	if result.Error != nil {
		return errors.New(fmt.Errorf("updating embedding for herb %d: %w", id, result.Error)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("herb_id", id).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.NotFoundError("no herb with id %d", id)
	}
	return nil
}

// CountHerbs returns the number of catalog entries.
func (ds *DataStore) CountHerbs() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Herb{}).Count(&count).Error; err != nil {
		return 0, errors.New(fmt.Errorf("counting herbs: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return count, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Herb{}); err != nil {
		return errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}

	if debug {
		getLogger().Debug("Database connection established",
			"db_type", dbType,
			"connection", connectionInfo)
	}
	return nil
}
