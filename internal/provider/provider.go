// Package provider integrates external plant identification APIs. Providers
// share one interface and are selected through configuration, so the rest of
// the application never knows which service produced an identification.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/errors"
	"github.com/mkallio/herbid-go/internal/logging"
)

const requestTimeout = 30 * time.Second

// ErrNoMatch is returned when the provider responded successfully but had no
// suggestion for the submitted images.
var ErrNoMatch = errors.NewStd("provider returned no identification")

// Identification is a provider's best suggestion for a set of images.
type Identification struct {
	CommonName     string  // may be empty when the provider only names the species
	ScientificName string
	Description    string  // free-text species description, may be empty
	Probability    float64 // confidence in [0,1], 0 when the provider omits it
}

// Provider identifies a plant from one or more photos.
type Provider interface {
	// Name returns the provider identifier used in configuration and logs.
	Name() string

	// Configured reports whether the provider has the credentials it needs.
	Configured() bool

	// Identify submits the images and returns the top suggestion.
	// Returns ErrNoMatch when the provider has no suggestion.
	Identify(ctx context.Context, images [][]byte) (*Identification, error)
}

// Package-level logger for provider calls
var (
	providerLogger   *slog.Logger
	providerLevelVar = new(slog.LevelVar)
	loggerOnce       sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		providerLevelVar.Set(slog.LevelInfo)

		var err error
		providerLogger, _, err = logging.NewFileLogger("logs/provider.log", "provider", providerLevelVar)
		if err != nil {
			logging.Error("Failed to initialize provider file logger", "error", err)
			providerLogger = logging.NoopLogger("provider", providerLevelVar)
		}
	})
	return providerLogger
}

// New creates the identification provider selected in the settings.
func New(settings *conf.Settings) (Provider, error) {
	switch settings.Provider.Name {
	case "plantid":
		return NewPlantIDProvider(settings), nil
	case "plantnet":
		return NewPlantNetProvider(settings), nil
	case "", "none":
		return nil, nil
	default:
		return nil, errors.Newf("invalid provider name: %s", settings.Provider.Name).
			Component("provider").
			Category(errors.CategoryConfiguration).
			Context("provider", settings.Provider.Name).
			Build()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func statusError(provider string, status int) error {
	return errors.New(fmt.Errorf("%s returned status %d", provider, status)).
		Component("provider").
		Category(errors.CategoryProvider).
		Context("provider", provider).
		Context("status_code", status).
		Build()
}
