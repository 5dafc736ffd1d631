// Package api exposes the identification service over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/datastore"
	"github.com/mkallio/herbid-go/internal/identify"
	"github.com/mkallio/herbid-go/internal/logging"
)

// Uploads above this size are rejected before decoding.
const maxUploadBytes = 20 << 20

// Identifier runs one identification. Satisfied by identify.Service.
type Identifier interface {
	Identify(ctx context.Context, imageData []byte) identify.Result
}

// Package-level logger for the API server
var (
	apiLogger   *slog.Logger
	apiLevelVar = new(slog.LevelVar)
	loggerOnce  sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		apiLevelVar.Set(slog.LevelInfo)

		var err error
		apiLogger, _, err = logging.NewFileLogger("logs/api.log", "api", apiLevelVar)
		if err != nil {
			logging.Error("Failed to initialize API file logger", "error", err)
			apiLogger = logging.NoopLogger("api", apiLevelVar)
		}
	})
	return apiLogger
}

// Controller is the HTTP front of the application.
type Controller struct {
	Echo       *echo.Echo
	settings   *conf.Settings
	ds         datastore.Interface
	identifier Identifier
}

// HerbSummary is one row of the catalog listing.
type HerbSummary struct {
	ID             uint   `json:"id"`
	CommonName     string `json:"common_name"`
	ScientificName string `json:"scientific_name"`
	Uses           string `json:"uses"`
	HasEmbedding   bool   `json:"has_embedding"`
}

// New builds the controller and registers middleware and routes.
func New(settings *conf.Settings, ds datastore.Interface, identifier Identifier) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	c := &Controller{
		Echo:       e,
		settings:   settings,
		ds:         ds,
		identifier: identifier,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", maxUploadBytes>>20)))
	e.Use(c.requestLogger())

	v1 := e.Group("/api/v1")
	v1.GET("/health", c.HealthCheck)
	v1.POST("/identify", c.IdentifyHerb)
	v1.GET("/herbs", c.ListHerbs)

	return c
}

// requestLogger logs each request through the structured API logger.
func (c *Controller) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger := getLogger()
			if c.settings.WebServer.Debug || v.Status >= http.StatusInternalServerError {
				logger.Info("HTTP request",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			}
			return nil
		},
	})
}

// Start runs the server on the configured port. Blocks until shutdown.
func (c *Controller) Start() error {
	addr := ":" + c.settings.WebServer.Port
	getLogger().Info("HTTP server starting", "addr", addr)
	return c.Echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Echo.Shutdown(ctx)
}

// HealthCheck reports liveness.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": c.settings.Version,
	})
}

// IdentifyHerb accepts a multipart photo upload and returns the
// identification result. Only an unreadable upload is a client error,
// identification degradation still answers 200 with a sentinel record.
func (c *Controller) IdentifyHerb(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.uploadError(ctx, "missing file field in upload", err)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.uploadError(ctx, "cannot open uploaded file", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			getLogger().Debug("Failed to close upload", "error", closeErr)
		}
	}()

	imageData, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return c.uploadError(ctx, "cannot read uploaded file", err)
	}
	if len(imageData) == 0 {
		return c.uploadError(ctx, "uploaded file is empty", nil)
	}
	if len(imageData) > maxUploadBytes {
		return c.uploadError(ctx, "uploaded file is too large", nil)
	}

	result := c.identifier.Identify(ctx.Request().Context(), imageData)
	return ctx.JSON(http.StatusOK, result)
}

// uploadError answers 400 with a result-shaped body so clients parse one
// schema for every outcome.
func (c *Controller) uploadError(ctx echo.Context, message string, err error) error {
	getLogger().Info("Rejecting upload", "reason", message, "error", err)
	return ctx.JSON(http.StatusBadRequest, identify.Result{
		CommonName:     identify.UnknownCommonName,
		ScientificName: identify.UnknownScientificName,
		Uses:           "The upload could not be processed: " + message + ". Retry with a valid image file.",
		UsesSource:     "error",
	})
}

// ListHerbs returns the stored catalog.
func (c *Controller) ListHerbs(ctx echo.Context) error {
	herbs, err := c.ds.GetAllHerbs()
	if err != nil {
		getLogger().Error("Catalog listing failed", "error", err)
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "cannot list herbs",
		})
	}

	summaries := make([]HerbSummary, 0, len(herbs))
	for i := range herbs {
		summaries = append(summaries, HerbSummary{
			ID:             herbs[i].ID,
			CommonName:     herbs[i].CommonName,
			ScientificName: herbs[i].ScientificName,
			Uses:           herbs[i].Uses,
			HasEmbedding:   herbs[i].HasEmbedding(),
		})
	}
	return ctx.JSON(http.StatusOK, summaries)
}
