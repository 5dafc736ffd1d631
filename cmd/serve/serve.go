// Package serve implements the HTTP server subcommand.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mkallio/herbid-go/internal/api"
	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/datastore"
	"github.com/mkallio/herbid-go/internal/identify"
	"github.com/mkallio/herbid-go/internal/logging"
	"github.com/mkallio/herbid-go/internal/provider"
	"github.com/mkallio/herbid-go/internal/similarity"
	"github.com/mkallio/herbid-go/internal/spreadsheet"
	"github.com/mkallio/herbid-go/internal/uses"
	"github.com/mkallio/herbid-go/internal/wiki"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the identification HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), settings)
		},
	}

	cmd.PersistentFlags().StringVarP(&settings.WebServer.Port, "port", "p", viper.GetString("webserver.port"), "Port to listen on")
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}

	return cmd
}

func runServer(ctx context.Context, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	index := spreadsheet.New(settings.Spreadsheet.Path)
	wikiClient := wiki.NewClient(settings)

	p, err := provider.New(settings)
	if err != nil {
		return err
	}
	if p != nil && !p.Configured() {
		logging.Warn("Identification provider has no API key, relying on similarity fallback",
			"provider", p.Name())
	}

	// A missing feature model is not fatal, matches degrade instead.
	var embedder identify.Embedder
	if extractor, extErr := similarity.NewExtractor(settings); extErr != nil {
		logging.Warn("Feature model unavailable, similarity matching disabled", "error", extErr)
	} else {
		embedder = extractor
		defer extractor.Close()
	}

	chain := uses.NewChain(settings, index, ds, wikiClient)
	service := identify.NewService(settings, p, embedder, similarity.NewMatcher(settings, ds), chain)
	controller := api.New(settings, ds, service)

	errChan := make(chan error, 1)
	go func() {
		errChan <- controller.Start()
	}()

	logging.Info("HerbID-Go server running", "port", settings.WebServer.Port)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return controller.Shutdown(shutdownCtx)
}
