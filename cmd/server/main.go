// Package main is the entry point for the Hi-C scaling dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scaling-viz/server/internal/api"
	"github.com/scaling-viz/server/internal/archivestore"
	"github.com/scaling-viz/server/internal/cache"
	"github.com/scaling-viz/server/internal/config"
	"github.com/scaling-viz/server/internal/data/dataset"
	"github.com/scaling-viz/server/internal/render"
	"github.com/scaling-viz/server/internal/service"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Hi-C contact-probability scaling dashboard",
	Long: `Serve, fit and export Hi-C scaling curves.

Without a subcommand the HTTP dashboard is started.

Examples:
  server --config config/server.yaml
  server fit --dataset dataset_july_2021 --sample WT
  server fetch dataset_august_2021
  server datasets`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP dashboard",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/server.yaml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd, fitCmd, fetchCmd, datasetsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var cfg *config.Config

// setupLogging loads configuration and configures the global logger.
func setupLogging(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Log.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

// app holds the components shared by every dataset.
type app struct {
	manifest *archivestore.Store
	cache    *cache.Manager
	loader   *dataset.Loader
	renderer *render.PlotRenderer
	registry *api.DatasetRegistry
}

func newApp(cfg *config.Config) (*app, error) {
	manifest, err := archivestore.NewStore(cfg.Data.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive manifest: %w", err)
	}

	// Initialize cache manager (shared across all datasets)
	cacheManager, err := cache.NewManager(cache.Config{
		PlotCacheSizeMB: cfg.Cache.PlotSizeMB,
		PlotTTL:         time.Duration(cfg.Cache.PlotTTLMinutes) * time.Minute,
		FitCacheSize:    cfg.Cache.FitCacheSize,
	})
	if err != nil {
		manifest.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	a := &app{
		manifest: manifest,
		cache:    cacheManager,
		loader: dataset.NewLoader(dataset.LoaderConfig{
			ArchiveDir: cfg.Data.ArchiveDir,
			Manifest:   manifest,
		}),
		renderer: render.NewPlotRenderer(render.Config{
			Width:   cfg.Render.Width,
			Height:  cfg.Render.Height,
			Palette: cfg.Render.Palette,
		}),
	}

	datasetIDs := cfg.Data.DatasetIDs()
	a.registry = api.NewDatasetRegistry(cfg.Data.DefaultDataset, datasetIDs, cfg.Server.Title)
	for _, id := range datasetIDs {
		a.registry.Register(id, a.service(sourceFor(cfg, id)))
	}
	return a, nil
}

func sourceFor(cfg *config.Config, id string) dataset.Source {
	ds := cfg.Data.Datasets[id]
	return dataset.Source{ID: id, URL: ds.URL, Path: ds.Path, ValueColumn: ds.ValueColumn}
}

func (a *app) service(src dataset.Source) *service.ScalingService {
	return service.NewScalingService(service.ScalingServiceConfig{
		Source:   src,
		Loader:   a.loader,
		Cache:    a.cache,
		Renderer: a.renderer,
		Defaults: service.Defaults{
			End1:   cfg.Fit.End1,
			End2:   cfg.Fit.End2,
			Strict: cfg.Fit.Strict,
		},
	})
}

func (a *app) Close() {
	a.cache.Close()
	a.manifest.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().
		Int("port", cfg.Server.Port).
		Strs("datasets", cfg.Data.DatasetIDs()).
		Str("default", cfg.Data.DefaultDataset).
		Msg("starting scaling server")

	router := api.NewRouter(api.RouterConfig{
		Registry:    a.registry,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Requests may block on an archive download.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
	return nil
}
