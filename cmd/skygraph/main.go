// Command skygraph runs the airspace routing service: it keeps the airspace
// picture (vertiports, waypoints, no-fly zones, aircraft) in memory, persists
// it to SQLite, and answers best-path queries over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aviaro/skygraph/internal/airspace"
	"github.com/aviaro/skygraph/internal/api"
	"github.com/aviaro/skygraph/internal/config"
	"github.com/aviaro/skygraph/internal/routing"
	"github.com/aviaro/skygraph/internal/storage/sqlite"
	"github.com/aviaro/skygraph/internal/telemetry"
	"github.com/aviaro/skygraph/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to TOML config file")
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "skygraph: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Configuration loaded",
		logger.String("address", cfg.Server.Address()),
		logger.String("storage_path", cfg.Storage.Path),
		logger.Duration("query_timeout", cfg.Routing.QueryTimeout()),
	)

	// Storage.
	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := sqlite.NewAirspaceStore(db, log)
	if err != nil {
		return err
	}

	// Airspace state. A failed restore is not fatal: the service starts
	// empty and reports not-ready until the first update arrives.
	airspaceSvc := airspace.NewService(store, cfg.Routing.GridCellDegrees, log)
	if err := airspaceSvc.LoadFromStore(ctx); err != nil {
		log.Warn("Failed to restore airspace state, starting empty", logger.Error(err))
	}

	finder := routing.NewFinder(cfg.Routing.CorridorAltitudeMeters, cfg.Routing.AircraftMaxAge(), log)

	// HTTP server.
	router := api.NewRouter(airspaceSvc, finder, cfg, log)
	httpServer := &http.Server{
		Addr:        cfg.Server.Address(),
		Handler:     router.Routes(),
		ReadTimeout: cfg.Server.ReadTimeout(),
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Telemetry feed, if configured.
	if cfg.Telemetry.Enabled {
		client := telemetry.NewClient(cfg.Telemetry.FeedURL, cfg.Telemetry.PollInterval(), log)
		poller := telemetry.NewService(client, airspaceSvc, cfg.Telemetry.PollInterval(), log)
		g.Go(func() error {
			if err := poller.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("telemetry poller error: %w", err)
			}
			return nil
		})
	}

	// Periodically drop aircraft rows too old to ever route from again.
	g.Go(func() error {
		ticker := time.NewTicker(10 * cfg.Routing.AircraftMaxAge())
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-10 * cfg.Routing.AircraftMaxAge())
				n, err := store.PruneAircraftPositions(gCtx, cutoff)
				if err != nil {
					log.Warn("Failed to prune aircraft positions", logger.Error(err))
				} else if n > 0 {
					log.Debug("Pruned stale aircraft positions", logger.Int64("count", n))
				}
			}
		}
	})

	g.Go(func() error {
		log.Info("Starting HTTP server", logger.String("address", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			log.Info("Received shutdown signal", logger.String("signal", sig.String()))
		case <-gCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", logger.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Application error", logger.Error(err))
		return err
	}

	log.Info("Server stopped")
	return nil
}
