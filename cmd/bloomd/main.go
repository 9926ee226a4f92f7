package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/bloom-forecast/internal/adapter/cache"
	httpadapter "github.com/couchcryptid/bloom-forecast/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/bloom-forecast/internal/adapter/kafka"
	"github.com/couchcryptid/bloom-forecast/internal/adapter/ndvi"
	"github.com/couchcryptid/bloom-forecast/internal/adapter/sqlite"
	"github.com/couchcryptid/bloom-forecast/internal/config"
	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/forecast"
	"github.com/couchcryptid/bloom-forecast/internal/observability"
	"github.com/couchcryptid/bloom-forecast/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// Real vegetation data is feature-flagged via NDVI_ENABLED / NDVI_API_TOKEN.
	var (
		primary domain.VegetationIndexProvider
		imagery domain.ImageryProvider
	)
	if cfg.NDVIEnabled {
		client := ndvi.NewClient(cfg.NDVIAPIURL, cfg.NDVIAPIToken, cfg.NDVITimeout, metrics, logger)
		primary, imagery = client, client
		logger.Info("vegetation index api enabled", "url", cfg.NDVIAPIURL, "timeout", cfg.NDVITimeout)
	} else {
		logger.Info("vegetation index api disabled, serving synthetic observations")
	}

	store, closeStore, err := openCache(cfg)
	if err != nil {
		logger.Error("failed to open cache", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("cache ready", "backend", cfg.CacheBackend)

	catalog, err := loadCatalog(cfg.PhenologyCatalog)
	if err != nil {
		logger.Error("failed to load phenology catalog", "error", err)
		os.Exit(1)
	}

	var (
		publisher pipeline.Publisher
		writer    *kafkaadapter.Writer
	)
	if cfg.PublishingEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("report publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	clock := clockwork.NewRealClock()
	provider := pipeline.NewResilientProvider(primary, imagery, domain.NewFallbackProvider(nil), cfg.RequestTimeout, metrics, logger)
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Cache:            store,
		Provider:         provider,
		Catalog:          catalog,
		Engine:           forecast.NewEngine(),
		Publisher:        publisher,
		Clock:            clock,
		Metrics:          metrics,
		Logger:           logger,
		RequestTimeout:   cfg.RequestTimeout,
		BatchConcurrency: cfg.BatchConcurrency,
		MaxBatchPoints:   cfg.MaxBatchPoints,
		HistoryMonths:    cfg.ForecastHistoryMonths,
		DefaultLocation:  domain.Coordinate{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon},
	})
	refresher := pipeline.NewRefresher(orch, cfg.RefreshInterval, cfg.RefreshWindow, clock, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, orch, orch, cfg.CORSAllowedOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start cache refresher.
	go func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("cache refresher error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func openCache(cfg *config.Config) (domain.CacheStore, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheSQLite:
		store, err := sqlite.Open(cfg.CacheSQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache %s: %w", cfg.CacheSQLitePath, err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return cache.NewMemoryStore(cfg.CacheSize), func() {}, nil
	}
}

func loadCatalog(path string) (*domain.PhenologyCatalog, error) {
	if path == "" {
		return domain.DefaultPhenologyCatalog(), nil
	}
	return domain.LoadPhenologyCatalogFile(path)
}
