package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/sahithikokkula/explorer/pkg/anonapi"
	"github.com/sahithikokkula/explorer/pkg/api"
	"github.com/sahithikokkula/explorer/pkg/components"
	"github.com/sahithikokkula/explorer/pkg/config"
	"github.com/sahithikokkula/explorer/pkg/explorer"
	"github.com/sahithikokkula/explorer/pkg/logging"
	"github.com/sahithikokkula/explorer/pkg/storage"
	"github.com/sahithikokkula/explorer/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to explorer.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		slog.Error("failed to set up logging", slog.Any("error", err))
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("using database path", slog.String("path", cfg.Storage.MetaDBPath))
	db, err := storage.Open(ctx, cfg.Storage.MetaDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	client := anonapi.NewClient(
		anonapi.NewHTTPTransport(cfg.API.URL, anonapi.WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.Burst)),
		anonapi.Config{
			Credential:           cfg.API.Key,
			PollInterval:         cfg.API.PollInterval,
			MaxConcurrentQueries: cfg.API.MaxConcurrentQueries,
			CancelOnAbort:        cfg.API.CancelOnAbort,
			Logger:               logger,
		},
	)
	manager := explorer.NewManager(logger)

	r := mux.NewRouter()
	api.RegisterRoutes(r, api.Deps{
		Manager:        manager,
		Metadata:       storage.NewCachedMetadata(db, client, cfg.Storage.MetadataTTL, logger),
		Runner:         client,
		Registry:       components.NewRegistry(cfg.Components),
		QueryTimeout:   cfg.API.QueryTimeout,
		MaxConcurrency: cfg.Explorer.MaxConcurrency,
		Metrics:        telemetry.MetricsHandler(),
		Logger:         logger,
	})

	go prune(ctx, manager, cfg.Storage.Retention, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("explorer server listening", slog.String("addr", "http://localhost:"+cfg.Server.Port))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	manager.CancelAll()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// prune drops finished explorations from memory once they are older than
// retention.
func prune(ctx context.Context, m *explorer.Manager, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retention / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if n := m.Prune(retention); n > 0 {
			logger.Info("pruned explorations", slog.Int("count", n))
		}
	}
}
