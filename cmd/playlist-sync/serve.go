package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/broker"
	"github.com/alexjbarnes/playlist-sync/internal/config"
	"github.com/alexjbarnes/playlist-sync/internal/logging"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/repository"
	"github.com/alexjbarnes/playlist-sync/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remote playlist API",
	Long: `Run the remote playlist API.

Environment:
  LISTEN_ADDR       - Listen address (default :8080)
  STORE_DRIVER      - postgres or sqlite (default sqlite)
  DATABASE_URL      - Postgres connection string
  SQLITE_PATH       - SQLite file (default playlist-sync.db)
  MAX_BOUND_PARAMS  - Bound parameter cap per insert (default 100)
  REDIS_URL         - Optional; enables hash caching and /api/events
  JWT_SECRET        - HS256 signing secret (required)`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(config.ModeServe)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return runServe(ctx, cfg, logging.NewLogger(cfg.Environment, cfg.LogLevel))
	},
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Repository, error) {
	if cfg.StoreDriver == config.DriverPostgres {
		pg, err := repository.OpenPostgres(ctx, cfg.DatabaseURL, cfg.MaxBoundParams, logger)
		if err != nil {
			return nil, err
		}

		return pg, nil
	}

	lite, err := repository.OpenSQLite(ctx, cfg.SQLitePath, cfg.MaxBoundParams, logger)
	if err != nil {
		return nil, err
	}

	return lite, nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("playlist-sync server starting",
		slog.String("version", Version),
		slog.String("driver", cfg.StoreDriver),
		slog.Bool("redis", cfg.RedisURL != ""),
	)

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}

	var b *broker.Broker
	if cfg.RedisURL != "" {
		b, err = broker.Open(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer b.Close()
	}

	srv := server.New(server.Config{
		Repo:   repo,
		Broker: b,
		Gen:    playlist.UUIDGenerator{},
		Secret: []byte(cfg.JWTSecret),
		Logger: logger,
	})

	// No WriteTimeout: /api/events holds websocket connections open.
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("listening", slog.String("addr", cfg.ListenAddr))

	if err := serveHTTP(ctx, httpServer); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")

	return nil
}
