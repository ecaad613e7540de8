package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/auth"
	"github.com/alexjbarnes/playlist-sync/internal/config"
	"github.com/alexjbarnes/playlist-sync/internal/library"
	"github.com/alexjbarnes/playlist-sync/internal/logging"
	"github.com/alexjbarnes/playlist-sync/internal/mcpserver"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/remote"
	"github.com/alexjbarnes/playlist-sync/internal/render"
	"github.com/alexjbarnes/playlist-sync/internal/state"
	"github.com/alexjbarnes/playlist-sync/internal/syncer"
	"github.com/alexjbarnes/playlist-sync/internal/watch"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var syncResolve string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the client sync daemon",
	Long: `Run the client sync daemon.

On start the local library is loaded and the remote is pulled. Local edits
are pushed after SYNC_DEBOUNCE of quiet. When both sides hold different
playlists the conflict is printed and nothing is pushed until it is
resolved, either with --resolve or through the sync_resolve_conflict MCP
tool.

Environment:
  REMOTE_URL       - Base URL of the playlist API (required)
  AUTH_TOKEN       - Bearer token for the API (required)
  STATE_PATH       - Local state file (default ~/.playlist-sync/state.db)
  SYNC_DEBOUNCE    - Quiet period before a push (default 1s)
  WATCH_FILE       - Optional JSON file imported whenever it changes
  ENABLE_MCP       - Serve MCP tools over HTTP (default false)
  MCP_LISTEN_ADDR  - MCP listen address (default :8090)`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		choice, err := parseChoice(syncResolve)
		if err != nil {
			return err
		}

		cfg, err := config.Load(config.ModeSync)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return runSync(ctx, cfg, choice, logging.NewLogger(cfg.Environment, cfg.LogLevel))
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncResolve, "resolve", "", "Resolve conflicts automatically: local or remote")
}

// parseChoice maps the --resolve flag. The empty string means prompt
// only.
func parseChoice(s string) (*syncer.Choice, error) {
	var c syncer.Choice

	switch s {
	case "":
		return nil, nil
	case "local":
		c = syncer.ChooseLocal
	case "remote":
		c = syncer.ChooseRemote
	default:
		return nil, fmt.Errorf("--resolve must be local or remote, got %q", s)
	}

	return &c, nil
}

func openState(path string) (*state.State, error) {
	if path == "" {
		return state.Load()
	}

	return state.LoadAt(path)
}

func runSync(ctx context.Context, cfg *config.Config, autoResolve *syncer.Choice, logger *slog.Logger) error {
	owner, err := auth.SubjectFromToken(cfg.AuthToken)
	if err != nil {
		return fmt.Errorf("reading AUTH_TOKEN: %w", err)
	}

	logger.Info("playlist-sync starting",
		slog.String("version", Version),
		slog.String("remote", cfg.RemoteURL),
		slog.String("owner", owner),
		slog.Bool("mcp", cfg.EnableMCP),
		slog.Bool("watch", cfg.WatchFile != ""),
	)

	appState, err := openState(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	if err := appState.SetToken(cfg.AuthToken); err != nil {
		logger.Warn("failed to save token", slog.String("error", err.Error()))
	}

	if err := appState.SetOwner(owner); err != nil {
		logger.Warn("failed to save owner", slog.String("error", err.Error()))
	}

	gen := playlist.UUIDGenerator{}

	lib := library.New(appState, gen, logger)
	if err := lib.Hydrate(ctx); err != nil {
		return fmt.Errorf("loading library: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var s *syncer.Syncer
	s = syncer.New(syncer.Config{
		Library:  lib,
		Remote:   remote.NewClient(cfg.RemoteURL, cfg.AuthToken, nil),
		Meta:     appState,
		Resolver: playlist.NewResolver(playlist.NewComparator(logger), logger),
		Gen:      gen,
		Debounce: cfg.SyncDebounce,
		OnConflict: func(c syncer.Conflict) {
			if err := render.Conflict(os.Stderr, c); err != nil {
				logger.Warn("rendering conflict", slog.String("error", err.Error()))
			}

			if autoResolve == nil {
				return
			}

			// Handlers must not call back into the syncer synchronously.
			choice := *autoResolve
			go func() {
				if err := s.ResolveConflict(gctx, choice); err != nil {
					logger.Warn("auto resolve failed", slog.String("error", err.Error()))
				}
			}()
		},
	}, logger)

	g.Go(func() error {
		return s.Run(gctx)
	})

	// Login only fails when the context ends, so this is a shutdown.
	if err := s.Login(gctx, owner); err != nil {
		return ignoreCanceled(g.Wait())
	}

	printStatus(os.Stdout, s.Status(), logger)

	if cfg.WatchFile != "" {
		w := watch.NewWatcher(cfg.WatchFile, lib, gen, logger)
		g.Go(func() error {
			return w.Watch(gctx)
		})
	}

	if cfg.EnableMCP {
		g.Go(func() error {
			return runMCP(gctx, cfg, lib, s, logger)
		})
	}

	err = ignoreCanceled(g.Wait())

	logger.Info("sync stopped")

	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func printStatus(w io.Writer, st syncer.Status, logger *slog.Logger) {
	if err := render.Status(w, st); err != nil {
		logger.Warn("rendering status", slog.String("error", err.Error()))
	}
}

// runMCP serves the playlist tools over streamable HTTP, guarded by the
// same bearer token the daemon uses against the remote.
func runMCP(ctx context.Context, cfg *config.Config, lib *library.Library, s *syncer.Syncer, logger *slog.Logger) error {
	mcpLogger := logger.With(slog.String("service", "mcp"))

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "playlist-sync-mcp", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, lib, s)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", auth.StaticToken(cfg.AuthToken, mcpLogger)(mcpHandler))

	server := &http.Server{
		Addr:         cfg.MCPListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	mcpLogger.Info("starting MCP server", slog.String("listen", cfg.MCPListenAddr))

	if err := serveHTTP(ctx, server); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
