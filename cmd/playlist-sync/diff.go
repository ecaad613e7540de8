package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alexjbarnes/playlist-sync/internal/config"
	"github.com/alexjbarnes/playlist-sync/internal/logging"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/remote"
	"github.com/alexjbarnes/playlist-sync/internal/render"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var diffOutput string

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show what differs between the local library and the remote",
	Long: `Fetch the remote playlists and compare them with the local library.

Changes are described going from local to remote: "added" exists only on
the remote, "removed" only locally. Settings such as the active playlist
are not compared.

Examples:
  playlist-sync diff
  playlist-sync diff --output json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !validOutput(diffOutput) {
			return fmt.Errorf("--output must be text, json or yaml, got %q", diffOutput)
		}

		cfg, err := config.Load(config.ModeDiff)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return runDiff(ctx, cfg, cmd.OutOrStdout())
	},
}

func init() {
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "text", "Output format: text, json or yaml")
}

func validOutput(format string) bool {
	return format == "text" || format == "json" || format == "yaml"
}

func runDiff(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger := logging.NewLoggerTo(os.Stderr, cfg.Environment, cfg.LogLevel)

	appState, err := openState(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	local, _, err := appState.LoadLibrary()
	if err != nil {
		return fmt.Errorf("loading library: %w", err)
	}

	if local == nil {
		local = models.DefaultSnapshot()
	}

	snap, err := remote.NewClient(cfg.RemoteURL, cfg.AuthToken, nil).FetchPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("fetching remote: %w", err)
	}

	if snap.Snapshot == nil {
		logger.Info("remote holds no playlists yet")
	}

	return writeDiff(out, diffOutput, playlist.Diff(local, snap.Snapshot))
}

// writeDiff prints d in the given format.
func writeDiff(w io.Writer, format string, d *playlist.DiffResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(d)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(d); err != nil {
			return err
		}

		return enc.Close()
	default:
		return render.Diff(w, d)
	}
}
