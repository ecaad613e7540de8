// Package watch imports playlist snapshots from a JSON file whenever it
// changes on disk.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/library"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/fsnotify/fsnotify"
)

const (
	// debounceInterval is how often pending events are checked.
	debounceInterval = 100 * time.Millisecond

	// settleTime is the quiet period after the last write before the
	// file is read.
	settleTime = 300 * time.Millisecond
)

// Sink receives imported snapshots. *library.Library satisfies it.
type Sink interface {
	Owner() string
	Replace(s *models.Snapshot, source library.Source) error
}

// Watcher watches one import file.
type Watcher struct {
	path   string
	sink   Sink
	gen    playlist.IDGenerator
	logger *slog.Logger

	lastHash string
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, sink Sink, gen playlist.IDGenerator, logger *slog.Logger) *Watcher {
	return &Watcher{path: filepath.Clean(path), sink: sink, gen: gen, logger: logger}
}

// Watch blocks until ctx is cancelled. The parent directory is watched
// rather than the file, so editors that save by renaming a temp file
// over it are still seen.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w.logger.Info("import watcher started", slog.String("file", w.path))

	var pendingSince time.Time

	ticker := time.NewTicker(debounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pendingSince = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			if pendingSince.IsZero() || time.Since(pendingSince) < settleTime {
				continue
			}

			pendingSince = time.Time{}

			if err := w.Import(); err != nil {
				w.logger.Warn("import skipped",
					slog.String("file", w.path),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Import reads and applies the file once. Invalid content is rejected
// without touching the library. Bytes identical to the previous import
// are skipped; the raw file is hashed because reconciliation may mint
// fresh ids on every pass.
func (w *Watcher) Import() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("reading import file: %w", err)
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	if hash == w.lastHash {
		w.logger.Debug("import file unchanged", slog.String("file", w.path))
		return nil
	}

	snap, err := playlist.ParseSnapshot(raw)
	if err != nil {
		return err
	}

	ids := playlist.ReconcileIDs(snap.Playlists, snap.ActivePlaylistID, w.sink.Owner(), w.gen)
	bounds := playlist.EnforceBounds(ids.Playlists, ids.ActivePlaylistID)

	if bounds.Dropped > 0 {
		w.logger.Warn("import exceeds playlist limit, dropping from tail",
			slog.Int("dropped", bounds.Dropped),
			slog.Int("limit", models.MaxPlaylistCount),
		)
	}

	snap.Playlists = bounds.Playlists
	snap.ActivePlaylistID = bounds.ActivePlaylistID

	if err := w.sink.Replace(snap, library.SourceImport); err != nil {
		return fmt.Errorf("applying import: %w", err)
	}

	w.lastHash = hash

	w.logger.Info("imported playlists",
		slog.String("file", w.path),
		slog.Int("playlists", len(snap.Playlists)),
		slog.Int("items", snap.TotalItems()),
	)

	return nil
}
