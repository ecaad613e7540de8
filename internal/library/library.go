// Package library owns the local playlist state. Every mutation replaces
// the whole snapshot atomically, persists it through a LocalStore, and
// then notifies subscribers.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
)

// LocalStore persists the library between runs.
type LocalStore interface {
	LoadLibrary() (*models.Snapshot, models.PinnedSongs, error)
	SaveSnapshot(s *models.Snapshot) error
	SavePinned(p models.PinnedSongs) error
}

// ChangeKind says which part of the library changed.
type ChangeKind int

const (
	ChangePlaylists ChangeKind = iota
	ChangePinned
)

// Source says who caused a change. Sync-originated replacements are
// tagged so observers can tell them apart from user edits.
type Source int

const (
	SourceUser Source = iota
	SourceSync
	SourceImport
)

// Change is delivered to subscribers after a mutation is persisted.
type Change struct {
	Kind   ChangeKind
	Source Source
}

// Library is the single coordinator for local playlist state. It is safe
// for concurrent use; mutations are serialized by an internal mutex.
type Library struct {
	store  LocalStore
	gen    playlist.IDGenerator
	logger *slog.Logger

	mu        sync.Mutex
	owner     string
	snapshot  *models.Snapshot
	pinned    models.PinnedSongs
	observers []func(Change)
	player    Player

	hydrated     chan struct{}
	hydrateOnce  sync.Once
	hydrateError error
}

// New creates an empty, not yet hydrated Library.
func New(store LocalStore, gen playlist.IDGenerator, logger *slog.Logger) *Library {
	return &Library{
		store:    store,
		gen:      gen,
		logger:   logger,
		snapshot: models.DefaultSnapshot(),
		hydrated: make(chan struct{}),
	}
}

// Hydrate loads persisted state. A store with nothing saved yet is
// seeded with the default snapshot. Hydrated is closed when Hydrate
// returns, even on error, so waiters are never stuck; the library then
// keeps the default snapshot.
func (l *Library) Hydrate(ctx context.Context) error {
	l.hydrateOnce.Do(func() {
		defer close(l.hydrated)

		if err := ctx.Err(); err != nil {
			l.hydrateError = err
			return
		}

		snap, pinned, err := l.store.LoadLibrary()
		if err != nil {
			l.hydrateError = fmt.Errorf("loading library: %w", err)
			return
		}

		l.mu.Lock()
		defer l.mu.Unlock()

		if snap == nil {
			snap = models.DefaultSnapshot()
			if err := l.store.SaveSnapshot(snap); err != nil {
				l.hydrateError = fmt.Errorf("seeding library: %w", err)
				return
			}

			l.logger.Info("seeded default library")
		}

		if snap.LoopMode == "" {
			snap.LoopMode = models.LoopAll
		}

		l.snapshot = snap
		l.pinned = playlist.NormalizePinned(pinned)

		l.logger.Info("library hydrated",
			slog.Int("playlists", len(snap.Playlists)),
			slog.Int("items", snap.TotalItems()),
			slog.Int("pinned", len(l.pinned.PinnedOrder)),
		)
	})

	return l.hydrateError
}

// Hydrated is closed once Hydrate has finished.
func (l *Library) Hydrated() <-chan struct{} {
	return l.hydrated
}

// Subscribe registers fn to be called after every persisted change. The
// callback runs on the mutating goroutine and must not block.
func (l *Library) Subscribe(fn func(Change)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.observers = append(l.observers, fn)
}

// SetOwner sets the user id used to namespace new playlist ids.
func (l *Library) SetOwner(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.owner = owner
}

// Owner returns the current owner id, or "" when signed out.
func (l *Library) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.owner
}

// Snapshot returns a copy of the current snapshot.
func (l *Library) Snapshot() *models.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.snapshot.Clone()
}

// Pinned returns a copy of the pinned songs.
func (l *Library) Pinned() models.PinnedSongs {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.pinned.Clone()
}

// VisiblePlaylists returns Favorites followed by the stored playlists.
func (l *Library) VisiblePlaylists() []models.Playlist {
	l.mu.Lock()
	defer l.mu.Unlock()

	return playlist.VisiblePlaylists(l.pinned, l.snapshot.Playlists)
}

// CanCreate reports whether another playlist fits within the bound.
func (l *Library) CanCreate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.snapshot.Playlists) < models.MaxPlaylistCount
}

// Replace swaps in a whole new snapshot, used when sync or an import
// supersedes local data.
func (l *Library) Replace(s *models.Snapshot, source Source) error {
	if err := playlist.CheckShape(s); err != nil {
		return err
	}

	return l.mutate(source, func(cur *models.Snapshot) error {
		*cur = *s.Clone()
		return nil
	})
}

// ReplacePinned swaps in new pinned songs.
func (l *Library) ReplacePinned(p models.PinnedSongs, source Source) error {
	return l.mutatePinned(source, func(models.PinnedSongs) (models.PinnedSongs, error) {
		return p.Clone(), nil
	})
}

// mutate applies fn to a copy of the current snapshot, repairs the active
// id and bound, persists, and swaps it in. Observers run after the lock
// is released.
func (l *Library) mutate(source Source, fn func(s *models.Snapshot) error) error {
	l.mu.Lock()

	next := l.snapshot.Clone()
	if err := fn(next); err != nil {
		l.mu.Unlock()
		return err
	}

	bounds := playlist.EnforceBounds(next.Playlists, next.ActivePlaylistID)
	if bounds.Dropped > 0 {
		l.logger.Warn("playlist limit exceeded, dropping from tail",
			slog.Int("dropped", bounds.Dropped),
			slog.Int("limit", models.MaxPlaylistCount),
		)
	}

	next.Playlists = bounds.Playlists
	next.ActivePlaylistID = bounds.ActivePlaylistID

	if err := l.store.SaveSnapshot(next); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("saving library: %w", err)
	}

	l.snapshot = next
	observers := append([]func(Change){}, l.observers...)
	l.mu.Unlock()

	notify(observers, Change{Kind: ChangePlaylists, Source: source})

	return nil
}

func (l *Library) mutatePinned(source Source, fn func(p models.PinnedSongs) (models.PinnedSongs, error)) error {
	l.mu.Lock()

	next, err := fn(l.pinned.Clone())
	if err != nil {
		l.mu.Unlock()
		return err
	}

	next = playlist.NormalizePinned(next)

	if err := l.store.SavePinned(next); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("saving pinned songs: %w", err)
	}

	l.pinned = next
	observers := append([]func(Change){}, l.observers...)
	l.mu.Unlock()

	notify(observers, Change{Kind: ChangePinned, Source: source})

	return nil
}

func notify(observers []func(Change), c Change) {
	for _, fn := range observers {
		fn(c)
	}
}

func guardFavorites(id string) error {
	if id == models.FavoritesPlaylistID {
		return apperrors.ErrFavoritesReadOnly
	}

	return nil
}

func findPlaylist(s *models.Snapshot, id string) (int, error) {
	if err := guardFavorites(id); err != nil {
		return -1, err
	}

	idx := s.FindPlaylist(id)
	if idx < 0 {
		return -1, fmt.Errorf("%w: %s", apperrors.ErrPlaylistNotFound, id)
	}

	return idx, nil
}
