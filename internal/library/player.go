package library

import (
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
)

// ErrNoPlayer is returned by PlayItem when no playback engine is attached.
var ErrNoPlayer = errors.New("no player attached")

// Player is the media playback engine. The library drives it but never
// inspects its state.
type Player interface {
	LoadByID(id string) error
	Play() error
	Pause() error
}

// SetPlayer attaches the playback engine. A nil player disables playback.
func (l *Library) SetPlayer(p Player) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.player = p
}

// PlayItem makes playlistID active and starts playing itemID from it.
// Favorites is a valid playlist here since playing does not modify it.
func (l *Library) PlayItem(playlistID, itemID string) error {
	l.mu.Lock()
	player := l.player
	snap := l.snapshot
	pinned := l.pinned
	l.mu.Unlock()

	if player == nil {
		return ErrNoPlayer
	}

	var items []models.PlaylistItem
	if playlistID == models.FavoritesPlaylistID {
		items = playlist.DeriveFavorites(pinned.PinnedOrder, snap.Playlists).Items
	} else {
		idx := snap.FindPlaylist(playlistID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", apperrors.ErrPlaylistNotFound, playlistID)
		}

		items = snap.Playlists[idx].Items
	}

	found := false
	for _, it := range items {
		if it.ID == itemID {
			found = true
			break
		}
	}

	if !found {
		return fmt.Errorf("%w: %s", apperrors.ErrItemNotFound, itemID)
	}

	if snap.ActivePlaylistID != playlistID {
		if err := l.SetActive(playlistID); err != nil {
			return err
		}
	}

	if err := player.LoadByID(itemID); err != nil {
		return fmt.Errorf("loading %s: %w", itemID, err)
	}

	if err := player.Play(); err != nil {
		return fmt.Errorf("starting playback: %w", err)
	}

	l.logger.Debug("playing item",
		slog.String("playlist", playlistID),
		slog.String("item", itemID),
	)

	return nil
}

// Pause pauses playback if a player is attached.
func (l *Library) Pause() error {
	l.mu.Lock()
	player := l.player
	l.mu.Unlock()

	if player == nil {
		return nil
	}

	return player.Pause()
}
