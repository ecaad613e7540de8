package library

import (
	"fmt"
	"strings"

	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
)

// newID returns a playlist id in the owner's namespace that is not
// already used in s. Callers hold l.mu.
func (l *Library) newID(s *models.Snapshot) string {
	for {
		id := playlist.PlaylistID(l.owner, l.gen.Segment())
		if s.FindPlaylist(id) < 0 {
			return id
		}
	}
}

// CreatePlaylist appends an empty playlist and makes it active.
func (l *Library) CreatePlaylist(name string) (models.Playlist, error) {
	var created models.Playlist

	name = strings.TrimSpace(name)
	if name == "" {
		return created, fmt.Errorf("%w: playlist name is empty", apperrors.ErrInvalidShape)
	}

	err := l.mutate(SourceUser, func(s *models.Snapshot) error {
		if len(s.Playlists) >= models.MaxPlaylistCount {
			return apperrors.ErrPlaylistLimit
		}

		created = models.Playlist{ID: l.newID(s), Name: name, Items: []models.PlaylistItem{}}
		s.Playlists = append(s.Playlists, created)
		s.ActivePlaylistID = created.ID

		return nil
	})

	return created, err
}

// DuplicatePlaylist copies a playlist under a new id, inserted right
// after the original.
func (l *Library) DuplicatePlaylist(id string) (models.Playlist, error) {
	var dup models.Playlist

	err := l.mutate(SourceUser, func(s *models.Snapshot) error {
		idx, err := findPlaylist(s, id)
		if err != nil {
			return err
		}

		if len(s.Playlists) >= models.MaxPlaylistCount {
			return apperrors.ErrPlaylistLimit
		}

		dup = s.Playlists[idx].Clone()
		dup.ID = l.newID(s)
		dup.Name = s.Playlists[idx].Name + " (copy)"
		if dup.Items == nil {
			dup.Items = []models.PlaylistItem{}
		}

		s.Playlists = append(s.Playlists[:idx+1], append([]models.Playlist{dup}, s.Playlists[idx+1:]...)...)

		return nil
	})

	return dup, err
}

// DeletePlaylist removes a playlist. If it was active the first
// remaining playlist becomes active.
func (l *Library) DeletePlaylist(id string) error {
	return l.mutate(SourceUser, func(s *models.Snapshot) error {
		idx, err := findPlaylist(s, id)
		if err != nil {
			return err
		}

		s.Playlists = append(s.Playlists[:idx], s.Playlists[idx+1:]...)

		return nil
	})
}

// RenamePlaylist changes a playlist's name.
func (l *Library) RenamePlaylist(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: playlist name is empty", apperrors.ErrInvalidShape)
	}

	return l.mutate(SourceUser, func(s *models.Snapshot) error {
		idx, err := findPlaylist(s, id)
		if err != nil {
			return err
		}

		s.Playlists[idx].Name = name

		return nil
	})
}

// AddItem appends an item. Item ids are unique within a playlist.
func (l *Library) AddItem(playlistID string, item models.PlaylistItem) error {
	if item.ID == "" {
		return fmt.Errorf("%w: item id is empty", apperrors.ErrInvalidShape)
	}

	return l.mutate(SourceUser, func(s *models.Snapshot) error {
		idx, err := findPlaylist(s, playlistID)
		if err != nil {
			return err
		}

		for _, it := range s.Playlists[idx].Items {
			if it.ID == item.ID {
				return fmt.Errorf("%w: %s", apperrors.ErrDuplicateItem, item.ID)
			}
		}

		s.Playlists[idx].Items = append(s.Playlists[idx].Items, item)

		return nil
	})
}

// RemoveItem deletes an item from a playlist.
func (l *Library) RemoveItem(playlistID, itemID string) error {
	return l.mutate(SourceUser, func(s *models.Snapshot) error {
		idx, err := findPlaylist(s, playlistID)
		if err != nil {
			return err
		}

		items := s.Playlists[idx].Items
		for i, it := range items {
			if it.ID == itemID {
				s.Playlists[idx].Items = append(items[:i], items[i+1:]...)
				return nil
			}
		}

		return fmt.Errorf("%w: %s", apperrors.ErrItemNotFound, itemID)
	})
}

// MoveItem moves the item at position from to position to.
func (l *Library) MoveItem(playlistID string, from, to int) error {
	return l.mutate(SourceUser, func(s *models.Snapshot) error {
		idx, err := findPlaylist(s, playlistID)
		if err != nil {
			return err
		}

		items := s.Playlists[idx].Items
		if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
			return fmt.Errorf("%w: move %d -> %d out of range", apperrors.ErrItemNotFound, from, to)
		}

		moved := items[from]
		items = append(items[:from], items[from+1:]...)
		items = append(items[:to], append([]models.PlaylistItem{moved}, items[to:]...)...)
		s.Playlists[idx].Items = items

		return nil
	})
}

// SetActive selects the active playlist. The Favorites sentinel is
// allowed.
func (l *Library) SetActive(id string) error {
	return l.mutate(SourceUser, func(s *models.Snapshot) error {
		if id != models.FavoritesPlaylistID && s.FindPlaylist(id) < 0 {
			return fmt.Errorf("%w: %s", apperrors.ErrPlaylistNotFound, id)
		}

		s.ActivePlaylistID = id

		return nil
	})
}

// SetLoopMode changes the loop mode.
func (l *Library) SetLoopMode(mode models.LoopMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown loop mode %q", apperrors.ErrInvalidShape, mode)
	}

	return l.mutate(SourceUser, func(s *models.Snapshot) error {
		s.LoopMode = mode
		return nil
	})
}

// ToggleShuffle flips shuffle and returns the new value.
func (l *Library) ToggleShuffle() (bool, error) {
	var on bool

	err := l.mutate(SourceUser, func(s *models.Snapshot) error {
		s.IsShuffle = !s.IsShuffle
		on = s.IsShuffle

		return nil
	})

	return on, err
}

// Pin adds an item to Favorites. Pinning twice is a no-op.
func (l *Library) Pin(itemID string) error {
	if itemID == "" {
		return fmt.Errorf("%w: item id is empty", apperrors.ErrInvalidShape)
	}

	return l.mutatePinned(SourceUser, func(p models.PinnedSongs) (models.PinnedSongs, error) {
		if playlist.IsPinned(p, itemID) {
			return p, nil
		}

		p.PinnedOrder = append(p.PinnedOrder, itemID)

		return p, nil
	})
}

// Unpin removes an item from Favorites.
func (l *Library) Unpin(itemID string) error {
	return l.mutatePinned(SourceUser, func(p models.PinnedSongs) (models.PinnedSongs, error) {
		if !playlist.IsPinned(p, itemID) {
			return p, fmt.Errorf("%w: %s is not pinned", apperrors.ErrItemNotFound, itemID)
		}

		out := models.PinnedSongs{}
		for _, id := range p.PinnedOrder {
			if id != itemID {
				out.PinnedOrder = append(out.PinnedOrder, id)
			}
		}

		return out, nil
	})
}
