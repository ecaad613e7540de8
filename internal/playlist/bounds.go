package playlist

import "github.com/alexjbarnes/playlist-sync/internal/models"

// BoundsResult is the output of EnforceBounds.
type BoundsResult struct {
	Playlists        []models.Playlist
	ActivePlaylistID string
	CanCreate        bool

	// Dropped is how many playlists were cut from the tail.
	Dropped int
}

// EnforceBounds truncates playlists to models.MaxPlaylistCount, keeping
// the earliest ones, and repairs the active id. The Favorites sentinel is
// exempt from the bound and passes through unchanged. Any other active id
// that no longer exists falls back to the first playlist, or "".
func EnforceBounds(playlists []models.Playlist, activeID string) BoundsResult {
	kept := playlists
	dropped := 0

	if len(kept) > models.MaxPlaylistCount {
		dropped = len(kept) - models.MaxPlaylistCount
		kept = kept[:models.MaxPlaylistCount]
	}

	out := models.ClonePlaylists(kept)
	if out == nil {
		out = []models.Playlist{}
	}

	active := activeID
	if active != models.FavoritesPlaylistID && !containsPlaylist(out, active) {
		if len(out) > 0 {
			active = out[0].ID
		} else {
			active = ""
		}
	}

	return BoundsResult{
		Playlists:        out,
		ActivePlaylistID: active,
		CanCreate:        len(out) < models.MaxPlaylistCount,
		Dropped:          dropped,
	}
}

func containsPlaylist(playlists []models.Playlist, id string) bool {
	for _, p := range playlists {
		if p.ID == id {
			return true
		}
	}

	return false
}
