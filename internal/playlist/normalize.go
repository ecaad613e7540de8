package playlist

import (
	"sort"

	"github.com/alexjbarnes/playlist-sync/internal/models"
)

// Normalize returns a canonical deep copy of s for comparison: playlists
// sorted by id, each playlist's items sorted by id, nil item slices
// replaced with empty ones and an unset loop mode read as "all". The
// input is never mutated. The result is used for equality and hashing
// only and must not be persisted or displayed, since stored order is
// insertion order.
//
// Ids are assumed unique within their scope. When they are not, the
// relative order of duplicates is whatever the stable sort leaves.
func Normalize(s *models.Snapshot) (*models.Snapshot, error) {
	if s == nil {
		return nil, shapeErr("snapshot is nil")
	}

	out := &models.Snapshot{
		Playlists:        make([]models.Playlist, len(s.Playlists)),
		ActivePlaylistID: s.ActivePlaylistID,
		LoopMode:         s.LoopMode,
		IsShuffle:        s.IsShuffle,
	}

	if out.LoopMode == "" {
		out.LoopMode = models.LoopAll
	}

	for i, p := range s.Playlists {
		np := p.Clone()
		if np.Items == nil {
			np.Items = []models.PlaylistItem{}
		}

		sort.SliceStable(np.Items, func(a, b int) bool {
			return np.Items[a].ID < np.Items[b].ID
		})

		out.Playlists[i] = np
	}

	sort.SliceStable(out.Playlists, func(a, b int) bool {
		return out.Playlists[a].ID < out.Playlists[b].ID
	})

	return out, nil
}
