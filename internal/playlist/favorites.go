package playlist

import "github.com/alexjbarnes/playlist-sync/internal/models"

// DeriveFavorites builds the virtual Favorites playlist from the pinned
// order. Each id takes its title from the first playlist containing it.
// Ids no longer in any playlist stay with an empty title so a pin is
// never lost silently.
func DeriveFavorites(pinnedOrder []string, playlists []models.Playlist) models.Playlist {
	titles := make(map[string]string)
	for _, p := range playlists {
		for _, it := range p.Items {
			if _, ok := titles[it.ID]; !ok {
				titles[it.ID] = it.Title
			}
		}
	}

	fav := models.Playlist{
		ID:    models.FavoritesPlaylistID,
		Name:  models.FavoritesPlaylistName,
		Items: make([]models.PlaylistItem, 0, len(pinnedOrder)),
	}

	seen := make(map[string]bool, len(pinnedOrder))
	for _, id := range pinnedOrder {
		if seen[id] {
			continue
		}

		seen[id] = true
		fav.Items = append(fav.Items, models.PlaylistItem{ID: id, Title: titles[id]})
	}

	return fav
}

// VisiblePlaylists returns the list shown to the user: Favorites first,
// then the stored playlists in insertion order.
func VisiblePlaylists(pinned models.PinnedSongs, playlists []models.Playlist) []models.Playlist {
	out := make([]models.Playlist, 0, len(playlists)+1)
	out = append(out, DeriveFavorites(NormalizePinned(pinned).PinnedOrder, playlists))

	return append(out, models.ClonePlaylists(playlists)...)
}

// NormalizePinned makes the set and order consistent: the order loses
// duplicates and empty ids, ids present only in the set are appended, and
// the set is rebuilt from the resulting order.
func NormalizePinned(p models.PinnedSongs) models.PinnedSongs {
	order := make([]string, 0, len(p.PinnedOrder)+len(p.PinnedVideoIDs))
	seen := make(map[string]bool, cap(order))

	add := func(id string) {
		if id == "" || seen[id] {
			return
		}

		seen[id] = true
		order = append(order, id)
	}

	for _, id := range p.PinnedOrder {
		add(id)
	}

	for _, id := range p.PinnedVideoIDs {
		add(id)
	}

	return models.PinnedSongs{
		PinnedVideoIDs: append([]string{}, order...),
		PinnedOrder:    order,
	}
}

// MergePinned unions two pinned sets. Cloud order comes first, then ids
// only the local side has, in local order.
func MergePinned(cloud, local models.PinnedSongs) models.PinnedSongs {
	c := NormalizePinned(cloud)
	l := NormalizePinned(local)

	return NormalizePinned(models.PinnedSongs{
		PinnedOrder: append(c.PinnedOrder, l.PinnedOrder...),
	})
}

// IsPinned reports whether id is in the pinned set.
func IsPinned(p models.PinnedSongs, id string) bool {
	for _, v := range p.PinnedVideoIDs {
		if v == id {
			return true
		}
	}

	for _, v := range p.PinnedOrder {
		if v == id {
			return true
		}
	}

	return false
}
