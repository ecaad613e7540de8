package playlist

import (
	"log/slog"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Merger performs the one-time first-sync union of a local snapshot into
// whatever the remote already holds.
type Merger struct {
	gen    IDGenerator
	logger *slog.Logger
	onDrop func(int)
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithDropObserver registers a callback receiving the number of playlists
// discarded by the bound during a merge.
func WithDropObserver(fn func(int)) MergerOption {
	return func(m *Merger) { m.onDrop = fn }
}

// NewMerger creates a Merger that namespaces appended playlists with ids
// from gen.
func NewMerger(gen IDGenerator, logger *slog.Logger, opts ...MergerOption) *Merger {
	m := &Merger{gen: gen, logger: logger}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Merge unions incoming (local) into existing (remote) for ownerID.
//
// Playlists are matched by exact, case-sensitive name after NFC
// normalization. A matched pair keeps the remote items in order and
// appends local items whose ids the remote lacks. Unmatched local
// playlists are appended under a fresh namespaced id while the result is
// below the bound and dropped with a warning after that.
//
// The active id prefers the remote one, then wherever the local active
// playlist ended up, then the first playlist, then "". Loop mode and
// shuffle always come from the remote, or the defaults when there is no
// remote yet. Neither input is modified.
func (m *Merger) Merge(existing, incoming *models.Snapshot, ownerID string) *models.Snapshot {
	result := &models.Snapshot{
		Playlists: []models.Playlist{},
		LoopMode:  models.LoopAll,
	}

	if existing != nil {
		result.Playlists = models.ClonePlaylists(existing.Playlists)
		if result.Playlists == nil {
			result.Playlists = []models.Playlist{}
		}

		if existing.LoopMode.Valid() {
			result.LoopMode = existing.LoopMode
		}

		result.IsShuffle = existing.IsShuffle
	}

	byName := make(map[string]int, len(result.Playlists))
	used := make(map[string]bool, len(result.Playlists))

	for i, p := range result.Playlists {
		key := norm.NFC.String(p.Name)
		if _, ok := byName[key]; !ok {
			byName[key] = i
		}

		used[p.ID] = true
	}

	// localToResult tracks where each local playlist ended up so the
	// local active id can still be honoured after re-identification.
	localToResult := make(map[string]string)
	dropped := 0

	if incoming != nil {
		for _, lp := range incoming.Playlists {
			key := norm.NFC.String(lp.Name)

			if idx, ok := byName[key]; ok {
				result.Playlists[idx].Items = unionItems(result.Playlists[idx].Items, lp.Items)
				if _, seen := localToResult[lp.ID]; !seen {
					localToResult[lp.ID] = result.Playlists[idx].ID
				}

				continue
			}

			if len(result.Playlists) >= models.MaxPlaylistCount {
				m.logger.Warn("playlist limit reached during merge, dropping local playlist",
					slog.String("playlist", lp.Name),
					slog.Int("limit", models.MaxPlaylistCount),
				)

				dropped++

				continue
			}

			np := lp.Clone()
			np.ID = newUniqueID(ownerID, m.gen, used)
			np.Items = unionItems(nil, np.Items)
			used[np.ID] = true

			result.Playlists = append(result.Playlists, np)
			byName[key] = len(result.Playlists) - 1

			if _, seen := localToResult[lp.ID]; !seen {
				localToResult[lp.ID] = np.ID
			}
		}
	}

	var remoteActive, localActive string
	if existing != nil {
		remoteActive = existing.ActivePlaylistID
	}

	if incoming != nil {
		localActive = incoming.ActivePlaylistID
		if mapped, ok := localToResult[localActive]; ok {
			localActive = mapped
		}
	}

	bounds := EnforceBounds(result.Playlists, "")
	if bounds.Dropped > 0 {
		m.logger.Warn("merged playlists exceeded limit, truncating",
			slog.Int("dropped", bounds.Dropped),
			slog.Int("limit", models.MaxPlaylistCount),
		)

		dropped += bounds.Dropped
	}

	result.Playlists = bounds.Playlists
	result.ActivePlaylistID = pickActive(result.Playlists, remoteActive, localActive)

	if dropped > 0 && m.onDrop != nil {
		m.onDrop(dropped)
	}

	return result
}

func pickActive(playlists []models.Playlist, candidates ...string) string {
	for _, id := range candidates {
		if id == "" {
			continue
		}

		if id == models.FavoritesPlaylistID || containsPlaylist(playlists, id) {
			return id
		}
	}

	if len(playlists) > 0 {
		return playlists[0].ID
	}

	return ""
}

// unionItems returns base followed by every item of extra whose id is
// not already present. Duplicate ids within extra are collapsed too.
func unionItems(base, extra []models.PlaylistItem) []models.PlaylistItem {
	out := make([]models.PlaylistItem, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))

	for _, it := range base {
		out = append(out, it)
		seen[it.ID] = true
	}

	for _, it := range extra {
		if seen[it.ID] {
			continue
		}

		out = append(out, it)
		seen[it.ID] = true
	}

	return out
}
