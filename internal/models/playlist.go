// Package models defines the playlist data model shared across internal packages.
package models

import "strconv"

const (
	// MaxPlaylistCount is the maximum number of stored playlists a user may
	// hold. The virtual Favorites playlist is not counted.
	MaxPlaylistCount = 10

	// FavoritesPlaylistID is the sentinel id of the virtual Favorites
	// playlist. It is never persisted as a playlist row.
	FavoritesPlaylistID = "favorites"

	// FavoritesPlaylistName is the display name of the Favorites playlist.
	FavoritesPlaylistName = "Favorites"

	// DefaultPlaylistCount is how many placeholder playlists a fresh
	// install is seeded with.
	DefaultPlaylistCount = 3
)

// LoopMode controls what happens when playback reaches the end of an item.
type LoopMode string

const (
	LoopAll LoopMode = "all"
	LoopOne LoopMode = "one"
)

// Valid reports whether m is a known loop mode.
func (m LoopMode) Valid() bool {
	return m == LoopAll || m == LoopOne
}

// PlaylistItem references one external media item. Items are replaced,
// never mutated in place.
type PlaylistItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Playlist is an ordered list of items. Item ids are unique within a
// playlist.
type Playlist struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Items []PlaylistItem `json:"items"`
}

// Snapshot is the complete unit of playlist state that is compared,
// diffed, and synchronized.
type Snapshot struct {
	Playlists        []Playlist `json:"playlists"`
	ActivePlaylistID string     `json:"activePlaylistId"`
	LoopMode         LoopMode   `json:"loopMode"`
	IsShuffle        bool       `json:"isShuffle"`
}

// PinnedSongs holds the items the user pinned to Favorites. PinnedVideoIDs
// is a set serialized as a list; PinnedOrder is the display order.
type PinnedSongs struct {
	PinnedVideoIDs []string `json:"pinnedVideoIds"`
	PinnedOrder    []string `json:"pinnedOrder"`
}

// SampleItem is the item a fresh install seeds into the first playlist.
var SampleItem = PlaylistItem{ID: "dQw4w9WgXcQ", Title: "Sample video"}

// Clone returns a deep copy of the playlist.
func (p Playlist) Clone() Playlist {
	out := Playlist{ID: p.ID, Name: p.Name}
	if p.Items != nil {
		out.Items = make([]PlaylistItem, len(p.Items))
		copy(out.Items, p.Items)
	}

	return out
}

// ClonePlaylists deep-copies a playlist slice.
func ClonePlaylists(in []Playlist) []Playlist {
	if in == nil {
		return nil
	}

	out := make([]Playlist, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}

	return out
}

// Clone returns a deep copy of the snapshot, or nil for a nil receiver.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	return &Snapshot{
		Playlists:        ClonePlaylists(s.Playlists),
		ActivePlaylistID: s.ActivePlaylistID,
		LoopMode:         s.LoopMode,
		IsShuffle:        s.IsShuffle,
	}
}

// FindPlaylist returns the index of the playlist with the given id, or -1.
func (s *Snapshot) FindPlaylist(id string) int {
	for i := range s.Playlists {
		if s.Playlists[i].ID == id {
			return i
		}
	}

	return -1
}

// TotalItems counts items across all playlists.
func (s *Snapshot) TotalItems() int {
	n := 0
	for _, p := range s.Playlists {
		n += len(p.Items)
	}

	return n
}

// Clone returns a deep copy of the pinned songs.
func (p PinnedSongs) Clone() PinnedSongs {
	out := PinnedSongs{}
	if p.PinnedVideoIDs != nil {
		out.PinnedVideoIDs = append([]string(nil), p.PinnedVideoIDs...)
	}

	if p.PinnedOrder != nil {
		out.PinnedOrder = append([]string(nil), p.PinnedOrder...)
	}

	return out
}

// DefaultPlaylistName returns the placeholder name for the playlist at the
// given zero-based position: "Playlist 1", "Playlist 2", ...
func DefaultPlaylistName(index int) string {
	return "Playlist " + strconv.Itoa(index+1)
}

// DefaultSnapshot returns the state a fresh install starts with: three
// placeholder playlists, the first holding one sample item.
func DefaultSnapshot() *Snapshot {
	playlists := make([]Playlist, DefaultPlaylistCount)
	for i := range playlists {
		playlists[i] = Playlist{
			ID:    "playlist-" + strconv.Itoa(i+1),
			Name:  DefaultPlaylistName(i),
			Items: []PlaylistItem{},
		}
	}

	playlists[0].Items = []PlaylistItem{SampleItem}

	return &Snapshot{
		Playlists:        playlists,
		ActivePlaylistID: playlists[0].ID,
		LoopMode:         LoopAll,
		IsShuffle:        false,
	}
}
