// Package playlist implements the pure playlist synchronization core:
// shape validation, normalization, comparison, diffing, the conflict
// decision engine, identifier reconciliation, bounds enforcement, the
// first-sync merge, content hashing, and the derived Favorites playlist.
//
// Nothing in this package performs I/O. Callers own persistence and
// transport and act on the values returned here.
package playlist

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/tidwall/gjson"
)

func shapeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidShape, fmt.Sprintf(format, args...))
}

// ValidateShape checks a raw JSON payload against the snapshot shape
// before any of it is decoded into the typed model. Unknown fields are
// ignored. Missing titles are allowed; missing loopMode and isShuffle
// fall back to defaults in ParseSnapshot.
func ValidateShape(raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return shapeErr("payload is not valid JSON")
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return shapeErr("payload is not an object")
	}

	playlists := root.Get("playlists")
	if !playlists.IsArray() {
		return shapeErr("playlists must be an array")
	}

	for i, p := range playlists.Array() {
		if !p.IsObject() {
			return shapeErr("playlists[%d] is not an object", i)
		}

		if p.Get("id").Type != gjson.String {
			return shapeErr("playlists[%d].id must be a string", i)
		}

		if p.Get("name").Type != gjson.String {
			return shapeErr("playlists[%d].name must be a string", i)
		}

		items := p.Get("items")
		if !items.IsArray() {
			return shapeErr("playlists[%d].items must be an array", i)
		}

		for j, it := range items.Array() {
			if !it.IsObject() {
				return shapeErr("playlists[%d].items[%d] is not an object", i, j)
			}

			if it.Get("id").Type != gjson.String {
				return shapeErr("playlists[%d].items[%d].id must be a string", i, j)
			}

			if title := it.Get("title"); title.Exists() && title.Type != gjson.String && title.Type != gjson.Null {
				return shapeErr("playlists[%d].items[%d].title must be a string", i, j)
			}
		}
	}

	if active := root.Get("activePlaylistId"); active.Exists() && active.Type != gjson.String && active.Type != gjson.Null {
		return shapeErr("activePlaylistId must be a string")
	}

	if loop := root.Get("loopMode"); loop.Exists() && loop.Type != gjson.Null {
		if loop.Type != gjson.String || !models.LoopMode(loop.Str).Valid() {
			return shapeErr("loopMode must be \"all\" or \"one\"")
		}
	}

	if shuffle := root.Get("isShuffle"); shuffle.Exists() && shuffle.Type != gjson.Null {
		if shuffle.Type != gjson.True && shuffle.Type != gjson.False {
			return shapeErr("isShuffle must be a boolean")
		}
	}

	return nil
}

// ParseSnapshot validates raw JSON and decodes it into a Snapshot. Absent
// titles decode to "", absent loopMode to "all".
func ParseSnapshot(raw []byte) (*models.Snapshot, error) {
	if err := ValidateShape(raw); err != nil {
		return nil, err
	}

	var s models.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, shapeErr("decoding: %v", err)
	}

	if s.LoopMode == "" {
		s.LoopMode = models.LoopAll
	}

	for i := range s.Playlists {
		if s.Playlists[i].Items == nil {
			s.Playlists[i].Items = []models.PlaylistItem{}
		}
	}

	return &s, nil
}

// ParsePinned validates and decodes a pinned songs payload. Both fields
// must be arrays of strings when present.
func ParsePinned(raw []byte) (*models.PinnedSongs, error) {
	if !gjson.ValidBytes(raw) {
		return nil, shapeErr("pinned payload is not valid JSON")
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, shapeErr("pinned payload is not an object")
	}

	for _, field := range []string{"pinnedVideoIds", "pinnedOrder"} {
		v := root.Get(field)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}

		if !v.IsArray() {
			return nil, shapeErr("%s must be an array", field)
		}

		for i, id := range v.Array() {
			if id.Type != gjson.String {
				return nil, shapeErr("%s[%d] must be a string", field, i)
			}
		}
	}

	var p models.PinnedSongs
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, shapeErr("decoding pinned: %v", err)
	}

	n := NormalizePinned(p)

	return &n, nil
}

// CheckShape validates an already-typed snapshot. The typed model rules
// out most wire-level problems, so this rejects nil snapshots, unknown
// loop modes and empty playlist or item ids. An empty loop mode reads as
// "all".
func CheckShape(s *models.Snapshot) error {
	if s == nil {
		return shapeErr("snapshot is nil")
	}

	if s.LoopMode != "" && !s.LoopMode.Valid() {
		return shapeErr("unknown loop mode %q", s.LoopMode)
	}

	for i, p := range s.Playlists {
		if p.ID == "" {
			return shapeErr("playlists[%d] has an empty id", i)
		}

		for j, it := range p.Items {
			if it.ID == "" {
				return shapeErr("playlists[%d].items[%d] has an empty id", i, j)
			}
		}
	}

	return nil
}
