package playlist

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/google/uuid"
)

// legacyIDPattern matches the bare numeric ids older installs created.
var legacyIDPattern = regexp.MustCompile(`^playlist-\d+$`)

// IDGenerator produces unique id segments for new playlist ids.
type IDGenerator interface {
	Segment() string
}

// UUIDGenerator generates random UUID segments. If the system random
// source fails it falls back to "<unix millis base36>-<random base36>".
type UUIDGenerator struct{}

// Segment returns a fresh unique segment.
func (UUIDGenerator) Segment() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallbackSegment(time.Now())
	}

	return id.String()
}

func fallbackSegment(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + strconv.FormatUint(rand.Uint64(), 36)
}

// GeneratorFunc adapts a function to IDGenerator.
type GeneratorFunc func() string

// Segment calls f.
func (f GeneratorFunc) Segment() string { return f() }

// PlaylistID builds a namespaced playlist id: "playlist-<owner>-<segment>"
// when the owner is known, "playlist-<segment>" otherwise.
func PlaylistID(ownerID, segment string) string {
	if ownerID == "" {
		return "playlist-" + segment
	}

	return ownerPrefix(ownerID) + segment
}

func ownerPrefix(ownerID string) string {
	return "playlist-" + ownerID + "-"
}

// IDResult is the output of ReconcileIDs.
type IDResult struct {
	Playlists        []models.Playlist
	ActivePlaylistID string
	Changed          bool
}

// ReconcileIDs rewrites playlist ids that are empty, use the legacy
// numeric form, repeat an id seen earlier in the sequence, or (when
// ownerID is set) lack the owner's namespace. Only the first occurrence
// of an original id enters the old-to-new mapping used to rewrite the
// active id, so a correct id is never remapped by a later duplicate.
//
// If the active id matches no resulting playlist and is not the
// Favorites sentinel it falls back to the first playlist, or "" when
// there are none. Changed reports whether any id or the active pointer
// moved. The input slice is not modified.
func ReconcileIDs(playlists []models.Playlist, activeID, ownerID string, gen IDGenerator) IDResult {
	out := models.ClonePlaylists(playlists)
	if out == nil {
		out = []models.Playlist{}
	}

	used := make(map[string]bool, len(out))
	for _, p := range out {
		used[p.ID] = true
	}

	taken := make(map[string]bool, len(out))
	firstSeen := make(map[string]bool, len(out))
	mapping := make(map[string]string)
	changed := false

	for i := range out {
		old := out[i].ID

		if needsNewID(old, ownerID, taken) {
			fresh := newUniqueID(ownerID, gen, used)
			used[fresh] = true
			out[i].ID = fresh
			changed = true

			if !firstSeen[old] {
				mapping[old] = fresh
			}
		}

		firstSeen[old] = true
		taken[out[i].ID] = true
	}

	active := activeID
	if mapped, ok := mapping[active]; ok {
		active = mapped
	}

	if active != models.FavoritesPlaylistID && !taken[active] {
		if len(out) > 0 {
			active = out[0].ID
		} else {
			active = ""
		}
	}

	if active != activeID {
		changed = true
	}

	return IDResult{Playlists: out, ActivePlaylistID: active, Changed: changed}
}

func needsNewID(id, ownerID string, taken map[string]bool) bool {
	switch {
	case id == "":
		return true
	case legacyIDPattern.MatchString(id):
		return true
	case taken[id]:
		return true
	case ownerID != "" && !strings.HasPrefix(id, ownerPrefix(ownerID)):
		return true
	default:
		return false
	}
}

func newUniqueID(ownerID string, gen IDGenerator, used map[string]bool) string {
	for {
		id := PlaylistID(ownerID, gen.Segment())
		if !used[id] && !legacyIDPattern.MatchString(id) {
			return id
		}
	}
}
