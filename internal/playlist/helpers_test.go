package playlist

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/alexjbarnes/playlist-sync/internal/models"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordHandler keeps every log record so tests can assert on warnings.
type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r)

	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}

	return n
}

// seqGen returns "s1", "s2", ... so generated ids are predictable.
func seqGen() GeneratorFunc {
	n := 0
	return func() string {
		n++
		return "s" + strconv.Itoa(n)
	}
}

func item(id, title string) models.PlaylistItem {
	return models.PlaylistItem{ID: id, Title: title}
}

func pl(id, name string, items ...models.PlaylistItem) models.Playlist {
	if items == nil {
		items = []models.PlaylistItem{}
	}

	return models.Playlist{ID: id, Name: name, Items: items}
}

func snap(active string, playlists ...models.Playlist) *models.Snapshot {
	return &models.Snapshot{
		Playlists:        playlists,
		ActivePlaylistID: active,
		LoopMode:         models.LoopAll,
	}
}

// namedPlaylists builds n single-item playlists with ids prefix0..prefixN-1
// and names "<prefix> 0".."<prefix> N-1".
func namedPlaylists(prefix string, n int) []models.Playlist {
	out := make([]models.Playlist, n)
	for i := range out {
		id := prefix + strconv.Itoa(i)
		out[i] = pl(id, prefix+" "+strconv.Itoa(i), item("item-"+id, "Item "+id))
	}

	return out
}
