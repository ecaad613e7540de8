// Package repository stores playlist snapshots and pinned songs as rows
// keyed by user id. Postgres serves production; SQLite serves single-node
// and test deployments. Both keep explicit position columns so order
// survives the round trip.
package repository

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/metrics"
	"github.com/alexjbarnes/playlist-sync/internal/models"
)

// DefaultMaxBoundParams caps the bound parameters in a single insert.
const DefaultMaxBoundParams = 100

// MinBoundParams is the widest row; a smaller cap could not fit one row
// per statement.
const MinBoundParams = 5

// Repository is the server-side store.
type Repository interface {
	Migrate(ctx context.Context) error

	// LoadSnapshot returns nil when the user has never stored data.
	LoadSnapshot(ctx context.Context, userID string) (*models.Snapshot, error)

	// ReplaceSnapshot overwrites everything stored for the user in one
	// transaction.
	ReplaceSnapshot(ctx context.Context, userID string, s *models.Snapshot) error

	LoadPinned(ctx context.Context, userID string) (models.PinnedSongs, error)
	ReplacePinned(ctx context.Context, userID string, p models.PinnedSongs) error

	Close() error
}

var (
	playlistColumns = []string{"user_id", "id", "name", "position"}
	itemColumns     = []string{"user_id", "playlist_id", "item_id", "title", "position"}
	pinnedColumns   = []string{"user_id", "video_id", "position"}
)

type statement struct {
	query string
	args  []any
}

// buildInserts splits rows into multi-row INSERT statements so that no
// statement binds more than maxParams parameters. A row wider than
// maxParams still gets a statement of its own.
func buildInserts(table string, cols []string, rows [][]any, maxParams int, placeholder func(n int) string) []statement {
	if len(rows) == 0 {
		return nil
	}

	perStmt := maxParams / len(cols)
	if perStmt < 1 {
		perStmt = 1
	}

	prefix := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES "

	var out []statement

	for start := 0; start < len(rows); start += perStmt {
		end := min(start+perStmt, len(rows))

		var b strings.Builder

		b.WriteString(prefix)

		args := make([]any, 0, (end-start)*len(cols))

		for i, row := range rows[start:end] {
			if i > 0 {
				b.WriteString(", ")
			}

			b.WriteByte('(')

			for j, v := range row {
				if j > 0 {
					b.WriteString(", ")
				}

				args = append(args, v)
				b.WriteString(placeholder(len(args)))
			}

			b.WriteByte(')')
		}

		out = append(out, statement{query: b.String(), args: args})
	}

	return out
}

func dollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func questionPlaceholder(int) string { return "?" }

func snapshotRows(userID string, s *models.Snapshot) (playlists, items [][]any) {
	for pi, p := range s.Playlists {
		playlists = append(playlists, []any{userID, p.ID, p.Name, pi})

		for ii, it := range p.Items {
			items = append(items, []any{userID, p.ID, it.ID, it.Title, ii})
		}
	}

	return playlists, items
}

func pinnedRows(userID string, p models.PinnedSongs) [][]any {
	rows := make([][]any, 0, len(p.PinnedOrder))
	for i, id := range p.PinnedOrder {
		rows = append(rows, []any{userID, id, i})
	}

	return rows
}

// assembler rebuilds a snapshot from rows read in position order.
type assembler struct {
	snap  *models.Snapshot
	index map[string]int
}

func newAssembler(active string, loop models.LoopMode, shuffle bool) *assembler {
	if loop == "" {
		loop = models.LoopAll
	}

	return &assembler{
		snap: &models.Snapshot{
			Playlists:        []models.Playlist{},
			ActivePlaylistID: active,
			LoopMode:         loop,
			IsShuffle:        shuffle,
		},
		index: make(map[string]int),
	}
}

func (a *assembler) addPlaylist(id, name string) {
	a.index[id] = len(a.snap.Playlists)
	a.snap.Playlists = append(a.snap.Playlists, models.Playlist{ID: id, Name: name, Items: []models.PlaylistItem{}})
}

func (a *assembler) addItem(playlistID, itemID, title string) {
	i, ok := a.index[playlistID]
	if !ok {
		return
	}

	a.snap.Playlists[i].Items = append(a.snap.Playlists[i].Items, models.PlaylistItem{ID: itemID, Title: title})
}

func observe(driver, op string, start time.Time) {
	metrics.StoreQueryDuration.WithLabelValues(driver, op).Observe(time.Since(start).Seconds())
}

func normalizeMaxParams(n int) int {
	if n <= 0 {
		return DefaultMaxBoundParams
	}

	return max(n, MinBoundParams)
}
