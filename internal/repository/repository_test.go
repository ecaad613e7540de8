package repository

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Playlists: []models.Playlist{
			{ID: "playlist-u1-b", Name: "Second first", Items: []models.PlaylistItem{
				{ID: "v3", Title: "Three"},
				{ID: "v1", Title: "One"},
			}},
			{ID: "playlist-u1-a", Name: "Empty", Items: []models.PlaylistItem{}},
			{ID: "playlist-u1-c", Name: "Single", Items: []models.PlaylistItem{{ID: "v2", Title: ""}}},
		},
		ActivePlaylistID: "playlist-u1-c",
		LoopMode:         models.LoopOne,
		IsShuffle:        true,
	}
}

// --- buildInserts ---

func TestBuildInserts_ChunksByParamBudget(t *testing.T) {
	rows := make([][]any, 7)
	for i := range rows {
		rows[i] = []any{"u", i, "x"}
	}

	stmts := buildInserts("t", []string{"a", "b", "c"}, rows, 7, dollarPlaceholder)

	// 7 params / 3 columns -> 2 rows per statement.
	require.Len(t, stmts, 4)

	total := 0

	for _, st := range stmts {
		assert.LessOrEqual(t, len(st.args), 7)
		total += len(st.args) / 3
	}

	assert.Equal(t, 7, total)
	assert.Equal(t, "INSERT INTO t (a, b, c) VALUES ($1, $2, $3), ($4, $5, $6)", stmts[0].query)
	assert.Equal(t, "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)", stmts[3].query)
}

func TestBuildInserts_RowWiderThanBudget(t *testing.T) {
	rows := [][]any{{1, 2, 3}, {4, 5, 6}}

	stmts := buildInserts("t", []string{"a", "b", "c"}, rows, 2, questionPlaceholder)

	require.Len(t, stmts, 2)
	assert.Equal(t, "INSERT INTO t (a, b, c) VALUES (?, ?, ?)", stmts[0].query)
}

func TestBuildInserts_NoRows(t *testing.T) {
	assert.Empty(t, buildInserts("t", []string{"a"}, nil, 10, questionPlaceholder))
}

func TestSnapshotRows_Positions(t *testing.T) {
	playlists, items := snapshotRows("u1", sampleSnapshot())

	require.Len(t, playlists, 3)
	assert.Equal(t, []any{"u1", "playlist-u1-a", "Empty", 1}, playlists[1])

	require.Len(t, items, 3)
	assert.Equal(t, []any{"u1", "playlist-u1-b", "v1", "One", 1}, items[1])
	assert.Equal(t, []any{"u1", "playlist-u1-c", "v2", "", 0}, items[2])
}

func TestAssembler_DropsOrphanItems(t *testing.T) {
	a := newAssembler("p", "", false)
	a.addPlaylist("p", "P")
	a.addItem("p", "v1", "One")
	a.addItem("ghost", "v2", "Two")

	assert.Equal(t, models.LoopAll, a.snap.LoopMode)
	require.Len(t, a.snap.Playlists, 1)
	assert.Len(t, a.snap.Playlists[0].Items, 1)
}

func TestNormalizeMaxParams(t *testing.T) {
	assert.Equal(t, DefaultMaxBoundParams, normalizeMaxParams(0))
	assert.Equal(t, 12, normalizeMaxParams(12))
	assert.Equal(t, MinBoundParams, normalizeMaxParams(2))
	assert.Equal(t, len(itemColumns), MinBoundParams)
	assert.True(t, strings.HasPrefix(dollarPlaceholder(3), "$"))
}
