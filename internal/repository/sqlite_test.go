package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T, maxParams int) *SQLite {
	t.Helper()

	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.db"), maxParams, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Migrate(context.Background()))

	return repo
}

func TestSQLite_NoData(t *testing.T) {
	repo := openTestSQLite(t, 0)

	got, err := repo.LoadSnapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	pinned, err := repo.LoadPinned(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, pinned.PinnedOrder)
}

func TestSQLite_RoundTripPreservesOrder(t *testing.T) {
	repo := openTestSQLite(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSnapshot(ctx, "u1", sampleSnapshot()))

	got, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestSQLite_ReplaceOverwrites(t *testing.T) {
	repo := openTestSQLite(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSnapshot(ctx, "u1", sampleSnapshot()))

	smaller := &models.Snapshot{
		Playlists:        []models.Playlist{{ID: "playlist-u1-z", Name: "Only", Items: []models.PlaylistItem{}}},
		ActivePlaylistID: "playlist-u1-z",
		LoopMode:         models.LoopAll,
	}
	require.NoError(t, repo.ReplaceSnapshot(ctx, "u1", smaller))

	got, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, smaller, got)
}

func TestSQLite_ChunkedInsertsAtBound(t *testing.T) {
	// At the minimum cap every item row gets its own insert.
	repo := openTestSQLite(t, MinBoundParams)
	ctx := context.Background()

	snap := &models.Snapshot{LoopMode: models.LoopAll}

	for i := range models.MaxPlaylistCount {
		p := models.Playlist{ID: fmt.Sprintf("playlist-u1-%02d", i), Name: fmt.Sprintf("P%d", i)}
		for j := range 25 {
			p.Items = append(p.Items, models.PlaylistItem{ID: fmt.Sprintf("v%d", j), Title: fmt.Sprintf("T%d", j)})
		}

		snap.Playlists = append(snap.Playlists, p)
	}

	snap.ActivePlaylistID = snap.Playlists[0].ID

	require.NoError(t, repo.ReplaceSnapshot(ctx, "u1", snap))

	got, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestSQLite_UsersAreIsolated(t *testing.T) {
	repo := openTestSQLite(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSnapshot(ctx, "u1", sampleSnapshot()))
	require.NoError(t, repo.ReplaceSnapshot(ctx, "u2", models.DefaultSnapshot()))

	got, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestSQLite_ReplaceFailureKeepsPreviousData(t *testing.T) {
	repo := openTestSQLite(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSnapshot(ctx, "u1", sampleSnapshot()))

	dup := sampleSnapshot()
	dup.Playlists[0].Items = append(dup.Playlists[0].Items, dup.Playlists[0].Items[0])

	require.Error(t, repo.ReplaceSnapshot(ctx, "u1", dup))

	got, err := repo.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestSQLite_Pinned(t *testing.T) {
	repo := openTestSQLite(t, 2)
	ctx := context.Background()

	require.NoError(t, repo.ReplacePinned(ctx, "u1", models.PinnedSongs{PinnedOrder: []string{"c", "a", "b"}}))
	require.NoError(t, repo.ReplacePinned(ctx, "u2", models.PinnedSongs{PinnedOrder: []string{"x"}}))

	got, err := repo.LoadPinned(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, got.PinnedOrder)
}
