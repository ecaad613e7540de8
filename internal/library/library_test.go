package library

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type memStore struct {
	mu      sync.Mutex
	snap    *models.Snapshot
	pinned  models.PinnedSongs
	saves   int
	failErr error
}

func (m *memStore) LoadLibrary() (*models.Snapshot, models.PinnedSongs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snap.Clone(), m.pinned.Clone(), m.failErr
}

func (m *memStore) SaveSnapshot(s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}

	m.snap = s.Clone()
	m.saves++

	return nil
}

func (m *memStore) SavePinned(p models.PinnedSongs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}

	m.pinned = p.Clone()

	return nil
}

func seqGen() playlist.GeneratorFunc {
	n := 0
	return func() string {
		n++
		return "g" + strconv.Itoa(n)
	}
}

func newTestLibrary(t *testing.T, seed *models.Snapshot) (*Library, *memStore) {
	t.Helper()

	store := &memStore{snap: seed}
	lib := New(store, seqGen(), testLogger)
	require.NoError(t, lib.Hydrate(context.Background()))

	return lib, store
}

func twoPlaylists() *models.Snapshot {
	return &models.Snapshot{
		Playlists: []models.Playlist{
			{ID: "p1", Name: "One", Items: []models.PlaylistItem{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"}}},
			{ID: "p2", Name: "Two", Items: []models.PlaylistItem{}},
		},
		ActivePlaylistID: "p1",
		LoopMode:         models.LoopAll,
	}
}

// --- Hydration ---

func TestHydrate_SeedsDefaults(t *testing.T) {
	lib, store := newTestLibrary(t, nil)

	assert.Equal(t, models.DefaultSnapshot(), lib.Snapshot())
	assert.Equal(t, models.DefaultSnapshot(), store.snap)

	select {
	case <-lib.Hydrated():
	default:
		t.Fatal("hydrated channel not closed")
	}
}

func TestHydrate_LoadsPersisted(t *testing.T) {
	lib, store := newTestLibrary(t, twoPlaylists())

	assert.Equal(t, twoPlaylists(), lib.Snapshot())
	assert.Equal(t, 0, store.saves)
}

func TestHydrate_ErrorStillSignals(t *testing.T) {
	store := &memStore{failErr: errors.New("disk gone")}
	lib := New(store, seqGen(), testLogger)

	err := lib.Hydrate(context.Background())
	require.Error(t, err)

	<-lib.Hydrated()
	assert.Equal(t, models.DefaultSnapshot(), lib.Snapshot())

	// Repeated calls return the same result.
	assert.Equal(t, err, lib.Hydrate(context.Background()))
}

func TestHydrate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lib := New(&memStore{}, seqGen(), testLogger)
	assert.ErrorIs(t, lib.Hydrate(ctx), context.Canceled)
}

// --- Playlist operations ---

func TestCreatePlaylist(t *testing.T) {
	lib, store := newTestLibrary(t, twoPlaylists())
	lib.SetOwner("u1")

	p, err := lib.CreatePlaylist("  Road trip ")
	require.NoError(t, err)

	assert.Equal(t, "playlist-u1-g1", p.ID)
	assert.Equal(t, "Road trip", p.Name)

	snap := lib.Snapshot()
	require.Len(t, snap.Playlists, 3)
	assert.Equal(t, p.ID, snap.ActivePlaylistID)
	assert.Equal(t, snap, store.snap)
}

func TestCreatePlaylist_Limit(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	for i := 2; i < models.MaxPlaylistCount; i++ {
		_, err := lib.CreatePlaylist("P" + strconv.Itoa(i))
		require.NoError(t, err)
	}

	assert.False(t, lib.CanCreate())

	_, err := lib.CreatePlaylist("one too many")
	assert.ErrorIs(t, err, apperrors.ErrPlaylistLimit)
	assert.Len(t, lib.Snapshot().Playlists, models.MaxPlaylistCount)
}

func TestCreatePlaylist_EmptyName(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	_, err := lib.CreatePlaylist("   ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidShape)
}

func TestDuplicatePlaylist(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	dup, err := lib.DuplicatePlaylist("p1")
	require.NoError(t, err)

	snap := lib.Snapshot()
	require.Len(t, snap.Playlists, 3)
	assert.Equal(t, dup.ID, snap.Playlists[1].ID)
	assert.Equal(t, "One (copy)", snap.Playlists[1].Name)
	assert.Equal(t, snap.Playlists[0].Items, snap.Playlists[1].Items)
	assert.Equal(t, "p2", snap.Playlists[2].ID)
}

func TestDeletePlaylist_ActiveFallsBack(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	require.NoError(t, lib.DeletePlaylist("p1"))

	snap := lib.Snapshot()
	require.Len(t, snap.Playlists, 1)
	assert.Equal(t, "p2", snap.ActivePlaylistID)

	require.NoError(t, lib.DeletePlaylist("p2"))
	assert.Equal(t, "", lib.Snapshot().ActivePlaylistID)
}

func TestRenamePlaylist(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	require.NoError(t, lib.RenamePlaylist("p2", "Focus"))
	assert.Equal(t, "Focus", lib.Snapshot().Playlists[1].Name)

	assert.ErrorIs(t, lib.RenamePlaylist("nope", "X"), apperrors.ErrPlaylistNotFound)
}

func TestFavoritesGuard(t *testing.T) {
	lib, store := newTestLibrary(t, twoPlaylists())
	before := store.saves
	fav := models.FavoritesPlaylistID

	ops := map[string]func() error{
		"rename":    func() error { return lib.RenamePlaylist(fav, "X") },
		"delete":    func() error { return lib.DeletePlaylist(fav) },
		"duplicate": func() error { _, err := lib.DuplicatePlaylist(fav); return err },
		"add":       func() error { return lib.AddItem(fav, models.PlaylistItem{ID: "z"}) },
		"remove":    func() error { return lib.RemoveItem(fav, "a") },
		"move":      func() error { return lib.MoveItem(fav, 0, 1) },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), apperrors.ErrFavoritesReadOnly)
		})
	}

	assert.Equal(t, before, store.saves)
}

// --- Item operations ---

func TestAddItem(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	require.NoError(t, lib.AddItem("p2", models.PlaylistItem{ID: "x", Title: "X"}))
	assert.Equal(t, []models.PlaylistItem{{ID: "x", Title: "X"}}, lib.Snapshot().Playlists[1].Items)

	assert.ErrorIs(t, lib.AddItem("p2", models.PlaylistItem{ID: "x"}), apperrors.ErrDuplicateItem)
	assert.ErrorIs(t, lib.AddItem("p2", models.PlaylistItem{}), apperrors.ErrInvalidShape)
}

func TestRemoveItem(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	require.NoError(t, lib.RemoveItem("p1", "b"))
	assert.Equal(t, []models.PlaylistItem{{ID: "a", Title: "A"}, {ID: "c", Title: "C"}}, lib.Snapshot().Playlists[0].Items)

	assert.ErrorIs(t, lib.RemoveItem("p1", "b"), apperrors.ErrItemNotFound)
}

func TestMoveItem(t *testing.T) {
	tests := []struct {
		from, to int
		want     string
	}{
		{0, 2, "bca"},
		{2, 0, "cab"},
		{1, 1, "abc"},
	}

	for _, tt := range tests {
		lib, _ := newTestLibrary(t, twoPlaylists())
		require.NoError(t, lib.MoveItem("p1", tt.from, tt.to))

		var got strings.Builder
		for _, it := range lib.Snapshot().Playlists[0].Items {
			got.WriteString(it.ID)
		}

		assert.Equal(t, tt.want, got.String(), "move %d -> %d", tt.from, tt.to)
	}

	lib, _ := newTestLibrary(t, twoPlaylists())
	assert.ErrorIs(t, lib.MoveItem("p1", 0, 3), apperrors.ErrItemNotFound)
	assert.ErrorIs(t, lib.MoveItem("p1", -1, 0), apperrors.ErrItemNotFound)
}

// --- Settings ---

func TestSettings(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	require.NoError(t, lib.SetActive("p2"))
	require.NoError(t, lib.SetActive(models.FavoritesPlaylistID))
	assert.ErrorIs(t, lib.SetActive("missing"), apperrors.ErrPlaylistNotFound)
	assert.Equal(t, models.FavoritesPlaylistID, lib.Snapshot().ActivePlaylistID)

	require.NoError(t, lib.SetLoopMode(models.LoopOne))
	assert.ErrorIs(t, lib.SetLoopMode("sometimes"), apperrors.ErrInvalidShape)
	assert.Equal(t, models.LoopOne, lib.Snapshot().LoopMode)

	on, err := lib.ToggleShuffle()
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, lib.Snapshot().IsShuffle)
}

// --- Pinning ---

func TestPinUnpin(t *testing.T) {
	lib, store := newTestLibrary(t, twoPlaylists())

	require.NoError(t, lib.Pin("c"))
	require.NoError(t, lib.Pin("a"))
	require.NoError(t, lib.Pin("c"))

	assert.Equal(t, []string{"c", "a"}, lib.Pinned().PinnedOrder)
	assert.Equal(t, []string{"c", "a"}, store.pinned.PinnedOrder)

	visible := lib.VisiblePlaylists()
	require.Len(t, visible, 3)
	assert.Equal(t, models.FavoritesPlaylistID, visible[0].ID)
	assert.Equal(t, []models.PlaylistItem{{ID: "c", Title: "C"}, {ID: "a", Title: "A"}}, visible[0].Items)

	require.NoError(t, lib.Unpin("c"))
	assert.Equal(t, []string{"a"}, lib.Pinned().PinnedOrder)
	assert.ErrorIs(t, lib.Unpin("c"), apperrors.ErrItemNotFound)
}

// --- Replace / observers ---

func TestReplace_NotifiesAndEnforcesBounds(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	var changes []Change
	lib.Subscribe(func(c Change) { changes = append(changes, c) })

	big := &models.Snapshot{LoopMode: models.LoopAll, ActivePlaylistID: "gone"}
	for i := 0; i < 12; i++ {
		big.Playlists = append(big.Playlists, models.Playlist{ID: "x" + strconv.Itoa(i), Name: "X", Items: []models.PlaylistItem{}})
	}

	require.NoError(t, lib.Replace(big, SourceSync))

	snap := lib.Snapshot()
	assert.Len(t, snap.Playlists, models.MaxPlaylistCount)
	assert.Equal(t, "x0", snap.ActivePlaylistID)
	assert.Equal(t, []Change{{Kind: ChangePlaylists, Source: SourceSync}}, changes)

	require.NoError(t, lib.ReplacePinned(models.PinnedSongs{PinnedOrder: []string{"q"}}, SourceSync))
	assert.Equal(t, Change{Kind: ChangePinned, Source: SourceSync}, changes[1])
}

func TestReplace_RejectsInvalid(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	assert.ErrorIs(t, lib.Replace(nil, SourceSync), apperrors.ErrInvalidShape)
	assert.Equal(t, twoPlaylists(), lib.Snapshot())
}

func TestMutation_StoreFailureLeavesStateUntouched(t *testing.T) {
	lib, store := newTestLibrary(t, twoPlaylists())

	notified := false
	lib.Subscribe(func(Change) { notified = true })

	store.failErr = errors.New("disk full")

	err := lib.RenamePlaylist("p1", "Changed")
	require.Error(t, err)
	assert.Equal(t, "One", lib.Snapshot().Playlists[0].Name)
	assert.False(t, notified)
}

func TestSnapshot_IsACopy(t *testing.T) {
	lib, _ := newTestLibrary(t, twoPlaylists())

	s := lib.Snapshot()
	s.Playlists[0].Name = "mutated"

	assert.Equal(t, "One", lib.Snapshot().Playlists[0].Name)
}
