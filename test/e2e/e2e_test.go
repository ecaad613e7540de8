package e2e_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/auth"
	"github.com/alexjbarnes/playlist-sync/internal/broker"
	"github.com/alexjbarnes/playlist-sync/internal/mcpserver"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/remote"
	"github.com/alexjbarnes/playlist-sync/internal/syncer"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- first sync ---

func TestFirstDevice_PushesLocalWithOwnedIDs(t *testing.T) {
	h := newHarness(t)
	a := h.newDevice(t, testUser)

	a.login(t)

	require.Eventually(t, func() bool { return h.remoteSnapshot(t, testUser) != nil }, waitTimeout, 20*time.Millisecond)

	stored := h.remoteSnapshot(t, testUser)
	require.Len(t, stored.Playlists, models.DefaultPlaylistCount)

	for _, p := range stored.Playlists {
		assert.True(t, strings.HasPrefix(p.ID, "playlist-"+testUser+"-"), "id %q not owned", p.ID)
	}

	assert.Equal(t, stored.Playlists, a.Lib.Snapshot().Playlists)
	assert.True(t, a.Syncer.Status().Loaded)
}

// --- propagation ---

func TestEdit_PropagatesToFreshDevice(t *testing.T) {
	h := newHarness(t)
	a := h.newDevice(t, testUser)
	a.login(t)

	require.NoError(t, a.Lib.AddItem(a.firstPlaylistID(t), models.PlaylistItem{ID: "e2e-1", Title: "From A"}))

	require.Eventually(t, func() bool { return hasItem(h.remoteSnapshot(t, testUser), "e2e-1") }, waitTimeout, 20*time.Millisecond)

	b := h.newDevice(t, testUser)
	b.login(t)

	assert.Equal(t, a.Lib.Snapshot().Playlists, b.Lib.Snapshot().Playlists)
	assert.False(t, b.Syncer.Status().ConflictPending)
}

func TestUsers_AreIsolated(t *testing.T) {
	h := newHarness(t)
	a := h.newDevice(t, testUser)
	a.login(t)

	require.NoError(t, a.Lib.AddItem(a.firstPlaylistID(t), models.PlaylistItem{ID: "private", Title: "Alice only"}))
	require.Eventually(t, func() bool { return hasItem(h.remoteSnapshot(t, testUser), "private") }, waitTimeout, 20*time.Millisecond)

	bob := h.newDevice(t, "bob")
	bob.login(t)

	assert.False(t, hasItem(bob.Lib.Snapshot(), "private"))
	assert.False(t, hasItem(h.remoteSnapshot(t, "bob"), "private"))
}

// --- conflicts ---

func TestDivergentDevices_ConflictThenKeepRemote(t *testing.T) {
	h := newHarness(t)
	a := h.newDevice(t, testUser)
	a.login(t)

	require.NoError(t, a.Lib.AddItem(a.firstPlaylistID(t), models.PlaylistItem{ID: "a-1", Title: "From A"}))
	require.Eventually(t, func() bool { return hasItem(h.remoteSnapshot(t, testUser), "a-1") }, waitTimeout, 20*time.Millisecond)

	// B edits while signed out, so its data is meaningful and different.
	b := h.newDevice(t, testUser)
	require.NoError(t, b.Lib.AddItem(b.firstPlaylistID(t), models.PlaylistItem{ID: "b-1", Title: "From B"}))

	b.login(t)

	var c syncer.Conflict
	select {
	case c = <-b.Conflicts:
	case <-time.After(waitTimeout):
		t.Fatal("no conflict raised")
	}

	assert.True(t, hasItem(c.Local, "b-1"))
	assert.True(t, hasItem(c.Remote, "a-1"))
	assert.True(t, b.Syncer.Status().ConflictPending)

	// Nothing from B reaches the server while the conflict is open.
	time.Sleep(3 * testDebounce)
	assert.False(t, hasItem(h.remoteSnapshot(t, testUser), "b-1"))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, b.Syncer.ResolveConflict(ctx, syncer.ChooseRemote))

	assert.True(t, hasItem(b.Lib.Snapshot(), "a-1"))
	assert.False(t, hasItem(b.Lib.Snapshot(), "b-1"))
	assert.False(t, b.Syncer.Status().ConflictPending)
}

func TestMalformedRemote_ConflictInsteadOfPush(t *testing.T) {
	var writes atomic.Int32

	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writes.Add(1)
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/playlists":
			_, _ = io.WriteString(w, `{"playlists":[{"id":"p1","name":7,"items":[]}]}`)
		default:
			_, _ = io.WriteString(w, `{"pinnedVideoIds":[],"pinnedOrder":[]}`)
		}
	}))
	t.Cleanup(stub.Close)

	d := startDevice(t, remote.NewClient(stub.URL, "token", stub.Client()), testUser, slog.New(slog.DiscardHandler))
	require.NoError(t, d.Lib.AddItem(d.firstPlaylistID(t), models.PlaylistItem{ID: "mine", Title: "Mine"}))

	d.login(t)

	var c syncer.Conflict
	select {
	case c = <-d.Conflicts:
	case <-time.After(waitTimeout):
		t.Fatal("no conflict raised")
	}

	assert.Equal(t, "invalid_remote", c.Reason)
	assert.True(t, hasItem(c.Local, "mine"))

	st := d.Syncer.Status()
	assert.True(t, st.ConflictPending)
	assert.NotEmpty(t, st.LastError)

	time.Sleep(3 * testDebounce)
	assert.Zero(t, writes.Load(), "nothing is written over malformed remote data")
}

func TestDivergentDevices_KeepLocalOverwritesServer(t *testing.T) {
	h := newHarness(t)
	a := h.newDevice(t, testUser)
	a.login(t)

	require.NoError(t, a.Lib.AddItem(a.firstPlaylistID(t), models.PlaylistItem{ID: "a-1", Title: "From A"}))
	require.Eventually(t, func() bool { return hasItem(h.remoteSnapshot(t, testUser), "a-1") }, waitTimeout, 20*time.Millisecond)

	b := h.newDevice(t, testUser)
	require.NoError(t, b.Lib.AddItem(b.firstPlaylistID(t), models.PlaylistItem{ID: "b-1", Title: "From B"}))
	b.login(t)

	select {
	case <-b.Conflicts:
	case <-time.After(waitTimeout):
		t.Fatal("no conflict raised")
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, b.Syncer.ResolveConflict(ctx, syncer.ChooseLocal))

	require.Eventually(t, func() bool { return hasItem(h.remoteSnapshot(t, testUser), "b-1") }, waitTimeout, 20*time.Millisecond)
	assert.False(t, hasItem(h.remoteSnapshot(t, testUser), "a-1"))
}

// --- pinned songs ---

func TestPinned_SyncAcrossDevices(t *testing.T) {
	h := newHarness(t)
	a := h.newDevice(t, testUser)
	a.login(t)

	require.NoError(t, a.Lib.Pin(models.SampleItem.ID))

	require.Eventually(t, func() bool {
		p, err := h.Repo.LoadPinned(context.Background(), testUser)
		return err == nil && len(p.PinnedOrder) == 1
	}, waitTimeout, 20*time.Millisecond)

	b := h.newDevice(t, testUser)
	b.login(t)

	assert.Equal(t, []string{models.SampleItem.ID}, b.Lib.Pinned().PinnedOrder)

	visible := b.Lib.VisiblePlaylists()
	require.NotEmpty(t, visible)
	assert.Equal(t, models.FavoritesPlaylistID, visible[0].ID)
	assert.Equal(t, models.SampleItem, visible[0].Items[0])
}

// --- change feed ---

func TestEvents_AnnouncePushes(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.URL, "http") + "/api/events"

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + h.token(t, testUser)}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	a := h.newDevice(t, testUser)
	a.login(t)

	var ev broker.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))

	// Playlists are pushed before pinned songs.
	assert.Equal(t, broker.EventPlaylists, ev.Type)
	assert.Equal(t, a.Syncer.Status().PlaylistsHash, ev.ContentHash)

	cached, ok := h.Broker.CachedHash(ctx, testUser, broker.EventPlaylists)
	require.True(t, ok)
	assert.Equal(t, ev.ContentHash, cached)
}

// --- MCP over HTTP ---

func TestMCP_AddItemIsPushed(t *testing.T) {
	h := newHarness(t)
	a := h.newDevice(t, testUser)
	a.login(t)

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: "playlist-sync-e2e", Version: "test"}, nil)
	mcpserver.RegisterTools(mcpServer, a.Lib, a.Syncer)

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", auth.StaticToken("local-token", h.logger)(handler))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	transport := &mcp.StreamableClientTransport{
		Endpoint: ts.URL + "/mcp",
		HTTPClient: &http.Client{
			Transport: &bearerTransport{token: "local-token", base: ts.Client().Transport},
		},
		DisableStandaloneSSE: true,
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "e2e-test-client", Version: "test"}, nil)

	session, err := client.Connect(t.Context(), transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name: "playlist_add_item",
		Arguments: map[string]any{
			"playlist_id": a.firstPlaylistID(t),
			"item_id":     "via-mcp",
			"title":       "Added by assistant",
		},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Eventually(t, func() bool { return hasItem(h.remoteSnapshot(t, testUser), "via-mcp") }, waitTimeout, 20*time.Millisecond)

	result, err = session.CallTool(t.Context(), &mcp.CallToolParams{Name: "sync_status"})
	require.NoError(t, err)

	var status mcpserver.StatusResult
	require.NoError(t, json.Unmarshal([]byte(extractTextContent(t, result)), &status))
	assert.True(t, status.Authenticated)
	assert.Equal(t, testUser, status.Owner)
}

func TestMCP_RejectsWrongToken(t *testing.T) {
	h := newHarness(t)

	handler := auth.StaticToken("local-token", h.logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer guess")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func extractTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content, "tool result has no content")

	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}

	t.Fatal("no TextContent found in tool result")

	return ""
}
