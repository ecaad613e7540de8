package e2e_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/auth"
	"github.com/alexjbarnes/playlist-sync/internal/broker"
	"github.com/alexjbarnes/playlist-sync/internal/library"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/remote"
	"github.com/alexjbarnes/playlist-sync/internal/repository"
	"github.com/alexjbarnes/playlist-sync/internal/server"
	"github.com/alexjbarnes/playlist-sync/internal/state"
	"github.com/alexjbarnes/playlist-sync/internal/syncer"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "alice"
	testDebounce = 100 * time.Millisecond
	waitTimeout  = 5 * time.Second
)

var testSecret = []byte("e2e-test-secret-at-least-32-bytes!")

// harness holds the server half of the stack: SQLite behind the chi
// router, with miniredis standing in for Redis.
type harness struct {
	URL    string
	Client *http.Client
	Repo   repository.Repository
	Broker *broker.Broker
	logger *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	repo, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "server.db"), 0, logger)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx))
	t.Cleanup(func() { _ = repo.Close() })

	mr := miniredis.RunT(t)
	bus := broker.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger)
	t.Cleanup(func() { _ = bus.Close() })

	srv := server.New(server.Config{
		Repo:   repo,
		Broker: bus,
		Gen:    playlist.UUIDGenerator{},
		Secret: testSecret,
		Logger: logger,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &harness{URL: ts.URL, Client: ts.Client(), Repo: repo, Broker: bus, logger: logger}
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()

	tok, err := auth.IssueToken(testSecret, userID, time.Hour)
	require.NoError(t, err)

	return tok
}

// remoteSnapshot reads what the server holds for the user, or nil.
func (h *harness) remoteSnapshot(t *testing.T, userID string) *models.Snapshot {
	t.Helper()

	snap, err := h.Repo.LoadSnapshot(context.Background(), userID)
	require.NoError(t, err)

	return snap
}

// device is one client install: its own state file, library and syncer.
type device struct {
	Lib       *library.Library
	Syncer    *syncer.Syncer
	State     *state.State
	Conflicts chan syncer.Conflict
	owner     string
}

func (h *harness) newDevice(t *testing.T, userID string) *device {
	t.Helper()

	return startDevice(t, remote.NewClient(h.URL, h.token(t, userID), h.Client), userID, h.logger)
}

// startDevice runs a device against any remote, such as a stub server.
func startDevice(t *testing.T, rc syncer.Remote, userID string, logger *slog.Logger) *device {
	t.Helper()

	st, err := state.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	gen := playlist.UUIDGenerator{}

	lib := library.New(st, gen, logger)
	require.NoError(t, lib.Hydrate(context.Background()))

	conflicts := make(chan syncer.Conflict, 4)

	s := syncer.New(syncer.Config{
		Library:    lib,
		Remote:     rc,
		Meta:       st,
		Resolver:   playlist.NewResolver(playlist.NewComparator(logger), logger),
		Gen:        gen,
		Debounce:   testDebounce,
		OnConflict: func(c syncer.Conflict) { conflicts <- c },
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &device{Lib: lib, Syncer: s, State: st, Conflicts: conflicts, owner: userID}
}

func (d *device) login(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	require.NoError(t, d.Syncer.Login(ctx, d.owner))
}

// firstPlaylistID returns the id of the first stored playlist.
func (d *device) firstPlaylistID(t *testing.T) string {
	t.Helper()

	snap := d.Lib.Snapshot()
	require.NotEmpty(t, snap.Playlists)

	return snap.Playlists[0].ID
}

func hasItem(s *models.Snapshot, itemID string) bool {
	if s == nil {
		return false
	}

	for _, p := range s.Playlists {
		for _, it := range p.Items {
			if it.ID == itemID {
				return true
			}
		}
	}

	return false
}

// bearerTransport is an http.RoundTripper that injects a Bearer token
// into every request's Authorization header.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (bt *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+bt.token)

	return bt.base.RoundTrip(req)
}
