package syncer

import (
	"context"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/state"
)

//go:generate mockgen -source=remote.go -destination=remote_mock_test.go -package=syncer

// SaveMode selects how the remote store applies a pushed snapshot.
type SaveMode int

const (
	// SaveReplace overwrites the remote snapshot.
	SaveReplace SaveMode = iota

	// SaveMerge asks the remote to union the snapshot into whatever it
	// already holds. Used when the pull failed and the remote state is
	// unknown.
	SaveMerge
)

func (m SaveMode) String() string {
	if m == SaveMerge {
		return "merge"
	}

	return "replace"
}

// RemoteSnapshot is a snapshot as returned by the remote store together
// with the content hash the remote computed for it. Snapshot is nil when
// the user has no remote data yet.
type RemoteSnapshot struct {
	Snapshot    *models.Snapshot
	ContentHash string
}

// Remote is the authoritative store reachable while authenticated.
type Remote interface {
	FetchPlaylists(ctx context.Context) (*RemoteSnapshot, error)
	SavePlaylists(ctx context.Context, snap *models.Snapshot, mode SaveMode) (*RemoteSnapshot, error)
	FetchPinned(ctx context.Context) (models.PinnedSongs, error)
	SavePinned(ctx context.Context, p models.PinnedSongs) error
}

// MetaStore persists the last confirmed content hashes.
type MetaStore interface {
	SyncHashes() (state.SyncHashes, error)
	SetSyncHashes(h state.SyncHashes) error
}
