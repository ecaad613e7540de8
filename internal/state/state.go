package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.playlist-sync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket = []byte("app")
	tokenKey  = []byte("token")
	ownerKey  = []byte("owner")

	libraryBucket = []byte("library")
	snapshotKey   = []byte("snapshot")
	pinnedKey     = []byte("pinned")

	syncBucket = []byte("sync")
	hashesKey  = []byte("hashes")
)

// SyncHashes records the content hashes the remote last confirmed for
// Owner. A restart compares against these so unchanged data is not
// pushed again.
type SyncHashes struct {
	Owner     string `json:"owner"`
	Playlists string `json:"playlists"`
	Pinned    string `json:"pinned"`
}

// State wraps a bbolt database for all persistent client state.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.playlist-sync/state.db, creating it
// if it does not exist.
func Load() (*State, error) {
	return LoadAt(DefaultPath())
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{appBucket, libraryBucket, syncBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Token returns the cached session token, or empty string.
func (s *State) Token() string {
	return s.getString(appBucket, tokenKey)
}

// SetToken persists the session token.
func (s *State) SetToken(token string) error {
	return s.putString(appBucket, tokenKey, token)
}

// Owner returns the user id the local data was last bound to.
func (s *State) Owner() string {
	return s.getString(appBucket, ownerKey)
}

// SetOwner persists the owning user id.
func (s *State) SetOwner(owner string) error {
	return s.putString(appBucket, ownerKey, owner)
}

// LoadLibrary returns the persisted snapshot and pinned songs. The
// snapshot is nil when nothing has been saved yet.
func (s *State) LoadLibrary() (*models.Snapshot, models.PinnedSongs, error) {
	var (
		snap   *models.Snapshot
		pinned models.PinnedSongs
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(libraryBucket)

		if v := b.Get(snapshotKey); v != nil {
			snap = &models.Snapshot{}
			if err := json.Unmarshal(v, snap); err != nil {
				return fmt.Errorf("decoding snapshot: %w", err)
			}
		}

		if v := b.Get(pinnedKey); v != nil {
			if err := json.Unmarshal(v, &pinned); err != nil {
				return fmt.Errorf("decoding pinned songs: %w", err)
			}
		}

		return nil
	})

	return snap, pinned, err
}

// SaveSnapshot replaces the persisted snapshot.
func (s *State) SaveSnapshot(snap *models.Snapshot) error {
	return s.putJSON(libraryBucket, snapshotKey, snap)
}

// SavePinned replaces the persisted pinned songs.
func (s *State) SavePinned(p models.PinnedSongs) error {
	return s.putJSON(libraryBucket, pinnedKey, p)
}

// SyncHashes returns the last confirmed hashes, zero valued if none.
func (s *State) SyncHashes() (SyncHashes, error) {
	var h SyncHashes

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(syncBucket).Get(hashesKey)
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &h)
	})

	return h, err
}

// SetSyncHashes persists the last confirmed hashes.
func (s *State) SetSyncHashes(h SyncHashes) error {
	return s.putJSON(syncBucket, hashesKey, h)
}

// ClearSession forgets the token, owner and confirmed hashes. The local
// library stays so the user keeps their data after signing out.
func (s *State) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		app := tx.Bucket(appBucket)
		if err := app.Delete(tokenKey); err != nil {
			return err
		}

		if err := app.Delete(ownerKey); err != nil {
			return err
		}

		return tx.Bucket(syncBucket).Delete(hashesKey)
	})
}

func (s *State) getString(bucket, key []byte) string {
	var out string

	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get(key); v != nil {
			out = string(v)
		}

		return nil
	})

	return out
}

func (s *State) putString(bucket, key []byte, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, []byte(value))
	})
}

func (s *State) putJSON(bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

// DefaultPath returns ~/.playlist-sync/state.db.
func DefaultPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing to the current directory
		// where the database (containing session tokens) might end up with
		// wrong permissions or inside a source-controlled tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".playlist-sync", "state.db")
}
