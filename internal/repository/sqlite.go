package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
)

const driverSQLite = "sqlite"

// SQLite is a single-file Repository.
type SQLite struct {
	db        *sql.DB
	maxParams int
	logger    *slog.Logger
}

var _ Repository = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, maxParams int, logger *slog.Logger) (*SQLite, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("closing sqlite after ping failure", slog.String("error", closeErr.Error()))
		}

		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}

	// One writer at a time; replacements are whole-user transactions.
	db.SetMaxOpenConns(1)

	return &SQLite{db: db, maxParams: normalizeMaxParams(maxParams), logger: logger}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS playlist_settings (
	user_id            TEXT PRIMARY KEY,
	active_playlist_id TEXT NOT NULL DEFAULT '',
	loop_mode          TEXT NOT NULL DEFAULT 'all',
	is_shuffle         INTEGER NOT NULL DEFAULT 0,
	updated_at         INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TABLE IF NOT EXISTS playlists (
	user_id  TEXT NOT NULL,
	id       TEXT NOT NULL,
	name     TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS playlist_items (
	user_id     TEXT NOT NULL,
	playlist_id TEXT NOT NULL,
	item_id     TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL,
	PRIMARY KEY (user_id, playlist_id, item_id),
	FOREIGN KEY (user_id, playlist_id) REFERENCES playlists (user_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS pinned_songs (
	user_id  TEXT NOT NULL,
	video_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (user_id, video_id)
);
`

// Migrate creates the tables if they do not exist.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrating sqlite schema: %w", err)
	}

	return nil
}

// LoadSnapshot reads the user's snapshot in stored order.
func (s *SQLite) LoadSnapshot(ctx context.Context, userID string) (*models.Snapshot, error) {
	defer observe(driverSQLite, "load_snapshot", time.Now())

	var (
		active  string
		loop    string
		shuffle bool
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT active_playlist_id, loop_mode, is_shuffle FROM playlist_settings WHERE user_id = ?`,
		userID,
	).Scan(&active, &loop, &shuffle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("loading playlist settings: %w", err)
	}

	a := newAssembler(active, models.LoopMode(loop), shuffle)

	if err := s.scan(ctx, func(rows *sql.Rows) error {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}

		a.addPlaylist(id, name)

		return nil
	}, `SELECT id, name FROM playlists WHERE user_id = ? ORDER BY position`, userID); err != nil {
		return nil, fmt.Errorf("loading playlists: %w", err)
	}

	if err := s.scan(ctx, func(rows *sql.Rows) error {
		var playlistID, itemID, title string
		if err := rows.Scan(&playlistID, &itemID, &title); err != nil {
			return err
		}

		a.addItem(playlistID, itemID, title)

		return nil
	}, `SELECT playlist_id, item_id, title FROM playlist_items WHERE user_id = ? ORDER BY playlist_id, position`, userID); err != nil {
		return nil, fmt.Errorf("loading playlist items: %w", err)
	}

	return a.snap, nil
}

// ReplaceSnapshot overwrites the user's snapshot in one transaction.
func (s *SQLite) ReplaceSnapshot(ctx context.Context, userID string, snap *models.Snapshot) error {
	defer observe(driverSQLite, "replace_snapshot", time.Now())

	playlists, items := snapshotRows(userID, snap)

	stmts := []statement{
		{query: `DELETE FROM playlist_items WHERE user_id = ?`, args: []any{userID}},
		{query: `DELETE FROM playlists WHERE user_id = ?`, args: []any{userID}},
		{
			query: `INSERT INTO playlist_settings (user_id, active_playlist_id, loop_mode, is_shuffle, updated_at)
				VALUES (?, ?, ?, ?, strftime('%s', 'now'))
				ON CONFLICT (user_id) DO UPDATE SET
					active_playlist_id = excluded.active_playlist_id,
					loop_mode = excluded.loop_mode,
					is_shuffle = excluded.is_shuffle,
					updated_at = excluded.updated_at`,
			args: []any{userID, snap.ActivePlaylistID, string(snap.LoopMode), snap.IsShuffle},
		},
	}

	stmts = append(stmts, buildInserts("playlists", playlistColumns, playlists, s.maxParams, questionPlaceholder)...)
	stmts = append(stmts, buildInserts("playlist_items", itemColumns, items, s.maxParams, questionPlaceholder)...)

	if err := s.inTx(ctx, stmts); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	return nil
}

// LoadPinned reads the user's pinned songs in stored order.
func (s *SQLite) LoadPinned(ctx context.Context, userID string) (models.PinnedSongs, error) {
	defer observe(driverSQLite, "load_pinned", time.Now())

	order := []string{}

	if err := s.scan(ctx, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}

		order = append(order, id)

		return nil
	}, `SELECT video_id FROM pinned_songs WHERE user_id = ? ORDER BY position`, userID); err != nil {
		return models.PinnedSongs{}, fmt.Errorf("loading pinned songs: %w", err)
	}

	return models.PinnedSongs{PinnedVideoIDs: append([]string{}, order...), PinnedOrder: order}, nil
}

// ReplacePinned overwrites the user's pinned songs in one transaction.
func (s *SQLite) ReplacePinned(ctx context.Context, userID string, p models.PinnedSongs) error {
	defer observe(driverSQLite, "replace_pinned", time.Now())

	stmts := []statement{{query: `DELETE FROM pinned_songs WHERE user_id = ?`, args: []any{userID}}}
	stmts = append(stmts, buildInserts("pinned_songs", pinnedColumns, pinnedRows(userID, p), s.maxParams, questionPlaceholder)...)

	if err := s.inTx(ctx, stmts); err != nil {
		return fmt.Errorf("replacing pinned songs: %w", err)
	}

	return nil
}

func (s *SQLite) scan(ctx context.Context, fn func(*sql.Rows) error, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (s *SQLite) inTx(ctx context.Context, stmts []statement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("rolling back transaction", slog.String("error", rbErr.Error()))
			}

			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
