package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const driverPostgres = "postgres"

// DB is the subset of *pgxpool.Pool the repository uses. It is satisfied
// by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Postgres is the production Repository.
type Postgres struct {
	db        DB
	pool      *pgxpool.Pool
	maxParams int
	logger    *slog.Logger
}

var _ Repository = (*Postgres)(nil)

// OpenPostgres connects a pool to url and verifies it with a ping.
func OpenPostgres(ctx context.Context, url string, maxParams int, logger *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	p := NewPostgres(pool, maxParams, logger)
	p.pool = pool

	return p, nil
}

// NewPostgres wraps an existing DB handle.
func NewPostgres(db DB, maxParams int, logger *slog.Logger) *Postgres {
	return &Postgres{db: db, maxParams: normalizeMaxParams(maxParams), logger: logger}
}

// Close releases the pool when the repository opened it.
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}

	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS playlist_settings (
		user_id            TEXT PRIMARY KEY,
		active_playlist_id TEXT NOT NULL DEFAULT '',
		loop_mode          TEXT NOT NULL DEFAULT 'all',
		is_shuffle         BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS playlists (
		user_id  TEXT NOT NULL,
		id       TEXT NOT NULL,
		name     TEXT NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (user_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS playlist_items (
		user_id     TEXT NOT NULL,
		playlist_id TEXT NOT NULL,
		item_id     TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		position    INT NOT NULL,
		PRIMARY KEY (user_id, playlist_id, item_id),
		FOREIGN KEY (user_id, playlist_id) REFERENCES playlists (user_id, id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS pinned_songs (
		user_id  TEXT NOT NULL,
		video_id TEXT NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (user_id, video_id)
	)`,
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrating postgres schema: %w", err)
		}
	}

	return nil
}

// LoadSnapshot reads the user's snapshot in stored order.
func (p *Postgres) LoadSnapshot(ctx context.Context, userID string) (*models.Snapshot, error) {
	defer observe(driverPostgres, "load_snapshot", time.Now())

	var (
		active  string
		loop    string
		shuffle bool
	)

	err := p.db.QueryRow(ctx,
		`SELECT active_playlist_id, loop_mode, is_shuffle FROM playlist_settings WHERE user_id = $1`,
		userID,
	).Scan(&active, &loop, &shuffle)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("loading playlist settings: %w", err)
	}

	a := newAssembler(active, models.LoopMode(loop), shuffle)

	rows, err := p.db.Query(ctx,
		`SELECT id, name FROM playlists WHERE user_id = $1 ORDER BY position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading playlists: %w", err)
	}

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}

		a.addPlaylist(id, name)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading playlists: %w", err)
	}

	rows, err = p.db.Query(ctx,
		`SELECT playlist_id, item_id, title FROM playlist_items WHERE user_id = $1 ORDER BY playlist_id, position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading playlist items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var playlistID, itemID, title string
		if err := rows.Scan(&playlistID, &itemID, &title); err != nil {
			return nil, fmt.Errorf("scanning playlist item: %w", err)
		}

		a.addItem(playlistID, itemID, title)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading playlist items: %w", err)
	}

	return a.snap, nil
}

// ReplaceSnapshot overwrites the user's snapshot in one transaction.
func (p *Postgres) ReplaceSnapshot(ctx context.Context, userID string, s *models.Snapshot) error {
	defer observe(driverPostgres, "replace_snapshot", time.Now())

	playlists, items := snapshotRows(userID, s)

	stmts := []statement{
		{query: `DELETE FROM playlist_items WHERE user_id = $1`, args: []any{userID}},
		{query: `DELETE FROM playlists WHERE user_id = $1`, args: []any{userID}},
		{
			query: `INSERT INTO playlist_settings (user_id, active_playlist_id, loop_mode, is_shuffle, updated_at)
				VALUES ($1, $2, $3, $4, now())
				ON CONFLICT (user_id) DO UPDATE SET
					active_playlist_id = EXCLUDED.active_playlist_id,
					loop_mode = EXCLUDED.loop_mode,
					is_shuffle = EXCLUDED.is_shuffle,
					updated_at = now()`,
			args: []any{userID, s.ActivePlaylistID, string(s.LoopMode), s.IsShuffle},
		},
	}

	stmts = append(stmts, buildInserts("playlists", playlistColumns, playlists, p.maxParams, dollarPlaceholder)...)
	stmts = append(stmts, buildInserts("playlist_items", itemColumns, items, p.maxParams, dollarPlaceholder)...)

	if err := p.inTx(ctx, stmts); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	p.logger.Debug("snapshot stored",
		slog.String("user", userID),
		slog.Int("playlists", len(playlists)),
		slog.Int("items", len(items)),
	)

	return nil
}

// LoadPinned reads the user's pinned songs in stored order.
func (p *Postgres) LoadPinned(ctx context.Context, userID string) (models.PinnedSongs, error) {
	defer observe(driverPostgres, "load_pinned", time.Now())

	rows, err := p.db.Query(ctx,
		`SELECT video_id FROM pinned_songs WHERE user_id = $1 ORDER BY position`,
		userID,
	)
	if err != nil {
		return models.PinnedSongs{}, fmt.Errorf("loading pinned songs: %w", err)
	}
	defer rows.Close()

	order := []string{}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return models.PinnedSongs{}, fmt.Errorf("scanning pinned song: %w", err)
		}

		order = append(order, id)
	}

	if err := rows.Err(); err != nil {
		return models.PinnedSongs{}, fmt.Errorf("loading pinned songs: %w", err)
	}

	return models.PinnedSongs{PinnedVideoIDs: append([]string{}, order...), PinnedOrder: order}, nil
}

// ReplacePinned overwrites the user's pinned songs in one transaction.
func (p *Postgres) ReplacePinned(ctx context.Context, userID string, pinned models.PinnedSongs) error {
	defer observe(driverPostgres, "replace_pinned", time.Now())

	stmts := []statement{{query: `DELETE FROM pinned_songs WHERE user_id = $1`, args: []any{userID}}}
	stmts = append(stmts, buildInserts("pinned_songs", pinnedColumns, pinnedRows(userID, pinned), p.maxParams, dollarPlaceholder)...)

	if err := p.inTx(ctx, stmts); err != nil {
		return fmt.Errorf("replacing pinned songs: %w", err)
	}

	return nil
}

func (p *Postgres) inTx(ctx context.Context, stmts []statement) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	for _, st := range stmts {
		if _, err := tx.Exec(ctx, st.query, st.args...); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				p.logger.Warn("rolling back transaction", slog.String("error", rbErr.Error()))
			}

			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
