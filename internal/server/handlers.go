package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/playlist-sync/internal/auth"
	"github.com/alexjbarnes/playlist-sync/internal/broker"
	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/metrics"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
)

// snapshotResponse is a snapshot with its content hash alongside the
// snapshot fields.
type snapshotResponse struct {
	*models.Snapshot
	ContentHash string `json:"contentHash"`
}

type saveResponse struct {
	Success     bool   `json:"success"`
	Data        any    `json:"data"`
	ContentHash string `json:"contentHash"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// --- Playlists ---

func (s *Server) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := auth.RequestUserID(ctx)

	snap, err := s.repo.LoadSnapshot(ctx, user)
	if err != nil {
		s.logger.Error("loading snapshot", slog.String("user", user), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load playlists")

		return
	}

	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	hash, err := s.snapshotHash(ctx, user, snap)
	if err != nil {
		s.logger.Error("hashing snapshot", slog.String("user", user), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load playlists")

		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: snap, ContentHash: hash})
}

// snapshotHash serves the cached hash when there is one.
func (s *Server) snapshotHash(ctx context.Context, user string, snap *models.Snapshot) (string, error) {
	if hash, ok := s.broker.CachedHash(ctx, user, broker.EventPlaylists); ok {
		return hash, nil
	}

	hash, err := playlist.ContentHash(snap)
	if err != nil {
		return "", err
	}

	s.broker.StoreHash(ctx, user, broker.EventPlaylists, hash)

	return hash, nil
}

func (s *Server) handlePostPlaylists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := auth.RequestUserID(ctx)

	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	incoming, err := playlist.ParseSnapshot(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	merge := r.URL.Query().Get("mode") == "merge"

	stored, err := s.storeSnapshot(ctx, user, incoming, merge)
	if errors.Is(err, apperrors.ErrIntegrity) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err != nil {
		s.logger.Error("storing snapshot", slog.String("user", user), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save playlists")

		return
	}

	hash, err := playlist.ContentHash(stored)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save playlists")
		return
	}

	s.broker.StoreHash(ctx, user, broker.EventPlaylists, hash)

	if err := s.broker.Publish(ctx, user, broker.Event{Type: broker.EventPlaylists, ContentHash: hash}); err != nil {
		s.logger.Warn("publishing playlists event", slog.String("user", user), slog.String("error", err.Error()))
	}

	s.logger.Info("playlists saved",
		slog.String("user", user),
		slog.Bool("merge", merge),
		slog.Int("playlists", len(stored.Playlists)),
	)

	writeJSON(w, http.StatusOK, saveResponse{Success: true, Data: stored, ContentHash: hash})
}

// storeSnapshot optionally merges into the stored snapshot, binds ids to
// the user, clamps to the bound and persists the result.
func (s *Server) storeSnapshot(ctx context.Context, user string, incoming *models.Snapshot, merge bool) (*models.Snapshot, error) {
	result := incoming

	if merge {
		existing, err := s.repo.LoadSnapshot(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot for merge: %w", err)
		}

		result = s.merger.Merge(existing, incoming, user)
	}

	ids := playlist.ReconcileIDs(result.Playlists, result.ActivePlaylistID, user, s.gen)
	bounds := playlist.EnforceBounds(ids.Playlists, ids.ActivePlaylistID)

	if bounds.Dropped > 0 {
		s.logger.Warn("playlist limit exceeded, dropping from tail",
			slog.String("user", user),
			slog.Int("dropped", bounds.Dropped),
		)
		metrics.AddTruncated(bounds.Dropped)
	}

	out := &models.Snapshot{
		Playlists:        bounds.Playlists,
		ActivePlaylistID: bounds.ActivePlaylistID,
		LoopMode:         result.LoopMode,
		IsShuffle:        result.IsShuffle,
	}

	if out.LoopMode == "" {
		out.LoopMode = models.LoopAll
	}

	if err := playlist.CheckIntegrity(out); err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceSnapshot(ctx, user, out); err != nil {
		return nil, err
	}

	return out, nil
}

// --- Pinned ---

func (s *Server) handleGetPinned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := auth.RequestUserID(ctx)

	p, err := s.repo.LoadPinned(ctx, user)
	if err != nil {
		s.logger.Error("loading pinned songs", slog.String("user", user), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load pinned songs")

		return
	}

	writeJSON(w, http.StatusOK, playlist.NormalizePinned(p))
}

func (s *Server) handlePostPinned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := auth.RequestUserID(ctx)

	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	p, err := playlist.ParsePinned(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.repo.ReplacePinned(ctx, user, *p); err != nil {
		s.logger.Error("storing pinned songs", slog.String("user", user), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save pinned songs")

		return
	}

	hash := playlist.PinnedHash(*p)
	s.broker.StoreHash(ctx, user, broker.EventPinned, hash)

	if err := s.broker.Publish(ctx, user, broker.Event{Type: broker.EventPinned, ContentHash: hash}); err != nil {
		s.logger.Warn("publishing pinned event", slog.String("user", user), slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, saveResponse{Success: true, Data: p, ContentHash: hash})
}
