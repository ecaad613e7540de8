package playlist

import (
	"fmt"
	"log/slog"

	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/models"
)

// DecisionKind is the outcome of comparing local state against the
// remote copy. The caller performs all I/O based on the decision.
type DecisionKind int

const (
	// DecisionNoAction means there is nothing to reconcile. When local
	// holds content the caller should push it to the remote.
	DecisionNoAction DecisionKind = iota

	// DecisionAutoSync means Decision.Data should become the new local
	// and remote truth without asking the user.
	DecisionAutoSync

	// DecisionShowModal means both sides hold meaningful, different data.
	// The caller shows Decision.Local, Decision.Remote and Decision.Diff
	// and lets the user choose.
	DecisionShowModal
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionNoAction:
		return "no_action"
	case DecisionAutoSync:
		return "auto_sync"
	case DecisionShowModal:
		return "show_modal"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision is the resolver output. Data is set for AutoSync; Local,
// Remote and Diff are set for ShowModal. Reason is a short label for
// logs and metrics.
type Decision struct {
	Kind   DecisionKind
	Data   *models.Snapshot
	Local  *models.Snapshot
	Remote *models.Snapshot
	Diff   *DiffResult
	Reason string
}

// Resolver classifies a local/remote snapshot pair. It never mutates its
// inputs and never returns an error: every failure path degrades to
// DecisionShowModal.
type Resolver struct {
	cmp    *Comparator
	logger *slog.Logger
}

// NewResolver creates a Resolver that compares with cmp.
func NewResolver(cmp *Comparator, logger *slog.Logger) *Resolver {
	return &Resolver{cmp: cmp, logger: logger}
}

// Resolve applies the decision rules in priority order. A nil snapshot
// means that side is absent.
func (r *Resolver) Resolve(local, remote *models.Snapshot) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("conflict resolution failed, asking user",
				slog.String("panic", fmt.Sprint(rec)),
			)

			d = r.showModal(local, remote, "error")
		}
	}()

	// Step 1: nothing on either side.
	if local == nil && remote == nil {
		return Decision{Kind: DecisionNoAction, Reason: "both_absent"}
	}

	// Step 2: only remote. Malformed remote data is never adopted
	// silently; the user sees it against a fresh default.
	if local == nil {
		if err := CheckShape(remote); err != nil {
			r.logger.Warn("remote snapshot failed validation", slog.String("error", err.Error()))
			return r.showModal(models.DefaultSnapshot(), remote, "invalid_remote")
		}

		return Decision{Kind: DecisionAutoSync, Data: remote.Clone(), Reason: "remote_only"}
	}

	// Step 3: only local. The caller pushes it.
	if remote == nil {
		return Decision{Kind: DecisionNoAction, Reason: "local_only"}
	}

	// Step 4: either side malformed.
	if err := CheckShape(local); err != nil {
		r.logger.Warn("local snapshot failed validation", slog.String("error", err.Error()))
		return r.showModal(local, remote, "invalid_local")
	}

	if err := CheckShape(remote); err != nil {
		r.logger.Warn("remote snapshot failed validation", slog.String("error", err.Error()))
		return r.showModal(local, remote, "invalid_remote")
	}

	// Step 5: placeholder data on one or both sides.
	localEmpty := IsEmptyOrDefault(local)
	remoteEmpty := IsEmptyOrDefault(remote)

	switch {
	case localEmpty && remoteEmpty:
		return Decision{Kind: DecisionAutoSync, Data: local.Clone(), Reason: "both_default"}
	case localEmpty:
		return Decision{Kind: DecisionAutoSync, Data: remote.Clone(), Reason: "local_default"}
	case remoteEmpty:
		return Decision{Kind: DecisionNoAction, Reason: "remote_default"}
	}

	// Step 6: compare content only. Each device keeps its own playback
	// preferences when the playlists match.
	if r.cmp.PlaylistsEqual(local, remote) {
		data := remote.Clone()
		data.ActivePlaylistID = local.ActivePlaylistID
		data.LoopMode = local.LoopMode
		data.IsShuffle = local.IsShuffle

		return Decision{Kind: DecisionAutoSync, Data: data, Reason: "content_equal"}
	}

	return r.showModal(local, remote, "content_differs")
}

func (r *Resolver) showModal(local, remote *models.Snapshot, reason string) Decision {
	d := Decision{
		Kind:   DecisionShowModal,
		Local:  local.Clone(),
		Remote: remote.Clone(),
		Reason: reason,
	}

	d.Diff = safeDiff(r.logger, local, remote)

	return d
}

// safeDiff computes the modal diff, returning an empty result if the
// computation panics.
func safeDiff(logger *slog.Logger, local, remote *models.Snapshot) (res *DiffResult) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("diff computation failed", slog.String("panic", fmt.Sprint(rec)))
			res = &DiffResult{Playlists: []PlaylistDiff{}}
		}
	}()

	return Diff(local, remote)
}

// IsEmptyOrDefault reports whether s holds no meaningful user data: no
// playlists, no items at all, or exactly the seeded placeholder set
// ("Playlist 1".."Playlist N" in position order, N within the bound) with
// at most one item, which must be in the first playlist.
func IsEmptyOrDefault(s *models.Snapshot) bool {
	if s == nil || len(s.Playlists) == 0 {
		return true
	}

	if s.TotalItems() == 0 {
		return true
	}

	if len(s.Playlists) > models.MaxPlaylistCount {
		return false
	}

	for i, p := range s.Playlists {
		if p.Name != models.DefaultPlaylistName(i) {
			return false
		}

		if i > 0 && len(p.Items) > 0 {
			return false
		}
	}

	return s.TotalItems() <= 1
}

// CheckIntegrity verifies a snapshot before it is committed as the
// authoritative copy: playlist ids unique, item ids unique within each
// playlist, and the active id either the Favorites sentinel, empty with
// no playlists, or present among the playlists. It only validates; the
// caller decides what to do with a failure.
func CheckIntegrity(s *models.Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: snapshot is nil", apperrors.ErrIntegrity)
	}

	ids := make(map[string]struct{}, len(s.Playlists))
	for _, p := range s.Playlists {
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("%w: duplicate playlist id %q", apperrors.ErrIntegrity, p.ID)
		}

		ids[p.ID] = struct{}{}

		items := make(map[string]struct{}, len(p.Items))
		for _, it := range p.Items {
			if _, dup := items[it.ID]; dup {
				return fmt.Errorf("%w: duplicate item id %q in playlist %q", apperrors.ErrIntegrity, it.ID, p.ID)
			}

			items[it.ID] = struct{}{}
		}
	}

	switch active := s.ActivePlaylistID; {
	case active == models.FavoritesPlaylistID:
	case active == "" && len(s.Playlists) == 0:
	default:
		if _, ok := ids[active]; !ok {
			return fmt.Errorf("%w: active playlist %q not found", apperrors.ErrIntegrity, active)
		}
	}

	return nil
}
