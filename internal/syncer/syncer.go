// Package syncer keeps the local library and the remote store in step.
//
// Architecture: a single event loop goroutine (Run) owns every network
// call. Login, logout, conflict resolutions and library change signals
// arrive on channels, and the debounce timer fires into the same select.
// Pull-on-login and push-on-change can therefore never overlap, and the
// loop-owned fields need no locking beyond what Status reads.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/library"
	"github.com/alexjbarnes/playlist-sync/internal/metrics"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/state"
)

// DefaultDebounce is the quiet period after the last change before a
// push fires.
const DefaultDebounce = time.Second

// Choice is the user's answer to a conflict prompt.
type Choice int

const (
	ChooseLocal Choice = iota
	ChooseRemote
)

func (c Choice) String() string {
	if c == ChooseRemote {
		return "remote"
	}

	return "local"
}

// Conflict is shown to the user when both sides hold different,
// meaningful data.
type Conflict struct {
	Local  *models.Snapshot
	Remote *models.Snapshot
	Diff   *playlist.DiffResult
	Reason string
}

// ConflictHandler surfaces a conflict to the user. It runs on the event
// loop and must not block or call back into the Syncer synchronously.
type ConflictHandler func(Conflict)

// Status is a point-in-time view of the sync session.
type Status struct {
	Authenticated   bool      `json:"authenticated"`
	Loaded          bool      `json:"loaded"`
	Owner           string    `json:"owner,omitempty"`
	ConflictPending bool      `json:"conflictPending"`
	PlaylistsHash   string    `json:"playlistsHash,omitempty"`
	PinnedHash      string    `json:"pinnedHash,omitempty"`
	PushScheduled   bool      `json:"pushScheduled"`
	LastSync        time.Time `json:"lastSync,omitzero"`
	LastError       string    `json:"lastError,omitempty"`
}

// Config holds the collaborators of a Syncer.
type Config struct {
	Library    *library.Library
	Remote     Remote
	Meta       MetaStore
	Resolver   *playlist.Resolver
	Gen        playlist.IDGenerator
	Debounce   time.Duration
	OnConflict ConflictHandler
}

type loginReq struct {
	owner string
	done  chan struct{}
}

type resolveReq struct {
	choice Choice
	result chan error
}

// Syncer runs pull-on-login and push-on-change for one user at a time.
type Syncer struct {
	lib        *library.Library
	remote     Remote
	meta       MetaStore
	resolver   *playlist.Resolver
	gen        playlist.IDGenerator
	debounce   time.Duration
	onConflict ConflictHandler
	logger     *slog.Logger

	loginCh   chan loginReq
	logoutCh  chan chan struct{}
	resolveCh chan resolveReq

	// changeCh coalesces library change signals. One buffered slot is
	// enough: the loop reads the library itself, so only the fact that
	// something changed matters.
	changeCh chan struct{}

	mu sync.Mutex

	// timer is the single pending debounce handle. Only the event loop
	// replaces it, always under mu so Status can read it.
	timer *time.Timer

	authenticated bool
	loaded        bool
	pinnedLoaded  bool

	// mergeNext is set when local data changed while a merge push was in
	// flight. The follow-up push merges too.
	mergeNext bool

	owner         string
	conflict      *Conflict
	confirmed     state.SyncHashes
	lastSync      time.Time
	lastErr       string
}

// New creates a Syncer and subscribes it to library changes. Confirmed
// hashes from a previous run are loaded from the meta store.
func New(cfg Config, logger *slog.Logger) *Syncer {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	gen := cfg.Gen
	if gen == nil {
		gen = playlist.UUIDGenerator{}
	}

	s := &Syncer{
		lib:        cfg.Library,
		remote:     cfg.Remote,
		meta:       cfg.Meta,
		resolver:   cfg.Resolver,
		gen:        gen,
		debounce:   debounce,
		onConflict: cfg.OnConflict,
		logger:     logger,
		loginCh:    make(chan loginReq),
		logoutCh:   make(chan chan struct{}),
		resolveCh:  make(chan resolveReq),
		changeCh:   make(chan struct{}, 1),
	}

	if s.meta != nil {
		h, err := s.meta.SyncHashes()
		if err != nil {
			logger.Warn("loading confirmed sync hashes", slog.String("error", err.Error()))
		}

		s.confirmed = h
	}

	s.lib.Subscribe(s.notifyChange)

	return s
}

func (s *Syncer) notifyChange(library.Change) {
	select {
	case s.changeCh <- struct{}{}:
	default:
	}
}

// Run is the event loop. It returns when ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	defer s.stopTimer()

	for {
		select {
		case req := <-s.loginCh:
			s.handleLogin(ctx, req.owner)
			close(req.done)

		case done := <-s.logoutCh:
			s.handleLogout()
			close(done)

		case req := <-s.resolveCh:
			req.result <- s.handleResolve(ctx, req.choice)

		case <-s.changeCh:
			s.handleChange()

		case <-s.timerC():
			s.stopTimer()
			s.flush(ctx)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Login starts a session for owner and runs pull-on-login. It returns
// once the pull has been handled.
func (s *Syncer) Login(ctx context.Context, owner string) error {
	req := loginReq{owner: owner, done: make(chan struct{})}

	select {
	case s.loginCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logout ends the session. A pending push is cancelled and never fires.
func (s *Syncer) Logout(ctx context.Context) error {
	done := make(chan struct{})

	select {
	case s.logoutCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResolveConflict applies the user's choice for the pending conflict and
// pushes the result. ErrNoConflict is returned when nothing is pending.
func (s *Syncer) ResolveConflict(ctx context.Context, choice Choice) error {
	req := resolveReq{choice: choice, result: make(chan error, 1)}

	select {
	case s.resolveCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingConflict returns the conflict awaiting a choice, or nil.
func (s *Syncer) PendingConflict() *Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflict == nil {
		return nil
	}

	c := *s.conflict

	return &c
}

// Status reports the current session state.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Authenticated:   s.authenticated,
		Loaded:          s.loaded,
		Owner:           s.owner,
		ConflictPending: s.conflict != nil,
		PlaylistsHash:   s.confirmed.Playlists,
		PinnedHash:      s.confirmed.Pinned,
		PushScheduled:   s.timer != nil,
		LastSync:        s.lastSync,
		LastError:       s.lastErr,
	}
}

// --- Event handlers (event loop only) ---

func (s *Syncer) handleLogin(ctx context.Context, owner string) {
	select {
	case <-s.lib.Hydrated():
	case <-ctx.Done():
		return
	}

	s.stopTimer()

	s.mu.Lock()
	if s.confirmed.Owner != owner {
		s.confirmed = state.SyncHashes{Owner: owner}
	}

	s.authenticated = true
	s.loaded = false
	s.pinnedLoaded = false
	s.mergeNext = false
	s.owner = owner
	s.conflict = nil
	s.mu.Unlock()

	s.lib.SetOwner(owner)

	s.logger.Info("session started, pulling remote", slog.String("owner", owner))

	s.pullPlaylists(ctx)
	s.pullPinned(ctx)
}

func (s *Syncer) handleLogout() {
	s.stopTimer()

	s.mu.Lock()
	s.authenticated = false
	s.loaded = false
	s.pinnedLoaded = false
	s.mergeNext = false
	s.owner = ""
	s.conflict = nil
	s.confirmed = state.SyncHashes{}
	s.mu.Unlock()

	metrics.ConflictsPending.Set(0)

	s.lib.SetOwner("")
	s.persistHashes()

	s.logger.Info("session ended")
}

// handleChange applies the push gate: authenticated, past the initial
// pull, and a hash that differs from the last confirmed one. Each change
// that passes restarts the debounce timer. Pinned songs whose pull failed
// schedule a flush so the pull is retried before anything is pushed.
func (s *Syncer) handleChange() {
	s.mu.Lock()
	authenticated, loaded, pinnedLoaded := s.authenticated, s.loaded, s.pinnedLoaded
	confirmed := s.confirmed
	s.mu.Unlock()

	if !authenticated {
		return
	}

	dirty := false

	if loaded {
		hash, err := playlist.ContentHash(s.lib.Snapshot())
		if err == nil && hash != confirmed.Playlists {
			dirty = true
		}
	}

	switch {
	case !pinnedLoaded:
		dirty = true
	case playlist.PinnedHash(s.lib.Pinned()) != confirmed.Pinned:
		dirty = true
	}

	if !dirty {
		return
	}

	s.resetTimer()
}

func (s *Syncer) flush(ctx context.Context) {
	s.mu.Lock()
	authenticated, loaded, pinnedLoaded := s.authenticated, s.loaded, s.pinnedLoaded
	confirmed := s.confirmed
	mode := SaveReplace
	if s.mergeNext {
		mode = SaveMerge
	}
	s.mu.Unlock()

	if !authenticated {
		return
	}

	if loaded {
		if hash, err := playlist.ContentHash(s.lib.Snapshot()); err == nil && hash != confirmed.Playlists {
			_ = s.pushPlaylists(ctx, mode)
		}
	}

	if !pinnedLoaded {
		s.pullPinned(ctx)
		return
	}

	s.mu.Lock()
	confirmedPinned := s.confirmed.Pinned
	s.mu.Unlock()

	if playlist.PinnedHash(s.lib.Pinned()) != confirmedPinned {
		_ = s.pushPinned(ctx, s.lib.Pinned())
	}
}

func (s *Syncer) handleResolve(ctx context.Context, choice Choice) error {
	s.mu.Lock()
	conflict := s.conflict
	s.mu.Unlock()

	if conflict == nil {
		return apperrors.ErrNoConflict
	}

	s.logger.Info("conflict resolved by user", slog.String("choice", choice.String()))

	switch choice {
	case ChooseRemote:
		if conflict.Remote == nil {
			return fmt.Errorf("%w: remote playlists are malformed and cannot be kept, keep local to overwrite them", apperrors.ErrInvalidShape)
		}

		if err := s.commit(conflict.Remote); err != nil {
			return err
		}
	case ChooseLocal:
		// Local data is already installed; the push below binds its ids
		// to the owner and clamps it to the bound.
	default:
		return fmt.Errorf("unknown conflict choice %d", choice)
	}

	s.mu.Lock()
	s.conflict = nil
	s.loaded = true
	s.mu.Unlock()

	metrics.ConflictsPending.Set(0)

	return s.pushPlaylists(ctx, SaveReplace)
}

// --- Pull-on-login ---

func (s *Syncer) pullPlaylists(ctx context.Context) {
	local := s.lib.Snapshot()

	localHash, err := playlist.ContentHash(local)
	if err != nil {
		s.logger.Warn("hashing local snapshot", slog.String("error", err.Error()))
	}

	remote, err := s.remote.FetchPlaylists(ctx)
	switch {
	case errors.Is(err, apperrors.ErrInvalidShape):
		// The remote answered, but with data that cannot be decoded.
		// Nothing is pushed over it until the user decides.
		s.recordError("remote playlists are malformed", err)
		metrics.SyncDecisionsTotal.WithLabelValues(playlist.DecisionShowModal.String()).Inc()
		s.raiseConflict(Conflict{Local: local, Reason: "invalid_remote"})

		return

	case err != nil:
		s.recordError("fetching remote playlists", err)
		s.fallbackPush(ctx, localHash)

		return
	}

	var remoteSnap *models.Snapshot
	if remote != nil {
		remoteSnap = remote.Snapshot
	}

	if remoteSnap != nil && remote.ContentHash != "" && remote.ContentHash == localHash {
		s.logger.Info("local and remote playlists already in sync")
		s.markSynced(localHash)

		return
	}

	d := s.resolver.Resolve(local, remoteSnap)
	metrics.SyncDecisionsTotal.WithLabelValues(d.Kind.String()).Inc()

	s.logger.Info("pull decision",
		slog.String("decision", d.Kind.String()),
		slog.String("reason", d.Reason),
	)

	switch d.Kind {
	case playlist.DecisionAutoSync:
		if err := s.commit(d.Data); err != nil {
			s.logger.Warn("auto-sync data failed integrity check, asking user",
				slog.String("error", err.Error()),
			)
			s.raiseConflict(Conflict{
				Local:  local,
				Remote: remoteSnap,
				Diff:   playlist.Diff(local, remoteSnap),
				Reason: "integrity",
			})

			return
		}

		s.setLoaded()
		_ = s.pushPlaylists(ctx, SaveReplace)

	case playlist.DecisionShowModal:
		s.raiseConflict(Conflict{
			Local:  d.Local,
			Remote: d.Remote,
			Diff:   d.Diff,
			Reason: d.Reason,
		})

	default:
		s.setLoaded()
		_ = s.pushPlaylists(ctx, SaveReplace)
	}
}

// fallbackPush handles a failed pull: assume the remote had nothing, but
// ask it to merge in case it did. Data already confirmed by an earlier
// run is not pushed again.
func (s *Syncer) fallbackPush(ctx context.Context, localHash string) {
	s.setLoaded()

	s.mu.Lock()
	confirmed := s.confirmed.Playlists
	s.mu.Unlock()

	if localHash != "" && localHash == confirmed {
		s.logger.Info("local playlists unchanged since last confirmed push, skipping fallback push")
		return
	}

	_ = s.pushPlaylists(ctx, SaveMerge)
}

func (s *Syncer) pullPinned(ctx context.Context) {
	local := s.lib.Pinned()

	// Until a pull succeeds the cloud set is unknown, and a full-replace
	// push could delete pins made on other devices. pinnedLoaded stays
	// false and the next flush retries the pull.
	cloud, err := s.remote.FetchPinned(ctx)
	if err != nil {
		s.recordError("fetching remote pinned songs", err)
		return
	}

	merged := playlist.MergePinned(cloud, local)
	mergedHash := playlist.PinnedHash(merged)

	if mergedHash != playlist.PinnedHash(local) {
		if err := s.lib.ReplacePinned(merged, library.SourceSync); err != nil {
			s.recordError("applying merged pinned songs", err)
			return
		}
	}

	s.setPinnedLoaded()

	if mergedHash == playlist.PinnedHash(cloud) {
		s.mu.Lock()
		s.confirmed.Pinned = mergedHash
		s.mu.Unlock()
		s.persistHashes()

		return
	}

	_ = s.pushPinned(ctx, merged)
}

// commit validates a snapshot, binds its ids to the current owner, clamps
// it to the bound, and installs it in the library.
func (s *Syncer) commit(snap *models.Snapshot) error {
	if err := playlist.CheckIntegrity(snap); err != nil {
		return err
	}

	data, _ := s.prepare(snap)

	if err := s.lib.Replace(data, library.SourceSync); err != nil {
		return fmt.Errorf("applying snapshot: %w", err)
	}

	return nil
}

// prepare runs identifier reconciliation and bounds enforcement on a
// copy of snap and reports whether anything had to change.
func (s *Syncer) prepare(snap *models.Snapshot) (*models.Snapshot, bool) {
	s.mu.Lock()
	owner := s.owner
	s.mu.Unlock()

	out := snap.Clone()

	ids := playlist.ReconcileIDs(out.Playlists, out.ActivePlaylistID, owner, s.gen)
	bounds := playlist.EnforceBounds(ids.Playlists, ids.ActivePlaylistID)

	if bounds.Dropped > 0 {
		s.logger.Warn("playlist limit exceeded, dropping from tail",
			slog.Int("dropped", bounds.Dropped),
			slog.Int("limit", models.MaxPlaylistCount),
		)
		metrics.AddTruncated(bounds.Dropped)
	}

	changed := ids.Changed || bounds.Dropped > 0 || bounds.ActivePlaylistID != ids.ActivePlaylistID

	out.Playlists = bounds.Playlists
	out.ActivePlaylistID = bounds.ActivePlaylistID

	return out, changed
}

func (s *Syncer) raiseConflict(c Conflict) {
	s.mu.Lock()
	s.conflict = &c
	s.loaded = false
	s.mu.Unlock()

	metrics.ConflictsPending.Set(1)

	if s.onConflict != nil {
		s.onConflict(c)
	}
}

// --- Push ---

// pushPlaylists reconciles ids and bounds, writes any repair back to the
// library, and transmits. On failure the confirmed hash is left alone so
// the next change retries.
func (s *Syncer) pushPlaylists(ctx context.Context, mode SaveMode) error {
	snap, changed := s.prepare(s.lib.Snapshot())
	if changed {
		if err := s.lib.Replace(snap, library.SourceSync); err != nil {
			s.recordError("writing reconciled ids", err)
			return err
		}
	}

	hash, err := playlist.ContentHash(snap)
	if err != nil {
		return err
	}

	res, err := s.remote.SavePlaylists(ctx, snap, mode)
	if err != nil {
		metrics.PushesTotal.WithLabelValues("playlists", "error").Inc()
		s.recordError("pushing playlists", err)

		return err
	}

	metrics.PushesTotal.WithLabelValues("playlists", "ok").Inc()

	s.mu.Lock()
	s.mergeNext = false
	s.mu.Unlock()

	confirmed := hash

	// The remote is authoritative for what it stored. A merge, or a
	// server-side repair, can return something other than what was sent.
	// It only replaces local data that is still what was sent.
	if res != nil && res.Snapshot != nil {
		remoteHash := res.ContentHash
		if remoteHash == "" {
			remoteHash, _ = playlist.ContentHash(res.Snapshot)
		}

		if remoteHash != hash {
			if current, _ := playlist.ContentHash(s.lib.Snapshot()); current != hash {
				s.logger.Info("local playlists changed during push, pushing again",
					slog.String("mode", mode.String()),
				)

				s.mu.Lock()
				s.mergeNext = mode == SaveMerge
				s.mu.Unlock()

				s.markSynced(remoteHash)
				s.resetTimer()

				return nil
			}

			if err := s.lib.Replace(res.Snapshot, library.SourceSync); err != nil {
				s.recordError("applying remote result", err)
				return err
			}

			confirmed = remoteHash
		}
	}

	s.markSynced(confirmed)

	s.logger.Info("pushed playlists",
		slog.String("mode", mode.String()),
		slog.String("hash", confirmed),
	)

	return nil
}

func (s *Syncer) pushPinned(ctx context.Context, p models.PinnedSongs) error {
	if err := s.remote.SavePinned(ctx, p); err != nil {
		metrics.PushesTotal.WithLabelValues("pinned", "error").Inc()
		s.recordError("pushing pinned songs", err)

		return err
	}

	metrics.PushesTotal.WithLabelValues("pinned", "ok").Inc()

	s.mu.Lock()
	s.confirmed.Pinned = playlist.PinnedHash(p)
	s.lastSync = time.Now()
	s.mu.Unlock()

	s.persistHashes()

	s.logger.Info("pushed pinned songs", slog.Int("count", len(p.PinnedOrder)))

	return nil
}

// --- Helpers ---

func (s *Syncer) markSynced(hash string) {
	s.mu.Lock()
	s.loaded = true
	s.confirmed.Playlists = hash
	s.lastSync = time.Now()
	s.lastErr = ""
	s.mu.Unlock()

	s.persistHashes()
}

func (s *Syncer) setLoaded() {
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
}

func (s *Syncer) setPinnedLoaded() {
	s.mu.Lock()
	s.pinnedLoaded = true
	s.mu.Unlock()
}

func (s *Syncer) persistHashes() {
	if s.meta == nil {
		return
	}

	s.mu.Lock()
	h := s.confirmed
	s.mu.Unlock()

	if err := s.meta.SetSyncHashes(h); err != nil {
		s.logger.Warn("persisting sync hashes", slog.String("error", err.Error()))
	}
}

func (s *Syncer) recordError(msg string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	s.logger.Warn(msg, slog.String("error", err.Error()))

	s.mu.Lock()
	s.lastErr = msg + ": " + err.Error()
	s.mu.Unlock()
}

func (s *Syncer) timerC() <-chan time.Time {
	if s.timer == nil {
		return nil
	}

	return s.timer.C
}

func (s *Syncer) resetTimer() {
	s.stopTimer()

	s.mu.Lock()
	s.timer = time.NewTimer(s.debounce)
	s.mu.Unlock()
}

func (s *Syncer) stopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
