package playlist

import (
	"log/slog"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/models"
)

// DefaultSlowCompareThreshold is the soft target for a single comparison.
// Exceeding it logs a warning; the result is still returned.
const DefaultSlowCompareThreshold = 50 * time.Millisecond

// Comparator performs structural equality between snapshots after
// normalization. Malformed input compares unequal and is logged, never
// returned as an error.
type Comparator struct {
	logger        *slog.Logger
	slowThreshold time.Duration
	observe       func(time.Duration)
}

// ComparatorOption configures a Comparator.
type ComparatorOption func(*Comparator)

// WithSlowThreshold overrides DefaultSlowCompareThreshold.
func WithSlowThreshold(d time.Duration) ComparatorOption {
	return func(c *Comparator) { c.slowThreshold = d }
}

// WithDurationObserver registers a callback that receives the wall-clock
// time of every comparison, used for metrics.
func WithDurationObserver(fn func(time.Duration)) ComparatorOption {
	return func(c *Comparator) { c.observe = fn }
}

// NewComparator creates a Comparator.
func NewComparator(logger *slog.Logger, opts ...ComparatorOption) *Comparator {
	c := &Comparator{
		logger:        logger,
		slowThreshold: DefaultSlowCompareThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DeepEqual reports whether two snapshots hold the same playlists and the
// same playback settings, ignoring playlist and item order.
func (c *Comparator) DeepEqual(local, remote *models.Snapshot) bool {
	return c.compare("deep", local, remote, true)
}

// PlaylistsEqual is DeepEqual without activePlaylistId, loopMode and
// isShuffle, which are per-device preferences.
func (c *Comparator) PlaylistsEqual(local, remote *models.Snapshot) bool {
	return c.compare("playlists", local, remote, false)
}

func (c *Comparator) compare(mode string, local, remote *models.Snapshot, withSettings bool) bool {
	if local == nil && remote == nil {
		return true
	}

	if local == nil || remote == nil {
		return false
	}

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		if c.observe != nil {
			c.observe(elapsed)
		}

		if c.slowThreshold > 0 && elapsed > c.slowThreshold {
			c.logger.Warn("slow snapshot comparison",
				slog.String("mode", mode),
				slog.Duration("elapsed", elapsed),
				slog.Int("local_playlists", len(local.Playlists)),
				slog.Int("remote_playlists", len(remote.Playlists)),
			)
		}
	}()

	if err := CheckShape(local); err != nil {
		c.logger.Warn("comparing malformed local snapshot", slog.String("error", err.Error()))
		return false
	}

	if err := CheckShape(remote); err != nil {
		c.logger.Warn("comparing malformed remote snapshot", slog.String("error", err.Error()))
		return false
	}

	a, err := Normalize(local)
	if err != nil {
		return false
	}

	b, err := Normalize(remote)
	if err != nil {
		return false
	}

	if withSettings {
		if a.ActivePlaylistID != b.ActivePlaylistID || a.LoopMode != b.LoopMode || a.IsShuffle != b.IsShuffle {
			return false
		}
	}

	return playlistsMatch(a.Playlists, b.Playlists)
}

// playlistsMatch compares two normalized playlist sequences index by index.
func playlistsMatch(a, b []models.Playlist) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i].ID != b[i].ID || a[i].Name != b[i].Name {
			return false
		}

		if len(a[i].Items) != len(b[i].Items) {
			return false
		}

		for j := range a[i].Items {
			if a[i].Items[j] != b[i].Items[j] {
				return false
			}
		}
	}

	return true
}
