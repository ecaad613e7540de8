package playlist

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/alexjbarnes/playlist-sync/internal/models"
)

// hashVersion prefixes every content hash so the encoding can change
// without old and new hashes ever comparing equal.
const hashVersion = "v1:"

// ContentHash returns a stable, order-insensitive digest of s: the
// SHA-256 of the JSON encoding of Normalize(s). It is an equality oracle
// for change detection, not a security primitive.
func ContentHash(s *models.Snapshot) (string, error) {
	n, err := Normalize(s)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot for hash: %w", err)
	}

	sum := sha256.Sum256(data)

	return hashVersion + hex.EncodeToString(sum[:]), nil
}

// PinnedHash returns the digest of the pinned order after normalization.
// Order matters here because it is the display order of Favorites.
func PinnedHash(p models.PinnedSongs) string {
	n := NormalizePinned(p)

	// A []string always encodes.
	data, _ := json.Marshal(n.PinnedOrder)

	sum := sha256.Sum256(data)

	return hashVersion + hex.EncodeToString(sum[:])
}
