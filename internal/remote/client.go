// Package remote implements the syncer's Remote over the playlist HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/playlist-sync/internal/errors"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/syncer"
	"github.com/tidwall/gjson"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects matches the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout applies to the default client only.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads. A full library at the
	// playlist bound is well under this.
	maxAPIResponseBytes = 4 * 1024 * 1024

	playlistsEndpoint = "/api/playlists"
	pinnedEndpoint    = "/api/pinned"
)

// Client talks to the playlist sync server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

var _ syncer.Remote = (*Client)(nil)

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the bearer token never leaves it.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client for baseURL authenticating with token.
// If httpClient is nil, a client with a 30-second timeout and same-host
// redirect policy is created.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// sanitizeResponseBody truncates a response body to 256 bytes and
// replaces non-printable characters before it goes into an error.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// do sends a request and returns the status and body of a 2xx response.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (int, []byte, error) {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s %s: %w", apperrors.ErrAPIRequest, method, endpoint, err)
		// Timeouts, refused connections and DNS failures are transient.
		return 0, nil, &TransientError{Err: wrapped}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return 0, nil, &TransientError{Err: fmt.Errorf("reading response from %s: %w", endpoint, err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, nil, fmt.Errorf("%w: %s %s", apperrors.ErrUnauthenticated, method, endpoint)

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := gjson.GetBytes(respBody, "error").String()
		if msg == "" {
			msg = sanitizeResponseBody(respBody)
		}

		err := fmt.Errorf("%w: %s %s returned status %d: %s", apperrors.ErrAPIResponse, method, endpoint, resp.StatusCode, msg)
		if isTransientStatus(resp.StatusCode) {
			return resp.StatusCode, nil, &TransientError{Err: err}
		}

		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, respBody, nil
}

// isTransientStatus reports whether the status is a temporary server-side
// problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// FetchPlaylists returns the stored snapshot, or a RemoteSnapshot with a
// nil Snapshot when the user has no data yet. A body that fails shape
// validation yields an error wrapping ErrInvalidShape, which callers must
// tell apart from transport failures.
func (c *Client) FetchPlaylists(ctx context.Context) (*syncer.RemoteSnapshot, error) {
	status, body, err := c.do(ctx, http.MethodGet, playlistsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching playlists: %w", err)
	}

	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return &syncer.RemoteSnapshot{}, nil
	}

	snap, err := playlist.ParseSnapshot(body)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching playlists: %w", apperrors.ErrAPIResponse, err)
	}

	return &syncer.RemoteSnapshot{
		Snapshot:    snap,
		ContentHash: gjson.GetBytes(body, "contentHash").String(),
	}, nil
}

// SavePlaylists pushes a snapshot. The server answers with what it
// stored, which differs from snap after a merge or a server-side repair.
func (c *Client) SavePlaylists(ctx context.Context, snap *models.Snapshot, mode syncer.SaveMode) (*syncer.RemoteSnapshot, error) {
	endpoint := playlistsEndpoint
	if mode == syncer.SaveMerge {
		endpoint += "?mode=merge"
	}

	_, body, err := c.do(ctx, http.MethodPost, endpoint, snap)
	if err != nil {
		return nil, fmt.Errorf("saving playlists: %w", err)
	}

	res := gjson.ParseBytes(body)
	if !res.Get("success").Bool() {
		return nil, fmt.Errorf("%w: saving playlists: server did not report success", apperrors.ErrAPIResponse)
	}

	out := &syncer.RemoteSnapshot{ContentHash: res.Get("contentHash").String()}

	if data := res.Get("data"); data.IsObject() {
		stored, err := playlist.ParseSnapshot([]byte(data.Raw))
		if err != nil {
			return nil, fmt.Errorf("%w: saving playlists: %w", apperrors.ErrAPIResponse, err)
		}

		out.Snapshot = stored
	}

	return out, nil
}

// FetchPinned returns the stored pinned songs. No data yields an empty set.
func (c *Client) FetchPinned(ctx context.Context) (models.PinnedSongs, error) {
	status, body, err := c.do(ctx, http.MethodGet, pinnedEndpoint, nil)
	if err != nil {
		return models.PinnedSongs{}, fmt.Errorf("fetching pinned songs: %w", err)
	}

	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return models.PinnedSongs{}, nil
	}

	p, err := playlist.ParsePinned(body)
	if err != nil {
		return models.PinnedSongs{}, fmt.Errorf("%w: fetching pinned songs: %w", apperrors.ErrAPIResponse, err)
	}

	return *p, nil
}

// SavePinned replaces the stored pinned songs.
func (c *Client) SavePinned(ctx context.Context, p models.PinnedSongs) error {
	if _, _, err := c.do(ctx, http.MethodPost, pinnedEndpoint, playlist.NormalizePinned(p)); err != nil {
		return fmt.Errorf("saving pinned songs: %w", err)
	}

	return nil
}
