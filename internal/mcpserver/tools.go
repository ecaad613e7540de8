// Package mcpserver registers MCP tools that expose the local playlist
// library and the sync engine to assistants.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/library"
	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/syncer"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SyncControl is the part of the sync engine the tools drive.
// *syncer.Syncer satisfies it.
type SyncControl interface {
	Status() syncer.Status
	PendingConflict() *syncer.Conflict
	ResolveConflict(ctx context.Context, choice syncer.Choice) error
}

// RegisterTools adds all playlist tools to the given MCP server.
func RegisterTools(server *mcp.Server, lib *library.Library, sc SyncControl) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "playlists_list",
		Description: "List every visible playlist in display order, Favorites first. Includes item ids and titles and marks the active playlist.",
	}, listHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "playlist_create",
		Description: "Create a new empty playlist. Fails once the playlist limit is reached.",
	}, createHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "playlist_add_item",
		Description: "Append an item to a playlist. Item ids must be unique within the playlist. Favorites cannot be edited; use item_pin instead.",
	}, addItemHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "playlist_remove_item",
		Description: "Remove an item from a playlist by item id.",
	}, removeItemHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "item_pin",
		Description: "Pin or unpin an item in Favorites.",
	}, pinHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report sign-in state, whether the first pull finished, pending pushes, confirmed content hashes, and any pending conflict.",
	}, statusHandler(sc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_conflict",
		Description: "Show the pending sync conflict with a structural diff between local and remote playlists.",
	}, conflictHandler(sc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_resolve_conflict",
		Description: "Resolve the pending conflict by keeping either the local or the remote playlists. The other side is overwritten.",
	}, resolveHandler(sc))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ListInput has no parameters.
type ListInput struct{}

// CreateInput holds parameters for playlist_create.
type CreateInput struct {
	Name string `json:"name" jsonschema:"required,playlist name"`
}

// AddItemInput holds parameters for playlist_add_item.
type AddItemInput struct {
	PlaylistID string `json:"playlist_id" jsonschema:"required,target playlist id"`
	ItemID     string `json:"item_id" jsonschema:"required,external media item id"`
	Title      string `json:"title,omitempty" jsonschema:"display title"`
}

// RemoveItemInput holds parameters for playlist_remove_item.
type RemoveItemInput struct {
	PlaylistID string `json:"playlist_id" jsonschema:"required,playlist id"`
	ItemID     string `json:"item_id" jsonschema:"required,item id to remove"`
}

// PinInput holds parameters for item_pin.
type PinInput struct {
	ItemID string `json:"item_id" jsonschema:"required,item id"`
	Pinned *bool  `json:"pinned,omitempty" jsonschema:"false to unpin, defaults to true"`
}

// StatusInput has no parameters.
type StatusInput struct{}

// ConflictInput has no parameters.
type ConflictInput struct{}

// ResolveInput holds parameters for sync_resolve_conflict.
type ResolveInput struct {
	Keep string `json:"keep" jsonschema:"required,which side to keep: local or remote"`
}

// --- Output types ---

// PlaylistEntry is one playlist in a listing.
type PlaylistEntry struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Active   bool                  `json:"active,omitempty"`
	Favorite bool                  `json:"favorite,omitempty"`
	Items    []models.PlaylistItem `json:"items"`
}

// ListResult is returned by playlists_list.
type ListResult struct {
	Playlists []PlaylistEntry `json:"playlists"`
	LoopMode  string          `json:"loop_mode"`
	Shuffle   bool            `json:"shuffle"`
	CanCreate bool            `json:"can_create"`
}

// ChangeResult is returned by the mutating tools.
type ChangeResult struct {
	PlaylistID string `json:"playlist_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Status     string `json:"status"`
}

// StatusResult is returned by sync_status.
type StatusResult struct {
	Authenticated   bool   `json:"authenticated"`
	Loaded          bool   `json:"loaded"`
	Owner           string `json:"owner,omitempty"`
	ConflictPending bool   `json:"conflict_pending"`
	PushScheduled   bool   `json:"push_scheduled"`
	PlaylistsHash   string `json:"playlists_hash,omitempty"`
	PinnedHash      string `json:"pinned_hash,omitempty"`
	LastSync        string `json:"last_sync,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

// ConflictResult is returned by sync_conflict.
type ConflictResult struct {
	Pending         bool                 `json:"pending"`
	Reason          string               `json:"reason,omitempty"`
	LocalPlaylists  int                  `json:"local_playlists"`
	RemotePlaylists int                  `json:"remote_playlists"`
	Diff            *playlist.DiffResult `json:"diff,omitempty"`
}

// --- Handlers ---

func listHandler(lib *library.Library) mcp.ToolHandlerFor[ListInput, *ListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, *ListResult, error) {
		snap := lib.Snapshot()

		result := &ListResult{
			Playlists: []PlaylistEntry{},
			LoopMode:  string(snap.LoopMode),
			Shuffle:   snap.IsShuffle,
			CanCreate: lib.CanCreate(),
		}

		for _, p := range lib.VisiblePlaylists() {
			items := p.Items
			if items == nil {
				items = []models.PlaylistItem{}
			}

			result.Playlists = append(result.Playlists, PlaylistEntry{
				ID:       p.ID,
				Name:     p.Name,
				Active:   p.ID == snap.ActivePlaylistID,
				Favorite: p.ID == models.FavoritesPlaylistID,
				Items:    items,
			})
		}

		return textResult(result), result, nil
	}
}

func createHandler(lib *library.Library) mcp.ToolHandlerFor[CreateInput, *ChangeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input CreateInput) (*mcp.CallToolResult, *ChangeResult, error) {
		p, err := lib.CreatePlaylist(input.Name)
		if err != nil {
			return nil, nil, err
		}

		result := &ChangeResult{PlaylistID: p.ID, Status: "created"}

		return textResult(result), result, nil
	}
}

func addItemHandler(lib *library.Library) mcp.ToolHandlerFor[AddItemInput, *ChangeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input AddItemInput) (*mcp.CallToolResult, *ChangeResult, error) {
		item := models.PlaylistItem{ID: input.ItemID, Title: input.Title}
		if err := lib.AddItem(input.PlaylistID, item); err != nil {
			return nil, nil, err
		}

		result := &ChangeResult{PlaylistID: input.PlaylistID, ItemID: input.ItemID, Status: "added"}

		return textResult(result), result, nil
	}
}

func removeItemHandler(lib *library.Library) mcp.ToolHandlerFor[RemoveItemInput, *ChangeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input RemoveItemInput) (*mcp.CallToolResult, *ChangeResult, error) {
		if err := lib.RemoveItem(input.PlaylistID, input.ItemID); err != nil {
			return nil, nil, err
		}

		result := &ChangeResult{PlaylistID: input.PlaylistID, ItemID: input.ItemID, Status: "removed"}

		return textResult(result), result, nil
	}
}

func pinHandler(lib *library.Library) mcp.ToolHandlerFor[PinInput, *ChangeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input PinInput) (*mcp.CallToolResult, *ChangeResult, error) {
		pin := input.Pinned == nil || *input.Pinned

		var err error
		status := "pinned"

		if pin {
			err = lib.Pin(input.ItemID)
		} else {
			err = lib.Unpin(input.ItemID)
			status = "unpinned"
		}

		if err != nil {
			return nil, nil, err
		}

		result := &ChangeResult{PlaylistID: models.FavoritesPlaylistID, ItemID: input.ItemID, Status: status}

		return textResult(result), result, nil
	}
}

func statusHandler(sc SyncControl) mcp.ToolHandlerFor[StatusInput, *StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, *StatusResult, error) {
		st := sc.Status()

		result := &StatusResult{
			Authenticated:   st.Authenticated,
			Loaded:          st.Loaded,
			Owner:           st.Owner,
			ConflictPending: st.ConflictPending,
			PushScheduled:   st.PushScheduled,
			PlaylistsHash:   st.PlaylistsHash,
			PinnedHash:      st.PinnedHash,
			LastError:       st.LastError,
		}

		if !st.LastSync.IsZero() {
			result.LastSync = st.LastSync.UTC().Format(time.RFC3339)
		}

		return textResult(result), result, nil
	}
}

func conflictHandler(sc SyncControl) mcp.ToolHandlerFor[ConflictInput, *ConflictResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ConflictInput) (*mcp.CallToolResult, *ConflictResult, error) {
		c := sc.PendingConflict()
		if c == nil {
			result := &ConflictResult{}
			return textResult(result), result, nil
		}

		result := &ConflictResult{
			Pending:         true,
			Reason:          c.Reason,
			LocalPlaylists:  countPlaylists(c.Local),
			RemotePlaylists: countPlaylists(c.Remote),
			Diff:            c.Diff,
		}

		return textResult(result), result, nil
	}
}

func resolveHandler(sc SyncControl) mcp.ToolHandlerFor[ResolveInput, *ChangeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ResolveInput) (*mcp.CallToolResult, *ChangeResult, error) {
		var choice syncer.Choice

		switch input.Keep {
		case "local":
			choice = syncer.ChooseLocal
		case "remote":
			choice = syncer.ChooseRemote
		default:
			return nil, nil, fmt.Errorf("keep must be \"local\" or \"remote\", got %q", input.Keep)
		}

		if err := sc.ResolveConflict(ctx, choice); err != nil {
			return nil, nil, err
		}

		result := &ChangeResult{Status: "kept " + choice.String()}

		return textResult(result), result, nil
	}
}

func countPlaylists(s *models.Snapshot) int {
	if s == nil {
		return 0
	}

	return len(s.Playlists)
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
