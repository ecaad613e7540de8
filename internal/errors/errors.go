package errors

import "errors"

// Validation errors. Shape and integrity failures always fail closed.
var (
	ErrInvalidShape = errors.New("invalid playlist data shape")
	ErrIntegrity    = errors.New("playlist data failed integrity check")
)

// Client errors raised by local playlist operations.
var (
	ErrFavoritesReadOnly = errors.New("favorites playlist cannot be modified")
	ErrPlaylistLimit     = errors.New("playlist limit reached")
	ErrPlaylistNotFound  = errors.New("playlist not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrDuplicateItem     = errors.New("item already in playlist")
	ErrNoConflict        = errors.New("no pending conflict")
	ErrUnauthenticated   = errors.New("not authenticated")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
