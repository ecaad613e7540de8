package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/auth"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// eventWriteTimeout bounds a single event write to a slow client.
const eventWriteTimeout = 10 * time.Second

// handleEvents streams the user's change events over a websocket. The
// feed is write-only; anything the client sends is discarded.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "change feed not configured")
		return
	}

	user := auth.RequestUserID(r.Context())

	events, stop, err := s.broker.Subscribe(r.Context(), user)
	if err != nil {
		s.logger.Error("subscribing to events", slog.String("user", user), slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "change feed unavailable")

		return
	}
	defer stop()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	s.logger.Debug("event feed connected", slog.String("user", user))

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}

			wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()

			if err != nil {
				s.logger.Debug("writing event", slog.String("user", user), slog.String("error", err.Error()))
				return
			}
		}
	}
}
