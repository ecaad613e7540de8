// Package server exposes the playlist store over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/playlist-sync/internal/auth"
	"github.com/alexjbarnes/playlist-sync/internal/broker"
	"github.com/alexjbarnes/playlist-sync/internal/metrics"
	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes caps request bodies. A full library at the playlist bound
// is well under this.
const maxBodyBytes = 4 << 20

// Config holds dependencies for building the HTTP handler.
type Config struct {
	Repo   repository.Repository
	Broker *broker.Broker // nil disables hash caching and the event feed
	Gen    playlist.IDGenerator
	Secret []byte
	Logger *slog.Logger
}

// Server handles the playlist API.
type Server struct {
	repo   repository.Repository
	broker *broker.Broker
	gen    playlist.IDGenerator
	merger *playlist.Merger
	logger *slog.Logger
	secret []byte
}

// New creates a Server.
func New(cfg Config) *Server {
	gen := cfg.Gen
	if gen == nil {
		gen = playlist.UUIDGenerator{}
	}

	return &Server{
		repo:   cfg.Repo,
		broker: cfg.Broker,
		gen:    gen,
		merger: playlist.NewMerger(gen, cfg.Logger, playlist.WithDropObserver(metrics.AddTruncated)),
		logger: cfg.Logger,
		secret: cfg.Secret,
	}
}

// Router builds the chi router. Everything under /api requires a bearer
// token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(Metrics(DefaultMetricsConfig()))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(s.secret, s.logger))

		r.Get("/playlists", s.handleGetPlaylists)
		r.Post("/playlists", s.handlePostPlaylists)
		r.Get("/pinned", s.handleGetPinned)
		r.Post("/pinned", s.handlePostPinned)
		r.Get("/events", s.handleEvents)
	})

	return r
}
