// Package server is the composition root: it opens the database, builds
// every service and handler, and mounts the routes.
//
// DEPENDENCY FLOW:
//
//	config.Config → Server.New()
//	  sqlite.DB ─┬→ AuthService ─────────→ AuthHandler
//	             ├→ PlaylistService ─────→ PlaylistHandler
//	             ├→ AdmissionService ─┬──→ SongHandler
//	             │   (catalog.Resolver)│
//	             ├→ CollaborationService ┴→ CollaborationHandler
//	             └→ presence.Tracker ────→ PresenceHandler (+ Janitor)
//
// Handlers never see the database, and services never see HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/playlist-collab/internal/auth"
	"github.com/sakif/playlist-collab/internal/catalog"
	"github.com/sakif/playlist-collab/internal/config"
	"github.com/sakif/playlist-collab/internal/handler"
	"github.com/sakif/playlist-collab/internal/middleware"
	"github.com/sakif/playlist-collab/internal/presence"
	sqliteRepo "github.com/sakif/playlist-collab/internal/repository/sqlite"
	"github.com/sakif/playlist-collab/internal/service"
)

// Server owns the database connection and the presence janitor. Both are
// released when Start returns.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	tracker *presence.Tracker
	janitor *presence.Janitor
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

type options struct {
	resolver catalog.Resolver
}

// WithResolver replaces the music catalog. Tests use a catalog.StaticResolver.
func WithResolver(r catalog.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// New opens the database and wires all routes. The caller must call Start
// (or Close) to release the database.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tracker := presence.NewTracker(db, presence.WithTimeout(cfg.PresenceTimeout))
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		tracker: tracker,
		janitor: presence.NewJanitor(tracker, cfg.PresenceSweepInterval, logger),
	}

	if o.resolver == nil {
		o.resolver = s.catalogResolver()
	}
	if err := s.setupRoutes(o.resolver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// catalogResolver picks Spotify when credentials are configured. Without
// them the catalog is empty: every externalId lookup is track_not_found, but
// songs can still be admitted directly through POST /api/songs.
func (s *Server) catalogResolver() catalog.Resolver {
	if s.config.SpotifyEnabled() {
		s.logger.Info("music catalog: spotify", slog.String("api", s.config.Spotify.APIURL))
		return catalog.NewSpotifyResolver(s.config.Spotify)
	}
	s.logger.Warn("SPOTIFY_CLIENT_ID not set; catalog lookups will find nothing")
	return catalog.NewStaticResolver(nil)
}

// setupRoutes mounts:
//
//	POST   /auth/register | /auth/login | /auth/logout
//	GET    /healthz
//	GET    /api/me
//	PUT    /api/users/{id}/role
//	POST   /api/songs
//	POST   /api/playlists               GET /api/playlists
//	GET    /api/playlists/{id}          PATCH, DELETE likewise
//	GET    /api/playlists/{id}/collaborators         POST likewise
//	DELETE /api/playlists/{id}/collaborators/{userId}
//	POST   /api/playlists/{id}/songs
//	DELETE /api/playlists/{id}/songs/{songId}
//	POST   /api/playlists/{id}/presence   GET, DELETE likewise
//
// Everything under /api requires a session token.
func (s *Server) setupRoutes(resolver catalog.Resolver) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	playlistService := service.NewPlaylistService(s.db, s.db, s.logger)
	admissionService := service.NewAdmissionService(s.db, resolver, s.logger)
	collabService := service.NewCollaborationService(s.db, s.db, s.db, admissionService, s.logger)

	authHandler := handler.NewAuthHandler(authService, tokens.TTL(), s.logger)
	playlistHandler := handler.NewPlaylistHandler(playlistService, s.logger)
	collabHandler := handler.NewCollaborationHandler(collabService, s.logger)
	songHandler := handler.NewSongHandler(admissionService, s.logger)
	presenceHandler := handler.NewPresenceHandler(s.tracker, collabService, s.logger)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/me", authHandler.HandleMe)
		r.Put("/users/{id}/role", authHandler.HandleSetRole)
		r.Post("/songs", songHandler.HandleAdmit)

		r.Route("/playlists", func(r chi.Router) {
			r.Post("/", playlistHandler.HandleCreate)
			r.Get("/", playlistHandler.HandleList)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", playlistHandler.HandleGet)
				r.Patch("/", playlistHandler.HandleUpdate)
				r.Delete("/", playlistHandler.HandleDelete)

				r.Get("/collaborators", collabHandler.HandleListCollaborators)
				r.Post("/collaborators", collabHandler.HandleAddCollaborator)
				r.Delete("/collaborators/{userId}", collabHandler.HandleRemoveCollaborator)

				r.Post("/songs", collabHandler.HandleAddSong)
				r.Delete("/songs/{songId}", collabHandler.HandleRemoveSong)

				r.Post("/presence", presenceHandler.HandleJoin)
				r.Get("/presence", presenceHandler.HandleList)
				r.Delete("/presence", presenceHandler.HandleLeave)
			})
		})
	})

	return nil
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database without starting the server.
func (s *Server) Close() error {
	s.janitor.Stop()
	return s.db.Close()
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds. The presence janitor runs for the server's lifetime.
func (s *Server) Start() error {
	defer s.db.Close()

	s.janitor.Start()
	defer s.janitor.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Duration("presenceTimeout", s.tracker.Timeout()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
