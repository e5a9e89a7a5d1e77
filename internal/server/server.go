// Package server provides the HTTP surface of go-xc-watch: a REST API over
// the Xtream catalog, playback session control, and the websocket bridge
// the web player connects through. Routing uses chi/v5 with CORS support
// for development.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opd-ai/go-xc-watch/internal/catalog"
	"github.com/opd-ai/go-xc-watch/internal/credstore"
	"github.com/opd-ai/go-xc-watch/internal/playback"
	"github.com/opd-ai/go-xc-watch/internal/xtream"
	"github.com/opd-ai/go-xc-watch/pkg/config"
)

// Backend is what the server needs from an Xtream client: authentication
// plus everything the catalog service consumes.
type Backend interface {
	catalog.Backend
	Authenticate(ctx context.Context) (xtream.AccountInfo, error)
}

// BackendFactory builds a backend client for a set of credentials. Injected
// so tests can substitute a fake without a network.
type BackendFactory func(creds xtream.Credentials) Backend

// CredStore is the persistence capability for the saved login.
type CredStore interface {
	Get() (*credstore.SavedLogin, error)
	Set(creds xtream.Credentials, account xtream.AccountInfo) error
	Clear() error
}

// Server is the HTTP server for go-xc-watch. It owns the active login, the
// catalog service built from it, the single playback session and the
// websocket player hub.
type Server struct {
	config     *config.ServerConfig
	playback   *config.PlaybackConfig
	logger     *slog.Logger
	store      CredStore
	newBackend BackendFactory
	httpServer *http.Server
	router     chi.Router

	hub  *playerHub
	slot *playback.Slot

	// mu guards the active login and the current session.
	mu      sync.RWMutex
	catalog *catalog.Service
	account *xtream.AccountInfo
	session *playback.Session
}

// New creates the HTTP server. If the credential store holds a saved login
// it is restored immediately so the catalog is browsable without a fresh
// authentication round-trip.
func New(cfg *config.ServerConfig, playbackCfg *config.PlaybackConfig, store CredStore, newBackend BackendFactory, logger *slog.Logger) *Server {
	s := &Server{
		config:     cfg,
		playback:   playbackCfg,
		logger:     logger,
		store:      store,
		newBackend: newBackend,
		slot:       playback.NewSlot(),
	}
	s.hub = newPlayerHub(s, logger)

	s.restoreSavedLogin()

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// restoreSavedLogin rebuilds the backend client from the credential store.
// Restore is best-effort: a corrupt store only logs.
func (s *Server) restoreSavedLogin() {
	saved, err := s.store.Get()
	if err != nil {
		s.logger.Warn("Failed to read saved login", "error", err)
		return
	}
	if saved == nil {
		return
	}

	backend := s.newBackend(saved.Credentials)
	account := saved.Account

	s.mu.Lock()
	s.catalog = catalog.New(backend, s.logger)
	s.account = &account
	s.mu.Unlock()

	s.logger.Info("Saved login restored",
		"server_url", saved.Credentials.ServerURL,
		"username", saved.Credentials.Username)
}

// setupMiddleware configures the middleware stack for the router.
// Includes request ID, logging, recovery, compression, and CORS support.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware())
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCompression {
		s.router.Use(middleware.Compress(5))
	}

	// CORS configuration for development
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure appropriately for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(middleware.Timeout(30 * time.Second))
}

// setupRoutes configures all HTTP routes: health, the catalog/auth REST
// API, session control and the websocket player bridge.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/account", s.handleAccount)

		r.Get("/categories/{kind}", s.handleCategories)
		r.Get("/streams/{kind}", s.handleStreams)
		r.Get("/vod/{id}", s.handleVodDetail)
		r.Get("/series/{id}", s.handleSeriesDetail)
		r.Get("/epg/{id}", s.handleGuide)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleSessionCreate)
			r.Get("/current", s.handleSessionGet)
			r.Post("/current/{command}", s.handleSessionCommand)
			r.Delete("/current", s.handleSessionDelete)
		})
	})

	// WebSocket endpoint the web player connects through
	s.router.Get("/ws/player", s.handlePlayerSocket)
}

// Start starts the HTTP server in a goroutine.
// Returns once the context is cancelled and shutdown completes.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		"address", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	return s.Stop()
}

// Stop gracefully shuts down the HTTP server, terminating any active
// playback session first so its resources are released.
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP server")

	s.exitCurrentSession()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down HTTP server", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped successfully")
	return nil
}

// loggingMiddleware creates a structured logging middleware for HTTP requests.
// Logs request method, path, status code, duration, and client IP.
func (s *Server) loggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			s.logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"ip", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		})
	}
}
