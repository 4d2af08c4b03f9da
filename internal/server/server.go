package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/agentd/internal/api/ws"
	"github.com/gosuda/agentd/internal/config"
	"github.com/gosuda/agentd/internal/domain"
	"github.com/gosuda/agentd/internal/server/middleware"
	"github.com/gosuda/agentd/internal/session"
	redisstore "github.com/gosuda/agentd/internal/store/redis"
)

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	manager    *session.Manager
	wsHub      *ws.Hub
	cfg        *config.Config
}

// New creates a Server with all routes wired. pubsub and eventLog may be nil;
// the cross-process watch endpoint and durable event listings degrade
// accordingly. ctx bounds background middleware work (rate-limiter cleanup).
func New(ctx context.Context, cfg *config.Config, manager *session.Manager, pubsub *redisstore.PubSub, eventLog domain.EventLogRepository) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	hub := ws.NewHub(manager, pubsub)

	s := &Server{
		router:  router,
		manager: manager,
		wsHub:   hub,
		cfg:     cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// REST control surface on /api/v1. When no JWT secret is configured the
	// routes are open; otherwise every call needs a bearer token.
	router.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.Auth.JWTSecret))
		}
		r.Use(middleware.RateLimitByIP(ctx, 100, 200))

		apiConfig := huma.DefaultConfig("Agentd API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		registerAPIRoutes(api, manager, eventLog)
	})

	// WebSocket routes. Browser websocket clients cannot set headers, so the
	// auth middleware also accepts an access_token query parameter.
	router.Route("/ws", func(r chi.Router) {
		if cfg.Auth.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.Auth.JWTSecret))
		}
		registerWSRoutes(r, hub)
	})

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("no JWT secret configured, API and websocket routes are unauthenticated")
	}

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
