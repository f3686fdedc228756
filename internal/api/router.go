// Package api provides the REST API for smartspec-service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/smartspec/smartspec/internal/config"
	"github.com/smartspec/smartspec/internal/orchestrator"
)

// Server represents the API server fronting the orchestrator.
type Server struct {
	cfg    *config.Config
	router chi.Router
	orch   *orchestrator.Orchestrator
}

// NewServer creates a new API server bound to an orchestrator.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator) *Server {
	s := &Server{cfg: cfg, orch: orch}
	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Optional API key authentication
	if s.cfg.API.APIKey != "" {
		r.Use(s.apiKeyAuth)
	}

	// Health and version endpoints (no auth)
	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	// Spec-bundle routes
	r.Route("/specs", func(r chi.Router) {
		r.Get("/{category}/{id}/recommendation", s.handleRecommend)
	})

	// Workflow execution routes
	r.Route("/workflows", func(r chi.Router) {
		r.Post("/{name}/execute", s.handleExecute)
	})

	r.Route("/executions", func(r chi.Router) {
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Get("/events", s.handleEvents)
			r.Post("/cancel", s.handleCancel)
			r.Post("/respond", s.handleRespond)
			r.Post("/resume", s.handleResume)
		})
	})

	r.Post("/ask", s.handleAsk)

	// Web UI routes (served from /web)
	r.Get("/", s.handleWebRoot)
	r.Get("/web/*", s.handleWebAssets)

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// apiKeyAuth is middleware that validates API key.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health and version
		if r.URL.Path == "/health" || r.URL.Path == "/version" {
			next.ServeHTTP(w, r)
			return
		}

		// Skip auth when no API key is configured
		if s.cfg.API.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
