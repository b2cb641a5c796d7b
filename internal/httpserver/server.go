// Package httpserver exposes the blueprint generation API: an SSE generate
// endpoint backed by the relay pipeline, plus CRUD and admin surfaces over
// the blueprint store.
package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueprintforge/blueprintd/internal/analytics"
	"github.com/blueprintforge/blueprintd/internal/blueprint"
	"github.com/blueprintforge/blueprintd/internal/prompt"
	"github.com/blueprintforge/blueprintd/internal/quality"
	"github.com/blueprintforge/blueprintd/internal/relay"
	"github.com/blueprintforge/blueprintd/internal/upstream"
	"github.com/blueprintforge/blueprintd/internal/version"
)

// Server holds the handler dependencies. Construct with New; zero value is
// not usable.
type Server struct {
	store    blueprint.Store
	sink     analytics.Sink
	memSink  *analytics.MemorySink
	registry *upstream.Registry
	prompts  *prompt.Builder
	assessor quality.Assessor
	pipeline *relay.Pipeline
	logger   *log.Logger

	provider string // upstream selected for generate requests
}

// Options configures optional server behavior.
type Options struct {
	// Provider names the registered upstream client used for generation.
	Provider string
	// MemorySink, when set, backs the recent-events admin endpoint.
	MemorySink *analytics.MemorySink
	// Relay overrides the pipeline coalescing defaults.
	Relay relay.Options
}

// New constructs a Server with the required dependencies.
func New(store blueprint.Store, sink analytics.Sink, registry *upstream.Registry, prompts *prompt.Builder, assessor quality.Assessor, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if sink == nil {
		sink = analytics.NopSink{}
	}
	return &Server{
		store:    store,
		sink:     sink,
		memSink:  opts.MemorySink,
		registry: registry,
		prompts:  prompts,
		assessor: assessor,
		pipeline: relay.New(store, sink, logger, opts.Relay),
		logger:   logger,
		provider: opts.Provider,
	}
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/generate", s.handleGenerate)
		api.Get("/platforms", s.handlePlatforms)
		api.Get("/events/recent", s.handleRecentEvents)

		api.Route("/blueprints", func(bp chi.Router) {
			bp.Get("/", s.handleListBlueprints)
			bp.Get("/{id}", s.handleGetBlueprint)
			bp.Get("/{id}/html", s.handleRenderBlueprint)
			bp.Delete("/{id}", s.handleDeleteBlueprint)
		})
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
