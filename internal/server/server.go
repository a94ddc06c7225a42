// Package server exposes the choropleth scene, its SVG rendering and per-client
// pan/zoom sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/metrics"
	"github.com/pkh-dashboard/peta/internal/scene"
	"github.com/pkh-dashboard/peta/internal/source"
	"github.com/pkh-dashboard/peta/internal/svg"
	"github.com/pkh-dashboard/peta/internal/view"
)

// Reloader re-fetches the dataset snapshots behind the pipeline.
type Reloader interface {
	Reload(ctx context.Context) (source.LoadResult, error)
}

// Options configures a Server.
type Options struct {
	Style       svg.Style
	View        view.Options
	CORSOrigins []string
	// Cache holds rendered SVG documents. Nil disables caching.
	Cache   *scene.Cache
	Metrics *metrics.Collector
	// SessionTTL drops view sessions idle for longer. Zero keeps them.
	SessionTTL time.Duration
}

// Server serves one scene pipeline.
type Server struct {
	pipeline *scene.Pipeline
	loader   Reloader
	cache    *scene.Cache
	metrics  *metrics.Collector
	style    svg.Style
	sessions *sessionStore
	router   chi.Router
}

// New builds the router. loader may be nil when the data is static.
func New(p *scene.Pipeline, loader Reloader, opts Options) *Server {
	s := &Server{
		pipeline: p,
		loader:   loader,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		style:    opts.Style,
		sessions: newSessionStore(opts.View, opts.SessionTTL),
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Cache"},
		MaxAge:         300,
	}))
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/scene", s.handleScene)
		r.Get("/scene.svg", s.handleSceneSVG)
		r.Get("/legend", s.handleLegend)
		r.Get("/rank", s.handleRank)
		r.Post("/reload", s.handleReload)

		r.Post("/view", s.handleCreateView)
		r.Get("/view/{id}", s.handleGetView)
		r.Post("/view/{id}/{action}", s.handleViewAction)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// observe records request counts and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(route, status, time.Since(start).Seconds())

		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
