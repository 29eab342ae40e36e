// Package api provides the HTTP surfaces of shapeq: the scheduler control
// API and the delay simulation service.
package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/health"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
	"github.com/tutu-network/shapeq/internal/infra/sqlite"
)

// Server is the scheduler control API.
type Server struct {
	catalog        *catalog.Catalog
	schedulers     map[string]domain.Scheduler
	journal        *sqlite.DB      // nil when the journal is disabled
	checker        *health.Checker // nil skips checks on /health
	corsOrigins    []string
	metricsEnabled bool
	logger         *zap.Logger
}

// NewServer creates a control API over the given schedulers, addressed
// by their Name().
func NewServer(cat *catalog.Catalog, logger *zap.Logger, schedulers ...domain.Scheduler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[string]domain.Scheduler, len(schedulers))
	for _, s := range schedulers {
		m[s.Name()] = s
	}
	return &Server{
		catalog:     cat,
		schedulers:  m,
		corsOrigins: []string{"*"},
		logger:      logger.Named("api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetJournal enables the history endpoints.
func (s *Server) SetJournal(db *sqlite.DB) { s.journal = db }

// SetHealth attaches the health checker reported by /health.
func (s *Server) SetHealth(c *health.Checker) { s.checker = c }

// SetCORSOrigins restricts which browser origins may call the API.
// "*" allows any.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(corsMiddleware(s.corsOrigins))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/catalog", s.handleCatalog)
			r.Post("/{mode}/tasks", s.handleSubmit)
			r.Get("/{mode}/state", s.handleState)
			r.Get("/{mode}/stats", s.handleStats)
			r.Get("/{mode}/history", s.handleHistory)
		})
		// Streams stay open for as long as the client listens.
		r.Get("/{mode}/events", s.handleEvents)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

func errorType(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	case status >= 500:
		return "server_error"
	default:
		return "invalid_request"
	}
}

// corsMiddleware adds CORS headers for the configured origins.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
