package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tutu-network/shapeq/internal/infra/catalog"
	"github.com/tutu-network/shapeq/internal/infra/metrics"
)

// Delay service defaults.
const (
	DefaultDelayHost     = "127.0.0.1"
	DefaultDelayPort     = 3001
	DefaultTrustedOrigin = "http://localhost:5173"
)

// DelayServer simulates a slow backend: GET /{kind} answers with the kind
// name after the catalog's service duration.
type DelayServer struct {
	catalog *catalog.Catalog
	origin  string
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewDelayServer creates a delay service trusting origin. A nil clock uses
// wall time.
func NewDelayServer(cat *catalog.Catalog, origin string, clock clockwork.Clock, logger *zap.Logger) *DelayServer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelayServer{
		catalog: cat,
		origin:  origin,
		clock:   clock,
		logger:  logger.Named("delay"),
	}
}

// Handler returns the chi router with one route per catalog kind.
func (d *DelayServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(d.originGuard)

	for _, e := range d.catalog.Entries() {
		r.Get("/"+string(e.Kind), d.handleKind(e))
	}
	return r
}

// originGuard rejects requests from any browser origin but the trusted one
// and answers its preflights. Requests without an Origin header (CLI,
// scheduler backend client without origin) pass.
func (d *DelayServer) originGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && origin != d.origin {
			metrics.DelayRequests.WithLabelValues(d.kindLabel(r), "forbidden").Inc()
			d.logger.Debug("origin rejected", zap.String("origin", origin), zap.String("path", r.URL.Path))
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *DelayServer) handleKind(e catalog.Entry) http.HandlerFunc {
	body := []byte(e.Kind)
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-d.clock.After(e.ServiceDuration):
		case <-r.Context().Done():
			metrics.DelayRequests.WithLabelValues(string(e.Kind), "cancelled").Inc()
			d.logger.Debug("client went away", zap.String("kind", string(e.Kind)))
			return
		}

		metrics.DelayRequests.WithLabelValues(string(e.Kind), "ok").Inc()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

// kindLabel keeps metric cardinality bounded for rejected requests.
func (d *DelayServer) kindLabel(r *http.Request) string {
	if kind, err := d.catalog.ParseKind(strings.TrimPrefix(r.URL.Path, "/")); err == nil {
		return string(kind)
	}
	return "other"
}
