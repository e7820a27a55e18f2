package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/api"
	"github.com/cloo-solutions/tutorcore/internal/api/middleware"
	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/vectorindex"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readyTimeout = 2 * time.Second

var errRouteNotFound = domain.NewDomainError(domain.ErrCodeNotFound, "route not found")

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexStatser exposes in-memory index state. Nil when the search backend
// is pgvector.
type IndexStatser interface {
	Stats() vectorindex.Stats
}

type RouterConfig struct {
	Logger  *zap.Logger
	DB      Pinger
	Index   IndexStatser
	Backend string
}

type readiness struct {
	Status   string             `json:"status"`
	Database string             `json:"database"`
	Backend  string             `json:"backend,omitempty"`
	Index    *vectorindex.Stats `json:"index,omitempty"`
}

// NewRouter builds the operational HTTP surface: liveness, readiness and
// Prometheus metrics. It serves no tenant data.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.HandleError(w, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		resp := readiness{Status: "ok", Database: "ok", Backend: cfg.Backend}
		status := http.StatusOK

		if cfg.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := cfg.DB.Ping(ctx); err != nil {
				resp.Status, resp.Database = "unavailable", "unreachable"
				status = http.StatusServiceUnavailable
			}
		}
		if cfg.Index != nil {
			stats := cfg.Index.Stats()
			resp.Index = &stats
		}
		api.Success(w, status, resp)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
