// Package admin exposes the operational HTTP surface spec.md §6
// describes as ambient infrastructure (health, stats, metrics) layered
// on top of the proxy's own forwarding port. Grounded on
// always-cache-always-cache's use of go-chi/chi for its own admin/debug
// routes, and on kahgeh-caddy-fly-replay's use of
// prometheus/client_golang for cache-layer metrics.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheStats and PoolStats are the subset of *cache.Cache and *pool.Pool
// the /stats endpoint reads, declared as interfaces so admin has no
// import-time dependency on either package's full surface.
type CacheStats interface {
	Len() int
}

type PoolStats interface {
	Len() int
	Capacity() int
}

type statsResponse struct {
	CacheEntries int `json:"cache_entries"`
	QueueDepth   int `json:"queue_depth"`
	QueueCap     int `json:"queue_capacity"`
}

// NewRouter builds the admin HTTP handler: GET /healthz, GET /stats,
// GET /metrics.
func NewRouter(c CacheStats, p PoolStats, m *Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{
			CacheEntries: c.Len(),
			QueueDepth:   p.Len(),
			QueueCap:     p.Capacity(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	return r
}
