package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cacheproxy/internal/cache"
	"cacheproxy/internal/pool"
)

func TestHealthzAndStats(t *testing.T) {
	c, err := cache.New(4, time.Minute)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer c.Close()
	p, err := pool.New(2, 4)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	defer p.Shutdown(time.Second)

	m := NewMetrics()
	router := NewRouter(c, p, m)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/stats status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("/stats content-type = %q, want application/json", ct)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.IncCacheHit()
	m.IncCacheMiss()
	m.IncUpstreamFailure()
	m.IncCacheEviction()
	m.IncTaskAccepted()
	m.IncTaskRejected()

	count, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(count) != 6 {
		t.Fatalf("gathered %d metric families, want 6", len(count))
	}
}
