package admin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus-backed implementation of proxysvc.Metrics,
// plus the extra counters that don't belong to the request-path
// interface: evictions and started tasks (fed by the cache and pool
// hooks) and rejected connections (fed by the accept loop).
type Metrics struct {
	Registry *prometheus.Registry

	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheEvictions    prometheus.Counter
	upstreamFailures  prometheus.Counter
	poolTasksAccepted prometheus.Counter
	poolTasksRejected prometheus.Counter
}

// NewMetrics registers every counter on a fresh registry and returns
// the Metrics handle. Each counter is namespaced under cacheproxy_ per
// the Prometheus convention client_golang's own examples use.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cacheproxy_cache_hits_total",
			Help: "Requests served from the response cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cacheproxy_cache_misses_total",
			Help: "Requests that required an upstream fetch.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cacheproxy_cache_evictions_total",
			Help: "Cache entries removed by TTL sweep or upstream failure.",
		}),
		upstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cacheproxy_upstream_failures_total",
			Help: "Upstream dial or read failures while producing a cache entry.",
		}),
		poolTasksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cacheproxy_pool_tasks_total",
			Help: "Connections whose task started on the worker pool.",
		}),
		poolTasksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cacheproxy_pool_tasks_rejected_total",
			Help: "Connections rejected because the pool had already shut down.",
		}),
	}
	reg.MustRegister(
		m.cacheHits, m.cacheMisses, m.cacheEvictions,
		m.upstreamFailures, m.poolTasksAccepted, m.poolTasksRejected,
	)
	return m
}

func (m *Metrics) IncCacheHit()        { m.cacheHits.Inc() }
func (m *Metrics) IncCacheMiss()       { m.cacheMisses.Inc() }
func (m *Metrics) IncUpstreamFailure() { m.upstreamFailures.Inc() }
func (m *Metrics) IncCacheEviction()   { m.cacheEvictions.Inc() }
func (m *Metrics) IncTaskAccepted()    { m.poolTasksAccepted.Inc() }
func (m *Metrics) IncTaskRejected()    { m.poolTasksRejected.Inc() }
