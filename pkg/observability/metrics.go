package observability

import (
	"net/http"
	"time"

	"referralnet-backend/domain/network"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec

	// Network metrics
	ForestBuilds        prometheus.Counter
	ForestBuildDuration prometheus.Histogram
	ForestAgents        prometheus.Gauge
	IntegrityIssues     *prometheus.GaugeVec

	// Assignment metrics
	LeadsAssigned      prometheus.Counter
	AssignmentFailures prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Query metrics
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewCollector creates a collector backed by its own registry, so several
// collectors can coexist in tests.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		}, []string{"backend", "operation", "status"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		ForestBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forest_builds_total",
			Help:      "Total number of forest assemblies",
		}),
		ForestBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forest_build_duration_seconds",
			Help:      "Forest assembly duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ForestAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forest_agents",
			Help:      "Active agents in the last assembled forest",
		}),
		IntegrityIssues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integrity_issues",
			Help:      "Structural issues found in the last assembled forest",
		}, []string{"type"}),
		LeadsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_assigned_total",
			Help:      "Total number of leads assigned by round-robin",
		}),
		AssignmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_failures_total",
			Help:      "Total number of lead assignment writes that failed",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of forest cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of forest cache misses",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of dispatched queries",
		}, []string{"query", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.StoreOperations,
		c.StoreDuration,
		c.BreakerState,
		c.ForestBuilds,
		c.ForestBuildDuration,
		c.ForestAgents,
		c.IntegrityIssues,
		c.LeadsAssigned,
		c.AssignmentFailures,
		c.CacheHits,
		c.CacheMisses,
		c.Queries,
		c.QueryDuration,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveForest records one forest assembly.
func (c *Collector) ObserveForest(duration time.Duration, stats network.Stats) {
	c.ForestBuilds.Inc()
	c.ForestBuildDuration.Observe(duration.Seconds())
	c.ForestAgents.Set(float64(stats.TotalAgents))
	c.IntegrityIssues.WithLabelValues(string(network.IssueOrphan)).Set(float64(stats.OrphanCount))
	c.IntegrityIssues.WithLabelValues(string(network.IssueSelfLoop)).Set(float64(stats.SelfLoopCount))
	c.IntegrityIssues.WithLabelValues(string(network.IssueCycle)).Set(float64(stats.CycleCount - stats.SelfLoopCount))
}

// ObserveAssignment records one assignment run.
func (c *Collector) ObserveAssignment(assigned, failed int) {
	c.LeadsAssigned.Add(float64(assigned))
	c.AssignmentFailures.Add(float64(failed))
}

// ObserveCache records a forest cache lookup.
func (c *Collector) ObserveCache(hit bool) {
	if hit {
		c.CacheHits.Inc()
		return
	}
	c.CacheMisses.Inc()
}

// ObserveStore records one store call.
func (c *Collector) ObserveStore(backend, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.StoreOperations.WithLabelValues(backend, operation, status).Inc()
	c.StoreDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// ObserveHTTP records one HTTP request.
func (c *Collector) ObserveHTTP(method, route, status string, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveQuery records one dispatched query.
func (c *Collector) ObserveQuery(name string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.Queries.WithLabelValues(name, status).Inc()
	c.QueryDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// ObserveBreaker records a circuit breaker transition.
func (c *Collector) ObserveBreaker(name string, state int) {
	c.BreakerState.WithLabelValues(name).Set(float64(state))
}
