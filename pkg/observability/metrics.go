package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Access resolution metrics
	ResolutionsTotal     *prometheus.CounterVec
	ResolutionDuration   prometheus.Histogram
	AccessDecisionsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Bus metrics
	BusRequestsTotal   *prometheus.CounterVec
	BusRequestDuration *prometheus.HistogramVec

	// Connection metrics
	ConnectionTransitionsTotal *prometheus.CounterVec
	StaleConnectionsExpired    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreplane_resolutions_total",
				Help: "Total number of user context resolutions",
			},
			[]string{"outcome"},
		),
		ResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coreplane_resolution_duration_seconds",
				Help:    "User context resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreplane_access_decisions_total",
				Help: "Total number of access decisions by outcome",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreplane_cache_hits_total",
				Help: "Total number of cache hits by entry kind",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreplane_cache_misses_total",
				Help: "Total number of cache misses by entry kind",
			},
			[]string{"kind"},
		),
		BusRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreplane_bus_requests_total",
				Help: "Total number of bus requests handled",
			},
			[]string{"subject", "status"},
		),
		BusRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreplane_bus_request_duration_seconds",
				Help:    "Bus request handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"subject"},
		),
		ConnectionTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreplane_connection_transitions_total",
				Help: "Total number of connection state transitions",
			},
			[]string{"from", "to"},
		),
		StaleConnectionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coreplane_stale_connections_expired_total",
				Help: "Total number of stale connections moved to error_oauth",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.ResolutionsTotal,
			m.ResolutionDuration,
			m.AccessDecisionsTotal,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.BusRequestsTotal,
			m.BusRequestDuration,
			m.ConnectionTransitionsTotal,
			m.StaleConnectionsExpired,
		)
	}

	return m
}
