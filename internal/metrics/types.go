package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the prometheus collectors of the mapper
type Registry struct {
	registry *prometheus.Registry

	// Query execution
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	SlowQueries   *prometheus.CounterVec

	// Compilation
	CompileErrorsTotal *prometheus.CounterVec
	PlanCacheLookups   *prometheus.CounterVec

	// Hydration
	HydratedEntitiesTotal *prometheus.CounterVec
	AutoFetchQueriesTotal *prometheus.CounterVec
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every collector initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initQueryMetrics()
	r.initCompileMetrics()
	r.initHydrationMetrics()

	return r
}

// Gatherer exposes the collectors, e.g. for promhttp.HandlerFor
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
