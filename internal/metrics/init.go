package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initQueryMetrics() {
	r.QueriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphogm_queries_total",
			Help: "Total number of executed queries",
		},
		[]string{"operation", "status"},
	)

	r.QueryDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphogm_query_duration_seconds",
			Help:    "Query execution latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"operation"},
	)

	r.SlowQueries = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphogm_slow_queries_total",
			Help: "Total number of queries slower than one second",
		},
		[]string{"operation"},
	)
}

func (r *Registry) initCompileMetrics() {
	r.CompileErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphogm_compile_errors_total",
			Help: "Total number of rejected filter, projection and option specs",
		},
		[]string{"type"},
	)

	r.PlanCacheLookups = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphogm_plan_cache_lookups_total",
			Help: "Plan cache lookups",
		},
		[]string{"result"}, // hit, miss
	)
}

func (r *Registry) initHydrationMetrics() {
	r.HydratedEntitiesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphogm_hydrated_entities_total",
			Help: "Total number of hydrated entities",
		},
		[]string{"kind"},
	)

	r.AutoFetchQueriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphogm_auto_fetch_queries_total",
			Help: "Total number of auto-fetch sub-queries",
		},
		[]string{"status"},
	)
}
