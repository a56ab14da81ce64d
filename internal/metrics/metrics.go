package metrics

// RecordQuery records a query execution
func (r *Registry) RecordQuery(operation, status string, seconds float64) {
	r.QueriesTotal.WithLabelValues(operation, status).Inc()
	r.QueryDuration.WithLabelValues(operation).Observe(seconds)

	if seconds > 1 {
		r.SlowQueries.WithLabelValues(operation).Inc()
	}
}

// RecordCompileError records a rejected spec by error type name
func (r *Registry) RecordCompileError(errType string) {
	r.CompileErrorsTotal.WithLabelValues(errType).Inc()
}

// RecordPlanCache records a plan cache lookup
func (r *Registry) RecordPlanCache(hit bool) {
	if hit {
		r.PlanCacheLookups.WithLabelValues("hit").Inc()
	} else {
		r.PlanCacheLookups.WithLabelValues("miss").Inc()
	}
}

// RecordHydrated records n hydrated entities of kind
func (r *Registry) RecordHydrated(kind string, n int) {
	if n > 0 {
		r.HydratedEntitiesTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordAutoFetch records one auto-fetch sub-query
func (r *Registry) RecordAutoFetch(status string) {
	r.AutoFetchQueriesTotal.WithLabelValues(status).Inc()
}
