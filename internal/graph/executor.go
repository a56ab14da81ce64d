package graph

import "context"

// Query is one compiled statement handed to the execution boundary
type Query struct {
	Text   string
	Params map[string]any
	// Operation selects the transaction config and routing, see Operation* constants
	Operation string
	// Mode overrides the routing strategy when set
	Mode RoutingMode
}

// Executor runs queries. Implementations must be safe for concurrent use; the
// hydrator issues auto-fetch queries in parallel.
type Executor interface {
	Execute(ctx context.Context, q Query) (*Result, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, q Query) (*Result, error)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, q Query) (*Result, error) {
	return f(ctx, q)
}

// QueryRecorder receives one observation per executed query
type QueryRecorder interface {
	RecordQuery(operation, status string, seconds float64)
}
