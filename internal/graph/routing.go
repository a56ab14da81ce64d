package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// RoutingMode defines read/write routing for cluster deployments.
// In a cluster reads go to followers and read replicas, writes to the leader.
// For single-node deployments routing has no effect.
type RoutingMode string

const (
	RoutingRead  RoutingMode = "read"
	RoutingWrite RoutingMode = "write"
)

// SessionWithRouting creates a session with an access mode matching mode
func SessionWithRouting(
	ctx context.Context,
	driver neo4j.DriverWithContext,
	mode RoutingMode,
	database string,
) neo4j.SessionWithContext {
	config := neo4j.SessionConfig{
		DatabaseName: database,
	}

	switch mode {
	case RoutingRead:
		config.AccessMode = neo4j.AccessModeRead
	case RoutingWrite:
		config.AccessMode = neo4j.AccessModeWrite
	}

	return driver.NewSession(ctx, config)
}

// RoutingStrategy determines routing based on operation type
type RoutingStrategy struct {
	// DefaultMode is used for operations that are neither known reads nor writes
	DefaultMode RoutingMode
}

// NewRoutingStrategy creates a strategy that defaults to writers, since ad hoc
// Cypher may mutate.
func NewRoutingStrategy() *RoutingStrategy {
	return &RoutingStrategy{
		DefaultMode: RoutingWrite,
	}
}

var readOperations = map[string]bool{
	OperationFind:        true,
	OperationCount:       true,
	OperationConnected:   true,
	OperationAutoFetch:   true,
	OperationAdHoc:       true,
	OperationHealthCheck: true,
}

var writeOperations = map[string]bool{
	OperationUpdate: true,
	OperationDelete: true,
}

// GetRoutingForOperation returns the routing mode for operation
func (rs *RoutingStrategy) GetRoutingForOperation(operation string) RoutingMode {
	switch {
	case readOperations[operation]:
		return RoutingRead
	case writeOperations[operation]:
		return RoutingWrite
	}
	return rs.DefaultMode
}
