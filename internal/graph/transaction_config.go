package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Operation names used for transaction configs, routing and metrics
const (
	OperationFind        = "find"
	OperationCount       = "count"
	OperationUpdate      = "update"
	OperationDelete      = "delete"
	OperationConnected   = "connected"
	OperationAutoFetch   = "auto_fetch"
	OperationAdHoc       = "ad_hoc"
	OperationHealthCheck = "health_check"
)

// TransactionConfig defines timeout and metadata for transactions.
// Transaction metadata is logged by Neo4j and visible in query.log.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// DefaultTransactionConfigs returns the configs per operation type
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		OperationFind: {
			Timeout:  30 * time.Second,
			Metadata: map[string]any{"operation": OperationFind, "type": "read"},
		},
		OperationCount: {
			Timeout:  30 * time.Second,
			Metadata: map[string]any{"operation": OperationCount, "type": "read"},
		},
		// Variable-length traversals can fan out quickly
		OperationConnected: {
			Timeout:  60 * time.Second,
			Metadata: map[string]any{"operation": OperationConnected, "type": "read"},
		},
		OperationAdHoc: {
			Timeout:  30 * time.Second,
			Metadata: map[string]any{"operation": OperationAdHoc, "type": "read"},
		},
		OperationAutoFetch: {
			Timeout:  15 * time.Second,
			Metadata: map[string]any{"operation": OperationAutoFetch, "type": "read"},
		},
		OperationUpdate: {
			Timeout:  2 * time.Minute,
			Metadata: map[string]any{"operation": OperationUpdate, "type": "write"},
		},
		OperationDelete: {
			Timeout:  2 * time.Minute,
			Metadata: map[string]any{"operation": OperationDelete, "type": "write"},
		},
		OperationHealthCheck: {
			Timeout:  5 * time.Second,
			Metadata: map[string]any{"operation": OperationHealthCheck, "type": "read"},
		},
	}
}

// AsNeo4jConfig converts to Neo4j transaction config functions
// for ExecuteRead / ExecuteWrite.
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	configs := []func(*neo4j.TransactionConfig){}
	if tc.Timeout > 0 {
		configs = append(configs, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		configs = append(configs, neo4j.WithTxMetadata(tc.Metadata))
	}
	return configs
}

// GetConfigForOperation retrieves the transaction config of operation, with a
// 60s fallback for unknown operations.
func GetConfigForOperation(operation string) TransactionConfig {
	if config, ok := DefaultTransactionConfigs()[operation]; ok {
		return config
	}
	return TransactionConfig{
		Timeout: 60 * time.Second,
		Metadata: map[string]any{
			"operation": operation,
			"type":      "unknown",
		},
	}
}

// WithCustomMetadata returns a copy of the config with key set in its metadata
func (tc TransactionConfig) WithCustomMetadata(key string, value any) TransactionConfig {
	newConfig := TransactionConfig{
		Timeout:  tc.Timeout,
		Metadata: make(map[string]any, len(tc.Metadata)+1),
	}
	for k, v := range tc.Metadata {
		newConfig.Metadata[k] = v
	}
	newConfig.Metadata[key] = value
	return newConfig
}

// WithTimeout returns a copy of the config with a different timeout
func (tc TransactionConfig) WithTimeout(timeout time.Duration) TransactionConfig {
	return TransactionConfig{
		Timeout:  timeout,
		Metadata: tc.Metadata,
	}
}
