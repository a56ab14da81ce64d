package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/graphogm/internal/errors"
)

// ClientConfig configures the Neo4j driver
type ClientConfig struct {
	URI      string
	User     string
	Password string
	Database string

	MaxConnectionPoolSize        int
	ConnectionAcquisitionTimeout time.Duration
	MaxConnectionLifetime        time.Duration
	SocketConnectTimeout         time.Duration
	MaxTransactionRetryTime      time.Duration

	// Timeouts overrides the default transaction timeout per operation
	Timeouts map[string]time.Duration
}

// Neo4jExecutor executes queries through the official driver. Reads run in read
// transactions, writes in write transactions, each with the per-operation
// timeout and metadata.
type Neo4jExecutor struct {
	driver   neo4j.DriverWithContext
	database string
	timeouts map[string]time.Duration
	routing  *RoutingStrategy
	monitor  *TimeoutMonitor
	recorder QueryRecorder
	logger   logrus.FieldLogger
}

// Option configures a Neo4jExecutor
type Option func(*Neo4jExecutor)

// WithRecorder reports every query to r
func WithRecorder(r QueryRecorder) Option {
	return func(e *Neo4jExecutor) { e.recorder = r }
}

// WithLogger sets the executor logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Neo4jExecutor) { e.logger = logger }
}

// NewNeo4jExecutor creates the driver and verifies connectivity
func NewNeo4jExecutor(ctx context.Context, cfg ClientConfig, opts ...Option) (*Neo4jExecutor, error) {
	if cfg.URI == "" || cfg.User == "" || cfg.Password == "" {
		return nil, errors.ConfigErrorf("neo4j credentials missing: uri=%s, user=%s", cfg.URI, cfg.User)
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(config *neo4j.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				config.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
			if cfg.ConnectionAcquisitionTimeout > 0 {
				config.ConnectionAcquisitionTimeout = cfg.ConnectionAcquisitionTimeout
			}
			if cfg.MaxConnectionLifetime > 0 {
				config.MaxConnectionLifetime = cfg.MaxConnectionLifetime
			}
			if cfg.SocketConnectTimeout > 0 {
				config.SocketConnectTimeout = cfg.SocketConnectTimeout
			}
			if cfg.MaxTransactionRetryTime > 0 {
				config.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
			}
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.DatabaseErrorf(err, "failed to connect to neo4j at %s", cfg.URI)
	}

	e := newExecutor(driver, cfg, opts...)
	e.logger.WithFields(logrus.Fields{
		"uri":           cfg.URI,
		"user":          cfg.User,
		"database":      cfg.Database,
		"max_pool_size": cfg.MaxConnectionPoolSize,
	}).Info("neo4j executor connected")
	return e, nil
}

func newExecutor(driver neo4j.DriverWithContext, cfg ClientConfig, opts ...Option) *Neo4jExecutor {
	e := &Neo4jExecutor{
		driver:   driver,
		database: cfg.Database,
		timeouts: cfg.Timeouts,
		routing:  NewRoutingStrategy(),
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("component", "neo4j")
	e.monitor = NewTimeoutMonitor(e.logger)
	return e
}

// Close closes the driver
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	if err := e.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	e.logger.Info("neo4j executor closed")
	return nil
}

// HealthCheck verifies connectivity and that a trivial read succeeds
func (e *Neo4jExecutor) HealthCheck(ctx context.Context) error {
	if err := e.driver.VerifyConnectivity(ctx); err != nil {
		return errors.DatabaseError(err, "neo4j health check failed")
	}
	_, err := e.Execute(ctx, Query{Text: "RETURN 1 AS ok", Operation: OperationHealthCheck})
	return err
}

// Database returns the configured database name
func (e *Neo4jExecutor) Database() string {
	return e.database
}

// txConfig returns the transaction config of operation with the execution id
// attached to its metadata
func (e *Neo4jExecutor) txConfig(operation, executionID string) TransactionConfig {
	config := GetConfigForOperation(operation)
	if timeout, ok := e.timeouts[operation]; ok {
		config = config.WithTimeout(timeout)
	}
	return config.WithCustomMetadata("execution_id", executionID)
}

// Execute runs q in a managed transaction and collects every record. Driver
// errors are wrapped as database errors. Managed transactions are retried by the
// driver on transient errors until MaxTransactionRetryTime; nothing else retries.
func (e *Neo4jExecutor) Execute(ctx context.Context, q Query) (*Result, error) {
	executionID := uuid.NewString()
	config := e.txConfig(q.Operation, executionID)

	mode := q.Mode
	if mode == "" {
		mode = e.routing.GetRoutingForOperation(q.Operation)
	}

	log := e.logger.WithFields(logrus.Fields{
		"execution_id": executionID,
		"operation":    q.Operation,
		"routing":      mode,
	})
	log.WithField("query", q.Text).Debug("executing query")

	var result *Result
	duration, err := e.monitor.MonitorWithContext(ctx, q.Operation, config.Timeout, func(ctx context.Context) error {
		session := SessionWithRouting(ctx, e.driver, mode, e.database)
		defer session.Close(ctx)

		work := func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, q.Text, q.Params)
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			keys, err := res.Keys()
			if err != nil {
				return nil, err
			}
			return &neo4j.EagerResult{Keys: keys, Records: records}, nil
		}

		var (
			raw any
			err error
		)
		if mode == RoutingRead {
			raw, err = session.ExecuteRead(ctx, work, config.AsNeo4jConfig()...)
		} else {
			raw, err = session.ExecuteWrite(ctx, work, config.AsNeo4jConfig()...)
		}
		if err != nil {
			return err
		}
		result = FromEager(raw.(*neo4j.EagerResult))
		return nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	if e.recorder != nil {
		e.recorder.RecordQuery(q.Operation, status, duration.Seconds())
	}

	if err != nil {
		return nil, errors.DatabaseErrorf(err, "%s query failed", q.Operation).
			WithContext("execution_id", executionID)
	}

	log.WithField("rows", len(result.Rows)).Debug("query executed")
	return result, nil
}
