package graph

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeoutMonitor logs query executions that fail, time out or come close to
// their timeout.
type TimeoutMonitor struct {
	logger       logrus.FieldLogger
	warningRatio float64 // Warn when execution reaches this share of the timeout
}

// NewTimeoutMonitor creates a monitor warning at 80% of the timeout
func NewTimeoutMonitor(logger logrus.FieldLogger) *TimeoutMonitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TimeoutMonitor{
		logger:       logger.WithField("component", "timeout_monitor"),
		warningRatio: 0.8,
	}
}

// MonitorWithContext runs fn under a context bounded by timeout and logs the
// outcome. fn's error is returned unchanged.
func (tm *TimeoutMonitor) MonitorWithContext(
	ctx context.Context,
	operation string,
	timeout time.Duration,
	fn func(context.Context) error,
) (time.Duration, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(runCtx)
	duration := time.Since(start)

	fields := logrus.Fields{
		"operation":        operation,
		"duration_seconds": duration.Seconds(),
		"timeout_seconds":  timeout.Seconds(),
	}

	switch {
	case err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		tm.logger.WithFields(fields).WithError(err).Error("query timed out")
	case err != nil:
		tm.logger.WithFields(fields).WithError(err).Warn("query failed")
	case timeout > 0 && duration >= time.Duration(float64(timeout)*tm.warningRatio):
		fields["percent_used"] = duration.Seconds() / timeout.Seconds() * 100
		tm.logger.WithFields(fields).Warn("query approaching timeout")
	default:
		tm.logger.WithFields(fields).Debug("query completed")
	}

	return duration, err
}
