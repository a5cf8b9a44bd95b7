package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type statsProvider interface {
	Stats() sql.DBStats
}

type poolGauges struct {
	open         prometheus.Gauge
	inUse        prometheus.Gauge
	idle         prometheus.Gauge
	waitCount    prometheus.Gauge
	waitDuration prometheus.Gauge
}

var defaultPoolGauges = poolGauges{
	open:         metrics.DBPoolOpen,
	inUse:        metrics.DBPoolInUse,
	idle:         metrics.DBPoolIdle,
	waitCount:    metrics.DBPoolWaitCount,
	waitDuration: metrics.DBPoolWaitDurationSeconds,
}

func collectPoolStats(db statsProvider, g poolGauges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return fmt.Errorf("db stats provider is nil")
	}

	stats := db.Stats()
	g.open.Set(float64(stats.OpenConnections))
	g.inUse.Set(float64(stats.InUse))
	g.idle.Set(float64(stats.Idle))
	g.waitCount.Set(float64(stats.WaitCount))
	g.waitDuration.Set(stats.WaitDuration.Seconds())
	return nil
}

// RunPoolStats samples the connection pool into the journal gauges every
// interval until ctx is done.
func RunPoolStats(ctx context.Context, db *DB, interval time.Duration, logger *slog.Logger) {
	if db == nil || interval <= 0 {
		return
	}
	runPoolStats(ctx, db, interval, defaultPoolGauges, logger)
}

func runPoolStats(ctx context.Context, db statsProvider, interval time.Duration, g poolGauges, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := collectPoolStats(db, g); err != nil {
		logger.Warn("failed to collect initial db pool stats", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("db pool stats sampler stopped", "cause", "context_done")
			return
		case <-ticker.C:
			if err := collectPoolStats(db, g); err != nil {
				logger.Warn("failed to collect db pool stats", "error", err)
			}
		}
	}
}
