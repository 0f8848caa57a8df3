package ygggo_dbconn

import (
	"context"
	"log/slog"
	"time"
)

const pingTaskName = "ping database connection"

// Probe results recorded by pingConnection.
const (
	pingResultHealthy  = "healthy"
	pingResultRepaired = "repaired"
	pingResultFailed   = "failed"
	pingResultAbsent   = "absent"
)

// pingConnection is the keep-alive task. It checks the held connection and
// repairs it in place; a connection that cannot be repaired is dropped so
// the next operation opens a new one. It does not reschedule itself.
func (db *DB) pingConnection(now time.Time) {
	ctx := context.Background()
	db.logger.LogAttrs(ctx, slog.LevelInfo, "pinging database to keep connection alive",
		slog.Time("tick", now),
	)

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		db.metrics.recordPing(ctx, pingResultAbsent)
		return
	}

	switch db.repairLocked(ctx) {
	case connHealthy:
		db.metrics.recordPing(ctx, pingResultHealthy)
	case connRepaired:
		db.metrics.recordPing(ctx, pingResultRepaired)
	default:
		db.metrics.recordPing(ctx, pingResultFailed)
	}
}
