package ygggo_dbconn

import (
	"context"
	"fmt"
	"log/slog"
)

// startQueryTimer starts timing query. The returned func ends the
// measurement and logs the query when it exceeded a slow query threshold;
// thresholds are read when it runs.
func (db *DB) startQueryTimer(ctx context.Context, query string) func() {
	start := db.clock.Now()
	return func() {
		elapsed := db.clock.Now().Sub(start)
		db.metrics.recordQueryDuration(ctx, elapsed)

		if !db.settings.GetBool(KeySlowQueryLogEnable) {
			return
		}
		ms := elapsed.Milliseconds()
		level, slow := classifySlowQuery(ms,
			db.settings.GetInt(KeySlowQueryErrorTime),
			db.settings.GetInt(KeySlowQueryWarningTime),
		)
		if !slow {
			return
		}
		db.logger.LogAttrs(ctx, level, fmt.Sprintf("SQL query took %dms: %s", ms, query),
			slog.String("query", query),
			slog.Int64("duration_ms", ms),
		)
		db.metrics.recordSlowQuery(ctx, level)
	}
}

// classifySlowQuery returns the severity for a query that ran for ms
// milliseconds. The error threshold takes precedence.
func classifySlowQuery(ms int64, errorMS, warningMS int) (slog.Level, bool) {
	switch {
	case ms > int64(errorMS):
		return slog.LevelError, true
	case ms > int64(warningMS):
		return slog.LevelWarn, true
	default:
		return 0, false
	}
}
