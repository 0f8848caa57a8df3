package ygggo_dbconn

import (
	"context"
	"log/slog"
	"os"
)

var (
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
)

// Logger returns the logger this DB writes to.
func (db *DB) Logger() *slog.Logger { return db.logger }

// logError emits an error record carrying err and, for server errors, its
// MySQL error number.
func (db *DB) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("error", err.Error()))
	if num, ok := mysqlErrorNumber(err); ok {
		attrs = append(attrs, slog.Int("error_code", int(num)))
	}
	db.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

// logQueryFailure records a query that produced no result.
func (db *DB) logQueryFailure(ctx context.Context, query string, err error) {
	db.logError(ctx, "query failed", err, slog.String("query", query))
}
