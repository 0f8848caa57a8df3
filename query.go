package ygggo_dbconn

import (
	"context"
	"fmt"
	"log/slog"
)

// Query executes raw SQL text on the managed connection and returns its
// decoded result. On any failure, including an unavailable connection, the
// failure is logged with the query text and a nil result is returned along
// with the error; a partial result is never returned.
func (db *DB) Query(ctx context.Context, query string) (*ResultSet, error) {
	ctx, span := db.startSpan(ctx, "query", query)

	db.mu.Lock()
	defer db.mu.Unlock()

	rs, err := db.queryLocked(ctx, query)
	finishSpan(span, err)
	return rs, err
}

// Queryf formats the query with fmt.Sprintf and executes it. Values are
// substituted verbatim; pass string values through EscapeString.
func (db *DB) Queryf(ctx context.Context, format string, args ...any) (*ResultSet, error) {
	return db.Query(ctx, fmt.Sprintf(format, args...))
}

func (db *DB) queryLocked(ctx context.Context, query string) (*ResultSet, error) {
	conn, err := db.acquireLocked(ctx)
	if err != nil {
		db.logQueryFailure(ctx, query, err)
		return nil, err
	}

	if db.settings.GetBool(KeySQLDebug) {
		db.logger.LogAttrs(ctx, slog.LevelDebug, "query", slog.String("query", query))
	}

	rs, err := db.timedQuery(ctx, conn, query)
	db.metrics.recordQuery(ctx, err)
	if err != nil {
		db.logQueryFailure(ctx, query, err)
		return nil, err
	}
	return rs, nil
}

func (db *DB) timedQuery(ctx context.Context, conn Connection, query string) (*ResultSet, error) {
	defer db.startQueryTimer(ctx, query)()
	return runQuery(ctx, conn, query)
}

// runQuery executes query on a fresh statement of conn.
func runQuery(ctx context.Context, conn Connection, query string) (*ResultSet, error) {
	stmt, err := conn.CreateStatement(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	rows, err := stmt.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return decodeRows(query, rows)
}
