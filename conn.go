package ygggo_dbconn

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// defaultServerTimeout is used when the server's wait_timeout cannot be read.
	defaultServerTimeout = 7200
	minServerTimeout     = 60
	keepAliveReserve     = 30

	waitTimeoutQuery = "SELECT @@wait_timeout"
)

// Options carries the collaborators of a DB. Zero values select defaults.
type Options struct {
	// Driver opens connections; defaults to a MySQLDriver.
	Driver Driver
	// Scheduler runs the keep-alive probe; defaults to a TaskScheduler
	// owned and stopped by the DB.
	Scheduler Scheduler
	Clock     clock.Clock
	Logger    *slog.Logger

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// DB owns at most one live database connection and serializes every use
// of it. The connection is created on first use, repaired or replaced when
// it goes stale, and kept alive by a scheduled probe.
type DB struct {
	settings       Settings
	driver         Driver
	scheduler      Scheduler
	ownedScheduler *TaskScheduler
	clock          clock.Clock
	logger         *slog.Logger
	metrics        *Metrics
	tracer         trace.Tracer

	// mu guards conn, generation and closed. It is held for the whole of
	// every operation that touches the connection.
	mu         sync.Mutex
	conn       Connection
	generation string
	closed     bool
}

// New returns a DB reading its connection parameters from settings. No
// connection is opened until the first operation.
func New(settings Settings, opts Options) *DB {
	db := &DB{
		settings: settings,
		driver:   opts.Driver,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  newMetrics(opts.MeterProvider),
		tracer:   newTracer(opts.TracerProvider),
	}
	if db.driver == nil {
		db.driver = &MySQLDriver{}
	}
	if db.clock == nil {
		db.clock = clock.WallClock
	}
	if db.logger == nil {
		db.logger = defaultLogger
	}
	db.scheduler = opts.Scheduler
	if db.scheduler == nil {
		db.ownedScheduler = NewTaskScheduler(db.clock, db.logger)
		db.scheduler = db.ownedScheduler
	}
	return db
}

// WithConnection acquires a working connection, calls fn with it and
// releases it on every exit path. No other operation can use or replace the
// connection while fn runs. ErrNotConnected is returned, and fn is not
// called, when no connection could be established; ErrClosed once the DB
// has been closed.
func (db *DB) WithConnection(ctx context.Context, fn func(Connection) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	conn, err := db.acquireLocked(ctx)
	if err != nil {
		return err
	}
	return fn(conn)
}

// Connected reports whether a connection is currently held. It does not
// probe or create one.
func (db *DB) Connected() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn != nil
}

// Close stops the keep-alive probe and closes the held connection. Later
// operations fail with ErrClosed and never reconnect. Closing twice is a
// no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	// Outside mu: a running probe may be waiting for it.
	db.scheduler.Cancel(pingTaskName)
	if db.ownedScheduler != nil {
		db.ownedScheduler.Stop()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var result *multierror.Error
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		db.conn = nil
		db.generation = ""
	}
	return result.ErrorOrNil()
}

// acquireLocked returns the held connection when it is valid or can be
// repaired, and otherwise replaces it with a new one. It fails with
// ErrNotConnected when no connection could be established and with
// ErrClosed after Close. db.mu must be held.
func (db *DB) acquireLocked(ctx context.Context) (Connection, error) {
	if db.closed {
		return nil, ErrClosed
	}
	if db.conn != nil && db.repairLocked(ctx) != connFailed {
		return db.conn, nil
	}
	db.connectLocked(ctx)
	if db.conn == nil {
		return nil, ErrNotConnected
	}
	return db.conn, nil
}

// connHealth is the outcome of checking the held connection.
type connHealth int

const (
	connHealthy connHealth = iota
	connRepaired
	connFailed
)

// repairLocked checks the held connection, reconnecting it in place when it
// has gone stale. A connection that cannot be repaired is closed and
// dropped. db.conn must be non-nil and db.mu held.
func (db *DB) repairLocked(ctx context.Context) connHealth {
	if db.conn.IsValid(ctx) {
		return connHealthy
	}

	db.logger.LogAttrs(ctx, slog.LevelError, "database connection is invalid, attempting to reconnect",
		slog.String("generation", db.generation),
	)

	err := db.conn.Reconnect(ctx)
	if err == nil {
		// A reconnect may come back on the server's default schema.
		err = db.conn.SetSchema(ctx, db.settings.GetString(KeySQLDatabase))
	}
	db.metrics.recordReconnect(ctx, err)
	if err != nil {
		db.logError(ctx, "database reconnect failed", err, slog.String("generation", db.generation))
		db.releaseLocked(ctx)
		return connFailed
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "database connection repaired",
		slog.String("generation", db.generation),
	)
	return connRepaired
}

// connectLocked replaces the held connection, if any, with a freshly opened
// one and re-arms the keep-alive probe. On failure no connection is held.
func (db *DB) connectLocked(ctx context.Context) {
	db.releaseLocked(ctx)

	host := db.settings.GetString(KeySQLHost)
	port := db.settings.GetInt(KeySQLPort)
	login := db.settings.GetString(KeySQLLogin)
	password := db.settings.GetString(KeySQLPassword)
	schema := db.settings.GetString(KeySQLDatabase)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := db.driver.Connect(ctx, addr, login, password)
	if err == nil {
		if err = conn.SetSchema(ctx, schema); err != nil {
			_ = conn.Close()
		}
	}
	db.metrics.recordConnect(ctx, err)
	if err != nil {
		db.logError(ctx, "database connect failed", err,
			slog.String("addr", addr),
			slog.String("schema", schema),
		)
		return
	}

	db.conn = conn
	db.generation = uuid.NewString()

	interval := keepAliveInterval(db.serverTimeoutLocked(ctx))
	db.logger.LogAttrs(ctx, slog.LevelInfo, "database connection established",
		slog.String("addr", addr),
		slog.String("schema", schema),
		slog.String("generation", db.generation),
		slog.Duration("keepalive", interval),
	)
	db.scheduler.Schedule(pingTaskName, db.clock.Now().Add(interval), interval, db.pingConnection)
}

// releaseLocked closes and drops the held connection.
func (db *DB) releaseLocked(ctx context.Context) {
	if db.conn == nil {
		return
	}
	if err := db.conn.Close(); err != nil {
		db.logger.LogAttrs(ctx, slog.LevelDebug, "closing database connection",
			slog.String("generation", db.generation),
			slog.String("error", err.Error()),
		)
	}
	db.conn = nil
	db.generation = ""
}

// serverTimeoutLocked reads the server's idle timeout in seconds from the
// held connection.
func (db *DB) serverTimeoutLocked(ctx context.Context) int {
	rs, err := runQuery(ctx, db.conn, waitTimeoutQuery)
	if err == nil && rs.Next() {
		var timeout int64
		if timeout, err = rs.GetInt64(0); err == nil && timeout > 0 {
			return int(timeout)
		}
	}
	if err != nil {
		db.logger.LogAttrs(ctx, slog.LevelDebug, "using default server timeout",
			slog.Int("timeout", defaultServerTimeout),
			slog.String("error", err.Error()),
		)
	}
	return defaultServerTimeout
}

// keepAliveInterval is the probe period for a server that drops idle
// connections after timeout seconds.
func keepAliveInterval(timeout int) time.Duration {
	if timeout < minServerTimeout {
		timeout = minServerTimeout
	}
	return time.Duration(timeout+keepAliveReserve) * time.Second
}
