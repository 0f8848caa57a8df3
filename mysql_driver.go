package ygggo_dbconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const mysqlModulePath = "github.com/go-sql-driver/mysql"

// MySQLDriver connects to MySQL and MariaDB servers through
// go-sql-driver/mysql. Driver calls are traced with otelsql.
type MySQLDriver struct {
	// DriverName is the database/sql driver to open; "mysql" when empty.
	DriverName string
	// Timeout bounds dialing; zero leaves the driver default.
	Timeout time.Duration
	// Params are extra DSN parameters, e.g. "charset": "utf8mb4".
	Params map[string]string

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// DSN returns the data source name used to reach addr.
func (d *MySQLDriver) DSN(addr, user, password string) string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.User = user
	cfg.Passwd = password
	cfg.Timeout = d.Timeout
	if len(d.Params) > 0 {
		cfg.Params = make(map[string]string, len(d.Params))
		for k, v := range d.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

func (d *MySQLDriver) driverName() string {
	if d.DriverName == "" {
		return "mysql"
	}
	return d.DriverName
}

// Connect implements Driver.
func (d *MySQLDriver) Connect(ctx context.Context, addr, user, password string) (Connection, error) {
	opts := []otelsql.Option{
		otelsql.WithAttributes(attribute.String("db.system", "mysql")),
	}
	if d.TracerProvider != nil {
		opts = append(opts, otelsql.WithTracerProvider(d.TracerProvider))
	}
	if d.MeterProvider != nil {
		opts = append(opts, otelsql.WithMeterProvider(d.MeterProvider))
	}

	db, err := otelsql.Open(d.driverName(), d.DSN(addr, user, password), opts...)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", addr, err)
	}
	// One pinned connection; the pool only ever holds the handle's replacement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &mysqlConnection{db: db, conn: conn}, nil
}

// mysqlConnection pins a single *sql.Conn out of a one-connection pool.
type mysqlConnection struct {
	db   *sql.DB
	conn *sql.Conn
}

func (c *mysqlConnection) IsValid(ctx context.Context) bool {
	return c.conn != nil && c.conn.PingContext(ctx) == nil
}

func (c *mysqlConnection) Reconnect(ctx context.Context) error {
	if c.conn != nil {
		// Returning ErrBadConn makes database/sql discard the driver
		// connection instead of pooling it.
		_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
		c.conn = nil
	}
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("reconnecting: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("reconnecting: %w", err)
	}
	c.conn = conn
	return nil
}

func (c *mysqlConnection) SetSchema(ctx context.Context, schema string) error {
	if c.conn == nil {
		return sql.ErrConnDone
	}
	if _, err := c.conn.ExecContext(ctx, "USE "+quoteIdentifier(schema)); err != nil {
		return fmt.Errorf("selecting schema %q: %w", schema, err)
	}
	return nil
}

func (c *mysqlConnection) Schema(ctx context.Context) (string, error) {
	if c.conn == nil {
		return "", sql.ErrConnDone
	}
	var schema sql.NullString
	if err := c.conn.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&schema); err != nil {
		return "", fmt.Errorf("reading schema: %w", err)
	}
	return schema.String, nil
}

func (c *mysqlConnection) MetaData(ctx context.Context) (MetaData, error) {
	if c.conn == nil {
		return MetaData{}, sql.ErrConnDone
	}
	var version string
	if err := c.conn.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return MetaData{}, fmt.Errorf("reading server version: %w", err)
	}
	product := "MySQL"
	if strings.Contains(strings.ToLower(version), "mariadb") {
		product = "MariaDB"
	}
	return MetaData{
		ProductName:    product,
		ProductVersion: version,
		DriverName:     "go-sql-driver/mysql",
		DriverVersion:  mysqlDriverVersion(),
	}, nil
}

func (c *mysqlConnection) CreateStatement(context.Context) (Statement, error) {
	if c.conn == nil {
		return nil, sql.ErrConnDone
	}
	return &mysqlStatement{conn: c.conn}, nil
}

func (c *mysqlConnection) Close() error {
	var result *multierror.Error
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		c.conn = nil
	}
	if err := c.db.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// mysqlStatement runs text-protocol queries; no server-side prepare.
type mysqlStatement struct {
	conn *sql.Conn
}

func (s *mysqlStatement) ExecuteQuery(ctx context.Context, query string) (Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *mysqlStatement) Close() error { return nil }

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// mysqlDriverVersion reports the linked go-sql-driver/mysql module version.
func mysqlDriverVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == mysqlModulePath {
			return dep.Version
		}
	}
	return "unknown"
}
