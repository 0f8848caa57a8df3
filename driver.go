package ygggo_dbconn

import "context"

// Driver opens live connections to a database server.
type Driver interface {
	// Connect dials addr ("host:port") and authenticates. The returned
	// connection has no schema selected yet.
	Connect(ctx context.Context, addr, user, password string) (Connection, error)
}

// Connection is a single live server connection. Implementations are not
// required to be safe for concurrent use; DB serializes every call.
type Connection interface {
	IsValid(ctx context.Context) bool
	// Reconnect repairs the connection in place.
	Reconnect(ctx context.Context) error
	SetSchema(ctx context.Context, schema string) error
	Schema(ctx context.Context) (string, error)
	MetaData(ctx context.Context) (MetaData, error)
	CreateStatement(ctx context.Context) (Statement, error)
	Close() error
}

// Statement executes raw SQL text on the connection that created it.
type Statement interface {
	ExecuteQuery(ctx context.Context, query string) (Rows, error)
	Close() error
}

// Rows is the cursor returned by a statement. *sql.Rows satisfies it.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// MetaData describes the server and the client driver.
type MetaData struct {
	ProductName    string
	ProductVersion string
	DriverName     string
	DriverVersion  string
}
