// Package ygggo_dbconn manages a single long-lived MySQL connection shared by
// every caller in a process.
//
// # Overview
//
// A DB owns at most one live connection and serializes every use of it:
//   - The connection is opened lazily on first use with the configured
//     host, port, login, password and schema
//   - A stale connection is repaired in place, and replaced when it cannot be
//   - A keep-alive probe runs every max(wait_timeout, 60)+30 seconds,
//     just after the server would have dropped an idle connection, and
//     repairs the connection in place when it has
//   - Queries slower than configurable thresholds are logged
//
// Query failures are logged and surface as a nil result; callers that only
// need a yes/no answer use the bool-returning session operations.
//
// # Quick Start
//
//	import dbc "github.com/yggai/ygggo_dbconn"
//
//	settings, err := dbc.NewSettings("ygggo_dbconn.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	db := dbc.New(settings, dbc.Options{})
//	defer db.Close()
//
//	rs, err := db.Query(ctx, "SELECT id, name FROM users WHERE name = '"+dbc.EscapeString(name)+"'")
//	if err != nil {
//		return err
//	}
//	for rs.Next() {
//		id, _ := rs.GetInt64(0)
//		name, _ := rs.GetString(1)
//	}
//
// # Configuration
//
// Settings are read through viper on every operation. Keys are grouped under
// network.* and logging.*; environment variables use the prefix
// YGGGO_DBCONN_ (e.g., YGGGO_DBCONN_NETWORK_SQL_HOST).
//
// # Observability
//
//   - Structured JSON logging through log/slog
//   - OpenTelemetry spans for queries, and otelsql spans for driver calls
//   - OpenTelemetry counters for connects, reconnects, probes and queries
//
// For a command line client, see cmd/ygggo_dbconn.
package ygggo_dbconn

// Version returns the current library version.
func Version() string { return instrumentationVersion }
