package ygggo_dbconn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const charsetQuery = "SELECT @@character_set_database, @@collation_database"

// DatabaseSchema returns the schema selected on the connection, or "" when
// it cannot be read.
func (db *DB) DatabaseSchema(ctx context.Context) string {
	var schema string
	err := db.WithConnection(ctx, func(c Connection) error {
		var err error
		schema, err = c.Schema(ctx)
		return err
	})
	if err != nil {
		db.logError(ctx, "reading database schema failed", err)
		return ""
	}
	return schema
}

// DatabaseVersion returns the server product name and version, e.g.
// "MariaDB 10.11.6-MariaDB".
func (db *DB) DatabaseVersion(ctx context.Context) string {
	md, ok := db.metaData(ctx)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s %s", md.ProductName, md.ProductVersion)
}

// DriverVersion returns the client driver name and version.
func (db *DB) DriverVersion(ctx context.Context) string {
	md, ok := db.metaData(ctx)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s %s", md.DriverName, md.DriverVersion)
}

func (db *DB) metaData(ctx context.Context) (MetaData, bool) {
	var md MetaData
	err := db.WithConnection(ctx, func(c Connection) error {
		var err error
		md, err = c.MetaData(ctx)
		return err
	})
	if err != nil {
		db.logError(ctx, "reading database metadata failed", err)
		return MetaData{}, false
	}
	return md, true
}

// CheckCharset warns about any database charset or collation that is not a
// utf8 variant. It only logs.
func (db *DB) CheckCharset(ctx context.Context) {
	rs, err := db.Query(ctx, charsetQuery)
	if err != nil || rs.RowsCount() == 0 {
		return
	}

	foundError := false
	for rs.Next() {
		charset, err := rs.GetString(0)
		if err != nil {
			db.logError(ctx, "reading database charset failed", err)
			continue
		}
		collation, err := rs.GetString(1)
		if err != nil {
			db.logError(ctx, "reading database collation failed", err)
			continue
		}
		if strings.HasPrefix(charset, "utf8") && strings.HasPrefix(collation, "utf8") {
			continue
		}
		foundError = true
		db.logger.LogAttrs(ctx, slog.LevelWarn,
			fmt.Sprintf("Unexpected character_set or collation setting in database: %s: %s. Expected utf8*.", charset, collation),
			slog.String("charset", charset),
			slog.String("collation", collation),
		)
	}

	if foundError {
		db.logger.Warn("Non utf8 charset can result in data reads and writes being corrupted!")
		db.logger.Warn("Non utf8 collation can be indicative that the database was not set up per required specifications.")
	}
}

// SetAutoCommit sets the session autocommit mode. It reports whether the
// statement succeeded.
func (db *DB) SetAutoCommit(ctx context.Context, value bool) bool {
	v := 0
	if value {
		v = 1
	}
	_, err := db.Queryf(ctx, "SET @@autocommit = %d", v)
	return err == nil
}

// GetAutoCommit reports whether autocommit is on. Any failure reads as off.
func (db *DB) GetAutoCommit(ctx context.Context) bool {
	rs, err := db.Query(ctx, "SELECT @@autocommit")
	if err != nil || !rs.Next() {
		return false
	}
	v, err := rs.GetUint64(0)
	return err == nil && v == 1
}
