package ygggo_dbconn

import (
	"errors"
	"fmt"

	mysql "github.com/go-sql-driver/mysql"
)

var (
	// ErrNotConnected is returned when no connection could be created or repaired.
	ErrNotConnected = errors.New("database connection unavailable")
	// ErrClosed is returned by every operation after Close. It matches
	// ErrNotConnected with errors.Is.
	ErrClosed = fmt.Errorf("%w: db is closed", ErrNotConnected)

	ErrNoRow            = errors.New("result set is not positioned on a row")
	ErrColumnOutOfRange = errors.New("column index out of range")
)

// mysqlErrorNumber extracts the server error number, if err carries one.
func mysqlErrorNumber(err error) (uint16, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}
