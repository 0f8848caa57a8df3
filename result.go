package ygggo_dbconn

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cast"
)

// ResultSet is a fully decoded query result together with the query text
// that produced it. It is detached from the connection.
type ResultSet struct {
	query   string
	columns []string
	rows    [][]any
	cursor  int
}

// decodeRows reads every row from rows.
func decodeRows(query string, rows Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	rs := &ResultSet{query: query, columns: cols, cursor: -1}
	for rows.Next() {
		vals, err := sqlx.SliceScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row %d: %w", len(rs.rows), err)
		}
		rs.rows = append(rs.rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Query returns the SQL text that produced the result.
func (rs *ResultSet) Query() string { return rs.query }

func (rs *ResultSet) Columns() []string { return rs.columns }

func (rs *ResultSet) RowsCount() int { return len(rs.rows) }

// Next advances to the next row. The first call positions on the first row.
func (rs *ResultSet) Next() bool {
	if rs.cursor+1 >= len(rs.rows) {
		rs.cursor = len(rs.rows)
		return false
	}
	rs.cursor++
	return true
}

// Get returns the raw driver value of column col in the current row.
func (rs *ResultSet) Get(col int) (any, error) {
	if rs.cursor < 0 || rs.cursor >= len(rs.rows) {
		return nil, ErrNoRow
	}
	row := rs.rows[rs.cursor]
	if col < 0 || col >= len(row) {
		return nil, fmt.Errorf("%w: %d of %d", ErrColumnOutOfRange, col, len(row))
	}
	v := row[col]
	// Text protocol values arrive as bytes.
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

func (rs *ResultSet) GetString(col int) (string, error) {
	v, err := rs.Get(col)
	if err != nil {
		return "", err
	}
	return cast.ToStringE(v)
}

func (rs *ResultSet) GetInt64(col int) (int64, error) {
	v, err := rs.Get(col)
	if err != nil {
		return 0, err
	}
	return cast.ToInt64E(v)
}

func (rs *ResultSet) GetUint64(col int) (uint64, error) {
	v, err := rs.Get(col)
	if err != nil {
		return 0, err
	}
	return cast.ToUint64E(v)
}

func (rs *ResultSet) GetBool(col int) (bool, error) {
	v, err := rs.Get(col)
	if err != nil {
		return false, err
	}
	return cast.ToBoolE(v)
}
