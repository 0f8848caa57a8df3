package ygggo_dbconn

import "context"

// TransactionStart begins a transaction on the managed connection.
//
// Each transaction call is a separate operation: another caller may run a
// statement on the same connection between them. Callers that share a DB
// must coordinate transactions themselves.
func (db *DB) TransactionStart(ctx context.Context) bool {
	return db.exec(ctx, "START TRANSACTION")
}

func (db *DB) TransactionCommit(ctx context.Context) bool {
	return db.exec(ctx, "COMMIT")
}

func (db *DB) TransactionRollback(ctx context.Context) bool {
	return db.exec(ctx, "ROLLBACK")
}

// exec runs a statement whose result is not needed and reports success.
func (db *DB) exec(ctx context.Context, statement string) bool {
	_, err := db.Query(ctx, statement)
	return err == nil
}
