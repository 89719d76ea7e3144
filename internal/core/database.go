package core

import "context"

// Executor runs statements against a relational database.
type Executor interface {
	// Query executes a SELECT query and returns rows.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args ...any) (Result, error)
}

// Database is a connected relational database.
type Database interface {
	Executor

	// BeginTx starts a new transaction.
	BeginTx(ctx context.Context) (Transaction, error)

	// Driver returns the database/sql driver name ("mysql", "oracle").
	Driver() string

	// Close closes the connection pool.
	Close() error
}

// Transaction is an open database transaction.
type Transaction interface {
	Executor

	Commit() error
	Rollback() error
}

// Rows iterates over a query result.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Close() error
	Err() error
}

// Result describes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
