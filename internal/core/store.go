package core

import (
	"context"

	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// Store defines the persistence adapter the mapping engine writes through.
// Every statement it issues is parameterized; only table and column
// identifiers are rendered into SQL text.
type Store interface {
	// Query executes a read statement and returns the rows in store order.
	Query(ctx context.Context, query string, args ...any) ([]*row.Row, error)

	// Insert writes one row and returns the generated key, or 0 when the
	// store did not issue one.
	Insert(ctx context.Context, table string, r *row.Row) (int64, error)

	// Update sets every column of r on the rows matching identifier.
	// An empty identifier matches every row of the table.
	Update(ctx context.Context, table string, r, identifier *row.Row) (int64, error)

	// Delete removes the rows matching identifier.
	// An empty identifier matches every row of the table.
	Delete(ctx context.Context, table string, identifier *row.Row) (int64, error)

	// DeleteInsert deletes the rows matching identifier, then inserts r.
	// keyColumn names the generated key column for stores that can only
	// report it through a RETURNING clause; it may be empty.
	DeleteInsert(ctx context.Context, table string, r, identifier *row.Row, keyColumn string) (int64, error)

	// Upsert inserts r and falls back to an update keyed by identifier when
	// the insert violates a uniqueness constraint.
	Upsert(ctx context.Context, table string, r, identifier *row.Row) error

	// MultiInsert inserts all rows inside one transaction.
	MultiInsert(ctx context.Context, table string, rows []*row.Row) error

	// Limit appends the store's row-limit clause to query.
	Limit(query string, n int) string

	// Transact runs fn against a transaction-bound store. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	Transact(ctx context.Context, fn func(tx Store) error) error
}
