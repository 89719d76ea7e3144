// Package persistence implements core.Store on a relational database. All
// values travel as bind parameters; only identifiers, quoted by the
// dialect, are rendered into SQL text.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// ErrEmptyRow is returned when a write has no columns.
var ErrEmptyRow = errors.New("row has no columns")

// Adapter implements core.Store.
type Adapter struct {
	db      core.Database
	exec    core.Executor
	dialect Dialect
	inTx    bool
}

var _ core.Store = (*Adapter)(nil)

// New creates an adapter using the dialect of db.Driver().
func New(db core.Database) (*Adapter, error) {
	d, err := DialectFor(db.Driver())
	if err != nil {
		return nil, err
	}
	return NewWithDialect(db, d), nil
}

// NewWithDialect creates an adapter with an explicit dialect.
func NewWithDialect(db core.Database, d Dialect) *Adapter {
	return &Adapter{db: db, exec: db, dialect: d}
}

// Dialect returns the adapter's dialect.
func (a *Adapter) Dialect() Dialect {
	return a.dialect
}

// Query executes a read statement and converts every result row.
func (a *Adapter) Query(ctx context.Context, query string, args ...any) ([]*row.Row, error) {
	rows, err := a.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []*row.Row
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r := row.New()
		for i, col := range cols {
			r.Set(col, row.Of(raw[i]))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// Insert writes r and returns the generated key, or 0.
func (a *Adapter) Insert(ctx context.Context, table string, r *row.Row) (int64, error) {
	return a.insert(ctx, table, r, "")
}

func (a *Adapter) insert(ctx context.Context, table string, r *row.Row, keyColumn string) (int64, error) {
	if r.Len() == 0 {
		return 0, fmt.Errorf("insert into %s: %w", table, ErrEmptyRow)
	}

	cols := make([]string, 0, r.Len())
	marks := make([]string, 0, r.Len())
	args := make([]any, 0, r.Len()+1)
	r.Each(func(col string, v row.Value) {
		cols = append(cols, a.dialect.Quote(col))
		args = append(args, a.dialect.Bind(v))
		marks = append(marks, a.dialect.Placeholder(len(args)))
	})

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		a.dialect.Quote(table), strings.Join(cols, ", "), strings.Join(marks, ", "))

	if returning := a.dialect.Returning(keyColumn, len(args)+1); returning != "" {
		var id int64
		args = append(args, sql.Out{Dest: &id})
		if _, err := a.exec.Exec(ctx, query+returning, args...); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := a.exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil
	}
	return id, nil
}

// Update sets every column of r on the rows matching identifier.
func (a *Adapter) Update(ctx context.Context, table string, r, identifier *row.Row) (int64, error) {
	if r.Len() == 0 {
		return 0, fmt.Errorf("update %s: %w", table, ErrEmptyRow)
	}

	sets := make([]string, 0, r.Len())
	args := make([]any, 0, r.Len()+identifier.Len())
	r.Each(func(col string, v row.Value) {
		args = append(args, a.dialect.Bind(v))
		sets = append(sets, a.dialect.Quote(col)+" = "+a.dialect.Placeholder(len(args)))
	})
	where, args := a.where(identifier, args)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", a.dialect.Quote(table), strings.Join(sets, ", "), where)
	return a.affected(ctx, query, args)
}

// Delete removes the rows matching identifier.
func (a *Adapter) Delete(ctx context.Context, table string, identifier *row.Row) (int64, error) {
	where, args := a.where(identifier, nil)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", a.dialect.Quote(table), where)
	return a.affected(ctx, query, args)
}

// DeleteInsert deletes the rows matching identifier and inserts r. It opens
// no transaction of its own.
func (a *Adapter) DeleteInsert(ctx context.Context, table string, r, identifier *row.Row, keyColumn string) (int64, error) {
	if _, err := a.Delete(ctx, table, identifier); err != nil {
		return 0, err
	}
	return a.insert(ctx, table, r, keyColumn)
}

// Upsert inserts r, updating the rows matching identifier instead when the
// insert hits a uniqueness constraint.
func (a *Adapter) Upsert(ctx context.Context, table string, r, identifier *row.Row) error {
	_, err := a.Insert(ctx, table, r)
	if err == nil {
		return nil
	}
	if !a.dialect.IsUniqueViolation(err) {
		return err
	}
	log.Printf("[STORE] Duplicate key on %s, updating instead", table)
	_, err = a.Update(ctx, table, r, identifier)
	return err
}

// MultiInsert inserts rows in one transaction. Inside Transact the rows join
// the surrounding transaction.
func (a *Adapter) MultiInsert(ctx context.Context, table string, rows []*row.Row) error {
	insertAll := func(s *Adapter) error {
		for _, r := range rows {
			if _, err := s.Insert(ctx, table, r); err != nil {
				return err
			}
		}
		return nil
	}
	if a.inTx {
		return insertAll(a)
	}
	return a.Transact(ctx, func(tx core.Store) error {
		return insertAll(tx.(*Adapter))
	})
}

// Limit appends the dialect's row-limit clause.
func (a *Adapter) Limit(query string, n int) string {
	return a.dialect.Limit(query, n)
}

// Transact runs fn in a transaction. Nested calls reuse the open one.
func (a *Adapter) Transact(ctx context.Context, fn func(tx core.Store) error) error {
	if a.inTx {
		return fn(a)
	}

	tx, err := a.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	bound := &Adapter{db: a.db, exec: tx, dialect: a.dialect, inTx: true}

	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("[STORE] ERROR: Rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// where renders the identifier conjunction, continuing the bind parameter
// numbering after args. Null identifier values compare with IS NULL.
func (a *Adapter) where(identifier *row.Row, args []any) (string, []any) {
	if identifier.Len() == 0 {
		return a.dialect.TrueCondition(), args
	}
	conds := make([]string, 0, identifier.Len())
	identifier.Each(func(col string, v row.Value) {
		if v.IsNull() {
			conds = append(conds, a.dialect.Quote(col)+" IS NULL")
			return
		}
		args = append(args, a.dialect.Bind(v))
		conds = append(conds, a.dialect.Quote(col)+" = "+a.dialect.Placeholder(len(args)))
	})
	return strings.Join(conds, " AND "), args
}

func (a *Adapter) affected(ctx context.Context, query string, args []any) (int64, error) {
	res, err := a.exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
