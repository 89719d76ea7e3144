// Package database opens the shop databases behind the persistence adapter.
// MySQL runs on go-sql-driver/mysql and Oracle on go-ora; both share the
// database/sql wrapper in this file.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

const (
	DriverMySQL  = "mysql"
	DriverOracle = "oracle"
)

// SQLDatabase implements core.Database and core.SchemaInspector on top of
// a database/sql pool.
type SQLDatabase struct {
	db     *sql.DB
	driver string
	tag    string
	closed bool
}

// Open connects to the database described by cfg.
func Open(cfg registry.DatabaseConfig) (*SQLDatabase, error) {
	switch cfg.Type {
	case DriverMySQL:
		return NewMySQLDatabase(cfg)
	case DriverOracle:
		return NewOracleDatabase(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Wrap adapts an already opened pool. driver selects the schema queries
// and the log tag.
func Wrap(db *sql.DB, driver string) *SQLDatabase {
	tag := "[SQL]"
	switch driver {
	case DriverMySQL:
		tag = "[MYSQL]"
	case DriverOracle:
		tag = "[ORACLE]"
	}
	return &SQLDatabase{db: db, driver: driver, tag: tag}
}

func openPool(driver, dsn string, cfg registry.DatabaseConfig) (*SQLDatabase, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := Wrap(db, driver)
	log.Printf("%s Connected to %s:%d/%s", d.tag, cfg.Host, cfg.Port, cfg.Database)
	return d, nil
}

// Driver returns the database/sql driver name.
func (d *SQLDatabase) Driver() string {
	return d.driver
}

// DB exposes the underlying pool.
func (d *SQLDatabase) DB() *sql.DB {
	return d.db
}

// Query executes a SELECT query and returns rows.
func (d *SQLDatabase) Query(ctx context.Context, query string, args ...any) (core.Rows, error) {
	if d.closed {
		return nil, fmt.Errorf("database is closed")
	}
	return queryOn(ctx, d.db, d.tag, query, args)
}

// Exec executes a non-query statement and returns a result.
func (d *SQLDatabase) Exec(ctx context.Context, query string, args ...any) (core.Result, error) {
	if d.closed {
		return nil, fmt.Errorf("database is closed")
	}
	return execOn(ctx, d.db, d.tag, query, args)
}

// BeginTx starts a new transaction.
func (d *SQLDatabase) BeginTx(ctx context.Context) (core.Transaction, error) {
	if d.closed {
		return nil, fmt.Errorf("database is closed")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	log.Printf("%s Transaction started", d.tag)
	return &sqlTransaction{tx: tx, tag: d.tag}, nil
}

// GetSchema reads the column definitions of a table.
func (d *SQLDatabase) GetSchema(ctx context.Context, table string) (*core.TableSchema, error) {
	if d.closed {
		return nil, fmt.Errorf("database is closed")
	}
	switch d.driver {
	case DriverMySQL:
		return mysqlSchema(ctx, d.db, table)
	case DriverOracle:
		return oracleSchema(ctx, d.db, table)
	default:
		return nil, fmt.Errorf("schema inspection is not supported for driver %s", d.driver)
	}
}

// Close closes the database connection.
func (d *SQLDatabase) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

type sqlExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryOn(ctx context.Context, ex sqlExecutor, tag, query string, args []any) (core.Rows, error) {
	log.Printf("%s Executing query: %s with args: %v", tag, query, args)
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		log.Printf("%s ERROR: Query failed: %v", tag, err)
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &sqlRows{rows: rows}, nil
}

func execOn(ctx context.Context, ex sqlExecutor, tag, query string, args []any) (core.Result, error) {
	log.Printf("%s Executing statement: %s with args: %v", tag, query, args)
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		log.Printf("%s ERROR: Exec failed: %v", tag, err)
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return result, nil
}

// sqlRows wraps sql.Rows to implement core.Rows.
type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *sqlRows) Columns() ([]string, error) {
	return r.rows.Columns()
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

// sqlTransaction wraps sql.Tx to implement core.Transaction.
type sqlTransaction struct {
	tx  *sql.Tx
	tag string
}

func (t *sqlTransaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Printf("%s Transaction committed", t.tag)
	return nil
}

func (t *sqlTransaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	log.Printf("%s Transaction rolled back", t.tag)
	return nil
}

func (t *sqlTransaction) Query(ctx context.Context, query string, args ...any) (core.Rows, error) {
	return queryOn(ctx, t.tx, t.tag, query, args)
}

func (t *sqlTransaction) Exec(ctx context.Context, query string, args ...any) (core.Result, error) {
	return execOn(ctx, t.tx, t.tag, query, args)
}
