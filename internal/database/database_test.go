package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

func newMock(t *testing.T, driver string) (*SQLDatabase, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Wrap(db, driver), mock
}

func TestQueryAndExec(t *testing.T) {
	db, mock := newMock(t, DriverMySQL)
	ctx := context.Background()

	mock.ExpectQuery("SELECT kArtikel, cArtNr FROM tartikel").
		WillReturnRows(sqlmock.NewRows([]string{"kArtikel", "cArtNr"}).AddRow(int64(1), "A-1"))
	mock.ExpectExec("DELETE FROM tartikel").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := db.Query(ctx, "SELECT kArtikel, cArtNr FROM tartikel")
	require.NoError(t, err)
	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"kArtikel", "cArtNr"}, cols)

	require.True(t, rows.Next())
	var id int64
	var sku string
	require.NoError(t, rows.Scan(&id, &sku))
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "A-1", sku)
	assert.False(t, rows.Next())
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	res, err := db.Exec(ctx, "DELETE FROM tartikel WHERE kArtikel = ?", int64(1))
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecWrapsDriverErrors(t *testing.T) {
	db, mock := newMock(t, DriverMySQL)
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	mock.ExpectExec("INSERT INTO tartikel").WillReturnError(dup)

	_, err := db.Exec(context.Background(), "INSERT INTO tartikel (kArtikel) VALUES (?)", int64(1))
	require.Error(t, err)

	var myErr *mysql.MySQLError
	require.True(t, errors.As(err, &myErr))
	assert.Equal(t, uint16(1062), myErr.Number)
}

func TestTransactions(t *testing.T) {
	db, mock := newMock(t, DriverOracle)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `UPDATE "tartikel" SET "cArtNr" = :1`, "B")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = db.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClosedDatabase(t *testing.T) {
	db, mock := newMock(t, DriverMySQL)
	mock.ExpectClose()

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	ctx := context.Background()
	_, err := db.Query(ctx, "SELECT 1")
	assert.ErrorContains(t, err, "database is closed")
	_, err = db.Exec(ctx, "SELECT 1")
	assert.ErrorContains(t, err, "database is closed")
	_, err = db.BeginTx(ctx)
	assert.ErrorContains(t, err, "database is closed")
	_, err = db.GetSchema(ctx, "tartikel")
	assert.ErrorContains(t, err, "database is closed")
}

func TestMySQLSchema(t *testing.T) {
	db, mock := newMock(t, DriverMySQL)

	mock.ExpectQuery(regexp.QuoteMeta(mysqlColumnsQuery)).
		WithArgs("tartikel").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_KEY"}).
			AddRow("kArtikel", "int(10) unsigned", "NO", nil, "PRI").
			AddRow("cArtNr", "varchar(255)", "YES", "", "").
			AddRow("nAktiv", "tinyint(1)", "NO", "1", ""))

	schema, err := db.GetSchema(context.Background(), "tartikel")
	require.NoError(t, err)
	assert.Equal(t, "tartikel", schema.Table)
	assert.Equal(t, "kArtikel", schema.PrimaryKey)
	require.Len(t, schema.Columns, 3)
	assert.False(t, schema.Columns[0].Nullable)
	assert.Nil(t, schema.Columns[0].Default)
	assert.True(t, schema.Columns[1].Nullable)
	assert.Equal(t, "1", schema.Columns[2].Default)
	assert.True(t, schema.HasColumn("NAKTIV"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSchemaUnknownTable(t *testing.T) {
	db, mock := newMock(t, DriverMySQL)
	mock.ExpectQuery(regexp.QuoteMeta(mysqlColumnsQuery)).
		WithArgs("tmissing").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_KEY"}))

	_, err := db.GetSchema(context.Background(), "tmissing")
	assert.ErrorContains(t, err, "table tmissing does not exist")
}

func TestOracleSchema(t *testing.T) {
	db, mock := newMock(t, DriverOracle)

	mock.ExpectQuery(regexp.QuoteMeta(oracleColumnsQuery)).
		WithArgs("TARTIKEL").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "DATA_PRECISION", "DATA_SCALE", "NULLABLE"}).
			AddRow("KARTIKEL", "NUMBER", int64(10), int64(0), "N").
			AddRow("FPREIS", "NUMBER", int64(15), int64(4), "Y").
			AddRow("CARTNR", "VARCHAR2", nil, nil, "Y"))
	mock.ExpectQuery(regexp.QuoteMeta(oraclePrimaryKeyQuery)).
		WithArgs("TARTIKEL").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("KARTIKEL"))

	schema, err := db.GetSchema(context.Background(), "TARTIKEL")
	require.NoError(t, err)
	assert.Equal(t, "KARTIKEL", schema.PrimaryKey)
	require.Len(t, schema.Columns, 3)
	assert.Equal(t, "INTEGER", schema.Columns[0].Type)
	assert.Equal(t, "NUMBER", schema.Columns[1].Type)
	assert.Equal(t, "VARCHAR2", schema.Columns[2].Type)
	assert.True(t, schema.Columns[2].Nullable)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOracleSchemaWithoutPrimaryKey(t *testing.T) {
	db, mock := newMock(t, DriverOracle)

	mock.ExpectQuery(regexp.QuoteMeta(oracleColumnsQuery)).
		WithArgs("TLOG").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "DATA_PRECISION", "DATA_SCALE", "NULLABLE"}).
			AddRow("CTEXT", "CLOB", nil, nil, "Y"))
	mock.ExpectQuery(regexp.QuoteMeta(oraclePrimaryKeyQuery)).
		WithArgs("TLOG").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}))

	schema, err := db.GetSchema(context.Background(), "TLOG")
	require.NoError(t, err)
	assert.Empty(t, schema.PrimaryKey)
}

func TestConnectionStrings(t *testing.T) {
	cfg := registry.DatabaseConfig{
		Host:              "db.internal",
		Port:              3306,
		Database:          "shop",
		Username:          "shop",
		Password:          "secret",
		ConnectionTimeout: 5 * time.Second,
	}

	parsed, err := mysql.ParseDSN(mysqlDSN(cfg))
	require.NoError(t, err)
	assert.Equal(t, "shop", parsed.User)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.Equal(t, "db.internal:3306", parsed.Addr)
	assert.Equal(t, "shop", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)
	assert.Equal(t, 5*time.Second, parsed.Timeout)

	cfg.Port = 1521
	cfg.Database = "XEPDB1"
	url := oracleURL(cfg)
	assert.Contains(t, url, "db.internal:1521")
	assert.Contains(t, url, "XEPDB1")
	assert.Contains(t, url, "TIMEOUT=5")
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(registry.DatabaseConfig{Type: "sqlite"})
	assert.ErrorContains(t, err, "unsupported database type: sqlite")
}
