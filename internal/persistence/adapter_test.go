package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/sijms/go-ora/v2/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/database"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

func newMySQLAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a, err := New(database.Wrap(db, database.DriverMySQL))
	require.NoError(t, err)
	return a, mock
}

var created = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func TestInsertBindsValues(t *testing.T) {
	a, mock := newMySQLAdapter(t)

	mock.ExpectExec("INSERT INTO `tartikel` (`cArtNr`, `fPreis`, `nAktiv`, `dErstellt`, `cNotiz`, `nLagerbestand`) VALUES (?, ?, ?, ?, ?, ?)").
		WithArgs("A-1", "9.99", true, "2024-01-02 03:04:05", nil, int64(12)).
		WillReturnResult(sqlmock.NewResult(42, 1))

	r := row.New()
	r.Set("cArtNr", row.String("A-1"))
	r.Set("fPreis", row.Float(9.99))
	r.Set("nAktiv", row.Bool(true))
	r.Set("dErstellt", row.Time(created))
	r.Set("cNotiz", row.Null())
	r.Set("nLagerbestand", row.Int(12))

	id, err := a.Insert(context.Background(), "tartikel", r)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRejectsEmptyRow(t *testing.T) {
	a, _ := newMySQLAdapter(t)
	_, err := a.Insert(context.Background(), "tartikel", row.New())
	assert.ErrorIs(t, err, ErrEmptyRow)
}

func TestUpdate(t *testing.T) {
	a, mock := newMySQLAdapter(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE `tartikel` SET `cArtNr` = ?, `nAktiv` = ? WHERE `kArtikel` = ?").
		WithArgs("B-2", false, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `tartikel` SET `nAktiv` = ? WHERE 1").
		WithArgs(false).
		WillReturnResult(sqlmock.NewResult(0, 30))

	n, err := a.Update(ctx, "tartikel",
		row.FromPairs("cArtNr", "B-2", "nAktiv", false),
		row.FromPairs("kArtikel", int64(7)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = a.Update(ctx, "tartikel", row.FromPairs("nAktiv", false), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	a, mock := newMySQLAdapter(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM `tartikelsprache` WHERE `kArtikel` = ? AND `kSprache` IS NULL").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `tartikelsprache` WHERE 1").
		WillReturnResult(sqlmock.NewResult(0, 9))

	n, err := a.Delete(ctx, "tartikelsprache", row.FromPairs("kArtikel", int64(7), "kSprache", nil))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = a.Delete(ctx, "tartikelsprache", row.New())
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteInsert(t *testing.T) {
	a, mock := newMySQLAdapter(t)

	mock.ExpectExec("DELETE FROM `tpreis` WHERE `kArtikel` = ?").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `tpreis` (`kArtikel`, `fVKNetto`) VALUES (?, ?)").
		WithArgs(int64(7), "12.5").
		WillReturnResult(sqlmock.NewResult(15, 1))

	id, err := a.DeleteInsert(context.Background(), "tpreis",
		row.FromPairs("kArtikel", int64(7), "fVKNetto", 12.5),
		row.FromPairs("kArtikel", int64(7)), "kPreis")
	require.NoError(t, err)
	assert.Equal(t, int64(15), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertFallsBackOnDuplicateKey(t *testing.T) {
	a, mock := newMySQLAdapter(t)

	mock.ExpectExec("INSERT INTO `tartikel` (`kArtikel`, `cArtNr`) VALUES (?, ?)").
		WithArgs(int64(7), "A-1").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '7'"})
	mock.ExpectExec("UPDATE `tartikel` SET `kArtikel` = ?, `cArtNr` = ? WHERE `kArtikel` = ?").
		WithArgs(int64(7), "A-1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.Upsert(context.Background(), "tartikel",
		row.FromPairs("kArtikel", int64(7), "cArtNr", "A-1"),
		row.FromPairs("kArtikel", int64(7)))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPropagatesOtherErrors(t *testing.T) {
	a, mock := newMySQLAdapter(t)
	denied := &mysql.MySQLError{Number: 1142, Message: "INSERT command denied"}

	mock.ExpectExec("INSERT INTO `tartikel` (`kArtikel`) VALUES (?)").
		WithArgs(int64(7)).
		WillReturnError(denied)

	err := a.Upsert(context.Background(), "tartikel", row.FromPairs("kArtikel", int64(7)), row.FromPairs("kArtikel", int64(7)))
	assert.ErrorIs(t, err, denied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiInsertCommits(t *testing.T) {
	a, mock := newMySQLAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `tkategorie` (`cName`) VALUES (?)").WithArgs("a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `tkategorie` (`cName`) VALUES (?)").WithArgs("b").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := a.MultiInsert(context.Background(), "tkategorie", []*row.Row{
		row.FromPairs("cName", "a"),
		row.FromPairs("cName", "b"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiInsertRollsBackWholeBatch(t *testing.T) {
	a, mock := newMySQLAdapter(t)
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `tkategorie` (`cName`) VALUES (?)").WithArgs("a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `tkategorie` (`cName`) VALUES (?)").WithArgs("b").WillReturnError(boom)
	mock.ExpectRollback()

	err := a.MultiInsert(context.Background(), "tkategorie", []*row.Row{
		row.FromPairs("cName", "a"),
		row.FromPairs("cName", "b"),
		row.FromPairs("cName", "c"),
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiInsertJoinsOpenTransaction(t *testing.T) {
	a, mock := newMySQLAdapter(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `tkategorie` WHERE 1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO `tkategorie` (`cName`) VALUES (?)").WithArgs("a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := a.Transact(ctx, func(tx core.Store) error {
		if _, err := tx.Delete(ctx, "tkategorie", nil); err != nil {
			return err
		}
		return tx.MultiInsert(ctx, "tkategorie", []*row.Row{row.FromPairs("cName", "a")})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryConvertsRows(t *testing.T) {
	a, mock := newMySQLAdapter(t)

	mock.ExpectQuery("SELECT * FROM `tartikel` WHERE `kArtikel` = ?").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"kArtikel", "fPreis", "cNotiz", "dErstellt"}).
			AddRow(int64(7), []byte("9.9900"), nil, created).
			AddRow(int64(8), []byte("1.5"), "x", nil))

	rows, err := a.Query(context.Background(), "SELECT * FROM `tartikel` WHERE `kArtikel` = ?", int64(7))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, []string{"kArtikel", "fPreis", "cNotiz", "dErstellt"}, first.Columns())
	v, _ := first.Get("kArtikel")
	assert.Equal(t, row.Int(7), v)
	v, _ = first.Get("fPreis")
	assert.Equal(t, "9.9900", v.Text())
	v, _ = first.Get("cNotiz")
	assert.True(t, v.IsNull())
	v, _ = first.Get("dErstellt")
	assert.True(t, v.Equal(row.Time(created)))

	v, _ = rows[1].Get("cNotiz")
	assert.Equal(t, "x", v.Text())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryPropagatesErrors(t *testing.T) {
	a, mock := newMySQLAdapter(t)
	mock.ExpectQuery("SELECT * FROM `tmissing`").WillReturnError(errors.New("table doesn't exist"))

	_, err := a.Query(context.Background(), "SELECT * FROM `tmissing`")
	assert.ErrorContains(t, err, "table doesn't exist")
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(database.Wrap(db, "sqlite"))
	assert.ErrorIs(t, err, ErrUnknownDialect)
}

// recordingDB captures statements for dialects sqlmock cannot emulate.
type recordingDB struct {
	queries []string
	args    [][]any
	key     int64
}

func (d *recordingDB) Query(ctx context.Context, query string, args ...any) (core.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *recordingDB) Exec(ctx context.Context, query string, args ...any) (core.Result, error) {
	d.queries = append(d.queries, query)
	d.args = append(d.args, args)
	for _, arg := range args {
		if out, ok := arg.(sql.Out); ok {
			*out.Dest.(*int64) = d.key
		}
	}
	return sqlmock.NewResult(0, 1), nil
}

func (d *recordingDB) BeginTx(ctx context.Context) (core.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (d *recordingDB) Driver() string { return "oracle" }

func (d *recordingDB) Close() error { return nil }

func TestOracleStatements(t *testing.T) {
	db := &recordingDB{key: 99}
	a, err := New(db)
	require.NoError(t, err)
	ctx := context.Background()

	id, err := a.DeleteInsert(ctx, "tartikel",
		row.FromPairs("cArtNr", "A-1", "nAktiv", true),
		row.FromPairs("cArtNr", "A-1"), "kArtikel")
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)

	_, err = a.Update(ctx, "tartikel", row.FromPairs("nAktiv", false), nil)
	require.NoError(t, err)

	require.Len(t, db.queries, 3)
	assert.Equal(t, `DELETE FROM "tartikel" WHERE "cArtNr" = :1`, db.queries[0])
	assert.Equal(t, `INSERT INTO "tartikel" ("cArtNr", "nAktiv") VALUES (:1, :2) RETURNING "kArtikel" INTO :3`, db.queries[1])
	assert.Equal(t, []any{"A-1", int64(1)}, db.args[1][:2])
	assert.Equal(t, `UPDATE "tartikel" SET "nAktiv" = :1 WHERE 1 = 1`, db.queries[2])
	assert.Equal(t, []any{int64(0)}, db.args[2])
}

func TestDialects(t *testing.T) {
	my, ora := MySQL{}, Oracle{}

	assert.Equal(t, "SELECT * FROM t LIMIT 5", my.Limit("SELECT * FROM t", 5))
	assert.Equal(t, "SELECT * FROM t FETCH FIRST 5 ROWS ONLY", ora.Limit("SELECT * FROM t", 5))
	assert.Equal(t, "`we``ird`", my.Quote("we`ird"))
	assert.Equal(t, `"we""ird"`, ora.Quote(`we"ird`))
	assert.Equal(t, "?", my.Placeholder(3))
	assert.Equal(t, ":3", ora.Placeholder(3))
	assert.Empty(t, my.Returning("kArtikel", 1))
	assert.Empty(t, ora.Returning("", 1))

	assert.True(t, my.IsUniqueViolation(fmt.Errorf("failed: %w", &mysql.MySQLError{Number: 1062})))
	assert.False(t, my.IsUniqueViolation(&mysql.MySQLError{Number: 1452}))
	assert.True(t, ora.IsUniqueViolation(fmt.Errorf("failed: %w", &network.OracleError{ErrCode: 1})))
	assert.False(t, ora.IsUniqueViolation(errors.New("ORA-00001")))

	assert.Nil(t, my.Bind(row.Null()))
	assert.Equal(t, "0.1", my.Bind(row.Float(0.1)))
	assert.Equal(t, true, my.Bind(row.Bool(true)))
	assert.Equal(t, int64(0), ora.Bind(row.Bool(false)))
}
