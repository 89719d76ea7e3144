package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

func TestInsertGeneratesKeys(t *testing.T) {
	s := New().AutoIncrement("tartikel", "kArtikel")
	s.Seed("tartikel", row.FromPairs("kArtikel", int64(10), "cArtNr", "seed"))
	ctx := context.Background()

	id, err := s.Insert(ctx, "tartikel", row.FromPairs("cArtNr", "A"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	id, err = s.Insert(ctx, "tartikel", row.FromPairs("kArtikel", int64(20), "cArtNr", "B"))
	require.NoError(t, err)
	assert.Equal(t, int64(20), id)

	id, err = s.Insert(ctx, "tartikel", row.FromPairs("cArtNr", "C"))
	require.NoError(t, err)
	assert.Equal(t, int64(21), id)

	id, err = s.Insert(ctx, "tlog", row.FromPairs("cText", "x"))
	require.NoError(t, err)
	assert.Zero(t, id)

	assert.Len(t, s.Rows("tartikel"), 4)
}

func TestSelectEvaluation(t *testing.T) {
	s := New().Seed("tartikelsprache",
		row.FromPairs("kArtikel", int64(1), "cISO", "de", "cName", "Hose"),
		row.FromPairs("kArtikel", int64(1), "cISO", "en", "cName", "Trousers"),
		row.FromPairs("kArtikel", int64(2), "cISO", "de", "cName", "O'Neil"),
	)
	ctx := context.Background()

	rows, err := s.Query(ctx, "SELECT * FROM tartikelsprache WHERE kArtikel = 1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = s.Query(ctx, "SELECT * FROM tartikelsprache WHERE kArtikel = 1 AND cISO = 'en'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, _ := rows[0].Get("cName")
	assert.Equal(t, "Trousers", v.Text())

	rows, err = s.Query(ctx, "SELECT * FROM tartikelsprache WHERE cName = 'O''Neil'")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = s.Query(ctx, s.Limit("SELECT * FROM tartikelsprache", 2))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.Query(ctx, s.Limit("SELECT count(*) as count FROM tartikelsprache", 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, _ = rows[0].Get("count")
	assert.Equal(t, row.Int(3), v)

	_, err = s.Query(ctx, "SELECT a.* FROM a JOIN b")
	assert.ErrorContains(t, err, "unsupported query")
}

func TestCannedQueries(t *testing.T) {
	s := New().Canned("SELECT COUNT(*) AS total\n  FROM tartikel", row.FromPairs("total", int64(5)))

	rows, err := s.Query(context.Background(), "SELECT COUNT(*) AS total FROM tartikel")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, _ := rows[0].Get("total")
	assert.Equal(t, int64(5), v.Any())
}

func TestUpdateDeleteUpsert(t *testing.T) {
	s := New().Unique("tpreis", "kArtikel")
	ctx := context.Background()
	_, err := s.Insert(ctx, "tpreis", row.FromPairs("kArtikel", int64(1), "fPreis", 1.0))
	require.NoError(t, err)

	_, err = s.Insert(ctx, "tpreis", row.FromPairs("kArtikel", "1", "fPreis", 2.0))
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, s.Upsert(ctx, "tpreis", row.FromPairs("kArtikel", int64(1), "fPreis", 3.0), row.FromPairs("kArtikel", "1")))
	rows := s.Rows("tpreis")
	require.Len(t, rows, 1)
	v, _ := rows[0].Get("fPreis")
	assert.Equal(t, row.Float(3), v)

	n, err := s.Update(ctx, "tpreis", row.FromPairs("fPreis", 4.0), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Delete(ctx, "tpreis", row.FromPairs("kArtikel", int64(2)))
	require.NoError(t, err)
	assert.Zero(t, n)

	id, err := s.DeleteInsert(ctx, "tpreis", row.FromPairs("kArtikel", int64(1), "fPreis", 5.0), row.FromPairs("kArtikel", int64(1)), "")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Len(t, s.Rows("tpreis"), 1)

	assert.Equal(t, []string{"INSERT tpreis", "INSERT tpreis", "INSERT tpreis", "UPDATE tpreis", "UPDATE tpreis",
		"DELETE tpreis", "DELETE tpreis", "INSERT tpreis"}, s.Statements())
}

func TestTransactRestoresOnFailure(t *testing.T) {
	boom := errors.New("boom")
	s := New().Seed("tkategorie", row.FromPairs("cName", "keep"))
	ctx := context.Background()

	err := s.Transact(ctx, func(tx core.Store) error {
		if _, err := tx.Insert(ctx, "tkategorie", row.FromPairs("cName", "a")); err != nil {
			return err
		}
		assert.True(t, s.InTx())
		return tx.Transact(ctx, func(inner core.Store) error {
			_, err := inner.Delete(ctx, "tkategorie", nil)
			require.NoError(t, err)
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.InTx())

	rows := s.Rows("tkategorie")
	require.Len(t, rows, 1)
	v, _ := rows[0].Get("cName")
	assert.Equal(t, "keep", v.Text())
	assert.Equal(t, "ROLLBACK", s.Statements()[len(s.Statements())-1])
}

func TestMultiInsertIsAtomic(t *testing.T) {
	boom := errors.New("constraint")
	s := New().Unique("tkategorie", "cName")
	ctx := context.Background()

	err := s.MultiInsert(ctx, "tkategorie", []*row.Row{
		row.FromPairs("cName", "a"),
		row.FromPairs("cName", "a"),
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Empty(t, s.Rows("tkategorie"))

	s.FailOn("insert", "tkategorie", boom)
	err = s.MultiInsert(ctx, "tkategorie", []*row.Row{row.FromPairs("cName", "b")})
	assert.ErrorIs(t, err, boom)

	s.FailOn("insert", "tkategorie", nil)
	require.NoError(t, s.MultiInsert(ctx, "tkategorie", []*row.Row{row.FromPairs("cName", "b"), row.FromPairs("cName", "c")}))
	assert.Len(t, s.Rows("tkategorie"), 2)
}
