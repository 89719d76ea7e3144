// Package storetest provides an in-memory core.Store for engine tests. It
// understands the statements the mapping engine renders itself
// (SELECT * / SELECT count(*) with an optional conjunction of equality
// predicates and a LIMIT) and answers anything else from canned results.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// ErrDuplicate is returned by Insert when a unique column set collides.
var ErrDuplicate = errors.New("duplicate entry")

// Store is an in-memory core.Store. It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	tables     map[string]*table
	canned     map[string][]*row.Row
	failures   map[string]error
	statements []string
	txDepth    int
}

type table struct {
	rows      []*row.Row
	keyColumn string
	nextID    int64
	unique    [][]string
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		tables:   make(map[string]*table),
		canned:   make(map[string][]*row.Row),
		failures: make(map[string]error),
	}
}

// AutoIncrement makes column the generated key of table.
func (s *Store) AutoIncrement(tableName, column string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(tableName).keyColumn = column
	return s
}

// Unique rejects inserts colliding with an existing row on all columns.
func (s *Store) Unique(tableName string, columns ...string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(tableName)
	t.unique = append(t.unique, columns)
	return s
}

// Seed appends rows to a table without logging statements.
func (s *Store) Seed(tableName string, rows ...*row.Row) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(tableName)
	for _, r := range rows {
		c := r.Clone()
		t.observeKey(c)
		t.rows = append(t.rows, c)
	}
	return s
}

// Canned answers query (after whitespace normalisation) with rows.
func (s *Store) Canned(query string, rows ...*row.Row) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canned[normalize(query)] = rows
	return s
}

// FailOn makes every op ("query", "insert", "update", "delete") on table
// return err. A nil err clears the failure.
func (s *Store) FailOn(op, tableName string, err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + ":" + tableName
	if err == nil {
		delete(s.failures, key)
	} else {
		s.failures[key] = err
	}
	return s
}

// Rows returns copies of a table's rows in insertion order.
func (s *Store) Rows(tableName string) []*row.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]*row.Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

// Statements returns the log of executed statements, such as
// "INSERT tartikel", "QUERY SELECT * FROM tartikel" or "COMMIT".
func (s *Store) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.statements))
	copy(out, s.statements)
	return out
}

// ResetStatements clears the statement log.
func (s *Store) ResetStatements() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements = nil
}

var (
	selectPattern = regexp.MustCompile(`(?is)^SELECT\s+(\*|count\(\*\)(?:\s+(?:as\s+)?(\w+))?)\s+FROM\s+(\w+)(?:\s+WHERE\s+(.+?))?(?:\s+LIMIT\s+(\d+))?$`)
	andPattern    = regexp.MustCompile(`(?i)\s+AND\s+`)
	condPattern   = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)
)

// Query answers canned queries first, then evaluates simple SELECTs.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]*row.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := normalize(query)
	s.log("QUERY " + q)
	if rows, ok := s.canned[q]; ok {
		return cloneAll(rows), nil
	}

	m := selectPattern.FindStringSubmatch(q)
	if m == nil {
		return nil, fmt.Errorf("storetest: unsupported query: %s", q)
	}
	tableName := m[3]
	if err := s.failure("query", tableName); err != nil {
		return nil, err
	}

	conds, err := parseConditions(m[4])
	if err != nil {
		return nil, err
	}

	var matched []*row.Row
	if t, ok := s.tables[tableName]; ok {
		for _, r := range t.rows {
			if matches(r, conds) {
				matched = append(matched, r.Clone())
			}
		}
	}

	if m[1] != "*" {
		alias := m[2]
		if alias == "" {
			alias = "count(*)"
		}
		matched = []*row.Row{row.FromPairs(alias, int64(len(matched)))}
	}
	if m[5] != "" {
		n, _ := strconv.Atoi(m[5])
		if n < len(matched) {
			matched = matched[:n]
		}
	}
	return matched, nil
}

// Insert appends r and returns its generated key.
func (s *Store) Insert(ctx context.Context, tableName string, r *row.Row) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(tableName, r)
}

func (s *Store) insert(tableName string, r *row.Row) (int64, error) {
	s.log("INSERT " + tableName)
	if err := s.failure("insert", tableName); err != nil {
		return 0, err
	}
	if r.Len() == 0 {
		return 0, fmt.Errorf("storetest: insert into %s without columns", tableName)
	}

	t := s.table(tableName)
	for _, cols := range t.unique {
		for _, existing := range t.rows {
			if sameOn(existing, r, cols) {
				return 0, fmt.Errorf("%w on %s %v", ErrDuplicate, tableName, cols)
			}
		}
	}

	c := r.Clone()
	var id int64
	if t.keyColumn != "" {
		v, ok := c.Get(t.keyColumn)
		if n, isInt := keyOf(v); ok && isInt && n > 0 {
			id = n
			t.observeKey(c)
		} else {
			t.nextID++
			id = t.nextID
			c.Set(t.keyColumn, row.Int(id))
		}
	}
	t.rows = append(t.rows, c)
	return id, nil
}

// Update sets the columns of r on every row matching identifier.
func (s *Store) Update(ctx context.Context, tableName string, r, identifier *row.Row) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(tableName, r, identifier)
}

func (s *Store) update(tableName string, r, identifier *row.Row) (int64, error) {
	s.log("UPDATE " + tableName)
	if err := s.failure("update", tableName); err != nil {
		return 0, err
	}
	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, existing := range t.rows {
		if matchesRow(existing, identifier) {
			existing.Merge(r)
			n++
		}
	}
	return n, nil
}

// Delete removes every row matching identifier.
func (s *Store) Delete(ctx context.Context, tableName string, identifier *row.Row) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(tableName, identifier)
}

func (s *Store) delete(tableName string, identifier *row.Row) (int64, error) {
	s.log("DELETE " + tableName)
	if err := s.failure("delete", tableName); err != nil {
		return 0, err
	}
	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}
	kept := t.rows[:0]
	var n int64
	for _, existing := range t.rows {
		if matchesRow(existing, identifier) {
			n++
			continue
		}
		kept = append(kept, existing)
	}
	t.rows = kept
	return n, nil
}

// DeleteInsert deletes the rows matching identifier, then inserts r.
func (s *Store) DeleteInsert(ctx context.Context, tableName string, r, identifier *row.Row, keyColumn string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.delete(tableName, identifier); err != nil {
		return 0, err
	}
	return s.insert(tableName, r)
}

// Upsert inserts r or, on a duplicate, updates the rows matching identifier.
func (s *Store) Upsert(ctx context.Context, tableName string, r, identifier *row.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.insert(tableName, r)
	if errors.Is(err, ErrDuplicate) {
		_, err = s.update(tableName, r, identifier)
	}
	return err
}

// MultiInsert inserts all rows or none.
func (s *Store) MultiInsert(ctx context.Context, tableName string, rows []*row.Row) error {
	return s.Transact(ctx, func(tx core.Store) error {
		for _, r := range rows {
			if _, err := tx.Insert(ctx, tableName, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// Limit appends a MySQL style LIMIT clause.
func (s *Store) Limit(query string, n int) string {
	return query + " LIMIT " + strconv.Itoa(n)
}

// Transact snapshots every table and restores the snapshot when fn fails.
// Nested calls join the outer transaction.
func (s *Store) Transact(ctx context.Context, fn func(tx core.Store) error) error {
	s.mu.Lock()
	if s.txDepth > 0 {
		s.txDepth++
		s.mu.Unlock()
		err := fn(s)
		s.mu.Lock()
		s.txDepth--
		s.mu.Unlock()
		return err
	}
	s.log("BEGIN")
	snapshot := s.snapshot()
	s.txDepth++
	s.mu.Unlock()

	err := fn(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.txDepth--
	if err != nil {
		s.tables = snapshot
		s.log("ROLLBACK")
		return err
	}
	s.log("COMMIT")
	return nil
}

// InTx reports whether a transaction is open.
func (s *Store) InTx() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txDepth > 0
}

func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{}
		s.tables[name] = t
	}
	return t
}

func (s *Store) failure(op, tableName string) error {
	return s.failures[op+":"+tableName]
}

func (s *Store) log(stmt string) {
	s.statements = append(s.statements, stmt)
}

func (s *Store) snapshot() map[string]*table {
	out := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		c := &table{keyColumn: t.keyColumn, nextID: t.nextID, unique: t.unique}
		c.rows = cloneAll(t.rows)
		out[name] = c
	}
	return out
}

func (t *table) observeKey(r *row.Row) {
	if t.keyColumn == "" {
		return
	}
	v, _ := r.Get(t.keyColumn)
	if n, ok := keyOf(v); ok && n > t.nextID {
		t.nextID = n
	}
}

func keyOf(v row.Value) (int64, bool) {
	if v.IsNull() {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Text(), 10, 64)
	return n, err == nil
}

type condition struct {
	column string
	value  string
	null   bool
}

func parseConditions(clause string) ([]condition, error) {
	if clause == "" {
		return nil, nil
	}
	var conds []condition
	for _, part := range andPattern.Split(clause, -1) {
		part = strings.TrimSpace(part)
		if part == "1" || part == "1 = 1" {
			continue
		}
		if col, ok := strings.CutSuffix(part, " IS NULL"); ok {
			conds = append(conds, condition{column: strings.TrimSpace(col), null: true})
			continue
		}
		m := condPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("storetest: unsupported condition: %s", part)
		}
		value := strings.TrimSpace(m[2])
		if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
			value = strings.ReplaceAll(value[1:len(value)-1], "''", "'")
		}
		conds = append(conds, condition{column: m[1], value: value})
	}
	return conds, nil
}

func matches(r *row.Row, conds []condition) bool {
	for _, c := range conds {
		v, _ := r.Get(c.column)
		if c.null {
			if !v.IsNull() {
				return false
			}
			continue
		}
		if v.IsNull() || v.Text() != c.value {
			return false
		}
	}
	return true
}

// matchesRow compares by canonical text, so Int(7) matches String("7").
func matchesRow(r, identifier *row.Row) bool {
	ok := true
	identifier.Each(func(col string, want row.Value) {
		got, _ := r.Get(col)
		if want.IsNull() != got.IsNull() || want.Text() != got.Text() {
			ok = false
		}
	})
	return ok
}

func sameOn(a, b *row.Row, cols []string) bool {
	for _, col := range cols {
		av, _ := a.Get(col)
		bv, ok := b.Get(col)
		if !ok || av.IsNull() || bv.IsNull() || av.Text() != bv.Text() {
			return false
		}
	}
	return true
}

func cloneAll(rows []*row.Row) []*row.Row {
	out := make([]*row.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
