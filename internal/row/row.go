// Package row holds the untyped row object exchanged between the mapping
// engine and the persistence adapter: an ordered mapping from column name
// to a tagged scalar.
package row

import "strings"

// Row is an ordered column -> Value mapping. Columns keep the position of
// their first assignment. A nil *Row reads as empty.
type Row struct {
	cols []string
	vals map[string]Value
}

// New returns an empty row.
func New() *Row {
	return &Row{vals: make(map[string]Value)}
}

// FromPairs builds a row from alternating column names and values, which
// keeps literal rows in tests and computations short.
func FromPairs(pairs ...any) *Row {
	r := New()
	for i := 0; i+1 < len(pairs); i += 2 {
		col, _ := pairs[i].(string)
		r.Set(col, Of(pairs[i+1]))
	}
	return r
}

// Set assigns a column. An existing column keeps its position.
func (r *Row) Set(col string, v Value) {
	if r.vals == nil {
		r.vals = make(map[string]Value)
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

// Get returns the value of a column and whether it is assigned.
func (r *Row) Get(col string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.vals[col]
	return v, ok
}

// Has reports whether a column is assigned.
func (r *Row) Has(col string) bool {
	_, ok := r.Get(col)
	return ok
}

// Delete removes a column.
func (r *Row) Delete(col string) {
	if r == nil {
		return
	}
	if _, ok := r.vals[col]; !ok {
		return
	}
	delete(r.vals, col)
	for i, c := range r.cols {
		if c == col {
			r.cols = append(r.cols[:i], r.cols[i+1:]...)
			break
		}
	}
}

// Len returns the number of assigned columns.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.cols)
}

// Columns returns the column names in assignment order.
func (r *Row) Columns() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Values returns the values in column order.
func (r *Row) Values() []Value {
	if r == nil {
		return nil
	}
	out := make([]Value, 0, len(r.cols))
	for _, c := range r.cols {
		out = append(out, r.vals[c])
	}
	return out
}

// Each calls fn for every column in order.
func (r *Row) Each(fn func(col string, v Value)) {
	if r == nil {
		return
	}
	for _, c := range r.cols {
		fn(c, r.vals[c])
	}
}

// Merge copies every assigned column of other onto r.
func (r *Row) Merge(other *Row) {
	other.Each(func(col string, v Value) {
		r.Set(col, v)
	})
}

// Clone returns an independent copy.
func (r *Row) Clone() *Row {
	c := New()
	c.Merge(r)
	return c
}

// Map returns the row as plain Go values keyed by column.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, r.Len())
	r.Each(func(col string, v Value) {
		out[col] = v.Any()
	})
	return out
}

// String renders the row as col=text pairs in column order.
func (r *Row) String() string {
	var b strings.Builder
	b.WriteByte('{')
	r.Each(func(col string, v Value) {
		if b.Len() > 1 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteByte('=')
		b.WriteString(v.String())
	})
	b.WriteByte('}')
	return b.String()
}
