package core

import (
	"context"
	"strings"
)

// TableSchema describes the columns of a database table.
type TableSchema struct {
	// Table is the name of the table.
	Table string

	// PrimaryKey is the name of the primary key column, if the table has one.
	PrimaryKey string

	// Columns contains all column definitions for the table in ordinal order.
	Columns []Column
}

// Column represents a single column in a database table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Default  any
}

// HasColumn reports whether the table declares name. Identifiers are
// compared case-insensitively since both supported stores fold them.
func (s *TableSchema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// SchemaInspector reads table definitions from a live database.
type SchemaInspector interface {
	GetSchema(ctx context.Context, table string) (*TableSchema, error)
}
