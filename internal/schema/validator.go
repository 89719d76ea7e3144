package schema

import (
	"fmt"
	"strings"

	"github.com/jtl-software/connector-components-xtc/internal/core"
)

// ColumnValidator checks mapped properties against a live table definition.
type ColumnValidator struct {
	schema *core.TableSchema
}

// NewColumnValidator creates a validator for one table.
func NewColumnValidator(schema *core.TableSchema) *ColumnValidator {
	return &ColumnValidator{schema: schema}
}

// ValidateColumns returns an error naming every column the table lacks.
func (cv *ColumnValidator) ValidateColumns(columns []string) error {
	if cv.schema == nil {
		return fmt.Errorf("schema cannot be nil")
	}

	var missing []string
	for _, c := range columns {
		if !cv.schema.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s has no column(s) %v", cv.schema.Table, missing)
	}
	return nil
}

// ValidateProperty checks that a property can be stored in the named column.
// Unknown columns are not reported here; see ValidateColumns.
func (cv *ColumnValidator) ValidateProperty(p *Property, column string) error {
	if cv.schema == nil {
		return fmt.Errorf("schema cannot be nil")
	}

	for _, c := range cv.schema.Columns {
		if !strings.EqualFold(c.Name, column) {
			continue
		}
		if !compatible(p.Kind, ColumnKind(c.Type)) {
			return fmt.Errorf("type mismatch: property %s (%s) cannot be stored in %s.%s (%s)",
				p.Name, p.Kind, cv.schema.Table, c.Name, c.Type)
		}
		return nil
	}
	return nil
}

// compatible reports whether values of a property kind survive a write to a
// column of the given kind. Text columns accept everything.
func compatible(prop, column Kind) bool {
	if column == KindString || prop == column {
		return true
	}
	switch prop {
	case KindString:
		return true
	case KindInteger:
		return column == KindFloat || column == KindBoolean
	case KindBoolean:
		return column == KindInteger
	case KindIdentity:
		return column == KindInteger
	default:
		return false
	}
}
