package persistence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/sijms/go-ora/v2/network"

	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// ErrUnknownDialect is returned for drivers without a dialect.
var ErrUnknownDialect = errors.New("unknown SQL dialect")

// Dialect renders the driver-specific parts of a statement.
type Dialect interface {
	Name() string

	// Quote quotes a table or column identifier.
	Quote(ident string) string

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// Limit appends a row-limit clause.
	Limit(query string, n int) string

	// TrueCondition is the predicate used for an empty identifier.
	TrueCondition() string

	// Bind converts a row value into a driver argument.
	Bind(v row.Value) any

	// Returning renders a clause reporting the generated key of an insert
	// through bind parameter n, or "" when the driver reports it through
	// LastInsertId.
	Returning(column string, n int) string

	// IsUniqueViolation reports whether err was raised by a uniqueness
	// constraint.
	IsUniqueViolation(err error) bool
}

// DialectFor returns the dialect of a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL{}, nil
	case "oracle":
		return Oracle{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, driver)
	}
}

// MySQL is the dialect of go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) Limit(query string, n int) string {
	return query + " LIMIT " + strconv.Itoa(n)
}

func (MySQL) TrueCondition() string { return "1" }

func (MySQL) Bind(v row.Value) any { return bindValue(v) }

func (MySQL) Returning(string, int) string { return "" }

// IsUniqueViolation matches error 1062 (ER_DUP_ENTRY).
func (MySQL) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// Oracle is the dialect of sijms/go-ora.
type Oracle struct{}

func (Oracle) Name() string { return "oracle" }

func (Oracle) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (Oracle) Placeholder(n int) string { return ":" + strconv.Itoa(n) }

func (Oracle) Limit(query string, n int) string {
	return query + " FETCH FIRST " + strconv.Itoa(n) + " ROWS ONLY"
}

func (Oracle) TrueCondition() string { return "1 = 1" }

// Bind stores booleans as 1/0 since NUMBER(1) is the usual flag column.
func (Oracle) Bind(v row.Value) any {
	if b, ok := v.Boolean(); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return bindValue(v)
}

func (o Oracle) Returning(column string, n int) string {
	if column == "" {
		return ""
	}
	return " RETURNING " + o.Quote(column) + " INTO " + o.Placeholder(n)
}

// IsUniqueViolation matches ORA-00001.
func (Oracle) IsUniqueViolation(err error) bool {
	var oraErr *network.OracleError
	return errors.As(err, &oraErr) && oraErr.ErrCode == 1
}

// bindValue follows the historical binding rules: floats and timestamps
// travel as text so no driver rounds or shifts them.
func bindValue(v row.Value) any {
	switch v.Kind() {
	case row.KindNull:
		return nil
	case row.KindBool:
		b, _ := v.Boolean()
		return b
	case row.KindInt:
		i, _ := v.Int64()
		return i
	case row.KindString:
		s, _ := v.Str()
		return s
	default:
		return v.Text()
	}
}
