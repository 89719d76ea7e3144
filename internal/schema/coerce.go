package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// timeFormats are tried in order when a timestamp arrives as text.
var timeFormats = []string{
	row.DateTimeLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ColumnKind maps a database column type (as reported by the schema
// inspector) to the property kind it stores.
func ColumnKind(dbType string) Kind {
	dbTypeUpper := strings.ToUpper(strings.TrimSpace(dbType))

	// Remove size/precision information (e.g., VARCHAR(255) -> VARCHAR)
	baseType := dbTypeUpper
	if idx := strings.Index(dbTypeUpper, "("); idx > 0 {
		if dbTypeUpper == "TINYINT(1)" {
			return KindBoolean
		}
		baseType = dbTypeUpper[:idx]
	}

	switch baseType {
	case "INT", "INTEGER", "MEDIUMINT", "BIGINT", "SMALLINT", "TINYINT":
		return KindInteger
	case "FLOAT", "DOUBLE", "DOUBLE PRECISION", "REAL", "DECIMAL", "NUMERIC", "NUMBER", "BINARY_FLOAT", "BINARY_DOUBLE":
		return KindFloat
	case "DATE", "DATETIME", "TIMESTAMP":
		return KindDateTime
	case "BOOLEAN", "BOOL", "BIT":
		return KindBoolean
	default:
		// Text, blobs, JSON and unknown types carry strings
		return KindString
	}
}

func toString(v row.Value) string {
	return v.Text()
}

func toInt64(v row.Value) int64 {
	switch v.Kind() {
	case row.KindInt:
		i, _ := v.Int64()
		return i
	case row.KindFloat:
		f, _ := v.Float64()
		return int64(f)
	case row.KindBool:
		if b, _ := v.Boolean(); b {
			return 1
		}
		return 0
	case row.KindTime:
		t, _ := v.Timestamp()
		return t.Unix()
	case row.KindString:
		s := strings.TrimSpace(v.Text())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		// Decimal columns arrive as text
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	default:
		return 0
	}
}

func toFloat64(v row.Value) float64 {
	switch v.Kind() {
	case row.KindFloat:
		f, _ := v.Float64()
		return f
	case row.KindInt:
		i, _ := v.Int64()
		return float64(i)
	case row.KindBool:
		if b, _ := v.Boolean(); b {
			return 1
		}
		return 0
	case row.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text()), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func toBool(v row.Value) bool {
	switch v.Kind() {
	case row.KindBool:
		b, _ := v.Boolean()
		return b
	case row.KindInt:
		i, _ := v.Int64()
		return i != 0
	case row.KindFloat:
		f, _ := v.Float64()
		return f != 0
	case row.KindString:
		s := strings.TrimSpace(v.Text())
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		// Try numeric string
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return s != ""
	default:
		return false
	}
}

// toTime parses a timestamp. ok is false for empty or malformed input and
// for dates whose year is zero or negative (e.g. "0000-00-00").
func toTime(v row.Value) (time.Time, bool) {
	var t time.Time
	switch v.Kind() {
	case row.KindTime:
		t, _ = v.Timestamp()
	case row.KindInt:
		// Assume Unix timestamp
		i, _ := v.Int64()
		t = time.Unix(i, 0).UTC()
	case row.KindString:
		s := strings.TrimSpace(v.Text())
		if s == "" {
			return time.Time{}, false
		}
		parsed := false
		for _, format := range timeFormats {
			if p, err := time.Parse(format, s); err == nil {
				t, parsed = p, true
				break
			}
		}
		if !parsed {
			return time.Time{}, false
		}
	default:
		return time.Time{}, false
	}

	if t.IsZero() || t.Year() <= 0 {
		return time.Time{}, false
	}
	return t, true
}
