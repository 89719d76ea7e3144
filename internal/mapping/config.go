package mapping

import (
	"sort"
	"strings"
)

// Set is a loaded mapping document keyed by entity name.
type Set map[string]*Config

// Names returns the entity names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config describes how one entity is read from and written to the store.
type Config struct {
	// Name is the entity name the config was declared under.
	Name string `yaml:"-" json:"-"`

	// Table is the target table for pushes and the default pull source.
	Table string `yaml:"table"`

	// Query replaces "SELECT * FROM table" for pulls. [[name]] placeholders
	// are substituted from the parent row.
	Query string `yaml:"query"`

	// Identity names the identity accessor ("getId" or "id").
	Identity string `yaml:"identity"`

	// Where lists the columns forming the uniqueness predicate.
	Where StringOrArray `yaml:"where"`

	// StatisticsQuery returns the entity count in a "total" column.
	StatisticsQuery string `yaml:"statisticsQuery"`

	// GetMethod names the child collection accessor for one-to-many pushes.
	GetMethod string `yaml:"getMethod"`

	// AddToParent merges the built row into the parent row instead of
	// persisting it.
	AddToParent bool `yaml:"addToParent"`

	Pull PullMap `yaml:"mapPull"`
	Push PushMap `yaml:"mapPush"`
}

// SourceKind tags a ColumnSource.
type SourceKind int

const (
	// SourceField reads a column (pull) or a model property (push).
	SourceField SourceKind = iota + 1

	// SourceComputation calls the named computation.
	SourceComputation

	// SourceMapper delegates to a sub-mapper.
	SourceMapper
)

// String returns the kind name.
func (k SourceKind) String() string {
	switch k {
	case SourceField:
		return "field"
	case SourceComputation:
		return "computation"
	case SourceMapper:
		return "mapper"
	default:
		return "unknown"
	}
}

// ColumnSource is where a mapped value comes from.
type ColumnSource struct {
	Kind SourceKind

	// Name is the column or property (field), the computation key
	// (computation), or the sub-mapper name (mapper).
	Name string

	// Setter is the setter token applied to sub-mapper results.
	Setter string

	// Recurse pushes the sub-mapper before the parent row is persisted.
	Recurse bool
}

// FromField returns a field source.
func FromField(name string) ColumnSource {
	return ColumnSource{Kind: SourceField, Name: name}
}

// FromComputation returns a computation source.
func FromComputation(name string) ColumnSource {
	return ColumnSource{Kind: SourceComputation, Name: name}
}

// FromMapper returns a sub-mapper source.
func FromMapper(name, setter string, recurse bool) ColumnSource {
	return ColumnSource{Kind: SourceMapper, Name: name, Setter: setter, Recurse: recurse}
}

// PullEntry maps one model property from a row.
type PullEntry struct {
	Property string
	Source   ColumnSource
}

// PullMap is the ordered mapPull section.
type PullMap []PullEntry

// PushEntry maps one row column (or sub-mapper) from a model.
type PushEntry struct {
	// Column is the target column; empty for sub-mapper entries.
	Column string

	// Property is the model property read; empty for computations.
	Property string

	Source ColumnSource
}

// PushMap is the ordered mapPush section.
type PushMap []PushEntry

// WhereColumns returns the uniqueness predicate columns.
func (c *Config) WhereColumns() []string {
	return []string(c.Where)
}

// HasTable reports whether the config declares a target table.
func (c *Config) HasTable() bool {
	return strings.TrimSpace(c.Table) != ""
}

// HasQuery reports whether the config declares a pull query.
func (c *Config) HasQuery() bool {
	return strings.TrimSpace(c.Query) != ""
}

// Columns returns every column the push map writes directly, followed by
// the where columns not already listed.
func (c *Config) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, e := range c.Push {
		if e.Column != "" && !seen[e.Column] {
			seen[e.Column] = true
			cols = append(cols, e.Column)
		}
	}
	for _, w := range c.Where {
		if !seen[w] {
			seen[w] = true
			cols = append(cols, w)
		}
	}
	return cols
}
