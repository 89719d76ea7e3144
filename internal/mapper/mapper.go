package mapper

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/identity"
	"github.com/jtl-software/connector-components-xtc/internal/mapping"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// Mapper maps one entity between rows and models.
type Mapper struct {
	engine *Engine
	entry  *registry.Entry
	store  core.Store
	tag    string
}

var _ SubMapper = (*Mapper)(nil)

// Name returns the entity name.
func (m *Mapper) Name() string {
	return m.entry.Name
}

// Entry returns the compiled definition.
func (m *Mapper) Entry() *registry.Entry {
	return m.entry
}

func (m *Mapper) withStore(store core.Store) *Mapper {
	c := *m
	c.store = store
	return &c
}

var placeholderPattern = regexp.MustCompile(`\[\[\s*(\w+)\s*\]\]`)

// resolveQuery renders the configured query with the parent row's values,
// or SELECT * FROM table. A NULL parent value counts as missing.
func (m *Mapper) resolveQuery(parent *row.Row) (string, error) {
	cfg := m.entry.Config
	if !cfg.HasQuery() {
		return "SELECT * FROM " + cfg.Table, nil
	}

	var missing []string
	query := placeholderPattern.ReplaceAllStringFunc(cfg.Query, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := parent.Get(name)
		if !ok || v.IsNull() {
			missing = append(missing, name)
			return match
		}
		return v.Text()
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("mapper %s: %w: %s", m.Name(), ErrPlaceholder, strings.Join(missing, ", "))
	}
	return query, nil
}

// Pull runs the mapper's query and materializes every row. parent supplies
// the values of [[name]] placeholders; limit > 0 caps the row count.
func (m *Mapper) Pull(ctx context.Context, parent *row.Row, limit int) ([]any, error) {
	query, err := m.resolveQuery(parent)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		query = m.store.Limit(query, limit)
	}

	rows, err := m.store.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("mapper %s: failed to pull: %w", m.Name(), err)
	}

	models := make([]any, 0, len(rows))
	for _, r := range rows {
		model, err := m.GenerateModel(ctx, r)
		if err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	return models, nil
}

// GenerateModel builds one model from a row, following mapPull in
// declaration order, and runs the AddData hook.
func (m *Mapper) GenerateModel(ctx context.Context, r *row.Row) (any, error) {
	model := m.entry.New()

	for _, f := range m.entry.Pull {
		if f.Kind == mapping.SourceMapper {
			sub, err := m.engine.factory.Create(f.Mapper, m.store)
			if err != nil {
				return nil, fmt.Errorf("mapper %s: %w", m.Name(), err)
			}
			children, err := sub.Pull(ctx, r, 0)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				if err := f.Setter(model, child); err != nil {
					return nil, fmt.Errorf("mapper %s: failed to set %s: %w", m.Name(), f.Property.Name, err)
				}
			}
			continue
		}

		v, err := pullValue(ctx, f, r)
		if err != nil {
			return nil, fmt.Errorf("mapper %s: failed to compute %s: %w", m.Name(), f.Property.Name, err)
		}

		if !f.Property.IsIdentity() {
			f.Property.Assign(model, v)
			continue
		}
		var id identity.Identity
		if !v.IsNull() && v.Text() != "" {
			id = identity.New(v.Text())
			if m.engine.linker != nil {
				endpoint, ok, err := m.engine.linker.EndpointFor(ctx, m.Name(), id.Host)
				if err != nil {
					return nil, fmt.Errorf("mapper %s: failed to resolve endpoint: %w", m.Name(), err)
				}
				if ok {
					id.Endpoint = endpoint
				}
			}
		}
		f.Property.SetIdentity(model, id)
	}

	if m.entry.AddData != nil {
		if err := m.entry.AddData(ctx, model, r); err != nil {
			return nil, fmt.Errorf("mapper %s: addData failed: %w", m.Name(), err)
		}
	}
	return model, nil
}

// pullValue reads the mapped column. A missing or null column falls back to
// the computation, then to null.
func pullValue(ctx context.Context, f registry.PullField, r *row.Row) (row.Value, error) {
	if f.Column != "" {
		if v, ok := r.Get(f.Column); ok && !v.IsNull() {
			return v, nil
		}
	}
	if f.Compute != nil {
		return f.Compute(ctx, r)
	}
	return row.Null(), nil
}

// Statistic counts the available entities: the statisticsQuery's total
// column, else the row count of the query, else COUNT(*) of the table.
func (m *Mapper) Statistic(ctx context.Context) (int64, error) {
	cfg := m.entry.Config

	switch {
	case cfg.StatisticsQuery != "":
		rows, err := m.store.Query(ctx, cfg.StatisticsQuery)
		if err != nil {
			return 0, fmt.Errorf("mapper %s: failed to run statistics query: %w", m.Name(), err)
		}
		return firstInt(rows, "total"), nil

	case cfg.HasQuery():
		query, err := m.resolveQuery(nil)
		if err != nil {
			return 0, err
		}
		rows, err := m.store.Query(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("mapper %s: failed to count query rows: %w", m.Name(), err)
		}
		return int64(len(rows)), nil

	default:
		query := m.store.Limit("SELECT count(*) as count FROM "+cfg.Table, 1)
		rows, err := m.store.Query(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("mapper %s: failed to count table rows: %w", m.Name(), err)
		}
		return firstInt(rows, "count"), nil
	}
}

// firstInt reads column of the first row, matching the name case
// insensitively since Oracle reports upper-case labels.
func firstInt(rows []*row.Row, column string) int64 {
	if len(rows) == 0 {
		return 0
	}
	v, ok := rows[0].Get(column)
	if !ok {
		for _, c := range rows[0].Columns() {
			if strings.EqualFold(c, column) {
				v, ok = rows[0].Get(c)
				break
			}
		}
	}
	if !ok || v.IsNull() {
		return 0
	}
	if n, err := strconv.ParseInt(v.Text(), 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v.Text(), 64); err == nil {
		return int64(f)
	}
	return 0
}

// sameModel reports whether a and b point to the same model.
func sameModel(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() || va.Kind() != reflect.Ptr || vb.Kind() != reflect.Ptr {
		return false
	}
	return va.Type() == vb.Type() && va.Pointer() == vb.Pointer()
}

func (m *Mapper) logf(format string, args ...any) {
	log.Printf(m.tag+" "+format, args...)
}
