package mapper

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/identity"
	"github.com/jtl-software/connector-components-xtc/internal/mapping"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
	"github.com/jtl-software/connector-components-xtc/internal/row"
	"github.com/jtl-software/connector-components-xtc/internal/schema"
)

// Push flattens model into rows and persists them. parentRow is the row of
// the calling mapper and is nil for top-level pushes.
//
// A mapper with getMethod pushes every child the parent returns and
// returns the children; otherwise the returned slice holds model itself.
func (m *Mapper) Push(ctx context.Context, model any, parentRow *row.Row) ([]any, error) {
	if !m.engine.transactional || dispatcherFrom(ctx) != nil {
		return m.push(ctx, model, parentRow)
	}

	d := &dispatcher{}
	var out []any
	err := m.store.Transact(ctx, func(tx core.Store) error {
		var err error
		out, err = m.withStore(tx).push(withDispatcher(ctx, d), model, parentRow)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := d.flush(ctx); err != nil {
		return nil, fmt.Errorf("mapper %s: push committed but post-commit effects failed: %w", m.Name(), err)
	}
	return out, nil
}

func (m *Mapper) push(ctx context.Context, model any, parentRow *row.Row) ([]any, error) {
	cfg := m.entry.Config
	if cfg.GetMethod == "" {
		obj, err := m.GenerateDBObj(ctx, model, parentRow, nil, cfg.AddToParent)
		if err != nil {
			return nil, err
		}
		return []any{obj}, nil
	}

	parent, err := schema.Of(model)
	if err != nil {
		return nil, fmt.Errorf("mapper %s: %w", m.Name(), err)
	}
	collect, err := parent.Collection(cfg.GetMethod)
	if err != nil {
		return nil, fmt.Errorf("mapper %s: %w", m.Name(), err)
	}
	children, err := collect(model)
	if err != nil {
		return nil, fmt.Errorf("mapper %s: %s failed: %w", m.Name(), cfg.GetMethod, err)
	}
	for _, child := range children {
		if _, err := m.GenerateDBObj(ctx, child, parentRow, model, cfg.AddToParent); err != nil {
			return nil, err
		}
	}
	return children, nil
}

// GenerateDBObj builds the row of one model following mapPush in
// declaration order, then persists it (or merges it into parentRow when
// addToParent is set), pushes the deferred navigation properties and runs
// the PushDone hook. It returns model with its identity written back.
func (m *Mapper) GenerateDBObj(ctx context.Context, model any, parentRow *row.Row, parentModel any, addToParent bool) (any, error) {
	if err := m.entry.Type.Check(model); err != nil {
		return nil, fmt.Errorf("mapper %s: %w", m.Name(), err)
	}
	if err := m.reconcile(ctx, model); err != nil {
		return nil, err
	}

	r := row.New()
	var deferred []registry.PushField
	for _, f := range m.entry.Push {
		switch f.Kind {
		case mapping.SourceComputation:
			v, err := f.Compute(ctx, model, parentModel, parentRow)
			if err != nil {
				return nil, fmt.Errorf("mapper %s: failed to compute %s: %w", m.Name(), f.Column, err)
			}
			if t, ok := v.Timestamp(); ok {
				v = row.String(t.Format(row.DateTimeLayout))
			}
			r.Set(f.Column, v)

		case mapping.SourceMapper:
			if !f.Recurse {
				deferred = append(deferred, f)
				continue
			}
			if err := m.pushNavigation(ctx, f, model, r); err != nil {
				return nil, err
			}

		default:
			v := pushValue(f.Property, model)
			if v.IsNull() {
				continue
			}
			r.Set(f.Column, v)
		}
	}

	switch {
	case addToParent:
		if parentRow == nil {
			return nil, fmt.Errorf("mapper %s: %w", m.Name(), ErrNoParentRow)
		}
		parentRow.Merge(r)
	case r.Len() == 0:
		m.logf("Skipping empty row for %s", m.entry.Config.Table)
	default:
		if err := m.persist(ctx, model, r); err != nil {
			return nil, err
		}
	}

	for _, f := range deferred {
		if err := m.pushNavigation(ctx, f, model, r); err != nil {
			return nil, err
		}
	}

	if m.entry.PushDone != nil {
		if err := m.entry.PushDone(ctx, model, r, parentModel); err != nil {
			return nil, fmt.Errorf("mapper %s: pushDone failed: %w", m.Name(), err)
		}
	}
	return model, nil
}

// pushNavigation pushes model through the sub-mapper of f with r as parent
// row and applies the returned children to the navigation property.
func (m *Mapper) pushNavigation(ctx context.Context, f registry.PushField, model any, r *row.Row) error {
	sub, err := m.engine.factory.Create(f.Mapper, m.store)
	if err != nil {
		return fmt.Errorf("mapper %s: %w", m.Name(), err)
	}
	results, err := sub.Push(ctx, model, r)
	if err != nil {
		return err
	}

	applied := make([]any, 0, len(results))
	for _, res := range results {
		if res == nil || sameModel(res, model) {
			continue
		}
		applied = append(applied, res)
	}
	if len(applied) == 0 {
		return nil
	}

	f.Property.Reset(model)
	for _, res := range applied {
		if err := f.Setter(model, res); err != nil {
			return fmt.Errorf("mapper %s: failed to set %s: %w", m.Name(), f.Property.Name, err)
		}
	}
	return nil
}

// pushValue renders a scalar or identity property as a column value.
// Timestamps become text and booleans 0/1. Host keys in canonical decimal
// form become integers.
func pushValue(p *schema.Property, model any) row.Value {
	v := p.Value(model)
	switch v.Kind() {
	case row.KindTime:
		return row.String(v.Text())
	case row.KindBool:
		b, _ := v.Boolean()
		if b {
			return row.Int(1)
		}
		return row.Int(0)
	case row.KindString:
		if p.IsIdentity() {
			host := v.Text()
			if n, err := strconv.ParseInt(host, 10, 64); err == nil && strconv.FormatInt(n, 10) == host {
				return row.Int(n)
			}
		}
	}
	return v
}

// reconcile fills a missing host key from the link store.
func (m *Mapper) reconcile(ctx context.Context, model any) error {
	if m.entry.Identity == nil || m.engine.linker == nil {
		return nil
	}
	id := m.entry.Identity.Identity(model)
	if id.HasHost() || !id.HasEndpoint() {
		return nil
	}
	host, ok, err := m.engine.linker.HostFor(ctx, m.Name(), id.Endpoint)
	if err != nil {
		return fmt.Errorf("mapper %s: failed to resolve host for %s: %w", m.Name(), id.Endpoint, err)
	}
	if ok {
		m.entry.Identity.SetIdentity(model, id.WithHost(host))
	}
	return nil
}

// predicate collects the where columns present in r.
func (m *Mapper) predicate(r *row.Row) *row.Row {
	p := row.New()
	for _, col := range m.entry.WhereColumns() {
		if v, ok := r.Get(col); ok {
			p.Set(col, v)
		}
	}
	return p
}

// persist writes r: an update when the model already carries a host key,
// a delete-insert otherwise. The resulting host key is written back.
func (m *Mapper) persist(ctx context.Context, model any, r *row.Row) error {
	cfg := m.entry.Config
	if !cfg.HasTable() {
		return fmt.Errorf("mapper %s: %w", m.Name(), ErrNoTable)
	}

	var id identity.Identity
	if m.entry.Identity != nil {
		id = m.entry.Identity.Identity(model)
	}
	where := m.predicate(r)
	op := core.OperationCreate

	if id.HasHost() {
		if where.Len() == 0 {
			return fmt.Errorf("mapper %s: update of %s: %w", m.Name(), cfg.Table, ErrEmptyPredicate)
		}
		if _, err := m.store.Update(ctx, cfg.Table, r, where); err != nil {
			return fmt.Errorf("mapper %s: failed to update %s: %w", m.Name(), cfg.Table, err)
		}
		op = core.OperationUpdate
	} else {
		keyColumn := ""
		if cols := m.entry.WhereColumns(); len(cols) == 1 {
			keyColumn = cols[0]
			r.Delete(keyColumn)
		}

		var key int64
		var err error
		if where.Len() == 0 {
			key, err = m.store.Insert(ctx, cfg.Table, r)
		} else {
			key, err = m.store.DeleteInsert(ctx, cfg.Table, r, where, keyColumn)
		}
		if err != nil {
			return fmt.Errorf("mapper %s: failed to insert into %s: %w", m.Name(), cfg.Table, err)
		}

		if key > 0 {
			id.Host = strconv.FormatInt(key, 10)
			if keyColumn != "" {
				r.Set(keyColumn, row.Int(key))
			}
		} else {
			parts := make([]string, 0, where.Len())
			where.Each(func(_ string, v row.Value) {
				parts = append(parts, v.Text())
			})
			id.Host = strings.Join(parts, "_")
		}
	}

	if m.entry.Identity != nil && id.HasHost() {
		m.entry.Identity.SetIdentity(model, id)
	}

	event := core.PersistEvent{
		Entity:    m.Name(),
		Table:     cfg.Table,
		Operation: op,
		Identity:  id,
		Row:       r.Clone(),
	}
	return run(ctx, func(ctx context.Context) error {
		if m.engine.linker != nil && id.HasHost() && id.HasEndpoint() {
			if err := m.engine.linker.Link(ctx, m.Name(), id); err != nil {
				return fmt.Errorf("mapper %s: failed to link %s: %w", m.Name(), id, err)
			}
		}
		return m.engine.lifecycle.ExecutePersistHooks(ctx, event)
	})
}
