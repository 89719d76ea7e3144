package mapper

import (
	"context"
	"fmt"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/identity"
	"github.com/jtl-software/connector-components-xtc/internal/mapping"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// Delete removes the rows matching the model's where predicate, drops the
// identity link and runs the OnDelete hooks. Only scalar and identity
// columns take part in the predicate.
func (m *Mapper) Delete(ctx context.Context, model any) error {
	cfg := m.entry.Config
	if !cfg.HasTable() {
		return fmt.Errorf("mapper %s: %w", m.Name(), ErrNoTable)
	}
	if err := m.entry.Type.Check(model); err != nil {
		return fmt.Errorf("mapper %s: %w", m.Name(), err)
	}
	if err := m.reconcile(ctx, model); err != nil {
		return err
	}

	r := row.New()
	for _, f := range m.entry.Push {
		if f.Kind != mapping.SourceField {
			continue
		}
		if v := pushValue(f.Property, model); !v.IsNull() {
			r.Set(f.Column, v)
		}
	}
	where := m.predicate(r)
	if where.Len() == 0 {
		return fmt.Errorf("mapper %s: delete from %s: %w", m.Name(), cfg.Table, ErrEmptyPredicate)
	}

	n, err := m.store.Delete(ctx, cfg.Table, where)
	if err != nil {
		return fmt.Errorf("mapper %s: failed to delete from %s: %w", m.Name(), cfg.Table, err)
	}
	m.logf("Deleted %d row(s) from %s where %s", n, cfg.Table, where)

	var id identity.Identity
	if m.entry.Identity != nil {
		id = m.entry.Identity.Identity(model)
	}
	event := core.PersistEvent{
		Entity:    m.Name(),
		Table:     cfg.Table,
		Operation: core.OperationDelete,
		Identity:  id,
		Row:       where,
	}
	return run(ctx, func(ctx context.Context) error {
		if m.engine.linker != nil && !id.IsEmpty() {
			if err := m.engine.linker.Unlink(ctx, m.Name(), id); err != nil {
				return fmt.Errorf("mapper %s: failed to unlink %s: %w", m.Name(), id, err)
			}
		}
		return m.engine.lifecycle.ExecuteDeleteHooks(ctx, event)
	})
}
