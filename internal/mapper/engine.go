// Package mapper is the mapping engine: it materializes shop database rows
// into models (pull) and flattens models back into rows it persists through
// a core.Store (push), delegating navigation properties to sub-mappers.
//
// A Mapper is request scoped. It is created by an Engine, which holds the
// compiled registry and the store, and must not be shared between
// concurrent calls when the store is not safe for concurrent use.
package mapper

import (
	"context"
	"errors"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/identity"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

var (
	// ErrPlaceholder is returned when a query placeholder has no value in
	// the parent row.
	ErrPlaceholder = errors.New("unresolved query placeholder")

	// ErrEmptyPredicate is returned when an update or delete would have to
	// run without a where predicate.
	ErrEmptyPredicate = errors.New("empty where predicate")

	// ErrNoParentRow is returned when an addToParent mapper is pushed
	// without a parent row to merge into.
	ErrNoParentRow = errors.New("addToParent requires a parent row")

	// ErrNoTable is returned when a write is requested from a query-only
	// mapper.
	ErrNoTable = errors.New("mapper has no table")
)

// SubMapper is what a mapper needs from the mappers of its navigation
// properties.
type SubMapper interface {
	Pull(ctx context.Context, parent *row.Row, limit int) ([]any, error)
	Push(ctx context.Context, model any, parentRow *row.Row) ([]any, error)
}

// Factory creates sub-mappers bound to a store. The store passed in is the
// one the calling mapper writes through, which is transaction bound during
// a transactional push.
type Factory interface {
	Create(name string, store core.Store) (SubMapper, error)
}

// Linker keeps the pairs of host and endpoint keys per entity.
type Linker interface {
	Link(ctx context.Context, entity string, id identity.Identity) error
	Unlink(ctx context.Context, entity string, id identity.Identity) error
	HostFor(ctx context.Context, entity, endpoint string) (string, bool, error)
	EndpointFor(ctx context.Context, entity, host string) (string, bool, error)
}

// Engine creates mappers from a registry.
type Engine struct {
	registry      *registry.Registry
	store         core.Store
	factory       Factory
	linker        Linker
	lifecycle     *registry.LifecycleManager
	transactional bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLinker reconciles identities through l.
func WithLinker(l Linker) Option {
	return func(e *Engine) { e.linker = l }
}

// WithLifecycle replaces the registry's lifecycle manager.
func WithLifecycle(lm *registry.LifecycleManager) Option {
	return func(e *Engine) { e.lifecycle = lm }
}

// WithTransactionalPush runs every top-level push in one transaction and
// defers hooks and links until it committed.
func WithTransactionalPush(enabled bool) Option {
	return func(e *Engine) { e.transactional = enabled }
}

// WithFactory replaces the engine as sub-mapper factory.
func WithFactory(f Factory) Option {
	return func(e *Engine) { e.factory = f }
}

// NewEngine creates an engine over reg and store.
func NewEngine(reg *registry.Registry, store core.Store, opts ...Option) *Engine {
	e := &Engine{
		registry:  reg,
		store:     store,
		lifecycle: reg.GetLifecycleManager(),
	}
	e.factory = e
	for _, opt := range opts {
		opt(e)
	}
	if e.lifecycle == nil {
		e.lifecycle = registry.NewLifecycleManager()
	}
	return e
}

// Mapper returns the mapper registered under name, bound to the engine's
// store.
func (e *Engine) Mapper(name string) (*Mapper, error) {
	return e.newMapper(name, e.store)
}

// Create implements Factory.
func (e *Engine) Create(name string, store core.Store) (SubMapper, error) {
	m, err := e.newMapper(name, store)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Transactional reports whether pushes run in one transaction.
func (e *Engine) Transactional() bool {
	return e.transactional
}

func (e *Engine) newMapper(name string, store core.Store) (*Mapper, error) {
	entry, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return &Mapper{
		engine: e,
		entry:  entry,
		store:  store,
		tag:    "[MAPPER:" + name + "]",
	}, nil
}
