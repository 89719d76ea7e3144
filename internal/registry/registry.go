// Package registry keeps the mapper definitions of a connector: model
// constructors, mapping configurations, computations and hooks. Definitions
// are compiled against their model types up front, so a configuration that
// names a missing property, setter or sub-mapper fails at load time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/mapping"
	"github.com/jtl-software/connector-components-xtc/internal/schema"
)

// Registry manages mapper definitions and their compiled entries.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]*Definition
	entries   map[string]*Entry
	lifecycle *LifecycleManager
}

// NewRegistry creates a registry sharing the given lifecycle manager.
func NewRegistry(lifecycle *LifecycleManager) *Registry {
	if lifecycle == nil {
		lifecycle = NewLifecycleManager()
	}
	return &Registry{
		defs:      make(map[string]*Definition),
		entries:   make(map[string]*Entry),
		lifecycle: lifecycle,
	}
}

// Register adds or replaces a definition. Compiled entries are discarded
// because sub-mapper checks depend on every definition.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("definition cannot be nil")
	}
	if def.Name == "" {
		return fmt.Errorf("definition name cannot be empty")
	}
	if def.New == nil {
		return fmt.Errorf("definition %q has no model constructor", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *def
	if def.Config != nil {
		cfg := *def.Config
		cfg.Name = def.Name
		copied.Config = &cfg
	}
	r.defs[def.Name] = &copied
	r.entries = make(map[string]*Entry)
	return nil
}

// Load attaches configurations from a mapping set to registered
// definitions. A configuration for an unregistered entity is an error.
func (r *Registry) Load(set mapping.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range set.Names() {
		def, ok := r.defs[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: configuration for unregistered mapper %s", ErrMapperNotFound, name))
			continue
		}
		def.Config = set[name]
		def.Config.Name = name
	}
	r.entries = make(map[string]*Entry)
	return errors.Join(errs...)
}

// Validate compiles every definition and returns all configuration errors.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range r.sortedNames() {
		if _, ok := r.entries[name]; ok {
			continue
		}
		e, err := compile(r.defs[name], r.lookup)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.entries[name] = e
	}
	return errors.Join(errs...)
}

// Get returns the compiled entry for a mapper, compiling it on first use.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		return e, nil
	}
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMapperNotFound, name)
	}
	e, err := compile(def, r.lookup)
	if err != nil {
		return nil, err
	}
	r.entries[name] = e
	return e, nil
}

// Has reports whether a definition is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Unregister removes a definition.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrMapperNotFound, name)
	}
	delete(r.defs, name)
	r.entries = make(map[string]*Entry)
	return nil
}

// List returns the registered mapper names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

// Count returns the total number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Clear removes all definitions from the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[string]*Definition)
	r.entries = make(map[string]*Entry)
}

// GetLifecycleManager returns the lifecycle manager associated with this registry.
func (r *Registry) GetLifecycleManager() *LifecycleManager {
	return r.lifecycle
}

// Verify checks every table-backed entry against the live database: all
// written and where columns must exist. Type mismatches between a property
// and its column are logged as warnings.
func (r *Registry) Verify(ctx context.Context, inspector core.SchemaInspector) error {
	if err := r.Validate(); err != nil {
		return err
	}

	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, name := range r.sortedNames() {
		if e, ok := r.entries[name]; ok {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if !e.Config.HasTable() {
			continue
		}
		ts, err := inspector.GetSchema(ctx, e.Config.Table)
		if err != nil {
			errs = append(errs, fmt.Errorf("mapper %s: failed to read schema of %s: %w", e.Name, e.Config.Table, err))
			continue
		}
		validator := schema.NewColumnValidator(ts)

		columns := e.Config.Columns()
		if !e.Config.HasQuery() {
			for _, pf := range e.Pull {
				if pf.Column != "" {
					columns = append(columns, pf.Column)
				}
			}
		}
		if err := validator.ValidateColumns(columns); err != nil {
			errs = append(errs, &ConfigError{Entity: e.Name, Field: "table", Err: err})
			continue
		}

		for _, pf := range e.Push {
			if pf.Property == nil || pf.Column == "" {
				continue
			}
			if err := validator.ValidateProperty(pf.Property, pf.Column); err != nil {
				log.Printf("[REGISTRY] WARNING: mapper %s: %v", e.Name, err)
			}
		}
	}
	return errors.Join(errs...)
}

// lookup must be called with r.mu held.
func (r *Registry) lookup(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
