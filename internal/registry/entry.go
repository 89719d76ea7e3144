package registry

import (
	"errors"
	"fmt"

	"github.com/jtl-software/connector-components-xtc/internal/mapping"
	"github.com/jtl-software/connector-components-xtc/internal/schema"
)

// Entry is a definition compiled against its model type. Entries are
// read-only and safe to share between mappers.
type Entry struct {
	Name   string
	Config *mapping.Config
	Type   *schema.Type

	// Identity is nil when the config declares no identity accessor.
	Identity *schema.Property

	Pull []PullField
	Push []PushField

	New      func() any
	AddData  AddDataFunc
	PushDone PushDoneFunc
}

// PullField is one compiled mapPull entry.
type PullField struct {
	Kind     mapping.SourceKind
	Property *schema.Property

	// Column is the source column of field entries.
	Column string

	// Compute is required for computation entries and the fallback for
	// field entries.
	Compute PullFunc

	// Mapper and Setter are set for navigation entries.
	Mapper string
	Setter schema.Setter
}

// PushField is one compiled mapPush entry.
type PushField struct {
	Kind mapping.SourceKind

	// Column is empty for navigation entries.
	Column   string
	Property *schema.Property

	Compute PushFunc

	Mapper  string
	Setter  schema.Setter
	Recurse bool
}

// WhereColumns returns the uniqueness predicate columns.
func (e *Entry) WhereColumns() []string {
	return e.Config.WhereColumns()
}

// compile resolves every name in def's configuration. lookup returns other
// registered definitions for sub-mapper checks.
func compile(def *Definition, lookup func(string) (*Definition, bool)) (*Entry, error) {
	var errs []error
	fail := func(field string, err error) {
		errs = append(errs, &ConfigError{Entity: def.Name, Field: field, Err: err})
	}

	if def.Config == nil {
		return nil, &ConfigError{Entity: def.Name, Err: ErrMissingConfig}
	}
	if err := def.Config.Validate(); err != nil {
		return nil, err
	}
	if def.New == nil {
		return nil, &ConfigError{Entity: def.Name, Err: errors.New("model constructor is nil")}
	}
	typ, err := schema.Of(def.New())
	if err != nil {
		return nil, &ConfigError{Entity: def.Name, Err: err}
	}

	e := &Entry{
		Name:     def.Name,
		Config:   def.Config,
		Type:     typ,
		New:      def.New,
		AddData:  def.AddData,
		PushDone: def.PushDone,
	}

	if def.Config.Identity != "" {
		p, err := typ.IdentityProperty(def.Config.Identity)
		if err != nil {
			fail("identity", err)
		}
		e.Identity = p
	}

	for _, pe := range def.Config.Pull {
		field := "mapPull." + pe.Property
		prop, ok := typ.Property(pe.Property)
		if !ok {
			fail(field, fmt.Errorf("%w: %s has no property %q", schema.ErrUnknownProperty, typ.Name(), pe.Property))
			continue
		}
		pf := PullField{Kind: pe.Source.Kind, Property: prop}

		switch pe.Source.Kind {
		case mapping.SourceMapper:
			if !prop.IsNavigation() {
				fail(field, fmt.Errorf("property %q is %s, not a navigation property", prop.Name, prop.Kind))
				continue
			}
			sub, err := subType(pe.Source.Name, lookup)
			if err != nil {
				fail(field, err)
				continue
			}
			if prop.Elem() != sub.GoType() {
				fail(field, fmt.Errorf("%w: property %q holds %s, sub-mapper %s produces %s",
					schema.ErrTypeMismatch, prop.Name, prop.Elem(), pe.Source.Name, sub.GoType()))
				continue
			}
			setter, err := typ.Setter(pe.Source.Setter, prop)
			if err != nil {
				fail(field, err)
				continue
			}
			pf.Mapper, pf.Setter = pe.Source.Name, setter

		case mapping.SourceComputation:
			if prop.IsNavigation() {
				fail(field, fmt.Errorf("navigation property %q needs SubMapper|setter syntax", prop.Name))
				continue
			}
			fn, ok := def.Computations.Pull[pe.Property]
			if !ok {
				fail(field, fmt.Errorf("no pull computation registered for %q", pe.Property))
				continue
			}
			pf.Compute = fn

		default:
			if prop.IsNavigation() {
				fail(field, fmt.Errorf("navigation property %q needs SubMapper|setter syntax", prop.Name))
				continue
			}
			pf.Column = pe.Source.Name
			pf.Compute = def.Computations.Pull[pe.Property]
		}
		e.Pull = append(e.Pull, pf)
	}

	for _, pe := range def.Config.Push {
		switch pe.Source.Kind {
		case mapping.SourceComputation:
			fn, ok := def.Computations.Push[pe.Column]
			if !ok {
				fail("mapPush."+pe.Column, fmt.Errorf("no push computation registered for %q", pe.Column))
				continue
			}
			e.Push = append(e.Push, PushField{Kind: pe.Source.Kind, Column: pe.Column, Compute: fn})

		case mapping.SourceMapper:
			field := "mapPush." + pe.Source.Name
			prop, ok := typ.Property(pe.Property)
			if !ok {
				fail(field, fmt.Errorf("%w: %s has no property %q", schema.ErrUnknownProperty, typ.Name(), pe.Property))
				continue
			}
			if !prop.IsNavigation() {
				fail(field, fmt.Errorf("property %q is %s, not a navigation property", prop.Name, prop.Kind))
				continue
			}
			subDef, ok := lookup(pe.Source.Name)
			if !ok {
				fail(field, fmt.Errorf("%w: %s", ErrMapperNotFound, pe.Source.Name))
				continue
			}
			if err := checkPushTarget(typ, prop, subDef); err != nil {
				fail(field, err)
				continue
			}
			setter, err := typ.Setter(pe.Source.Setter, prop)
			if err != nil {
				fail(field, err)
				continue
			}
			e.Push = append(e.Push, PushField{
				Kind:     pe.Source.Kind,
				Property: prop,
				Mapper:   pe.Source.Name,
				Setter:   setter,
				Recurse:  pe.Source.Recurse,
			})

		default:
			field := "mapPush." + pe.Column
			prop, ok := typ.Property(pe.Property)
			if !ok {
				fail(field, fmt.Errorf("%w: %s has no property %q", schema.ErrUnknownProperty, typ.Name(), pe.Property))
				continue
			}
			if prop.IsNavigation() {
				fail(field, fmt.Errorf("navigation property %q needs SubMapper|setter syntax", prop.Name))
				continue
			}
			e.Push = append(e.Push, PushField{Kind: pe.Source.Kind, Column: pe.Column, Property: prop})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return e, nil
}

func subType(name string, lookup func(string) (*Definition, bool)) (*schema.Type, error) {
	sub, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMapperNotFound, name)
	}
	if sub.New == nil {
		return nil, fmt.Errorf("sub-mapper %s has no model constructor", name)
	}
	return schema.Of(sub.New())
}

// checkPushTarget verifies that a sub-mapper can be pushed with the parent
// model: either it reads its children through getMethod, or it maps the
// parent type itself.
func checkPushTarget(parent *schema.Type, nav *schema.Property, sub *Definition) error {
	st, err := subType(sub.Name, func(string) (*Definition, bool) { return sub, true })
	if err != nil {
		return err
	}
	if sub.Config != nil && sub.Config.GetMethod != "" {
		if _, err := parent.Collection(sub.Config.GetMethod); err != nil {
			return err
		}
		if nav.Elem() != st.GoType() {
			return fmt.Errorf("%w: property %q holds %s, sub-mapper %s produces %s",
				schema.ErrTypeMismatch, nav.Name, nav.Elem(), sub.Name, st.GoType())
		}
		return nil
	}
	if st != parent {
		return fmt.Errorf("%w: sub-mapper %s maps %s without getMethod, so it must map %s",
			schema.ErrTypeMismatch, sub.Name, st.Name(), parent.Name())
	}
	return nil
}
