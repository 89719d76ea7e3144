package schema

import (
	"fmt"
	"reflect"
	"time"

	"github.com/jtl-software/connector-components-xtc/internal/identity"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

// Property describes one mapped field of a model struct.
type Property struct {
	// Name is the name used in mapping configurations.
	Name string

	// Field is the Go struct field name.
	Field string

	Kind Kind

	// Nullable is set for pointer fields: a nil pointer reads as null.
	Nullable bool

	index int
	typ   reflect.Type
}

// IsIdentity reports whether the property holds an identity.Identity.
func (p *Property) IsIdentity() bool { return p.Kind == KindIdentity }

// IsNavigation reports whether the property holds nested models.
func (p *Property) IsNavigation() bool { return p.Kind == KindNavigation }

// IsCollection reports whether a navigation property holds many models.
func (p *Property) IsCollection() bool {
	return p.Kind == KindNavigation && p.typ.Kind() == reflect.Slice
}

// ScalarType returns the declared kind of a scalar property. Navigation and
// identity properties report their own kind.
func (p *Property) ScalarType() Kind { return p.Kind }

// Elem returns the pointer-to-struct type of the models a navigation
// property holds, or nil for other kinds.
func (p *Property) Elem() reflect.Type {
	if p.Kind != KindNavigation {
		return nil
	}
	t := p.typ
	if t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() != reflect.Ptr {
		t = reflect.PointerTo(t)
	}
	return t
}

func (p *Property) field(model any) reflect.Value {
	return reflect.ValueOf(model).Elem().Field(p.index)
}

// Value reads a scalar property. A nil pointer or a zero time reads as null.
// Identity properties read as their host key.
func (p *Property) Value(model any) row.Value {
	f := p.field(model)
	if p.Nullable {
		if f.IsNil() {
			return row.Null()
		}
		f = f.Elem()
	}

	switch p.Kind {
	case KindString:
		return row.String(f.String())
	case KindInteger:
		if f.CanInt() {
			return row.Int(f.Int())
		}
		return row.Int(int64(f.Uint()))
	case KindFloat:
		return row.Float(f.Float())
	case KindBoolean:
		return row.Bool(f.Bool())
	case KindDateTime:
		t := f.Interface().(time.Time)
		if t.IsZero() {
			return row.Null()
		}
		return row.Time(t)
	case KindIdentity:
		id := f.Interface().(identity.Identity)
		if !id.HasHost() {
			return row.Null()
		}
		return row.String(id.Host)
	default:
		return row.Null()
	}
}

// Assign writes a scalar property, coercing v to the declared kind. Values
// that cannot be coerced degrade to the zero value (nil for pointers); dates
// that fail to parse or carry a year <= 0 are treated as absent.
func (p *Property) Assign(model any, v row.Value) {
	f := p.field(model)

	if p.Kind == KindIdentity {
		if v.IsNull() {
			f.Set(reflect.ValueOf(identity.Identity{}))
			return
		}
		f.Set(reflect.ValueOf(identity.New(v.Text())))
		return
	}
	if p.Kind == KindNavigation {
		return
	}

	target := f
	if p.Nullable {
		if v.IsNull() {
			f.Set(reflect.Zero(f.Type()))
			return
		}
		target = reflect.New(f.Type().Elem()).Elem()
	}

	absent := false
	switch p.Kind {
	case KindString:
		target.SetString(toString(v))
	case KindInteger:
		i := toInt64(v)
		if target.CanInt() {
			target.SetInt(i)
		} else {
			target.SetUint(uint64(i))
		}
	case KindFloat:
		target.SetFloat(toFloat64(v))
	case KindBoolean:
		target.SetBool(toBool(v))
	case KindDateTime:
		t, ok := toTime(v)
		if ok {
			target.Set(reflect.ValueOf(t))
		} else {
			absent = true
		}
	}

	if absent {
		f.Set(reflect.Zero(f.Type()))
		return
	}
	if p.Nullable {
		f.Set(target.Addr())
	}
}

// Identity reads an identity property.
func (p *Property) Identity(model any) identity.Identity {
	if p.Kind != KindIdentity {
		return identity.Identity{}
	}
	return p.field(model).Interface().(identity.Identity)
}

// SetIdentity writes an identity property.
func (p *Property) SetIdentity(model any, id identity.Identity) {
	if p.Kind != KindIdentity {
		return
	}
	p.field(model).Set(reflect.ValueOf(id))
}

// Reset clears the property to its zero value.
func (p *Property) Reset(model any) {
	f := p.field(model)
	f.Set(reflect.Zero(f.Type()))
}

// Append adds child to a navigation property: collections grow by one
// element, single navigations are replaced.
func (p *Property) Append(model, child any) error {
	if p.Kind != KindNavigation {
		return fmt.Errorf("%w: property %s is not a navigation property", ErrTypeMismatch, p.Name)
	}
	cv := reflect.ValueOf(child)
	want := p.Elem()
	if !cv.IsValid() || cv.Type() != want || cv.IsNil() {
		return fmt.Errorf("%w: property %s expects %s, got %T", ErrTypeMismatch, p.Name, want, child)
	}

	f := p.field(model)
	switch f.Kind() {
	case reflect.Slice:
		item := cv
		if f.Type().Elem().Kind() != reflect.Ptr {
			item = cv.Elem()
		}
		f.Set(reflect.Append(f, item))
	case reflect.Ptr:
		f.Set(cv)
	}
	return nil
}

// Children returns the models a navigation property currently holds as
// pointers, so callers can mutate them in place.
func (p *Property) Children(model any) []any {
	if p.Kind != KindNavigation {
		return nil
	}
	return children(p.field(model))
}

func children(v reflect.Value) []any {
	switch v.Kind() {
	case reflect.Slice:
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item := v.Index(i)
			if item.Kind() == reflect.Ptr {
				if item.IsNil() {
					continue
				}
				out = append(out, item.Interface())
				continue
			}
			out = append(out, item.Addr().Interface())
		}
		return out
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return []any{v.Interface()}
	default:
		return nil
	}
}
