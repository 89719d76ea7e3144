package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// TagName is the struct tag that renames (`orm:"name"`) or skips (`orm:"-"`)
// a field.
const TagName = "orm"

// Type is the reflected schema of one model struct.
type Type struct {
	rt     reflect.Type
	props  []*Property
	byName map[string]*Property
}

// Setter applies a child model to a parent model.
type Setter func(model, child any) error

// Collection reads the child models of a parent model.
type Collection func(model any) ([]any, error)

var cache sync.Map // reflect.Type -> *Type

// Of returns the schema of a model, which must be a non-nil pointer to a
// struct. Schemas are built once per Go type.
func Of(model any) (*Type, error) {
	v := reflect.ValueOf(model)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %T", ErrNotStructPointer, model)
	}
	return TypeOf(v.Type().Elem()), nil
}

// TypeOf returns the schema of a struct type.
func TypeOf(rt reflect.Type) *Type {
	if cached, ok := cache.Load(rt); ok {
		return cached.(*Type)
	}

	t := &Type{rt: rt, byName: make(map[string]*Property)}
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name := propertyName(sf.Name)
		if tag, ok := sf.Tag.Lookup(TagName); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		kind, nullable, ok := kindOf(sf.Type)
		if !ok {
			continue
		}
		p := &Property{
			Name:     name,
			Field:    sf.Name,
			Kind:     kind,
			Nullable: nullable,
			index:    i,
			typ:      sf.Type,
		}
		t.props = append(t.props, p)
		t.byName[name] = p
	}

	actual, _ := cache.LoadOrStore(rt, t)
	return actual.(*Type)
}

// Name returns the Go type name.
func (t *Type) Name() string { return t.rt.Name() }

// GoType returns the pointer type of the model.
func (t *Type) GoType() reflect.Type { return reflect.PointerTo(t.rt) }

// New allocates a zero model.
func (t *Type) New() any { return reflect.New(t.rt).Interface() }

// Check verifies that model is a non-nil pointer to this struct type.
func (t *Type) Check(model any) error {
	v := reflect.ValueOf(model)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("%w: got %T", ErrNotStructPointer, model)
	}
	if v.Type().Elem() != t.rt {
		return fmt.Errorf("%w: expected *%s, got %T", ErrTypeMismatch, t.rt.Name(), model)
	}
	return nil
}

// Property looks a property up by its mapping name.
func (t *Type) Property(name string) (*Property, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// Properties returns all properties in field order.
func (t *Type) Properties() []*Property {
	out := make([]*Property, len(t.props))
	copy(out, t.props)
	return out
}

// IdentityProperty resolves an identity accessor token ("getId" or "id")
// to an identity property.
func (t *Type) IdentityProperty(accessor string) (*Property, error) {
	for _, name := range candidateNames(accessor) {
		if p, ok := t.byName[name]; ok {
			if !p.IsIdentity() {
				return nil, fmt.Errorf("%w: %s.%s is %s, not Identity", ErrTypeMismatch, t.rt.Name(), name, p.Kind)
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no identity property %q", ErrUnknownProperty, t.rt.Name(), accessor)
}

// Setter resolves a setter token for nav. "addI18n" resolves to the method
// AddI18n(child); a token naming a navigation property appends to it; an
// empty token appends to nav itself.
func (t *Type) Setter(token string, nav *Property) (Setter, error) {
	if token == "" {
		if nav == nil {
			return nil, fmt.Errorf("%w: empty setter without a navigation property", ErrUnknownMethod)
		}
		return nav.Append, nil
	}

	if m, ok := reflect.PointerTo(t.rt).MethodByName(upperFirst(token)); ok {
		if m.Type.NumIn() != 2 {
			return nil, fmt.Errorf("%w: %s.%s must take exactly one argument", ErrUnknownMethod, t.rt.Name(), m.Name)
		}
		param := m.Type.In(1)
		name := m.Name
		return func(model, child any) error {
			cv := reflect.ValueOf(child)
			if !cv.IsValid() {
				return fmt.Errorf("%w: nil child for %s", ErrTypeMismatch, name)
			}
			if !cv.Type().AssignableTo(param) {
				if cv.Kind() == reflect.Ptr && cv.Type().Elem().AssignableTo(param) {
					cv = cv.Elem()
				} else {
					return fmt.Errorf("%w: %s expects %s, got %T", ErrTypeMismatch, name, param, child)
				}
			}
			out := reflect.ValueOf(model).MethodByName(name).Call([]reflect.Value{cv})
			if len(out) > 0 {
				if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
					return err
				}
			}
			return nil
		}, nil
	}

	if p, ok := t.byName[token]; ok && p.IsNavigation() {
		return p.Append, nil
	}
	return nil, fmt.Errorf("%w: %s has no setter %q", ErrUnknownMethod, t.rt.Name(), token)
}

// Collection resolves a getMethod token. "getI18ns" resolves to the method
// GetI18ns() or I18ns(), then to the navigation property i18ns.
func (t *Type) Collection(token string) (Collection, error) {
	pt := reflect.PointerTo(t.rt)
	for _, name := range []string{upperFirst(token), upperFirst(stripGet(token))} {
		m, ok := pt.MethodByName(name)
		if !ok || m.Type.NumIn() != 1 || m.Type.NumOut() != 1 {
			continue
		}
		method := m.Name
		return func(model any) ([]any, error) {
			out := reflect.ValueOf(model).MethodByName(method).Call(nil)
			return children(out[0]), nil
		}, nil
	}

	for _, name := range candidateNames(token) {
		if p, ok := t.byName[name]; ok && p.IsNavigation() {
			return func(model any) ([]any, error) {
				return p.Children(model), nil
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no collection accessor %q", ErrUnknownMethod, t.rt.Name(), token)
}

func candidateNames(token string) []string {
	if s := stripGet(token); s != token {
		return []string{token, s}
	}
	return []string{token}
}

// stripGet turns "getI18ns" into "i18ns".
func stripGet(token string) string {
	rest, ok := strings.CutPrefix(token, "get")
	if !ok || rest == "" {
		return token
	}
	r, _ := utf8.DecodeRuneInString(rest)
	if !unicode.IsUpper(r) {
		return token
	}
	return propertyName(rest)
}

// propertyName lower-cases the leading upper-case run of a Go identifier:
// "MinQty" -> "minQty", "ID" -> "id", "URLPath" -> "urlPath".
func propertyName(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n > 1 && n < len(runes) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
