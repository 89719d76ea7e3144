// Package schema reflects domain model structs into property descriptors
// the mapping engine dispatches on: scalar type, identity and navigation
// flags, typed getters and setters, and method tokens resolved to calls.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jtl-software/connector-components-xtc/internal/identity"
)

var (
	// ErrNotStructPointer is returned when a model is not a non-nil pointer to a struct.
	ErrNotStructPointer = errors.New("model must be a non-nil pointer to a struct")

	// ErrUnknownProperty is returned when a name does not resolve to a property.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrUnknownMethod is returned when a setter or collection token does not
	// resolve to a method or navigation property.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrTypeMismatch is returned when a model or child has the wrong Go type.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Kind is the declared type of a property.
type Kind int

const (
	KindString Kind = iota + 1
	KindInteger
	KindFloat
	KindBoolean
	KindDateTime
	KindIdentity
	KindNavigation
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "DateTime"
	case KindIdentity:
		return "Identity"
	case KindNavigation:
		return "navigation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	identityType = reflect.TypeOf(identity.Identity{})
)

// kindOf classifies a field type. Pointer scalars are reported as nullable.
// ok is false for types the mapper cannot carry.
func kindOf(t reflect.Type) (kind Kind, nullable bool, ok bool) {
	switch t {
	case identityType:
		return KindIdentity, false, true
	case timeType:
		return KindDateTime, false, true
	}

	switch t.Kind() {
	case reflect.String:
		return KindString, false, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInteger, false, true
	case reflect.Float32, reflect.Float64:
		return KindFloat, false, true
	case reflect.Bool:
		return KindBoolean, false, true
	case reflect.Slice:
		if isModelType(t.Elem()) {
			return KindNavigation, false, true
		}
	case reflect.Ptr:
		elem := t.Elem()
		if elem == timeType {
			return KindDateTime, true, true
		}
		if isModelType(elem) {
			return KindNavigation, true, true
		}
		if k, _, ok := kindOf(elem); ok && k != KindNavigation && k != KindIdentity {
			return k, true, true
		}
	}
	return 0, false, false
}

// isModelType reports whether t is a struct or pointer to struct usable as
// a nested model.
func isModelType(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType && t != identityType
}
