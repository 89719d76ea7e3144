package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jtl-software/connector-components-xtc/internal/mapping"
	"github.com/jtl-software/connector-components-xtc/internal/row"
)

var (
	// ErrMapperNotFound is returned when no definition is registered under a name.
	ErrMapperNotFound = errors.New("mapper not found")

	// ErrMissingConfig is returned when a definition has no mapping configuration.
	ErrMissingConfig = errors.New("mapper has no mapping configuration")
)

// PullFunc computes a property value from a source row. It is used for
// mapPull entries declared with a null value, and as the fallback when the
// row lacks the mapped column.
type PullFunc func(ctx context.Context, r *row.Row) (row.Value, error)

// PushFunc computes a column value. parentModel and parentRow are nil for
// top-level pushes.
type PushFunc func(ctx context.Context, model, parentModel any, parentRow *row.Row) (row.Value, error)

// AddDataFunc enriches a freshly pulled model.
type AddDataFunc func(ctx context.Context, model any, r *row.Row) error

// PushDoneFunc runs after a model (and its deferred children) was pushed.
type PushDoneFunc func(ctx context.Context, model any, r *row.Row, parentModel any) error

// Computations are the named value functions of a mapper.
type Computations struct {
	// Pull is keyed by model property name.
	Pull map[string]PullFunc

	// Push is keyed by target column.
	Push map[string]PushFunc
}

// Definition ties an entity name to its model constructor, mapping
// configuration and hooks.
type Definition struct {
	// Name is the entity (mapper) name used in configurations.
	Name string

	// New returns a fresh model: a non-nil pointer to a struct.
	New func() any

	// Config is attached directly or later by Registry.Load.
	Config *mapping.Config

	Computations Computations

	// AddData is optional.
	AddData AddDataFunc

	// PushDone is optional.
	PushDone PushDoneFunc
}

// ConfigError reports a definition whose configuration does not fit its
// model or the registry. It matches mapping.ErrInvalidConfig.
type ConfigError struct {
	Entity string
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("mapper %s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("mapper %s.%s: %v", e.Entity, e.Field, e.Err)
}

// Unwrap exposes both the cause and mapping.ErrInvalidConfig.
func (e *ConfigError) Unwrap() []error {
	return []error{mapping.ErrInvalidConfig, e.Err}
}
