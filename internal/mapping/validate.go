package mapping

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid mapping configuration")

// ValidationError reports one problem in one entity's configuration.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("mapping %s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("mapping %s.%s: %s", e.Entity, e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// Validate checks every config in the set and joins all problems found.
func (s Set) Validate() error {
	var errs []error
	for _, name := range s.Names() {
		if err := s[name].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks the structural rules of one config. It does not look at
// the model type; the registry does that when the entity is compiled.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Entity: c.Name, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !c.HasTable() && !c.HasQuery() {
		fail("", "either table or query is required")
	}
	if len(c.Where) > 0 && !c.HasTable() {
		fail("where", "requires table")
	}
	if c.Identity != "" {
		if !c.HasTable() {
			fail("identity", "requires table")
		}
		if len(c.Where) == 0 {
			fail("identity", "requires where")
		}
	}
	if len(c.Push) > 0 && !c.HasTable() && !c.AddToParent {
		fail("mapPush", "requires table unless addToParent is set")
	}
	if c.GetMethod != "" && len(c.Push) == 0 {
		fail("getMethod", "has no effect without mapPush")
	}

	for i, w := range c.Where {
		if w == "" {
			fail(fmt.Sprintf("where[%d]", i), "empty column name")
		}
	}

	for _, e := range c.Pull {
		switch e.Source.Kind {
		case SourceField:
			if e.Source.Name == "" {
				fail("mapPull."+e.Property, "empty column name")
			}
		case SourceMapper:
			if e.Source.Recurse {
				fail("mapPull."+e.Property, "recurse flag is only valid in mapPush")
			}
		}
	}

	columns := make(map[string]bool)
	for _, e := range c.Push {
		switch e.Source.Kind {
		case SourceField:
			if e.Property == "" {
				fail("mapPush."+e.Column, "empty property name")
			}
		case SourceMapper:
			if e.Property == "" {
				fail("mapPush."+e.Source.Name, "empty navigation property")
			}
			continue
		}
		if columns[e.Column] {
			fail("mapPush."+e.Column, "column mapped twice")
		}
		columns[e.Column] = true
	}

	return errors.Join(errs...)
}
