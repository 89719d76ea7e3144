package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile loads and parses a YAML mapping file from the given path.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}

	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// LoadFiles loads several mapping files into one set. An entity declared in
// more than one file is an error.
func LoadFiles(paths ...string) (Set, error) {
	out := make(Set)
	for _, path := range paths {
		set, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for name, cfg := range set {
			if _, dup := out[name]; dup {
				return nil, fmt.Errorf("%w: entity %s declared twice (again in %s)", ErrInvalidConfig, name, path)
			}
			out[name] = cfg
		}
	}
	return out, nil
}

// Parse parses YAML data into a Set. Unknown config keys are rejected.
// Parse does not validate; call Set.Validate.
func Parse(data []byte) (Set, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var set Set
	if err := dec.Decode(&set); err != nil {
		if errors.Is(err, io.EOF) {
			return make(Set), nil
		}
		return nil, fmt.Errorf("failed to parse mapping YAML: %w", err)
	}
	if set == nil {
		set = make(Set)
	}

	for name, cfg := range set {
		if cfg == nil {
			return nil, fmt.Errorf("%w: entity %s has an empty configuration", ErrInvalidConfig, name)
		}
		cfg.Name = name
	}
	return set, nil
}
