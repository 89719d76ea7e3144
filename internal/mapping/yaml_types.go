package mapping

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StringOrArray accepts either a single string or a list of strings.
type StringOrArray []string

// UnmarshalYAML implements custom YAML unmarshaling for StringOrArray.
func (s *StringOrArray) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if isNull(node) {
			*s = nil
			return nil
		}
		var str string
		if err := node.Decode(&str); err != nil {
			return err
		}
		if str = strings.TrimSpace(str); str != "" {
			*s = StringOrArray{str}
		} else {
			*s = nil
		}
		return nil

	case yaml.SequenceNode:
		var arr []string
		if err := node.Decode(&arr); err != nil {
			return err
		}
		*s = arr
		return nil

	default:
		return fmt.Errorf("line %d: expected string or array", node.Line)
	}
}

// MarshalYAML outputs a single string if length is 1, otherwise an array.
func (s StringOrArray) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}

// UnmarshalYAML decodes mapPull keeping declaration order.
//
//	property: column              -> FromField(column)
//	property: ~                   -> FromComputation(property)
//	property: SubMapper|setter    -> FromMapper(SubMapper, setter, false)
func (m *PullMap) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, func(key string, value *yaml.Node) error {
		if isNull(value) {
			*m = append(*m, PullEntry{Property: key, Source: FromComputation(key)})
			return nil
		}
		raw, err := scalar(value)
		if err != nil {
			return err
		}
		src, err := parseSource(raw, false)
		if err != nil {
			return fmt.Errorf("line %d: mapPull.%s: %w", value.Line, key, err)
		}
		*m = append(*m, PullEntry{Property: key, Source: src})
		return nil
	})
}

// UnmarshalYAML decodes mapPush keeping declaration order.
//
//	column: property                   -> FromField(property)
//	column: ~                          -> FromComputation(column)
//	SubMapper|setter: property         -> FromMapper(SubMapper, setter, false)
//	SubMapper|setter|1: property       -> FromMapper(SubMapper, setter, true)
func (m *PushMap) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, func(key string, value *yaml.Node) error {
		if strings.Contains(key, "|") {
			src, err := parseSource(key, true)
			if err != nil {
				return fmt.Errorf("line %d: mapPush.%s: %w", value.Line, key, err)
			}
			if isNull(value) {
				return fmt.Errorf("line %d: mapPush.%s: sub-mapper entry needs a navigation property", value.Line, key)
			}
			prop, err := scalar(value)
			if err != nil {
				return err
			}
			*m = append(*m, PushEntry{Property: prop, Source: src})
			return nil
		}

		if isNull(value) {
			*m = append(*m, PushEntry{Column: key, Source: FromComputation(key)})
			return nil
		}
		prop, err := scalar(value)
		if err != nil {
			return err
		}
		*m = append(*m, PushEntry{Column: key, Property: prop, Source: FromField(prop)})
		return nil
	})
}

// parseSource splits "SubMapper|setter[|recurse]". Values without a pipe
// are plain fields.
func parseSource(raw string, allowRecurse bool) (ColumnSource, error) {
	if !strings.Contains(raw, "|") {
		return FromField(raw), nil
	}
	parts := strings.Split(raw, "|")
	limit := 2
	if allowRecurse {
		limit = 3
	}
	if len(parts) > limit {
		return ColumnSource{}, fmt.Errorf("expected at most %d pipe-separated tokens, got %d", limit, len(parts))
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return ColumnSource{}, fmt.Errorf("empty sub-mapper name")
	}
	setter := strings.TrimSpace(parts[1])
	recurse := false
	if len(parts) == 3 {
		flag := strings.ToLower(strings.TrimSpace(parts[2]))
		recurse = flag != "" && flag != "0" && flag != "false"
	}
	return FromMapper(name, setter, recurse), nil
}

func eachPair(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, err := scalar(node.Content[i])
		if err != nil {
			return err
		}
		if key == "" {
			return fmt.Errorf("line %d: empty key", node.Content[i].Line)
		}
		if seen[key] {
			return fmt.Errorf("line %d: duplicate key %q", node.Content[i].Line, key)
		}
		seen[key] = true
		if err := fn(key, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func scalar(node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	return strings.TrimSpace(node.Value), nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}
