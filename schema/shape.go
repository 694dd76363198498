package schema

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/conflux/types"
)

// ShapeType identifies the variant of a shape description.
type ShapeType string

const (
	TypeObject  ShapeType = "object"
	TypeString  ShapeType = "string"
	TypeNumber  ShapeType = "number"
	TypeBoolean ShapeType = "boolean"
	TypeArray   ShapeType = "array"

	// TypeAny matches every value. It is the fallback for shape descriptions
	// with an absent or unrecognized type tag.
	TypeAny ShapeType = "any"
)

// Shape is the parsed, typed form of a declarative value-shape description.
type Shape struct {
	Type ShapeType

	// Object constraints
	Properties map[string]*Shape
	Required   []string

	// String constraints
	Enum []any

	// Number constraints (inclusive)
	Minimum *float64
	Maximum *float64

	// Array item shape
	Items *Shape
}

// ParseShape converts a raw JSON-decoded shape description into a Shape.
// A nil description parses to nil, meaning validation trivially succeeds.
// Malformed descriptions return a SCHEMA_ERROR rather than panicking.
func ParseShape(raw map[string]any) (*Shape, error) {
	if raw == nil {
		return nil, nil
	}
	return parseShape(raw, "")
}

func parseShape(raw map[string]any, path string) (*Shape, error) {
	s := &Shape{Type: TypeAny}

	if tag, ok := raw["type"]; ok {
		str, ok := tag.(string)
		if !ok {
			return nil, schemaErrf(path, "type tag must be a string, got %T", tag)
		}
		switch ShapeType(str) {
		case TypeObject, TypeString, TypeNumber, TypeBoolean, TypeArray:
			s.Type = ShapeType(str)
		default:
			// Unrecognized type tags fall back to "any".
			s.Type = TypeAny
		}
	}

	if props, ok := raw["properties"]; ok {
		propMap, ok := props.(map[string]any)
		if !ok {
			return nil, schemaErrf(path, "properties must be an object, got %T", props)
		}
		s.Properties = make(map[string]*Shape, len(propMap))
		for name, sub := range propMap {
			subMap, ok := sub.(map[string]any)
			if !ok {
				return nil, schemaErrf(join(path, name), "property description must be an object, got %T", sub)
			}
			parsed, err := parseShape(subMap, join(path, name))
			if err != nil {
				return nil, err
			}
			s.Properties[name] = parsed
		}
	}

	if req, ok := raw["required"]; ok {
		list, ok := req.([]any)
		if !ok {
			return nil, schemaErrf(path, "required must be a list, got %T", req)
		}
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return nil, schemaErrf(path, "required entries must be strings, got %T", item)
			}
			s.Required = append(s.Required, name)
		}
	}

	if enum, ok := raw["enum"]; ok {
		list, ok := enum.([]any)
		if !ok {
			return nil, schemaErrf(path, "enum must be a list, got %T", enum)
		}
		if len(list) == 0 {
			return nil, schemaErrf(path, "enum must not be empty")
		}
		s.Enum = list
	}

	var err error
	if s.Minimum, err = parseBound(raw, "minimum", path); err != nil {
		return nil, err
	}
	if s.Maximum, err = parseBound(raw, "maximum", path); err != nil {
		return nil, err
	}
	if s.Minimum != nil && s.Maximum != nil && *s.Minimum > *s.Maximum {
		return nil, schemaErrf(path, "minimum %v exceeds maximum %v", *s.Minimum, *s.Maximum)
	}

	if items, ok := raw["items"]; ok {
		itemMap, ok := items.(map[string]any)
		if !ok {
			return nil, schemaErrf(path, "items must be an object, got %T", items)
		}
		parsed, err := parseShape(itemMap, join(path, "items"))
		if err != nil {
			return nil, err
		}
		s.Items = parsed
	}

	return s, nil
}

// parseBound extracts an optional numeric bound from the raw description.
func parseBound(raw map[string]any, field, path string) (*float64, error) {
	v, ok := raw[field]
	if !ok {
		return nil, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, schemaErrf(path, "%s must be a number, got %T", field, v)
	}
	return &f, nil
}

// toFloat normalizes the numeric representations produced by JSON decoding.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func schemaErrf(path, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if path != "" {
		msg = fmt.Sprintf("at %q: %s", path, msg)
	}
	return types.NewSchemaError("malformed validation schema: " + msg)
}

func join(path, segment string) string {
	if path == "" {
		return segment
	}
	return path + "." + segment
}
