package schema

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/BaSui01/conflux/types"
)

// Result is the outcome of validating a value against a compiled shape.
// When Valid is true, Value carries the normalized value (currently the
// input unchanged). When Valid is false, Errors lists every failing leaf.
type Result struct {
	Valid  bool               `json:"valid"`
	Value  any                `json:"value,omitempty"`
	Errors []types.FieldError `json:"errors,omitempty"`
}

// Validator is an executable validator compiled from a shape description.
// A nil Validator (or one compiled from a nil shape) accepts every value.
type Validator struct {
	shape *Shape
}

// Compile interprets a raw shape description into a Validator. A nil
// description compiles to a validator that accepts everything. Malformed
// descriptions fail with a SCHEMA_ERROR carrying a human-readable cause.
func Compile(raw map[string]any) (*Validator, error) {
	shape, err := ParseShape(raw)
	if err != nil {
		return nil, err
	}
	return &Validator{shape: shape}, nil
}

// Validate checks value against the compiled shape, collecting every failing
// leaf with its dotted path.
func (v *Validator) Validate(value any) Result {
	if v == nil || v.shape == nil {
		return Result{Valid: true, Value: value}
	}

	var errs []types.FieldError
	validate(v.shape, value, "", &errs)
	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}
	return Result{Valid: true, Value: value}
}

func validate(s *Shape, value any, path string, errs *[]types.FieldError) {
	switch s.Type {
	case TypeAny:
		// Matches everything.
	case TypeObject:
		validateObject(s, value, path, errs)
	case TypeString:
		validateString(s, value, path, errs)
	case TypeNumber:
		validateNumber(s, value, path, errs)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			addErr(errs, path, fmt.Sprintf("expected boolean, got %s", typeName(value)))
		}
	case TypeArray:
		validateArray(s, value, path, errs)
	}
}

func validateObject(s *Shape, value any, path string, errs *[]types.FieldError) {
	obj, ok := value.(map[string]any)
	if !ok {
		addErr(errs, path, fmt.Sprintf("expected object, got %s", typeName(value)))
		return
	}

	for _, name := range s.Required {
		if _, present := obj[name]; !present {
			addErr(errs, join(path, name), "required property is missing")
		}
	}

	for name, propShape := range s.Properties {
		propValue, present := obj[name]
		if !present {
			continue
		}
		validate(propShape, propValue, join(path, name), errs)
	}
}

func validateString(s *Shape, value any, path string, errs *[]types.FieldError) {
	str, ok := value.(string)
	if !ok {
		addErr(errs, path, fmt.Sprintf("expected string, got %s", typeName(value)))
		return
	}
	if len(s.Enum) == 0 {
		return
	}
	for _, allowed := range s.Enum {
		if reflect.DeepEqual(allowed, any(str)) {
			return
		}
	}
	addErr(errs, path, fmt.Sprintf("value %q is not one of the allowed values", str))
}

func validateNumber(s *Shape, value any, path string, errs *[]types.FieldError) {
	n, ok := toFloat(value)
	if !ok {
		addErr(errs, path, fmt.Sprintf("expected number, got %s", typeName(value)))
		return
	}
	if s.Minimum != nil && n < *s.Minimum {
		addErr(errs, path, fmt.Sprintf("value %s is below minimum %s",
			formatNumber(n), formatNumber(*s.Minimum)))
	}
	if s.Maximum != nil && n > *s.Maximum {
		addErr(errs, path, fmt.Sprintf("value %s is above maximum %s",
			formatNumber(n), formatNumber(*s.Maximum)))
	}
}

func validateArray(s *Shape, value any, path string, errs *[]types.FieldError) {
	arr, ok := value.([]any)
	if !ok {
		addErr(errs, path, fmt.Sprintf("expected array, got %s", typeName(value)))
		return
	}
	if s.Items == nil {
		return
	}
	for i, item := range arr {
		validate(s.Items, item, join(path, strconv.Itoa(i)), errs)
	}
}

func addErr(errs *[]types.FieldError, path, message string) {
	*errs = append(*errs, types.FieldError{Path: path, Message: message})
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	default:
		return reflect.TypeOf(v).String()
	}
}
