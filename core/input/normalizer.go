// Package input normalizes raw calculation inputs against a model's
// parameter specification.
package input

import (
	"fmt"
	"strconv"
	"strings"

	"quote-pricing/core/model"
	"quote-pricing/internal/errors"
)

// Values is a normalized input record. Keys are case-folded and
// unique; values carry the concrete type their ParameterSpec names.
type Values map[string]any

// Has reports whether a property is present.
func (v Values) Has(name string) bool {
	_, ok := v[strings.ToLower(name)]
	return ok
}

// Any returns the raw value for a case-insensitive name.
func (v Values) Any(name string) any {
	return v[strings.ToLower(name)]
}

// Str returns a string property, or "" when absent.
func (v Values) Str(name string) string {
	switch val := v[strings.ToLower(name)].(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// Float returns a numeric property, or 0 when absent.
func (v Values) Float(name string) float64 {
	switch val := v[strings.ToLower(name)].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}

// Int returns an integer property, or 0 when absent.
func (v Values) Int(name string) int {
	switch val := v[strings.ToLower(name)].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(val))
		return n
	default:
		return 0
	}
}

// Bool returns a boolean property, or false when absent.
func (v Values) Bool(name string) bool {
	switch val := v[strings.ToLower(name)].(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	default:
		return false
	}
}

// Array returns a list property, or nil when absent.
func (v Values) Array(name string) []any {
	if arr, ok := v[strings.ToLower(name)].([]any); ok {
		return arr
	}
	return nil
}

// Set stores a property under its folded name.
func (v Values) Set(name string, value any) {
	v[strings.ToLower(name)] = value
}

// Clone returns a shallow copy. Lines annotated from shared quote
// context each get their own copy so no mutable state is shared.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Normalize validates, case-folds, defaults, and scrubs a raw input
// record against a model definition. It returns the normalized record
// and the set of present property names, or a ValidationError naming
// every missing required parameter.
//
// Normalizing an already-normalized record is a no-op.
func Normalize(raw map[string]any, def *model.Definition) (Values, []string, error) {
	values := make(Values, len(raw))

	// Case-fold keys, dropping null and blank entries. The first
	// occurrence of a folded key wins; keys are unique afterwards.
	for key, val := range raw {
		folded := strings.ToLower(key)
		if _, dup := values[folded]; dup {
			continue
		}
		if isBlank(val) {
			continue
		}
		values[folded] = val
	}

	// Coerce present values to their declared parameter types.
	for _, spec := range def.Parameters {
		folded := strings.ToLower(spec.Name)
		val, ok := values[folded]
		if !ok {
			continue
		}
		coerced, err := coerce(spec, val)
		if err != nil {
			return nil, nil, err
		}
		values[folded] = coerced
	}

	// Inject type-directed defaults for optional parameters that are
	// absent or were scrubbed as blank.
	for _, spec := range def.Parameters {
		if spec.Required || !spec.HasDefault {
			continue
		}
		folded := strings.ToLower(spec.Name)
		if _, ok := values[folded]; ok {
			continue
		}
		values[folded] = defaultValue(spec)
	}

	// Recompute the present names and compare against the required set.
	var missing []string
	for _, spec := range def.Parameters {
		if !spec.Required {
			continue
		}
		if _, ok := values[strings.ToLower(spec.Name)]; !ok {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, errors.MissingInputs(missing)
	}

	included := make([]string, 0, len(values))
	for name := range values {
		included = append(included, name)
	}

	return values, included, nil
}

// isBlank reports whether a raw value counts as absent.
func isBlank(val any) bool {
	if val == nil {
		return true
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// coerce converts a raw value to the concrete type its spec names.
func coerce(spec model.ParameterSpec, val any) (any, error) {
	switch strings.ToLower(spec.Type) {
	case model.TypeDouble:
		switch v := val.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, errors.Invalidf("parameter %s must be a number, got %q", spec.Name, v)
			}
			return f, nil
		default:
			return nil, errors.Invalidf("parameter %s must be a number", spec.Name)
		}
	case model.TypeInt:
		switch v := val.(type) {
		case int:
			return v, nil
		case float64:
			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, errors.Invalidf("parameter %s must be an integer, got %q", spec.Name, v)
			}
			return n, nil
		default:
			return nil, errors.Invalidf("parameter %s must be an integer", spec.Name)
		}
	case model.TypeBool:
		switch v := val.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, errors.Invalidf("parameter %s must be a boolean, got %q", spec.Name, v)
			}
			return b, nil
		default:
			return nil, errors.Invalidf("parameter %s must be a boolean", spec.Name)
		}
	case model.TypeArray, model.TypeObjectArray:
		if v, ok := val.([]any); ok {
			return v, nil
		}
		return nil, errors.Invalidf("parameter %s must be an array", spec.Name)
	case model.TypeLiteral:
		// Literal passthrough: the value crosses untouched.
		return val, nil
	default:
		if s, ok := val.(string); ok {
			return s, nil
		}
		return fmt.Sprint(val), nil
	}
}

// defaultValue produces the type-directed default for an optional
// parameter.
func defaultValue(spec model.ParameterSpec) any {
	switch strings.ToLower(spec.Type) {
	case model.TypeInt:
		n, _ := strconv.Atoi(spec.DefaultValue)
		return n
	case model.TypeDouble:
		f, _ := strconv.ParseFloat(spec.DefaultValue, 64)
		return f
	case model.TypeBool:
		b, _ := strconv.ParseBool(spec.DefaultValue)
		return b
	case model.TypeArray, model.TypeObjectArray:
		return []any{}
	default:
		return spec.DefaultValue
	}
}
