package validator

import (
	"fmt"
	"regexp"
)

// ParamError reports one schema violation in a task's params.
type ParamError struct {
	Param   string `json:"param"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("param %q: %s", e.Param, e.Message)
}

// ParamErrors aggregates all violations found in one validation pass.
type ParamErrors []*ParamError

func (e ParamErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

// ValidateParams checks params against a task's input schema, a light
// JSON-Schema subset: type, required, properties, enum, additionalProperties,
// minimum/maximum, minLength/maxLength, pattern, minItems/maxItems, items.
// A nil or empty schema accepts anything.
func ValidateParams(schema map[string]interface{}, params map[string]interface{}) error {
	if len(schema) == 0 {
		return nil
	}

	var errs ParamErrors
	validateObject(schema, params, "", &errs)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateObject(schema, value map[string]interface{}, path string, errs *ParamErrors) {
	props, _ := schema["properties"].(map[string]interface{})

	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, present := value[name]; !present {
				*errs = append(*errs, &ParamError{
					Param:   joinPath(path, name),
					Code:    "required",
					Message: "missing required parameter",
				})
			}
		}
	}

	if additional, ok := schema["additionalProperties"].(bool); ok && !additional {
		for name := range value {
			if _, known := props[name]; !known {
				*errs = append(*errs, &ParamError{
					Param:   joinPath(path, name),
					Code:    "unknown",
					Message: "parameter not allowed by schema",
				})
			}
		}
	}

	for name, raw := range props {
		propSchema, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		v, present := value[name]
		if !present {
			continue
		}
		validateValue(propSchema, v, joinPath(path, name), errs)
	}
}

func validateValue(schema map[string]interface{}, value interface{}, path string, errs *ParamErrors) {
	typ, _ := schema["type"].(string)

	switch typ {
	case "string":
		s, ok := value.(string)
		if !ok {
			*errs = append(*errs, typeError(path, "string"))
			return
		}
		if min, ok := schemaNumber(schema, "minLength"); ok && len(s) < int(min) {
			*errs = append(*errs, &ParamError{Param: path, Code: "min_length", Message: fmt.Sprintf("must be at least %d characters", int(min))})
		}
		if max, ok := schemaNumber(schema, "maxLength"); ok && len(s) > int(max) {
			*errs = append(*errs, &ParamError{Param: path, Code: "max_length", Message: fmt.Sprintf("must be at most %d characters", int(max))})
		}
		if pattern, ok := schema["pattern"].(string); ok {
			if re, err := regexp.Compile(pattern); err == nil && !re.MatchString(s) {
				*errs = append(*errs, &ParamError{Param: path, Code: "pattern", Message: "does not match required pattern"})
			}
		}
		checkEnum(schema, s, path, errs)

	case "number", "integer":
		n, ok := asNumber(value)
		if !ok {
			*errs = append(*errs, typeError(path, typ))
			return
		}
		if typ == "integer" && n != float64(int64(n)) {
			*errs = append(*errs, typeError(path, "integer"))
			return
		}
		if min, ok := schemaNumber(schema, "minimum"); ok && n < min {
			*errs = append(*errs, &ParamError{Param: path, Code: "minimum", Message: fmt.Sprintf("must be >= %v", min)})
		}
		if max, ok := schemaNumber(schema, "maximum"); ok && n > max {
			*errs = append(*errs, &ParamError{Param: path, Code: "maximum", Message: fmt.Sprintf("must be <= %v", max)})
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			*errs = append(*errs, typeError(path, "boolean"))
		}

	case "array":
		items, ok := value.([]interface{})
		if !ok {
			*errs = append(*errs, typeError(path, "array"))
			return
		}
		if min, ok := schemaNumber(schema, "minItems"); ok && len(items) < int(min) {
			*errs = append(*errs, &ParamError{Param: path, Code: "min_items", Message: fmt.Sprintf("must have at least %d items", int(min))})
		}
		if max, ok := schemaNumber(schema, "maxItems"); ok && len(items) > int(max) {
			*errs = append(*errs, &ParamError{Param: path, Code: "max_items", Message: fmt.Sprintf("must have at most %d items", int(max))})
		}
		if itemSchema, ok := schema["items"].(map[string]interface{}); ok {
			for i, item := range items {
				validateValue(itemSchema, item, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}

	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			*errs = append(*errs, typeError(path, "object"))
			return
		}
		validateObject(schema, obj, path, errs)

	default:
		// Untyped property: only enum applies.
		if s, ok := value.(string); ok {
			checkEnum(schema, s, path, errs)
		}
	}
}

func checkEnum(schema map[string]interface{}, value, path string, errs *ParamErrors) {
	enum, ok := schema["enum"].([]interface{})
	if !ok {
		return
	}
	for _, e := range enum {
		if s, ok := e.(string); ok && s == value {
			return
		}
	}
	*errs = append(*errs, &ParamError{Param: path, Code: "enum", Message: fmt.Sprintf("%q is not an allowed value", value)})
}

func typeError(path, want string) *ParamError {
	return &ParamError{Param: path, Code: "type", Message: fmt.Sprintf("must be a %s", want)}
}

func schemaNumber(schema map[string]interface{}, key string) (float64, bool) {
	return asNumber(schema[key])
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
