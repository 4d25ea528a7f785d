package tools

import (
	"encoding/json"
	"fmt"
)

// ValidationError reports tool arguments that do not match the declared schema.
type ValidationError struct {
	Tool   Name
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: field %q %s", e.Tool, e.Field, e.Reason)
}

// validateObject checks value against an object schema expressed the way
// mcp-go stores it: properties as map[string]any and required names.
func validateObject(tool Name, path string, properties map[string]any, required []string, value any) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return &ValidationError{Tool: tool, Field: path, Reason: fmt.Sprintf("must be an object, got %s", jsonKind(value))}
	}

	for _, name := range required {
		if _, present := obj[name]; !present {
			return &ValidationError{Tool: tool, Field: joinPath(path, name), Reason: "is required"}
		}
	}

	for name, raw := range properties {
		v, present := obj[name]
		if !present {
			continue
		}
		schema, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if err := validateValue(tool, joinPath(path, name), schema, v); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(tool Name, path string, schema map[string]any, value any) error {
	typ, _ := schema["type"].(string)
	switch typ {
	case "string":
		if _, ok := value.(string); !ok {
			return mistyped(tool, path, "a string", value)
		}
	case "number":
		if _, ok := value.(json.Number); !ok {
			return mistyped(tool, path, "a number", value)
		}
	case "integer":
		n, ok := value.(json.Number)
		if !ok {
			return mistyped(tool, path, "an integer", value)
		}
		if _, err := n.Int64(); err != nil {
			return mistyped(tool, path, "an integer", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return mistyped(tool, path, "a boolean", value)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return mistyped(tool, path, "an array", value)
		}
		itemSchema, _ := schema["items"].(map[string]any)
		if itemSchema == nil {
			return nil
		}
		for i, item := range items {
			if err := validateValue(tool, fmt.Sprintf("%s[%d]", path, i), itemSchema, item); err != nil {
				return err
			}
		}
	case "object":
		props, _ := schema["properties"].(map[string]any)
		return validateObject(tool, path, props, requiredNames(schema["required"]), value)
	}
	return nil
}

func requiredNames(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, s := range r {
			if name, ok := s.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

func mistyped(tool Name, path, want string, value any) error {
	return &ValidationError{Tool: tool, Field: path, Reason: fmt.Sprintf("must be %s, got %s", want, jsonKind(value))}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
