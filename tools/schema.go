package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Schema helpers build the JSON Schema subset Validate understands.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property.
func StringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// StringEnumProperty creates a string property limited to values.
func StringEnumProperty(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

// IntegerProperty creates an integer property.
func IntegerProperty(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// NumberProperty creates a number property.
func NumberProperty(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// BooleanProperty creates a boolean property.
func BooleanProperty(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

// Validate checks args against an object schema built with the helpers
// above: required keys, property types, string enums and
// additionalProperties=false. A nil schema accepts anything.
func Validate(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}

	var problems []string

	for _, key := range requiredKeys(schema["required"]) {
		if v, ok := args[key]; !ok || v == nil {
			problems = append(problems, fmt.Sprintf("missing required argument %q", key))
		}
	}

	props, _ := schema["properties"].(map[string]any)
	closed := schema["additionalProperties"] == false

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := args[k]
		prop, known := props[k].(map[string]any)
		if !known {
			if closed {
				problems = append(problems, fmt.Sprintf("unexpected argument %q", k))
			}
			continue
		}
		if v == nil {
			continue
		}
		if typ, _ := prop["type"].(string); typ != "" && !hasType(v, typ) {
			problems = append(problems, fmt.Sprintf("argument %q must be %s", k, typ))
			continue
		}
		if enum := enumValues(prop["enum"]); len(enum) > 0 {
			s, _ := v.(string)
			if !contains(enum, s) {
				problems = append(problems, fmt.Sprintf("argument %q must be one of %s", k, strings.Join(enum, ", ")))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid args: %s", strings.Join(problems, "; "))
	}
	return nil
}

func hasType(v any, typ string) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := toFloat(v)
		return ok
	case "integer":
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case "array":
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

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
	case int32:
		return float64(n), true
	}
	return 0, false
}

func requiredKeys(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, x := range r {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func enumValues(v any) []string {
	return requiredKeys(v)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
