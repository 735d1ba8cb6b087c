package tools

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	schema := ObjectSchema(map[string]any{
		"city":  StringProperty(""),
		"units": StringEnumProperty("", "metric", "imperial"),
		"limit": IntegerProperty(""),
		"loud":  BooleanProperty(""),
	}, "city")

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"ok", map[string]any{"city": "Lisbon", "units": "metric", "limit": 3.0}, ""},
		{"extra keys allowed", map[string]any{"city": "Lisbon", "note": 1}, ""},
		{"missing required", map[string]any{"units": "metric"}, `missing required argument "city"`},
		{"wrong type", map[string]any{"city": "Lisbon", "loud": "yes"}, `"loud" must be boolean`},
		{"fractional integer", map[string]any{"city": "Lisbon", "limit": 2.5}, `"limit" must be integer`},
		{"enum", map[string]any{"city": "Lisbon", "units": "kelvin"}, `"units" must be one of metric, imperial`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(schema, tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClosedSchema(t *testing.T) {
	schema := ObjectSchema(map[string]any{"q": StringProperty("")})
	schema["additionalProperties"] = false

	if err := Validate(schema, map[string]any{"q": "x", "z": 1}); err == nil {
		t.Error("expected error for unexpected argument")
	}
	if err := Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Errorf("nil schema: %v", err)
	}
}
