package fields

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"docparse-backend/internal/shared/telemetry"
)

const schemaURL = "mem://fields/result.json"

// jsonType maps a declared field type to a JSON Schema type. Unknown types
// are left unchecked.
func jsonType(declared string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "string", "str", "text", "date", "datetime":
		return "string", true
	case "integer", "int":
		return "integer", true
	case "float", "number", "decimal", "double":
		return "number", true
	case "boolean", "bool":
		return "boolean", true
	default:
		return "", false
	}
}

// resultSchema builds a JSON Schema in which every typed property is nullable.
func resultSchema(schema Schema) ([]byte, bool) {
	props := map[string]any{}
	for _, f := range schema.fields {
		t, ok := jsonType(f.Type)
		if !ok {
			continue
		}
		props[f.Key] = map[string]any{"type": []string{t, "null"}}
	}
	if len(props) == 0 {
		return nil, false
	}
	raw, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
	})
	if err != nil {
		return nil, false
	}
	return raw, true
}

// typeMismatches reports, in request order, the keys whose values do not
// match their declared type. It never changes values.
func typeMismatches(schema Schema, values Values) (out []string) {
	defer func() {
		// the validator panics on Go values that have no JSON type
		if r := recover(); r != nil {
			telemetry.Warn("fields.validate.failed", map[string]any{"panic": r})
			out = nil
		}
	}()

	raw, ok := resultSchema(schema)
	if !ok {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		telemetry.Warn("fields.schema.invalid", map[string]any{"error": err})
		return nil
	}
	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		telemetry.Warn("fields.schema.invalid", map[string]any{"error": err})
		return nil
	}

	err = compiled.Validate(values.Map())
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		telemetry.Warn("fields.validate.failed", map[string]any{"error": err})
		return nil
	}

	bad := map[string]bool{}
	collectLeaves(verr, bad)
	for _, f := range schema.fields {
		if bad[f.Key] {
			out = append(out, f.Key)
		}
	}
	return out
}

func collectLeaves(verr *jsonschema.ValidationError, into map[string]bool) {
	if len(verr.Causes) == 0 {
		if key, ok := topLevelKey(verr.InstanceLocation); ok {
			into[key] = true
		}
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, into)
	}
}

// topLevelKey decodes "/key" from a JSON pointer.
func topLevelKey(pointer string) (string, bool) {
	if !strings.HasPrefix(pointer, "/") {
		return "", false
	}
	seg := strings.TrimPrefix(pointer, "/")
	if i := strings.Index(seg, "/"); i >= 0 {
		seg = seg[:i]
	}
	seg = strings.ReplaceAll(seg, "~1", "/")
	seg = strings.ReplaceAll(seg, "~0", "~")
	return seg, true
}
