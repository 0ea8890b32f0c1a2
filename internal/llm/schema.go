package llm

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects v into an inline JSON schema object suitable for tool
// parameters and strict structured output.
func SchemaFor(v any) (map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := r.Reflect(v)

	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// MustSchemaFor is SchemaFor for static types known to reflect cleanly.
func MustSchemaFor(v any) map[string]any {
	schema, err := SchemaFor(v)
	if err != nil {
		panic(err)
	}
	return schema
}
