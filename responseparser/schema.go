package responseparser

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateAgainstSchema compiles schema and validates payload against it.
// Returns the validator's own diagnostic lines alongside any error.
func ValidateAgainstSchema(schema, payload []byte) ([]string, error) {
	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	var payloadDoc any
	if err := json.Unmarshal(payload, &payloadDoc); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := compiled.Validate(payloadDoc); err != nil {
		return []string{err.Error()}, err
	}
	return nil, nil
}

// ApplyStrictAdditionalProperties recursively sets additionalProperties:
// false on every object schema reachable from root, including $defs and
// array items, as OpenAI's native structured-output mode requires.
func ApplyStrictAdditionalProperties(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}
	if t, _ := out["type"].(string); t == "object" || out["properties"] != nil {
		out["additionalProperties"] = false
	}
	if props, ok := out["properties"].(map[string]any); ok {
		newProps := make(map[string]any, len(props))
		for k, v := range props {
			if sub, ok := v.(map[string]any); ok {
				newProps[k] = ApplyStrictAdditionalProperties(sub)
			} else {
				newProps[k] = v
			}
		}
		out["properties"] = newProps
	}
	if defs, ok := out["$defs"].(map[string]any); ok {
		newDefs := make(map[string]any, len(defs))
		for k, v := range defs {
			if sub, ok := v.(map[string]any); ok {
				newDefs[k] = ApplyStrictAdditionalProperties(sub)
			} else {
				newDefs[k] = v
			}
		}
		out["$defs"] = newDefs
	}
	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = ApplyStrictAdditionalProperties(items)
	}
	return out
}
