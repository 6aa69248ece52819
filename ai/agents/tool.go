// Package agent provides the bounded tool-calling loop that answers a user
// query by iterating between the generation model and a closed tool set.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one registered external action.
type Tool interface {
	// Name returns the tool identifier the model calls it by.
	Name() string

	// Description is presented to the model verbatim; it drives tool
	// selection and must be precise.
	Description() string

	// Run executes the tool with a JSON input string. Implementations
	// convert internal faults into the returned error; they never panic.
	Run(ctx context.Context, input string) (string, error)
}

// ToolWithSchema extends Tool with a JSON Schema for its input, validated
// before every invocation.
type ToolWithSchema interface {
	Tool

	// Parameters returns the JSON Schema for the tool's input parameters.
	Parameters() map[string]any
}

// ValidateInput checks a JSON input string against a tool's declared schema:
// the input must be a JSON object, every required property must be present,
// and present properties must match their declared primitive type. This is a
// closed-world check, not a full JSON Schema implementation; the registry is
// an enumerable variant set and these are the only shapes tools declare.
func ValidateInput(schema map[string]any, input string) error {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(input), &parsed); err != nil {
		return fmt.Errorf("input is not a JSON object: %w", err)
	}

	properties, _ := schema["properties"].(map[string]any)

	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := parsed[name]; !present {
				return fmt.Errorf("missing required property %q", name)
			}
		}
	} else if required, ok := schema["required"].([]any); ok {
		for _, name := range required {
			key, _ := name.(string)
			if _, present := parsed[key]; !present {
				return fmt.Errorf("missing required property %q", key)
			}
		}
	}

	for name, value := range parsed {
		spec, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		declaredType, _ := spec["type"].(string)
		if declaredType == "" {
			continue
		}
		if !matchesType(value, declaredType) {
			return fmt.Errorf("property %q must be of type %s", name, declaredType)
		}
	}
	return nil
}

func matchesType(value any, declaredType string) bool {
	switch declaredType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}
