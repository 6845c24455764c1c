package reasoning

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

// OutputValidator checks reasoning output against the JSON schema registered
// for a task type. Unknown task types pass through unvalidated.
type OutputValidator struct {
	schemas map[string]*jsonschema.Schema
}

func NewOutputValidator(schemaSources map[string]string) (*OutputValidator, error) {
	compiler := jsonschema.NewCompiler()
	for taskType, source := range schemaSources {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(source)))
		if err != nil {
			return nil, fmt.Errorf("parse schema for %s: %w", taskType, err)
		}
		if err := compiler.AddResource(taskType+".json", doc); err != nil {
			return nil, fmt.Errorf("add schema for %s: %w", taskType, err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema, len(schemaSources))
	for taskType := range schemaSources {
		schema, err := compiler.Compile(taskType + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", taskType, err)
		}
		schemas[taskType] = schema
	}
	return &OutputValidator{schemas: schemas}, nil
}

func (v *OutputValidator) Validate(taskType string, output json.RawMessage) error {
	schema, ok := v.schemas[taskType]
	if !ok {
		return nil
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(output))
	if err != nil {
		return types.WrapFault(types.KindTaskExecution, "reasoning output is not valid JSON", err)
	}
	if err := schema.Validate(instance); err != nil {
		return types.WrapFault(types.KindTaskExecution, "reasoning output failed schema validation", err)
	}
	return nil
}

// DefaultSchemas covers the built-in task types. Every plan must name the
// HTTP call to perform and, when the action is reversible, its inverse.
func DefaultSchemas() map[string]string {
	planSchema := `{
		"type": "object",
		"required": ["method", "path"],
		"properties": {
			"method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
			"path": {"type": "string", "minLength": 1},
			"body": {"type": "object"},
			"inverse": {
				"type": "object",
				"required": ["method", "path"],
				"properties": {
					"method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
					"path": {"type": "string", "minLength": 1},
					"body": {"type": "object"}
				}
			},
			"summary": {"type": "string"}
		}
	}`
	return map[string]string{
		"create_issue":   planSchema,
		"update_entity":  planSchema,
		"post_message":   planSchema,
		"delete_entity":  planSchema,
		"redeploy":       planSchema,
		"generic_action": planSchema,
	}
}
