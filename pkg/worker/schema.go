package worker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// validateOutput checks instance against an agent's output_schema. A nil
// schema is treated as "anything goes" — the registry already refuses to
// store an agent without an output_schema, but a zero-value Agent (as seen
// in tests) should not panic.
func validateOutput(schema map[string]any, instance map[string]any) error {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshaling output schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("output schema is not valid JSON: %w", err)
	}
	const resourceURL = "mem://worker-output-schema.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return fmt.Errorf("output schema is malformed: %w", err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("output schema does not compile: %w", err)
	}

	instRaw, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("marshaling candidate output: %w", err)
	}
	instDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(instRaw))
	if err != nil {
		return fmt.Errorf("candidate output is not valid JSON: %w", err)
	}
	if err := compiled.Validate(instDoc); err != nil {
		return err
	}
	return nil
}
