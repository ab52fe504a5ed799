package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// validateSchemaShape checks that a raw schema document is at least
// well-formed JSON-Schema (draft 2020-12 shape), per §4.1. It does not
// validate any instance against it — that happens at output-validation
// time in the worker loop.
func validateSchemaShape(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("schema is not serializable: %w", err)
	}
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("schema is not valid JSON: %w", err)
	}
	const resourceURL = "mem://schema-under-validation.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return fmt.Errorf("schema is malformed: %w", err)
	}
	if _, err := c.Compile(resourceURL); err != nil {
		return fmt.Errorf("schema does not compile: %w", err)
	}
	return nil
}

// validateAgent enforces I2 (reference integrity) against a candidate
// document set, plus schema well-formedness.
func validateAgent(a *Agent, docs *documents) error {
	if a.ID == "" {
		return NewValidationError("agent", a.ID, "id", fmt.Errorf("id is required"))
	}
	for _, toolID := range a.AllowedTools {
		if _, ok := docs.Tools[toolID]; !ok {
			return NewValidationError("agent", a.ID, "allowed_tools", fmt.Errorf("unknown tool %q", toolID))
		}
	}
	for _, peerID := range a.AllowedAgents {
		if _, ok := docs.Agents[peerID]; !ok && peerID != a.ID {
			return NewValidationError("agent", a.ID, "allowed_agents", fmt.Errorf("unknown agent %q", peerID))
		}
	}
	if a.ModelProfileID != "" {
		if _, ok := docs.ModelProfiles[a.ModelProfileID]; !ok {
			return NewValidationError("agent", a.ID, "model_profile_id", fmt.Errorf("unknown model profile %q", a.ModelProfileID))
		}
	}
	if a.OutputSchema == nil {
		return NewValidationError("agent", a.ID, "output_schema", fmt.Errorf("output_schema is required"))
	}
	if err := validateSchemaShape(a.OutputSchema); err != nil {
		return NewValidationError("agent", a.ID, "output_schema", err)
	}
	if err := validateSchemaShape(a.InputSchema); err != nil {
		return NewValidationError("agent", a.ID, "input_schema", err)
	}
	return nil
}

func validateTool(t *Tool) error {
	if t.ID == "" {
		return NewValidationError("tool", t.ID, "id", fmt.Errorf("id is required"))
	}
	if err := validateSchemaShape(t.InputSchema); err != nil {
		return NewValidationError("tool", t.ID, "input_schema", err)
	}
	if err := validateSchemaShape(t.OutputSchema); err != nil {
		return NewValidationError("tool", t.ID, "output_schema", err)
	}
	return nil
}

func validateModelProfile(m *ModelProfile) error {
	if m.ID == "" {
		return NewValidationError("model_profile", m.ID, "id", fmt.Errorf("id is required"))
	}
	if m.Provider == "" {
		return NewValidationError("model_profile", m.ID, "provider", fmt.Errorf("provider is required"))
	}
	return nil
}

// validateWorkflow enforces I4 (after_agent checkpoints reference a known
// agent) plus reference integrity for sequence/required/optional agents.
func validateWorkflow(w *Workflow, docs *documents) error {
	if w.ID == "" {
		return NewValidationError("workflow", w.ID, "id", fmt.Errorf("id is required"))
	}
	allAgentRefs := append(append([]string{}, w.SuggestedSequence...), w.RequiredAgents...)
	allAgentRefs = append(allAgentRefs, w.OptionalAgents...)
	for _, id := range allAgentRefs {
		if _, ok := docs.Agents[id]; !ok {
			return NewValidationError("workflow", w.ID, "suggested_sequence/required_agents/optional_agents", fmt.Errorf("unknown agent %q", id))
		}
	}
	for _, cp := range w.Checkpoints {
		if cp.TriggerPoint == TriggerAfterAgent {
			if cp.AgentID == "" {
				return NewValidationError("workflow", w.ID, "checkpoints", fmt.Errorf("checkpoint %q with trigger_point=after_agent requires agent_id", cp.CheckpointID))
			}
			if _, ok := docs.Agents[cp.AgentID]; !ok {
				return NewValidationError("workflow", w.ID, "checkpoints", fmt.Errorf("checkpoint %q references unknown agent %q", cp.CheckpointID, cp.AgentID))
			}
		}
	}
	return nil
}
