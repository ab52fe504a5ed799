package contextpipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianflow/meridian/pkg/registry"
)

func TestCompileForAgentAppliesHandoffThenPipeline(t *testing.T) {
	agent := registry.Agent{ID: "remediation", ContextRequirements: registry.ContextRequirements{MaxContextTokens: 10_000}}
	handoff := HandoffTable{Rules: []HandoffRule{{From: "triage", To: "remediation", Mode: HandoffScoped, DenyFields: []string{"raw_logs"}}}}
	emitter := &stubEmitter{}
	pipeline := NewPipeline(nil, &Transformer{})
	compiler := NewCompiler(pipeline, handoff, nil, HeuristicEstimator{}, emitter, nil)

	cc := compiler.CompileForAgent(context.Background(), CompileForAgentInput{
		SessionID:     "s1",
		Agent:         agent,
		OriginalInput: map[string]any{"id": "1"},
		PriorOutputs:  map[string]any{"raw_logs": "secret", "summary": "ok"},
		FromAgentID:   "triage",
	})

	assert.Equal(t, map[string]any{"summary": "ok"}, cc.PriorOutputs)
	assert.Contains(t, emitter.events, "context_handoff")
	assert.Greater(t, cc.EstimatedTokens, 0)

	recs := compiler.Lineage.ForSession("s1")
	require.Len(t, recs, 1)
	assert.Equal(t, "remediation", recs[0].AgentID)
	assert.Equal(t, "triage", recs[0].FromAgentID)
}

func TestCompileForAgentWithoutPipelineUsesStaticSplit(t *testing.T) {
	agent := registry.Agent{ID: "a1", ContextRequirements: registry.ContextRequirements{MaxContextTokens: 1}}
	compiler := NewCompiler(nil, HandoffTable{}, nil, HeuristicEstimator{}, nil, nil)
	cc := compiler.CompileForAgent(context.Background(), CompileForAgentInput{
		SessionID: "s1",
		Agent:     agent,
		Observations: []Observation{
			{Content: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
			{Content: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		},
	})
	assert.LessOrEqual(t, len(cc.Observations), 2)
}

func TestCompileForOrchestratorBuildsCatalogAndGuidance(t *testing.T) {
	workflow := registry.Workflow{ID: "incident-response", Goal: "resolve the incident", RequiredAgents: []string{"triage"}}
	agents := []registry.Agent{{ID: "triage", Description: "investigates", Capabilities: []string{"log_analysis"}}}
	compiler := NewCompiler(NewPipeline(nil), HandoffTable{}, nil, HeuristicEstimator{}, nil, nil)

	cc := compiler.CompileForOrchestrator(context.Background(), CompileForOrchestratorInput{
		SessionID:        "s1",
		Workflow:         workflow,
		OriginalInput:    map[string]any{"alert": "cpu spike"},
		ReachableAgents:  agents,
		MaxContextTokens: 10_000,
	})

	guidance := cc.Metadata["workflow_guidance"].(map[string]any)
	assert.Equal(t, "resolve the incident", guidance["goal"])
	catalog := cc.Metadata["agent_catalog"].([]map[string]any)
	require.Len(t, catalog, 1)
	assert.Equal(t, "triage", catalog[0]["id"])
}
