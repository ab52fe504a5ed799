package contextpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandoffTableResolvesMostSpecificRule(t *testing.T) {
	table := HandoffTable{Rules: []HandoffRule{
		{From: "*", To: "*", Mode: HandoffFull},
		{From: "triage", To: "*", Mode: HandoffScoped, DenyFields: []string{"raw_logs"}},
		{From: "triage", To: "remediation", Mode: HandoffMinimal},
	}}
	assert.Equal(t, HandoffMinimal, table.Resolve("triage", "remediation").Mode)
	assert.Equal(t, HandoffScoped, table.Resolve("triage", "explain").Mode)
	assert.Equal(t, HandoffFull, table.Resolve("other", "explain").Mode)
}

func TestHandoffTableDefaultsToScopedWhenNoRuleMatches(t *testing.T) {
	table := HandoffTable{}
	assert.Equal(t, HandoffScoped, table.Resolve("a", "b").Mode)
}

func TestApplyHandoffMinimalKeepsOnlyIdentifiers(t *testing.T) {
	table := HandoffTable{Rules: []HandoffRule{{From: "a", To: "b", Mode: HandoffMinimal}}}
	input, prior := ApplyHandoff(table, "a", "b", map[string]any{"id": "123", "goal": "investigate"}, map[string]any{"a": map[string]any{"x": 1}})
	assert.Nil(t, prior)
	assert.Equal(t, map[string]any{"id": "123"}, input)
}

func TestApplyHandoffScopedAppliesDenyList(t *testing.T) {
	table := HandoffTable{Rules: []HandoffRule{{From: "a", To: "b", Mode: HandoffScoped, DenyFields: []string{"secret"}}}}
	_, prior := ApplyHandoff(table, "a", "b", "input", map[string]any{"secret": "x", "visible": "y"})
	assert.Equal(t, map[string]any{"visible": "y"}, prior)
}

func TestApplyHandoffScopedAppliesAllowList(t *testing.T) {
	table := HandoffTable{Rules: []HandoffRule{{From: "a", To: "b", Mode: HandoffScoped, AllowFields: []string{"visible"}}}}
	_, prior := ApplyHandoff(table, "a", "b", "input", map[string]any{"secret": "x", "visible": "y"})
	assert.Equal(t, map[string]any{"visible": "y"}, prior)
}

func TestApplyHandoffFullPassesThroughUnchanged(t *testing.T) {
	table := HandoffTable{Rules: []HandoffRule{{From: "a", To: "b", Mode: HandoffFull}}}
	input, prior := ApplyHandoff(table, "a", "b", "input", map[string]any{"x": 1})
	assert.Equal(t, "input", input)
	assert.Equal(t, map[string]any{"x": 1}, prior)
}

func TestApplyHandoffTranslatesPerAgentFields(t *testing.T) {
	table := HandoffTable{Rules: []HandoffRule{{
		From: "a", To: "b", Mode: HandoffFull,
		TranslateFields: []string{"summary"},
	}}}
	_, prior := ApplyHandoff(table, "a", "b", "input", map[string]any{
		"triage": map[string]any{"summary": "short", "raw": "long blob"},
	})
	assert.Equal(t, map[string]any{"summary": "short"}, prior["triage"])
}
