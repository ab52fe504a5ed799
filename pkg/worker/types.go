// Package worker implements the bounded ReAct loop run once per agent
// invocation (C11, §4.6): compile context, ask the model to reason, either
// dispatch tool calls or emit a schema-validated final output.
package worker

import (
	"github.com/meridianflow/meridian/pkg/contextpipeline"
	"github.com/meridianflow/meridian/pkg/governance"
)

// Status is the terminal state of one worker invocation.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusIncomplete Status = "incomplete"
	StatusError      Status = "error"
)

// Input bundles everything the loop needs for one agent invocation. Observations
// accumulate only within this invocation and are never shared across workers.
type Input struct {
	SessionID     string
	AgentID       string
	OriginalInput any
	PriorOutputs  map[string]any
	Observations  []contextpipeline.Observation
	FromAgentID   string

	// Enforcer is the session's governance Enforcer, shared across every
	// agent this session invokes so session-wide counters (tool calls, LLM
	// calls) are enforced correctly. Callers outside the orchestrator loop
	// may leave this nil; Run then constructs a throwaway single-invocation
	// Enforcer instead.
	Enforcer *governance.Enforcer
}

// Output is returned to whichever caller spawned the worker — the
// orchestrator loop, or a workflow running a single agent directly.
type Output struct {
	Status         Status         `json:"status"`
	Output         map[string]any `json:"output,omitempty"`
	IterationsUsed int            `json:"iterations_used"`
	ToolCallsMade  int            `json:"tool_calls_made"`
	Error          string         `json:"error,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// llmAction is the parsed shape of {reasoning, action: {type, tool_requests? | output?}}.
type llmAction struct {
	Reasoning string `mapstructure:"reasoning"`
	Action    struct {
		Type         string         `mapstructure:"type"`
		ToolRequests []toolRequest  `mapstructure:"tool_requests"`
		Output       map[string]any `mapstructure:"output"`
	} `mapstructure:"action"`
}

type toolRequest struct {
	ToolID string         `mapstructure:"tool_id"`
	Input  map[string]any `mapstructure:"input"`
}

const (
	actionUseTools    = "use_tools"
	actionFinalOutput = "final_output"
)
