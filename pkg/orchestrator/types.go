// Package orchestrator implements the bounded meta-ReAct loop (C12, §4.7):
// reason over the catalog of reachable agents, fan out worker invocations,
// enforce HITL checkpoints at pre_workflow/after_agent/before_completion,
// and assemble the workflow's evidence map.
package orchestrator

import (
	"time"
)

// Status is the terminal state of one orchestrator run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusIncomplete Status = "incomplete"
	StatusCancelled Status = "cancelled"
	StatusError      Status = "error"
)

// Input starts a workflow run.
type Input struct {
	SessionID     string
	WorkflowID    string
	OriginalInput any
	Deadline      time.Time // zero means no workflow-level deadline
}

// Output is the orchestrator's final word on a session.
type Output struct {
	Status      Status         `json:"status"`
	EvidenceMap map[string]any `json:"evidence_map,omitempty"`
	Error       string         `json:"error,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// orchestratorAction is the parsed shape of {reasoning,
// workflow_state_assessment, action: {type, agent_requests? | evidence_map?}}.
type orchestratorAction struct {
	Reasoning               string `mapstructure:"reasoning"`
	WorkflowStateAssessment string `mapstructure:"workflow_state_assessment"`
	Action                  struct {
		Type          string         `mapstructure:"type"`
		AgentRequests []agentRequest `mapstructure:"agent_requests"`
		EvidenceMap   map[string]any `mapstructure:"evidence_map"`
	} `mapstructure:"action"`
}

type agentRequest struct {
	AgentID string         `mapstructure:"agent_id"`
	Input   map[string]any `mapstructure:"input"`
}

const (
	actionInvokeAgents   = "invoke_agents"
	actionWorkflowComplete = "workflow_complete"
)
