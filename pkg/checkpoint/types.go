// Package checkpoint implements the HITL Checkpoint Manager (C10): pending
// human-in-the-loop pause points, their restricted trigger-condition
// expression evaluator, and the background timeout sweeper (§4.8).
package checkpoint

import (
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

// Status is a CheckpointInstance's place in its state machine:
// pending → resolved | cancelled | timeout.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Resolution is how a pending checkpoint was settled, by a human or by the
// timeout sweeper.
type Resolution struct {
	Action      string         `json:"action"` // approve | reject | request_revision | cancel_workflow | config.on_timeout value
	ResolvedBy  string         `json:"resolved_by"` // user id, or "system" for a timeout resolution
	DataUpdates map[string]any `json:"data_updates,omitempty"`
	Comment     string         `json:"comment,omitempty"`
	ResolvedAt  time.Time      `json:"resolved_at"`
}

// Instance is one materialized checkpoint pause point.
type Instance struct {
	ID           string                     `json:"id"`
	SessionID    string                     `json:"session_id"`
	WorkflowID   string                     `json:"workflow_id"`
	Config       registry.CheckpointConfig  `json:"config"`
	ContextData  map[string]any             `json:"context_data"`
	Status       Status                     `json:"status"`
	CreatedAt    time.Time                  `json:"created_at"`
	TimeoutAt    *time.Time                 `json:"timeout_at,omitempty"`
	Resolution   *Resolution                `json:"resolution,omitempty"`
}

func (i Instance) pending() bool { return i.Status == StatusPending }
