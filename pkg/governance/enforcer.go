// Package governance implements per-session policy enforcement: who may
// invoke whom, who may use which tool, and the session-wide counters that
// bound runaway loops (§4.2).
package governance

import (
	"fmt"
	"sync"
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

// ViolationType is a closed enum of refusal reasons, mirroring the
// governance_enforcer.py prototype this component was distilled from.
type ViolationType string

const (
	ViolationAgentInvocationDenied  ViolationType = "agent_invocation_denied"
	ViolationToolAccessDenied       ViolationType = "tool_access_denied"
	ViolationIterationLimitExceeded ViolationType = "iteration_limit_exceeded"
	ViolationTimeoutExceeded        ViolationType = "timeout_exceeded"
	ViolationTokenBudgetExceeded    ViolationType = "token_budget_exceeded"
	ViolationMaxInvocationsExceeded ViolationType = "max_invocations_exceeded"
	ViolationLLMCallLimitExceeded   ViolationType = "llm_call_limit_exceeded"
	ViolationHITLRoleMismatch       ViolationType = "hitl_role_mismatch"
)

// PolicyViolation is recorded for every denial and surfaces in session
// stats and the event log.
type PolicyViolation struct {
	Type      ViolationType `json:"violation_type"`
	Subject   string        `json:"subject_agent"`
	Target    string        `json:"target"`
	Reason    string        `json:"reason"`
	Timestamp time.Time     `json:"timestamp"`
}

// Result is the outcome of a governance decision.
type Result struct {
	Allowed   bool
	Violation *PolicyViolation
	Warning   string
}

// Enforcer is constructed per session and tracks per-session counters: how
// many times each target agent has been invoked, how many tools have been
// invoked, how many LLM calls have been made, and the list of violations.
type Enforcer struct {
	sessionID string
	reg       *registry.Registry
	policy    registry.GovernancePolicy

	mu                sync.Mutex
	agentInvocations  map[string]int
	toolInvocations   int
	llmCalls          int
	violations        []PolicyViolation
}

// New constructs an Enforcer for one session, snapshotting the current
// governance policy for the life of the session (policy changes mid-session
// do not retroactively change limits already being enforced).
func New(sessionID string, reg *registry.Registry) *Enforcer {
	return &Enforcer{
		sessionID:        sessionID,
		reg:              reg,
		policy:           reg.Governance(),
		agentInvocations: map[string]int{},
	}
}

func (e *Enforcer) record(v PolicyViolation) {
	v.Timestamp = time.Now().UTC()
	e.violations = append(e.violations, v)
}

// CheckAgentInvocation allows iff the registry permits the (from, to) pair
// and the target has not already been invoked max_duplicate_invocations
// times. On allow, increments the per-target counter and attaches a warning
// when this invocation is the last one allowed.
func (e *Enforcer) CheckAgentInvocation(fromID, toID string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reg.IsAgentInvocationAllowed(fromID, toID) {
		v := PolicyViolation{
			Type:    ViolationAgentInvocationDenied,
			Subject: fromID,
			Target:  toID,
			Reason:  fmt.Sprintf("agent %q not permitted to invoke %q per governance policy", fromID, toID),
		}
		e.record(v)
		return Result{Allowed: false, Violation: &v}
	}

	maxDup := e.policy.MaxDuplicateInvocations
	if maxDup <= 0 {
		maxDup = 2
	}
	current := e.agentInvocations[toID]
	if current >= maxDup {
		v := PolicyViolation{
			Type:    ViolationMaxInvocationsExceeded,
			Subject: fromID,
			Target:  toID,
			Reason:  fmt.Sprintf("agent %q already invoked %d times (max %d)", toID, current, maxDup),
		}
		e.record(v)
		return Result{Allowed: false, Violation: &v}
	}

	e.agentInvocations[toID] = current + 1
	var warning string
	if current+1 == maxDup {
		warning = fmt.Sprintf("agent %q invoked %d times (limit %d); further invocations will be denied", toID, current+1, maxDup)
	}
	return Result{Allowed: true, Warning: warning}
}

// CheckToolAccess allows iff the registry permits the (agent, tool) pair and
// the session has not exceeded max_tool_invocations_per_session.
func (e *Enforcer) CheckToolAccess(agentID, toolID string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reg.IsToolAccessAllowed(agentID, toolID) {
		v := PolicyViolation{
			Type:    ViolationToolAccessDenied,
			Subject: agentID,
			Target:  toolID,
			Reason:  fmt.Sprintf("agent %q not permitted to use tool %q per governance policy", agentID, toolID),
		}
		e.record(v)
		return Result{Allowed: false, Violation: &v}
	}

	maxTools := e.policy.MaxToolInvocationsPerSession
	if e.toolInvocations >= maxTools && maxTools > 0 {
		v := PolicyViolation{
			Type:    ViolationToolAccessDenied,
			Subject: agentID,
			Target:  toolID,
			Reason:  fmt.Sprintf("session tool invocation limit reached (%d)", maxTools),
		}
		e.record(v)
		return Result{Allowed: false, Violation: &v}
	}

	e.toolInvocations++
	return Result{Allowed: true}
}

// CheckIterationLimit allows iff the current (0-based) iteration is still
// below the agent's max_iterations.
func (e *Enforcer) CheckIterationLimit(agentID string, currentIteration, maxIterations int) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if currentIteration >= maxIterations {
		v := PolicyViolation{
			Type:    ViolationIterationLimitExceeded,
			Subject: agentID,
			Target:  agentID,
			Reason:  fmt.Sprintf("agent %q reached max_iterations (%d)", agentID, maxIterations),
		}
		e.record(v)
		return Result{Allowed: false, Violation: &v}
	}
	return Result{Allowed: true}
}

// CheckLLMCall increments the session-wide LLM call counter and denies once
// max_llm_calls_per_session is reached.
func (e *Enforcer) CheckLLMCall(agentID string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	maxCalls := e.policy.MaxLLMCallsPerSession
	if maxCalls > 0 && e.llmCalls >= maxCalls {
		v := PolicyViolation{
			Type:    ViolationLLMCallLimitExceeded,
			Subject: agentID,
			Target:  e.sessionID,
			Reason:  fmt.Sprintf("session LLM call limit reached (%d)", maxCalls),
		}
		e.record(v)
		return Result{Allowed: false, Violation: &v}
	}
	e.llmCalls++
	return Result{Allowed: true}
}

// CheckHITLRole allows iff userRole == requiredRole, admin is always
// allowed, and the role hierarchy table is consulted transitively for
// delegated grants (A can_act_as B, B can_act_as C ⇒ A can act as C).
func (e *Enforcer) CheckHITLRole(userRole, requiredRole string) Result {
	if userRole == "admin" || userRole == requiredRole {
		return Result{Allowed: true}
	}
	if e.roleCanActAs(userRole, requiredRole, map[string]bool{}) {
		return Result{Allowed: true}
	}
	v := PolicyViolation{
		Type:    ViolationHITLRoleMismatch,
		Subject: userRole,
		Target:  requiredRole,
		Reason:  fmt.Sprintf("role %q cannot act as %q", userRole, requiredRole),
	}
	e.mu.Lock()
	e.record(v)
	e.mu.Unlock()
	return Result{Allowed: false, Violation: &v}
}

func (e *Enforcer) roleCanActAs(from, to string, visited map[string]bool) bool {
	if visited[from] {
		return false
	}
	visited[from] = true
	for _, grant := range e.policy.RoleHierarchy[from] {
		if grant == to {
			return true
		}
		if e.roleCanActAs(grant, to, visited) {
			return true
		}
	}
	return false
}

// Violations returns a copy of all recorded violations so far.
func (e *Enforcer) Violations() []PolicyViolation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]PolicyViolation{}, e.violations...)
}

// Stats summarizes the session's governance counters for the session-detail
// endpoint.
type Stats struct {
	AgentInvocations map[string]int
	ToolInvocations  int
	LLMCalls         int
	Violations       int
}

func (e *Enforcer) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	agentCopy := make(map[string]int, len(e.agentInvocations))
	for k, v := range e.agentInvocations {
		agentCopy[k] = v
	}
	return Stats{
		AgentInvocations: agentCopy,
		ToolInvocations:  e.toolInvocations,
		LLMCalls:         e.llmCalls,
		Violations:       len(e.violations),
	}
}
