package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/meridianflow/meridian/pkg/checkpoint"
	"github.com/meridianflow/meridian/pkg/contextpipeline"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/governance"
	"github.com/meridianflow/meridian/pkg/llmclient"
	"github.com/meridianflow/meridian/pkg/registry"
	"github.com/meridianflow/meridian/pkg/responseparser"
	"github.com/meridianflow/meridian/pkg/worker"

	"golang.org/x/sync/errgroup"
)

// errCheckpointNotTriggered signals that a configured checkpoint's trigger
// condition did not fire for the current data, so the caller should proceed
// without pausing.
var errCheckpointNotTriggered = errors.New("checkpoint not triggered")

// Loop is the orchestrator (meta-ReAct) loop. One Loop instance is shared
// across every workflow run in a process; Run constructs a fresh governance
// Enforcer scoped to the session it is handling (§4.2 — an Enforcer's
// counters are per-session and must not leak across concurrent runs).
type Loop struct {
	Registry    *registry.Registry
	Compiler    *contextpipeline.Compiler
	LLM         llmclient.Client
	Worker      *worker.Loop
	Checkpoints *checkpoint.Manager

	EventLog    *events.Log
	Progress    *events.ProgressStore
	Broadcaster *events.Broadcaster
	Logger      *slog.Logger
}

// Run drives the bounded meta-ReAct loop for one workflow session (§4.7).
// orchestratorAgentID is the Agent record (is_orchestrator: true) whose
// allowed_agents defines the reachable catalog for this workflow.
func (l *Loop) Run(ctx context.Context, orchestratorAgentID string, in Input) Output {
	enforcer := governance.New(in.SessionID, l.Registry)

	wf, err := l.Registry.GetWorkflow(in.WorkflowID)
	if err != nil {
		return Output{Status: StatusError, Error: fmt.Sprintf("resolving workflow: %v", err)}
	}
	orchAgent, err := l.Registry.GetAgent(orchestratorAgentID)
	if err != nil {
		return Output{Status: StatusError, Error: fmt.Sprintf("resolving orchestrator agent: %v", err)}
	}
	profile, err := l.Registry.GetModelProfile(orchAgent.ModelProfileID)
	if err != nil {
		return Output{Status: StatusError, Error: fmt.Sprintf("resolving model profile: %v", err)}
	}
	reachable, err := l.Registry.GetAgentsForOrchestrator(orchestratorAgentID)
	if err != nil {
		return Output{Status: StatusError, Error: fmt.Sprintf("resolving reachable agents: %v", err)}
	}
	reachableAgents := make([]registry.Agent, 0, len(reachable))
	for _, a := range reachable {
		reachableAgents = append(reachableAgents, *a)
	}

	l.emit(in.SessionID, events.TypeWorkflowStarted, map[string]any{"workflow_id": wf.ID})

	originalInput := in.OriginalInput
	if triggered, resolution, err := l.runCheckpoints(ctx, in.SessionID, wf.ID, wf.Checkpoints, registry.TriggerPreWorkflow, "", asMap(originalInput)); err != nil {
		return Output{Status: StatusError, Error: err.Error()}
	} else if triggered {
		if resolution.Action == "reject" {
			return Output{Status: StatusCancelled}
		}
		if m, ok := originalInput.(map[string]any); ok {
			for k, v := range resolution.DataUpdates {
				m[k] = v
			}
		}
	}

	priorOutputs := map[string]any{}
	var observations []contextpipeline.Observation
	var warnings []string
	agentInvocationCount := 0

	for iteration := 0; iteration < orchAgent.MaxIterations; iteration++ {
		if !in.Deadline.IsZero() && time.Now().After(in.Deadline) {
			warnings = append(warnings, "workflow deadline approaching; stopping iteration")
			break
		}

		cc := l.Compiler.CompileForOrchestrator(ctx, contextpipeline.CompileForOrchestratorInput{
			SessionID:        in.SessionID,
			Workflow:         *wf,
			OriginalInput:    originalInput,
			AgentOutputs:     priorOutputs,
			Observations:     observations,
			ReachableAgents:  reachableAgents,
			MaxContextTokens: orchAgent.ContextRequirements.MaxContextTokens,
		})

		if res := enforcer.CheckLLMCall(orchAgent.ID); !res.Allowed {
			warnings = append(warnings, "session LLM call limit reached before the workflow completed")
			evidence := bestEffortEvidenceMap(priorOutputs)
			l.emit(in.SessionID, events.TypeLLMCallLimitExceeded, map[string]any{"workflow_id": wf.ID})
			l.emit(in.SessionID, events.TypeOrchestratorIncomplete, map[string]any{"workflow_id": wf.ID, "reason": "llm_call_limit_exceeded"})
			return Output{Status: StatusIncomplete, EvidenceMap: evidence, Warnings: warnings}
		}

		raw, err := l.LLM.Complete(ctx, *profile, contextpipeline.RenderPrompt(cc))
		if err != nil {
			return Output{Status: StatusError, Error: fmt.Sprintf("llm call failed: %v", err), Warnings: warnings}
		}

		parsed, parseErr := responseparser.Extract(raw)
		var action orchestratorAction
		if parseErr == nil {
			parseErr = mapstructure.Decode(parsed, &action)
		}
		if parseErr != nil {
			warnings = append(warnings, "orchestrator response could not be parsed; forcing workflow_complete with a degraded evidence map")
			evidence := bestEffortEvidenceMap(priorOutputs)
			l.emit(in.SessionID, events.TypeOrchestratorIncomplete, map[string]any{"workflow_id": wf.ID, "reason": "parse_error"})
			return Output{Status: StatusIncomplete, EvidenceMap: evidence, Warnings: warnings}
		}

		switch action.Action.Type {
		case actionInvokeAgents:
			requests := action.Action.AgentRequests
			if wf.MaxAgentInvocations > 0 {
				remaining := wf.MaxAgentInvocations - agentInvocationCount
				if remaining < 0 {
					remaining = 0
				}
				if len(requests) > remaining {
					requests = requests[:remaining]
				}
			}

			completedIDs := make([]string, 0, len(requests))
			var mu sync.Mutex
			g, gctx := errgroup.WithContext(ctx)
			for _, req := range requests {
				req := req
				res := enforcer.CheckAgentInvocation(orchAgent.ID, req.AgentID)
				if !res.Allowed {
					mu.Lock()
					observations = append(observations, contextpipeline.Observation{
						Type:    "agent_invocation_denied",
						Content: map[string]any{"agent_id": req.AgentID, "reason": res.Violation.Reason},
					})
					mu.Unlock()
					continue
				}
				agentInvocationCount++
				g.Go(func() error {
					out := l.Worker.Run(gctx, worker.Input{
						SessionID:     in.SessionID,
						AgentID:       req.AgentID,
						OriginalInput: req.Input,
						PriorOutputs:  priorOutputs,
						FromAgentID:   orchAgent.ID,
						Enforcer:      enforcer,
					})
					mu.Lock()
					defer mu.Unlock()
					if out.Status != worker.StatusError {
						priorOutputs[req.AgentID] = out.Output
					}
					observations = append(observations, contextpipeline.Observation{
						Source: req.AgentID,
						Type:   "agent_" + string(out.Status),
						Content: map[string]any{
							"status": out.Status,
							"output": out.Output,
						},
					})
					if out.Status == worker.StatusCompleted {
						completedIDs = append(completedIDs, req.AgentID)
					}
					return nil
				})
			}
			_ = g.Wait()

			sort.Strings(completedIDs)
			for _, agentID := range completedIDs {
				outData := asMap(priorOutputs[agentID])
				for _, cp := range wf.Checkpoints {
					if cp.TriggerPoint != registry.TriggerAfterAgent || cp.AgentID != agentID {
						continue
					}
					triggered, resolution, err := l.runCheckpoints(ctx, in.SessionID, wf.ID, []registry.CheckpointConfig{cp}, registry.TriggerAfterAgent, agentID, outData)
					if err != nil {
						return Output{Status: StatusError, Error: err.Error(), Warnings: warnings}
					}
					if !triggered {
						continue
					}
					if resolution.Action == "cancel_workflow" {
						return Output{Status: StatusCancelled, Warnings: warnings}
					}
					if len(resolution.DataUpdates) > 0 {
						merged := asMap(priorOutputs[agentID])
						for k, v := range resolution.DataUpdates {
							merged[k] = v
						}
						priorOutputs[agentID] = merged
					}
				}
			}
			continue

		case actionWorkflowComplete:
			var reconsider bool
			for _, cp := range wf.Checkpoints {
				if cp.TriggerPoint != registry.TriggerBeforeCompletion {
					continue
				}
				triggered, resolution, err := l.runCheckpoints(ctx, in.SessionID, wf.ID, []registry.CheckpointConfig{cp}, registry.TriggerBeforeCompletion, "", action.Action.EvidenceMap)
				if err != nil {
					return Output{Status: StatusError, Error: err.Error(), Warnings: warnings}
				}
				if triggered && (resolution.Action == "reject" || resolution.Action == "request_revision") {
					reconsider = true
				}
			}
			if reconsider {
				warnings = append(warnings, "before_completion checkpoint requested revision; continuing loop")
				continue
			}

			if validateCompletion(*wf, priorOutputs, action.Action.EvidenceMap) {
				l.emit(in.SessionID, events.TypeOrchestratorCompleted, map[string]any{"workflow_id": wf.ID})
				return Output{Status: StatusCompleted, EvidenceMap: action.Action.EvidenceMap, Warnings: warnings}
			}
			warnings = append(warnings, "completion criteria not yet satisfied; continuing loop")
			continue

		default:
			warnings = append(warnings, fmt.Sprintf("unrecognized orchestrator action type %q", action.Action.Type))
			continue
		}
	}

	evidence := bestEffortEvidenceMap(priorOutputs)
	l.emit(in.SessionID, events.TypeOrchestratorIncomplete, map[string]any{"workflow_id": wf.ID, "reason": "iteration_cap"})
	return Output{Status: StatusIncomplete, EvidenceMap: evidence, Warnings: warnings}
}

// runCheckpoints evaluates every configured checkpoint of the given
// trigger point (already pre-filtered by the caller for after_agent) against
// data, pausing for the first one whose condition fires. Returns
// triggered=false if none fire.
func (l *Loop) runCheckpoints(ctx context.Context, sessionID, workflowID string, checkpoints []registry.CheckpointConfig, point registry.CheckpointTriggerPoint, agentID string, data map[string]any) (bool, checkpoint.Resolution, error) {
	for _, cp := range checkpoints {
		if cp.TriggerPoint != point {
			continue
		}
		if !checkpoint.ShouldTrigger(cp.TriggerCondition, data) {
			continue
		}
		inst, err := l.Checkpoints.CreateCheckpoint(sessionID, workflowID, cp, data)
		if err != nil {
			return false, checkpoint.Resolution{}, fmt.Errorf("creating checkpoint %q: %w", cp.CheckpointID, err)
		}
		l.emit(sessionID, events.TypeCheckpointCreated, map[string]any{"checkpoint_id": inst.ID, "agent_id": agentID})
		resolved, err := l.Checkpoints.WaitForResolution(ctx, inst.ID)
		if err != nil {
			return false, checkpoint.Resolution{}, fmt.Errorf("waiting for checkpoint %q: %w", cp.CheckpointID, err)
		}
		l.emit(sessionID, events.TypeCheckpointResolved, map[string]any{"checkpoint_id": inst.ID, "action": resolved.Resolution.Action})
		return true, *resolved.Resolution, nil
	}
	return false, checkpoint.Resolution{}, nil
}

func (l *Loop) emit(sessionID, eventType string, payload map[string]any) {
	ev := events.NewEvent(eventType, sessionID, payload)
	if l.EventLog != nil {
		if err := l.EventLog.Append(sessionID, ev); err != nil && l.Logger != nil {
			l.Logger.Warn("orchestrator: failed to append event", "session_id", sessionID, "error", err)
		}
	}
	if l.Progress != nil {
		l.Progress.AddEvent(sessionID, ev)
	}
	if l.Broadcaster != nil {
		l.Broadcaster.Broadcast(sessionID, ev)
	}
}

// validateCompletion checks a candidate evidence map against the workflow's
// declared completion_criteria (§4.7 step 5).
func validateCompletion(wf registry.Workflow, priorOutputs map[string]any, evidence map[string]any) bool {
	for _, crit := range wf.CompletionCriteria {
		switch crit {
		case registry.CriterionRequiredAgentsExecuted:
			for _, id := range wf.RequiredAgents {
				if _, ok := priorOutputs[id]; !ok {
					return false
				}
			}
		case registry.CriterionMinAgentsExecuted:
			if len(priorOutputs) < wf.MinAgentsExecuted {
				return false
			}
		case registry.CriterionRequiredOutputs:
			for _, key := range wf.RequiredOutputs {
				if _, ok := evidence[key]; !ok {
					return false
				}
			}
		}
	}
	return true
}

// bestEffortEvidenceMap assembles a degraded evidence map from whatever
// outputs exist when the iteration cap is hit or the response could not be
// parsed (§4.7).
func bestEffortEvidenceMap(priorOutputs map[string]any) map[string]any {
	if exp, ok := priorOutputs["explainability_agent"]; ok {
		if m, ok := exp.(map[string]any); ok {
			return m
		}
	}
	chain := make([]string, 0, len(priorOutputs))
	for id := range priorOutputs {
		chain = append(chain, id)
	}
	sort.Strings(chain)
	evidence := map[string]any{
		"agent_chain":   chain,
		"agent_outputs": priorOutputs,
	}
	if dec, ok := priorOutputs["recommendation_agent"]; ok {
		evidence["decision"] = dec
	}
	return evidence
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
