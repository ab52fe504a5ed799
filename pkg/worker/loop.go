package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/meridianflow/meridian/pkg/contextpipeline"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/governance"
	"github.com/meridianflow/meridian/pkg/llmclient"
	"github.com/meridianflow/meridian/pkg/metrics"
	"github.com/meridianflow/meridian/pkg/registry"
	"github.com/meridianflow/meridian/pkg/responseparser"
	"github.com/meridianflow/meridian/pkg/toolsgateway"
)

// DefaultValidationFailureLimit bounds how many times final_output may fail
// schema validation before the loop gives up on this invocation (§4.6).
const DefaultValidationFailureLimit = 3

// Loop is the worker agent loop. One Loop is shared across every agent
// invocation in a process; all per-invocation state, including the
// governance Enforcer, lives in Run's locals or is threaded in via Input.
type Loop struct {
	Registry *registry.Registry
	Compiler *contextpipeline.Compiler
	LLM      llmclient.Client
	Tools    toolsgateway.Client

	EventLog    *events.Log
	Progress    *events.ProgressStore
	Broadcaster *events.Broadcaster
	Metrics     *metrics.Registry

	ValidationFailureLimit int
	Logger                 *slog.Logger
}

// Run drives the bounded ReAct loop for one agent invocation (§4.6).
func (l *Loop) Run(ctx context.Context, in Input) (out Output) {
	start := time.Now()
	if l.Metrics != nil {
		defer func() {
			l.Metrics.ObserveAgent(in.AgentID, string(out.Status), time.Since(start))
		}()
	}

	limit := l.ValidationFailureLimit
	if limit <= 0 {
		limit = DefaultValidationFailureLimit
	}

	enforcer := in.Enforcer
	if enforcer == nil {
		enforcer = governance.New(in.SessionID, l.Registry)
	}

	agent, err := l.Registry.GetAgent(in.AgentID)
	if err != nil {
		return Output{Status: StatusError, Error: fmt.Sprintf("resolving agent: %v", err)}
	}
	profile, err := l.Registry.GetModelProfile(agent.ModelProfileID)
	if err != nil {
		return Output{Status: StatusError, Error: fmt.Sprintf("resolving model profile: %v", err)}
	}

	l.emit(in.SessionID, events.TypeAgentStarted, map[string]any{"agent_id": agent.ID})

	observations := append([]contextpipeline.Observation{}, in.Observations...)
	priorOutputs := in.PriorOutputs
	var warnings []string
	var toolCallsMade int
	var validationFailures int

	for iteration := 0; iteration < agent.MaxIterations; iteration++ {
		if res := enforcer.CheckIterationLimit(agent.ID, iteration, agent.MaxIterations); !res.Allowed {
			warnings = append(warnings, "max iterations reached before a final output was produced")
			return l.incomplete(in.SessionID, agent.ID, iteration, toolCallsMade, warnings)
		}

		cc := l.Compiler.CompileForAgent(ctx, contextpipeline.CompileForAgentInput{
			SessionID:     in.SessionID,
			Agent:         *agent,
			OriginalInput: in.OriginalInput,
			PriorOutputs:  priorOutputs,
			Observations:  observations,
			FromAgentID:   in.FromAgentID,
		})

		if res := enforcer.CheckLLMCall(agent.ID); !res.Allowed {
			l.emit(in.SessionID, events.TypeLLMCallLimitExceeded, map[string]any{"agent_id": agent.ID})
			warnings = append(warnings, "session LLM call limit reached before a final output was produced")
			return l.incomplete(in.SessionID, agent.ID, iteration, toolCallsMade, warnings)
		}

		raw, err := l.LLM.Complete(ctx, *profile, renderPrompt(cc))
		if err != nil {
			return Output{Status: StatusError, IterationsUsed: iteration + 1, ToolCallsMade: toolCallsMade, Error: fmt.Sprintf("llm call failed: %v", err), Warnings: warnings}
		}

		parsed, err := responseparser.Extract(raw)
		if err != nil {
			l.emit(in.SessionID, events.TypeLLMResponseParseError, map[string]any{"agent_id": agent.ID, "error": err.Error()})
			warnings = append(warnings, "response could not be parsed; terminating with a fallback output")
			return Output{
				Status:         StatusIncomplete,
				Output:         map[string]any{"status": "parse_error", "detail": err.Error()},
				IterationsUsed: iteration + 1,
				ToolCallsMade:  toolCallsMade,
				Warnings:       warnings,
			}
		}

		var action llmAction
		if err := mapstructure.Decode(parsed, &action); err != nil {
			l.emit(in.SessionID, events.TypeLLMResponseParseError, map[string]any{"agent_id": agent.ID, "error": err.Error()})
			warnings = append(warnings, "response shape did not match the expected action envelope")
			return Output{
				Status:         StatusIncomplete,
				Output:         map[string]any{"status": "parse_error", "detail": err.Error()},
				IterationsUsed: iteration + 1,
				ToolCallsMade:  toolCallsMade,
				Warnings:       warnings,
			}
		}

		switch action.Action.Type {
		case actionUseTools:
			for _, req := range action.Action.ToolRequests {
				obs, called := l.invokeTool(ctx, enforcer, in.SessionID, agent.ID, req)
				observations = append(observations, obs)
				if called {
					toolCallsMade++
				}
			}

		case actionFinalOutput:
			if err := validateOutput(agent.OutputSchema, action.Action.Output); err != nil {
				validationFailures++
				observations = append(observations, contextpipeline.Observation{
					Type:    "validation_failure",
					Content: map[string]any{"error": err.Error()},
				})
				if validationFailures >= limit {
					l.emit(in.SessionID, events.TypeValidationFailureLimitExceeded, map[string]any{"agent_id": agent.ID, "failures": validationFailures})
					warnings = append(warnings, "output repeatedly failed schema validation")
					return l.incomplete(in.SessionID, agent.ID, iteration+1, toolCallsMade, warnings)
				}
				continue
			}

			l.emit(in.SessionID, events.TypeAgentCompleted, map[string]any{"agent_id": agent.ID})
			return Output{
				Status:         StatusCompleted,
				Output:         action.Action.Output,
				IterationsUsed: iteration + 1,
				ToolCallsMade:  toolCallsMade,
				Warnings:       warnings,
			}

		default:
			warnings = append(warnings, fmt.Sprintf("unrecognized action type %q; terminating", action.Action.Type))
			return l.incomplete(in.SessionID, agent.ID, iteration+1, toolCallsMade, warnings)
		}
	}

	warnings = append(warnings, "max iterations reached before a final output was produced")
	return l.incomplete(in.SessionID, agent.ID, agent.MaxIterations, toolCallsMade, warnings)
}

func (l *Loop) incomplete(sessionID, agentID string, iterations, toolCalls int, warnings []string) Output {
	l.emit(sessionID, events.TypeAgentIncomplete, map[string]any{"agent_id": agentID, "iterations_used": iterations})
	return Output{Status: StatusIncomplete, IterationsUsed: iterations, ToolCallsMade: toolCalls, Warnings: warnings}
}

// invokeTool governance-checks then invokes a single tool request, always
// returning an observation (allow, deny, or error are all recorded and the
// loop continues — §4.6 recoverable failures).
func (l *Loop) invokeTool(ctx context.Context, enforcer *governance.Enforcer, sessionID, agentID string, req toolRequest) (contextpipeline.Observation, bool) {
	if res := enforcer.CheckToolAccess(agentID, req.ToolID); !res.Allowed {
		l.emit(sessionID, events.TypeToolDenied, map[string]any{"agent_id": agentID, "tool_id": req.ToolID})
		if l.Metrics != nil {
			l.Metrics.ObserveTool(req.ToolID, "denied")
		}
		return contextpipeline.Observation{
			Type:    "tool_denied",
			Content: map[string]any{"tool_id": req.ToolID, "reason": res.Violation.Reason},
		}, false
	}

	tool, err := l.Registry.GetTool(req.ToolID)
	if err != nil {
		l.emit(sessionID, events.TypeToolError, map[string]any{"agent_id": agentID, "tool_id": req.ToolID, "error": err.Error()})
		if l.Metrics != nil {
			l.Metrics.ObserveTool(req.ToolID, "error")
		}
		return contextpipeline.Observation{
			Type:    "tool_error",
			Content: map[string]any{"tool_id": req.ToolID, "error": err.Error()},
		}, true
	}

	out, err := l.Tools.Invoke(ctx, *tool, req.Input)
	if err != nil {
		l.emit(sessionID, events.TypeToolError, map[string]any{"agent_id": agentID, "tool_id": req.ToolID, "error": err.Error()})
		if l.Metrics != nil {
			l.Metrics.ObserveTool(req.ToolID, "error")
		}
		return contextpipeline.Observation{
			Type:    "tool_error",
			Content: map[string]any{"tool_id": req.ToolID, "error": err.Error()},
		}, true
	}

	l.emit(sessionID, events.TypeToolInvoked, map[string]any{"agent_id": agentID, "tool_id": req.ToolID})
	if l.Metrics != nil {
		l.Metrics.ObserveTool(req.ToolID, "ok")
	}
	return contextpipeline.Observation{
		Type:    "tool_result",
		Content: map[string]any{"tool_id": req.ToolID, "result": out},
	}, true
}

func (l *Loop) emit(sessionID, eventType string, payload map[string]any) {
	ev := events.NewEvent(eventType, sessionID, payload)
	if l.EventLog != nil {
		if err := l.EventLog.Append(sessionID, ev); err != nil && l.Logger != nil {
			l.Logger.Warn("worker: failed to append event", "session_id", sessionID, "error", err)
		}
	}
	if l.Progress != nil {
		l.Progress.AddEvent(sessionID, ev)
	}
	if l.Broadcaster != nil {
		l.Broadcaster.Broadcast(sessionID, ev)
	}
}

// renderPrompt serializes a compiled context into the text handed to the LLM
// client. The concrete provider client is responsible for any
// provider-specific message framing; this is the provider-agnostic body.
func renderPrompt(cc contextpipeline.CompiledContext) string {
	return contextpipeline.RenderPrompt(cc)
}
