package contextpipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/meridianflow/meridian/pkg/registry"
)

// PipelineDeps bundles the dependencies needed to build the standard
// seven-stage pipeline (content_selector, compaction_checker,
// memory_retriever, artifact_resolver, transformer, token_budget_enforcer,
// injector) fresh for a single agent. A Compiler with Deps set builds this
// chain per call from the invoking agent's ContextRequirements, since
// several of those processors (content_selector.go:13,
// memory_retriever.go:16, artifact_resolver.go:19,
// token_budget_enforcer.go:14, injector.go:15) close over the specific
// registry.Agent whose context they're shaping — a single process-lifetime
// Pipeline can't be correct for every agent a shared Compiler serves.
type PipelineDeps struct {
	Config           Config
	MemorySource     MemorySource
	ArtifactSource   ArtifactSource
	Compactor        Compactor
	CompactionMethod string // rule_based | llm_based
	// SystemInstructions/ToolSchemas feed the injector's stable prefix when
	// an agent has prefix caching enabled.
	SystemInstructions any
	ToolSchemas        any
}

// Compiler drives the pipeline for one compilation, applying handoff scoping
// first and recording lineage last (§4.5). Pipeline, if set, is run
// verbatim (chiefly for tests that want an exact, fixed stage sequence);
// otherwise, when Deps is set, CompileForAgent/CompileForOrchestrator build
// the standard chain fresh per call, scoped to the invoking agent. With
// neither set, compilation falls back to the static 30/50/20 budget split.
type Compiler struct {
	Pipeline  *Pipeline
	Deps      *PipelineDeps
	Handoff   HandoffTable
	Lineage   *LineageTracker
	Tokenizer Tokenizer
	Emitter   EventEmitter
	Logger    *slog.Logger
}

// NewCompiler wires a Compiler with sane defaults for any nil dependency.
func NewCompiler(pipeline *Pipeline, handoff HandoffTable, lineage *LineageTracker, tokenizer Tokenizer, emitter EventEmitter, logger *slog.Logger) *Compiler {
	if lineage == nil {
		lineage = NewLineageTracker()
	}
	if tokenizer == nil {
		tokenizer = HeuristicEstimator{}
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{Pipeline: pipeline, Handoff: handoff, Lineage: lineage, Tokenizer: tokenizer, Emitter: emitter, Logger: logger}
}

// WithPipelineDeps attaches the dependencies needed to build the standard
// per-agent pipeline, returning the Compiler for chaining.
func (c *Compiler) WithPipelineDeps(deps *PipelineDeps) *Compiler {
	c.Deps = deps
	return c
}

// buildPipelineForAgent constructs the standard seven-stage pipeline scoped
// to one agent, in spec order (§4.4): content_selector, compaction_checker,
// memory_retriever, artifact_resolver, transformer, token_budget_enforcer,
// injector. Returns nil if Deps was never attached.
func (c *Compiler) buildPipelineForAgent(agent registry.Agent) *Pipeline {
	if c.Deps == nil {
		return nil
	}
	return NewPipeline(c.Logger,
		&ContentSelector{Agent: agent},
		&CompactionChecker{
			Config:    c.Deps.Config,
			Compactor: c.Deps.Compactor,
			Tokenizer: c.Tokenizer,
			Emitter:   c.Emitter,
			Method:    c.Deps.CompactionMethod,
		},
		&MemoryRetriever{Agent: agent, Config: c.Deps.Config, Source: c.Deps.MemorySource},
		&ArtifactResolver{Agent: agent, Config: c.Deps.Config, Source: c.Deps.ArtifactSource},
		&Transformer{},
		&TokenBudgetEnforcer{Agent: agent, Tokenizer: c.Tokenizer},
		&Injector{Agent: agent, SystemInstructions: c.Deps.SystemInstructions, ToolSchemas: c.Deps.ToolSchemas},
	)
}

// CompileForAgentInput bundles CompileForAgent's arguments.
type CompileForAgentInput struct {
	SessionID     string
	Agent         registry.Agent
	OriginalInput any
	PriorOutputs  map[string]any
	Observations  []Observation
	FromAgentID   string
}

// CompileForAgent is the worker-loop entry point (§4.5).
func (c *Compiler) CompileForAgent(ctx context.Context, in CompileForAgentInput) CompiledContext {
	cc := CompiledContext{
		AgentID:       in.Agent.ID,
		OriginalInput: in.OriginalInput,
		PriorOutputs:  in.PriorOutputs,
		Observations:  in.Observations,
	}

	tokensBefore := EstimateContextTokens(c.Tokenizer, cc)

	if in.FromAgentID != "" {
		scopedInput, scopedPrior := ApplyHandoff(c.Handoff, in.FromAgentID, in.Agent.ID, cc.OriginalInput, cc.PriorOutputs)
		cc.OriginalInput = scopedInput
		cc.PriorOutputs = scopedPrior
		afterHandoff := EstimateContextTokens(c.Tokenizer, cc)
		c.Emitter.Emit(in.SessionID, "context_handoff", map[string]any{
			"from_agent_id":  in.FromAgentID,
			"to_agent_id":    in.Agent.ID,
			"tokens_before":  tokensBefore,
			"tokens_after":   afterHandoff,
		})
	}

	pipeline := c.Pipeline
	if pipeline == nil {
		pipeline = c.buildPipelineForAgent(in.Agent)
	}
	if pipeline != nil {
		cc = pipeline.Run(ctx, cc, in.Agent.ID, in.SessionID)
	} else {
		cc = staticBudgetSplit(cc, in.Agent.ContextRequirements.BudgetAllocation, c.Tokenizer, in.Agent.ContextRequirements.MaxContextTokens)
	}

	tokensAfter := cc.EstimatedTokens
	if tokensAfter == 0 {
		tokensAfter = EstimateContextTokens(c.Tokenizer, cc)
		cc.EstimatedTokens = tokensAfter
	}

	c.recordLineage(in.SessionID, in.Agent.ID, in.FromAgentID, tokensBefore, tokensAfter, cc, in.Agent.ContextRequirements.MaxContextTokens)
	return cc
}

// CompileForOrchestratorInput bundles CompileForOrchestrator's arguments.
type CompileForOrchestratorInput struct {
	SessionID     string
	Workflow      registry.Workflow
	OriginalInput any
	AgentOutputs  map[string]any
	Observations  []Observation
	ReachableAgents []registry.Agent
	MaxContextTokens int
}

// CompileForOrchestrator is the orchestrator-loop entry point (§4.5, §4.7
// step 2): it bundles the workflow's advisory guidance and the catalog of
// reachable agents alongside prior outputs and observations. The
// orchestrator's context never goes through handoff scoping — it has no
// from_agent_id, it IS the root of the invocation tree.
func (c *Compiler) CompileForOrchestrator(ctx context.Context, in CompileForOrchestratorInput) CompiledContext {
	guidance := map[string]any{
		"goal":               in.Workflow.Goal,
		"suggested_sequence": in.Workflow.SuggestedSequence,
		"required_agents":    in.Workflow.RequiredAgents,
		"optional_agents":    in.Workflow.OptionalAgents,
		"completion_criteria": in.Workflow.CompletionCriteria,
	}
	catalog := make([]map[string]any, 0, len(in.ReachableAgents))
	for _, a := range in.ReachableAgents {
		catalog = append(catalog, map[string]any{
			"id":                     a.ID,
			"description":            a.Description,
			"capabilities":           a.Capabilities,
			"requires_prior_outputs": a.ContextRequirements.RequiresPriorOutputs,
		})
	}

	cc := CompiledContext{
		AgentID:       in.Workflow.ID,
		OriginalInput: in.OriginalInput,
		PriorOutputs:  in.AgentOutputs,
		Observations:  in.Observations,
		Metadata: map[string]any{
			"workflow_guidance": guidance,
			"agent_catalog":     catalog,
		},
	}

	pipeline := c.Pipeline
	if pipeline == nil {
		// The orchestrator has no registry.Agent of its own — synthesize one
		// from the workflow so the same per-agent processors (memory,
		// artifacts, budget enforcement) run over its context too. Preload
		// mode is used for artifact discovery since the orchestrator has no
		// ArtifactRequests field to populate explicitly the way a worker
		// tool call does.
		pipeline = c.buildPipelineForAgent(registry.Agent{
			ID: in.Workflow.ID,
			ContextRequirements: registry.ContextRequirements{
				MaxContextTokens:   in.MaxContextTokens,
				ContextScope:       "full",
				ArtifactAccessMode: "preload",
			},
		})
	}
	if pipeline != nil {
		cc = pipeline.Run(ctx, cc, in.Workflow.ID, in.SessionID)
	} else {
		cc = staticBudgetSplit(cc, nil, c.Tokenizer, in.MaxContextTokens)
	}
	cc.EstimatedTokens = EstimateContextTokens(c.Tokenizer, cc)

	c.recordLineage(in.SessionID, in.Workflow.ID, "", cc.EstimatedTokens, cc.EstimatedTokens, cc, in.MaxContextTokens)
	return cc
}

func (c *Compiler) recordLineage(sessionID, agentID, fromAgentID string, tokensBefore, tokensAfter int, cc CompiledContext, maxTokens int) {
	if c.Lineage == nil {
		return
	}
	var procLog []ProcessorExecution
	if cc.Metadata != nil {
		if pl, ok := cc.Metadata["processor_execution_log"].([]ProcessorExecution); ok {
			procLog = pl
		}
	}
	truncated := false
	compacted := false
	if cc.Metadata != nil {
		if n, ok := cc.Metadata["observations_dropped_for_budget"].(int); ok && n > 0 {
			truncated = true
		}
		if b, ok := cc.Metadata["compaction_applied"].(bool); ok {
			compacted = b
		}
	}
	utilization := 0.0
	if maxTokens > 0 {
		utilization = float64(tokensAfter) / float64(maxTokens)
	}
	c.Lineage.Record(sessionID, LineageRecord{
		CompilationID:     newCompilationID(),
		SessionID:         sessionID,
		AgentID:           agentID,
		FromAgentID:       fromAgentID,
		TokensBefore:      tokensBefore,
		TokensAfter:       tokensAfter,
		Processors:        procLog,
		Truncated:         truncated,
		Compacted:         compacted,
		MemoryCount:       len(cc.Memories),
		ArtifactCount:     len(cc.Artifacts),
		BudgetUtilization: utilization,
		CompiledAt:        time.Now().UTC(),
	})
}

func newCompilationID() string { return uuid.NewString() }

// staticBudgetSplit implements the pipeline-disabled fallback: 30% original
// input, 50% prior outputs, 20% observations of the agent's token budget,
// or the agent's own override (§4.5 step 2).
func staticBudgetSplit(cc CompiledContext, override *registry.BudgetAllocation, est Tokenizer, maxTokens int) CompiledContext {
	split := registry.BudgetAllocation{OriginalInput: 0.3, PriorOutputs: 0.5, Observations: 0.2}
	if override != nil {
		split = *override
	}
	if maxTokens <= 0 {
		cc.EstimatedTokens = EstimateContextTokens(est, cc)
		return cc
	}
	obsBudget := int(float64(maxTokens) * split.Observations)
	tokens := 0
	kept := cc.Observations[:0:0]
	// keep the most recent observations that fit the slice's share of budget.
	for i := len(cc.Observations) - 1; i >= 0; i-- {
		t := est.CountTokens(cc.Observations[i])
		if tokens+t > obsBudget && len(kept) > 0 {
			break
		}
		kept = append([]Observation{cc.Observations[i]}, kept...)
		tokens += t
	}
	cc.Observations = kept
	cc.EstimatedTokens = EstimateContextTokens(est, cc)
	return cc
}
