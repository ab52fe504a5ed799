// Package registry holds the versioned, hot-reloadable catalog of agents,
// tools, model profiles, workflows and governance policy that every other
// component consults before it acts.
package registry

// ContextRequirements describes how much prompt budget an agent gets and
// which upstream outputs it expects to see.
type ContextRequirements struct {
	MaxContextTokens     int               `json:"max_context_tokens" yaml:"max_context_tokens" mapstructure:"max_context_tokens"`
	RequiresPriorOutputs []string          `json:"requires_prior_outputs" yaml:"requires_prior_outputs" mapstructure:"requires_prior_outputs"`
	BudgetAllocation     *BudgetAllocation `json:"budget_allocation,omitempty" yaml:"budget_allocation,omitempty" mapstructure:"budget_allocation"`
	ArtifactAccessMode   string            `json:"artifact_access_mode,omitempty" yaml:"artifact_access_mode,omitempty" mapstructure:"artifact_access_mode"` // on_demand | preload

	// ContextScope is the coarse content_selector filter: minimal | scoped | full.
	ContextScope string `json:"context_scope,omitempty" yaml:"context_scope,omitempty" mapstructure:"context_scope"`
	// NoiseEventTypes lists event types content_selector drops from observations.
	NoiseEventTypes []string `json:"noise_event_types,omitempty" yaml:"noise_event_types,omitempty" mapstructure:"noise_event_types"`
	// MaxMemoryRetrievals bounds memory_retriever's appends per invocation.
	MaxMemoryRetrievals int `json:"max_memory_retrievals_per_invocation,omitempty" yaml:"max_memory_retrievals_per_invocation,omitempty" mapstructure:"max_memory_retrievals_per_invocation"`
	// MaxArtifactLoads bounds artifact_resolver's preload-mode resolutions per invocation.
	MaxArtifactLoads int `json:"max_artifact_loads_per_invocation,omitempty" yaml:"max_artifact_loads_per_invocation,omitempty" mapstructure:"max_artifact_loads_per_invocation"`
	// PrefixCachingEnabled asks the injector to split stable/variable fields and attach a cache key.
	PrefixCachingEnabled bool `json:"prefix_caching_enabled,omitempty" yaml:"prefix_caching_enabled,omitempty" mapstructure:"prefix_caching_enabled"`
}

// BudgetAllocation overrides the default 30/50/20 static token split.
type BudgetAllocation struct {
	OriginalInput float64 `json:"original_input" yaml:"original_input" mapstructure:"original_input"`
	PriorOutputs  float64 `json:"prior_outputs" yaml:"prior_outputs" mapstructure:"prior_outputs"`
	Observations  float64 `json:"observations" yaml:"observations" mapstructure:"observations"`
}

// Agent is a named, schema-bounded LLM worker with a loop budget, tool
// allowance, and a required output contract.
type Agent struct {
	ID                   string              `json:"id" yaml:"id" mapstructure:"id"`
	Description          string              `json:"description" yaml:"description" mapstructure:"description"`
	Capabilities         []string            `json:"capabilities" yaml:"capabilities" mapstructure:"capabilities"`
	AllowedTools         []string            `json:"allowed_tools" yaml:"allowed_tools" mapstructure:"allowed_tools"`
	AllowedAgents        []string            `json:"allowed_agents,omitempty" yaml:"allowed_agents,omitempty" mapstructure:"allowed_agents"` // orchestrator only
	ModelProfileID       string              `json:"model_profile_id" yaml:"model_profile_id" mapstructure:"model_profile_id"`
	MaxIterations        int                 `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`
	IterationTimeoutSecs int                 `json:"iteration_timeout_seconds" yaml:"iteration_timeout_seconds" mapstructure:"iteration_timeout_seconds"`
	InputSchema          map[string]any      `json:"input_schema,omitempty" yaml:"input_schema,omitempty" mapstructure:"input_schema"`
	OutputSchema         map[string]any      `json:"output_schema" yaml:"output_schema" mapstructure:"output_schema"`
	ContextRequirements  ContextRequirements `json:"context_requirements" yaml:"context_requirements" mapstructure:"context_requirements"`
	IsOrchestrator       bool                `json:"is_orchestrator,omitempty" yaml:"is_orchestrator,omitempty" mapstructure:"is_orchestrator"`
}

// Tool is an external capability invokable through the tools gateway.
type Tool struct {
	ID           string         `json:"id" yaml:"id" mapstructure:"id"`
	InputSchema  map[string]any `json:"input_schema" yaml:"input_schema" mapstructure:"input_schema"`
	OutputSchema map[string]any `json:"output_schema" yaml:"output_schema" mapstructure:"output_schema"`
	Endpoint     string         `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	LineageTags  []string       `json:"lineage_tags,omitempty" yaml:"lineage_tags,omitempty" mapstructure:"lineage_tags"`
}

// RetryPolicy governs LLM call retries.
type RetryPolicy struct {
	MaxAttempts    int     `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialDelayMS int     `json:"initial_delay_ms" yaml:"initial_delay_ms" mapstructure:"initial_delay_ms"`
	Multiplier     float64 `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
}

// ModelProfile describes an LLM provider + invocation parameters.
type ModelProfile struct {
	ID          string      `json:"id" yaml:"id" mapstructure:"id"`
	Provider    string      `json:"provider" yaml:"provider" mapstructure:"provider"` // openai | anthropic | ...
	Model       string      `json:"model" yaml:"model" mapstructure:"model"`
	Temperature float64     `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int         `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	TopP        float64     `json:"top_p" yaml:"top_p" mapstructure:"top_p"`
	JSONMode    bool        `json:"json_mode" yaml:"json_mode" mapstructure:"json_mode"`
	TimeoutSecs int         `json:"timeout_seconds" yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Retry       RetryPolicy `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// CompletionCriterion is one of the subset of criteria a workflow can require.
type CompletionCriterion string

const (
	CriterionRequiredAgentsExecuted CompletionCriterion = "required_agents_executed"
	CriterionMinAgentsExecuted      CompletionCriterion = "min_agents_executed"
	CriterionRequiredOutputs        CompletionCriterion = "required_outputs"
)

// WorkflowMode controls how strictly the orchestrator must follow the
// suggested sequence.
type WorkflowMode string

const (
	ModeAdvisory WorkflowMode = "advisory"
	ModeStrict   WorkflowMode = "strict"
)

// CheckpointTriggerPoint is where in the orchestrator loop a checkpoint may fire.
type CheckpointTriggerPoint string

const (
	TriggerPreWorkflow      CheckpointTriggerPoint = "pre_workflow"
	TriggerAfterAgent       CheckpointTriggerPoint = "after_agent"
	TriggerBeforeCompletion CheckpointTriggerPoint = "before_completion"
)

// CheckpointType classifies the kind of human decision being requested.
type CheckpointType string

const (
	CheckpointApproval   CheckpointType = "approval"
	CheckpointDecision   CheckpointType = "decision"
	CheckpointInput      CheckpointType = "input"
	CheckpointEscalation CheckpointType = "escalation"
)

// TriggerConditionType selects what data a trigger expression is evaluated against.
type TriggerConditionType string

const (
	TriggerConditionOutputBased TriggerConditionType = "output_based"
	TriggerConditionInputBased  TriggerConditionType = "input_based"
	TriggerConditionAlways      TriggerConditionType = "always"
)

// TriggerCondition is a restricted `field_path op literal` expression.
type TriggerCondition struct {
	Type       TriggerConditionType `json:"type" yaml:"type" mapstructure:"type"`
	Expression string                `json:"expression,omitempty" yaml:"expression,omitempty" mapstructure:"expression"`
}

// TimeoutConfig governs whether/how a pending checkpoint auto-resolves.
type TimeoutConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Seconds   int    `json:"seconds" yaml:"seconds" mapstructure:"seconds"`
	OnTimeout string `json:"on_timeout" yaml:"on_timeout" mapstructure:"on_timeout"` // action name, default auto_approve
}

// CheckpointConfig is a declarative HITL pause point attached to a workflow.
type CheckpointConfig struct {
	CheckpointID     string                 `json:"checkpoint_id" yaml:"checkpoint_id" mapstructure:"checkpoint_id"`
	Type             CheckpointType         `json:"type" yaml:"type" mapstructure:"type"`
	TriggerPoint     CheckpointTriggerPoint `json:"trigger_point" yaml:"trigger_point" mapstructure:"trigger_point"`
	AgentID          string                 `json:"agent_id,omitempty" yaml:"agent_id,omitempty" mapstructure:"agent_id"`
	TriggerCondition *TriggerCondition      `json:"trigger_condition,omitempty" yaml:"trigger_condition,omitempty" mapstructure:"trigger_condition"`
	RequiredRole     string                 `json:"required_role" yaml:"required_role" mapstructure:"required_role"`
	Timeout          TimeoutConfig          `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	UISchema         map[string]any         `json:"ui_schema,omitempty" yaml:"ui_schema,omitempty" mapstructure:"ui_schema"`
}

// Workflow is a goal + soft (or strict) sequence of agents plus completion criteria.
type Workflow struct {
	ID                  string                `json:"id" yaml:"id" mapstructure:"id"`
	Mode                 WorkflowMode          `json:"mode" yaml:"mode" mapstructure:"mode"`
	Goal                 string                `json:"goal" yaml:"goal" mapstructure:"goal"`
	SuggestedSequence    []string              `json:"suggested_sequence" yaml:"suggested_sequence" mapstructure:"suggested_sequence"`
	RequiredAgents       []string              `json:"required_agents" yaml:"required_agents" mapstructure:"required_agents"`
	OptionalAgents       []string              `json:"optional_agents,omitempty" yaml:"optional_agents,omitempty" mapstructure:"optional_agents"`
	CompletionCriteria   []CompletionCriterion `json:"completion_criteria" yaml:"completion_criteria" mapstructure:"completion_criteria"`
	MinAgentsExecuted    int                   `json:"min_agents_executed,omitempty" yaml:"min_agents_executed,omitempty" mapstructure:"min_agents_executed"`
	RequiredOutputs      []string              `json:"required_outputs,omitempty" yaml:"required_outputs,omitempty" mapstructure:"required_outputs"`
	Checkpoints          []CheckpointConfig    `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty" mapstructure:"checkpoints"`
	MaxAgentInvocations  int                   `json:"max_agent_invocations,omitempty" yaml:"max_agent_invocations,omitempty" mapstructure:"max_agent_invocations"`
	MaxDurationSeconds   int                   `json:"max_duration_seconds,omitempty" yaml:"max_duration_seconds,omitempty" mapstructure:"max_duration_seconds"`
}

// GovernanceRule allows or denies one (invoker, target) pair. Either side may
// be "*" to mean "any".
type GovernanceRule struct {
	From   string `json:"from" yaml:"from" mapstructure:"from"`
	To     string `json:"to" yaml:"to" mapstructure:"to"`
	Effect string `json:"effect" yaml:"effect" mapstructure:"effect"` // allow | deny
}

// GovernancePolicy holds session-wide defaults and explicit allow/deny rules.
// Default-deny: a (from, to) pair not matched by any rule is refused.
type GovernancePolicy struct {
	AgentInvocationRules         []GovernanceRule    `json:"agent_invocation_rules" yaml:"agent_invocation_rules" mapstructure:"agent_invocation_rules"`
	ToolAccessRules              []GovernanceRule    `json:"tool_access_rules" yaml:"tool_access_rules" mapstructure:"tool_access_rules"`
	MaxDuplicateInvocations      int                 `json:"max_duplicate_invocations" yaml:"max_duplicate_invocations" mapstructure:"max_duplicate_invocations"`
	MaxToolInvocationsPerSession int                 `json:"max_tool_invocations_per_session" yaml:"max_tool_invocations_per_session" mapstructure:"max_tool_invocations_per_session"`
	MaxLLMCallsPerSession        int                 `json:"max_llm_calls_per_session" yaml:"max_llm_calls_per_session" mapstructure:"max_llm_calls_per_session"`
	RoleHierarchy                map[string][]string `json:"can_act_as,omitempty" yaml:"can_act_as,omitempty" mapstructure:"can_act_as"`
}
