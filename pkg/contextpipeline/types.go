// Package contextpipeline implements the Context Processor Pipeline (C6) and
// the Context Compiler that drives it (C7): the ordered chain of transforms
// that turns an agent's raw inputs into a token-budgeted, LLM-ready prompt
// bundle (§4.4, §4.5).
package contextpipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Observation is a structured record of a tool or agent result injected
// into the next iteration's prompt.
type Observation struct {
	Source    string         `json:"source"` // agent id or tool id that produced it
	Type      string         `json:"type"`   // event type, e.g. tool_result, agent_completed
	Content   any            `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Memory is the minimal shape a retrieved long-term note takes once it
// lands in a compiled context (full shape lives in pkg/memory).
type Memory struct {
	ID      string `json:"id"`
	Type    string `json:"memory_type"`
	Content string `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Artifact is the minimal shape of a resolved artifact handle once it lands
// in a compiled context (full shape lives in pkg/artifact).
type Artifact struct {
	Handle  string `json:"handle"`
	Content any    `json:"content"`
}

// CompiledContext is the pipeline's working value and final product.
type CompiledContext struct {
	AgentID         string         `json:"agent_id"`
	OriginalInput   any            `json:"original_input,omitempty"`
	PriorOutputs    map[string]any `json:"prior_outputs,omitempty"`
	Observations    []Observation  `json:"observations,omitempty"`
	Memories        []Memory       `json:"memories,omitempty"`
	Artifacts       []Artifact     `json:"artifacts,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	EstimatedTokens int            `json:"estimated_tokens"`

	// MemoryQuery, set by a worker that explicitly requests reactive
	// memory retrieval; consumed by the memory_retriever processor.
	MemoryQuery string `json:"-"`
	// ArtifactRequests, set by a worker that explicitly requests on-demand
	// artifact resolution.
	ArtifactRequests []string `json:"-"`

	// CachePrefix/CacheSuffix/CacheKey are populated by the injector
	// processor when prefix-caching is enabled.
	CachePrefix any    `json:"cache_prefix,omitempty"`
	CacheSuffix any    `json:"cache_suffix,omitempty"`
	CacheKey    string `json:"cache_key,omitempty"`
}

func (c *CompiledContext) ensureMetadata() {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
}

// ProcessorExecution records one processor's run for
// metadata.processor_execution_log.
type ProcessorExecution struct {
	Processor        string   `json:"processor"`
	Success          bool     `json:"success"`
	ExecutionTimeMS  int64    `json:"execution_time_ms"`
	Modifications    []string `json:"modifications,omitempty"`
	Error            string   `json:"error,omitempty"`
}

func (c *CompiledContext) appendExecution(pe ProcessorExecution) {
	c.ensureMetadata()
	log, _ := c.Metadata["processor_execution_log"].([]ProcessorExecution)
	log = append(log, pe)
	c.Metadata["processor_execution_log"] = log
}

// ProcessorResult is what a single processor returns.
type ProcessorResult struct {
	Context         CompiledContext
	Success         bool
	ExecutionTimeMS int64
	Modifications   []string
}

// Processor is the pipeline stage contract: process(context, agent_id,
// session_id) → result. A processor that errors is logged and bypassed;
// subsequent processors see the pre-processor context (§4.4).
type Processor interface {
	Name() string
	Process(ctx context.Context, cc CompiledContext, agentID, sessionID string) (ProcessorResult, error)
}

// CacheKey derives the prefix-cache key {agent_id}:{md5(prefix)}.
func CacheKey(agentID string, prefix any) string {
	sum := md5.Sum([]byte(toStableString(prefix)))
	return agentID + ":" + hex.EncodeToString(sum[:])
}

func toStableString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
