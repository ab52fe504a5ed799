package contextpipeline

import (
	"context"
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

// Injector emits the final compiled_context object and, when the agent has
// prefix caching enabled, splits stable prefix fields (system instructions,
// agent identity, tool schemas) from the variable suffix (prior outputs,
// observations, original input), attaching a cache key (§4.4).
type Injector struct {
	Agent              registry.Agent
	SystemInstructions any
	ToolSchemas        any
}

func (p *Injector) Name() string { return "injector" }

func (p *Injector) Process(_ context.Context, cc CompiledContext, agentID, _ string) (ProcessorResult, error) {
	start := time.Now()
	cc.ensureMetadata()
	cc.Metadata["compiled"] = true

	var mods []string
	if p.Agent.ContextRequirements.PrefixCachingEnabled {
		prefix := map[string]any{
			"agent_id":            agentID,
			"system_instructions":  p.SystemInstructions,
			"tool_schemas":         p.ToolSchemas,
		}
		suffix := map[string]any{
			"prior_outputs":  cc.PriorOutputs,
			"observations":   cc.Observations,
			"original_input": cc.OriginalInput,
		}
		cc.CachePrefix = prefix
		cc.CacheSuffix = suffix
		cc.CacheKey = CacheKey(agentID, prefix)
		mods = append(mods, "prefix_cache_split")
	}

	return ProcessorResult{
		Context:         cc,
		Success:         true,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Modifications:   mods,
	}, nil
}
