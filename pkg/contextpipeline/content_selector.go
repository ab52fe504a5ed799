package contextpipeline

import (
	"context"
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

// ContentSelector drops noise event types from observations and applies the
// agent's coarse context_scope filter (§4.4).
type ContentSelector struct {
	Agent registry.Agent
}

func (p *ContentSelector) Name() string { return "content_selector" }

func (p *ContentSelector) Process(_ context.Context, cc CompiledContext, agentID, _ string) (ProcessorResult, error) {
	start := time.Now()
	var mods []string

	noise := make(map[string]bool, len(p.Agent.ContextRequirements.NoiseEventTypes))
	for _, t := range p.Agent.ContextRequirements.NoiseEventTypes {
		noise[t] = true
	}
	if len(noise) > 0 {
		kept := cc.Observations[:0:0]
		for _, o := range cc.Observations {
			if noise[o.Type] {
				continue
			}
			kept = append(kept, o)
		}
		if len(kept) != len(cc.Observations) {
			mods = append(mods, "dropped_noise_events")
		}
		cc.Observations = kept
	}

	switch p.Agent.ContextRequirements.ContextScope {
	case "minimal":
		cc.PriorOutputs = nil
		cc.Observations = nil
		mods = append(mods, "scope_minimal")
	case "scoped":
		// scoped: handoff.go's rule-based filter already narrowed prior
		// outputs before the pipeline ran; nothing further to drop here.
	case "full", "":
		// pass through
	}

	return ProcessorResult{
		Context:         cc,
		Success:         true,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Modifications:   mods,
	}, nil
}
