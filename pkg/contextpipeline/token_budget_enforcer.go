package contextpipeline

import (
	"context"
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

// TokenBudgetEnforcer estimates the compiled context's token count and, if
// it exceeds the agent's max_context_tokens, drops the oldest observations
// first until it fits (§4.4).
type TokenBudgetEnforcer struct {
	Agent     registry.Agent
	Tokenizer Tokenizer
}

func (p *TokenBudgetEnforcer) Name() string { return "token_budget_enforcer" }

func (p *TokenBudgetEnforcer) Process(_ context.Context, cc CompiledContext, _, _ string) (ProcessorResult, error) {
	start := time.Now()
	est := p.Tokenizer
	if est == nil {
		est = HeuristicEstimator{}
	}

	limit := p.Agent.ContextRequirements.MaxContextTokens
	var mods []string
	dropped := 0
	if limit > 0 {
		for {
			tokens := EstimateContextTokens(est, cc)
			cc.EstimatedTokens = tokens
			if tokens <= limit || len(cc.Observations) == 0 {
				break
			}
			cc.Observations = cc.Observations[1:]
			dropped++
		}
	} else {
		cc.EstimatedTokens = EstimateContextTokens(est, cc)
	}
	if dropped > 0 {
		mods = append(mods, "dropped_oldest_observations")
		cc.ensureMetadata()
		cc.Metadata["observations_dropped_for_budget"] = dropped
	}

	return ProcessorResult{
		Context:         cc,
		Success:         true,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Modifications:   mods,
	}, nil
}
