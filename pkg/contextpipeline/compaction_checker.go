package contextpipeline

import (
	"context"
	"time"
)

// CompactionChecker invokes the Compaction Manager on observations when
// compaction is globally enabled and either the estimated token count or
// the event count crosses its configured threshold (§4.4, §4.10).
type CompactionChecker struct {
	Config    Config
	Compactor Compactor
	Tokenizer Tokenizer
	Emitter   EventEmitter
	Method    string // rule_based | llm_based
}

func (p *CompactionChecker) Name() string { return "compaction_checker" }

func (p *CompactionChecker) Process(ctx context.Context, cc CompiledContext, agentID, sessionID string) (ProcessorResult, error) {
	start := time.Now()
	result := ProcessorResult{Context: cc, Success: true}

	if !p.Config.CompactionEnabled || p.Compactor == nil || len(cc.Observations) == 0 {
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, nil
	}

	est := p.Tokenizer
	if est == nil {
		est = HeuristicEstimator{}
	}
	tokens := EstimateContextTokens(est, cc)
	overTokens := p.Config.TokenThreshold > 0 && tokens > p.Config.TokenThreshold
	overEvents := p.Config.EventCountThreshold > 0 && len(cc.Observations) > p.Config.EventCountThreshold
	if !overTokens && !overEvents {
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, nil
	}

	method := p.Method
	if method == "" {
		method = "rule_based"
	}

	if p.Emitter != nil {
		p.Emitter.Emit(sessionID, "compaction_triggered", map[string]any{
			"agent_id":            agentID,
			"method":              method,
			"estimated_tokens":    tokens,
			"event_count":         len(cc.Observations),
			"token_threshold":     p.Config.TokenThreshold,
			"event_count_threshold": p.Config.EventCountThreshold,
		})
	}

	compacted, summary, err := p.Compactor.Compact(ctx, sessionID, agentID, method, cc.Observations)
	if err != nil {
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, err
	}
	cc.Observations = compacted
	cc.ensureMetadata()
	cc.Metadata["compaction_applied"] = true
	cc.Metadata["compaction_id"] = summary.CompactionID

	if p.Emitter != nil {
		p.Emitter.Emit(sessionID, "compaction_completed", map[string]any{
			"agent_id":      agentID,
			"compaction_id": summary.CompactionID,
			"method":        summary.Method,
			"events_before": summary.EventsBefore,
			"events_after":  summary.EventsAfter,
		})
	}

	result.Context = cc
	result.Modifications = []string{"compacted"}
	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	return result, nil
}
