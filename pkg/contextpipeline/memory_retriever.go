package contextpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

// MemoryRetriever appends retrieved long-term notes to context.memories.
// Reactive mode fires when the agent attached an explicit memory_query;
// otherwise it synthesizes one from original_input and ranks proactively
// (§4.4).
type MemoryRetriever struct {
	Agent   registry.Agent
	Config  Config
	Source  MemorySource
}

func (p *MemoryRetriever) Name() string { return "memory_retriever" }

func (p *MemoryRetriever) Process(ctx context.Context, cc CompiledContext, agentID, sessionID string) (ProcessorResult, error) {
	start := time.Now()
	result := ProcessorResult{Context: cc, Success: true}

	if p.Source == nil {
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, nil
	}

	query := cc.MemoryQuery
	reactive := query != ""
	if !reactive {
		query = synthesizeMemoryQuery(cc.OriginalInput)
	}
	if query == "" {
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, nil
	}

	limit := p.Agent.ContextRequirements.MaxMemoryRetrievals
	if limit <= 0 {
		limit = p.Config.DefaultMaxMemoryHits
	}
	threshold := p.Config.MemorySimilarityThresh
	if reactive {
		// a reactive query is an explicit ask: accept anything the store
		// returns rather than second-guessing it with a proactive threshold.
		threshold = 0
	}

	hits, err := p.Source.RetrieveBySimilarity(ctx, sessionID, query, limit, threshold, p.Config.UseEmbeddings)
	if err != nil {
		result.Success = false
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, fmt.Errorf("memory_retriever: %w", err)
	}
	if len(hits) == 0 {
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, nil
	}

	cc.Memories = append(cc.Memories, hits...)
	result.Context = cc
	mode := "proactive"
	if reactive {
		mode = "reactive"
	}
	result.Modifications = []string{"retrieved_memories:" + mode}
	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

// synthesizeMemoryQuery builds a proactive query from the original input by
// flattening it to its string representation; the Memory Store does its own
// tokenization for Jaccard ranking.
func synthesizeMemoryQuery(originalInput any) string {
	switch v := originalInput.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if goal, ok := v["goal"].(string); ok && goal != "" {
			return goal
		}
		if desc, ok := v["description"].(string); ok && desc != "" {
			return desc
		}
		return toStableString(v)
	default:
		return toStableString(v)
	}
}
