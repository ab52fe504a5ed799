package memory

import (
	"context"

	"github.com/meridianflow/meridian/pkg/contextpipeline"
)

// PipelineSource adapts Store to contextpipeline.MemorySource. The Memory
// Store is cross-session by design (§4.9) — sessionID is accepted only to
// satisfy the pipeline's call shape and is not used to scope the search.
type PipelineSource struct {
	Store *Store
}

// RetrieveBySimilarity implements contextpipeline.MemorySource.
func (a PipelineSource) RetrieveBySimilarity(ctx context.Context, sessionID, queryText string, limit int, threshold float64, useEmbeddings bool) ([]contextpipeline.Memory, error) {
	_ = sessionID
	recs, err := a.Store.RetrieveBySimilarity(ctx, queryText, limit, threshold, useEmbeddings)
	if err != nil {
		return nil, err
	}
	out := make([]contextpipeline.Memory, len(recs))
	for i, r := range recs {
		out[i] = contextpipeline.Memory{ID: r.ID, Type: r.Type, Content: r.Content}
	}
	return out, nil
}
