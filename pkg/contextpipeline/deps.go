package contextpipeline

import "context"

// MemorySource is the subset of the Memory Store (C8) the memory_retriever
// processor needs; satisfied by pkg/memory.PipelineSource, the adapter over
// *pkg/memory.Store.
type MemorySource interface {
	RetrieveBySimilarity(ctx context.Context, sessionID, queryText string, limit int, threshold float64, useEmbeddings bool) ([]Memory, error)
}

// ArtifactSource is the subset of the Artifact Store (C9) the
// artifact_resolver processor needs; satisfied by pkg/artifact.PipelineSource,
// the adapter over *pkg/artifact.Store.
type ArtifactSource interface {
	GetHandle(ctx context.Context, handle string) (Artifact, error)
}

// Compactor is the subset of the Compaction Manager (§4.10) the
// compaction_checker processor needs; satisfied by *pkg/artifact.CompactionManager.
type Compactor interface {
	Compact(ctx context.Context, sessionID, agentID, method string, observations []Observation) ([]Observation, CompactionSummary, error)
}

// CompactionSummary is the subset of a compaction run that the pipeline
// records as events; the full record lives in pkg/artifact.
type CompactionSummary struct {
	CompactionID   string `json:"compaction_id"`
	Method         string `json:"method"`
	EventsBefore   int    `json:"events_before"`
	EventsAfter    int    `json:"events_after"`
}
