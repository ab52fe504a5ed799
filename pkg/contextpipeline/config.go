package contextpipeline

// Config holds the pipeline-wide knobs that are not an individual agent's
// business: whether compaction runs at all, its thresholds, and whether
// similarity ranking uses embeddings. Agent-scoped knobs (context scope,
// noise types, retrieval/load caps, prefix caching) live on
// registry.ContextRequirements instead.
type Config struct {
	CompactionEnabled      bool
	TokenThreshold         int
	EventCountThreshold    int
	UseEmbeddings          bool
	MemorySimilarityThresh float64
	DefaultMaxMemoryHits   int
	DefaultMaxArtifactLoads int
}

// DefaultConfig mirrors the prototype's defaults (original_source).
func DefaultConfig() Config {
	return Config{
		CompactionEnabled:       true,
		TokenThreshold:          8000,
		EventCountThreshold:     50,
		UseEmbeddings:           false,
		MemorySimilarityThresh:  0.15,
		DefaultMaxMemoryHits:    5,
		DefaultMaxArtifactLoads: 10,
	}
}
