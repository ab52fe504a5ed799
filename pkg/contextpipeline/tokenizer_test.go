package contextpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicEstimatorCountsTokens(t *testing.T) {
	h := HeuristicEstimator{}
	assert.Equal(t, 0, h.CountTokens(""))
	assert.Equal(t, 1, h.CountTokens("abcd"))
	assert.Equal(t, 2, h.CountTokens("abcde"))
}

func TestTiktokenEstimatorFallsBackOnUnknownEncoding(t *testing.T) {
	est := NewTiktokenEstimator("not-a-real-encoding")
	// falls back to the heuristic estimator when the encoding can't load.
	assert.Equal(t, est.fallback.CountTokens("abcd"), est.CountTokens("abcd"))
}

func TestEstimateContextTokensSumsAllFields(t *testing.T) {
	cc := CompiledContext{
		OriginalInput: "hello",
		PriorOutputs:  map[string]any{"a": "world"},
		Observations:  []Observation{{Source: "x", Type: "tool_result", Content: "obs"}},
		Memories:      []Memory{{ID: "m1", Content: "note"}},
		Artifacts:     []Artifact{{Handle: "artifact://a/v1", Content: "blob"}},
	}
	h := HeuristicEstimator{}
	total := EstimateContextTokens(h, cc)
	assert.Greater(t, total, 0)
}
