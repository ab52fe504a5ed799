package contextpipeline

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer estimates the token count of an arbitrary context value.
// Implementations may be exact (a real tokenizer) or approximate (the
// documented 4-chars-per-token heuristic, §9 Design Notes) — every
// downstream decision consults only the resulting integer, never a
// byte-exact count.
type Tokenizer interface {
	CountTokens(v any) int
}

// TiktokenEstimator counts tokens with a real BPE tokenizer when one is
// available for the configured encoding, falling back to the heuristic
// estimator otherwise (e.g. an unknown encoding name, or the tiktoken
// vocabulary file being unreachable).
type TiktokenEstimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
	fallback Tokenizer
}

// NewTiktokenEstimator builds an estimator for the given encoding name
// (e.g. "cl100k_base"). The encoding is loaded here, once; a
// missing/unreachable vocab file only degrades to the heuristic, never fails
// construction.
func NewTiktokenEstimator(encodingName string) *TiktokenEstimator {
	t := &TiktokenEstimator{fallback: HeuristicEstimator{}}
	t.once.Do(func() {
		if enc, err := tiktoken.GetEncoding(encodingName); err == nil {
			t.encoding = enc
		}
	})
	return t
}

// CountTokens serializes v to a stable string form and counts its tokens;
// without a loaded encoding it returns the fallback estimator's count for v.
func (t *TiktokenEstimator) CountTokens(v any) int {
	if t.encoding == nil {
		return t.fallback.CountTokens(v)
	}
	return len(t.encoding.Encode(toStableString(v), nil, nil))
}

// HeuristicEstimator implements the 4-chars-per-token fallback.
type HeuristicEstimator struct{}

// CountTokens approximates tokens as ceil(len(serialized)/4).
func (HeuristicEstimator) CountTokens(v any) int {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return 0
		}
		s = string(b)
	}
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}

// EstimateContextTokens counts the whole compiled context: original input,
// prior outputs, observations, memories, artifacts.
func EstimateContextTokens(est Tokenizer, cc CompiledContext) int {
	total := 0
	if cc.OriginalInput != nil {
		total += est.CountTokens(cc.OriginalInput)
	}
	if len(cc.PriorOutputs) > 0 {
		total += est.CountTokens(cc.PriorOutputs)
	}
	for _, o := range cc.Observations {
		total += est.CountTokens(o)
	}
	for _, m := range cc.Memories {
		total += est.CountTokens(m)
	}
	for _, a := range cc.Artifacts {
		total += est.CountTokens(a)
	}
	return total
}
