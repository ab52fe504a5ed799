package contextpipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianflow/meridian/pkg/registry"
)

func TestContentSelectorDropsNoiseAndAppliesMinimalScope(t *testing.T) {
	agent := registry.Agent{
		ID: "a1",
		ContextRequirements: registry.ContextRequirements{
			NoiseEventTypes: []string{"heartbeat"},
			ContextScope:    "minimal",
		},
	}
	p := &ContentSelector{Agent: agent}
	cc := CompiledContext{
		PriorOutputs: map[string]any{"x": 1},
		Observations: []Observation{
			{Type: "heartbeat"},
			{Type: "tool_result"},
		},
	}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.Nil(t, result.Context.PriorOutputs)
	assert.Nil(t, result.Context.Observations)
	assert.Contains(t, result.Modifications, "scope_minimal")
}

func TestContentSelectorFullScopePassesThrough(t *testing.T) {
	agent := registry.Agent{ID: "a1", ContextRequirements: registry.ContextRequirements{ContextScope: "full"}}
	p := &ContentSelector{Agent: agent}
	cc := CompiledContext{PriorOutputs: map[string]any{"x": 1}}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, result.Context.PriorOutputs)
}

type stubCompactor struct {
	called bool
	err    error
}

func (s *stubCompactor) Compact(_ context.Context, sessionID, agentID, method string, observations []Observation) ([]Observation, CompactionSummary, error) {
	s.called = true
	if s.err != nil {
		return nil, CompactionSummary{}, s.err
	}
	return observations[:1], CompactionSummary{CompactionID: "c1", Method: method, EventsBefore: len(observations), EventsAfter: 1}, nil
}

type stubEmitter struct{ events []string }

func (s *stubEmitter) Emit(sessionID, eventType string, payload map[string]any) {
	s.events = append(s.events, eventType)
}

func TestCompactionCheckerTriggersOnEventCountThreshold(t *testing.T) {
	compactor := &stubCompactor{}
	emitter := &stubEmitter{}
	p := &CompactionChecker{
		Config:    Config{CompactionEnabled: true, EventCountThreshold: 2},
		Compactor: compactor,
		Emitter:   emitter,
	}
	cc := CompiledContext{Observations: []Observation{{Type: "a"}, {Type: "b"}, {Type: "c"}}}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.True(t, compactor.called)
	assert.Len(t, result.Context.Observations, 1)
	assert.Equal(t, []string{"compaction_triggered", "compaction_completed"}, emitter.events)
}

func TestCompactionCheckerSkipsWhenUnderThreshold(t *testing.T) {
	compactor := &stubCompactor{}
	p := &CompactionChecker{
		Config:    Config{CompactionEnabled: true, EventCountThreshold: 10},
		Compactor: compactor,
	}
	cc := CompiledContext{Observations: []Observation{{Type: "a"}}}
	_, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.False(t, compactor.called)
}

func TestCompactionCheckerPropagatesError(t *testing.T) {
	compactor := &stubCompactor{err: errors.New("boom")}
	p := &CompactionChecker{
		Config:    Config{CompactionEnabled: true, EventCountThreshold: 1},
		Compactor: compactor,
	}
	cc := CompiledContext{Observations: []Observation{{Type: "a"}, {Type: "b"}}}
	_, err := p.Process(context.Background(), cc, "a1", "s1")
	require.Error(t, err)
}

type stubMemorySource struct {
	hits []Memory
	err  error
}

func (s *stubMemorySource) RetrieveBySimilarity(_ context.Context, sessionID, queryText string, limit int, threshold float64, useEmbeddings bool) ([]Memory, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func TestMemoryRetrieverReactiveModeIgnoresThreshold(t *testing.T) {
	source := &stubMemorySource{hits: []Memory{{ID: "m1", Content: "x"}}}
	p := &MemoryRetriever{
		Agent:  registry.Agent{ID: "a1"},
		Config: Config{MemorySimilarityThresh: 0.9, DefaultMaxMemoryHits: 5},
		Source: source,
	}
	cc := CompiledContext{MemoryQuery: "explicit query"}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.Len(t, result.Context.Memories, 1)
	assert.Contains(t, result.Modifications, "retrieved_memories:reactive")
}

func TestMemoryRetrieverProactiveSynthesizesFromGoal(t *testing.T) {
	source := &stubMemorySource{hits: []Memory{{ID: "m1"}}}
	p := &MemoryRetriever{Agent: registry.Agent{ID: "a1"}, Config: Config{}, Source: source}
	cc := CompiledContext{OriginalInput: map[string]any{"goal": "investigate outage"}}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.Len(t, result.Context.Memories, 1)
	assert.Contains(t, result.Modifications, "retrieved_memories:proactive")
}

func TestMemoryRetrieverNoOpWithoutSource(t *testing.T) {
	p := &MemoryRetriever{Agent: registry.Agent{ID: "a1"}}
	cc := CompiledContext{MemoryQuery: "q"}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.Empty(t, result.Context.Memories)
}

type stubArtifactSource struct{}

func (stubArtifactSource) GetHandle(_ context.Context, handle string) (Artifact, error) {
	return Artifact{Handle: handle, Content: "resolved"}, nil
}

func TestArtifactResolverOnDemandOnlyHonorsExplicitRequests(t *testing.T) {
	p := &ArtifactResolver{
		Agent:  registry.Agent{ContextRequirements: registry.ContextRequirements{ArtifactAccessMode: "on_demand"}},
		Source: stubArtifactSource{},
	}
	cc := CompiledContext{
		OriginalInput:    "see artifact://ignored/v1",
		ArtifactRequests: []string{"artifact://requested/v2"},
	}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	require.Len(t, result.Context.Artifacts, 1)
	assert.Equal(t, "artifact://requested/v2", result.Context.Artifacts[0].Handle)
}

func TestArtifactResolverPreloadDiscoversHandles(t *testing.T) {
	p := &ArtifactResolver{
		Agent:  registry.Agent{ContextRequirements: registry.ContextRequirements{ArtifactAccessMode: "preload", MaxArtifactLoads: 5}},
		Config: Config{DefaultMaxArtifactLoads: 5},
		Source: stubArtifactSource{},
	}
	cc := CompiledContext{OriginalInput: map[string]any{"ref": "artifact://doc/v3"}}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	require.Len(t, result.Context.Artifacts, 1)
	assert.Equal(t, "artifact://doc/v3", result.Context.Artifacts[0].Handle)
}

func TestTransformerTagsToolResultsAsFunction(t *testing.T) {
	p := &Transformer{}
	cc := CompiledContext{Observations: []Observation{
		{Source: "tool1", Type: "tool_result", Content: "ok", Timestamp: time.Now()},
		{Source: "agent1", Type: "agent_completed", Content: "done", Timestamp: time.Now()},
	}}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	msgs := result.Context.Metadata["messages"].([]Message)
	require.Len(t, msgs, 2)
	assert.Equal(t, "function", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestTokenBudgetEnforcerDropsOldestUntilFits(t *testing.T) {
	agent := registry.Agent{ContextRequirements: registry.ContextRequirements{MaxContextTokens: 1}}
	p := &TokenBudgetEnforcer{Agent: agent, Tokenizer: HeuristicEstimator{}}
	cc := CompiledContext{Observations: []Observation{
		{Content: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{Content: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
	}}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Context.Observations), 1)
	assert.Contains(t, result.Modifications, "dropped_oldest_observations")
}

func TestTokenBudgetEnforcerNoLimitKeepsEverything(t *testing.T) {
	p := &TokenBudgetEnforcer{Agent: registry.Agent{}, Tokenizer: HeuristicEstimator{}}
	cc := CompiledContext{Observations: []Observation{{Content: "x"}, {Content: "y"}}}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.Len(t, result.Context.Observations, 2)
}

func TestInjectorSplitsPrefixWhenEnabled(t *testing.T) {
	agent := registry.Agent{ID: "a1", ContextRequirements: registry.ContextRequirements{PrefixCachingEnabled: true}}
	p := &Injector{Agent: agent, SystemInstructions: "sys"}
	cc := CompiledContext{OriginalInput: "hi"}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Context.CacheKey)
	assert.NotNil(t, result.Context.CachePrefix)
	assert.NotNil(t, result.Context.CacheSuffix)
}

func TestInjectorNoOpWhenDisabled(t *testing.T) {
	p := &Injector{Agent: registry.Agent{}}
	cc := CompiledContext{OriginalInput: "hi"}
	result, err := p.Process(context.Background(), cc, "a1", "s1")
	require.NoError(t, err)
	assert.Empty(t, result.Context.CacheKey)
}
