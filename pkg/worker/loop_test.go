package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianflow/meridian/pkg/contextpipeline"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/registry"
	"github.com/meridianflow/meridian/pkg/toolsgateway"
)

// stubLLM returns a fixed sequence of raw responses, one per call, cycling
// the last entry if Complete is called more times than the sequence holds.
type stubLLM struct {
	responses []string
	calls     int
}

func (s *stubLLM) Complete(ctx context.Context, profile registry.ModelProfile, prompt string) (string, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

// stubTools returns a fixed map, or err when it is set.
type stubTools struct {
	out map[string]any
	err error
}

func (s *stubTools) Invoke(ctx context.Context, tool registry.Tool, input map[string]any) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

func newTestLoop(t *testing.T, llm *stubLLM, tools toolsgateway.Client) (*Loop, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, reg.PutModelProfile(&registry.ModelProfile{ID: "mp1", Provider: "test", Model: "m"}))
	require.NoError(t, reg.PutTool(&registry.Tool{ID: "lookup", Endpoint: "http://gateway/lookup"}))
	require.NoError(t, reg.PutAgent(&registry.Agent{
		ID:             "triage",
		AllowedTools:   []string{"lookup"},
		ModelProfileID: "mp1",
		MaxIterations:  5,
		OutputSchema: map[string]any{
			"type":     "object",
			"required": []any{"summary"},
			"properties": map[string]any{
				"summary": map[string]any{"type": "string"},
			},
		},
	}))

	compiler := contextpipeline.NewCompiler(contextpipeline.NewPipeline(nil), contextpipeline.HandoffTable{}, nil, nil, nil, nil)

	return &Loop{
		Registry:    reg,
		Compiler:    compiler,
		LLM:         llm,
		Tools:       tools,
		EventLog:    events.NewLog(t.TempDir()),
		Progress:    events.NewProgressStore(0),
		Broadcaster: events.NewBroadcaster(0),
	}, reg
}

func TestRunCompletesOnValidFinalOutput(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"reasoning":"done","action":{"type":"final_output","output":{"summary":"all clear"}}}`,
	}}
	loop, _ := newTestLoop(t, llm, &stubTools{})

	out := loop.Run(context.Background(), Input{SessionID: "s1", AgentID: "triage", OriginalInput: map[string]any{"goal": "investigate"}})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "all clear", out.Output["summary"])
	assert.Equal(t, 1, out.IterationsUsed)
}

func TestRunInvokesToolsThenCompletes(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"reasoning":"need data","action":{"type":"use_tools","tool_requests":[{"tool_id":"lookup","input":{"q":"x"}}]}}`,
		`{"reasoning":"done","action":{"type":"final_output","output":{"summary":"found it"}}}`,
	}}
	loop, _ := newTestLoop(t, llm, &stubTools{out: map[string]any{"result": "ok"}})

	out := loop.Run(context.Background(), Input{SessionID: "s1", AgentID: "triage"})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 1, out.ToolCallsMade)
	assert.Equal(t, 2, out.IterationsUsed)
}

func TestRunRetriesOnSchemaValidationFailureThenGivesUp(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"reasoning":"bad","action":{"type":"final_output","output":{"wrong_field":"x"}}}`,
	}}
	loop, _ := newTestLoop(t, llm, &stubTools{})
	loop.ValidationFailureLimit = 2

	out := loop.Run(context.Background(), Input{SessionID: "s1", AgentID: "triage"})
	assert.Equal(t, StatusIncomplete, out.Status)
	assert.NotEmpty(t, out.Warnings)
}

func TestRunTerminatesOnUnparseableResponse(t *testing.T) {
	llm := &stubLLM{responses: []string{"not json at all"}}
	loop, _ := newTestLoop(t, llm, &stubTools{})

	out := loop.Run(context.Background(), Input{SessionID: "s1", AgentID: "triage"})
	assert.Equal(t, StatusIncomplete, out.Status)
	assert.Equal(t, "parse_error", out.Output["status"])
}

func TestRunDeniesToolAccessButContinues(t *testing.T) {
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, reg.PutModelProfile(&registry.ModelProfile{ID: "mp1", Provider: "test", Model: "m"}))
	require.NoError(t, reg.PutTool(&registry.Tool{ID: "lookup", Endpoint: "http://gateway/lookup"}))
	require.NoError(t, reg.PutAgent(&registry.Agent{
		ID:             "triage",
		AllowedTools:   nil, // no tools allowed
		ModelProfileID: "mp1",
		MaxIterations:  5,
		OutputSchema:   map[string]any{"type": "object"},
	}))

	llm := &stubLLM{responses: []string{
		`{"reasoning":"need data","action":{"type":"use_tools","tool_requests":[{"tool_id":"lookup","input":{}}]}}`,
		`{"reasoning":"done","action":{"type":"final_output","output":{}}}`,
	}}
	compiler := contextpipeline.NewCompiler(contextpipeline.NewPipeline(nil), contextpipeline.HandoffTable{}, nil, nil, nil, nil)
	loop := &Loop{
		Registry:    reg,
		Compiler:    compiler,
		LLM:         llm,
		Tools:       &stubTools{},
		EventLog:    events.NewLog(t.TempDir()),
		Progress:    events.NewProgressStore(0),
		Broadcaster: events.NewBroadcaster(0),
	}

	out := loop.Run(context.Background(), Input{SessionID: "s1", AgentID: "triage"})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 0, out.ToolCallsMade)
}
