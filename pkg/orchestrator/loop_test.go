package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianflow/meridian/pkg/checkpoint"
	"github.com/meridianflow/meridian/pkg/contextpipeline"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/registry"
	"github.com/meridianflow/meridian/pkg/worker"
)

// stubLLM cycles through a fixed sequence of raw responses, used by both
// the orchestrator and the worker it spawns — each is driven from its own
// instance so their call counters don't interfere.
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

type noopTools struct{}

func (noopTools) Invoke(ctx context.Context, tool registry.Tool, input map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func baseRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, reg.PutModelProfile(&registry.ModelProfile{ID: "mp1", Provider: "test", Model: "m"}))
	require.NoError(t, reg.PutAgent(&registry.Agent{
		ID:             "triage",
		ModelProfileID: "mp1",
		MaxIterations:  3,
		OutputSchema:   map[string]any{"type": "object"},
	}))
	require.NoError(t, reg.PutAgent(&registry.Agent{
		ID:             "orch",
		IsOrchestrator: true,
		AllowedAgents:  []string{"triage"},
		ModelProfileID: "mp1",
		MaxIterations:  4,
		OutputSchema:   map[string]any{"type": "object"},
	}))
	require.NoError(t, reg.PutWorkflow(&registry.Workflow{
		ID:                 "wf1",
		Mode:                registry.ModeAdvisory,
		Goal:                "investigate",
		RequiredAgents:      []string{"triage"},
		CompletionCriteria:  []registry.CompletionCriterion{registry.CriterionRequiredAgentsExecuted},
	}))
	return reg
}

func newTestOrchestrator(t *testing.T, reg *registry.Registry, orchLLM, workerLLM *stubLLM) *Loop {
	t.Helper()
	compiler := contextpipeline.NewCompiler(contextpipeline.NewPipeline(nil), contextpipeline.HandoffTable{}, nil, nil, nil, nil)
	cm, err := checkpoint.New(t.TempDir())
	require.NoError(t, err)

	w := &worker.Loop{
		Registry:    reg,
		Compiler:    compiler,
		LLM:         workerLLM,
		Tools:       noopTools{},
		EventLog:    events.NewLog(t.TempDir()),
		Progress:    events.NewProgressStore(0),
		Broadcaster: events.NewBroadcaster(0),
	}

	return &Loop{
		Registry:    reg,
		Compiler:    compiler,
		LLM:         orchLLM,
		Worker:      w,
		Checkpoints: cm,
		EventLog:    events.NewLog(t.TempDir()),
		Progress:    events.NewProgressStore(0),
		Broadcaster: events.NewBroadcaster(0),
	}
}

func TestRunInvokesAgentThenCompletesWorkflow(t *testing.T) {
	reg := baseRegistry(t)
	orchLLM := &stubLLM{responses: []string{
		`{"reasoning":"invoke triage","action":{"type":"invoke_agents","agent_requests":[{"agent_id":"triage","input":{}}]}}`,
		`{"reasoning":"done","action":{"type":"workflow_complete","evidence_map":{"summary":"resolved"}}}`,
	}}
	workerLLM := &stubLLM{responses: []string{
		`{"reasoning":"done","action":{"type":"final_output","output":{"summary":"triaged"}}}`,
	}}
	l := newTestOrchestrator(t, reg, orchLLM, workerLLM)

	out := l.Run(context.Background(), "orch", Input{SessionID: "s1", WorkflowID: "wf1", OriginalInput: map[string]any{"goal": "x"}})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "resolved", out.EvidenceMap["summary"])
}

func TestRunFallsBackOnUnparseableResponse(t *testing.T) {
	reg := baseRegistry(t)
	orchLLM := &stubLLM{responses: []string{"not json"}}
	workerLLM := &stubLLM{responses: []string{""}}
	l := newTestOrchestrator(t, reg, orchLLM, workerLLM)

	out := l.Run(context.Background(), "orch", Input{SessionID: "s1", WorkflowID: "wf1"})
	assert.Equal(t, StatusIncomplete, out.Status)
	assert.NotNil(t, out.EvidenceMap)
}

func TestRunStopsOnIterationCapWithBestEffortEvidence(t *testing.T) {
	reg := baseRegistry(t)
	orchLLM := &stubLLM{responses: []string{
		`{"reasoning":"keep looking","action":{"type":"invoke_agents","agent_requests":[]}}`,
	}}
	workerLLM := &stubLLM{responses: []string{""}}
	l := newTestOrchestrator(t, reg, orchLLM, workerLLM)

	out := l.Run(context.Background(), "orch", Input{SessionID: "s1", WorkflowID: "wf1"})
	assert.Equal(t, StatusIncomplete, out.Status)
}

func TestRunRejectsAtPreWorkflowCheckpoint(t *testing.T) {
	reg := baseRegistry(t)
	wf, err := reg.GetWorkflow("wf1")
	require.NoError(t, err)
	wf.Checkpoints = []registry.CheckpointConfig{{
		CheckpointID: "approve-start",
		Type:         registry.CheckpointApproval,
		TriggerPoint: registry.TriggerPreWorkflow,
		TriggerCondition: &registry.TriggerCondition{Type: registry.TriggerConditionAlways},
	}}
	require.NoError(t, reg.PutWorkflow(wf))

	orchLLM := &stubLLM{responses: []string{""}}
	workerLLM := &stubLLM{responses: []string{""}}
	l := newTestOrchestrator(t, reg, orchLLM, workerLLM)

	go func() {
		for {
			pending := l.Checkpoints.GetPendingCheckpoints("admin", "wf1")
			if len(pending) > 0 {
				_, _ = l.Checkpoints.ResolveCheckpoint(pending[0].ID, checkpoint.Resolution{Action: "reject", ResolvedBy: "alice"})
				return
			}
		}
	}()

	out := l.Run(context.Background(), "orch", Input{SessionID: "s1", WorkflowID: "wf1"})
	assert.Equal(t, StatusCancelled, out.Status)
}
