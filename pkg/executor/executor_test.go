package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianflow/meridian/pkg/artifact"
	"github.com/meridianflow/meridian/pkg/checkpoint"
	"github.com/meridianflow/meridian/pkg/cleanup"
	"github.com/meridianflow/meridian/pkg/contextpipeline"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/orchestrator"
	"github.com/meridianflow/meridian/pkg/registry"
	"github.com/meridianflow/meridian/pkg/worker"
)

type stubLLM struct {
	responses []string
	calls     int
	delay     time.Duration
}

func (s *stubLLM) Complete(ctx context.Context, profile registry.ModelProfile, prompt string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
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
		Mode:               registry.ModeAdvisory,
		Goal:               "investigate",
		RequiredAgents:     []string{"triage"},
		CompletionCriteria: []registry.CompletionCriterion{registry.CriterionRequiredAgentsExecuted},
	}))
	return reg
}

func newTestExecutor(t *testing.T, reg *registry.Registry, orchLLM, workerLLM *stubLLM, cleanupSvc *cleanup.Service) (*Executor, *events.ProgressStore, *events.Broadcaster) {
	t.Helper()
	compiler := contextpipeline.NewCompiler(contextpipeline.NewPipeline(nil), contextpipeline.HandoffTable{}, nil, nil, nil, nil)
	cm, err := checkpoint.New(t.TempDir())
	require.NoError(t, err)

	progress := events.NewProgressStore(0)
	broadcaster := events.NewBroadcaster(0)

	w := &worker.Loop{
		Registry:    reg,
		Compiler:    compiler,
		LLM:         workerLLM,
		Tools:       noopTools{},
		EventLog:    events.NewLog(t.TempDir()),
		Progress:    progress,
		Broadcaster: broadcaster,
	}

	orch := &orchestrator.Loop{
		Registry:    reg,
		Compiler:    compiler,
		LLM:         orchLLM,
		Worker:      w,
		Checkpoints: cm,
		EventLog:    events.NewLog(t.TempDir()),
		Progress:    progress,
		Broadcaster: broadcaster,
	}

	store := artifact.New(t.TempDir())
	exec := New(reg, orch, store, progress, broadcaster, cleanupSvc, nil)
	return exec, progress, broadcaster
}

func TestExecuteWorkflowCompletesAndPersistsEvidence(t *testing.T) {
	reg := baseRegistry(t)
	orchLLM := &stubLLM{responses: []string{
		`{"reasoning":"invoke triage","action":{"type":"invoke_agents","agent_requests":[{"agent_id":"triage","input":{}}]}}`,
		`{"reasoning":"done","action":{"type":"workflow_complete","evidence_map":{"summary":"resolved"}}}`,
	}}
	workerLLM := &stubLLM{responses: []string{
		`{"reasoning":"done","action":{"type":"final_output","output":{"summary":"triaged"}}}`,
	}}
	exec, progress, _ := newTestExecutor(t, reg, orchLLM, workerLLM, nil)

	sessionID, err := exec.ExecuteWorkflow("wf1", map[string]any{"goal": "x"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	require.Eventually(t, func() bool {
		sp, ok := progress.Get(sessionID)
		return ok && sp.Status == "completed"
	}, time.Second, 5*time.Millisecond)

	loaded, _, err := exec.Artifacts.Get(sessionID+"_evidence_map", nil)
	require.NoError(t, err)
	m, ok := loaded.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "resolved", m["summary"])

	assert.NotContains(t, exec.GetRunningSessions(), sessionID)
}

func TestExecuteWorkflowUnknownWorkflowErrors(t *testing.T) {
	reg := baseRegistry(t)
	exec, _, _ := newTestExecutor(t, reg, &stubLLM{}, &stubLLM{}, nil)

	_, err := exec.ExecuteWorkflow("does-not-exist", nil, "")
	assert.Error(t, err)
}

func TestCancelWorkflowStopsRunningSession(t *testing.T) {
	reg := baseRegistry(t)
	orchLLM := &stubLLM{
		responses: []string{`{"reasoning":"keep looking","action":{"type":"invoke_agents","agent_requests":[]}}`},
		delay:     200 * time.Millisecond,
	}
	workerLLM := &stubLLM{responses: []string{""}}
	exec, progress, _ := newTestExecutor(t, reg, orchLLM, workerLLM, nil)

	sessionID, err := exec.ExecuteWorkflow("wf1", nil, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(exec.GetRunningSessions()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, exec.CancelWorkflow(sessionID))
	assert.NotContains(t, exec.GetRunningSessions(), sessionID)

	sp, ok := progress.Get(sessionID)
	require.True(t, ok)
	assert.Equal(t, "cancelled", sp.Status)
}

func TestCancelWorkflowUnknownSessionErrors(t *testing.T) {
	reg := baseRegistry(t)
	exec, _, _ := newTestExecutor(t, reg, &stubLLM{}, &stubLLM{}, nil)

	err := exec.CancelWorkflow("no-such-session")
	var notRunning *NotRunningError
	assert.ErrorAs(t, err, &notRunning)
}

func TestExecuteWorkflowSchedulesCleanupOnCompletion(t *testing.T) {
	reg := baseRegistry(t)
	orchLLM := &stubLLM{responses: []string{
		`{"reasoning":"done","action":{"type":"workflow_complete","evidence_map":{"summary":"ok"}}}`,
	}}
	workerLLM := &stubLLM{responses: []string{""}}

	progress := events.NewProgressStore(0)
	broadcaster := events.NewBroadcaster(0)
	cleanupSvc := cleanup.NewService(progress, broadcaster, 20*time.Millisecond)

	compiler := contextpipeline.NewCompiler(contextpipeline.NewPipeline(nil), contextpipeline.HandoffTable{}, nil, nil, nil, nil)
	cm, err := checkpoint.New(t.TempDir())
	require.NoError(t, err)
	w := &worker.Loop{
		Registry: reg, Compiler: compiler,
		LLM: workerLLM, Tools: noopTools{}, EventLog: events.NewLog(t.TempDir()),
		Progress: progress, Broadcaster: broadcaster,
	}
	orch := &orchestrator.Loop{
		Registry: reg, Compiler: compiler,
		LLM: orchLLM, Worker: w, Checkpoints: cm, EventLog: events.NewLog(t.TempDir()),
		Progress: progress, Broadcaster: broadcaster,
	}
	exec := New(reg, orch, artifact.New(t.TempDir()), progress, broadcaster, cleanupSvc, nil)

	sessionID, err := exec.ExecuteWorkflow("wf1", nil, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return cleanupSvc.Pending(sessionID)
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := progress.Get(sessionID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}
