package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianflow/meridian/pkg/artifact"
	"github.com/meridianflow/meridian/pkg/checkpoint"
	"github.com/meridianflow/meridian/pkg/config"
	"github.com/meridianflow/meridian/pkg/contextpipeline"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/executor"
	"github.com/meridianflow/meridian/pkg/memory"
	"github.com/meridianflow/meridian/pkg/metrics"
	"github.com/meridianflow/meridian/pkg/orchestrator"
	"github.com/meridianflow/meridian/pkg/registry"
	"github.com/meridianflow/meridian/pkg/worker"
)

func newTestServer(t *testing.T) *Server {
	return newTestServerWithMetrics(t, nil)
}

func newTestServerWithMetrics(t *testing.T, metricsReg *metrics.Registry) *Server {
	t.Helper()
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, reg.PutModelProfile(&registry.ModelProfile{ID: "mp1", Provider: "test", Model: "m"}))
	require.NoError(t, reg.PutAgent(&registry.Agent{ID: "triage", ModelProfileID: "mp1", MaxIterations: 2, OutputSchema: map[string]any{"type": "object"}}))
	require.NoError(t, reg.PutAgent(&registry.Agent{ID: "orch", IsOrchestrator: true, AllowedAgents: []string{"triage"}, ModelProfileID: "mp1", MaxIterations: 3, OutputSchema: map[string]any{"type": "object"}}))
	require.NoError(t, reg.PutWorkflow(&registry.Workflow{
		ID: "wf1", Mode: registry.ModeAdvisory, Goal: "test",
		RequiredAgents:     []string{"triage"},
		CompletionCriteria: []registry.CompletionCriterion{registry.CriterionRequiredAgentsExecuted},
	}))

	compiler := contextpipeline.NewCompiler(contextpipeline.NewPipeline(nil), contextpipeline.HandoffTable{}, nil, nil, nil, nil)
	cm, err := checkpoint.New(t.TempDir())
	require.NoError(t, err)

	progress := events.NewProgressStore(0)
	broadcaster := events.NewBroadcaster(0)
	eventLog := events.NewLog(t.TempDir())

	w := &worker.Loop{
		Registry: reg, Compiler: compiler,
		LLM: finalOutputLLM{}, Tools: noopToolsClient{}, EventLog: eventLog,
		Progress: progress, Broadcaster: broadcaster,
	}
	orch := &orchestrator.Loop{
		Registry: reg, Compiler: compiler,
		LLM: completeWorkflowLLM{}, Worker: w, Checkpoints: cm, EventLog: eventLog,
		Progress: progress, Broadcaster: broadcaster,
	}

	artifacts := artifact.New(t.TempDir())
	compaction := artifact.NewCompactionManager(t.TempDir(), artifact.CompactionConfig{})
	exec := executor.New(reg, orch, artifacts, progress, broadcaster, nil, nil).WithMetrics(metricsReg)
	mem := memory.New(t.TempDir(), 0, nil)

	return NewServer(reg, exec, eventLog, progress, broadcaster, cm, mem, artifacts, compaction, &config.SystemConfig{StoragePath: t.TempDir()}, metricsReg)
}

type noopToolsClient struct{}

func (noopToolsClient) Invoke(ctx context.Context, tool registry.Tool, input map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

type finalOutputLLM struct{}

func (finalOutputLLM) Complete(ctx context.Context, profile registry.ModelProfile, prompt string) (string, error) {
	return `{"reasoning":"done","action":{"type":"final_output","output":{"summary":"ok"}}}`, nil
}

type completeWorkflowLLM struct{}

func (completeWorkflowLLM) Complete(ctx context.Context, profile registry.ModelProfile, prompt string) (string, error) {
	return `{"reasoning":"invoke","action":{"type":"invoke_agents","agent_requests":[{"agent_id":"triage","input":{}}]}}`, nil
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRunUnknownWorkflowReturns404(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(createRunRequest{WorkflowID: "nope"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRunStartsSession(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(createRunRequest{WorkflowID: "wf1", InputData: map[string]any{"goal": "x"}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["session_id"])
	assert.Equal(t, "running", resp["status"])
}

func TestRunStatusHandlerNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/runs/does-not-exist/status", nil)
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp["status"])
}

func TestListAgentsHandler(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/registries/agents", nil)
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var agents []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agents))
	assert.Len(t, agents, 2)
}

func TestGetAgentNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/registries/agents/nope", nil)
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndGetMemory(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(createMemoryRequest{MemoryType: "insight", Content: "cache invalidation is hard"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/memory", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var rec2 map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rec2))
	assert.Equal(t, "insight", rec2["memory_type"])
}

func TestSaveAndGetArtifactVersion(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(saveArtifactVersionRequest{ArtifactID: "report", Content: map[string]any{"ok": true}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/artifacts/versions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/artifacts/report/versions/latest", nil)
	s.Handler().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestPendingCheckpointsEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/checkpoints/pending", nil)
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}

func TestMetricsEndpointExposesWorkflowCounters(t *testing.T) {
	s := newTestServerWithMetrics(t, metrics.New())

	body, _ := json.Marshal(createRunRequest{WorkflowID: "wf1", InputData: map[string]any{"goal": "x"}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.Handler().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "meridian_workflow_started_total")
	assert.Contains(t, rec2.Body.String(), "meridian_http_requests_total")
}
