package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meridianflow/meridian/pkg/artifact"
	"github.com/meridianflow/meridian/pkg/cleanup"
	"github.com/meridianflow/meridian/pkg/events"
	"github.com/meridianflow/meridian/pkg/metrics"
	"github.com/meridianflow/meridian/pkg/orchestrator"
	"github.com/meridianflow/meridian/pkg/registry"
)

// NotRunningError is returned by CancelWorkflow for a session that is not
// (or is no longer) live.
type NotRunningError struct{ SessionID string }

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("session %q is not running", e.SessionID)
}

// Executor owns the table of live orchestrator tasks and reconciles each
// one's completion with the Progress Store, Broadcaster, and Artifact
// Store (C13, §4.11).
type Executor struct {
	Registry     *registry.Registry
	Orchestrator *orchestrator.Loop
	Artifacts    *artifact.Store
	Progress     *events.ProgressStore
	Broadcaster  *events.Broadcaster
	Cleanup      *cleanup.Service
	Logger       *slog.Logger
	Metrics      *metrics.Registry

	mu       sync.Mutex
	sessions map[string]*handle
}

// New wires an Executor. Cleanup may be nil, in which case the delayed
// progress-store cleanup step is skipped (tests that want to inspect
// post-completion state commonly do this).
func New(reg *registry.Registry, orch *orchestrator.Loop, artifacts *artifact.Store, progress *events.ProgressStore, broadcaster *events.Broadcaster, cleanupSvc *cleanup.Service, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		Registry:     reg,
		Orchestrator: orch,
		Artifacts:    artifacts,
		Progress:     progress,
		Broadcaster:  broadcaster,
		Cleanup:      cleanupSvc,
		Logger:       logger,
		sessions:     map[string]*handle{},
	}
}

// WithMetrics attaches a metrics registry, returning the Executor for chaining.
// Metrics may be left unattached, in which case lifecycle counters are skipped.
func (e *Executor) WithMetrics(m *metrics.Registry) *Executor {
	e.Metrics = m
	return e
}

// ExecuteWorkflow starts a new session running workflowID and returns its
// session id, generating one if sessionID is empty (§4.11 step 1-3).
func (e *Executor) ExecuteWorkflow(workflowID string, inputData any, sessionID string) (string, error) {
	wf, err := e.Registry.GetWorkflow(workflowID)
	if err != nil {
		return "", err
	}
	orchAgent, err := e.Registry.GetOrchestratorAgent()
	if err != nil {
		return "", fmt.Errorf("no orchestrator agent configured: %w", err)
	}
	if sessionID == "" {
		sessionID = newSessionID()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, workflowID: wf.ID, done: make(chan struct{})}

	e.mu.Lock()
	e.sessions[sessionID] = h
	e.mu.Unlock()

	e.Progress.Start(sessionID, wf.ID)
	if e.Metrics != nil {
		e.Metrics.WorkflowsStarted.Inc()
		e.Metrics.ActiveSessions.Inc()
	}

	go func() {
		defer close(h.done)
		out := e.Orchestrator.Run(runCtx, orchAgent.ID, orchestrator.Input{
			SessionID:     sessionID,
			WorkflowID:    wf.ID,
			OriginalInput: inputData,
		})
		if runCtx.Err() != nil && out.Status == orchestrator.StatusError {
			out.Status = orchestrator.StatusCancelled // CancelWorkflow aborted the run
		}
		e.finish(sessionID, out)
	}()

	return sessionID, nil
}

// CancelWorkflow cancels a running session's orchestrator task, broadcasts
// workflow_cancelled, and closes the SSE session (§4.11 step 3).
func (e *Executor) CancelWorkflow(sessionID string) error {
	e.mu.Lock()
	h, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return &NotRunningError{SessionID: sessionID}
	}

	h.cancel()
	<-h.done // the orchestrator task's own completion path already broadcasts workflow_cancelled/workflow_error
	return nil
}

// GetRunningSessions lists every session id with a live orchestrator task.
func (e *Executor) GetRunningSessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		out = append(out, id)
	}
	return out
}

// finish reconciles one orchestrator task's terminal Output: persists the
// evidence map as an artifact, updates the Progress Store, broadcasts the
// terminal event, and schedules the delayed cleanup (§4.11 step 4-5).
func (e *Executor) finish(sessionID string, out orchestrator.Output) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()

	status := string(out.Status)
	var eventType string
	switch out.Status {
	case orchestrator.StatusCompleted, orchestrator.StatusIncomplete:
		eventType = events.TypeWorkflowCompleted
	case orchestrator.StatusCancelled:
		eventType = events.TypeWorkflowCancelled
	default:
		eventType = events.TypeWorkflowError
	}

	if len(out.EvidenceMap) > 0 && e.Artifacts != nil {
		if _, err := e.Artifacts.Save(sessionID+"_evidence_map", out.EvidenceMap, nil, nil, nil); err != nil {
			e.Logger.Error("executor: failed to persist evidence map", "session_id", sessionID, "error", err)
		}
	}

	ev := events.NewEvent(eventType, sessionID, map[string]any{
		"status":      status,
		"error":       out.Error,
		"warnings":    out.Warnings,
		"has_evidence": len(out.EvidenceMap) > 0,
	})
	e.Progress.AddEvent(sessionID, ev)
	e.Progress.SetStatus(sessionID, status)
	e.Broadcaster.Broadcast(sessionID, ev)
	e.Broadcaster.Complete(sessionID)

	if e.Cleanup != nil {
		e.Cleanup.Schedule(sessionID)
	}
	if e.Metrics != nil {
		e.Metrics.WorkflowsCompleted.WithLabelValues(status).Inc()
		e.Metrics.ActiveSessions.Dec()
	}
}
