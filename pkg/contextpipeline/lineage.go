package contextpipeline

import (
	"sync"
	"time"
)

// LineageRecord is one compilation's audit trail: what it cost before and
// after each stage, and how much budget it used (§4.5 step 3).
type LineageRecord struct {
	CompilationID    string               `json:"compilation_id"`
	SessionID        string               `json:"session_id"`
	AgentID          string               `json:"agent_id"`
	FromAgentID      string               `json:"from_agent_id,omitempty"`
	TokensBefore     int                  `json:"tokens_before"`
	TokensAfter      int                  `json:"tokens_after"`
	Processors       []ProcessorExecution `json:"processors"`
	Truncated        bool                 `json:"truncated"`
	Compacted        bool                 `json:"compacted"`
	MemoryCount      int                  `json:"memory_count"`
	ArtifactCount    int                  `json:"artifact_count"`
	BudgetUtilization float64             `json:"budget_utilization"` // tokens_after / agent max_context_tokens
	CompiledAt       time.Time            `json:"compiled_at"`
}

// LineageTracker accumulates LineageRecords per session, in memory only;
// records are not written to disk and are lost when the process exits.
type LineageTracker struct {
	mu      sync.Mutex
	bySession map[string][]LineageRecord
}

// NewLineageTracker builds an empty tracker.
func NewLineageTracker() *LineageTracker {
	return &LineageTracker{bySession: make(map[string][]LineageRecord)}
}

// Record appends a lineage record for a session.
func (t *LineageTracker) Record(sessionID string, rec LineageRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bySession[sessionID] = append(t.bySession[sessionID], rec)
}

// ForSession returns a copy of every lineage record recorded for a session,
// in compilation order.
func (t *LineageTracker) ForSession(sessionID string) []LineageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	recs := t.bySession[sessionID]
	out := make([]LineageRecord, len(recs))
	copy(out, recs)
	return out
}

// Forget drops a session's lineage records.
func (t *LineageTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bySession, sessionID)
}
