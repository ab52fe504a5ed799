package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianflow/meridian/pkg/contextpipeline"
)

const (
	MethodRuleBased = "rule_based"
	MethodLLMBased  = "llm_based"
)

// CompactionConfig governs what the rule-based method keeps.
type CompactionConfig struct {
	KeepRecentEvents        int
	KeepCriticalEventTypes  []string
}

// CompactionArchive is the full before/after record written per compaction
// so the operation is reversible post-hoc (§4.10).
type CompactionArchive struct {
	CompactionID string                            `json:"compaction_id"`
	SessionID    string                             `json:"session_id"`
	AgentID      string                             `json:"agent_id"`
	Method       string                             `json:"method"`
	CreatedAt    time.Time                          `json:"created_at"`
	Original     []contextpipeline.Observation      `json:"original"`
	Compacted    []contextpipeline.Observation      `json:"compacted"`
}

// CompactionManager reduces an observation stream by one of two methods and
// archives the before/after state for a session (§4.10).
type CompactionManager struct {
	archiveDir string
	config     CompactionConfig
}

// NewCompactionManager builds a manager writing archives under archiveDir
// (typically compactions/).
func NewCompactionManager(archiveDir string, config CompactionConfig) *CompactionManager {
	if config.KeepRecentEvents <= 0 {
		config.KeepRecentEvents = 20
	}
	return &CompactionManager{archiveDir: archiveDir, config: config}
}

// Compact implements contextpipeline.Compactor.
func (m *CompactionManager) Compact(_ context.Context, sessionID, agentID, method string, observations []contextpipeline.Observation) ([]contextpipeline.Observation, contextpipeline.CompactionSummary, error) {
	var compacted []contextpipeline.Observation
	switch method {
	case MethodLLMBased:
		compacted = m.compactLLMBased(observations)
	default:
		method = MethodRuleBased
		compacted = m.compactRuleBased(observations)
	}

	compactionID := uuid.NewString()
	archive := CompactionArchive{
		CompactionID: compactionID,
		SessionID:    sessionID,
		AgentID:      agentID,
		Method:       method,
		CreatedAt:    time.Now().UTC(),
		Original:     observations,
		Compacted:    compacted,
	}
	if err := m.writeArchive(sessionID, compactionID, archive); err != nil {
		return nil, contextpipeline.CompactionSummary{}, err
	}

	return compacted, contextpipeline.CompactionSummary{
		CompactionID: compactionID,
		Method:       method,
		EventsBefore: len(observations),
		EventsAfter:  len(compacted),
	}, nil
}

// compactRuleBased keeps the most recent KeepRecentEvents plus any older
// events whose type is in KeepCriticalEventTypes.
func (m *CompactionManager) compactRuleBased(observations []contextpipeline.Observation) []contextpipeline.Observation {
	if len(observations) <= m.config.KeepRecentEvents {
		return observations
	}
	critical := toSet(m.config.KeepCriticalEventTypes)
	cutoff := len(observations) - m.config.KeepRecentEvents
	var out []contextpipeline.Observation
	for i, o := range observations {
		if i >= cutoff || critical[o.Type] {
			out = append(out, o)
		}
	}
	return out
}

// compactLLMBased keeps critical events and replaces non-critical spans
// with a single synthetic compaction_summary event whose body counts
// discarded events per type — a narrative an LLM would otherwise write;
// absent a wired LLM client here, the count-based summary stands in for it.
func (m *CompactionManager) compactLLMBased(observations []contextpipeline.Observation) []contextpipeline.Observation {
	critical := toSet(m.config.KeepCriticalEventTypes)
	var out []contextpipeline.Observation
	discardedCounts := map[string]int{}
	flushSummary := func() {
		if len(discardedCounts) == 0 {
			return
		}
		out = append(out, contextpipeline.Observation{
			Source:    "compaction_manager",
			Type:      "compaction_summary",
			Content: map[string]any{
				"narrative":        fmt.Sprintf("%d non-critical events compacted", sumCounts(discardedCounts)),
				"counts_by_type":   discardedCounts,
			},
			Timestamp: time.Now().UTC(),
		})
		discardedCounts = map[string]int{}
	}
	for _, o := range observations {
		if critical[o.Type] {
			flushSummary()
			out = append(out, o)
			continue
		}
		discardedCounts[o.Type]++
	}
	flushSummary()
	return out
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// RemoveArchives deletes every compaction archive written for a session,
// used when a session is deleted outright (§6).
func (m *CompactionManager) RemoveArchives(sessionID string) error {
	entries, err := os.ReadDir(m.archiveDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading compaction archive directory: %w", err)
	}
	prefix := sessionID + "_compaction_"
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(m.archiveDir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing compaction archive %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (m *CompactionManager) writeArchive(sessionID, compactionID string, archive CompactionArchive) error {
	path := filepath.Join(m.archiveDir, fmt.Sprintf("%s_compaction_%s.json", sessionID, compactionID))
	b, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling compaction archive: %w", err)
	}
	if err := os.MkdirAll(m.archiveDir, 0o755); err != nil {
		return fmt.Errorf("creating compaction archive directory: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
