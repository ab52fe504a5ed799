package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressStoreAddEventAndGet(t *testing.T) {
	p := NewProgressStore(0)
	p.Start("s1", "claims")
	p.AddEvent("s1", NewEvent(TypeAgentStarted, "s1", map[string]any{"agent_id": "fraud"}))

	sp, ok := p.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "claims", sp.WorkflowID)
	assert.Equal(t, "fraud", sp.CurrentAgent)
	assert.Len(t, sp.Events, 1)
}

func TestProgressStoreDropsOldestOverCap(t *testing.T) {
	p := NewProgressStore(3)
	p.Start("s1", "claims")
	for i := 0; i < 5; i++ {
		p.AddEvent("s1", NewEvent(TypeAgentCompleted, "s1", nil))
	}
	sp, ok := p.Get("s1")
	require.True(t, ok)
	assert.Len(t, sp.Events, 3)
}

func TestEventsSinceDeltaStreaming(t *testing.T) {
	p := NewProgressStore(0)
	p.Start("s1", "claims")
	p.AddEvent("s1", NewEvent(TypeAgentStarted, "s1", nil))
	p.AddEvent("s1", NewEvent(TypeAgentCompleted, "s1", nil))

	evs, cursor := p.EventsSince("s1", 0)
	assert.Len(t, evs, 2)
	assert.Equal(t, 2, cursor)

	evs2, cursor2 := p.EventsSince("s1", cursor)
	assert.Empty(t, evs2)
	assert.Equal(t, 2, cursor2)
}

func TestRunningSessions(t *testing.T) {
	p := NewProgressStore(0)
	p.Start("s1", "claims")
	p.Start("s2", "claims")
	p.SetStatus("s2", "completed")
	assert.ElementsMatch(t, []string{"s1"}, p.RunningSessions())
}
