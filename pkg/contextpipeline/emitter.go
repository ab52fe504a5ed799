package contextpipeline

// EventEmitter is the narrow event surface the pipeline needs
// (compaction_checker, handoff scoping), kept narrow here to avoid importing
// pkg/events from pkg/contextpipeline. The only implementation in this
// module is NopEmitter, which cmd/meridian wires; these pipeline events are
// therefore not written to the event log, progress store or broadcaster.
type EventEmitter interface {
	Emit(sessionID, eventType string, payload map[string]any)
}

// NopEmitter discards every event; useful in tests and for callers that
// compile contexts outside of a live session (e.g. dry runs).
type NopEmitter struct{}

func (NopEmitter) Emit(string, string, map[string]any) {}
