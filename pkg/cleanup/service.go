// Package cleanup implements the delayed progress-store cleanup named in
// §4.11 step 4 and §5: once a workflow session finishes, its Progress Store
// tail and SSE Broadcaster buffer stay around for a grace window so a
// client reconnecting right after completion can still replay the final
// events, then are forgotten.
package cleanup

import (
	"log/slog"
	"sync"
	"time"

	"github.com/meridianflow/meridian/pkg/events"
)

// DefaultDelay is how long a finished session's state is kept for late SSE
// reconnects before it is forgotten.
const DefaultDelay = 5 * time.Minute

// Service tracks one pending cleanup timer per session. All operations are
// idempotent: scheduling the same session twice simply reschedules it, and
// forgetting an already-forgotten session is a no-op.
type Service struct {
	Progress    *events.ProgressStore
	Broadcaster *events.Broadcaster
	Delay       time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewService builds a Service. delay <= 0 uses DefaultDelay.
func NewService(progress *events.ProgressStore, broadcaster *events.Broadcaster, delay time.Duration) *Service {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Service{
		Progress:    progress,
		Broadcaster: broadcaster,
		Delay:       delay,
		timers:      map[string]*time.Timer{},
	}
}

// Schedule arranges for sessionID's progress tail and broadcast buffer to
// be forgotten after Delay, superseding any cleanup already scheduled for
// that session.
func (s *Service) Schedule(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(s.Delay, func() { s.forget(sessionID) })
}

// Cancel aborts a pending scheduled cleanup for a session, if one exists.
func (s *Service) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

// Stop cancels every pending scheduled cleanup (process shutdown).
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Service) forget(sessionID string) {
	s.mu.Lock()
	delete(s.timers, sessionID)
	s.mu.Unlock()

	if s.Progress != nil {
		s.Progress.Remove(sessionID)
	}
	if s.Broadcaster != nil {
		s.Broadcaster.Forget(sessionID)
	}
	slog.Info("cleanup: forgot finished session", "session_id", sessionID)
}

// Pending reports whether a cleanup is currently scheduled for sessionID
// (used by tests to avoid sleeping past the real delay).
func (s *Service) Pending(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[sessionID]
	return ok
}
