package checkpoint

import (
	"context"
	"log/slog"
	"time"
)

const sweepInterval = 30 * time.Second

// SweepTimeouts scans pending checkpoints and synthesizes a system
// resolution for any whose timeout has passed: action is config.on_timeout
// (defaulting to auto_approve), status transitions to timeout (§4.8).
// Returns how many checkpoints timed out this pass.
func (m *Manager) SweepTimeouts() int {
	now := time.Now().UTC()
	m.mu.Lock()
	var expired []string
	for id, inst := range m.byID {
		if inst.pending() && inst.TimeoutAt != nil && !now.Before(*inst.TimeoutAt) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	count := 0
	for _, id := range expired {
		m.mu.Lock()
		inst := m.byID[id]
		onTimeout := inst.Config.Timeout.OnTimeout
		m.mu.Unlock()
		if onTimeout == "" {
			onTimeout = "auto_approve"
		}
		if _, err := m.transition(id, StatusTimeout, Resolution{
			Action:     onTimeout,
			ResolvedBy: "system",
			ResolvedAt: now,
		}); err != nil {
			slog.Warn("checkpoint sweeper: failed to resolve timed-out checkpoint", "checkpoint_id", id, "error", err)
			continue
		}
		count++
	}
	return count
}

// Sweeper runs SweepTimeouts on a fixed interval until stopped, mirroring
// the background-loop Start/Stop shape used elsewhere in this module.
type Sweeper struct {
	manager *Manager

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a Sweeper over manager.
func NewSweeper(manager *Manager) *Sweeper {
	return &Sweeper{manager: manager}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.Info("checkpoint timeout sweeper started", "interval", sweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("checkpoint timeout sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.manager.SweepTimeouts(); n > 0 {
				slog.Info("checkpoint timeout sweeper resolved timed-out checkpoints", "count", n)
			}
		}
	}
}
