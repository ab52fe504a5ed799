package checkpoint

import (
	"context"
	"time"
)

const (
	pollInitialDelay = 1 * time.Second
	pollMaxDelay     = 10 * time.Second
)

// WaitForResolution polls a checkpoint's state with exponential backoff
// from 1s to 10s until it leaves pending, returning whichever resolution
// settled it — human or timeout sweeper (§4.8, §5).
func (m *Manager) WaitForResolution(ctx context.Context, id string) (Instance, error) {
	delay := pollInitialDelay
	for {
		inst, err := m.GetCheckpoint(id)
		if err != nil {
			return Instance{}, err
		}
		if !inst.pending() {
			return inst, nil
		}
		select {
		case <-ctx.Done():
			return Instance{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > pollMaxDelay {
			delay = pollMaxDelay
		}
	}
}
