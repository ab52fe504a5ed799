package checkpoint

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianflow/meridian/pkg/registry"
)

// NotFoundError is returned when a checkpoint instance id is unknown.
type NotFoundError struct{ ID string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("checkpoint %q not found", e.ID) }

// StateError is returned when an operation doesn't fit the instance's
// current state (e.g. resolving an already-resolved checkpoint).
type StateError struct {
	ID     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("checkpoint %q is %s, not pending", e.ID, e.Status)
}

// Manager is the HITL Checkpoint Manager: an in-memory catalog of
// CheckpointInstances, protected by a single mutex, with a secondary
// session index. On construction it rehydrates every persisted instance
// (§4.8).
type Manager struct {
	mu        sync.Mutex
	byID      map[string]*Instance
	bySession map[string][]string

	store *persistence
}

// New builds a Manager rooted at dir, rehydrating persisted instances.
func New(dir string) (*Manager, error) {
	store := newPersistence(dir)
	instances, err := store.loadAll()
	if err != nil {
		return nil, fmt.Errorf("rehydrating checkpoints: %w", err)
	}
	m := &Manager{
		byID:      make(map[string]*Instance, len(instances)),
		bySession: make(map[string][]string),
		store:     store,
	}
	for i := range instances {
		inst := instances[i]
		m.byID[inst.ID] = &inst
		m.bySession[inst.SessionID] = append(m.bySession[inst.SessionID], inst.ID)
	}
	return m, nil
}

// CreateCheckpoint generates an id, computes timeout_at if the config
// enables a timeout, stores status pending, and persists the instance.
func (m *Manager) CreateCheckpoint(sessionID, workflowID string, cfg registry.CheckpointConfig, contextData map[string]any) (Instance, error) {
	inst := Instance{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		WorkflowID:  workflowID,
		Config:      cfg,
		ContextData: contextData,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if cfg.Timeout.Enabled && cfg.Timeout.Seconds > 0 {
		at := inst.CreatedAt.Add(time.Duration(cfg.Timeout.Seconds) * time.Second)
		inst.TimeoutAt = &at
	}

	m.mu.Lock()
	m.byID[inst.ID] = &inst
	m.bySession[sessionID] = append(m.bySession[sessionID], inst.ID)
	m.mu.Unlock()

	if err := m.store.save(inst); err != nil {
		return Instance{}, err
	}
	if err := m.persistPendingIndex(); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

// ResolveCheckpoint atomically transitions pending → resolved.
func (m *Manager) ResolveCheckpoint(id string, resolution Resolution) (Instance, error) {
	return m.transition(id, StatusResolved, resolution)
}

// CancelCheckpoint is the admin-only pending → cancelled transition.
func (m *Manager) CancelCheckpoint(id string) (Instance, error) {
	return m.transition(id, StatusCancelled, Resolution{Action: "cancel_workflow", ResolvedBy: "admin", ResolvedAt: time.Now().UTC()})
}

func (m *Manager) transition(id string, status Status, resolution Resolution) (Instance, error) {
	m.mu.Lock()
	inst, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return Instance{}, &NotFoundError{ID: id}
	}
	if !inst.pending() {
		m.mu.Unlock()
		return Instance{}, &StateError{ID: id, Status: inst.Status}
	}
	resolution.ResolvedAt = resolution.ResolvedAt.UTC()
	inst.Status = status
	inst.Resolution = &resolution
	snapshot := *inst
	m.mu.Unlock()

	if err := m.store.save(snapshot); err != nil {
		return Instance{}, err
	}
	if err := m.persistPendingIndex(); err != nil {
		return Instance{}, err
	}
	return snapshot, nil
}

// GetCheckpoint returns one instance by id.
func (m *Manager) GetCheckpoint(id string) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.byID[id]
	if !ok {
		return Instance{}, &NotFoundError{ID: id}
	}
	return *inst, nil
}

// GetPendingCheckpoints lists every pending instance, optionally filtered
// by role (honoring "admin" as a wildcard matching every required_role) and
// by workflow id.
func (m *Manager) GetPendingCheckpoints(userRole, workflowID string) []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Instance
	for _, inst := range m.byID {
		if !inst.pending() {
			continue
		}
		if workflowID != "" && inst.WorkflowID != workflowID {
			continue
		}
		if userRole != "" && userRole != "admin" && inst.Config.RequiredRole != "" && inst.Config.RequiredRole != userRole {
			continue
		}
		out = append(out, *inst)
	}
	sortByCreatedAt(out)
	return out
}

// GetSessionCheckpoints lists every checkpoint instance created for a
// session, in creation order.
func (m *Manager) GetSessionCheckpoints(sessionID string) []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.bySession[sessionID]
	out := make([]Instance, 0, len(ids))
	for _, id := range ids {
		if inst, ok := m.byID[id]; ok {
			out = append(out, *inst)
		}
	}
	sortByCreatedAt(out)
	return out
}

func sortByCreatedAt(instances []Instance) {
	sort.Slice(instances, func(i, j int) bool { return instances[i].CreatedAt.Before(instances[j].CreatedAt) })
}

func (m *Manager) persistPendingIndex() error {
	m.mu.Lock()
	var ids []string
	for id, inst := range m.byID {
		if inst.pending() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return m.store.writePendingIndex(ids)
}
