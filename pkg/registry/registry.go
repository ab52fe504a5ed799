package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Registry is the single reader/writer-locked in-memory catalog. Reads are
// cheap (RLock); writes validate, serialize to a temp file, rename over the
// backing document, then reload to confirm (§4.1).
type Registry struct {
	dir string

	mu            sync.RWMutex
	agents        map[string]*Agent
	tools         map[string]*Tool
	modelProfiles map[string]*ModelProfile
	workflows     map[string]*Workflow
	governance    GovernancePolicy

	watcher *fsnotify.Watcher
	closeCh chan struct{}
}

// New constructs a Registry backed by dir and performs the initial load.
func New(dir string) (*Registry, error) {
	r := &Registry{dir: dir}
	if err := r.LoadAll(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadAll re-reads the backing store and atomically swaps the in-memory
// maps. In-flight readers holding a snapshot (via the accessor methods, which
// copy under RLock) are unaffected.
func (r *Registry) LoadAll() error {
	docs, err := loadDocuments(r.dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = docs.Agents
	r.tools = docs.Tools
	r.modelProfiles = docs.ModelProfiles
	r.workflows = docs.Workflows
	r.governance = docs.Governance
	return nil
}

func (r *Registry) snapshotDocuments() *documents {
	return &documents{
		Agents:        r.agents,
		Tools:         r.tools,
		ModelProfiles: r.modelProfiles,
		Workflows:     r.workflows,
		Governance:    r.governance,
	}
}

// WatchAndReload starts an fsnotify watch on the registry directory; any
// write event triggers LoadAll. It runs until Close is called. Errors
// setting up the watcher are logged, not fatal — hot reload is a
// convenience, not a correctness requirement (the CRUD write path always
// reloads itself synchronously).
func (r *Registry) WatchAndReload() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("registry: failed to start file watcher", "error", err)
		return
	}
	if err := w.Add(r.dir); err != nil {
		slog.Error("registry: failed to watch directory", "dir", r.dir, "error", err)
		w.Close()
		return
	}
	r.watcher = w
	r.closeCh = make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if err := r.LoadAll(); err != nil {
						slog.Error("registry: hot reload failed", "error", err)
					} else {
						slog.Info("registry: hot reloaded", "event", event.String())
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("registry: watcher error", "error", err)
			case <-r.closeCh:
				return
			}
		}
	}()
}

// Close stops the file watcher, if any.
func (r *Registry) Close() {
	if r.watcher != nil {
		close(r.closeCh)
		r.watcher.Close()
	}
}

// ────────────────────────────────────────────────────────────
// Lookups
// ────────────────────────────────────────────────────────────

func (r *Registry) GetAgent(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, &NotFoundError{Component: "agent", ID: id}
	}
	cp := *a
	return &cp, nil
}

// GetOrchestratorAgent returns the single agent flagged is_orchestrator:
// true. Deployments are expected to carry exactly one; if more than one is
// present (a transitional state during a registry edit) the first found
// wins rather than erroring, since reads must never block on write-side
// validation.
func (r *Registry) GetOrchestratorAgent() (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.IsOrchestrator {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Component: "agent", ID: "<orchestrator>"}
}

func (r *Registry) GetTool(id string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	if !ok {
		return nil, &NotFoundError{Component: "tool", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (r *Registry) GetModelProfile(id string) (*ModelProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modelProfiles[id]
	if !ok {
		return nil, &NotFoundError{Component: "model_profile", ID: id}
	}
	cp := *m
	return &cp, nil
}

func (r *Registry) GetWorkflow(id string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[id]
	if !ok {
		return nil, &NotFoundError{Component: "workflow", ID: id}
	}
	cp := *w
	return &cp, nil
}

// ListAgents returns agents, optionally filtered by a capability tag.
func (r *Registry) ListAgents(capability string) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if capability != "" && !containsString(a.Capabilities, capability) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// ListTools returns tools, optionally filtered by a lineage tag.
func (r *Registry) ListTools(tag string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if tag != "" && !containsString(t.LineageTags, tag) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (r *Registry) ListModelProfiles() []*ModelProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ModelProfile, 0, len(r.modelProfiles))
	for _, m := range r.modelProfiles {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

func (r *Registry) ListWorkflows() []*Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workflow, 0, len(r.workflows))
	for _, w := range r.workflows {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

// GetAgentsForOrchestrator returns the intersection of all agents with the
// orchestrator's allowed_agents list.
func (r *Registry) GetAgentsForOrchestrator(orchestratorID string) ([]*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orch, ok := r.agents[orchestratorID]
	if !ok {
		return nil, &NotFoundError{Component: "agent", ID: orchestratorID}
	}
	allowed := make(map[string]bool, len(orch.AllowedAgents))
	for _, id := range orch.AllowedAgents {
		allowed[id] = true
	}
	out := make([]*Agent, 0, len(allowed))
	for id, a := range r.agents {
		if allowed[id] {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetToolsForAgent returns the intersection of all tools with the agent's
// allowed_tools list.
func (r *Registry) GetToolsForAgent(agentID string) ([]*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return nil, &NotFoundError{Component: "agent", ID: agentID}
	}
	allowed := make(map[string]bool, len(a.AllowedTools))
	for _, id := range a.AllowedTools {
		allowed[id] = true
	}
	out := make([]*Tool, 0, len(allowed))
	for id, t := range r.tools {
		if allowed[id] {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// IsAgentInvocationAllowed consults the governance policy's agent invocation
// rules, keyed (from, to) with wildcards. Default-deny.
func (r *Registry) IsAgentInvocationAllowed(fromID, toID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return evaluateRules(r.governance.AgentInvocationRules, fromID, toID)
}

// IsToolAccessAllowed consults the governance policy's tool access rules.
// Default-deny.
func (r *Registry) IsToolAccessAllowed(agentID, toolID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return evaluateRules(r.governance.ToolAccessRules, agentID, toolID)
}

// Governance returns a copy of the current governance policy (limits,
// role hierarchy) for the Governance Enforcer to consult.
func (r *Registry) Governance() GovernancePolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := r.governance
	cp.AgentInvocationRules = append([]GovernanceRule{}, r.governance.AgentInvocationRules...)
	cp.ToolAccessRules = append([]GovernanceRule{}, r.governance.ToolAccessRules...)
	return cp
}

// evaluateRules picks the most specific matching rule (exact beats wildcard
// on either side) and returns whether its effect is "allow". No match means
// default-deny.
func evaluateRules(rules []GovernanceRule, from, to string) bool {
	bestScore := -1
	allowed := false
	for _, rule := range rules {
		fromMatch := rule.From == from || rule.From == "*"
		toMatch := rule.To == to || rule.To == "*"
		if !fromMatch || !toMatch {
			continue
		}
		score := 0
		if rule.From == from {
			score++
		}
		if rule.To == to {
			score++
		}
		if score > bestScore {
			bestScore = score
			allowed = rule.Effect == "allow"
		}
	}
	return bestScore >= 0 && allowed
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ────────────────────────────────────────────────────────────
// CRUD — write path: validate → check usage → update copy → write file →
// reload to confirm.
// ────────────────────────────────────────────────────────────

// PutAgent creates or updates an agent.
func (r *Registry) PutAgent(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.snapshotDocuments()
	next := cloneStringPtrMap(docs.Agents)
	next[a.ID] = a
	docs.Agents = next

	if err := validateAgent(a, docs); err != nil {
		return err
	}
	return r.commit(docs)
}

// DeleteAgent removes an agent, refusing if it is the orchestrator or still
// referenced (I3).
func (r *Registry) DeleteAgent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return &NotFoundError{Component: "agent", ID: id}
	}
	if a.IsOrchestrator {
		return &InUseError{Component: "agent", ID: id, UsedBy: "orchestrator role is undeletable"}
	}
	for _, other := range r.agents {
		if other.ID == id {
			continue
		}
		if containsString(other.AllowedAgents, id) {
			return &InUseError{Component: "agent", ID: id, UsedBy: fmt.Sprintf("agent %q", other.ID)}
		}
	}
	for _, wf := range r.workflows {
		if containsString(wf.SuggestedSequence, id) || containsString(wf.RequiredAgents, id) || containsString(wf.OptionalAgents, id) {
			return &InUseError{Component: "agent", ID: id, UsedBy: fmt.Sprintf("workflow %q", wf.ID)}
		}
		for _, cp := range wf.Checkpoints {
			if cp.AgentID == id {
				return &InUseError{Component: "agent", ID: id, UsedBy: fmt.Sprintf("workflow %q checkpoint %q", wf.ID, cp.CheckpointID)}
			}
		}
	}

	docs := r.snapshotDocuments()
	next := cloneStringPtrMap(docs.Agents)
	delete(next, id)
	docs.Agents = next
	return r.commit(docs)
}

// PutTool creates or updates a tool.
func (r *Registry) PutTool(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := validateTool(t); err != nil {
		return err
	}
	docs := r.snapshotDocuments()
	next := cloneStringPtrMap(docs.Tools)
	next[t.ID] = t
	docs.Tools = next
	return r.commit(docs)
}

// DeleteTool refuses while any agent still lists it (I3).
func (r *Registry) DeleteTool(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[id]; !ok {
		return &NotFoundError{Component: "tool", ID: id}
	}
	for _, a := range r.agents {
		if containsString(a.AllowedTools, id) {
			return &InUseError{Component: "tool", ID: id, UsedBy: fmt.Sprintf("agent %q", a.ID)}
		}
	}
	docs := r.snapshotDocuments()
	next := cloneStringPtrMap(docs.Tools)
	delete(next, id)
	docs.Tools = next
	return r.commit(docs)
}

// PutModelProfile creates or updates a model profile.
func (r *Registry) PutModelProfile(m *ModelProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := validateModelProfile(m); err != nil {
		return err
	}
	docs := r.snapshotDocuments()
	next := cloneStringPtrMap(docs.ModelProfiles)
	next[m.ID] = m
	docs.ModelProfiles = next
	return r.commit(docs)
}

// DeleteModelProfile refuses while any agent still references it (I3).
func (r *Registry) DeleteModelProfile(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modelProfiles[id]; !ok {
		return &NotFoundError{Component: "model_profile", ID: id}
	}
	for _, a := range r.agents {
		if a.ModelProfileID == id {
			return &InUseError{Component: "model_profile", ID: id, UsedBy: fmt.Sprintf("agent %q", a.ID)}
		}
	}
	docs := r.snapshotDocuments()
	next := cloneStringPtrMap(docs.ModelProfiles)
	delete(next, id)
	docs.ModelProfiles = next
	return r.commit(docs)
}

// PutWorkflow creates or updates a workflow.
func (r *Registry) PutWorkflow(w *Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.snapshotDocuments()
	next := cloneStringPtrMap(docs.Workflows)
	next[w.ID] = w
	docs.Workflows = next
	if err := validateWorkflow(w, docs); err != nil {
		return err
	}
	return r.commit(docs)
}

func (r *Registry) DeleteWorkflow(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[id]; !ok {
		return &NotFoundError{Component: "workflow", ID: id}
	}
	docs := r.snapshotDocuments()
	next := cloneStringPtrMap(docs.Workflows)
	delete(next, id)
	docs.Workflows = next
	return r.commit(docs)
}

// PutGovernance replaces the governance policy wholesale.
func (r *Registry) PutGovernance(g GovernancePolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.snapshotDocuments()
	docs.Governance = g
	return r.commit(docs)
}

// commit writes docs to disk and reloads from the written file to confirm
// round-trip fidelity. On I/O failure the in-memory state is left untouched
// (the write happens before any in-memory mutation is visible to readers,
// since callers hold the write lock for the whole operation).
func (r *Registry) commit(docs *documents) error {
	if err := saveDocuments(r.dir, docs); err != nil {
		return fmt.Errorf("committing registry write: %w", err)
	}
	reloaded, err := loadDocuments(r.dir)
	if err != nil {
		return fmt.Errorf("confirming registry write: %w", err)
	}
	r.agents = reloaded.Agents
	r.tools = reloaded.Tools
	r.modelProfiles = reloaded.ModelProfiles
	r.workflows = reloaded.Workflows
	r.governance = reloaded.Governance
	return nil
}

func cloneStringPtrMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
