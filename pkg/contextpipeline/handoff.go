package contextpipeline

// HandoffMode controls how much of the compiled context survives a
// from-agent → to-agent transition (§4.5 step 1).
type HandoffMode string

const (
	HandoffFull    HandoffMode = "full"
	HandoffScoped  HandoffMode = "scoped"
	HandoffMinimal HandoffMode = "minimal"
)

// HandoffRule configures one (from, to) transition. Either side may be "*"
// to mean "any". AllowFields/DenyFields apply only in scoped mode: when
// AllowFields is non-empty it is an allow-list (everything else dropped),
// otherwise DenyFields is a deny-list (everything else kept).
type HandoffRule struct {
	From       string
	To         string
	Mode       HandoffMode
	AllowFields []string
	DenyFields  []string
	// TranslateFields, when set, keeps only these fields of each map-shaped
	// prior output; TranslateDeny removes these fields from it. Mirrors
	// conversation_translator.py's field-extraction step.
	TranslateFields []string
	TranslateDeny   []string
}

// HandoffTable resolves the most specific matching rule for a (from, to)
// pair, falling back to the default mode "scoped" with no field filtering
// when nothing matches — the same most-specific-wins resolution the
// governance rule table uses.
type HandoffTable struct {
	Rules []HandoffRule
}

// Resolve finds the rule governing a transition, preferring an exact match
// on both sides, then exact-from/wildcard-to or wildcard-from/exact-to, then
// wildcard/wildcard, and finally the default.
func (t HandoffTable) Resolve(from, to string) HandoffRule {
	best := HandoffRule{From: "*", To: "*", Mode: HandoffScoped}
	bestScore := -1
	for _, r := range t.Rules {
		if r.From != "*" && r.From != from {
			continue
		}
		if r.To != "*" && r.To != to {
			continue
		}
		score := 0
		if r.From == from {
			score++
		}
		if r.To == to {
			score++
		}
		if score > bestScore {
			best = r
			bestScore = score
		}
	}
	if best.Mode == "" {
		best.Mode = HandoffScoped
	}
	return best
}

// ApplyHandoff scopes priorOutputs for the transition from fromAgentID to
// toAgentID per the resolved rule, then applies conversation translation if
// the rule configures one.
func ApplyHandoff(table HandoffTable, fromAgentID, toAgentID string, originalInput any, priorOutputs map[string]any) (any, map[string]any) {
	rule := table.Resolve(fromAgentID, toAgentID)

	switch rule.Mode {
	case HandoffMinimal:
		return minimalInput(originalInput), nil
	case HandoffFull:
		return originalInput, translate(rule, priorOutputs)
	default: // scoped
		return originalInput, translate(rule, scopeFields(priorOutputs, rule))
	}
}

func scopeFields(priorOutputs map[string]any, rule HandoffRule) map[string]any {
	if priorOutputs == nil {
		return nil
	}
	if len(rule.AllowFields) == 0 && len(rule.DenyFields) == 0 {
		return priorOutputs
	}
	out := make(map[string]any, len(priorOutputs))
	if len(rule.AllowFields) > 0 {
		allow := toSet(rule.AllowFields)
		for k, v := range priorOutputs {
			if allow[k] {
				out[k] = v
			}
		}
		return out
	}
	deny := toSet(rule.DenyFields)
	for k, v := range priorOutputs {
		if !deny[k] {
			out[k] = v
		}
	}
	return out
}

// translate applies the optional field-extraction + deny-field-removal
// transform on top of whatever scoping already happened.
func translate(rule HandoffRule, priorOutputs map[string]any) map[string]any {
	if priorOutputs == nil || (len(rule.TranslateFields) == 0 && len(rule.TranslateDeny) == 0) {
		return priorOutputs
	}
	deny := toSet(rule.TranslateDeny)
	keep := toSet(rule.TranslateFields)
	out := make(map[string]any, len(priorOutputs))
	for agentID, output := range priorOutputs {
		m, ok := output.(map[string]any)
		if !ok {
			out[agentID] = output
			continue
		}
		filtered := make(map[string]any, len(m))
		for k, v := range m {
			if deny[k] {
				continue
			}
			if len(keep) > 0 && !keep[k] {
				continue
			}
			filtered[k] = v
		}
		out[agentID] = filtered
	}
	return out
}

// minimalInput keeps only identifier-shaped fields (id, session_id,
// workflow_id, request_id) of the original input and nothing else.
func minimalInput(originalInput any) any {
	m, ok := originalInput.(map[string]any)
	if !ok {
		return originalInput
	}
	ids := []string{"id", "session_id", "workflow_id", "request_id"}
	out := map[string]any{}
	for _, k := range ids {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func toSet(fields []string) map[string]bool {
	s := make(map[string]bool, len(fields))
	for _, f := range fields {
		s[f] = true
	}
	return s
}
