package checkpoint

import (
	"log/slog"

	"github.com/meridianflow/meridian/pkg/registry"
)

// ShouldTrigger decides whether a checkpoint fires for the current
// iteration. type "always" always fires. For input_based/output_based, the
// expression is evaluated against the relevant data (agent output or
// original input); a parse error or a missing field defaults to *trigger* —
// safe escalation means preferring to pause over silently skipping a
// checkpoint (§4.8).
func ShouldTrigger(cond *registry.TriggerCondition, data map[string]any) bool {
	if cond == nil || cond.Type == registry.TriggerConditionAlways {
		return true
	}
	result, err := Evaluate(cond.Expression, data)
	if err != nil {
		slog.Warn("checkpoint trigger condition failed to evaluate, defaulting to trigger",
			"expression", cond.Expression, "type", cond.Type, "error", err)
		return true
	}
	return result
}
