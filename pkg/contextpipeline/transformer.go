package contextpipeline

import (
	"context"
	"time"
)

// Message is a role-tagged prompt line produced by Transformer.
type Message struct {
	Role       string `json:"role"` // function | assistant
	Source     string `json:"source"`
	Content    any    `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// Transformer restructures each observation into a role-tagged message,
// preserving identity and attribution: tool results become "function"
// messages, everything else "assistant" (§4.4).
type Transformer struct{}

func (p *Transformer) Name() string { return "transformer" }

func (p *Transformer) Process(_ context.Context, cc CompiledContext, _, _ string) (ProcessorResult, error) {
	start := time.Now()
	msgs := make([]Message, 0, len(cc.Observations))
	for _, o := range cc.Observations {
		role := "assistant"
		if o.Type == "tool_result" || o.Type == "tool_invoked" {
			role = "function"
		}
		msgs = append(msgs, Message{
			Role:      role,
			Source:    o.Source,
			Content:   o.Content,
			Timestamp: o.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	cc.ensureMetadata()
	cc.Metadata["messages"] = msgs

	return ProcessorResult{
		Context:         cc,
		Success:         true,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Modifications:   []string{"transformed_observations"},
	}, nil
}
