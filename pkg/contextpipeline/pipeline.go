package contextpipeline

import (
	"context"
	"log/slog"
	"time"
)

// Pipeline runs an ordered chain of processors over a CompiledContext. A
// processor that errors is logged and bypassed: the next processor sees the
// context exactly as the previous successful processor left it (§4.4).
type Pipeline struct {
	Processors []Processor
	Logger     *slog.Logger
}

// NewPipeline builds a pipeline that runs the given stages in the given
// order; it adds no stages of its own. The standard seven-stage chain is
// assembled from PipelineDeps by the Compiler.
func NewPipeline(logger *slog.Logger, stages ...Processor) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Processors: stages, Logger: logger}
}

// Run drives every stage in order, appending an execution record to
// context.metadata.processor_execution_log for each one.
func (p *Pipeline) Run(ctx context.Context, cc CompiledContext, agentID, sessionID string) CompiledContext {
	for _, stage := range p.Processors {
		start := time.Now()
		result, err := stage.Process(ctx, cc, agentID, sessionID)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			p.Logger.Warn("context processor failed, bypassing",
				"processor", stage.Name(), "agent_id", agentID, "session_id", sessionID, "error", err)
			cc.appendExecution(ProcessorExecution{
				Processor:       stage.Name(),
				Success:         false,
				ExecutionTimeMS: elapsed,
				Error:           err.Error(),
			})
			continue
		}
		cc = result.Context
		cc.appendExecution(ProcessorExecution{
			Processor:       stage.Name(),
			Success:         true,
			ExecutionTimeMS: elapsed,
			Modifications:   result.Modifications,
		})
	}
	return cc
}
