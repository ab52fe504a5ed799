package contextpipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/meridianflow/meridian/pkg/registry"
)

var artifactHandleRE = regexp.MustCompile(`artifact://[A-Za-z0-9_\-]+/v\d+`)

// ArtifactResolver scans prior outputs, observations, and the original input
// for artifact:// handles and resolves them. In on_demand mode only the
// explicit ArtifactRequests are honored; in preload mode every discovered
// handle is resolved, up to max_artifact_loads_per_invocation (§4.4).
type ArtifactResolver struct {
	Agent  registry.Agent
	Config Config
	Source ArtifactSource
}

func (p *ArtifactResolver) Name() string { return "artifact_resolver" }

func (p *ArtifactResolver) Process(ctx context.Context, cc CompiledContext, _, _ string) (ProcessorResult, error) {
	start := time.Now()
	result := ProcessorResult{Context: cc, Success: true}

	if p.Source == nil {
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, nil
	}

	mode := p.Agent.ContextRequirements.ArtifactAccessMode
	if mode == "" {
		mode = "on_demand"
	}

	var handles []string
	if mode == "on_demand" {
		handles = append(handles, cc.ArtifactRequests...)
	} else {
		seen := map[string]bool{}
		for _, h := range discoverHandles(cc.OriginalInput) {
			if !seen[h] {
				seen[h] = true
				handles = append(handles, h)
			}
		}
		for _, h := range discoverHandles(cc.PriorOutputs) {
			if !seen[h] {
				seen[h] = true
				handles = append(handles, h)
			}
		}
		for _, o := range cc.Observations {
			for _, h := range discoverHandles(o.Content) {
				if !seen[h] {
					seen[h] = true
					handles = append(handles, h)
				}
			}
		}
		limit := p.Agent.ContextRequirements.MaxArtifactLoads
		if limit <= 0 {
			limit = p.Config.DefaultMaxArtifactLoads
		}
		if limit > 0 && len(handles) > limit {
			handles = handles[:limit]
		}
	}

	if len(handles) == 0 {
		result.ExecutionTimeMS = time.Since(start).Milliseconds()
		return result, nil
	}

	resolved := 0
	for _, h := range handles {
		a, err := p.Source.GetHandle(ctx, h)
		if err != nil {
			// a single unresolved handle is recoverable; the agent sees one
			// fewer artifact, not a pipeline failure.
			continue
		}
		cc.Artifacts = append(cc.Artifacts, a)
		resolved++
	}

	result.Context = cc
	if resolved > 0 {
		result.Modifications = []string{"resolved_artifacts:" + mode}
	}
	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

// discoverHandles finds every artifact:// handle inside an arbitrary value
// by serializing it and regex-scanning the result.
func discoverHandles(v any) []string {
	if v == nil {
		return nil
	}
	var s string
	if str, ok := v.(string); ok {
		s = str
	} else {
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		s = string(b)
	}
	return artifactHandleRE.FindAllString(s, -1)
}
