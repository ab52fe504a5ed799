package artifact

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/meridianflow/meridian/pkg/contextpipeline"
)

var handleRE = regexp.MustCompile(`^artifact://([A-Za-z0-9_\-]+)/v(\d+)$`)

// PipelineSource adapts Store to contextpipeline.ArtifactSource.
type PipelineSource struct {
	Store *Store
}

// GetHandle parses an artifact://{id}/v{n} handle and resolves it.
func (a PipelineSource) GetHandle(_ context.Context, handle string) (contextpipeline.Artifact, error) {
	m := handleRE.FindStringSubmatch(handle)
	if m == nil {
		return contextpipeline.Artifact{}, fmt.Errorf("malformed artifact handle %q", handle)
	}
	artifactID := m[1]
	version, err := strconv.Atoi(m[2])
	if err != nil {
		return contextpipeline.Artifact{}, fmt.Errorf("malformed artifact version in %q: %w", handle, err)
	}
	content, _, err := a.Store.Get(artifactID, &version)
	if err != nil {
		return contextpipeline.Artifact{}, err
	}
	return contextpipeline.Artifact{Handle: handle, Content: content}, nil
}
