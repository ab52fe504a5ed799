// Package artifact implements the content-addressed, versioned Artifact
// Store (C9) and the Compaction Manager that reduces a worker's observation
// stream when it grows too large (§4.10).
package artifact

import "time"

// VersionMeta is one version's bookkeeping: when it was written, what it
// was derived from, and caller-supplied metadata/tags.
type VersionMeta struct {
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	ParentVersion *int           `json:"parent_version,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Metadata is the per-artifact metadata.json document: every version's
// bookkeeping plus the artifact-level tag set.
type Metadata struct {
	ArtifactID    string                 `json:"artifact_id"`
	LatestVersion int                    `json:"latest_version"`
	Tags          []string               `json:"tags,omitempty"`
	Versions      map[string]VersionMeta `json:"versions"` // keyed by version number as string, for stable JSON
}

func newMetadata(artifactID string) *Metadata {
	return &Metadata{ArtifactID: artifactID, Versions: map[string]VersionMeta{}}
}
