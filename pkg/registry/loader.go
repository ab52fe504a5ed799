package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// documents is the on-disk shape of the registry: a single declarative YAML
// file holding every object kind, loaded at startup and atomically rewritten
// on every CRUD write.
type documents struct {
	Agents         map[string]*Agent         `yaml:"agents"`
	Tools          map[string]*Tool          `yaml:"tools"`
	ModelProfiles  map[string]*ModelProfile  `yaml:"model_profiles"`
	Workflows      map[string]*Workflow      `yaml:"workflows"`
	Governance     GovernancePolicy           `yaml:"governance"`
}

func emptyDocuments() *documents {
	return &documents{
		Agents:        map[string]*Agent{},
		Tools:         map[string]*Tool{},
		ModelProfiles: map[string]*ModelProfile{},
		Workflows:     map[string]*Workflow{},
		Governance: GovernancePolicy{
			MaxDuplicateInvocations:      2,
			MaxToolInvocationsPerSession: 50,
			MaxLLMCallsPerSession:        100,
		},
	}
}

// docFile is the name of the backing document for all kinds, relative to the
// registry path.
const docFile = "registry.yaml"

// loadDocuments reads the backing document from dir. A missing directory or
// file yields an empty (but valid) document set so a fresh deployment can
// start from nothing and be populated through the CRUD API.
func loadDocuments(dir string) (*documents, error) {
	path := filepath.Join(dir, docFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return emptyDocuments(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry document %s: %w", path, err)
	}
	docs := emptyDocuments()
	if err := yaml.Unmarshal(data, docs); err != nil {
		return nil, fmt.Errorf("parsing registry document %s: %w", path, err)
	}
	if docs.Agents == nil {
		docs.Agents = map[string]*Agent{}
	}
	if docs.Tools == nil {
		docs.Tools = map[string]*Tool{}
	}
	if docs.ModelProfiles == nil {
		docs.ModelProfiles = map[string]*ModelProfile{}
	}
	if docs.Workflows == nil {
		docs.Workflows = map[string]*Workflow{}
	}
	return docs, nil
}

// saveDocuments writes the backing document atomically: serialize to a temp
// file in the same directory, then rename over the original. A reader never
// observes a partially-written document.
func saveDocuments(dir string, docs *documents) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating registry directory %s: %w", dir, err)
	}
	data, err := yaml.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshaling registry document: %w", err)
	}
	path := filepath.Join(dir, docFile)
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp registry file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp registry file into place: %w", err)
	}
	return nil
}
