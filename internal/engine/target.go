package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Target is a document class under synthesis: a name plus the sample-input
// and reference-output paths. Immutable once loaded.
type Target struct {
	Name      string `yaml:"name"`
	Input     string `yaml:"input"`
	Reference string `yaml:"reference"`
}

type manifest struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads a YAML targets manifest. Entries must have a unique,
// non-empty name and both paths set.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Targets) == 0 {
		return nil, fmt.Errorf("manifest %s declares no targets", path)
	}

	seen := make(map[string]bool, len(m.Targets))
	for i, t := range m.Targets {
		if t.Name == "" {
			return nil, fmt.Errorf("manifest %s: target %d has no name", path, i)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("manifest %s: duplicate target %q", path, t.Name)
		}
		seen[t.Name] = true
		if t.Input == "" || t.Reference == "" {
			return nil, fmt.Errorf("manifest %s: target %q missing input or reference path", path, t.Name)
		}
	}
	return m.Targets, nil
}
