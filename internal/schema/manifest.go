package schema

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed entities.yaml
var manifestFS embed.FS

type manifest struct {
	Entities map[string]*Descriptor `yaml:"entities"`
}

// LoadManifest builds a Registry from the embedded entity manifest.
// Visibility rules cannot be expressed in YAML; callers install them
// afterwards via SetVisibility.
func LoadManifest() (*Registry, error) {
	raw, err := manifestFS.ReadFile("entities.yaml")
	if err != nil {
		return nil, fmt.Errorf("read entity manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse entity manifest: %w", err)
	}

	reg := NewRegistry()
	for key, d := range m.Entities {
		d.Key = key
		if d.Table == "" {
			return nil, fmt.Errorf("entity %s: missing table binding", key)
		}
		if d.LabelField != "" && !contains(d.Selectable, d.LabelField) {
			return nil, fmt.Errorf("entity %s: label field %q is not selectable", key, d.LabelField)
		}
		reg.Register(d)
	}
	return reg, nil
}

// NewPlannerRegistry loads the manifest and installs the row-level
// visibility rules that cannot live in YAML. Tasks are only visible to
// their owner or the user assigned in charge.
func NewPlannerRegistry() (*Registry, error) {
	reg, err := LoadManifest()
	if err != nil {
		return nil, err
	}
	reg.SetVisibility("planner.tasks", func(actor ActingContext) (string, []any) {
		return "(user_id = ? OR in_charge_id = ?)", []any{actor.UserID, actor.UserID}
	})
	return reg, nil
}
