package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML catalog file.
// Sections omitted from the file keep their built-in values.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document
func Parse(data []byte) (*Catalog, error) {
	var file Spec
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	spec := DefaultSpec()
	if file.IdealFieldCount != 0 {
		spec.IdealFieldCount = file.IdealFieldCount
	}
	if file.DocumentTypes != nil {
		spec.DocumentTypes = file.DocumentTypes
	}
	if file.Policies != nil {
		spec.Policies = file.Policies
	}
	if file.DefaultPolicy != "" {
		spec.DefaultPolicy = file.DefaultPolicy
	}

	return New(spec)
}

// Marshal renders the catalog as YAML
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c.Spec())
}
