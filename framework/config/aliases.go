package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// AliasManifest is the YAML alias file:
//
//	aliases:
//	  database: [db, primary-db]
//	  cache: [kv]
type AliasManifest struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// AliasRegistrar is satisfied by alias.Table and registry.Registry.
type AliasRegistrar interface {
	RegisterAlias(name, alias string) error
}

// LoadAliases reads and parses the manifest at path.
func LoadAliases(path string) (*AliasManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading alias manifest: %w", err)
	}
	return ParseAliases(data)
}

// ParseAliases parses manifest YAML.
func ParseAliases(data []byte) (*AliasManifest, error) {
	var m AliasManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parsing alias manifest: %w", err)
	}
	for name, aliases := range m.Aliases {
		if name == "" {
			return nil, fmt.Errorf("config: alias manifest has an empty name")
		}
		for _, a := range aliases {
			if a == "" {
				return nil, fmt.Errorf("config: alias manifest has an empty alias for %q", name)
			}
		}
	}
	return &m, nil
}

// Apply registers every alias, names in sorted order. It stops at the first
// rejected alias.
func (m *AliasManifest) Apply(r AliasRegistrar) error {
	names := make([]string, 0, len(m.Aliases))
	for name := range m.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, a := range m.Aliases[name] {
			if err := r.RegisterAlias(name, a); err != nil {
				return fmt.Errorf("config: applying alias %q → %q: %w", a, name, err)
			}
		}
	}
	return nil
}

// Len returns the number of aliases in the manifest.
func (m *AliasManifest) Len() int {
	n := 0
	for _, aliases := range m.Aliases {
		n += len(aliases)
	}
	return n
}
