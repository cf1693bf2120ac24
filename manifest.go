// manifest.go: Plugin manifest ingestion (JSON/YAML) and conversion to metadata
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk description of one plugin.
//
// The serialization syntax is not part of the host's contract; only the
// field shapes and the validation rules enforced by NewPluginMetadata are.
// Both JSON and YAML are accepted.
//
// Example JSON manifest:
//
//	{
//	  "id": "com.example.orders",
//	  "name": "Orders",
//	  "version": "1.4.0",
//	  "vendor": "Example Corp",
//	  "provides": ["order-store"],
//	  "requires": [
//	    {"type": "service", "id": "auth"},
//	    {"type": "plugin", "id": "com.example.base", "min": "2.0.0"},
//	    {"type": "service", "id": "telemetry", "optional": true}
//	  ],
//	  "priority": 10
//	}
type Manifest struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name,omitempty" yaml:"name,omitempty"`
	Version     string               `json:"version" yaml:"version"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Vendor      string               `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Requires    []ManifestDependency `json:"requires,omitempty" yaml:"requires,omitempty"`
	Provides    []string             `json:"provides,omitempty" yaml:"provides,omitempty"`
	Priority    int                  `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// ManifestDependency is the wire shape of one dependency declaration.
type ManifestDependency struct {
	Type     string `json:"type" yaml:"type"`
	ID       string `json:"id" yaml:"id"`
	Min      string `json:"min,omitempty" yaml:"min,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// manifestFilePatterns are the file names recognized during discovery.
var manifestFilePatterns = []string{"*.json", "*.yaml", "*.yml"}

// ParseManifestFile reads and parses a plugin manifest file.
//
// JSON is tried first, then YAML, matching the discovery behavior of the rest
// of the AGILira plugin tooling.
func ParseManifestFile(path string) (*Manifest, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath) // #nosec G304 - discovery paths are host-controlled
	if err != nil {
		return nil, NewManifestNotFoundError(cleanPath)
	}

	return ParseManifest(data, cleanPath)
}

// ParseManifest parses manifest bytes as JSON, falling back to YAML.
// The source argument is used only for diagnostics.
func ParseManifest(data []byte, source string) (*Manifest, error) {
	var manifest Manifest

	if err := json.Unmarshal(data, &manifest); err != nil {
		manifest = Manifest{}
		if yerr := yaml.Unmarshal(data, &manifest); yerr != nil {
			return nil, NewManifestParseError(source, yerr)
		}
	}

	return &manifest, nil
}

// Metadata converts the manifest into a validated, immutable metadata record.
func (m *Manifest) Metadata() (*PluginMetadata, error) {
	requires := make([]Dependency, 0, len(m.Requires))
	for _, dep := range m.Requires {
		kind, err := validateDependencyKind(dep.Type)
		if err != nil {
			return nil, err
		}

		var minVersion Version
		if dep.Min != "" {
			minVersion, err = ParseVersion(dep.Min)
			if err != nil {
				return nil, NewInvalidVersionError(m.ID, dep.Min, err)
			}
		}

		requires = append(requires, Dependency{
			Kind:       kind,
			ID:         dep.ID,
			MinVersion: minVersion,
			Optional:   dep.Optional,
		})
	}

	return NewPluginMetadata(m.ID, m.Name, m.Version, m.Description, m.Vendor, m.Provides, requires, m.Priority)
}

// matchesManifestPattern reports whether a file name looks like a manifest.
func matchesManifestPattern(filename string) bool {
	for _, pattern := range manifestFilePatterns {
		if matched, err := filepath.Match(pattern, filename); err == nil && matched {
			return true
		}
	}
	return false
}
