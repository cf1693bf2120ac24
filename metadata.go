// metadata.go: Immutable plugin metadata and static validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"github.com/agilira/go-errors"
)

// DependencyKind discriminates what a dependency declaration points at.
type DependencyKind int

const (
	// DependencyPlugin references another plugin directly by its id.
	DependencyPlugin DependencyKind = iota
	// DependencyService references a service name that some plugin provides;
	// it is resolved to the providing plugin through the provider map.
	DependencyService
)

// String returns the manifest spelling of the dependency kind.
func (k DependencyKind) String() string {
	switch k {
	case DependencyPlugin:
		return "plugin"
	case DependencyService:
		return "service"
	default:
		return "unknown"
	}
}

// Dependency declares a single requirement of a plugin.
//
// A Plugin-kind dependency names another plugin id; a Service-kind dependency
// names a service that must be provided by some discovered plugin. MinVersion
// applies to Plugin-kind dependencies only. Optional dependencies influence
// load ordering when resolvable but never block a plugin's phase progression.
type Dependency struct {
	Kind       DependencyKind
	ID         string
	MinVersion Version
	Optional   bool
}

// PluginMetadata is the immutable description of one plugin: identity,
// version, the service names it provides, the dependencies it requires, and
// its load priority (lower loads first, discovery order breaks ties).
//
// Construct instances with NewPluginMetadata so validation is never skipped;
// all accessors return copies, so a metadata record can be shared freely.
type PluginMetadata struct {
	id          string
	name        string
	version     Version
	description string
	vendor      string
	provides    []string
	requires    []Dependency
	priority    int
}

// NewPluginMetadata validates and constructs an immutable metadata record.
//
// Validation rules:
//   - id must be non-empty
//   - version must be a parseable semantic version
//   - every dependency needs a non-empty id
//   - a Plugin-kind dependency on the plugin's own id is rejected
//     ("cannot depend on itself"); self-dependency is a validation error,
//     not a runtime cycle
func NewPluginMetadata(id, name, version, description, vendor string, provides []string, requires []Dependency, priority int) (*PluginMetadata, error) {
	if id == "" {
		return nil, NewInvalidPluginIDError(id)
	}

	v, err := ParseVersion(version)
	if err != nil {
		return nil, NewInvalidVersionError(id, version, err)
	}

	for _, dep := range requires {
		if dep.ID == "" {
			return nil, NewInvalidDependencyError(id, dep.Kind.String()+":")
		}
		if dep.Kind == DependencyPlugin && dep.ID == id {
			return nil, NewSelfDependencyError(id)
		}
	}

	return &PluginMetadata{
		id:          id,
		name:        name,
		version:     v,
		description: description,
		vendor:      vendor,
		provides:    append([]string(nil), provides...),
		requires:    append([]Dependency(nil), requires...),
		priority:    priority,
	}, nil
}

// ID returns the globally unique plugin id.
func (m *PluginMetadata) ID() string { return m.id }

// Name returns the human-readable plugin name.
func (m *PluginMetadata) Name() string { return m.name }

// Version returns the plugin's semantic version.
func (m *PluginMetadata) Version() Version { return m.version }

// Description returns the plugin description.
func (m *PluginMetadata) Description() string { return m.description }

// Vendor returns the plugin vendor.
func (m *PluginMetadata) Vendor() string { return m.vendor }

// Provides returns the service names this plugin provides.
func (m *PluginMetadata) Provides() []string {
	return append([]string(nil), m.provides...)
}

// Requires returns the ordered dependency declarations.
func (m *PluginMetadata) Requires() []Dependency {
	return append([]Dependency(nil), m.requires...)
}

// Priority returns the load priority. Lower values load first.
func (m *PluginMetadata) Priority() int { return m.priority }

// validateDependencyKind parses the manifest spelling of a dependency kind.
func validateDependencyKind(kind string) (DependencyKind, error) {
	switch kind {
	case "plugin":
		return DependencyPlugin, nil
	case "service":
		return DependencyService, nil
	default:
		return 0, errors.New(ErrCodeInvalidDependency, "Unknown dependency kind").
			WithContext("kind", kind).
			WithSeverity("error")
	}
}
