// plugin.go: Plugin capability and module activation interfaces
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

// Plugin is the capability contract every hosted module implements.
//
// Initialize must be safe to call while sibling plugins are still
// uninitialized: it may only create local services and register capabilities
// (with the ServiceRegistry or the EventBus). Start may assume every plugin
// has completed Initialize, so it is the only safe place to consume another
// plugin's service. This split is what breaks mutual-dependency deadlocks
// between plugins that need each other's services.
type Plugin interface {
	// Initialize creates the plugin's local services and registers them.
	// Returns false on failure; the plugin stays in the Loaded state.
	Initialize(registry *ServiceRegistry) bool

	// Start activates the plugin. All plugins have been initialized when
	// Start runs, so looked-up services are safe to consume here.
	Start() bool

	// Stop deactivates the plugin. Best-effort; never retried.
	Stop()

	// ModuleNamespace returns an opaque namespace identifier for UI or
	// routing layers. Empty when the plugin exposes none.
	ModuleNamespace() string

	// EntryPoint returns an opaque entry-point locator for the hosting
	// shell. Empty when the plugin exposes none.
	EntryPoint() string
}

// Loadable abstracts the mechanics of activating and deactivating one
// discovered module, typically a dynamic shared library; the manager
// never inspects how activation happens.
type Loadable interface {
	// Load activates the module's code. Returns false on failure, in which
	// case ErrorString describes what went wrong.
	Load() bool

	// Unload releases the module. Safe to call after a failed Load.
	Unload()

	// Instance returns the typed entry point extracted from the module.
	// Only valid after a successful Load.
	Instance() Plugin

	// ErrorString returns a description of the last load failure.
	ErrorString() string
}

// LoadableFactory produces the Loadable for one discovered plugin. The
// manager calls it once per accepted manifest, passing the manifest location
// and the validated metadata. Hosts inject whatever activation strategy fits
// their deployment (dlopen-style loading, in-binary registration, test fakes).
type LoadableFactory func(manifestPath string, meta *PluginMetadata) (Loadable, error)
