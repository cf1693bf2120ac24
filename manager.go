// manager.go: Plugin lifecycle manager driving discover/load/initialize/start phases
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// PluginState tracks where a plugin sits in its lifecycle.
//
// Transitions are monotonic forward during startup
// (Discovered -> Loaded -> Initialized -> Started), monotonic backward during
// shutdown (Started -> Initialized on stop), and terminal at Unloaded. No
// state is ever skipped.
type PluginState int

const (
	// StateDiscovered means metadata was accepted but no code is active.
	StateDiscovered PluginState = iota
	// StateLoaded means the module's code has been activated.
	StateLoaded
	// StateInitialized means the plugin registered its local services.
	StateInitialized
	// StateStarted means the plugin is running.
	StateStarted
	// StateUnloaded is terminal; the module handle has been released.
	StateUnloaded
)

// String returns the lifecycle state name.
func (s PluginState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// Lifecycle event types emitted by the manager.
const (
	EventPluginDiscovered  = "plugin_discovered"
	EventPluginLoaded      = "plugin_loaded"
	EventPluginInitialized = "plugin_initialized"
	EventPluginStarted     = "plugin_started"
	EventPluginStopped     = "plugin_stopped"
	EventPluginUnloaded    = "plugin_unloaded"
	EventPluginError       = "plugin_error"
)

// LifecycleEvent describes one plugin lifecycle transition or failure.
type LifecycleEvent struct {
	Type      string      `json:"type"`
	PluginID  string      `json:"plugin_id"`
	State     PluginState `json:"state"`
	Timestamp time.Time   `json:"timestamp"`
	Err       error       `json:"error,omitempty"`
}

// LifecycleEventHandler receives lifecycle events. Handlers run on their own
// goroutine with panic recovery, so they may call back into the manager's
// query surface freely.
type LifecycleEventHandler func(event LifecycleEvent)

// pluginHandle is the per-discovered-plugin record: metadata, the injected
// Loadable, and the current lifecycle state.
type pluginHandle struct {
	meta         *PluginMetadata
	loadable     Loadable
	manifestPath string
	state        PluginState
	lastErr      error
}

// LifecycleManager drives every discovered plugin through its lifecycle
// under dependency-ordering constraints.
//
// Forward phases (LoadAll, InitializeAll, StartAll) walk the resolver's
// topological order; teardown phases (StopAll, UnloadAll) walk it in reverse.
// Every phase keeps going after a per-plugin failure so one broken plugin
// never blocks unrelated ones; the phase's boolean return communicates
// aggregate success. The actual load/unload mechanics are delegated to the
// Loadable produced by the injected factory.
//
// Phase operations are expected to run single-threaded, driven sequentially
// by the host; the resolver order already establishes a deterministic
// schedule, so the manager's tables carry no internal locking. The event
// handler list is the exception; it may be appended from any goroutine.
//
// Example usage:
//
//	manager := NewLifecycleManager(registry, factory, logger)
//	manager.Discover("/opt/plugins")
//	manager.LoadAll()
//	manager.InitializeAll()
//	manager.StartAll()
//	defer manager.Close()
type LifecycleManager struct {
	registry *ServiceRegistry
	factory  LoadableFactory
	logger   Logger
	resolver *DependencyResolver

	handles map[string]*pluginHandle
	metrics MetricsCollector

	eventMu       sync.RWMutex
	eventHandlers []LifecycleEventHandler

	closed atomic.Bool
}

// NewLifecycleManager creates a manager bound to a service registry and a
// loadable factory. A nil logger falls back to the silent default.
func NewLifecycleManager(registry *ServiceRegistry, factory LoadableFactory, logger Logger) *LifecycleManager {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &LifecycleManager{
		registry: registry,
		factory:  factory,
		logger:   logger,
		resolver: NewDependencyResolver(logger),
		handles:  make(map[string]*pluginHandle),
	}
}

// SetMetricsCollector attaches an optional metrics collector. Call before
// the first phase operation.
func (m *LifecycleManager) SetMetricsCollector(collector MetricsCollector) {
	m.metrics = collector
}

// AddLifecycleHandler registers a handler for lifecycle events.
func (m *LifecycleManager) AddLifecycleHandler(handler LifecycleEventHandler) {
	if handler == nil {
		return
	}
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	m.eventHandlers = append(m.eventHandlers, handler)
}

// Discover enumerates candidate manifests at a directory, extracts and
// validates metadata without activating any code, and returns the count of
// newly accepted plugins.
//
// A bad individual candidate is never fatal: duplicates by id (first seen
// wins), metadata failing static validation, and unparseable files are
// skipped with a diagnostic. Discover may be called repeatedly with
// different paths to aggregate plugins from several locations.
func (m *LifecycleManager) Discover(path string) int {
	entries, err := os.ReadDir(path)
	if err != nil {
		m.logger.Warn("Plugin directory is not readable", "path", path,
			"error", NewDiscoveryError("unreadable plugin directory", err))
		return 0
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !matchesManifestPattern(entry.Name()) {
			continue
		}

		manifestPath := filepath.Join(path, entry.Name())
		if m.discoverOne(manifestPath) {
			count++
		}
	}

	m.logger.Info("Plugin discovery completed", "path", path, "accepted", count)
	return count
}

// discoverOne processes a single manifest file. Returns true if the plugin
// was newly accepted.
func (m *LifecycleManager) discoverOne(manifestPath string) bool {
	manifest, err := ParseManifestFile(manifestPath)
	if err != nil {
		m.logger.Warn("Skipping unreadable manifest", "path", manifestPath, "error", err)
		return false
	}

	meta, err := manifest.Metadata()
	if err != nil {
		invalid := NewManifestInvalidError(manifestPath, err)
		m.logger.Warn("Invalid plugin metadata", "path", manifestPath, "error", invalid)
		m.emitEvent(LifecycleEvent{
			Type:      EventPluginError,
			PluginID:  manifest.ID,
			Timestamp: timecache.CachedTime(),
			Err:       invalid,
		})
		return false
	}

	id := meta.ID()
	if _, exists := m.handles[id]; exists {
		dup := NewDuplicatePluginIDError(id)
		m.logger.Warn("Duplicate plugin id, keeping first seen", "plugin", id, "path", manifestPath)
		m.emitEvent(LifecycleEvent{
			Type:      EventPluginError,
			PluginID:  id,
			Timestamp: timecache.CachedTime(),
			Err:       dup,
		})
		return false
	}

	loadable, err := m.factory(manifestPath, meta)
	if err != nil {
		m.logger.Warn("Loadable factory rejected plugin", "plugin", id, "error", err)
		m.emitEvent(LifecycleEvent{
			Type:      EventPluginError,
			PluginID:  id,
			Timestamp: timecache.CachedTime(),
			Err:       err,
		})
		return false
	}

	m.handles[id] = &pluginHandle{
		meta:         meta,
		loadable:     loadable,
		manifestPath: manifestPath,
		state:        StateDiscovered,
	}
	m.resolver.Add(meta)
	m.recordState(id, StateDiscovered)

	m.logger.Debug("Discovered plugin",
		"plugin", id,
		"version", meta.Version().String(),
		"path", manifestPath)
	m.emitEvent(LifecycleEvent{
		Type:      EventPluginDiscovered,
		PluginID:  id,
		State:     StateDiscovered,
		Timestamp: timecache.CachedTime(),
	})
	return true
}

// LoadAll activates every discovered plugin in resolver order.
//
// Plugins whose mandatory dependencies are unmet are skipped with a
// per-plugin error; a Loadable failure is recorded and the sweep continues.
// Returns true only if every plugin loaded successfully. Idempotent for
// plugins already past the Discovered state.
func (m *LifecycleManager) LoadAll() bool {
	order, ok := m.resolver.Resolve()
	if !ok {
		m.logger.Warn("Load order is best-effort due to dependency cycle",
			"involving", m.resolver.Cycles())
	}

	allLoaded := true
	for _, id := range order {
		handle := m.handles[id]
		if handle == nil || handle.state != StateDiscovered {
			continue
		}

		if unsatisfied := m.resolver.CheckDependencies(handle.meta); len(unsatisfied) > 0 {
			m.failPlugin(handle, id, NewUnsatisfiedDependencyError(id, unsatisfied))
			allLoaded = false
			continue
		}

		if !handle.loadable.Load() {
			m.failPlugin(handle, id, NewLoadFailedError(id, handle.loadable.ErrorString()))
			allLoaded = false
			continue
		}

		handle.state = StateLoaded
		handle.lastErr = nil
		m.recordState(id, StateLoaded)
		m.logger.Info("Plugin loaded", "plugin", id)
		m.emitEvent(LifecycleEvent{
			Type:      EventPluginLoaded,
			PluginID:  id,
			State:     StateLoaded,
			Timestamp: timecache.CachedTime(),
		})
	}

	return allLoaded
}

// InitializeAll initializes every loaded plugin in resolver order.
//
// Initialize only creates local services and registers capabilities, so it is
// safe while sibling plugins are still uninitialized. A failure is recorded
// and does not halt the remaining plugins.
func (m *LifecycleManager) InitializeAll() bool {
	order, _ := m.resolver.Resolve()

	allInitialized := true
	for _, id := range order {
		handle := m.handles[id]
		if handle == nil || handle.state != StateLoaded {
			continue
		}

		plugin := handle.loadable.Instance()
		if plugin == nil || !plugin.Initialize(m.registry) {
			m.failPlugin(handle, id, NewInitializeFailedError(id))
			allInitialized = false
			continue
		}

		handle.state = StateInitialized
		handle.lastErr = nil
		m.recordState(id, StateInitialized)
		m.logger.Info("Plugin initialized", "plugin", id)
		m.emitEvent(LifecycleEvent{
			Type:      EventPluginInitialized,
			PluginID:  id,
			State:     StateInitialized,
			Timestamp: timecache.CachedTime(),
		})
	}

	return allInitialized
}

// StartAll starts every initialized plugin in resolver order. Start may
// consume other plugins' services, since every plugin has completed
// Initialize by the time any Start runs.
func (m *LifecycleManager) StartAll() bool {
	order, _ := m.resolver.Resolve()

	allStarted := true
	for _, id := range order {
		handle := m.handles[id]
		if handle == nil || handle.state != StateInitialized {
			continue
		}

		plugin := handle.loadable.Instance()
		if plugin == nil || !plugin.Start() {
			m.failPlugin(handle, id, NewStartFailedError(id))
			allStarted = false
			continue
		}

		handle.state = StateStarted
		handle.lastErr = nil
		m.recordState(id, StateStarted)
		m.logger.Info("Plugin started", "plugin", id)
		m.emitEvent(LifecycleEvent{
			Type:      EventPluginStarted,
			PluginID:  id,
			State:     StateStarted,
			Timestamp: timecache.CachedTime(),
		})
	}

	return allStarted
}

// StopAll stops every started plugin in reverse resolver order and demotes
// it to Initialized. Stop is best-effort: a panic inside a plugin's Stop is
// logged, never retried, and the sweep continues.
func (m *LifecycleManager) StopAll() {
	order, _ := m.resolver.Resolve()

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		handle := m.handles[id]
		if handle == nil || handle.state != StateStarted {
			continue
		}

		if plugin := handle.loadable.Instance(); plugin != nil {
			m.stopPlugin(id, plugin)
		}

		handle.state = StateInitialized
		m.recordState(id, StateInitialized)
		m.logger.Info("Plugin stopped", "plugin", id)
		m.emitEvent(LifecycleEvent{
			Type:      EventPluginStopped,
			PluginID:  id,
			State:     StateInitialized,
			Timestamp: timecache.CachedTime(),
		})
	}
}

// stopPlugin invokes Stop with panic containment.
func (m *LifecycleManager) stopPlugin(id string, plugin Plugin) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Plugin stop panicked", "plugin", id, "panic", r)
		}
	}()
	plugin.Stop()
}

// UnloadAll releases every loaded module in reverse resolver order, demotes
// each to the terminal Unloaded state, and clears all internal maps
// (provider map, id map, state table). Discover must run again before any
// further phase operation.
func (m *LifecycleManager) UnloadAll() {
	order, _ := m.resolver.Resolve()

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		handle := m.handles[id]
		if handle == nil || handle.state < StateLoaded || handle.state == StateUnloaded {
			continue
		}

		handle.loadable.Unload()
		handle.state = StateUnloaded
		m.recordState(id, StateUnloaded)
		m.logger.Info("Plugin unloaded", "plugin", id)
		m.emitEvent(LifecycleEvent{
			Type:      EventPluginUnloaded,
			PluginID:  id,
			State:     StateUnloaded,
			Timestamp: timecache.CachedTime(),
		})
	}

	m.handles = make(map[string]*pluginHandle)
	m.resolver.Clear()
}

// Close forces StopAll then UnloadAll, even if the host never called them
// explicitly, so no module handle leaks past the manager's lifetime.
// Idempotent.
func (m *LifecycleManager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.logger.Info("Shutting down lifecycle manager")
	m.StopAll()
	m.UnloadAll()
}

// Query surface

// IDs returns every discovered plugin id in discovery order.
func (m *LifecycleManager) IDs() []string {
	return append([]string(nil), m.resolver.order...)
}

// State returns the lifecycle state of a plugin.
func (m *LifecycleManager) State(id string) (PluginState, bool) {
	handle, ok := m.handles[id]
	if !ok {
		return 0, false
	}
	return handle.state, true
}

// LastError returns the most recent per-plugin failure, nil if none.
func (m *LifecycleManager) LastError(id string) error {
	if handle, ok := m.handles[id]; ok {
		return handle.lastErr
	}
	return nil
}

// Metadata returns the metadata of a discovered plugin.
func (m *LifecycleManager) Metadata(id string) (*PluginMetadata, bool) {
	handle, ok := m.handles[id]
	if !ok {
		return nil, false
	}
	return handle.meta, true
}

// LoadOrder returns the current resolver order. The boolean is false when
// the order is best-effort because of a dependency cycle.
func (m *LifecycleManager) LoadOrder() ([]string, bool) {
	return m.resolver.Resolve()
}

// CheckDependencies reports the unsatisfied mandatory dependencies of a
// discovered plugin. Unknown ids yield nil.
func (m *LifecycleManager) CheckDependencies(id string) []string {
	handle, ok := m.handles[id]
	if !ok {
		return nil
	}
	return m.resolver.CheckDependencies(handle.meta)
}

// ServiceConflicts returns the duplicate-provider diagnostics recorded
// during discovery.
func (m *LifecycleManager) ServiceConflicts() []ServiceConflict {
	return m.resolver.Conflicts()
}

// ModuleNamespaces returns the non-empty namespace identifiers of all loaded
// plugins, in discovery order.
func (m *LifecycleManager) ModuleNamespaces() []string {
	var namespaces []string
	for _, id := range m.IDs() {
		handle := m.handles[id]
		if handle.state < StateLoaded || handle.state == StateUnloaded {
			continue
		}
		if plugin := handle.loadable.Instance(); plugin != nil {
			if ns := plugin.ModuleNamespace(); ns != "" {
				namespaces = append(namespaces, ns)
			}
		}
	}
	return namespaces
}

// EntryPoints returns the non-empty entry-point locators of all loaded
// plugins, in discovery order.
func (m *LifecycleManager) EntryPoints() []string {
	var entries []string
	for _, id := range m.IDs() {
		if ep := m.EntryPoint(id); ep != "" {
			entries = append(entries, ep)
		}
	}
	return entries
}

// EntryPoint returns the entry-point locator of one loaded plugin, empty if
// the plugin is unknown, not loaded, or exposes none.
func (m *LifecycleManager) EntryPoint(id string) string {
	handle, ok := m.handles[id]
	if !ok || handle.state < StateLoaded || handle.state == StateUnloaded {
		return ""
	}
	if plugin := handle.loadable.Instance(); plugin != nil {
		return plugin.EntryPoint()
	}
	return ""
}

// Internal helpers

// failPlugin records a per-plugin error and emits the diagnostic event.
func (m *LifecycleManager) failPlugin(handle *pluginHandle, id string, err error) {
	handle.lastErr = err
	m.logger.Error("Plugin phase failure", "plugin", id, "error", err)
	m.emitEvent(LifecycleEvent{
		Type:      EventPluginError,
		PluginID:  id,
		State:     handle.state,
		Timestamp: timecache.CachedTime(),
		Err:       err,
	})
}

// recordState forwards a state transition to the metrics collector, if any.
func (m *LifecycleManager) recordState(id string, state PluginState) {
	if m.metrics != nil {
		m.metrics.PluginStateChanged(id, state)
	}
}

// emitEvent fans a lifecycle event out to all registered handlers, each on
// its own goroutine with panic recovery.
func (m *LifecycleManager) emitEvent(event LifecycleEvent) {
	m.eventMu.RLock()
	handlers := make([]LifecycleEventHandler, len(m.eventHandlers))
	copy(handlers, m.eventHandlers)
	m.eventMu.RUnlock()

	for _, handler := range handlers {
		h := handler
		safeGo(m.logger, func() { h(event) })
	}
}
