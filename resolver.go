// resolver.go: Dependency resolution and deterministic load ordering
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"fmt"
	"sort"
)

// ServiceConflict records a duplicate service provider claim. The first
// registrant keeps the service; later claimants are diagnosed, not failed.
type ServiceConflict struct {
	Service    string
	ProvidedBy string
	RejectedBy string
}

// DependencyResolver builds a directed dependency graph over discovered
// plugin metadata and produces a deterministic topological load order.
//
// Plugin-kind dependencies reference plugin ids directly; Service-kind
// dependencies are resolved through the provider map (service name to the
// first plugin that claimed it). Cycle detection uses depth-first traversal
// with 3-color marking. A detected cycle is a diagnostic, not an abort: the
// returned order still contains every discovered id, in a deterministic
// best-effort sequence, so that startup stays maximally permissive. Callers
// needing strict safety should treat any cycle diagnostic as fatal.
//
// The resolver is owned by the lifecycle manager and mutated only from its
// sequential phase calls; it carries no internal locking.
type DependencyResolver struct {
	logger Logger

	metadata  map[string]*PluginMetadata
	order     []string          // discovery order of plugin ids
	providers map[string]string // service name -> providing plugin id
	conflicts []ServiceConflict
	cycles    []string // ids where cycles closed during the last Resolve
}

// NewDependencyResolver creates an empty resolver.
func NewDependencyResolver(logger Logger) *DependencyResolver {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &DependencyResolver{
		logger:    logger,
		metadata:  make(map[string]*PluginMetadata),
		providers: make(map[string]string),
	}
}

// Add registers one plugin's metadata and claims its provided services.
//
// Service claims are first-registrant-wins: a second plugin providing an
// already-claimed service name is recorded as a ServiceConflict diagnostic
// and the original provider is kept. Returns false if the plugin id is
// already known.
func (r *DependencyResolver) Add(meta *PluginMetadata) bool {
	id := meta.ID()
	if _, exists := r.metadata[id]; exists {
		return false
	}

	r.metadata[id] = meta
	r.order = append(r.order, id)

	for _, service := range meta.Provides() {
		if keeper, claimed := r.providers[service]; claimed {
			r.conflicts = append(r.conflicts, ServiceConflict{
				Service:    service,
				ProvidedBy: keeper,
				RejectedBy: id,
			})
			r.logger.Warn("Service already provided, keeping first registrant",
				"error", NewDuplicateProviderError(service, keeper, id))
			continue
		}
		r.providers[service] = id
		r.logger.Debug("Service provider registered",
			"service", service,
			"plugin", id)
	}

	return true
}

// Remove forgets one plugin and releases the service claims it holds.
func (r *DependencyResolver) Remove(id string) {
	meta, exists := r.metadata[id]
	if !exists {
		return
	}

	delete(r.metadata, id)
	for i, known := range r.order {
		if known == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for _, service := range meta.Provides() {
		if r.providers[service] == id {
			delete(r.providers, service)
		}
	}
}

// Clear forgets all plugins, provider claims, and diagnostics.
func (r *DependencyResolver) Clear() {
	r.metadata = make(map[string]*PluginMetadata)
	r.order = nil
	r.providers = make(map[string]string)
	r.conflicts = nil
	r.cycles = nil
}

// Metadata returns the metadata registered for a plugin id.
func (r *DependencyResolver) Metadata(id string) (*PluginMetadata, bool) {
	meta, ok := r.metadata[id]
	return meta, ok
}

// ResolveServiceProvider returns the id of the plugin providing a service,
// or an empty string if no plugin claims it.
func (r *DependencyResolver) ResolveServiceProvider(service string) string {
	return r.providers[service]
}

// Conflicts returns the duplicate-provider diagnostics recorded so far.
func (r *DependencyResolver) Conflicts() []ServiceConflict {
	return append([]ServiceConflict(nil), r.conflicts...)
}

// Cycles returns the ids where dependency cycles closed during the last
// Resolve call. Empty when the graph is acyclic.
func (r *DependencyResolver) Cycles() []string {
	return append([]string(nil), r.cycles...)
}

// CheckDependencies returns descriptors for every mandatory dependency of a
// plugin that cannot be satisfied by the currently discovered set.
//
// Descriptor formats:
//
//	plugin:<id>                missing plugin
//	plugin:<id>>=<minVersion>  plugin present but too old
//	service:<id>               no provider claims the service
//
// Optional dependencies never appear in the output. The check is independent
// of whether the global load order succeeds.
func (r *DependencyResolver) CheckDependencies(meta *PluginMetadata) []string {
	var unsatisfied []string

	for _, dep := range meta.Requires() {
		if dep.Optional {
			continue
		}

		switch dep.Kind {
		case DependencyPlugin:
			depMeta, exists := r.metadata[dep.ID]
			if !exists {
				unsatisfied = append(unsatisfied, "plugin:"+dep.ID)
			} else if !dep.MinVersion.IsZero() && !depMeta.Version().AtLeast(dep.MinVersion) {
				unsatisfied = append(unsatisfied, fmt.Sprintf("plugin:%s>=%s", dep.ID, dep.MinVersion))
			}
		case DependencyService:
			if r.ResolveServiceProvider(dep.ID) == "" {
				unsatisfied = append(unsatisfied, "service:"+dep.ID)
			}
		}
	}

	return unsatisfied
}

// visitColor is the 3-color DFS marking used by Resolve.
type visitColor int

const (
	colorUnvisited visitColor = iota
	colorVisiting
	colorVisited
)

// Resolve computes the topological load order over all discovered plugins.
//
// Returns the order and ok=true when the graph is acyclic. When a cycle is
// detected, ok is false, the offending ids are recorded (see Cycles) and the
// returned order is still complete and deterministic: the cyclic edge is
// skipped, every id appears exactly once, and repeated calls over the same
// input produce identical output.
//
// Visitation order is the discovered-plugin set sorted by priority (lower
// first) with discovery order breaking ties, which is what makes the result
// stable.
func (r *DependencyResolver) Resolve() ([]string, bool) {
	r.cycles = nil

	candidates := append([]string(nil), r.order...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return r.metadata[candidates[i]].Priority() < r.metadata[candidates[j]].Priority()
	})

	state := make(map[string]visitColor, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, id := range candidates {
		r.visit(id, state, &order)
	}

	return order, len(r.cycles) == 0
}

// visit performs the depth-first traversal for one node. Returns false when
// the node is currently on the traversal stack, which signals a cycle to the
// caller; the cyclic edge is dropped and traversal continues.
func (r *DependencyResolver) visit(id string, state map[string]visitColor, order *[]string) bool {
	switch state[id] {
	case colorVisited:
		return true
	case colorVisiting:
		return false
	}

	state[id] = colorVisiting

	meta := r.metadata[id]
	for _, dep := range meta.Requires() {
		depID := r.edgeTarget(dep)
		if depID == "" {
			continue
		}
		if !r.visit(depID, state, order) {
			r.cycles = append(r.cycles, depID)
			r.logger.Warn("Circular dependency detected",
				"plugin", id,
				"error", NewCycleDetectedError(depID))
		}
	}

	state[id] = colorVisited
	*order = append(*order, id)
	return true
}

// edgeTarget resolves one dependency declaration to a discovered plugin id,
// or empty when the edge cannot be built (unknown plugin, unclaimed service).
// Mandatory unresolved dependencies are reported by CheckDependencies, not
// here; order computation silently skips them either way.
func (r *DependencyResolver) edgeTarget(dep Dependency) string {
	var depID string
	switch dep.Kind {
	case DependencyPlugin:
		depID = dep.ID
	case DependencyService:
		depID = r.ResolveServiceProvider(dep.ID)
	}

	if _, known := r.metadata[depID]; !known {
		return ""
	}
	return depID
}
