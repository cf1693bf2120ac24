// registry.go: Name-to-handle service registry shared by hosted plugins
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// ServiceRegistry is the name-to-handle lookup table plugins populate during
// Initialize and consult during Start. Handles are opaque to the host.
//
// The backing store is a sharded concurrent map, so registration and lookup
// are safe from any goroutine without coordination by the caller.
type ServiceRegistry struct {
	services cmap.ConcurrentMap[string, any]
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: cmap.New[any](),
	}
}

// Register stores a handle under a service name, replacing any previous one.
func (sr *ServiceRegistry) Register(name string, handle any) {
	sr.services.Set(name, handle)
}

// Lookup returns the handle registered under a service name.
func (sr *ServiceRegistry) Lookup(name string) (any, bool) {
	return sr.services.Get(name)
}

// Unregister removes a service name. Unknown names are a no-op.
func (sr *ServiceRegistry) Unregister(name string) {
	sr.services.Remove(name)
}

// Names returns the currently registered service names.
func (sr *ServiceRegistry) Names() []string {
	return sr.services.Keys()
}

// Count returns the number of registered services.
func (sr *ServiceRegistry) Count() int {
	return sr.services.Count()
}
