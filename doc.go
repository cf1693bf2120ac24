// doc.go: Package documentation for the go-pluginhost library
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package pluginhost hosts independently built extension modules inside a
// long-lived process and lets them cooperate without compile-time coupling.
//
// The library is built around two subsystems:
//
//   - LifecycleManager drives every discovered plugin through
//     discover -> load -> initialize -> start and back down again, ordered by
//     a dependency resolver that understands both direct plugin references
//     and indirect service references. One broken plugin never blocks the
//     sweep over the others.
//
//   - EventBus provides thread-safe publish/subscribe with wildcard topic
//     patterns and priority-ordered delivery, plus a one-handler-per-topic
//     request/response path for synchronous cross-plugin calls.
//
// Plugins describe themselves with a manifest (JSON or YAML) declaring an id,
// a semantic version, the service names they provide and the plugins or
// services they require. The manager resolves service requirements through a
// provider map, computes a deterministic load order, and tears everything
// down in reverse when the host shuts down.
//
// Minimal usage:
//
//	registry := pluginhost.NewServiceRegistry()
//	manager := pluginhost.NewLifecycleManager(registry, factory, logger)
//
//	manager.Discover("/opt/plugins")
//	manager.LoadAll()
//	manager.InitializeAll()
//	manager.StartAll()
//	defer manager.Close()
//
//	bus := pluginhost.NewEventBus(logger)
//	defer bus.Close()
//	bus.Subscribe("orders/**", "audit", auditHandler, pluginhost.SubscriptionOptions{})
//	bus.Publish("orders/created", map[string]any{"id": 42}, "shop")
package pluginhost
