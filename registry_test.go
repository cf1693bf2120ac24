// registry_test.go: Test suite for the shared service registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"sync"
	"testing"
)

func TestServiceRegistryBasics(t *testing.T) {
	registry := NewServiceRegistry()

	if _, ok := registry.Lookup("missing"); ok {
		t.Error("lookup of an unregistered name must fail")
	}

	registry.Register("auth", "handle-1")
	handle, ok := registry.Lookup("auth")
	if !ok || handle != "handle-1" {
		t.Errorf("Lookup = %v, %v", handle, ok)
	}

	registry.Register("auth", "handle-2")
	handle, _ = registry.Lookup("auth")
	if handle != "handle-2" {
		t.Error("re-registration must replace the previous handle")
	}

	if registry.Count() != 1 {
		t.Errorf("Count = %d, want 1", registry.Count())
	}

	registry.Unregister("auth")
	registry.Unregister("auth") // no-op
	if registry.Count() != 0 {
		t.Error("unregistered names must be gone")
	}
}

func TestServiceRegistryConcurrentAccess(t *testing.T) {
	registry := NewServiceRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := string(rune('a' + n%8))
			registry.Register(name, n)
			registry.Lookup(name)
			registry.Names()
		}(i)
	}
	wg.Wait()

	if registry.Count() != 8 {
		t.Errorf("Count = %d, want 8 distinct names", registry.Count())
	}
}
