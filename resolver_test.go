// resolver_test.go: Test suite for dependency resolution and load ordering
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"reflect"
	"testing"
)

// mustMeta builds validated metadata or fails the test.
func mustMeta(t *testing.T, id, version string, provides []string, requires []Dependency, priority int) *PluginMetadata {
	t.Helper()
	meta, err := NewPluginMetadata(id, id, version, "", "", provides, requires, priority)
	if err != nil {
		t.Fatalf("metadata for %s: %v", id, err)
	}
	return meta
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestResolveNoEdges(t *testing.T) {
	r := NewDependencyResolver(NewTestLogger())
	for _, id := range []string{"gamma", "alpha", "beta"} {
		if !r.Add(mustMeta(t, id, "1.0.0", nil, nil, 0)) {
			t.Fatalf("Add(%s) rejected", id)
		}
	}

	order, ok := r.Resolve()
	if !ok {
		t.Fatal("acyclic graph must resolve ok")
	}
	if len(order) != 3 {
		t.Fatalf("order = %v, want all 3 ids exactly once", order)
	}

	// Stable across repeated calls with identical input.
	again, _ := r.Resolve()
	if !reflect.DeepEqual(order, again) {
		t.Errorf("repeated Resolve differs: %v vs %v", order, again)
	}
}

func TestResolveDuplicateAddRejected(t *testing.T) {
	r := NewDependencyResolver(nil)
	r.Add(mustMeta(t, "alpha", "1.0.0", nil, nil, 0))
	if r.Add(mustMeta(t, "alpha", "2.0.0", nil, nil, 0)) {
		t.Error("second Add for the same id must be rejected")
	}
}

func TestResolveServiceEdgeOrdering(t *testing.T) {
	r := NewDependencyResolver(NewTestLogger())

	// consumer discovered before provider; the service edge must still put
	// the provider first.
	r.Add(mustMeta(t, "consumer", "1.0.0", nil,
		[]Dependency{{Kind: DependencyService, ID: "storage"}}, 0))
	r.Add(mustMeta(t, "provider", "1.0.0", []string{"storage"}, nil, 0))

	order, ok := r.Resolve()
	if !ok {
		t.Fatalf("unexpected cycle: %v", r.Cycles())
	}
	if indexOf(order, "provider") > indexOf(order, "consumer") {
		t.Errorf("provider must precede consumer, got %v", order)
	}
}

func TestResolvePluginEdgeOrdering(t *testing.T) {
	r := NewDependencyResolver(nil)
	r.Add(mustMeta(t, "app", "1.0.0", nil,
		[]Dependency{{Kind: DependencyPlugin, ID: "base"}}, 0))
	r.Add(mustMeta(t, "base", "1.0.0", nil, nil, 0))

	order, _ := r.Resolve()
	if indexOf(order, "base") > indexOf(order, "app") {
		t.Errorf("base must precede app, got %v", order)
	}
}

func TestResolvePriorityOrdering(t *testing.T) {
	r := NewDependencyResolver(nil)
	r.Add(mustMeta(t, "late", "1.0.0", nil, nil, 50))
	r.Add(mustMeta(t, "early", "1.0.0", nil, nil, 1))
	r.Add(mustMeta(t, "tieA", "1.0.0", nil, nil, 10))
	r.Add(mustMeta(t, "tieB", "1.0.0", nil, nil, 10))

	order, _ := r.Resolve()
	want := []string{"early", "tieA", "tieB", "late"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v (lower priority first, discovery order ties)", order, want)
	}
}

func TestResolveCycleStillReturnsAllNodes(t *testing.T) {
	logger := NewTestLogger()
	r := NewDependencyResolver(logger)
	r.Add(mustMeta(t, "a", "1.0.0", nil, []Dependency{{Kind: DependencyPlugin, ID: "b"}}, 0))
	r.Add(mustMeta(t, "b", "1.0.0", nil, []Dependency{{Kind: DependencyPlugin, ID: "a"}}, 0))
	r.Add(mustMeta(t, "c", "1.0.0", nil, []Dependency{{Kind: DependencyPlugin, ID: "a"}}, 0))

	order, ok := r.Resolve()
	if ok {
		t.Fatal("cycle must be reported")
	}
	if len(order) != 3 {
		t.Fatalf("cycle must not drop nodes, got %v", order)
	}
	if len(r.Cycles()) == 0 {
		t.Error("Cycles() must name the offending ids")
	}
	if !logger.HasMessage("WARN", "Circular dependency detected") {
		t.Error("cycle diagnostic not logged")
	}

	again, _ := r.Resolve()
	if !reflect.DeepEqual(order, again) {
		t.Errorf("cyclic order must stay deterministic: %v vs %v", order, again)
	}
}

func TestServiceConflictFirstRegistrantWins(t *testing.T) {
	r := NewDependencyResolver(NewTestLogger())
	r.Add(mustMeta(t, "first", "1.0.0", []string{"cache"}, nil, 0))
	r.Add(mustMeta(t, "second", "1.0.0", []string{"cache"}, nil, 0))

	if got := r.ResolveServiceProvider("cache"); got != "first" {
		t.Errorf("provider = %q, want first registrant", got)
	}

	conflicts := r.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %v, want exactly one", conflicts)
	}
	if conflicts[0].Service != "cache" || conflicts[0].ProvidedBy != "first" || conflicts[0].RejectedBy != "second" {
		t.Errorf("conflict record = %+v", conflicts[0])
	}
}

func TestCheckDependencies(t *testing.T) {
	r := NewDependencyResolver(nil)
	r.Add(mustMeta(t, "base", "1.2.0", []string{"auth"}, nil, 0))

	tests := []struct {
		name     string
		requires []Dependency
		want     []string
	}{
		{
			name:     "all satisfied",
			requires: []Dependency{{Kind: DependencyPlugin, ID: "base"}, {Kind: DependencyService, ID: "auth"}},
			want:     nil,
		},
		{
			name:     "missing service",
			requires: []Dependency{{Kind: DependencyService, ID: "S"}},
			want:     []string{"service:S"},
		},
		{
			name:     "missing plugin",
			requires: []Dependency{{Kind: DependencyPlugin, ID: "ghost"}},
			want:     []string{"plugin:ghost"},
		},
		{
			name:     "version too old",
			requires: []Dependency{{Kind: DependencyPlugin, ID: "base", MinVersion: MustParseVersion("2.0.0")}},
			want:     []string{"plugin:base>=2.0.0"},
		},
		{
			name:     "min version satisfied",
			requires: []Dependency{{Kind: DependencyPlugin, ID: "base", MinVersion: MustParseVersion("1.0.0")}},
			want:     nil,
		},
		{
			name: "optional never reported",
			requires: []Dependency{
				{Kind: DependencyService, ID: "missing", Optional: true},
				{Kind: DependencyPlugin, ID: "ghost", Optional: true},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := mustMeta(t, "subject", "1.0.0", nil, tt.requires, 0)
			got := r.CheckDependencies(meta)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CheckDependencies = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolverRemoveReleasesServiceClaims(t *testing.T) {
	r := NewDependencyResolver(nil)
	r.Add(mustMeta(t, "provider", "1.0.0", []string{"storage"}, nil, 0))
	r.Remove("provider")

	if r.ResolveServiceProvider("storage") != "" {
		t.Error("removed plugin must release its service claim")
	}
	if order, _ := r.Resolve(); len(order) != 0 {
		t.Errorf("order after removal = %v, want empty", order)
	}
}
