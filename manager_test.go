// manager_test.go: Test suite for the plugin lifecycle manager
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// fakePlugin records lifecycle calls for assertions.
type fakePlugin struct {
	id        string
	namespace string
	entry     string

	failInitialize bool
	failStart      bool
	panicOnStop    bool

	registry *ServiceRegistry
	calls    *callRecorder
}

func (p *fakePlugin) Initialize(registry *ServiceRegistry) bool {
	p.calls.record(p.id + ":initialize")
	p.registry = registry
	if p.failInitialize {
		return false
	}
	if registry != nil {
		registry.Register("service-of-"+p.id, p)
	}
	return true
}

func (p *fakePlugin) Start() bool {
	p.calls.record(p.id + ":start")
	return !p.failStart
}

func (p *fakePlugin) Stop() {
	p.calls.record(p.id + ":stop")
	if p.panicOnStop {
		panic("stop exploded")
	}
}

func (p *fakePlugin) ModuleNamespace() string { return p.namespace }
func (p *fakePlugin) EntryPoint() string      { return p.entry }

// fakeLoadable simulates module activation without touching any real library.
type fakeLoadable struct {
	plugin   *fakePlugin
	failLoad bool
	calls    *callRecorder
}

func (l *fakeLoadable) Load() bool {
	l.calls.record(l.plugin.id + ":load")
	return !l.failLoad
}

func (l *fakeLoadable) Unload() {
	l.calls.record(l.plugin.id + ":unload")
}

func (l *fakeLoadable) Instance() Plugin    { return l.plugin }
func (l *fakeLoadable) ErrorString() string { return "simulated load failure" }

// callRecorder captures the global invocation sequence across all fakes.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// managerFixture wires a manager over a temp manifest directory with fake
// loadables injected through the factory.
type managerFixture struct {
	manager  *LifecycleManager
	registry *ServiceRegistry
	logger   *TestLogger
	recorder *callRecorder
	dir      string
	fakes    map[string]*fakeLoadable
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		registry: NewServiceRegistry(),
		logger:   NewTestLogger(),
		recorder: &callRecorder{},
		dir:      t.TempDir(),
		fakes:    make(map[string]*fakeLoadable),
	}
	factory := func(manifestPath string, meta *PluginMetadata) (Loadable, error) {
		if fake, ok := f.fakes[meta.ID()]; ok {
			return fake, nil
		}
		fake := &fakeLoadable{
			plugin: &fakePlugin{id: meta.ID(), calls: f.recorder},
			calls:  f.recorder,
		}
		f.fakes[meta.ID()] = fake
		return fake, nil
	}
	f.manager = NewLifecycleManager(f.registry, factory, f.logger)
	return f
}

// addManifest drops a manifest file into the discovery directory and
// pre-registers a fake loadable the factory will hand out.
func (f *managerFixture) addManifest(t *testing.T, id string, manifest string, fake *fakeLoadable) {
	t.Helper()
	if fake != nil {
		fake.calls = f.recorder
		fake.plugin.calls = f.recorder
		f.fakes[id] = fake
	}
	path := filepath.Join(f.dir, id+".json")
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func simpleManifest(id string) string {
	return fmt.Sprintf(`{"id": %q, "version": "1.0.0"}`, id)
}

func (f *managerFixture) mustState(t *testing.T, id string, want PluginState) {
	t.Helper()
	state, ok := f.manager.State(id)
	if !ok {
		t.Fatalf("plugin %s unknown to manager", id)
	}
	if state != want {
		t.Fatalf("plugin %s in state %s, want %s", id, state, want)
	}
}

func TestManagerFullLifecycle(t *testing.T) {
	f := newManagerFixture(t)
	f.addManifest(t, "alpha", simpleManifest("alpha"), nil)
	f.addManifest(t, "beta", simpleManifest("beta"), nil)

	if count := f.manager.Discover(f.dir); count != 2 {
		t.Fatalf("Discover = %d, want 2", count)
	}
	f.mustState(t, "alpha", StateDiscovered)

	if !f.manager.LoadAll() {
		t.Fatal("LoadAll must succeed")
	}
	f.mustState(t, "alpha", StateLoaded)

	if !f.manager.InitializeAll() {
		t.Fatal("InitializeAll must succeed")
	}
	f.mustState(t, "beta", StateInitialized)

	if _, ok := f.registry.Lookup("service-of-alpha"); !ok {
		t.Error("plugins must register services during initialize")
	}

	if !f.manager.StartAll() {
		t.Fatal("StartAll must succeed")
	}
	f.mustState(t, "alpha", StateStarted)

	f.manager.StopAll()
	f.mustState(t, "alpha", StateInitialized)

	f.manager.UnloadAll()
	if ids := f.manager.IDs(); len(ids) != 0 {
		t.Errorf("UnloadAll must clear the id table, got %v", ids)
	}
}

func TestManagerDiscoverSkipsBadCandidates(t *testing.T) {
	f := newManagerFixture(t)
	f.addManifest(t, "good", simpleManifest("good"), nil)
	f.addManifest(t, "noid", `{"version": "1.0.0"}`, nil)
	f.addManifest(t, "badversion", `{"id": "badversion", "version": "banana"}`, nil)
	f.addManifest(t, "selfdep", `{"id": "selfdep", "version": "1.0.0", "requires": [{"type": "plugin", "id": "selfdep"}]}`, nil)
	f.addManifest(t, "garbage", `{{{`, nil)

	if count := f.manager.Discover(f.dir); count != 1 {
		t.Fatalf("Discover = %d, want only the valid candidate accepted", count)
	}
	if _, ok := f.manager.State("good"); !ok {
		t.Error("valid plugin must be discovered")
	}
	if _, ok := f.manager.State("selfdep"); ok {
		t.Error("self-dependent plugin must never enter the graph")
	}
}

func TestManagerDiscoverDuplicateKeepsFirst(t *testing.T) {
	f := newManagerFixture(t)
	f.addManifest(t, "dup", simpleManifest("dup"), nil)
	if f.manager.Discover(f.dir) != 1 {
		t.Fatal("first discovery must accept the plugin")
	}

	other := t.TempDir()
	if err := os.WriteFile(filepath.Join(other, "dup.json"), []byte(simpleManifest("dup")), 0o600); err != nil {
		t.Fatal(err)
	}
	if count := f.manager.Discover(other); count != 0 {
		t.Fatalf("duplicate id must be skipped, Discover = %d", count)
	}
}

func TestManagerDiscoverUnreadableDirectory(t *testing.T) {
	f := newManagerFixture(t)
	if count := f.manager.Discover(filepath.Join(f.dir, "does-not-exist")); count != 0 {
		t.Fatalf("Discover on missing dir = %d, want 0", count)
	}
}

func TestManagerLoadOrderFollowsDependencies(t *testing.T) {
	f := newManagerFixture(t)
	// consumer first in the directory listing, provider second; the service
	// edge must still load the provider first.
	f.addManifest(t, "a-consumer", `{"id": "a-consumer", "version": "1.0.0", "requires": [{"type": "service", "id": "storage"}]}`, nil)
	f.addManifest(t, "z-provider", `{"id": "z-provider", "version": "1.0.0", "provides": ["storage"]}`, nil)

	f.manager.Discover(f.dir)
	if !f.manager.LoadAll() {
		t.Fatal("LoadAll must succeed")
	}

	seq := f.recorder.sequence()
	if indexOf(seq, "z-provider:load") > indexOf(seq, "a-consumer:load") {
		t.Errorf("provider must load before consumer, sequence: %v", seq)
	}
}

func TestManagerUnsatisfiedDependencySkipsOnlyThatPlugin(t *testing.T) {
	f := newManagerFixture(t)
	f.addManifest(t, "healthy", simpleManifest("healthy"), nil)
	f.addManifest(t, "broken", `{"id": "broken", "version": "1.0.0", "requires": [{"type": "service", "id": "nowhere"}]}`, nil)

	f.manager.Discover(f.dir)
	if f.manager.LoadAll() {
		t.Fatal("LoadAll must report aggregate failure")
	}

	f.mustState(t, "healthy", StateLoaded)
	f.mustState(t, "broken", StateDiscovered)

	if err := f.manager.LastError("broken"); err == nil {
		t.Error("broken plugin must carry an unsatisfied-dependency error")
	}
	if got := f.manager.CheckDependencies("broken"); len(got) != 1 || got[0] != "service:nowhere" {
		t.Errorf("CheckDependencies = %v, want [service:nowhere]", got)
	}
}

func TestManagerLoadFailureContained(t *testing.T) {
	f := newManagerFixture(t)
	failing := &fakeLoadable{plugin: &fakePlugin{id: "failing"}, failLoad: true}
	f.addManifest(t, "failing", simpleManifest("failing"), failing)
	f.addManifest(t, "fine", simpleManifest("fine"), nil)

	f.manager.Discover(f.dir)
	if f.manager.LoadAll() {
		t.Fatal("LoadAll must report aggregate failure")
	}
	f.mustState(t, "fine", StateLoaded)
	f.mustState(t, "failing", StateDiscovered)
}

func TestManagerInitializeFailureDoesNotHaltSweep(t *testing.T) {
	f := newManagerFixture(t)
	bad := &fakeLoadable{plugin: &fakePlugin{id: "bad", failInitialize: true}}
	f.addManifest(t, "bad", simpleManifest("bad"), bad)
	f.addManifest(t, "good", simpleManifest("good"), nil)

	f.manager.Discover(f.dir)
	f.manager.LoadAll()
	if f.manager.InitializeAll() {
		t.Fatal("InitializeAll must report aggregate failure")
	}
	f.mustState(t, "bad", StateLoaded)
	f.mustState(t, "good", StateInitialized)

	// A failed plugin never advances to Started either.
	f.manager.StartAll()
	f.mustState(t, "bad", StateLoaded)
	f.mustState(t, "good", StateStarted)
}

func TestManagerStopReversesStartOrder(t *testing.T) {
	f := newManagerFixture(t)
	f.addManifest(t, "app", `{"id": "app", "version": "1.0.0", "requires": [{"type": "plugin", "id": "base"}]}`, nil)
	f.addManifest(t, "base", simpleManifest("base"), nil)

	f.manager.Discover(f.dir)
	f.manager.LoadAll()
	f.manager.InitializeAll()
	f.manager.StartAll()
	f.manager.StopAll()

	seq := f.recorder.sequence()
	if indexOf(seq, "base:start") > indexOf(seq, "app:start") {
		t.Errorf("base must start before app: %v", seq)
	}
	if indexOf(seq, "app:stop") > indexOf(seq, "base:stop") {
		t.Errorf("app must stop before base: %v", seq)
	}
}

func TestManagerStopPanicContained(t *testing.T) {
	f := newManagerFixture(t)
	volatile := &fakeLoadable{plugin: &fakePlugin{id: "volatile", panicOnStop: true}}
	f.addManifest(t, "volatile", simpleManifest("volatile"), volatile)
	f.addManifest(t, "calm", simpleManifest("calm"), nil)

	f.manager.Discover(f.dir)
	f.manager.LoadAll()
	f.manager.InitializeAll()
	f.manager.StartAll()
	f.manager.StopAll() // must not panic

	f.mustState(t, "volatile", StateInitialized)
	f.mustState(t, "calm", StateInitialized)
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	f := newManagerFixture(t)
	f.addManifest(t, "alpha", simpleManifest("alpha"), nil)

	f.manager.Discover(f.dir)
	f.manager.LoadAll()
	f.manager.InitializeAll()
	f.manager.StartAll()

	f.manager.Close()
	f.manager.Close()

	seq := f.recorder.sequence()
	stops, unloads := 0, 0
	for _, call := range seq {
		switch call {
		case "alpha:stop":
			stops++
		case "alpha:unload":
			unloads++
		}
	}
	if stops != 1 || unloads != 1 {
		t.Errorf("Close must stop and unload exactly once, got stops=%d unloads=%d", stops, unloads)
	}
}

func TestManagerQuerySurface(t *testing.T) {
	f := newManagerFixture(t)
	shaped := &fakeLoadable{plugin: &fakePlugin{id: "shaped", namespace: "Example.Shaped", entry: "Main.qml"}}
	f.addManifest(t, "shaped", simpleManifest("shaped"), shaped)

	f.manager.Discover(f.dir)

	// Not loaded yet: no namespace, no entry point.
	if ns := f.manager.ModuleNamespaces(); len(ns) != 0 {
		t.Errorf("namespaces before load = %v, want none", ns)
	}
	if ep := f.manager.EntryPoint("shaped"); ep != "" {
		t.Errorf("entry point before load = %q, want empty", ep)
	}

	f.manager.LoadAll()

	if ns := f.manager.ModuleNamespaces(); len(ns) != 1 || ns[0] != "Example.Shaped" {
		t.Errorf("namespaces = %v", ns)
	}
	if ep := f.manager.EntryPoint("shaped"); ep != "Main.qml" {
		t.Errorf("entry point = %q", ep)
	}
	if ep := f.manager.EntryPoint("unknown"); ep != "" {
		t.Errorf("unknown plugin entry point = %q, want empty", ep)
	}

	meta, ok := f.manager.Metadata("shaped")
	if !ok || meta.ID() != "shaped" {
		t.Error("Metadata must return the discovered record")
	}
	if order, ok := f.manager.LoadOrder(); !ok || len(order) != 1 {
		t.Errorf("LoadOrder = %v, %v", order, ok)
	}
}

func TestManagerLifecycleEvents(t *testing.T) {
	f := newManagerFixture(t)
	f.addManifest(t, "alpha", simpleManifest("alpha"), nil)

	var mu sync.Mutex
	events := make(map[string]int)
	done := make(chan struct{}, 16)
	f.manager.AddLifecycleHandler(func(event LifecycleEvent) {
		mu.Lock()
		events[event.Type]++
		mu.Unlock()
		done <- struct{}{}
	})

	f.manager.Discover(f.dir)
	f.manager.LoadAll()
	f.manager.InitializeAll()
	f.manager.StartAll()
	f.manager.Close()

	// discovered, loaded, initialized, started, stopped, unloaded
	for i := 0; i < 6; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	for _, want := range []string{
		EventPluginDiscovered, EventPluginLoaded, EventPluginInitialized,
		EventPluginStarted, EventPluginStopped, EventPluginUnloaded,
	} {
		if events[want] != 1 {
			t.Errorf("event %s seen %d times, want 1", want, events[want])
		}
	}
}
