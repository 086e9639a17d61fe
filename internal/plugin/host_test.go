package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubPlugin records lifecycle calls into a shared log.
type stubPlugin struct {
	id     string
	calls  *[]string
	onInit func(args []string, host *Host) InitResult
	intent ShutdownIntent
}

func (p *stubPlugin) record(ev string) {
	if p.calls != nil {
		*p.calls = append(*p.calls, ev+":"+p.id)
	}
}

func (p *stubPlugin) Init(args []string, host *Host) InitResult {
	p.record("init")
	if p.onInit != nil {
		return p.onInit(args, host)
	}
	return InitOK()
}

func (p *stubPlugin) ExtensionsInitialized() { p.record("ext") }

func (p *stubPlugin) DeferredInitialize() bool {
	p.record("deferred")
	return false
}

func (p *stubPlugin) ShutdownIntent() ShutdownIntent {
	p.record("shutdown")
	return p.intent
}

// stubModule / stubLoader / stubSession fake the module loader boundary.
type stubModule struct {
	doc     string
	plugin  Plugin
	openErr error
}

type stubLoader struct {
	modules  map[string]*stubModule
	sessions []*stubSession
}

func (l *stubLoader) CanLoad(path string) bool {
	_, ok := l.modules[path]
	return ok
}

func (l *stubLoader) Open(path string) (ModuleSession, error) {
	mod, ok := l.modules[path]
	if !ok {
		return nil, errors.New("no such module")
	}
	if mod.openErr != nil {
		return nil, mod.openErr
	}
	s := &stubSession{path: path, mod: mod}
	l.sessions = append(l.sessions, s)
	return s, nil
}

type stubSession struct {
	path   string
	mod    *stubModule
	closed bool
}

func (s *stubSession) Path() string     { return s.path }
func (s *stubSession) Metadata() string { return s.mod.doc }

func (s *stubSession) Instance() (Plugin, bool) {
	if s.closed || s.mod.plugin == nil {
		return nil, false
	}
	return s.mod.plugin, true
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

// metaDoc builds a well-formed metadata document.
func metaDoc(name string, deps ...string) string {
	quoted := make([]string, len(deps))
	for i, d := range deps {
		quoted[i] = fmt.Sprintf("%q", d)
	}
	return fmt.Sprintf(`{"InterfaceId": %q, "MetaData": {"Name": %q, "Dependencies": [%s]}}`,
		InterfaceID, name, strings.Join(quoted, ", "))
}

// registerGraph registers descriptors with stub-plugin factories for each
// id -> deps declaration.
func registerGraph(t *testing.T, h *Host, graph map[string][]string, calls *[]string) map[string]*stubPlugin {
	t.Helper()
	plugins := make(map[string]*stubPlugin, len(graph))
	for id, deps := range graph {
		p := &stubPlugin{id: id, calls: calls}
		plugins[id] = p
		d := mustDescriptor(t, id, deps...)
		d.BindFactory(func() (Plugin, error) { return p, nil }, false)
		if err := h.RegisterDescriptor(d); err != nil {
			t.Fatalf("RegisterDescriptor(%q) error = %v", id, err)
		}
	}
	return plugins
}

func assertCalls(t *testing.T, got []string, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestHostRegisterDescriptorDuplicate(t *testing.T) {
	h := NewHost()
	first := mustDescriptor(t, "x")
	second := mustDescriptor(t, "x")

	if err := h.RegisterDescriptor(first); err != nil {
		t.Fatalf("RegisterDescriptor() error = %v", err)
	}
	if err := h.RegisterDescriptor(second); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("RegisterDescriptor() error = %v, want ErrDuplicateID", err)
	}

	got, ok := h.Descriptor("x")
	if !ok || got != first {
		t.Error("descriptor table does not hold exactly the first registration")
	}
}

func TestHostRegisterDescriptorNil(t *testing.T) {
	h := NewHost()
	if err := h.RegisterDescriptor(nil); err == nil {
		t.Error("RegisterDescriptor(nil) error = nil, want error")
	}
}

func TestRegisterPathsMixedCandidates(t *testing.T) {
	loader := &stubLoader{modules: map[string]*stubModule{
		"good":     {doc: metaDoc("good"), plugin: &stubPlugin{id: "good"}},
		"broken":   {openErr: errors.New("dlopen failed")},
		"badiface": {doc: `{"InterfaceId": "other/1", "MetaData": {"Name": "b"}}`},
		"garbled":  {doc: "{nope"},
		"nometa":   {doc: `{"InterfaceId": "` + InterfaceID + `"}`},
	}}
	h := NewHost(WithModuleLoader(loader))

	ok := h.RegisterPaths([]string{"good", "broken", "badiface", "garbled", "nometa"})
	if ok {
		t.Error("RegisterPaths() = true, want false with rejected candidates")
	}

	if _, found := h.Descriptor("good"); !found {
		t.Error("good candidate was not registered")
	}
	if got := len(h.LastErrors()); got != 4 {
		t.Errorf("LastErrors() has %d entries, want 4: %v", got, h.LastErrors())
	}
}

func TestRegisterPathsDuplicateName(t *testing.T) {
	firstPlugin := &stubPlugin{id: "x"}
	loader := &stubLoader{modules: map[string]*stubModule{
		"one": {doc: metaDoc("x"), plugin: firstPlugin},
		"two": {doc: metaDoc("x"), plugin: &stubPlugin{id: "x2"}},
	}}
	h := NewHost(WithModuleLoader(loader))

	if ok := h.RegisterPaths([]string{"one", "two"}); ok {
		t.Error("RegisterPaths() = true, want false")
	}

	errs := h.LastErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], "duplicate") {
		t.Errorf("LastErrors() = %v, want one duplicate-id error", errs)
	}

	// The first registration stands and resolves lookups.
	d, ok := h.Descriptor("x")
	if !ok {
		t.Fatal("Descriptor(x) not found")
	}
	if inst := d.Instantiate(); inst != Plugin(firstPlugin) {
		t.Error("descriptor for duplicate id is not bound to the first module")
	}

	// The rejected session must have been released.
	if len(loader.sessions) != 2 || !loader.sessions[1].closed {
		t.Error("second session was not closed on rejection")
	}
}

func TestRegisterPathsReplacesPriorRegistration(t *testing.T) {
	loader := &stubLoader{modules: map[string]*stubModule{
		"a": {doc: metaDoc("a"), plugin: &stubPlugin{id: "a"}},
		"b": {doc: metaDoc("b"), plugin: &stubPlugin{id: "b"}},
	}}
	h := NewHost(WithModuleLoader(loader))

	h.RegisterPaths([]string{"a"})
	h.RegisterPaths([]string{"b"})

	if _, ok := h.Descriptor("a"); ok {
		t.Error("descriptor from prior registration survived")
	}
	if _, ok := h.Descriptor("b"); !ok {
		t.Error("descriptor from current registration missing")
	}
	if !loader.sessions[0].closed {
		t.Error("session from prior registration was not closed")
	}
	if loader.sessions[1].closed {
		t.Error("session from current registration was closed")
	}
}

func TestResolveGraphDoesNotLoad(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{"a": nil, "b": {"a"}}, &calls)

	order, ok := h.ResolveGraph()
	if !ok {
		t.Fatalf("ResolveGraph() failed: %v", h.LastErrors())
	}
	assertOrder(t, order, []string{"a", "b"})
	if len(calls) != 0 {
		t.Errorf("ResolveGraph() touched plugins: %v", calls)
	}
	assertOrder(t, h.LoadOrder(), []string{"a", "b"})
}

func TestLoadPluginsTwoPhaseOrder(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"A", "B"},
	}, &calls)

	if !h.LoadPlugins(nil) {
		t.Fatalf("LoadPlugins() failed: %v", h.LastErrors())
	}

	assertCalls(t, calls, []string{
		"init:A", "init:B", "init:C",
		"ext:A", "ext:B", "ext:C",
		"deferred:A", "deferred:B", "deferred:C",
	})

	for _, id := range []string{"A", "B", "C"} {
		d, _ := h.Descriptor(id)
		if d.State() != StateInitialized {
			t.Errorf("descriptor %q state = %v, want %v", id, d.State(), StateInitialized)
		}
	}
}

func TestLoadPluginsPassesArgs(t *testing.T) {
	h := NewHost()
	var got []string
	p := &stubPlugin{id: "a", onInit: func(args []string, host *Host) InitResult {
		got = append([]string{}, args...)
		return InitOK()
	}}
	d := mustDescriptor(t, "a")
	d.BindFactory(func() (Plugin, error) { return p, nil }, false)
	if err := h.RegisterDescriptor(d); err != nil {
		t.Fatal(err)
	}

	h.LoadPlugins([]string{"--flag", "value"})

	if len(got) != 2 || got[0] != "--flag" || got[1] != "value" {
		t.Errorf("plugin saw args %v, want [--flag value]", got)
	}
}

func TestLoadPluginsFailFastOnInit(t *testing.T) {
	h := NewHost()
	var calls []string
	plugins := registerGraph(t, h, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	}, &calls)
	plugins["b"].onInit = func([]string, *Host) InitResult {
		return InitFailed("could not connect")
	}

	if h.LoadPlugins(nil) {
		t.Fatal("LoadPlugins() = true, want false")
	}

	// b's init ran; nothing after it was touched, and phase 2 never ran.
	assertCalls(t, calls, []string{"init:a", "init:b"})

	da, _ := h.Descriptor("a")
	if da.State() != StateInitialized {
		t.Errorf("a state = %v, want %v (no rollback)", da.State(), StateInitialized)
	}
	db, _ := h.Descriptor("b")
	if db.State() != StateFailed {
		t.Errorf("b state = %v, want %v", db.State(), StateFailed)
	}
	dc, _ := h.Descriptor("c")
	if dc.State() != StateDiscovered {
		t.Errorf("c state = %v, want untouched %v", dc.State(), StateDiscovered)
	}

	errs := h.LastErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], `"b"`) || !strings.Contains(errs[0], "could not connect") {
		t.Errorf("LastErrors() = %v, want one error naming b", errs)
	}
}

func TestLoadPluginsFailFastOnInstantiation(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{"a": nil, "c": {"b"}}, &calls)

	d := mustDescriptor(t, "b", "a")
	d.BindFactory(func() (Plugin, error) {
		return nil, errors.New("module export vanished")
	}, true)
	if err := h.RegisterDescriptor(d); err != nil {
		t.Fatal(err)
	}

	if h.LoadPlugins(nil) {
		t.Fatal("LoadPlugins() = true, want false")
	}

	assertCalls(t, calls, []string{"init:a"})
	errs := h.LastErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], `"b"`) || !strings.Contains(errs[0], "module export vanished") {
		t.Errorf("LastErrors() = %v, want instantiation error combining loader and descriptor text", errs)
	}
}

func TestLoadPluginsAbortsBeforeLoadingOnCycle(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}, &calls)

	if h.LoadPlugins(nil) {
		t.Fatal("LoadPlugins() = true, want false")
	}
	if len(calls) != 0 {
		t.Errorf("plugins touched despite ordering failure: %v", calls)
	}

	errs := h.LastErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], "a") || !strings.Contains(errs[0], "b") {
		t.Errorf("LastErrors() = %v, want cycle error through a and b", errs)
	}
}

func TestLoadPluginsAbortsOnMissingDependency(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{"a": {"ghost"}}, &calls)

	if h.LoadPlugins(nil) {
		t.Fatal("LoadPlugins() = true, want false")
	}
	if len(calls) != 0 {
		t.Errorf("plugins touched despite validation failure: %v", calls)
	}
	errs := h.LastErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], `"ghost"`) {
		t.Errorf("LastErrors() = %v, want missing-dependency error", errs)
	}
}

func TestLoadPluginsSkipsDisabled(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{
		"a": nil,
		"b": nil,
		"c": nil,
	}, &calls)
	db, _ := h.Descriptor("b")
	db.SetEnabled(false)

	if !h.LoadPlugins(nil) {
		t.Fatalf("LoadPlugins() failed: %v", h.LastErrors())
	}

	assertCalls(t, calls, []string{
		"init:a", "init:c",
		"ext:a", "ext:c",
		"deferred:a", "deferred:c",
	})

	// The disabled descriptor keeps its graph position.
	assertOrder(t, h.LoadOrder(), []string{"a", "b", "c"})
	if db.State() != StateDiscovered {
		t.Errorf("disabled descriptor state = %v, want %v", db.State(), StateDiscovered)
	}
}

func TestLastErrorsReplacedAcrossCycles(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{"a": {"ghost"}}, &calls)

	h.LoadPlugins(nil)
	if len(h.LastErrors()) == 0 {
		t.Fatal("first load recorded no errors")
	}

	registerGraph(t, h, map[string][]string{"ghost": nil}, &calls)
	if !h.LoadPlugins(nil) {
		t.Fatalf("second load failed: %v", h.LastErrors())
	}
	if errs := h.LastErrors(); len(errs) != 0 {
		t.Errorf("LastErrors() = %v, want cleared after successful cycle", errs)
	}
}

func TestLoadPluginsSharedObjectFlow(t *testing.T) {
	h := NewHost()
	var calls []string

	type service struct{ value string }
	producer := &stubPlugin{id: "producer", calls: &calls, onInit: func(_ []string, host *Host) InitResult {
		host.AddObject(&service{value: "shared"}, "svc")
		return InitOK()
	}}

	var seen *service
	consumer := &stubPlugin{id: "consumer", calls: &calls, onInit: func(_ []string, host *Host) InitResult {
		obj, ok := host.GetObject("svc")
		if !ok {
			return InitFailed("service not published by dependency")
		}
		seen = obj.(*service)
		return InitOK()
	}}

	dp := mustDescriptor(t, "producer")
	dp.BindFactory(func() (Plugin, error) { return producer, nil }, false)
	dc := mustDescriptor(t, "consumer", "producer")
	dc.BindFactory(func() (Plugin, error) { return consumer, nil }, false)
	if err := h.RegisterDescriptor(dp); err != nil {
		t.Fatal(err)
	}
	if err := h.RegisterDescriptor(dc); err != nil {
		t.Fatal(err)
	}

	if !h.LoadPlugins(nil) {
		t.Fatalf("LoadPlugins() failed: %v", h.LastErrors())
	}
	if seen == nil || seen.value != "shared" {
		t.Errorf("consumer saw %v, want the producer's shared service", seen)
	}
}

func TestHostEvents(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{"a": nil}, &calls)

	var events []EventType
	unsubscribe := h.Subscribe(func(event HostEvent) {
		events = append(events, event.Type)
	})

	h.LoadPlugins(nil)

	want := []EventType{EventPluginInstantiated, EventPluginInitialized}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %v, want %v", i, events[i], want[i])
		}
	}

	unsubscribe()
	h.LoadPlugins(nil)
	if len(events) != len(want) {
		t.Error("handler still invoked after unsubscribe")
	}
}

func TestHostEventHandlerPanicRecovered(t *testing.T) {
	h := NewHost()
	var calls []string
	registerGraph(t, h, map[string][]string{"a": nil}, &calls)

	h.Subscribe(func(HostEvent) {
		panic("handler bug")
	})

	if !h.LoadPlugins(nil) {
		t.Errorf("LoadPlugins() failed because of a handler panic: %v", h.LastErrors())
	}
}

func TestTeardownOrdering(t *testing.T) {
	loader := &stubLoader{modules: map[string]*stubModule{
		"a": {doc: metaDoc("a"), plugin: &stubPlugin{id: "a", intent: ShutdownAsync}},
		"b": {doc: metaDoc("b", "a"), plugin: &stubPlugin{id: "b"}},
	}}
	h := NewHost(WithModuleLoader(loader))
	h.RegisterPaths([]string{"a", "b"})

	if !h.LoadPlugins(nil) {
		t.Fatalf("LoadPlugins() failed: %v", h.LastErrors())
	}
	h.AddObject(&greetService{msg: "hi"}, "svc")

	h.Teardown()

	for _, s := range loader.sessions {
		if !s.closed {
			t.Errorf("session %q not closed on teardown", s.path)
		}
	}
	if h.Registry().Len() != 0 {
		t.Errorf("registry holds %d objects after teardown, want 0", h.Registry().Len())
	}
	if _, ok := h.Descriptor("a"); ok {
		t.Error("descriptor table not cleared on teardown")
	}
}

func TestDiscoverPaths(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	write := func(dir, name string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("-- module"), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	aFirst := write(first, "a.mod")
	write(second, "a.mod") // shadowed: first search path wins
	bSecond := write(second, "b.mod")
	write(first, "notes.txt") // filtered out by CanLoad

	h := NewHost(
		WithModuleLoader(extLoader{}),
		WithSearchPaths(first, second, filepath.Join(first, "missing")),
	)

	got := h.DiscoverPaths()
	assertOrder(t, got, []string{aFirst, bSecond})
}

// extLoader accepts .mod files; Open is never reached in discovery tests.
type extLoader struct{}

func (extLoader) CanLoad(path string) bool {
	return filepath.Ext(path) == ".mod"
}

func (extLoader) Open(path string) (ModuleSession, error) {
	return nil, errors.New("unused")
}
