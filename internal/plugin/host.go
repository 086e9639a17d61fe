package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Host owns the descriptor table and the shared object registry, and
// orchestrates discovery, registration, dependency resolution, and two-phase
// initialization. It is the single entry point other components call
// through.
//
// Construct exactly one Host per process and pass it by reference to every
// call site; that convention replaces a process-global singleton. All host
// operations are synchronous and serialized: every call into a plugin blocks
// until it returns, and ordering between plugin initializations follows the
// computed load order exactly.
type Host struct {
	mu sync.RWMutex

	loader      ModuleLoader
	searchPaths []string

	table      map[string]*Descriptor
	loadOrder  []string
	lastErrors []string

	registry *ObjectRegistry
	sessions map[string]ModuleSession

	handlers []EventHandler
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithModuleLoader sets the module loader consulted for path registration.
func WithModuleLoader(loader ModuleLoader) HostOption {
	return func(h *Host) {
		h.loader = loader
	}
}

// WithSearchPaths sets the initial module search paths.
func WithSearchPaths(paths ...string) HostOption {
	return func(h *Host) {
		h.searchPaths = append([]string{}, paths...)
	}
}

// NewHost creates a plugin host.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		table:    make(map[string]*Descriptor),
		registry: NewObjectRegistry(),
		sessions: make(map[string]ModuleSession),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventHandler handles host events. Handlers must be non-blocking and must
// not call back into the Host. Panics in handlers are recovered.
type EventHandler func(event HostEvent)

// HostEvent describes one observable host occurrence.
type HostEvent struct {
	Type   EventType
	Plugin string
	Path   string
	Err    error
}

// EventType is the type of host event.
type EventType int

const (
	// EventPluginRegistered is emitted when a candidate becomes a descriptor.
	EventPluginRegistered EventType = iota
	// EventPluginRejected is emitted when a candidate path is rejected.
	EventPluginRejected
	// EventPluginSkipped is emitted when a disabled plugin is skipped at load.
	EventPluginSkipped
	// EventPluginInstantiated is emitted when a factory produced an instance.
	EventPluginInstantiated
	// EventPluginInitialized is emitted after first-phase initialization.
	EventPluginInitialized
	// EventLoadAborted is emitted when the whole load aborts.
	EventLoadAborted
	// EventPluginError is emitted when a plugin-level error is recorded.
	EventPluginError
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventPluginRegistered:
		return "registered"
	case EventPluginRejected:
		return "rejected"
	case EventPluginSkipped:
		return "skipped"
	case EventPluginInstantiated:
		return "instantiated"
	case EventPluginInitialized:
		return "initialized"
	case EventLoadAborted:
		return "load-aborted"
	case EventPluginError:
		return "error"
	default:
		return "unknown"
	}
}

// Subscribe adds an event handler and returns an unsubscribe function.
func (h *Host) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	h.mu.Lock()
	h.handlers = append(h.handlers, handler)
	index := len(h.handlers) - 1
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if index < len(h.handlers) {
			h.handlers[index] = nil
		}
	}
}

// emitEvent sends an event to all handlers outside the host lock.
func (h *Host) emitEvent(event HostEvent) {
	h.mu.RLock()
	handlers := make([]EventHandler, len(h.handlers))
	copy(handlers, h.handlers)
	h.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				recover() // handler panics must not break the load path
			}()
			handler(event)
		}()
	}
}

// SetSearchPaths replaces the module search paths.
func (h *Host) SetSearchPaths(paths ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.searchPaths = append([]string{}, paths...)
}

// SearchPaths returns the configured search paths.
func (h *Host) SearchPaths() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string{}, h.searchPaths...)
}

// DiscoverPaths scans the search paths for candidate module paths, filtered
// through the module loader's CanLoad. Duplicate basenames resolve to the
// first search path that carries them; results are sorted. A missing search
// directory is not an error.
func (h *Host) DiscoverPaths() []string {
	h.mu.RLock()
	paths := append([]string{}, h.searchPaths...)
	loader := h.loader
	h.mu.RUnlock()

	if loader == nil {
		return nil
	}

	seen := make(map[string]bool)
	var found []string
	for _, base := range paths {
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			candidate := filepath.Join(base, entry.Name())
			if !loader.CanLoad(candidate) {
				continue
			}
			if seen[entry.Name()] {
				continue
			}
			seen[entry.Name()] = true
			found = append(found, candidate)
		}
	}

	sort.Strings(found)
	return found
}

// RegisterDescriptor adds a pre-built descriptor to the table. The id must
// be valid and not already registered; the first registration of an id
// stands.
func (h *Host) RegisterDescriptor(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidID)
	}
	if err := ValidateID(d.ID()); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.table[d.ID()]; exists {
		return fmt.Errorf("plugin %q: %w", d.ID(), ErrDuplicateID)
	}
	h.table[d.ID()] = d
	return nil
}

// RegisterPaths performs a full registration from candidate module paths.
// It first resets all registration-derived state - the descriptor table,
// the prior load order, the prior error list, loader session bindings -
// so registration replaces rather than accumulates.
//
// Each candidate is consulted through the module loader. A candidate is
// rejected - with an error recorded and the remaining paths still processed
// - when the path is not a loadable module, the metadata is unreadable, the
// declared interface id does not match InterfaceID, the metadata object is
// absent, the declared name fails identity validation, or the name collides
// with an already-registered id. Successful candidates become descriptors
// bound to a factory that asks the module session for its exported instance.
//
// It returns true when every candidate registered cleanly; on false the
// last-error list names each rejected candidate.
func (h *Host) RegisterPaths(paths []string) bool {
	h.resetRegistration()

	h.mu.RLock()
	loader := h.loader
	h.mu.RUnlock()

	var errs []string
	fail := func(path string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", path, err))
		h.emitEvent(HostEvent{Type: EventPluginRejected, Path: path, Err: err})
	}

	for _, path := range paths {
		if loader == nil {
			fail(path, ErrUnloadableModule)
			continue
		}

		session, err := loader.Open(path)
		if err != nil {
			fail(path, fmt.Errorf("%w: %v", ErrUnloadableModule, err))
			continue
		}

		md, err := ParseMetadata(session.Metadata())
		if err != nil {
			fail(path, err)
			session.Close()
			continue
		}

		h.mu.Lock()
		if _, exists := h.table[md.Name]; exists {
			h.mu.Unlock()
			fail(path, fmt.Errorf("plugin %q: %w", md.Name, ErrDuplicateID))
			session.Close()
			continue
		}

		d := &Descriptor{
			id:      md.Name,
			deps:    md.Dependencies,
			state:   StateDiscovered,
			enabled: true,
		}
		d.BindFactory(sessionFactory(session), true)
		h.table[md.Name] = d
		h.sessions[md.Name] = session
		h.mu.Unlock()

		h.emitEvent(HostEvent{Type: EventPluginRegistered, Plugin: md.Name, Path: path})
	}

	h.mu.Lock()
	h.lastErrors = errs
	h.mu.Unlock()
	return len(errs) == 0
}

// sessionFactory builds the factory closure for a loader-owned module. The
// session retains ownership of the instance; the closure only surfaces it,
// reporting ErrNoInstance when the module exports nothing satisfying the
// plugin contract.
func sessionFactory(session ModuleSession) Factory {
	return func() (Plugin, error) {
		inst, ok := session.Instance()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoInstance, session.Path())
		}
		return inst, nil
	}
}

// resetRegistration clears registration-derived state: descriptor table,
// load order, error list, and loader sessions. The object registry survives;
// it is owned by the host lifetime, not the registration cycle.
func (h *Host) resetRegistration() {
	h.mu.Lock()
	sessions := h.sessions
	h.table = make(map[string]*Descriptor)
	h.sessions = make(map[string]ModuleSession)
	h.loadOrder = nil
	h.lastErrors = nil
	h.mu.Unlock()

	for _, id := range sortedSessionIDs(sessions) {
		sessions[id].Close()
	}
}

func sortedSessionIDs(sessions map[string]ModuleSession) []string {
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveGraph validates the dependency graph and computes the load order
// without loading anything. On success it returns the order and true; on
// failure it populates the last-error list and returns false.
func (h *Host) ResolveGraph() ([]string, bool) {
	h.mu.Lock()
	h.lastErrors = nil
	table := h.table
	h.mu.Unlock()

	if errs := ValidateGraph(table); len(errs) > 0 {
		h.mu.Lock()
		h.lastErrors = errs
		h.mu.Unlock()
		return nil, false
	}

	order, err := ComputeLoadOrder(table)
	if err != nil {
		h.mu.Lock()
		h.lastErrors = []string{err.Error()}
		h.mu.Unlock()
		return nil, false
	}

	h.mu.Lock()
	h.loadOrder = order
	h.mu.Unlock()
	return append([]string{}, order...), true
}

// LoadPlugins drives every registered plugin through instantiation and
// two-phase initialization in resolved dependency order, passing args to
// each plugin's first-phase Init.
//
// Loading is fail-fast: the first instantiation or initialization failure
// records a host-level error naming the plugin and aborts the entire load.
// No plugin after the failing one is touched, and already-initialized
// plugins are left initialized - there is no rollback. Disabled descriptors
// keep their graph position but are skipped.
//
// After every enabled plugin completes phase one, a second pass notifies
// each instance that extensions are initialized, in the same order, and a
// final pass offers deferred initialization.
func (h *Host) LoadPlugins(args []string) bool {
	order, ok := h.ResolveGraph()
	if !ok {
		h.emitEvent(HostEvent{Type: EventLoadAborted})
		return false
	}

	h.mu.RLock()
	table := h.table
	h.mu.RUnlock()

	// Phase 1: instantiate and initialize in dependency order.
	for _, id := range order {
		d := table[id]
		if !d.Enabled() {
			h.emitEvent(HostEvent{Type: EventPluginSkipped, Plugin: id})
			continue
		}

		inst := d.Instantiate()
		if inst == nil {
			err := fmt.Errorf("failed to instantiate plugin %q: %s", id, d.ErrorText())
			h.abortLoad(id, err)
			return false
		}
		h.emitEvent(HostEvent{Type: EventPluginInstantiated, Plugin: id})

		result := inst.Init(args, h)
		if !result.OK {
			for _, msg := range result.Messages {
				d.AddError(msg)
			}
			if len(result.Messages) == 0 {
				d.AddError("initialization failed")
			}
			err := fmt.Errorf("failed to initialize plugin %q: %s", id, d.ErrorText())
			h.abortLoad(id, err)
			return false
		}

		d.MarkInitialized()
		h.emitEvent(HostEvent{Type: EventPluginInitialized, Plugin: id})
	}

	// Phase 2: every instance is live; plugins may now wire cross-references.
	for _, id := range order {
		if inst := liveInstance(table[id]); inst != nil {
			inst.ExtensionsInitialized()
		}
	}

	// Deferred initialization after all eager plugins are up. Advisory.
	for _, id := range order {
		if inst := liveInstance(table[id]); inst != nil {
			inst.DeferredInitialize()
		}
	}

	return true
}

// liveInstance returns the instance of an enabled, live descriptor.
func liveInstance(d *Descriptor) Plugin {
	if !d.Enabled() || !d.State().Live() {
		return nil
	}
	return d.Instance()
}

// abortLoad records the host-level error for a failed plugin and emits the
// abort events.
func (h *Host) abortLoad(id string, err error) {
	h.mu.Lock()
	h.lastErrors = append(h.lastErrors, err.Error())
	h.mu.Unlock()

	h.emitEvent(HostEvent{Type: EventPluginError, Plugin: id, Err: err})
	h.emitEvent(HostEvent{Type: EventLoadAborted, Plugin: id, Err: err})
}

// Descriptor returns the descriptor registered under id.
func (h *Host) Descriptor(id string) (*Descriptor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.table[id]
	return d, ok
}

// Descriptors returns all descriptors, in load order where one has been
// computed and lexicographic id order otherwise.
func (h *Host) Descriptors() []*Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := h.loadOrder
	if len(ids) != len(h.table) {
		ids = sortedIDs(h.table)
	}

	out := make([]*Descriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := h.table[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// LoadOrder returns the last computed load order.
func (h *Host) LoadOrder() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string{}, h.loadOrder...)
}

// LastErrors returns the error list from the most recent registration or
// load cycle. The list is replaced, never appended to, across cycles.
func (h *Host) LastErrors() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string{}, h.lastErrors...)
}

// AddObject registers a shared object in the object registry. Panics on
// misuse; see ObjectRegistry.
func (h *Host) AddObject(obj any, name string) {
	h.registry.AddObject(obj, name)
}

// RemoveObject removes a shared object from the object registry. Panics on
// misuse; see ObjectRegistry.
func (h *Host) RemoveObject(obj any) {
	h.registry.RemoveObject(obj)
}

// GetObject returns the first shared object registered under name.
func (h *Host) GetObject(name string) (any, bool) {
	return h.registry.GetObject(name)
}

// Registry returns the shared object registry.
func (h *Host) Registry() *ObjectRegistry {
	return h.registry
}

// Teardown shuts the host down. Each live plugin's shutdown intent is
// queried - an asynchronous intent is recorded but never awaited - and then
// references are released in an order that prevents use-after-free: first
// the host drops every instance reference it holds (for host-owned
// instances this is the final reference), then loader sessions are closed
// (invalidating the instances they own), and finally the object registry is
// cleared.
func (h *Host) Teardown() {
	h.mu.Lock()
	order := h.loadOrder
	if len(order) != len(h.table) {
		order = sortedIDs(h.table)
	}
	// Reverse load order: dependents release before their dependencies.
	reversed := make([]string, len(order))
	for i, id := range order {
		reversed[len(order)-1-i] = id
	}
	table := h.table
	sessions := h.sessions
	h.table = make(map[string]*Descriptor)
	h.sessions = make(map[string]ModuleSession)
	h.loadOrder = nil
	h.mu.Unlock()

	for _, id := range reversed {
		d, ok := table[id]
		if !ok {
			continue
		}
		if inst := d.Instance(); inst != nil {
			if inst.ShutdownIntent() == ShutdownAsync {
				if notifier, ok := inst.(ShutdownNotifier); ok {
					notifier.OnShutdownComplete(func() {})
				}
			}
		}
		d.releaseInstance()
	}

	for _, id := range sortedSessionIDs(sessions) {
		sessions[id].Close()
	}

	h.registry.reset()
}
