package plugin

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// idPattern validates plugin ids: letters, digits, underscore, hyphen, dot.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateID checks that id is a legal plugin identity.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// normalizeDeps trims, drops empty entries, deduplicates, and sorts the
// declared dependency ids. The order carries no semantics; it only keeps
// error and debug output deterministic.
func normalizeDeps(deps []string) []string {
	seen := make(map[string]bool, len(deps))
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		dep = strings.TrimSpace(dep)
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// Factory produces a plugin instance on demand. A factory bound by a module
// loader returns the module's exported instance; the error carries the
// loader-reported reason when no instance can be produced.
type Factory func() (Plugin, error)

// Descriptor is the host's record of one plugin: identity, declared
// dependencies, lifecycle state, accumulated errors, and the lazily-created
// plugin instance.
//
// The descriptor owns its state and error list exclusively. It owns the
// plugin instance only if the instance was not produced by a module loader;
// a loader-owned instance is a non-owning reference valid while the loader
// session stays open.
type Descriptor struct {
	mu sync.RWMutex

	id   string
	deps []string

	state   State
	errs    []string
	enabled bool

	factory     Factory
	loaderOwned bool
	instance    Plugin
}

// NewDescriptor creates a descriptor in StateDiscovered. The id must pass
// identity validation; dependencies are normalized.
func NewDescriptor(id string, deps []string) (*Descriptor, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return &Descriptor{
		id:      id,
		deps:    normalizeDeps(deps),
		state:   StateDiscovered,
		enabled: true,
	}, nil
}

// ID returns the plugin identity. Immutable after creation.
func (d *Descriptor) ID() string {
	return d.id
}

// Dependencies returns a copy of the normalized dependency set.
func (d *Descriptor) Dependencies() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string{}, d.deps...)
}

// State returns the current lifecycle state.
func (d *Descriptor) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Errors returns a copy of the accumulated error messages.
func (d *Descriptor) Errors() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string{}, d.errs...)
}

// ErrorText returns the accumulated error messages joined for display.
func (d *Descriptor) ErrorText() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return strings.Join(d.errs, "; ")
}

// Enabled reports whether the plugin participates in loading. A disabled
// descriptor keeps its position in the dependency graph.
func (d *Descriptor) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled sets the enabled flag.
func (d *Descriptor) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// BindFactory binds the factory that produces the plugin instance.
// loaderOwned marks the instance as owned by a module loader session; the
// descriptor then holds only a non-owning reference.
func (d *Descriptor) BindFactory(f Factory, loaderOwned bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factory = f
	d.loaderOwned = loaderOwned
}

// LoaderOwned reports whether the instance is owned by a module loader.
func (d *Descriptor) LoaderOwned() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaderOwned
}

// Instance returns the cached plugin instance, or nil if none exists.
func (d *Descriptor) Instance() Plugin {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.instance
}

// Instantiate produces the plugin instance. It is idempotent: once the
// instance exists, repeated calls return the same handle; once the
// descriptor has failed, calls return nil permanently. On first call it
// invokes the bound factory, failing (and transitioning to StateFailed) if
// no factory is bound or the factory yields no instance.
func (d *Descriptor) Instantiate() Plugin {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateInstantiated, StateInitialized:
		return d.instance
	case StateFailed:
		return nil
	}

	if d.factory == nil {
		d.fail(ErrNoFactory.Error())
		return nil
	}

	inst, err := d.factory()
	if err != nil {
		d.fail(err.Error())
		return nil
	}
	if inst == nil {
		d.fail(ErrNoInstance.Error())
		return nil
	}

	d.instance = inst
	d.state = StateInstantiated
	return inst
}

// AddError appends msg to the error list (empty messages are skipped) and
// forces the descriptor into StateFailed. This is the only transition into
// StateFailed and it is irreversible.
func (d *Descriptor) AddError(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail(msg)
}

// fail records msg and forces StateFailed. Caller holds d.mu.
func (d *Descriptor) fail(msg string) {
	if msg != "" {
		d.errs = append(d.errs, msg)
	}
	d.state = StateFailed
}

// MarkInitialized transitions Instantiated -> Initialized. The caller is
// responsible for calling this only after first-phase initialization
// succeeded; any other state is left untouched.
func (d *Descriptor) MarkInitialized() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateInstantiated {
		d.state = StateInitialized
	}
}

// releaseInstance drops the instance reference. Used by the host during
// teardown: for host-owned instances this releases the final reference; for
// loader-owned instances it clears the non-owning reference before the
// loader session is closed.
func (d *Descriptor) releaseInstance() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instance = nil
}

// String returns a short debug representation.
func (d *Descriptor) String() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fmt.Sprintf("%s [%s] deps=%v", d.id, d.state, d.deps)
}
