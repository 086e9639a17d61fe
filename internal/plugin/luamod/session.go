package luamod

import (
	"sync"

	"github.com/dshills/plugrid/internal/plugin"
)

// Session is one opened Lua module. It owns the Lua state and therefore the
// plugin instance it exports; the host's reference to the instance is valid
// only while the session stays open.
type Session struct {
	mu       sync.Mutex
	path     string
	state    *state
	metadata string
	inst     *luaPlugin
	closed   bool
}

// Path returns the filesystem path the module was opened from.
func (s *Session) Path() string {
	return s.path
}

// Metadata returns the composed metadata document.
func (s *Session) Metadata() string {
	return s.metadata
}

// Instance returns the module's exported plugin instance. The capability
// check is explicit: a module satisfies the plugin contract iff it defines
// a global init function. ok is false when it does not, or once the session
// has been closed.
func (s *Session) Instance() (plugin.Plugin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	if s.inst != nil {
		return s.inst, true
	}
	if !s.state.hasFunction("init") {
		return nil, false
	}
	s.inst = &luaPlugin{session: s}
	return s.inst, true
}

// Close unloads the module, closing the Lua state and invalidating the
// instance. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.state.close()
	s.inst = nil
	s.closed = true
	return nil
}
