package luamod

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// state wraps a gopher-lua LState for module execution.
//
// gopher-lua's LState is not goroutine-safe; the mutex serializes access
// from Go code. Module execution itself is synchronous: every DoFile and
// call blocks until the chunk returns.
type state struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

// newState creates a Lua state with only safe standard libraries opened.
func newState() *state {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // opened selectively below
	})
	openSafeLibraries(L)
	return &state{L: L}
}

// openSafeLibraries opens base, table, string, and math.
// io, os, debug, and package stay closed: modules must not reach the
// filesystem, spawn processes, or load arbitrary code.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// doFile executes a Lua file.
func (s *state) doFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	return withRecovery(func() error {
		return s.L.DoFile(path)
	})
}

// withRecovery converts a Lua runtime panic into an error.
func withRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// global returns a global variable value.
func (s *state) global(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// hasFunction reports whether a global Lua function exists.
func (s *state) hasFunction(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// registerModule installs a named table of Go-backed functions.
func (s *state) registerModule(name string, funcs map[string]lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	mod := s.L.SetFuncs(s.L.NewTable(), funcs)
	s.L.SetGlobal(name, mod)
}

// callGo calls a global Lua function, converting arguments and results
// between Go and Lua values. Returns an empty slice when the function
// returns no values.
func (s *state) callGo(fn string, args ...any) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	fnVal := s.L.GetGlobal(fn)
	if fnVal.Type() != lua.LTFunction {
		return nil, fmt.Errorf("function %q not found", fn)
	}

	stackTop := s.L.GetTop()
	s.L.Push(fnVal)
	for _, arg := range args {
		s.L.Push(toLuaValue(s.L, arg))
	}

	callErr := withRecovery(func() error {
		return s.L.PCall(len(args), lua.MultRet, nil)
	})
	if callErr != nil {
		return nil, callErr
	}

	nRet := s.L.GetTop() - stackTop
	if nRet <= 0 {
		return []any{}, nil
	}
	results := make([]any, nRet)
	for i := 0; i < nRet; i++ {
		results[i] = toGoValue(s.L.Get(stackTop + i + 1))
	}
	s.L.Pop(nRet)

	return results, nil
}

// close releases the Lua state. Idempotent.
func (s *state) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
