package luamod

import "errors"

var (
	// ErrNotModule is returned when a path is not a Lua plugin module.
	ErrNotModule = errors.New("not a lua plugin module")

	// ErrStateClosed is returned when operating on a closed Lua state.
	ErrStateClosed = errors.New("lua state is closed")
)
