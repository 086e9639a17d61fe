package plugin

// ModuleLoader resolves a filesystem path into a loadable module. The
// mechanism behind it (Lua runtime, platform dynamic library, in-process
// fixture) is external to the host; the host only consumes this boundary.
type ModuleLoader interface {
	// CanLoad reports whether path looks like a module this loader can open.
	// Discovery uses it to filter candidates; Open remains the authority.
	CanLoad(path string) bool

	// Open loads the module at path and returns a live session, or the
	// reason the path is not a loadable module.
	Open(path string) (ModuleSession, error)
}

// ModuleSession is one opened module. The session owns the instance it
// produces: the host holds a non-owning reference that is valid only while
// the session remains open. Closing the session invalidates the instance.
type ModuleSession interface {
	// Path returns the filesystem path the module was opened from.
	Path() string

	// Metadata returns the module's raw metadata document (JSON), or an
	// empty string if the module exports none.
	Metadata() string

	// Instance returns the module's exported plugin instance. ok is false
	// when the module exports nothing satisfying the plugin contract, or
	// when the session has been closed.
	Instance() (Plugin, bool)

	// Close unloads the module, invalidating the instance.
	Close() error
}
