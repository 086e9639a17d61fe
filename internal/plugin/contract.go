package plugin

// Plugin is the contract every loaded plugin implements.
//
// The host drives each plugin through two initialization phases. Init runs in
// dependency order before any cross-plugin objects are assumed to exist;
// ExtensionsInitialized runs over the same order once every plugin's instance
// is live, so a plugin may safely look up services published by plugins
// earlier in the order.
type Plugin interface {
	// Init performs first-phase initialization. args are the original
	// invocation arguments; host gives the plugin access to the shared
	// object registry and to already-loaded dependencies. A result with
	// OK=false aborts the entire load.
	Init(args []string, host *Host) InitResult

	// ExtensionsInitialized notifies the plugin that every plugin in the
	// load order completed first-phase initialization. Errors here are the
	// plugin's own responsibility to report; the host does not recover.
	ExtensionsInitialized()

	// DeferredInitialize is invoked after all eager plugins are up. It
	// returns true if the plugin performed deferred work. Advisory only.
	DeferredInitialize() bool

	// ShutdownIntent reports how the plugin will shut down. ShutdownAsync
	// means the plugin emits a completion notification later; the host
	// records the intent but never waits on it.
	ShutdownIntent() ShutdownIntent
}

// InitResult is the outcome of first-phase initialization.
type InitResult struct {
	OK       bool
	Messages []string
}

// InitOK is a successful InitResult.
func InitOK() InitResult {
	return InitResult{OK: true}
}

// InitFailed builds a failing InitResult from messages.
func InitFailed(messages ...string) InitResult {
	return InitResult{Messages: messages}
}

// ShutdownIntent describes how a plugin shuts down.
type ShutdownIntent int

const (
	// ShutdownSync - The plugin shuts down synchronously; the host proceeds
	// immediately.
	ShutdownSync ShutdownIntent = iota

	// ShutdownAsync - The plugin completes shutdown asynchronously and will
	// invoke the completion callback registered through ShutdownNotifier,
	// if any. The host performs no waiting.
	ShutdownAsync
)

// String returns a string representation of the shutdown intent.
func (s ShutdownIntent) String() string {
	switch s {
	case ShutdownSync:
		return "sync"
	case ShutdownAsync:
		return "async"
	default:
		return "unknown"
	}
}

// ShutdownNotifier is optionally implemented by plugins returning
// ShutdownAsync. The host registers a callback the plugin invokes once its
// shutdown completes. The host itself registers a no-op; embedders that need
// to await completion can subscribe their own.
type ShutdownNotifier interface {
	OnShutdownComplete(fn func())
}
