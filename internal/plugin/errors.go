package plugin

import "errors"

// Plugin host errors. All of these are recoverable data errors: they are
// recorded against a descriptor or the host's last-error list and the
// offending candidate is skipped (registration) or the load aborts (loading).
// Object registry misuse is the exception and panics; see registry.go.
var (
	// ErrInvalidID is returned when a plugin id fails identity validation.
	ErrInvalidID = errors.New("invalid plugin id")

	// ErrDuplicateID is returned when a plugin id is already registered.
	ErrDuplicateID = errors.New("duplicate plugin id")

	// ErrUnloadableModule is returned when a path is not a loadable module.
	ErrUnloadableModule = errors.New("not a loadable module")

	// ErrMetadataUnreadable is returned when module metadata cannot be parsed.
	ErrMetadataUnreadable = errors.New("module metadata unreadable")

	// ErrInterfaceMismatch is returned when a module declares a different
	// plugin interface than this host recognizes.
	ErrInterfaceMismatch = errors.New("plugin interface id mismatch")

	// ErrMissingMetadata is returned when a module carries no metadata object.
	ErrMissingMetadata = errors.New("module has no metadata object")

	// ErrSelfDependency is returned when a plugin depends on itself.
	ErrSelfDependency = errors.New("plugin depends on itself")

	// ErrDependencyNotFound is returned when a declared dependency is not registered.
	ErrDependencyNotFound = errors.New("plugin dependency not found")

	// ErrCyclicDependency is returned when plugins have circular dependencies.
	ErrCyclicDependency = errors.New("cyclic plugin dependency detected")

	// ErrNoFactory is returned when instantiation is attempted without a bound factory.
	ErrNoFactory = errors.New("no plugin factory bound")

	// ErrNoInstance is returned when a factory yields no plugin instance.
	ErrNoInstance = errors.New("module produced no plugin instance")

	// ErrPluginNotFound is returned when a plugin id is not registered.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginFailed is returned when an operation is attempted on a failed descriptor.
	ErrPluginFailed = errors.New("plugin is in failed state")
)
