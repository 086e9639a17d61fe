package plugin

// State represents the lifecycle state of a plugin descriptor.
type State int

// Descriptor states.
const (
	// StateDiscovered - Plugin is registered but not instantiated.
	StateDiscovered State = iota

	// StateInstantiated - The factory produced a live plugin instance.
	StateInstantiated

	// StateInitialized - First-phase initialization succeeded.
	StateInitialized

	// StateFailed - Plugin encountered an error. Terminal and absorbing.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateInstantiated:
		return "instantiated"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal returns true if no further forward transition is possible.
func (s State) Terminal() bool {
	return s == StateFailed
}

// Live returns true if the plugin instance exists (instantiated or initialized).
func (s State) Live() bool {
	return s == StateInstantiated || s == StateInitialized
}
