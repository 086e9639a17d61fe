// Package plugin implements the plugrid extension host: it validates plugin
// identity and inter-plugin dependencies, computes a deterministic load
// order, and drives each plugin through two-phase initialization while
// exposing a shared object registry for cross-plugin service discovery.
//
// # Components
//
//   - Descriptor: the host's record of one plugin - identity, declared
//     dependencies, lifecycle state, error list, and the lazily-created
//     plugin instance.
//   - Resolver (ValidateGraph, DetectCycle, ComputeLoadOrder): pure
//     functions over the descriptor table - structural validation, cycle
//     detection, deterministic topological ordering.
//   - Host: owns the descriptor table and the object registry; orchestrates
//     discovery, registration, resolution, instantiation, and both
//     initialization phases.
//   - ObjectRegistry: a flat, name- and capability-addressable table of
//     live shared objects.
//   - ModuleLoader: the external boundary that opens a filesystem path into
//     a module session exposing metadata and a plugin instance. The shipped
//     implementation is luamod.
//
// # Lifecycle
//
// Descriptors move monotonically forward:
//
//	StateDiscovered -> Instantiate() -> StateInstantiated
//	StateInstantiated -> MarkInitialized() -> StateInitialized
//
// and any operation may push a descriptor into the absorbing StateFailed
// via AddError. A failed descriptor never recovers and its Instantiate
// returns nil permanently.
//
// # Determinism
//
// The resolver's output depends only on the descriptor set, never on
// registration order: ids are visited lexicographically, and the
// topological order breaks ties to the smallest eligible id at every step.
// Identical input produces byte-identical order across runs and platforms.
//
// # Usage
//
//	host := plugin.NewHost(
//	    plugin.WithModuleLoader(luamod.NewLoader()),
//	    plugin.WithSearchPaths(cfg.SearchPaths...),
//	)
//	host.RegisterPaths(host.DiscoverPaths())
//	if !host.LoadPlugins(os.Args[1:]) {
//	    for _, msg := range host.LastErrors() {
//	        log.Println(msg)
//	    }
//	}
//	defer host.Teardown()
//
// # Concurrency
//
// The host is synchronous and cooperative: every operation runs to
// completion on the calling thread, calls into plugins block, and the
// ordering between plugin initializations is a hard guarantee. Plugins may
// use concurrency internally, but the host never does.
package plugin
