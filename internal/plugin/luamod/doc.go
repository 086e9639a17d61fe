// Package luamod implements the plugin.ModuleLoader boundary over sandboxed
// Lua modules.
//
// A module is a single .lua file or a directory containing plugin.lua.
// Opening a module executes it in a restricted Lua state (base, table,
// string, and math libraries only) and reads its exported manifest table:
//
//	manifest = {
//	    interface = "com.dshills.plugrid.Plugin/1",
//	    name = "my-plugin",
//	    dependencies = { "other-plugin", { name = "third-plugin" } },
//	}
//
// The loader composes the host's metadata document from the manifest; the
// host, not the loader, decides whether the declared interface id and name
// are acceptable.
//
// A module satisfies the plugin contract by defining a global init function.
// The optional globals extensions_initialized, deferred_initialize, and
// shutdown_intent back the remaining contract methods:
//
//	function init(args)
//	    host.add_object("greeter", { greeting = "hello" })
//	    return true
//	end
//
//	function extensions_initialized()
//	    local g = host.get_object("greeter")
//	end
//
//	function shutdown_intent()
//	    return "sync"
//	end
//
// The session owns the Lua state and therefore the plugin instance: the
// host holds a non-owning reference that is invalidated when the session
// closes. This is the ownership model the host's teardown ordering relies
// on.
package luamod
