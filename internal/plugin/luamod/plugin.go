package luamod

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plugrid/internal/plugin"
)

// Object is a shared value published by a Lua plugin into the host's object
// registry. The pointer is the registry identity; the Value is the plain Go
// form of the published Lua value.
type Object struct {
	Name  string
	Value any
}

// luaPlugin adapts a module's global functions to the plugin contract.
type luaPlugin struct {
	session *Session
}

// Init performs first-phase initialization: it installs the host bridge and
// calls the module's global init(args). The Lua convention is
//
//	function init(args) ... return true end
//	function init(args) ... return false, "reason" end
//
// A Lua error, a false first return, or a closed session all fail the
// result; returning nothing counts as success.
func (p *luaPlugin) Init(args []string, host *plugin.Host) plugin.InitResult {
	st := p.session.state
	p.bindHost(host)

	results, err := st.callGo("init", args)
	if err != nil {
		return plugin.InitFailed(err.Error())
	}

	if len(results) > 0 {
		if ok, isBool := results[0].(bool); isBool && !ok {
			msg := "init returned false"
			if len(results) > 1 {
				if s, isStr := results[1].(string); isStr && s != "" {
					msg = s
				}
			}
			return plugin.InitFailed(msg)
		}
	}
	return plugin.InitOK()
}

// bindHost installs the host module: add_object publishes a value into the
// shared object registry, get_object looks one up by name. Published values
// are wrapped in *Object so each publication has its own registry identity.
func (p *luaPlugin) bindHost(host *plugin.Host) {
	p.session.state.registerModule("host", map[string]lua.LGFunction{
		"add_object": func(L *lua.LState) int {
			name := L.CheckString(1)
			value := toGoValue(L.Get(2))
			host.AddObject(&Object{Name: name, Value: value}, name)
			return 0
		},
		"get_object": func(L *lua.LState) int {
			name := L.CheckString(1)
			v, ok := host.GetObject(name)
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			if obj, isObj := v.(*Object); isObj {
				L.Push(toLuaValue(L, obj.Value))
			} else {
				L.Push(toLuaValue(L, v))
			}
			return 1
		},
	})
}

// ExtensionsInitialized calls the optional global extensions_initialized.
// Failures here are the module's own to report; the host does not recover.
func (p *luaPlugin) ExtensionsInitialized() {
	st := p.session.state
	if !st.hasFunction("extensions_initialized") {
		return
	}
	_, _ = st.callGo("extensions_initialized")
}

// DeferredInitialize calls the optional global deferred_initialize and
// reports whether the module performed deferred work.
func (p *luaPlugin) DeferredInitialize() bool {
	st := p.session.state
	if !st.hasFunction("deferred_initialize") {
		return false
	}
	results, err := st.callGo("deferred_initialize")
	if err != nil || len(results) == 0 {
		return false
	}
	// Lua truthiness: anything but nil and false.
	return results[0] != nil && results[0] != false
}

// ShutdownIntent queries the optional global shutdown_intent. Only an
// explicit "async" return declares asynchronous shutdown.
func (p *luaPlugin) ShutdownIntent() plugin.ShutdownIntent {
	st := p.session.state
	if !st.hasFunction("shutdown_intent") {
		return plugin.ShutdownSync
	}
	results, err := st.callGo("shutdown_intent")
	if err != nil || len(results) == 0 {
		return plugin.ShutdownSync
	}
	if s, ok := results[0].(string); ok && s == "async" {
		return plugin.ShutdownAsync
	}
	return plugin.ShutdownSync
}
