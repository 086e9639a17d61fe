package luamod

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/sjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plugrid/internal/plugin"
)

// entryName is the entry point inside directory modules.
const entryName = "plugin.lua"

// Loader opens Lua plugin modules. It implements plugin.ModuleLoader.
type Loader struct{}

// NewLoader creates a Lua module loader.
func NewLoader() *Loader {
	return &Loader{}
}

// CanLoad reports whether path looks like a Lua module: a .lua file, or a
// directory containing plugin.lua.
func (l *Loader) CanLoad(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(path, entryName))
		return err == nil
	}
	return filepath.Ext(path) == ".lua"
}

// Open executes the module at path in a fresh sandboxed state and returns a
// live session. The module's top-level chunk runs to completion here; its
// exported manifest table becomes the session metadata.
func (l *Loader) Open(path string) (plugin.ModuleSession, error) {
	entry, err := entryFile(path)
	if err != nil {
		return nil, err
	}

	st := newState()
	if err := st.doFile(entry); err != nil {
		st.close()
		return nil, fmt.Errorf("module %s: %w", path, err)
	}

	return &Session{
		path:     path,
		state:    st,
		metadata: composeMetadata(st),
	}, nil
}

// entryFile resolves a module path to its Lua entry point.
func entryFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotModule, path)
	}
	if info.IsDir() {
		entry := filepath.Join(path, entryName)
		if _, err := os.Stat(entry); err != nil {
			return "", fmt.Errorf("%w: %s has no %s", ErrNotModule, path, entryName)
		}
		return entry, nil
	}
	if filepath.Ext(path) != ".lua" {
		return "", fmt.Errorf("%w: %s", ErrNotModule, path)
	}
	return path, nil
}

// composeMetadata builds the host's metadata document from the module's
// exported manifest table. The document shape is fixed by the host:
//
//	{"InterfaceId": "...", "MetaData": {"Name": "...", "Dependencies": [...]}}
//
// A module without a manifest table yields an empty document, which the
// host rejects as unreadable. The loader passes the declared interface id
// through untouched; accepting or rejecting it is the host's call.
func composeMetadata(st *state) string {
	tbl, ok := st.global("manifest").(*lua.LTable)
	if !ok {
		return ""
	}
	m, ok := toGoValue(tbl).(map[string]any)
	if !ok {
		return ""
	}

	doc := "{}"
	if iface, ok := m["interface"].(string); ok {
		doc, _ = sjson.Set(doc, "InterfaceId", iface)
	}
	if name, ok := m["name"].(string); ok {
		doc, _ = sjson.Set(doc, "MetaData.Name", name)
	}
	if deps, ok := m["dependencies"].([]any); ok {
		for _, dep := range deps {
			switch d := dep.(type) {
			case string:
				doc, _ = sjson.Set(doc, "MetaData.Dependencies.-1", d)
			case map[string]any:
				if name, ok := d["name"].(string); ok {
					doc, _ = sjson.Set(doc, "MetaData.Dependencies.-1", map[string]any{"Name": name})
				}
			}
		}
	}
	return doc
}
