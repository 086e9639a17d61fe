package plugin

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// InterfaceID is the plugin interface identifier this host version
// recognizes. Modules declaring any other value are rejected, not coerced.
const InterfaceID = "com.dshills.plugrid.Plugin/1"

// Metadata is the structured form of a module's metadata document:
//
//	{
//	  "InterfaceId": "com.dshills.plugrid.Plugin/1",
//	  "MetaData": {
//	    "Name": "<id>",
//	    "Dependencies": ["<id>", {"Name": "<id>"}, ...]
//	  }
//	}
//
// Dependencies entries are bare id strings or objects carrying a Name field;
// entries of any other shape are silently skipped.
type Metadata struct {
	Name         string
	Dependencies []string
}

// ParseMetadata parses and validates a raw metadata document.
func ParseMetadata(doc string) (*Metadata, error) {
	if doc == "" || !gjson.Valid(doc) {
		return nil, ErrMetadataUnreadable
	}

	iface := gjson.Get(doc, "InterfaceId")
	if iface.Type != gjson.String || iface.String() != InterfaceID {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrInterfaceMismatch, iface.String(), InterfaceID)
	}

	meta := gjson.Get(doc, "MetaData")
	if !meta.IsObject() {
		return nil, ErrMissingMetadata
	}

	name := meta.Get("Name").String()
	if err := ValidateID(name); err != nil {
		return nil, err
	}

	var deps []string
	for _, entry := range meta.Get("Dependencies").Array() {
		switch {
		case entry.Type == gjson.String:
			deps = append(deps, entry.String())
		case entry.IsObject():
			if n := entry.Get("Name"); n.Type == gjson.String {
				deps = append(deps, n.String())
			}
		}
	}

	return &Metadata{
		Name:         name,
		Dependencies: normalizeDeps(deps),
	}, nil
}
