// Package engine implements the conversational flow runtime: trigger
// matching, step execution, template rendering and input validation.
package engine

import (
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// Lookup resolves a dotted path ("grievance.ref" or "citizenName") against
// the session variables. Total: a missing or malformed path yields (nil, false).
func Lookup(vars map[string]any, path string) (any, bool) {
	if path == "" || vars == nil {
		return nil, false
	}
	if v, ok := vars[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}
	c := gabs.Wrap(map[string]any(vars))
	hit := c.Path(path)
	if hit == nil {
		return nil, false
	}
	return hit.Data(), true
}

// Write stores a value at a dotted path, creating intermediate objects as
// needed. Writing through a non-object value replaces it.
func Write(vars map[string]any, path string, value any) {
	if path == "" || vars == nil {
		return
	}
	if !strings.Contains(path, ".") {
		vars[path] = value
		return
	}
	parts := strings.Split(path, ".")
	cur := vars
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}
