// internal/app/system/savewriter/equal.go
package savewriter

import (
	"encoding/json"

	"github.com/dalemusser/stratatrack/internal/domain/models"
)

// ignoredKey is skipped by Equal at every map level.
const ignoredKey = "updatedAt"

// Equal reports whether two JSON-shaped trees (maps, slices, strings,
// numbers, booleans and nil) are structurally equal. Map entries named
// "updatedAt" are ignored at every depth.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		return ok && mapsEqual(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case float64, string, bool:
		return a == b
	default:
		return false
	}
}

func mapsEqual(a, b map[string]any) bool {
	if countKeys(a) != countKeys(b) {
		return false
	}
	for k, av := range a {
		if k == ignoredKey {
			continue
		}
		bv, ok := b[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

func countKeys(m map[string]any) int {
	n := len(m)
	if _, ok := m[ignoredKey]; ok {
		n--
	}
	return n
}

// toTree converts v to its generic JSON form.
func toTree(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// EnvelopesEqual compares two envelopes by content, ignoring updatedAt.
func EnvelopesEqual(a, b models.Envelope) bool {
	ta, err := toTree(a)
	if err != nil {
		return false
	}
	tb, err := toTree(b)
	if err != nil {
		return false
	}
	return Equal(ta, tb)
}
