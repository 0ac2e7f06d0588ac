// Package convctx maintains the durable key/value context that accumulates
// across conversation turns. The gateway only reads and returns updated
// copies; persistence belongs to the conversation store.
package convctx

import "strings"

// Context is the per-conversation fact map. Merge semantics are additive:
// new keys are added and existing keys are extended, never overwritten.
type Context map[string]string

// Clone returns a deep copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge folds updates into a copy of the context. An existing key keeps its
// value and gets the new value appended, unless it is already contained.
func (c Context) Merge(updates Context) Context {
	out := c.Clone()
	for k, v := range updates {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		existing, ok := out[k]
		if !ok || existing == "" {
			out[k] = v
			continue
		}
		if strings.Contains(existing, v) {
			continue
		}
		out[k] = existing + "; " + v
	}
	return out
}
