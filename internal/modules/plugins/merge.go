package plugins

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Merge returns a new map holding dst with src deep-merged on top.
//
// Nested maps are merged key by key. Lists, scalars and nil values from src replace
// the value in dst wholesale. Neither argument is mutated and the result shares no
// nested map with either input.
func Merge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = cloneValue(v)
	}

	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = Merge(dstMap, srcMap)
			continue
		}
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// ExpandPath turns a dotted form path into a nested partial update.
// ExpandPath("ui.icon", "🔥") returns {"ui": {"icon": "🔥"}}.
func ExpandPath(path string, value any) map[string]any {
	parts := strings.Split(path, ".")
	out := map[string]any{parts[len(parts)-1]: value}
	for i := len(parts) - 2; i >= 0; i-- {
		out = map[string]any{parts[i]: out}
	}
	return out
}

// ToMap converts a plugin into its structured JSON form.
func ToMap(p Plugin) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plugin: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode plugin map: %w", err)
	}
	return out, nil
}

// FromMap converts a structured JSON form back into a typed plugin of the given kind.
func FromMap(kind Kind, m map[string]any) (Plugin, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plugin map: %w", err)
	}
	return DecodePlugin(kind, raw)
}

// MergePlugin deep-merges a partial update onto p and returns the result as a new plugin.
func MergePlugin(p Plugin, partial map[string]any) (Plugin, error) {
	base, err := ToMap(p)
	if err != nil {
		return nil, err
	}
	return FromMap(p.Kind(), Merge(base, partial))
}
