package affiliate

import (
	"github.com/samber/lo"
)

// envelopeKeys are echoed by every profile response and carry no profile data.
var envelopeKeys = []string{"code", "message", "is_authorized", "status"}

// NormalizeProfile strips the envelope keys at every depth and flattens the
// result.
func NormalizeProfile(body map[string]any) map[string]any {
	out, _ := DeepFlatten(OmitKeys(body, envelopeKeys)).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	return out
}

// OmitKeys returns a copy of v without any of keys, in maps at any depth.
func OmitKeys(v any, keys []string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if lo.Contains(keys, k) {
				continue
			}
			out[k] = OmitKeys(val, keys)
		}
		return out
	case []any:
		return lo.Map(t, func(item any, _ int) any { return OmitKeys(item, keys) })
	default:
		return v
	}
}

// DeepFlatten collapses {"value": X} wrappers to X and empty objects to nil.
// Arrays are flattened element-wise.
func DeepFlatten(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
		if inner, ok := t["value"]; ok && len(t) == 1 {
			return DeepFlatten(inner)
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepFlatten(val)
		}
		return out
	case []any:
		return lo.Map(t, func(item any, _ int) any { return DeepFlatten(item) })
	default:
		return v
	}
}

// DeepMerge merges src into dst and returns dst. Nested objects are merged
// key by key; any other value in src replaces the one in dst, so when several
// profiles are merged in the order they settled the last one wins.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		srcMap, srcIsMap := sv.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = DeepMerge(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			dst[k] = DeepMerge(nil, srcMap)
			continue
		}
		dst[k] = sv
	}
	return dst
}
