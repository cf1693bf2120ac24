// deepcopy.go: Recursive payload copying for event value semantics
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

// deepCopyDataMap returns an independent copy of an event payload. Nested
// map[string]any and []any values are copied recursively; every other value
// is carried as-is (payloads are expected to hold plain scalar and container
// values, the shape encoding/json produces).
func deepCopyDataMap(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = deepCopyValue(value)
	}
	return out
}

func deepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return deepCopyDataMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
