package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Encode converts a struct or map into the generic document representation
// (JSON field names, float64 numbers).
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("docstore: encode: value is not an object")
	}
	return data, nil
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: encode value: %w", err)
	}
	return out, nil
}

// CloneData deep copies a document body.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func equalValues(got, want any) bool {
	g, err := normalize(got)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(g, want)
}
