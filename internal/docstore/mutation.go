package docstore

import (
	"fmt"
	"strings"
)

// Mutation is a field-level change applied by Merge and Update.
type Mutation struct {
	Field  []string
	Value  any
	Delete bool
}

// SetField sets a (possibly nested) field, creating intermediate maps.
func SetField(value any, field ...string) Mutation {
	return Mutation{Field: field, Value: value}
}

// DeleteField removes a (possibly nested) field; missing fields are ignored.
func DeleteField(field ...string) Mutation {
	return Mutation{Field: field, Delete: true}
}

func (m Mutation) String() string {
	if m.Delete {
		return "delete " + strings.Join(m.Field, ".")
	}
	return "set " + strings.Join(m.Field, ".")
}

func applyMutations(data map[string]any, muts []Mutation) (map[string]any, error) {
	out := CloneData(data)
	if out == nil {
		out = map[string]any{}
	}
	for _, m := range muts {
		if len(m.Field) == 0 {
			return nil, fmt.Errorf("docstore: %s: empty field path", m)
		}
		parent := out
		for i, key := range m.Field[:len(m.Field)-1] {
			next, ok := parent[key]
			if !ok || next == nil {
				if m.Delete {
					parent = nil
					break
				}
				child := map[string]any{}
				parent[key] = child
				parent = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("docstore: %s: %s is not a map", m, strings.Join(m.Field[:i+1], "."))
			}
			parent = child
		}
		leaf := m.Field[len(m.Field)-1]
		if m.Delete {
			if parent != nil {
				delete(parent, leaf)
			}
			continue
		}
		value, err := normalize(m.Value)
		if err != nil {
			return nil, err
		}
		parent[leaf] = value
	}
	return out, nil
}
