// Package fieldpath gives the import pipeline its only sanctioned way to read
// and write dynamic catalog payloads. Paths are dotted, with numeric segments
// addressing array slots: "pricing.msrp", "gallery.0.url".
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Get walks path through nested maps and slices. The second return is false
// when any segment is missing or of the wrong shape.
func Get(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at path, creating intermediate containers as needed. A
// numeric next segment creates a slice, anything else a map. Existing slices
// grow with nil padding up to the addressed index.
func Set(data map[string]any, path string, value any) error {
	if data == nil {
		return fmt.Errorf("nil target")
	}
	if path == "" {
		return fmt.Errorf("empty path")
	}
	segs := strings.Split(path, ".")
	_, err := setIn(data, segs, value)
	return err
}

func setIn(container any, segs []string, value any) (any, error) {
	seg := segs[0]
	last := len(segs) == 1

	if idx, err := strconv.Atoi(seg); err == nil {
		if idx < 0 {
			return nil, fmt.Errorf("negative array index %q", seg)
		}
		arr, ok := container.([]any)
		if !ok {
			if container != nil {
				if _, isMap := container.(map[string]any); isMap {
					return nil, fmt.Errorf("segment %q addresses an array but found object", seg)
				}
			}
			arr = []any{}
		}
		for len(arr) <= idx {
			arr = append(arr, nil)
		}
		if last {
			arr[idx] = value
			return arr, nil
		}
		child := arr[idx]
		if child == nil {
			child = newContainerFor(segs[1])
		}
		updated, err := setIn(child, segs[1:], value)
		if err != nil {
			return nil, err
		}
		arr[idx] = updated
		return arr, nil
	}

	obj, ok := container.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("segment %q addresses an object but found %T", seg, container)
	}
	if last {
		obj[seg] = value
		return obj, nil
	}
	child := obj[seg]
	if child == nil {
		child = newContainerFor(segs[1])
	}
	updated, err := setIn(child, segs[1:], value)
	if err != nil {
		return nil, err
	}
	obj[seg] = updated
	return obj, nil
}

func newContainerFor(nextSeg string) any {
	if _, err := strconv.Atoi(nextSeg); err == nil {
		return []any{}
	}
	return map[string]any{}
}

// Delete removes the value at path. Missing paths are a no-op.
func Delete(data map[string]any, path string) {
	if data == nil || path == "" {
		return
	}
	segs := strings.Split(path, ".")
	if len(segs) == 1 {
		delete(data, segs[0])
		return
	}
	parent, ok := Get(data, strings.Join(segs[:len(segs)-1], "."))
	if !ok {
		return
	}
	if obj, ok := parent.(map[string]any); ok {
		delete(obj, segs[len(segs)-1])
	}
}

// Equal is a deep structural comparison: maps compare by key set, arrays are
// order-sensitive, and numbers compare by value so json float64 decoding does
// not make 5 differ from 5.0.
func Equal(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if na, ok := asFloat(a); ok {
		nb, ok := asFloat(b)
		return ok && na == nb
	}
	switch va := a.(type) {
	case map[string]any:
		vb, ok := b.(map[string]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for k, av := range va {
			bv, ok := vb[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !Equal(va[i], vb[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// IsEmpty treats nil, blank strings, empty arrays and empty objects as
// missing. A present-but-empty array therefore fails a required-field check.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
