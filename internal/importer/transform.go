package importer

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// TransformFunc converts one mapped value. Transforms are a closed, named set
// dispatched statically; mapping configuration can only reference names known
// to the registry, never arbitrary expressions.
type TransformFunc func(value any) (any, error)

type TransformRegistry struct {
	mu    sync.RWMutex
	funcs map[string]TransformFunc
}

func NewTransformRegistry() *TransformRegistry {
	r := &TransformRegistry{funcs: make(map[string]TransformFunc)}
	r.funcs["trim"] = transformTrim
	r.funcs["uppercase"] = transformUppercase
	r.funcs["lowercase"] = transformLowercase
	r.funcs["parse_number"] = transformParseNumber
	r.funcs["parse_int"] = transformParseInt
	return r
}

// Register adds a custom transform. Built-in names cannot be replaced.
func (r *TransformRegistry) Register(name string, fn TransformFunc) error {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fmt.Errorf("transform name is empty")
	}
	if fn == nil {
		return fmt.Errorf("nil transform func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("transform already registered: %s", name)
	}
	r.funcs[name] = fn
	return nil
}

func (r *TransformRegistry) Apply(name string, value any) (any, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return value, nil
	}
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", name)
	}
	return fn(value)
}

func transformTrim(value any) (any, error) {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s), nil
	}
	return value, nil
}

func transformUppercase(value any) (any, error) {
	if s, ok := value.(string); ok {
		return strings.ToUpper(s), nil
	}
	return value, nil
}

func transformLowercase(value any) (any, error) {
	if s, ok := value.(string); ok {
		return strings.ToLower(s), nil
	}
	return value, nil
}

func transformParseNumber(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case float64, float32, int, int32, int64:
		return value, nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse_number: %q is not numeric", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("parse_number: unsupported type %T", value)
	}
}

func transformParseInt(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return nil, fmt.Errorf("parse_int: %q is not an integer", v)
			}
			return int(f), nil
		}
		return i, nil
	default:
		return nil, fmt.Errorf("parse_int: unsupported type %T", value)
	}
}
