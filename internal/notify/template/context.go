package template

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// VariableContext is a tree of named sections. Section values are scalars;
// anything else is treated as absent when a placeholder points at it.
type VariableContext map[string]interface{}

// Section returns the named section, or nil when it is absent or not a map.
func (c VariableContext) Section(name string) map[string]interface{} {
	return asMap(c[name])
}

// Clone copies the context one level into each section so callers can add
// fields without mutating the original.
func (c VariableContext) Clone() VariableContext {
	out := make(VariableContext, len(c))
	for k, v := range c {
		if section := asMap(v); section != nil {
			copied := make(map[string]interface{}, len(section))
			for sk, sv := range section {
				copied[sk] = sv
			}
			out[k] = copied
			continue
		}
		out[k] = v
	}
	return out
}

// Lookup walks a dotted path and returns the stringified leaf.
func (c VariableContext) Lookup(path string) (string, bool) {
	var current interface{} = map[string]interface{}(c)
	for _, part := range strings.Split(path, ".") {
		m := asMap(current)
		if m == nil {
			return "", false
		}
		next, ok := m[part]
		if !ok {
			return "", false
		}
		current = next
	}
	return stringify(current)
}

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case VariableContext:
		return m
	case map[string]interface{}:
		return m
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out
	default:
		return nil
	}
}

func stringify(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint32:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case time.Time:
		return val.Format("2006-01-02"), true
	case *time.Time:
		if val == nil {
			return "", false
		}
		return val.Format("2006-01-02"), true
	default:
		return "", false
	}
}
