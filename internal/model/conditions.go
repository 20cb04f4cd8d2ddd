package model

import (
	"encoding/json"
	"strings"
)

// Conditions restricts which event payloads a rule applies to. Keys are
// dot paths into the payload; a list value means "one of".
type Conditions map[string]any

// Match reports whether the payload satisfies every condition.
// Empty conditions match everything.
func (c Conditions) Match(payload map[string]any) bool {
	for key, expected := range c {
		actual, ok := lookup(payload, key)
		if !ok {
			return false
		}
		if list, isList := expected.([]any); isList {
			if !containsValue(list, actual) {
				return false
			}
			continue
		}
		if !valuesEqual(expected, actual) {
			return false
		}
	}
	return true
}

func lookup(payload map[string]any, path string) (any, bool) {
	var cur any = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
