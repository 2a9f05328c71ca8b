// Package walk provides total accessors over decoded JSON documents.
// Every lookup returns nil (or false) for missing branches instead of failing,
// so callers can read deeply optional service responses without guards.
package walk

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Get follows a dotted path through nested maps and slices.
// Numeric segments index into slices. Missing branches yield nil.
func Get(root any, path string) any {
	if path == "" {
		return root
	}
	cur := root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

// First returns the first non-nil value among the given paths.
func First(root any, paths ...string) any {
	for _, p := range paths {
		if v := Get(root, p); v != nil {
			return v
		}
	}
	return nil
}

// String returns the value at path as a string pointer.
// Numbers and booleans are formatted; empty strings count as absent.
func String(root any, paths ...string) *string {
	switch v := First(root, paths...).(type) {
	case string:
		if v == "" {
			return nil
		}
		return &v
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	case json.Number:
		s := v.String()
		return &s
	case bool:
		s := strconv.FormatBool(v)
		return &s
	default:
		return nil
	}
}

// Float returns the value at path as a float pointer.
// Numeric strings are accepted.
func Float(root any, paths ...string) *float64 {
	switch v := First(root, paths...).(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// Int returns the value at path as an int pointer. Fractions are truncated.
func Int(root any, paths ...string) *int {
	f := Float(root, paths...)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

// Bool returns the value at path as a bool pointer.
// The strings "true"/"false" and the numbers 0/1 are accepted.
func Bool(root any, paths ...string) *bool {
	switch v := First(root, paths...).(type) {
	case bool:
		return &v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		return &b
	case float64:
		b := v != 0
		return &b
	default:
		return nil
	}
}

// Map returns the value at path if it is an object.
func Map(root any, path string) map[string]any {
	m, _ := Get(root, path).(map[string]any)
	return m
}
