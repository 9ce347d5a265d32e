// Package config holds run configuration as a nested, case-insensitive tree.
package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNotFound = errors.New("config key not found")
	ErrType     = errors.New("config value type mismatch")
	ErrFormat   = errors.New("unsupported config format")
)

// Tree is a nested configuration. Keys are matched case-insensitively and
// paths are dotted ("monitor.limits.generations"). Numbers are stored as
// float64.
type Tree struct {
	m map[string]any
}

func New() *Tree {
	return &Tree{m: make(map[string]any)}
}

// FromMap builds a tree from nested maps, normalising keys and numbers.
func FromMap(m map[string]any) *Tree {
	t := New()
	for k, v := range m {
		t.m[strings.ToLower(k)] = normalise(v)
	}
	return t
}

func normalise(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return FromMap(x)
	case *Tree:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalise(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = FromMap(item)
		}
		return out
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	}
	return v
}

func split(path string) []string {
	return strings.Split(strings.ToLower(path), ".")
}

// Get returns the value at path.
func (t *Tree) Get(path string) (any, bool) {
	if t == nil || path == "" {
		return nil, false
	}
	cur := t
	parts := split(path)
	for i, p := range parts {
		v, ok := cur.m[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = v.(*Tree); !ok {
			return nil, false
		}
	}
	return nil, false
}

// Has reports whether path holds a non-null value.
func (t *Tree) Has(path string) bool {
	v, ok := t.Get(path)
	return ok && v != nil
}

// Attr exposes single keys to definitions, so cfg.system.size resolves.
func (t *Tree) Attr(name string) (any, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.m[strings.ToLower(name)]
	return v, ok
}

// Set stores v at path, creating intermediate sections.
func (t *Tree) Set(path string, v any) {
	parts := split(path)
	cur := t
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur.m[p].(*Tree)
		if !ok {
			next = New()
			cur.m[p] = next
		}
		cur = next
	}
	cur.m[parts[len(parts)-1]] = normalise(v)
}

// Sub returns the section at path, or an empty tree.
func (t *Tree) Sub(path string) *Tree {
	if v, ok := t.Get(path); ok {
		if sub, ok := v.(*Tree); ok {
			return sub
		}
	}
	return New()
}

// Overlay merges o into t. Sections merge recursively; other values in o
// replace those in t.
func (t *Tree) Overlay(o *Tree) *Tree {
	if o == nil {
		return t
	}
	for k, v := range o.m {
		if sub, ok := v.(*Tree); ok {
			if mine, ok := t.m[k].(*Tree); ok {
				mine.Overlay(sub)
				continue
			}
			t.m[k] = sub.Clone()
			continue
		}
		t.m[k] = v
	}
	return t
}

func (t *Tree) Clone() *Tree {
	out := New()
	if t == nil {
		return out
	}
	for k, v := range t.m {
		if sub, ok := v.(*Tree); ok {
			v = sub.Clone()
		}
		out.m[k] = v
	}
	return out
}

// Keys lists the keys of this level in order.
func (t *Tree) Keys() []string {
	keys := make([]string, 0, len(t.m))
	for k := range t.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map converts the tree back into plain nested maps.
func (t *Tree) Map() map[string]any {
	out := make(map[string]any, len(t.m))
	for k, v := range t.m {
		if sub, ok := v.(*Tree); ok {
			v = sub.Map()
		}
		out[k] = v
	}
	return out
}

// Lines renders every leaf as "path = value", sorted by path.
func (t *Tree) Lines() []string {
	var out []string
	var walk func(prefix string, t *Tree)
	walk = func(prefix string, t *Tree) {
		for _, k := range t.Keys() {
			v := t.m[k]
			if sub, ok := v.(*Tree); ok {
				walk(prefix+k+".", sub)
				continue
			}
			out = append(out, fmt.Sprintf("%s%s = %s", prefix, k, Format(v)))
		}
	}
	walk("", t)
	return out
}

// Format renders a configuration value.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = Format(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}

// ParseScalar interprets text from flat formats and flags: numbers, bools,
// null and bracketed lists. Anything else stays a string.
func ParseScalar(s string) any {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	case "null", "none", "":
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}
		}
		parts := strings.Split(inner, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = ParseScalar(p)
		}
		return out
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// Float returns the number at path or def when it is missing.
func (t *Tree) Float(path string, def float64) (float64, error) {
	v, ok := t.Get(path)
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrType, path, v)
}

// Int returns the whole number at path or def when it is missing.
func (t *Tree) Int(path string, def int) (int, error) {
	if !t.Has(path) {
		return def, nil
	}
	f, err := t.Float(path, 0)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be a whole number, got %g", ErrType, path, f)
	}
	return int(f), nil
}

func (t *Tree) Bool(path string, def bool) (bool, error) {
	v, ok := t.Get(path)
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case string:
		if b, ok := ParseScalar(x).(bool); ok {
			return b, nil
		}
	}
	return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrType, path, v)
}

func (t *Tree) String(path string, def string) (string, error) {
	v, ok := t.Get(path)
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case float64, bool:
		return Format(x), nil
	}
	return "", fmt.Errorf("%w: %s must be a string, got %T", ErrType, path, v)
}

// Require returns the value at path or ErrNotFound.
func (t *Tree) Require(path string) (any, error) {
	v, ok := t.Get(path)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return v, nil
}
