package evo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"esdl/internal/model"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrParameterType    = errors.New("parameter type mismatch")
	ErrEmptyGroup       = errors.New("empty groups cannot be joined")
)

// Env is handed to every operator. Rand is shared by the whole run and must
// not be reseeded by operators. Evaluator is bound to individuals created by
// generators.
type Env struct {
	Rand      *rand.Rand
	Evaluator model.Evaluator
	Notify    func(sender, name string, value any)
}

// Report forwards a notification to Notify when one is attached.
func (e Env) Report(sender, name string, value any) {
	if e.Notify != nil {
		e.Notify(sender, name, value)
	}
}

// Chance reports whether an event with probability rate happens. Rates at or
// above one always happen without consuming a random number.
func (e Env) Chance(rate float64) bool {
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	return e.Rand.Float64() < rate
}

// Args holds keyword arguments of an operator call. Keys are lower case.
type Args map[string]any

// NewArgs copies kv with lower-cased keys.
func NewArgs(kv map[string]any) Args {
	out := make(Args, len(kv))
	for k, v := range kv {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Has reports whether name was given a non-null value.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

// Expect fails when a key outside names is present.
func (a Args) Expect(names ...string) error {
	var unknown []string
	for k := range a {
		found := false
		for _, n := range names {
			if k == n {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: %s", ErrUnknownParameter, strings.Join(unknown, ", "))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Float returns name as a float or def when absent.
func (a Args) Float(name string, def float64) (float64, error) {
	if !a.Has(name) {
		return def, nil
	}
	f, ok := toFloat(a[name])
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrParameterType, name, a[name])
	}
	return f, nil
}

// OptFloat returns name as a float and whether it was given.
func (a Args) OptFloat(name string) (float64, bool, error) {
	if !a.Has(name) {
		return 0, false, nil
	}
	f, err := a.Float(name, 0)
	return f, err == nil, err
}

// Int returns name truncated to an int or def when absent.
func (a Args) Int(name string, def int) (int, error) {
	if !a.Has(name) {
		return def, nil
	}
	f, err := a.Float(name, 0)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrParameterType, name)
	}
	return int(f), nil
}

// Bool returns name as a bool or def when absent. Numbers are true when
// non-zero.
func (a Args) Bool(name string, def bool) (bool, error) {
	if !a.Has(name) {
		return def, nil
	}
	switch x := a[name].(type) {
	case bool:
		return x, nil
	default:
		f, ok := toFloat(x)
		if !ok {
			return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrParameterType, name, x)
		}
		return f != 0, nil
	}
}

// String returns name as a string or def when absent.
func (a Args) String(name string, def string) (string, error) {
	if !a.Has(name) {
		return def, nil
	}
	s, ok := a[name].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrParameterType, name, a[name])
	}
	return s, nil
}

// Floats returns a list argument of numbers.
func (a Args) Floats(name string) ([]float64, bool, error) {
	if !a.Has(name) {
		return nil, false, nil
	}
	var items []any
	switch x := a[name].(type) {
	case []any:
		items = x
	case []float64:
		return x, true, nil
	default:
		return nil, false, fmt.Errorf("%w: %s must be a list, got %T", ErrParameterType, name, x)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s[%d] must be a number, got %T", ErrParameterType, name, i, item)
		}
		out[i] = f
	}
	return out, true, nil
}

// Pair returns a two element list argument.
func (a Args) Pair(name string) ([2]float64, bool, error) {
	values, ok, err := a.Floats(name)
	if err != nil || !ok {
		return [2]float64{}, ok, err
	}
	if len(values) != 2 {
		return [2]float64{}, false, fmt.Errorf("%w: %s must have two elements", ErrConfiguration, name)
	}
	return [2]float64{values[0], values[1]}, true, nil
}

// Population returns a group argument. Single individuals and lists of
// individuals are accepted.
func (a Args) Population(name string) (model.Population, error) {
	if !a.Has(name) {
		return nil, fmt.Errorf("%w: %s is required", ErrConfiguration, name)
	}
	switch x := a[name].(type) {
	case model.Population:
		return x, nil
	case *model.Individual:
		return model.Population{x}, nil
	case []any:
		out := make(model.Population, 0, len(x))
		for _, item := range x {
			ind, ok := item.(*model.Individual)
			if !ok {
				return nil, fmt.Errorf("%w: %s must hold individuals, got %T", ErrParameterType, name, item)
			}
			out = append(out, ind)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s must be a group, got %T", ErrParameterType, name, a[name])
}

// Rate returns a probability parameter, falling back through aliases in
// order before using def.
func (a Args) Rate(def float64, names ...string) (float64, error) {
	for _, n := range names {
		if a.Has(n) {
			return a.Float(n, def)
		}
	}
	return def, nil
}
