package esdl

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"esdl/internal/evo"
	"esdl/internal/model"
)

// Attributer is implemented by values that expose named attributes to
// definitions, such as configuration sections.
type Attributer interface {
	Attr(name string) (any, bool)
}

func (m *Machine) lookup(name string) (any, error) {
	if v, ok := m.vars[name]; ok {
		return v, nil
	}
	if v, ok := m.host.Lookup(name); ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUndefined, name)
}

func (m *Machine) eval(e Expr) (any, error) {
	switch e := e.(type) {
	case *Literal:
		return e.Value, nil
	case *Name:
		return m.lookup(e.Name)
	case *Attr:
		base, err := m.eval(e.X)
		if err != nil {
			return nil, err
		}
		return attr(base, e.Name)
	case *Index:
		base, err := m.eval(e.X)
		if err != nil {
			return nil, err
		}
		idx, err := m.eval(e.Index)
		if err != nil {
			return nil, err
		}
		return index(base, idx)
	case *List:
		out := make([]any, len(e.Items))
		for i, item := range e.Items {
			v, err := m.eval(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *Call:
		return m.call(e)
	case *Unary:
		v, err := m.eval(e.X)
		if err != nil {
			return nil, err
		}
		f, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s%T", ErrType, e.Op, v)
		}
		if e.Op == "-" {
			return -f, nil
		}
		return f, nil
	case *Binary:
		x, err := m.eval(e.X)
		if err != nil {
			return nil, err
		}
		y, err := m.eval(e.Y)
		if err != nil {
			return nil, err
		}
		return binary(e.Op, x, y)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func attr(base any, name string) (any, error) {
	switch x := base.(type) {
	case Attributer:
		if v, ok := x.Attr(name); ok {
			return v, nil
		}
	case map[string]any:
		for k, v := range x {
			if strings.EqualFold(k, name) {
				return v, nil
			}
		}
	case *model.Individual:
		switch name {
		case "fitness":
			return x.Fitness().Simple(), nil
		case "length":
			return float64(x.Len()), nil
		case "birthday":
			return float64(x.Birthday()), nil
		}
	case model.Population:
		switch name {
		case "size", "length":
			return float64(len(x)), nil
		case "best":
			return x.Best(), nil
		case "worst":
			return x.Worst(), nil
		}
	}
	return nil, fmt.Errorf("%w: attribute %s of %T", ErrUndefined, name, base)
}

func index(base, idx any) (any, error) {
	f, ok := toNumber(idx)
	if !ok {
		if key, isKey := idx.(string); isKey {
			return attr(base, key)
		}
		return nil, fmt.Errorf("%w: index must be a number, got %T", ErrType, idx)
	}
	var n int
	switch x := base.(type) {
	case []any:
		n = len(x)
	case []float64:
		n = len(x)
	case model.Population:
		n = len(x)
	default:
		return nil, fmt.Errorf("%w: %T cannot be indexed", ErrType, base)
	}
	i := int(f)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrType, int(f), n)
	}
	switch x := base.(type) {
	case []any:
		return x[i], nil
	case []float64:
		return x[i], nil
	default:
		return base.(model.Population)[i], nil
	}
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func binary(op string, x, y any) (any, error) {
	if op == "+" {
		switch a := x.(type) {
		case string:
			if b, ok := y.(string); ok {
				return a + b, nil
			}
		case []any:
			if b, ok := y.([]any); ok {
				return append(append([]any(nil), a...), b...), nil
			}
		case model.Population:
			if b, ok := y.(model.Population); ok {
				return append(append(model.Population(nil), a...), b...), nil
			}
		}
	}
	a, aok := toNumber(x)
	b, bok := toNumber(y)
	if !aok || !bok {
		return nil, fmt.Errorf("%w: %T %s %T", ErrType, x, op, y)
	}
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "^":
		return math.Pow(a, b), nil
	}
	if b == 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrType)
	}
	switch op {
	case "/":
		return a / b, nil
	case "//":
		return math.Floor(a / b), nil
	case "%":
		return a - b*math.Floor(a/b), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

type builtin func(args []any) (any, error)

var builtins = map[string]builtin{
	"len":   builtinLen,
	"min":   extremum(math.Min),
	"max":   extremum(math.Max),
	"abs":   unaryNumber(math.Abs),
	"int":   unaryNumber(math.Trunc),
	"float": unaryNumber(func(f float64) float64 { return f }),
	"round": builtinRound,
}

// Method is implemented by values whose methods definitions may call with
// keyword arguments, as in pheromone.update_rank(source=ants).
type Method interface {
	CallMethod(name string, args evo.Args) (any, error)
}

// call runs a builtin, a registered function or a method of a value.
func (m *Machine) call(c *Call) (any, error) {
	if a, ok := c.Fn.(*Attr); ok {
		base, err := m.eval(a.X)
		if err != nil {
			return nil, err
		}
		recv, ok := base.(Method)
		if !ok {
			return nil, fmt.Errorf("%w: %s of %T is not callable", ErrType, a.Name, base)
		}
		args, err := m.keywords(a.Name, c.Args)
		if err != nil {
			return nil, err
		}
		v, err := recv.CallMethod(a.Name, args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a, err)
		}
		return v, nil
	}
	n, ok := c.Fn.(*Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not callable", ErrType, c.Fn)
	}
	fn, ok := builtins[n.Name]
	if !ok {
		spec, args, err := m.operator(n.Name, c, evo.KindFunction)
		if errors.Is(err, evo.ErrOperatorNotFound) {
			return nil, fmt.Errorf("%w: function %s", ErrUndefined, n.Name)
		}
		if err != nil {
			return nil, err
		}
		v, err := spec.Function(m.host.Env(), args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Name, err)
		}
		return v, nil
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		if a.Name != "" {
			return nil, fmt.Errorf("%w: %s takes no keyword arguments", ErrType, n.Name)
		}
		v, err := m.eval(a.Value)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	v, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.Name, err)
	}
	return v, nil
}

func (m *Machine) keywords(name string, args []Arg) (evo.Args, error) {
	out := evo.Args{}
	for _, a := range args {
		if a.Name == "" {
			return nil, fmt.Errorf("%w: %s expects keyword arguments", evo.ErrConfiguration, name)
		}
		v, err := m.eval(a.Value)
		if err != nil {
			return nil, fmt.Errorf("%s(%s=...): %w", name, a.Name, err)
		}
		out[a.Name] = v
	}
	return out, nil
}

func builtinLen(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: expected one argument", ErrType)
	}
	switch x := args[0].(type) {
	case []any:
		return float64(len(x)), nil
	case []float64:
		return float64(len(x)), nil
	case model.Population:
		return float64(len(x)), nil
	case string:
		return float64(len(x)), nil
	case nil:
		return 0.0, nil
	}
	return nil, fmt.Errorf("%w: %T has no length", ErrType, args[0])
}

func numbers(args []any) ([]float64, error) {
	if len(args) == 1 {
		if list, ok := args[0].([]any); ok {
			args = list
		}
	}
	out := make([]float64, len(args))
	for i, a := range args {
		f, ok := toNumber(a)
		if !ok {
			return nil, fmt.Errorf("%w: expected a number, got %T", ErrType, a)
		}
		out[i] = f
	}
	return out, nil
}

func extremum(pick func(a, b float64) float64) builtin {
	return func(args []any) (any, error) {
		values, err := numbers(args)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: expected at least one value", ErrType)
		}
		out := values[0]
		for _, v := range values[1:] {
			out = pick(out, v)
		}
		return out, nil
	}
}

func unaryNumber(fn func(float64) float64) builtin {
	return func(args []any) (any, error) {
		values, err := numbers(args)
		if err != nil {
			return nil, err
		}
		if len(values) != 1 {
			return nil, fmt.Errorf("%w: expected one argument", ErrType)
		}
		return fn(values[0]), nil
	}
}

// builtinRound rounds half away from zero, optionally to a number of
// decimal places.
func builtinRound(args []any) (any, error) {
	values, err := numbers(args)
	if err != nil {
		return nil, err
	}
	switch len(values) {
	case 1:
		return math.Round(values[0]), nil
	case 2:
		scale := math.Pow(10, math.Trunc(values[1]))
		return math.Round(values[0]*scale) / scale, nil
	}
	return nil, fmt.Errorf("%w: expected one or two arguments", ErrType)
}
