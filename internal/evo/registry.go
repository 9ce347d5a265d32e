package evo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"esdl/internal/model"
	"esdl/internal/stream"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
	ErrOperatorKind     = errors.New("operator cannot be used here")
)

// Kind tags what an operator consumes and produces.
type Kind int

const (
	KindFilter Kind = iota + 1
	KindGenerator
	KindJoiner
	KindEvaluator
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindGenerator:
		return "generator"
	case KindJoiner:
		return "joiner"
	case KindEvaluator:
		return "evaluator"
	case KindFunction:
		return "function"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Filter transforms one stream into another.
type Filter func(env Env, src stream.Stream, args Args) (stream.Stream, error)

// Generator produces a stream from nothing.
type Generator func(env Env, args Args) (stream.Stream, error)

// Joiner combines named groups into a stream of joined individuals.
type Joiner func(env Env, groups []model.Population, names []string, args Args) (stream.Stream, error)

// EvaluatorFactory builds an evaluator for EVAL statements.
type EvaluatorFactory func(env Env, args Args) (model.Evaluator, error)

// Function is called from expressions and returns a value, such as a
// shared structure that later operators receive as an argument.
type Function func(env Env, args Args) (any, error)

// Spec describes a registered operator. Exactly one function matching Kind
// must be set. Params, when non-nil, lists the accepted keyword arguments.
type Spec struct {
	Name      string
	Kind      Kind
	Filter    Filter
	Generator Generator
	Joiner    Joiner
	Evaluator EvaluatorFactory
	Function  Function
	Params    []string
}

func (s Spec) validate() error {
	if s.Name == "" {
		return errors.New("operator name is required")
	}
	var set bool
	switch s.Kind {
	case KindFilter:
		set = s.Filter != nil
	case KindGenerator:
		set = s.Generator != nil
	case KindJoiner:
		set = s.Joiner != nil
	case KindEvaluator:
		set = s.Evaluator != nil
	case KindFunction:
		set = s.Function != nil
	default:
		return fmt.Errorf("operator %s has unknown kind %v", s.Name, s.Kind)
	}
	if !set {
		return fmt.Errorf("operator %s: %v function is required", s.Name, s.Kind)
	}
	return nil
}

// CheckArgs rejects keyword arguments the operator does not accept.
func (s Spec) CheckArgs(args Args) error {
	if s.Params == nil {
		return nil
	}
	if err := args.Expect(s.Params...); err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	return nil
}

// Registry maps case-insensitive names to operators.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Spec)}
}

// Register adds spec. Names already taken are rejected.
func (r *Registry) Register(spec Spec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	key := strings.ToLower(spec.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[key]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, spec.Name)
	}
	r.m[key] = spec
	return nil
}

// Override adds or replaces spec.
func (r *Registry) Override(spec Spec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[strings.ToLower(spec.Name)] = spec
	return nil
}

// Resolve returns the operator called name.
func (r *Registry) Resolve(name string) (Spec, error) {
	r.mu.RLock()
	spec, ok := r.m[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	return spec, nil
}

// ResolveKind returns the operator called name only if it has one of kinds.
func (r *Registry) ResolveKind(name string, kinds ...Kind) (Spec, error) {
	spec, err := r.Resolve(name)
	if err != nil {
		return Spec{}, err
	}
	for _, k := range kinds {
		if spec.Kind == k {
			return spec, nil
		}
	}
	want := make([]string, len(kinds))
	for i, k := range kinds {
		want[i] = k.String()
	}
	return Spec{}, fmt.Errorf("%w: %s is a %v, expected %s", ErrOperatorKind, name, spec.Kind, strings.Join(want, " or "))
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Names lists registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone copies the registry so a run can add operators without touching
// the defaults.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewRegistry()
	for k, v := range r.m {
		out.m[k] = v
	}
	return out
}

var operatorRegistry = NewRegistry()

// RegisterOperator adds spec to the default registry shared by every run.
func RegisterOperator(spec Spec) error {
	return operatorRegistry.Register(spec)
}

// MustRegisterOperator is RegisterOperator for package initialisation.
func MustRegisterOperator(spec Spec) {
	if err := RegisterOperator(spec); err != nil {
		panic(err)
	}
}

// ResolveOperator looks name up in the default registry.
func ResolveOperator(name string) (Spec, error) {
	return operatorRegistry.Resolve(name)
}

func ListOperators() []string {
	return operatorRegistry.Names()
}

// DefaultRegistry returns a copy of the default registry.
func DefaultRegistry() *Registry {
	return operatorRegistry.Clone()
}

func resetOperatorRegistryForTests() {
	operatorRegistry = NewRegistry()
	registerBuiltins(operatorRegistry)
}
