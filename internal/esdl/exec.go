package esdl

import (
	"context"
	"errors"
	"fmt"

	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/stream"
)

// Host supplies a running program with randomness, operators and the
// outside world.
type Host interface {
	Env() evo.Env
	Operators() *evo.Registry
	// Lookup resolves names the program does not define itself.
	Lookup(name string) (any, bool)
	// Store is called with every group before it is assigned. Individuals
	// are born here.
	Store(ctx context.Context, name string, pop model.Population) error
	Yield(ctx context.Context, name string, pop model.Population) error
}

// Machine executes the blocks of a program. Variables persist across
// blocks and runs.
type Machine struct {
	prog *Program
	host Host
	vars map[string]any

	// Generation is reported in runtime errors.
	Generation int
}

func NewMachine(prog *Program, host Host) *Machine {
	return &Machine{prog: prog, host: host, vars: make(map[string]any)}
}

// Var returns a program variable.
func (m *Machine) Var(name string) (any, bool) {
	v, ok := m.vars[blockKey(name)]
	return v, ok
}

// Set assigns a program variable.
func (m *Machine) Set(name string, v any) { m.vars[blockKey(name)] = v }

// Group returns a group variable. A group the program selects into
// somewhere is empty until then; other names must be provided by the host.
func (m *Machine) Group(name string) (model.Population, error) {
	key := blockKey(name)
	if v, ok := m.vars[key]; ok {
		return asPopulation(name, v)
	}
	if m.prog.Defines(key) {
		return nil, nil
	}
	if v, ok := m.host.Lookup(key); ok {
		return asPopulation(name, v)
	}
	return nil, fmt.Errorf("%w: group %s", ErrUndefined, name)
}

// Run executes block. The context is checked before every statement.
func (m *Machine) Run(ctx context.Context, block string) error {
	b, err := m.prog.Block(block)
	if err != nil {
		return err
	}
	return m.exec(ctx, b.Name, b.Body)
}

func (m *Machine) exec(ctx context.Context, block string, stmts []Stmt) error {
	for _, s := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.stmt(ctx, block, s); err != nil {
			var se *StatementError
			if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return &StatementError{Block: block, Line: s.Line(), Statement: s.Text(), Generation: m.Generation, Err: err}
		}
	}
	return nil
}

func (m *Machine) stmt(ctx context.Context, block string, s Stmt) error {
	switch s := s.(type) {
	case *FromStmt:
		return m.from(ctx, s)
	case *JoinStmt:
		return m.join(ctx, s)
	case *YieldStmt:
		for _, n := range s.Groups {
			pop, err := m.Group(n.Name)
			if err != nil {
				return err
			}
			if err := m.host.Yield(ctx, n.Name, pop); err != nil {
				return err
			}
		}
		return nil
	case *EvalStmt:
		return m.evaluate(s)
	case *AssignStmt:
		v, err := m.eval(s.Value)
		if err != nil {
			return err
		}
		m.vars[s.Name.Name] = v
		return nil
	case *ExprStmt:
		_, err := m.eval(s.X)
		return err
	case *RepeatStmt:
		n, err := m.count(s.Count, "REPEAT count")
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := m.exec(ctx, block, s.Body); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported statement %T", s)
}

func (m *Machine) from(ctx context.Context, s *FromStmt) error {
	srcs := make([]stream.Stream, 0, len(s.Sources))
	for _, g := range s.Sources {
		src, err := m.source(g.X)
		if err != nil {
			return err
		}
		srcs = append(srcs, src)
	}
	st, err := m.filters(stream.Concat(srcs...), s.Using)
	if err != nil {
		return err
	}
	return m.distribute(ctx, st, s.Dests)
}

// source resolves a FROM item: a group, a generator name or a generator
// call. Groups shadow generators.
func (m *Machine) source(x Expr) (stream.Stream, error) {
	name, call, _ := operatorName(x)
	if call == nil {
		if v, ok := m.vars[name]; ok {
			pop, err := asPopulation(name, v)
			if err != nil {
				return nil, err
			}
			return stream.Of(pop), nil
		}
		spec, err := m.host.Operators().Resolve(name)
		if errors.Is(err, evo.ErrOperatorNotFound) {
			pop, gerr := m.Group(name)
			if gerr != nil {
				return nil, gerr
			}
			return stream.Of(pop), nil
		}
		if err != nil {
			return nil, err
		}
		if spec.Kind != evo.KindGenerator {
			return nil, fmt.Errorf("%w: %s is a %v, expected a group or generator", evo.ErrOperatorKind, name, spec.Kind)
		}
		return spec.Generator(m.host.Env(), evo.Args{})
	}
	spec, args, err := m.operator(name, call, evo.KindGenerator)
	if err != nil {
		return nil, err
	}
	return spec.Generator(m.host.Env(), args)
}

// operator resolves a call of an operator of one of kinds and evaluates its
// arguments.
func (m *Machine) operator(name string, call *Call, kinds ...evo.Kind) (evo.Spec, evo.Args, error) {
	spec, err := m.host.Operators().ResolveKind(name, kinds...)
	if err != nil {
		return evo.Spec{}, nil, err
	}
	args := evo.Args{}
	if call != nil {
		if args, err = m.keywords(name, call.Args); err != nil {
			return evo.Spec{}, nil, err
		}
	}
	if err := spec.CheckArgs(args); err != nil {
		return evo.Spec{}, nil, err
	}
	return spec, args, nil
}

func (m *Machine) filters(st stream.Stream, using []Expr) (stream.Stream, error) {
	for _, u := range using {
		name, call, _ := operatorName(u)
		spec, args, err := m.operator(name, call, evo.KindFilter)
		if err != nil {
			return nil, err
		}
		if st, err = spec.Filter(m.host.Env(), st, args); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return st, nil
}

// distribute fills the destinations in order. An unsized destination takes
// the rest of the stream and leaves later destinations empty.
func (m *Machine) distribute(ctx context.Context, st stream.Stream, dests []Group) error {
	drained := false
	for _, g := range dests {
		name := g.X.(*Name).Name
		var (
			pop model.Population
			err error
		)
		switch {
		case drained:
		case g.Size == nil:
			pop, err = stream.Collect(st)
			drained = true
		default:
			var n int
			if n, err = m.count(g.Size, "size of group "+name); err == nil {
				pop, err = stream.Take(st, n)
			}
		}
		if err != nil {
			return fmt.Errorf("group %s: %w", name, err)
		}
		if err := m.host.Store(ctx, name, pop); err != nil {
			return err
		}
		m.vars[name] = pop
	}
	return nil
}

func (m *Machine) join(ctx context.Context, s *JoinStmt) error {
	groups := make([]model.Population, len(s.Sources))
	names := make([]string, len(s.Sources))
	for i, g := range s.Sources {
		names[i] = g.X.(*Name).Name
		pop, err := m.Group(names[i])
		if err != nil {
			return err
		}
		groups[i] = pop
	}
	using := s.Using
	var (
		joiner evo.Spec
		args   = evo.Args{}
		err    error
	)
	if len(using) > 0 {
		name, call, _ := operatorName(using[0])
		if spec, rerr := m.host.Operators().Resolve(name); rerr == nil && spec.Kind == evo.KindJoiner {
			if joiner, args, err = m.operator(name, call, evo.KindJoiner); err != nil {
				return err
			}
			using = using[1:]
		}
	}
	if joiner.Joiner == nil {
		if joiner, err = m.host.Operators().ResolveKind(evo.DefaultJoiner, evo.KindJoiner); err != nil {
			return err
		}
	}
	st, err := joiner.Joiner(m.host.Env(), groups, names, args)
	if err != nil {
		return fmt.Errorf("%s: %w", joiner.Name, err)
	}
	if st, err = m.filters(st, using); err != nil {
		return err
	}
	return m.distribute(ctx, st, s.Dests)
}

// evaluate rebinds the evaluator of every individual in the groups.
func (m *Machine) evaluate(s *EvalStmt) error {
	env := m.host.Env()
	ev := env.Evaluator
	if s.Using != nil {
		name, call, _ := operatorName(s.Using)
		spec, args, err := m.operator(name, call, evo.KindEvaluator)
		if err != nil {
			return err
		}
		if ev, err = spec.Evaluator(env, args); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, n := range s.Groups {
		pop, err := m.Group(n.Name)
		if err != nil {
			return err
		}
		for _, ind := range pop {
			ind.Reevaluate(ev)
		}
	}
	return nil
}

// count evaluates a non-negative whole number.
func (m *Machine) count(e Expr, what string) (int, error) {
	v, err := m.eval(e)
	if err != nil {
		return 0, err
	}
	f, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrType, what, v)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %g", evo.ErrConfiguration, what, f)
	}
	return int(f), nil
}

func asPopulation(name string, v any) (model.Population, error) {
	switch x := v.(type) {
	case model.Population:
		return x, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s is a %T, not a group", ErrType, name, v)
}
