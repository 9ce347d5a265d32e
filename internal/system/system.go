// Package system runs compiled definitions. A System owns everything one run
// shares: the random source, the birthday clock, the operator table and the
// evaluation counter. An Experiment wires a System to a landscape and
// monitors and drives it to termination.
package system

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"k8s.io/klog/v2"

	"esdl/internal/config"
	"esdl/internal/esdl"
	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/monitor"

	_ "esdl/internal/species"
)

var (
	ErrNoDefinition = errors.New("system.definition is required")
	ErrPhase        = errors.New("operation not allowed in this phase")
)

// Phase is the lifecycle position of a System.
type Phase int

const (
	Uninitialized Phase = iota
	Initializing
	Running
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type Options struct {
	// Evaluator is bound to individuals made by generators. It may be nil
	// when every group is evaluated through EVAL.
	Evaluator model.Evaluator
	Monitor   monitor.Monitor
	// Registry replaces the default operator table.
	Registry *evo.Registry
	// Operators override or extend the operator table for this run.
	Operators []evo.Spec
}

// System executes one definition. It implements esdl.Host and monitor.State.
type System struct {
	cfg     *config.Tree
	vars    *config.Tree
	prog    *esdl.Program
	machine *esdl.Machine
	reg     *evo.Registry
	monitor monitor.Monitor

	seed      int64
	rng       *rand.Rand
	clock     *model.Clock
	evals     atomic.Uint64
	evaluator model.Evaluator
	workers   int
	runID     string

	failMu  sync.Mutex
	failure error

	phase      Phase
	generation int
}

// New compiles cfg.system.definition and prepares a run. cfg.random_seed
// seeds the shared random source; system.workers above one evaluates
// materialised groups concurrently.
func New(cfg *config.Tree, opts Options) (*System, error) {
	definition, err := cfg.String("system.definition", "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(definition) == "" {
		return nil, ErrNoDefinition
	}
	prog, err := esdl.Compile(definition)
	if err != nil {
		return nil, err
	}
	seed, err := cfg.Int("random_seed", 0)
	if err != nil {
		return nil, err
	}
	workers, err := cfg.Int("system.workers", 1)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	reg := opts.Registry
	if reg == nil {
		reg = evo.DefaultRegistry()
	} else {
		reg = reg.Clone()
	}
	for _, spec := range opts.Operators {
		if err := reg.Override(spec); err != nil {
			return nil, err
		}
	}
	mon := opts.Monitor
	if mon == nil {
		mon = monitor.Base{}
	}

	s := &System{
		cfg:     cfg,
		vars:    cfg.Sub("system"),
		prog:    prog,
		reg:     reg,
		monitor: mon,
		seed:    int64(seed),
		rng:     rand.New(rand.NewSource(int64(seed))),
		clock:   &model.Clock{},
		workers: workers,
		runID:   uuid.NewString(),
	}
	if opts.Evaluator != nil {
		s.evaluator = s.counting(opts.Evaluator)
	}
	s.countEvaluators()
	s.machine = esdl.NewMachine(prog, s)
	return s, nil
}

// countEvaluators wraps every evaluator operator so EVAL statements are
// counted like the default evaluator.
func (s *System) countEvaluators() {
	for _, name := range s.reg.Names() {
		spec, err := s.reg.Resolve(name)
		if err != nil || spec.Kind != evo.KindEvaluator {
			continue
		}
		factory := spec.Evaluator
		spec.Evaluator = func(env evo.Env, args evo.Args) (model.Evaluator, error) {
			ev, err := factory(env, args)
			if err != nil {
				return nil, err
			}
			return s.counting(ev), nil
		}
		_ = s.reg.Override(spec)
	}
}

// counting wraps ev so every evaluation is counted and the first failure is
// kept until the next group is stored or yielded.
func (s *System) counting(ev model.Evaluator) model.Evaluator {
	return model.EvaluatorFunc(func(phenome []float64) (model.Fitness, error) {
		s.evals.Add(1)
		f, err := ev.Evaluate(phenome)
		if err != nil {
			s.failMu.Lock()
			if s.failure == nil {
				s.failure = fmt.Errorf("%w: phenome %s: %v", model.ErrEvaluation, model.FormatValues(phenome), err)
			}
			s.failMu.Unlock()
		}
		return f, err
	})
}

// evaluationFailure returns the first failed evaluation since the last call,
// or the first one recorded in pop.
func (s *System) evaluationFailure(pop model.Population) error {
	s.failMu.Lock()
	err := s.failure
	s.failure = nil
	s.failMu.Unlock()
	if err != nil {
		return err
	}
	return pop.Err()
}

func (s *System) Program() *esdl.Program { return s.prog }
func (s *System) Phase() Phase           { return s.phase }

func (s *System) RunID() string       { return s.runID }
func (s *System) Seed() int64         { return s.seed }
func (s *System) Generation() int     { return s.generation }
func (s *System) Births() uint64      { return s.clock.Births() }
func (s *System) Evaluations() uint64 { return s.evals.Load() }

// Group returns the current contents of a program group.
func (s *System) Group(name string) (model.Population, error) {
	return s.machine.Group(name)
}

// Env implements esdl.Host.
func (s *System) Env() evo.Env {
	return evo.Env{Rand: s.rng, Evaluator: s.evaluator, Notify: s.monitor.OnNotify}
}

// Operators implements esdl.Host.
func (s *System) Operators() *evo.Registry { return s.reg }

// Lookup resolves names against the system section first, then exposes the
// whole configuration as cfg.
func (s *System) Lookup(name string) (any, bool) {
	if name == "cfg" {
		return s.cfg, true
	}
	if v, ok := s.vars.Attr(name); ok && v != nil {
		return v, true
	}
	return nil, false
}

// Store implements esdl.Host: groups are evaluated ahead of time when
// several workers are configured, then every member is born.
func (s *System) Store(ctx context.Context, name string, pop model.Population) error {
	if s.workers > 1 && len(pop) > 1 {
		if err := s.prefetch(ctx, pop); err != nil {
			return fmt.Errorf("evaluate group %s: %w", name, err)
		}
	}
	if err := s.evaluationFailure(pop); err != nil {
		return fmt.Errorf("group %s: %w", name, err)
	}
	for _, ind := range pop {
		ind.Born(s.clock)
	}
	return nil
}

// prefetch computes the fitness of every member concurrently. Individual
// fitness is memoised, so members shared with other groups are evaluated at
// most once.
func (s *System) prefetch(ctx context.Context, pop model.Population) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.workers)
	for _, ind := range pop {
		if ind.Evaluated() {
			continue
		}
		ind := ind
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ind.Fitness()
			return nil
		})
	}
	return p.Wait()
}

// Yield implements esdl.Host. The group is evaluated before the monitor
// sees it; a failed evaluation stops the run instead.
func (s *System) Yield(ctx context.Context, name string, pop model.Population) error {
	if s.workers > 1 && len(pop) > 1 {
		if err := s.prefetch(ctx, pop); err != nil {
			return fmt.Errorf("evaluate group %s: %w", name, err)
		}
	} else {
		for _, ind := range pop {
			ind.Fitness()
		}
	}
	if err := s.evaluationFailure(pop); err != nil {
		return fmt.Errorf("yield %s: %w", name, err)
	}
	s.monitor.OnYield(ctx, s, name, pop)
	return nil
}

// Begin runs the initialisation block. On failure the monitor sees the
// exception and the end of the run, and the system is terminated.
func (s *System) Begin(ctx context.Context) error {
	if s.phase != Uninitialized {
		return fmt.Errorf("%w: begin while %v", ErrPhase, s.phase)
	}
	logger := klog.FromContext(ctx)
	logger.V(2).Info("System initializing", "run", s.runID, "seed", s.seed, "workers", s.workers)
	for _, w := range s.prog.Warnings {
		logger.Info("Definition warning", "code", w.Code, "line", w.Line, "message", w.Message)
	}

	s.phase = Initializing
	s.generation = 0
	s.clock = &model.Clock{}
	s.monitor.OnRunStart(ctx, s)
	s.monitor.OnPreReset(ctx, s)
	if err := s.machine.Run(ctx, esdl.InitBlock); err != nil {
		s.monitor.OnException(ctx, s, err)
		s.monitor.OnPostReset(ctx, s)
		s.monitor.OnRunEnd(ctx, s)
		s.phase = Terminated
		return err
	}
	s.monitor.OnPostReset(ctx, s)
	s.phase = Running
	logger.V(2).Info("System running", "run", s.runID, "births", s.Births())
	return nil
}

// Step runs block once, generation by default. Names are case-insensitive.
func (s *System) Step(ctx context.Context, block string) error {
	if s.phase != Running {
		return fmt.Errorf("%w: step while %v", ErrPhase, s.phase)
	}
	if block == "" {
		block = esdl.GenerationBlock
	}
	s.generation++
	s.machine.Generation = s.generation
	s.monitor.OnPreBreed(ctx, s)
	err := s.machine.Run(ctx, block)
	if err != nil {
		s.monitor.OnException(ctx, s, err)
	}
	s.monitor.OnPostBreed(ctx, s)
	return err
}

// Close ends the run. It is safe to call more than once.
func (s *System) Close(ctx context.Context) {
	if s.phase == Terminated {
		return
	}
	s.phase = Terminated
	s.monitor.OnRunEnd(ctx, s)
	klog.FromContext(ctx).V(2).Info("System terminated", "run", s.runID, "generations", s.generation)
}

// SeedOffset reseeds the shared random source with seed+offset, for repeated
// runs of one configuration.
func (s *System) SeedOffset(offset int64) {
	s.rng.Seed(s.seed + offset)
}

// Info describes the system. Level 1 adds the definition, level 3 the
// configuration and level 4 the compiled program.
func (s *System) Info(level int) []string {
	out := []string{">> System"}
	if level > 0 {
		def, _ := s.cfg.String("system.definition", "")
		out = append(out, ">> Definition:", strings.Trim(def, " \t\n"), "")
	}
	if level > 3 {
		out = append(out, ">> Compiled program:", s.prog.Format(), "")
	}
	if level > 2 {
		out = append(out, ">> Configuration:")
		out = append(out, s.cfg.Lines()...)
	}
	return out
}
