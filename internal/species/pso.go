package species

import (
	"fmt"
	"math"

	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/stream"
)

// Particles keep positions in the first half of the genome and velocities
// in the second half. Traits.Lower and Traits.Upper hold both halves.

func init() {
	MustRegister(&Species{
		Name: "pso",
		Mutations: map[string]evo.Filter{
			"mutate_random":   realSpecies.mutateRandom,
			"mutate_delta":    realSpecies.mutateDelta,
			"mutate_gaussian": realSpecies.mutateGaussian,
		},
	})
	evo.MustRegisterOperator(evo.Spec{
		Name: "random_pso", Kind: evo.KindGenerator, Generator: randomPSO,
		Params: []string{"length", "lowest", "highest", "zero_velocity", "position_bounds", "velocity_bounds", "template"},
	})
	evo.MustRegisterOperator(evo.Spec{
		Name: "update_velocity", Kind: evo.KindFilter, Filter: updateVelocity,
		Params: []string{"global_best", "w", "inertia", "c1", "c2", "constriction"},
	})
	positions := map[string]rangeHandler{
		"update_position":        unbounded,
		"update_position_clamp":  clampPosition,
		"update_position_wrap":   wrapPosition,
		"update_position_bounce": bouncePosition,
	}
	for _, name := range []string{"update_position", "update_position_clamp", "update_position_wrap", "update_position_bounce"} {
		evo.MustRegisterOperator(evo.Spec{
			Name: name, Kind: evo.KindFilter, Filter: updatePosition(positions[name]),
			Params: []string{"delta", "time_step"},
		})
	}
}

// perGene expands a number or list into n values, repeating the last list
// element.
func perGene(v any, n int, name string) ([]float64, error) {
	values, ok, err := evo.Args{name: v}.Floats(name)
	if err != nil {
		f, ferr := evo.Args{name: v}.Float(name, 0)
		if ferr != nil {
			return nil, err
		}
		values, ok = []float64{f}, true
	}
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("%w: %s must not be empty", evo.ErrConfiguration, name)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = values[min(i, len(values)-1)]
	}
	return out, nil
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// hardBounds reads a [lower, upper] argument. Missing bounds are infinite.
func hardBounds(args evo.Args, name string, n int) (lower, upper []float64, err error) {
	if !args.Has(name) {
		return constant(math.Inf(-1), n), constant(math.Inf(1), n), nil
	}
	pair, ok := args[name].([]any)
	if !ok || len(pair) != 2 {
		return nil, nil, fmt.Errorf("%w: %s must be [lower, upper]", evo.ErrConfiguration, name)
	}
	if lower, err = perGene(pair[0], n, name); err != nil {
		return nil, nil, err
	}
	if upper, err = perGene(pair[1], n, name); err != nil {
		return nil, nil, err
	}
	return lower, upper, nil
}

func randomPSO(env evo.Env, args evo.Args) (stream.Stream, error) {
	n, err := args.Int("length", 2)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: length must be greater than zero", evo.ErrConfiguration)
	}
	zero, err := args.Bool("zero_velocity", true)
	if err != nil {
		return nil, err
	}
	var lowest, highest []float64
	if args.Has("template") {
		tmpl, err := args.Population("template")
		if err != nil {
			return nil, err
		}
		if len(tmpl) == 0 {
			return nil, fmt.Errorf("%w: template is empty", evo.ErrEmptyGroup)
		}
		t := tmpl[0].Traits()
		lowest, highest = make([]float64, n), make([]float64, n)
		for i := 0; i < n; i++ {
			lowest[i], highest[i] = t.GeneBounds(i)
		}
	} else {
		lowest, highest = constant(-1, n), constant(1, n)
		if args.Has("lowest") {
			if lowest, err = perGene(args["lowest"], n, "lowest"); err != nil {
				return nil, err
			}
		}
		if args.Has("highest") {
			if highest, err = perGene(args["highest"], n, "highest"); err != nil {
				return nil, err
			}
		}
	}
	for i := range lowest {
		if highest[i] <= lowest[i] {
			return nil, fmt.Errorf("%w: highest (%g) must be higher than lowest (%g)", evo.ErrConfiguration, highest[i], lowest[i])
		}
	}
	posLow, posHigh, err := hardBounds(args, "position_bounds", n)
	if err != nil {
		return nil, err
	}
	velLow, velHigh, err := hardBounds(args, "velocity_bounds", n)
	if err != nil {
		return nil, err
	}
	parent := model.FromSpecies(model.Traits{
		Species:   "pso",
		Evaluator: env.Evaluator,
		Bounds:    model.Bounds{Lowest: math.Inf(-1), Highest: math.Inf(1)},
		Lower:     append(posLow, velLow...),
		Upper:     append(posHigh, velHigh...),
		Particle:  true,
	})
	draw := func(i int, lo, hi []float64) float64 {
		a, b := math.Max(lowest[i], lo[i]), math.Min(highest[i], hi[i])
		return a + env.Rand.Float64()*(b-a)
	}
	return stream.Endless(func() (*model.Individual, error) {
		genes := make([]float64, 2*n)
		for i := 0; i < n; i++ {
			genes[i] = draw(i, posLow, posHigh)
		}
		if !zero {
			for i := 0; i < n; i++ {
				genes[n+i] = draw(i, velLow, velHigh)
			}
		}
		return model.New(genes, parent, nil), nil
	}), nil
}

func particle(ind *model.Individual, role string) error {
	if ind == nil || !ind.Traits().Particle {
		return fmt.Errorf("%w: update_velocity expects a particle as %s", evo.ErrConfiguration, role)
	}
	return nil
}

// updateVelocity consumes joined (particle, personal best) pairs and yields
// particles with new velocities clamped to their velocity bounds.
func updateVelocity(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	best, err := args.Population("global_best")
	if err != nil {
		return nil, err
	}
	if len(best) == 0 {
		return nil, fmt.Errorf("%w: global_best is empty", evo.ErrEmptyGroup)
	}
	gbest := best[0]
	if err := particle(gbest, "global_best"); err != nil {
		return nil, err
	}
	w, err := args.Float("w", 1.0)
	if err != nil {
		return nil, err
	}
	if w, err = args.Float("inertia", w); err != nil {
		return nil, err
	}
	c1, err := args.Float("c1", 2.0)
	if err != nil {
		return nil, err
	}
	c2, err := args.Float("c2", 2.0)
	if err != nil {
		return nil, err
	}
	constriction, err := args.Bool("constriction", false)
	if err != nil {
		return nil, err
	}
	if constriction {
		c := c1 + c2
		if c < 4 {
			return nil, fmt.Errorf("%w: constriction requires c1 + c2 >= 4, got %g", evo.ErrConfiguration, c)
		}
		k := 2 / math.Abs(2-c-math.Sqrt(c*(c-4)))
		w, c1, c2 = w*k, c1*k, c2*k
	}
	return stream.Map(src, func(pair *model.Individual) (*model.Individual, error) {
		members := pair.Members()
		if len(members) < 2 {
			return nil, fmt.Errorf("%w: update_velocity expects joined (particle, best) individuals", evo.ErrConfiguration)
		}
		ind, pbest := members[0], members[1]
		if err := particle(ind, "first member"); err != nil {
			return nil, err
		}
		if err := particle(pbest, "second member"); err != nil {
			return nil, err
		}
		n := ind.Len() / 2
		genome, pb, gb := ind.Genome(), pbest.Phenome(), gbest.Phenome()
		traits := ind.Traits()
		genes := append([]float64(nil), genome...)
		for i := 0; i < n && i < len(pb) && i < len(gb); i++ {
			pos, vel := genome[i], genome[n+i]
			v := w*vel + c1*env.Rand.Float64()*(pb[i]-pos) + c2*env.Rand.Float64()*(gb[i]-pos)
			lo, hi := traits.GeneBounds(n + i)
			genes[n+i] = clamp(v, lo, hi)
		}
		return model.New(genes, model.FromIndividual(ind), nil), nil
	}), nil
}

// rangeHandler resolves a position that may lie outside [low, high].
type rangeHandler func(pos, vel, low, high float64) (float64, float64)

func unbounded(pos, vel, _, _ float64) (float64, float64) { return pos, vel }

func clampPosition(pos, vel, low, high float64) (float64, float64) {
	switch {
	case pos < low:
		return low, 0
	case pos > high:
		return high, 0
	}
	return pos, vel
}

func wrapPosition(pos, vel, low, high float64) (float64, float64) {
	switch {
	case pos < low:
		pos = high - (low - pos)
	case pos > high:
		pos = low + (pos - high)
	}
	return pos, vel
}

func bouncePosition(pos, vel, low, high float64) (float64, float64) {
	switch {
	case pos < low:
		return low + low - pos, -vel
	case pos > high:
		return high + high - pos, -vel
	}
	return pos, vel
}

func updatePosition(handle rangeHandler) evo.Filter {
	return func(_ evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
		delta, err := args.Float("delta", 1.0)
		if err != nil {
			return nil, err
		}
		if delta == 0 {
			if delta, err = args.Float("time_step", 0); err != nil {
				return nil, err
			}
		}
		return stream.Map(src, func(ind *model.Individual) (*model.Individual, error) {
			if !ind.Traits().Particle {
				return nil, fmt.Errorf("%w: position updates expect particles, got %s", evo.ErrConfiguration, ind.Species())
			}
			n := ind.Len() / 2
			traits := ind.Traits()
			genes := append([]float64(nil), ind.Genome()...)
			for i := 0; i < n; i++ {
				lo, hi := traits.GeneBounds(i)
				genes[i], genes[n+i] = handle(genes[i]+genes[n+i]*delta, genes[n+i], lo, hi)
			}
			return model.New(genes, model.FromIndividual(ind), nil), nil
		}), nil
	}
}
