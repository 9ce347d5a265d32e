package species

import (
	"fmt"
	"math"

	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/stream"
)

// numeric implements the real and integer species, which differ only in
// whether genes are whole numbers.
type numeric struct {
	name      string
	integral  bool
	lowest    float64
	highest   float64
	deltaStep float64
	gaussStep float64
}

var (
	realSpecies = numeric{name: "real", lowest: 0, highest: 1, deltaStep: 0.1, gaussStep: 0.1}
	intSpecies  = numeric{name: "integer", integral: true, lowest: 0, highest: 255, deltaStep: 1, gaussStep: 1}
)

var initParams = []string{"length", "shortest", "longest", "lowest", "highest", "bounds", "template"}

func init() {
	for _, n := range []numeric{realSpecies, intSpecies} {
		MustRegister(&Species{
			Name:   n.name,
			Random: n.random,
			Mutations: map[string]evo.Filter{
				"mutate_random":   n.mutateRandom,
				"mutate_delta":    n.mutateDelta,
				"mutate_gaussian": n.mutateGaussian,
			},
		})
	}
	registerGenerators(map[string]evo.Generator{
		"random_real": realSpecies.generator(realSpecies.uniform),
		"real_low":    realSpecies.generator(low),
		"real_high":   realSpecies.generator(high),
		"real_toggle": realSpecies.toggle,
	}, initParams)
	registerGenerators(map[string]evo.Generator{
		"random_int":        intSpecies.generator(intSpecies.uniform),
		"random_integer":    intSpecies.generator(intSpecies.uniform),
		"integer_low":       intSpecies.generator(low),
		"integer_high":      intSpecies.generator(high),
		"integer_toggle":    intSpecies.toggle,
		"integer_increment": intSpecies.generator(increment),
		"integer_count":     intSpecies.count,
	}, initParams)
}

func isWhole(v float64) bool { return v == math.Trunc(v) && !math.IsInf(v, 0) }

type numericInit struct {
	lengths span
	lowest  float64
	highest float64
	bounds  model.Bounds
}

func (n numeric) parseInit(args evo.Args) (numericInit, error) {
	var o numericInit
	var err error
	if o.lengths, err = parseSpan(args, 10, 10, true); err != nil {
		return o, err
	}
	if o.lowest, err = args.Float("lowest", n.lowest); err != nil {
		return o, err
	}
	if o.highest, err = args.Float("highest", n.highest); err != nil {
		return o, err
	}
	if args.Has("template") {
		tmpl, err := args.Population("template")
		if err != nil {
			return o, err
		}
		if len(tmpl) > 0 {
			o.lowest, o.highest = tmpl[0].Bounds().Lowest, tmpl[0].Bounds().Highest
		}
	}
	if n.integral && (!isWhole(o.lowest) || !isWhole(o.highest)) {
		return o, fmt.Errorf("%w: integer bounds must be whole numbers (%g, %g)", evo.ErrConfiguration, o.lowest, o.highest)
	}
	if o.highest <= o.lowest {
		return o, fmt.Errorf("%w: highest (%g) must be higher than lowest (%g)", evo.ErrConfiguration, o.highest, o.lowest)
	}
	o.bounds = model.Bounds{Lowest: o.lowest, Highest: o.highest}
	if args.Has("bounds") {
		b, _, err := args.Pair("bounds")
		if err != nil {
			return o, err
		}
		if n.integral {
			b[0], b[1] = math.Trunc(b[0]), math.Trunc(b[1])
		}
		if b[1] <= b[0] {
			return o, fmt.Errorf("%w: bounds [%g, %g] are empty", evo.ErrConfiguration, b[0], b[1])
		}
		o.bounds = model.Bounds{Lowest: b[0], Highest: b[1]}
		o.lowest = math.Max(o.lowest, b[0])
		o.highest = math.Min(o.highest, b[1])
		if o.highest <= o.lowest {
			return o, fmt.Errorf("%w: bounds [%g, %g] leave no initial values between lowest and highest", evo.ErrConfiguration, b[0], b[1])
		}
	}
	return o, nil
}

func (n numeric) traits(env evo.Env, o numericInit) model.Traits {
	return model.Traits{Species: n.name, Evaluator: env.Evaluator, Bounds: o.bounds, Integral: n.integral}
}

type geneFunc func(env evo.Env, lowest, highest float64, i int) float64

func (n numeric) uniform(env evo.Env, lowest, highest float64, _ int) float64 {
	if n.integral {
		return lowest + float64(env.Rand.Intn(int(highest-lowest)+1))
	}
	return lowest + env.Rand.Float64()*(highest-lowest)
}

func low(_ evo.Env, lowest, _ float64, _ int) float64 { return lowest }

func high(_ evo.Env, _, highest float64, _ int) float64 { return highest }

func increment(_ evo.Env, lowest, highest float64, i int) float64 {
	return float64(i%int(highest-lowest)) + lowest
}

func (n numeric) endless(env evo.Env, o numericInit, gen geneFunc) *stream.Func {
	parent := model.FromSpecies(n.traits(env, o))
	return stream.Endless(func() (*model.Individual, error) {
		genes := make([]float64, o.lengths.draw(env.Rand))
		for i := range genes {
			genes[i] = gen(env, o.lowest, o.highest, i)
		}
		return model.New(genes, parent, nil), nil
	})
}

func (n numeric) generator(gen geneFunc) evo.Generator {
	return func(env evo.Env, args evo.Args) (stream.Stream, error) {
		o, err := n.parseInit(args)
		if err != nil {
			return nil, err
		}
		return n.endless(env, o, gen), nil
	}
}

// toggle alternates individuals of highest and lowest values, highest first.
func (n numeric) toggle(env evo.Env, args evo.Args) (stream.Stream, error) {
	o, err := n.parseInit(args)
	if err != nil {
		return nil, err
	}
	highs, lows := n.endless(env, o, high), n.endless(env, o, low)
	next := false
	return stream.Endless(func() (*model.Individual, error) {
		next = !next
		src := highs
		if !next {
			src = lows
		}
		ind, _ := src.Next()
		return ind, nil
	}), nil
}

// count fills each individual with a single value, cycling from lowest to
// highest inclusive.
func (n numeric) count(env evo.Env, args evo.Args) (stream.Stream, error) {
	o, err := n.parseInit(args)
	if err != nil {
		return nil, err
	}
	parent := model.FromSpecies(n.traits(env, o))
	value := o.lowest
	return stream.Endless(func() (*model.Individual, error) {
		genes := make([]float64, o.lengths.draw(env.Rand))
		for i := range genes {
			genes[i] = value
		}
		if value++; value > o.highest {
			value = o.lowest
		}
		return model.New(genes, parent, nil), nil
	}), nil
}

func (n numeric) random(env evo.Env, template *model.Individual, count int) []float64 {
	traits := template.Traits()
	genes := make([]float64, count)
	for i := range genes {
		lo, hi := traits.GeneBounds(i)
		genes[i] = n.uniform(env, lo, hi, i)
	}
	return genes
}

func (n numeric) mutateRandom(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	r, err := parseRates(args, 1.0, 0.1)
	if err != nil {
		return nil, err
	}
	count, err := args.Int("genes", 0)
	if err != nil {
		return nil, err
	}
	return eachIndividual(env, src, r.indiv, func(ind *model.Individual) (*model.Individual, error) {
		traits := ind.Traits()
		genes := someGenes(env, ind, r.gene, count, func(i int, _ float64) float64 {
			lo, hi := traits.GeneBounds(i)
			return n.uniform(env, lo, hi, i)
		})
		return model.New(genes, model.FromIndividual(ind), mutated), nil
	}), nil
}

func (n numeric) mutateDelta(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	r, err := parseRates(args, 1.0, 0.1)
	if err != nil {
		return nil, err
	}
	step, err := args.Float("step_size", n.deltaStep)
	if err != nil {
		return nil, err
	}
	if n.integral && !isWhole(step) {
		return nil, fmt.Errorf("%w: step_size must be a whole number for integer individuals", evo.ErrConfiguration)
	}
	positive, err := args.Float("positive_rate", 0.5)
	if err != nil {
		return nil, err
	}
	return eachIndividual(env, src, r.indiv, func(ind *model.Individual) (*model.Individual, error) {
		traits := ind.Traits()
		sum := 0.0
		genes := eachGene(env, ind, r.gene, func(i int, g float64) float64 {
			sum += step
			lo, hi := traits.GeneBounds(i)
			if env.Chance(positive) {
				return clamp(g+step, lo, hi)
			}
			return clamp(g-step, lo, hi)
		})
		return model.New(genes, model.FromIndividual(ind), model.Statistic{"mutated": 1, "step_sum": sum}), nil
	}), nil
}

func (n numeric) mutateGaussian(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	r, err := parseRates(args, 1.0, 0.1)
	if err != nil {
		return nil, err
	}
	step, err := args.Float("step_size", n.gaussStep)
	if err != nil {
		return nil, err
	}
	sigma, err := args.Float("sigma", 0)
	if err != nil {
		return nil, err
	}
	if sigma == 0 {
		sigma = step * 1.253
	}
	return eachIndividual(env, src, r.indiv, func(ind *model.Individual) (*model.Individual, error) {
		traits := ind.Traits()
		sum := 0.0
		genes := eachGene(env, ind, r.gene, func(i int, g float64) float64 {
			delta := env.Rand.NormFloat64() * sigma
			if n.integral {
				delta = math.Trunc(delta)
			}
			sum += delta
			lo, hi := traits.GeneBounds(i)
			return clamp(g+delta, lo, hi)
		})
		return model.New(genes, model.FromIndividual(ind), model.Statistic{"mutated": 1, "step_sum": sum}), nil
	}), nil
}
