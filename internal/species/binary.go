package species

import (
	"math"

	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/stream"
)

func init() {
	MustRegister(&Species{
		Name:   "binary",
		Random: randomBits,
		Mutations: map[string]evo.Filter{
			"mutate_random":        mutateBits(func(env evo.Env, _ float64) float64 { return randomBit(env, 0.5) }),
			"mutate_bitflip":       mutateBits(func(_ evo.Env, g float64) float64 { return 1 - g }),
			"mutate_inversion":     mutateInversion,
			"mutate_gap_inversion": mutateGapInversion,
		},
	})
	lengths := []string{"length", "shortest", "longest"}
	registerGenerators(map[string]evo.Generator{
		"random_binary": binaryGenerator(nil, func(env evo.Env, _ int) float64 { return initBit(env) }),
		"binary_zero":   binaryGenerator(nil, func(evo.Env, int) float64 { return 0 }),
		"binary_one":    binaryGenerator(nil, func(evo.Env, int) float64 { return 1 }),
		"binary_toggle": binaryToggle,
	}, lengths)
	registerGenerators(map[string]evo.Generator{
		"random_real_binary":    binaryGenerator(&model.Decoding{Resolution: 0.1}, func(env evo.Env, _ int) float64 { return initBit(env) }),
		"random_integer_binary": binaryGenerator(&model.Decoding{Resolution: 1, Integer: true}, func(env evo.Env, _ int) float64 { return initBit(env) }),
	}, append(lengths, "resolution", "offset", "bits_per_value"))
}

// initBit is zero when the draw is at most one half.
func initBit(env evo.Env) float64 {
	if env.Rand.Float64() <= 0.5 {
		return 0
	}
	return 1
}

func randomBit(env evo.Env, zeroRate float64) float64 {
	if env.Rand.Float64() < zeroRate {
		return 0
	}
	return 1
}

func randomBits(env evo.Env, _ *model.Individual, n int) []float64 {
	genes := make([]float64, n)
	for i := range genes {
		genes[i] = initBit(env)
	}
	return genes
}

func binaryTraits(env evo.Env, decoding *model.Decoding) model.Traits {
	return model.Traits{
		Species:   "binary",
		Evaluator: env.Evaluator,
		Bounds:    model.Bounds{Lowest: 0, Highest: 1},
		Integral:  true,
		Decoding:  decoding,
	}
}

func parseDecoding(args evo.Args, def *model.Decoding) (*model.Decoding, error) {
	d := *def
	var err error
	if d.Resolution, err = args.Float("resolution", def.Resolution); err != nil {
		return nil, err
	}
	if d.Offset, err = args.Float("offset", def.Offset); err != nil {
		return nil, err
	}
	if d.Integer {
		d.Resolution, d.Offset = math.Trunc(d.Resolution), math.Trunc(d.Offset)
	}
	if widths, ok, err := args.Floats("bits_per_value"); err == nil && ok {
		for _, w := range widths {
			d.Widths = append(d.Widths, int(w))
		}
	} else if d.Width, err = args.Int("bits_per_value", 0); err != nil {
		return nil, err
	}
	return &d, nil
}

func binaryGenerator(decoding *model.Decoding, bit func(env evo.Env, i int) float64) evo.Generator {
	return func(env evo.Env, args evo.Args) (stream.Stream, error) {
		lengths, err := parseSpan(args, 10, 10, true)
		if err != nil {
			return nil, err
		}
		d := decoding
		if decoding != nil {
			if d, err = parseDecoding(args, decoding); err != nil {
				return nil, err
			}
		}
		parent := model.FromSpecies(binaryTraits(env, d))
		return stream.Endless(func() (*model.Individual, error) {
			genes := make([]float64, lengths.draw(env.Rand))
			for i := range genes {
				genes[i] = bit(env, i)
			}
			return model.New(genes, parent, nil), nil
		}), nil
	}
}

// binaryToggle alternates all-ones and all-zeros individuals, ones first.
func binaryToggle(env evo.Env, args evo.Args) (stream.Stream, error) {
	lengths, err := parseSpan(args, 10, 10, true)
	if err != nil {
		return nil, err
	}
	parent := model.FromSpecies(binaryTraits(env, nil))
	value := 0.0
	return stream.Endless(func() (*model.Individual, error) {
		value = 1 - value
		genes := make([]float64, lengths.draw(env.Rand))
		for i := range genes {
			genes[i] = value
		}
		return model.New(genes, parent, nil), nil
	}), nil
}

// mutateBits rewrites genes with fn. When genes is given exactly that many
// distinct positions are rewritten and per_gene_rate is ignored.
func mutateBits(fn func(env evo.Env, g float64) float64) evo.Filter {
	return func(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
		r, err := parseRates(args, 1.0, 0.1)
		if err != nil {
			return nil, err
		}
		count, err := args.Int("genes", 0)
		if err != nil {
			return nil, err
		}
		return eachIndividual(env, src, r.indiv, func(ind *model.Individual) (*model.Individual, error) {
			genes := someGenes(env, ind, r.gene, count, func(_ int, g float64) float64 { return fn(env, g) })
			return model.New(genes, model.FromIndividual(ind), mutated), nil
		}), nil
	}
}

func invert(genes []float64, from, to int) {
	for i := from; i < to; i++ {
		genes[i] = 1 - genes[i]
	}
}

func mutateInversion(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	rate, err := args.Float("per_indiv_rate", 0.1)
	if err != nil {
		return nil, err
	}
	return eachIndividual(env, src, rate, func(ind *model.Individual) (*model.Individual, error) {
		genes := append([]float64(nil), ind.Genome()...)
		invert(genes, 0, len(genes))
		return model.New(genes, model.FromIndividual(ind), mutated), nil
	}), nil
}

// mutateGapInversion inverts one contiguous run of genes, or the whole
// genome when the run would not fit.
func mutateGapInversion(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	rate, err := args.Float("per_indiv_rate", 0.1)
	if err != nil {
		return nil, err
	}
	lengths, err := parseSpan(args, 1, 10, true)
	if err != nil {
		return nil, err
	}
	return eachIndividual(env, src, rate, func(ind *model.Individual) (*model.Individual, error) {
		genes := append([]float64(nil), ind.Genome()...)
		length := lengths.draw(env.Rand)
		cut1, cut2 := 0, len(genes)
		if maxCut := len(genes) - length; maxCut > 0 {
			cut1 = env.Rand.Intn(maxCut)
			cut2 = cut1 + length
		}
		invert(genes, cut1, cut2)
		return model.New(genes, model.FromIndividual(ind), mutated), nil
	}), nil
}
