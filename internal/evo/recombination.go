package evo

import (
	"fmt"
	"sort"

	"esdl/internal/model"
	"esdl/internal/stream"
)

var recombined = model.Statistic{"recombined": 1}

type pairOptions struct {
	rate     float64
	oneChild bool
}

func parsePairOptions(args Args) (pairOptions, error) {
	var o pairOptions
	var err error
	if o.rate, err = args.Rate(1.0, "per_pair_rate", "per_indiv_rate"); err != nil {
		return o, err
	}
	if o.oneChild, err = args.Bool("one_child", false); err != nil {
		return o, err
	}
	if args.Has("two_children") {
		two, err := args.Bool("two_children", true)
		if err != nil {
			return o, err
		}
		o.oneChild = !two
	}
	return o, nil
}

// passThrough returns src untouched, or every other individual when only
// one child per pair is wanted.
func passThrough(src stream.Stream, o pairOptions) stream.Stream {
	if !o.oneChild {
		return src
	}
	keep := false
	return stream.Filter(src, func(*model.Individual) bool {
		keep = !keep
		return keep
	})
}

// pairwise takes individuals two at a time and crosses each pair with
// probability o.rate. A trailing unpaired individual is dropped.
func pairwise(env Env, src stream.Stream, o pairOptions, cross func(a, b *model.Individual) (*model.Individual, *model.Individual)) stream.Stream {
	var pending *model.Individual
	return stream.Derived(src, func() (*model.Individual, bool, error) {
		if pending != nil {
			out := pending
			pending = nil
			return out, true, nil
		}
		a, ok := src.Next()
		if !ok {
			return nil, false, src.Err()
		}
		b, ok := src.Next()
		if !ok {
			return nil, false, src.Err()
		}
		if env.Chance(o.rate) {
			a, b = cross(a, b)
		}
		if o.oneChild {
			if env.Rand.Float64() < 0.5 {
				return a, true, nil
			}
			return b, true, nil
		}
		pending = b
		return a, true, nil
	})
}

func crossoverUniform(env Env, src stream.Stream, args Args) (stream.Stream, error) {
	o, err := parsePairOptions(args)
	if err != nil {
		return nil, err
	}
	geneRate, err := args.Float("per_gene_rate", 0.5)
	if err != nil {
		return nil, err
	}
	if o.rate <= 0 || geneRate <= 0 {
		return passThrough(src, o), nil
	}
	return pairwise(env, src, o, func(a, b *model.Individual) (*model.Individual, *model.Individual) {
		ga, gb := a.Genome(), b.Genome()
		na := append([]float64(nil), ga...)
		nb := append([]float64(nil), gb...)
		for i := 0; i < min(len(ga), len(gb)); i++ {
			if env.Rand.Float64() < geneRate {
				na[i], nb[i] = gb[i], ga[i]
			}
		}
		return model.New(na, model.FromIndividual(a), recombined), model.New(nb, model.FromIndividual(b), recombined)
	}), nil
}

// cutPoints draws up to points distinct cuts from 1..length-1 in ascending
// order, with length appended.
func cutPoints(env Env, length, points int) []int {
	cuts := make([]int, 0, length)
	for c := 1; c < length; c++ {
		cuts = append(cuts, c)
	}
	env.Rand.Shuffle(len(cuts), func(i, j int) { cuts[i], cuts[j] = cuts[j], cuts[i] })
	if len(cuts) > points {
		cuts = cuts[:points]
	}
	sort.Ints(cuts)
	return append(cuts, length)
}

// segments splits genome at the boundaries 0, cuts... and returns the
// pieces; genes past the last cut are returned as a final piece.
func segments(genome []float64, cuts []int) [][]float64 {
	out := make([][]float64, 0, len(cuts)+1)
	start := 0
	for _, c := range cuts {
		out = append(out, genome[start:c])
		start = c
	}
	return append(out, genome[start:])
}

// exchange builds a child from own, taking odd-numbered segments from other.
func exchange(own, other [][]float64) []float64 {
	var out []float64
	for k := range own {
		if k%2 == 1 && k < len(own)-1 {
			out = append(out, other[k]...)
		} else {
			out = append(out, own[k]...)
		}
	}
	return out
}

// crossoverSame exchanges alternate segments between cuts common to both
// parents.
func crossoverSame(defaultPoints int) Filter {
	return func(env Env, src stream.Stream, args Args) (stream.Stream, error) {
		o, err := parsePairOptions(args)
		if err != nil {
			return nil, err
		}
		points, err := args.Int("points", defaultPoints)
		if err != nil {
			return nil, err
		}
		if o.rate <= 0 || points < 1 {
			return passThrough(src, o), nil
		}
		return pairwise(env, src, o, func(a, b *model.Individual) (*model.Individual, *model.Individual) {
			ga, gb := a.Genome(), b.Genome()
			if len(ga) <= points || len(gb) <= points {
				return a, b
			}
			cuts := cutPoints(env, min(len(ga), len(gb)), points)
			sa, sb := segments(ga, cuts), segments(gb, cuts)
			return model.New(exchange(sa, sb), model.FromIndividual(a), recombined),
				model.New(exchange(sb, sa), model.FromIndividual(b), recombined)
		}), nil
	}
}

// crossoverDifferent is crossoverSame with independent cuts per parent, so
// children may change length.
func crossoverDifferent(defaultPoints int) Filter {
	return func(env Env, src stream.Stream, args Args) (stream.Stream, error) {
		o, err := parsePairOptions(args)
		if err != nil {
			return nil, err
		}
		points, err := args.Int("points", defaultPoints)
		if err != nil {
			return nil, err
		}
		longest, err := args.Int("longest_result", 0)
		if err != nil {
			return nil, err
		}
		if o.rate <= 0 || points < 1 {
			return passThrough(src, o), nil
		}
		return pairwise(env, src, o, func(a, b *model.Individual) (*model.Individual, *model.Individual) {
			ga, gb := a.Genome(), b.Genome()
			if len(ga) <= points || len(gb) <= points {
				return a, b
			}
			sa := segments(ga, cutPoints(env, len(ga), points))
			sb := segments(gb, cutPoints(env, len(gb), points))
			na, nb := exchange(sa, sb), exchange(sb, sa)
			if longest > 0 && len(na) > longest {
				env.Report("crossover_different", "aborted", map[string]int{"longest_result": longest, "i1_len": len(na)})
			} else {
				a = model.New(na, model.FromIndividual(a), recombined)
			}
			if longest > 0 && len(nb) > longest {
				env.Report("crossover_different", "aborted", map[string]int{"longest_result": longest, "i2_len": len(nb)})
			} else {
				b = model.New(nb, model.FromIndividual(b), recombined)
			}
			return a, b
		}), nil
	}
}

// crossoverSegmented swaps runs of genes; each gene ends the current run
// with probability switch_rate.
func crossoverSegmented(env Env, src stream.Stream, args Args) (stream.Stream, error) {
	o, err := parsePairOptions(args)
	if err != nil {
		return nil, err
	}
	switchRate, err := args.Float("switch_rate", 0.1)
	if err != nil {
		return nil, err
	}
	if o.rate <= 0 || switchRate <= 0 || switchRate >= 1 {
		return passThrough(src, o), nil
	}
	return pairwise(env, src, o, func(a, b *model.Individual) (*model.Individual, *model.Individual) {
		ga, gb := a.Genome(), b.Genome()
		na := append([]float64(nil), ga...)
		nb := append([]float64(nil), gb...)
		exchanging := env.Rand.Float64() < switchRate
		for i := 0; i < min(len(ga), len(gb)); i++ {
			if exchanging {
				na[i], nb[i] = gb[i], ga[i]
			}
			if env.Rand.Float64() < switchRate {
				exchanging = !exchanging
			}
		}
		return model.New(na, model.FromIndividual(a), recombined), model.New(nb, model.FromIndividual(b), recombined)
	}), nil
}

// crossoverTuple builds one child per joined individual, taking each gene
// from one of its members. per_gene_rate is the chance of not using the
// first member; without it every member is equally likely.
func crossoverTuple(env Env, src stream.Stream, args Args) (stream.Stream, error) {
	rate, err := args.Rate(1.0, "per_indiv_rate", "per_pair_rate")
	if err != nil {
		return nil, err
	}
	geneRate, hasGeneRate, err := args.OptFloat("per_gene_rate")
	if err != nil {
		return nil, err
	}
	firstMember := func(ind *model.Individual) (*model.Individual, error) {
		if !ind.Joined() || len(ind.Members()) == 0 {
			return nil, fmt.Errorf("%w: crossover_tuple requires joined individuals", ErrConfiguration)
		}
		return ind.Members()[0], nil
	}
	if rate <= 0 || (hasGeneRate && geneRate >= 1) {
		return stream.Map(src, firstMember), nil
	}
	return stream.Map(src, func(ind *model.Individual) (*model.Individual, error) {
		head, err := firstMember(ind)
		if err != nil {
			return nil, err
		}
		if !env.Chance(rate) {
			return head, nil
		}
		members := ind.Members()
		longest := 0
		for _, m := range members {
			longest = max(longest, m.Len())
		}
		genes := make([]float64, 0, longest)
		choices := make([]float64, 0, len(members))
		for i := 0; i < longest; i++ {
			choices = choices[:0]
			for _, m := range members {
				if i < m.Len() {
					choices = append(choices, m.Genome()[i])
				}
			}
			switch {
			case len(choices) == 1:
				genes = append(genes, choices[0])
			case !hasGeneRate:
				genes = append(genes, choices[env.Rand.Intn(len(choices))])
			case env.Rand.Float64() >= geneRate:
				genes = append(genes, choices[0])
			default:
				genes = append(genes, choices[1+env.Rand.Intn(len(choices)-1)])
			}
		}
		return model.New(genes, model.FromIndividual(head), recombined), nil
	}), nil
}
