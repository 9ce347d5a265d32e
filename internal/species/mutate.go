package species

import (
	"fmt"
	"math/rand"

	"golang.org/x/exp/constraints"

	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/stream"
)

var mutated = model.Statistic{"mutated": 1}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type rates struct {
	indiv float64
	gene  float64
}

func parseRates(args evo.Args, indiv, gene float64) (rates, error) {
	var r rates
	var err error
	if r.indiv, err = args.Float("per_indiv_rate", indiv); err != nil {
		return r, err
	}
	if r.gene, err = args.Float("per_gene_rate", gene); err != nil {
		return r, err
	}
	return r, nil
}

// span is an inclusive range of lengths.
type span struct {
	shortest int
	longest  int
}

func (s span) draw(r *rand.Rand) int {
	return s.shortest + r.Intn(s.longest-s.shortest+1)
}

// parseSpan reads length, shortest and longest. A given length fixes both
// ends of the range.
func parseSpan(args evo.Args, shortest, longest int, positive bool) (span, error) {
	var err error
	if shortest, err = args.Int("shortest", shortest); err != nil {
		return span{}, err
	}
	if longest, err = args.Int("longest", longest); err != nil {
		return span{}, err
	}
	if args.Has("length") {
		n, err := args.Int("length", 0)
		if err != nil {
			return span{}, err
		}
		shortest, longest = n, n
	}
	if positive && shortest <= 0 {
		return span{}, fmt.Errorf("%w: shortest must be greater than zero", evo.ErrConfiguration)
	}
	if shortest < 0 {
		return span{}, fmt.Errorf("%w: shortest must not be negative", evo.ErrConfiguration)
	}
	if longest < shortest {
		return span{}, fmt.Errorf("%w: longest (%d) must be at least shortest (%d)", evo.ErrConfiguration, longest, shortest)
	}
	return span{shortest: shortest, longest: longest}, nil
}

// eachIndividual applies fn to individuals selected with probability rate.
// The others pass through as the same object.
func eachIndividual(env evo.Env, src stream.Stream, rate float64, fn func(*model.Individual) (*model.Individual, error)) stream.Stream {
	return stream.Map(src, func(ind *model.Individual) (*model.Individual, error) {
		if !env.Chance(rate) {
			return ind, nil
		}
		return fn(ind)
	})
}

// eachGene copies the genome of ind and replaces every gene selected with
// probability rate by fn.
func eachGene(env evo.Env, ind *model.Individual, rate float64, fn func(i int, g float64) float64) []float64 {
	genes := append([]float64(nil), ind.Genome()...)
	for i, g := range genes {
		if env.Chance(rate) {
			genes[i] = fn(i, g)
		}
	}
	return genes
}

// someGenes is eachGene, except that a positive count rewrites exactly that
// many distinct positions, or every position of shorter genomes.
func someGenes(env evo.Env, ind *model.Individual, rate float64, count int, fn func(i int, g float64) float64) []float64 {
	if count <= 0 {
		return eachGene(env, ind, rate, fn)
	}
	genes := append([]float64(nil), ind.Genome()...)
	positions := env.Rand.Perm(len(genes))
	if count < len(positions) {
		positions = positions[:count]
	}
	for _, i := range positions {
		genes[i] = fn(i, genes[i])
	}
	return genes
}

func mutateInsert(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	rate, err := args.Float("per_indiv_rate", 0.1)
	if err != nil {
		return nil, err
	}
	lengths, err := parseSpan(args, 1, 10, false)
	if err != nil {
		return nil, err
	}
	shortest, longest := lengths.shortest, lengths.longest
	longestResult, err := args.Int("longest_result", 20)
	if err != nil {
		return nil, err
	}
	return eachIndividual(env, src, rate, func(ind *model.Individual) (*model.Individual, error) {
		sp, err := Lookup(ind.Species())
		if err != nil {
			return nil, err
		}
		if sp.Random == nil {
			return nil, fmt.Errorf("%w: mutate_insert on %s individuals", ErrUnsupported, sp.Name)
		}
		n := ind.Len()
		lmax := longest
		if n+longest >= longestResult {
			lmax = longestResult - n
		}
		if lmax < shortest {
			env.Report("mutate_insert", "aborted", map[string]int{"longest_result": longestResult, "len": n})
			return ind, nil
		}
		cut := 0
		if n > 0 {
			cut = env.Rand.Intn(n)
		}
		insert := sp.Random(env, ind, span{shortest, lmax}.draw(env.Rand))
		genes := make([]float64, 0, n+len(insert))
		genes = append(genes, ind.Genome()[:cut]...)
		genes = append(genes, insert...)
		genes = append(genes, ind.Genome()[cut:]...)
		return model.New(genes, model.FromIndividual(ind), model.Statistic{"mutated": 1, "inserted_genes": float64(len(insert))}), nil
	}), nil
}

func mutateDelete(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	rate, err := args.Float("per_indiv_rate", 0.1)
	if err != nil {
		return nil, err
	}
	lengths, err := parseSpan(args, 1, 10, false)
	if err != nil {
		return nil, err
	}
	shortest, longest := lengths.shortest, lengths.longest
	shortestResult, err := args.Int("shortest_result", 1)
	if err != nil {
		return nil, err
	}
	return eachIndividual(env, src, rate, func(ind *model.Individual) (*model.Individual, error) {
		n := ind.Len()
		lmax := clamp(n-shortestResult, 0, longest)
		length := n
		if lmax >= shortest {
			length = span{shortest, lmax}.draw(env.Rand)
		}
		if length < n {
			cut1 := env.Rand.Intn(n - length)
			genes := append(append([]float64(nil), ind.Genome()[:cut1]...), ind.Genome()[cut1+length:]...)
			return model.New(genes, model.FromIndividual(ind), model.Statistic{"mutated": 1, "deleted_genes": float64(length)}), nil
		}
		keep := clamp(shortestResult, 0, n)
		if deleted := n - keep; deleted > 0 {
			genes := append([]float64(nil), ind.Genome()[:keep]...)
			return model.New(genes, model.FromIndividual(ind), model.Statistic{"mutated": 1, "deleted_genes": float64(deleted)}), nil
		}
		env.Report("mutate_delete", "aborted", map[string]int{"shortest_result": shortestResult, "len": n})
		return ind, nil
	}), nil
}
