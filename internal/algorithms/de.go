package algorithms

import (
	"fmt"

	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/stream"
)

func init() {
	evo.MustRegisterOperator(evo.Spec{
		Name:   "mutate_de",
		Kind:   evo.KindFilter,
		Filter: mutateDE,
		Params: []string{"scale"},
	})
}

// mutateDE yields base + scale*(p1 - p2) for every (base, p1, p2) tuple.
// Genes are clamped to the bounds of the base, when it has any, and the
// result is truncated to the shortest member.
func mutateDE(_ evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
	scale, err := args.Float("scale", 0.8)
	if err != nil {
		return nil, err
	}
	return stream.Map(src, func(ind *model.Individual) (*model.Individual, error) {
		members := ind.Members()
		if len(members) != 3 {
			return nil, fmt.Errorf("%w: mutate_de expects (base, p1, p2) tuples, got %d members", evo.ErrConfiguration, len(members))
		}
		base, p1, p2 := members[0], members[1], members[2]
		n := min(base.Len(), p1.Len(), p2.Len())
		traits := base.Traits()
		genes := make([]float64, n)
		for i := range genes {
			v := base.Genome()[i] + scale*(p1.Genome()[i]-p2.Genome()[i])
			if lo, hi := traits.GeneBounds(i); lo < hi {
				v = max(lo, min(hi, v))
			}
			genes[i] = v
		}
		return model.New(genes, model.FromIndividual(base), model.Statistic{"mutated": 1}), nil
	}), nil
}
