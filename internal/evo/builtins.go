package evo

func init() {
	registerBuiltins(operatorRegistry)
}

var (
	pairParams = []string{"per_pair_rate", "per_indiv_rate", "one_child", "two_children"}
	wheelRank  = []string{"replacement", "sus", "mu", "expectation", "neta", "invert"}
)

func withPair(extra ...string) []string {
	return append(append([]string(nil), pairParams...), extra...)
}

func registerBuiltins(r *Registry) {
	filters := []Spec{
		{Name: "select_all", Filter: selectAll, Params: []string{}},
		{Name: "repeat", Filter: repeatGroup, Params: []string{}},
		{Name: "best", Filter: ordered(byBest, false), Params: []string{"only"}},
		{Name: "truncate_best", Filter: ordered(byBest, false), Params: []string{"only"}},
		{Name: "best_only", Filter: ordered(byBest, true), Params: []string{}},
		{Name: "worst", Filter: ordered(byWorst, false), Params: []string{"only"}},
		{Name: "truncate_worst", Filter: ordered(byWorst, false), Params: []string{"only"}},
		{Name: "worst_only", Filter: ordered(byWorst, true), Params: []string{}},
		{Name: "youngest", Filter: ordered(byYoung, false), Params: []string{"only"}},
		{Name: "youngest_only", Filter: ordered(byYoung, true), Params: []string{}},
		{Name: "oldest", Filter: ordered(byOld, false), Params: []string{"only"}},
		{Name: "oldest_only", Filter: ordered(byOld, true), Params: []string{}},
		{Name: "tournament", Filter: tournamentSelector(2), Params: []string{"k", "replacement", "greediness"}},
		{Name: "binary_tournament", Filter: tournamentSelector(2), Params: []string{"replacement", "greediness"}},
		{Name: "uniform_random", Filter: uniformRandom(false), Params: []string{"replacement"}},
		{Name: "uniform_shuffle", Filter: uniformRandom(true), Params: []string{}},
		{Name: "fitness_proportional", Filter: fitnessProportional(false), Params: []string{"replacement", "sus", "mu"}},
		{Name: "fitness_sus", Filter: fitnessProportional(true), Params: []string{"mu"}},
		{Name: "rank_proportional", Filter: rankProportional(false), Params: wheelRank},
		{Name: "rank_sus", Filter: rankProportional(true), Params: []string{"mu", "expectation", "neta", "invert"}},
		{Name: "unique", Filter: unique, Params: []string{}},
		{Name: "best_of_tuple", Filter: bestOfTuple, Params: []string{}},

		{Name: "crossover_uniform", Filter: crossoverUniform, Params: withPair("per_gene_rate")},
		{Name: "crossover", Filter: crossoverSame(1), Params: withPair("points")},
		{Name: "crossover_one", Filter: crossoverSame(1), Params: withPair()},
		{Name: "crossover_two", Filter: crossoverSame(2), Params: withPair()},
		{Name: "crossover_different", Filter: crossoverDifferent(1), Params: withPair("points", "longest_result")},
		{Name: "crossover_one_different", Filter: crossoverDifferent(1), Params: withPair("longest_result")},
		{Name: "crossover_two_different", Filter: crossoverDifferent(2), Params: withPair("longest_result")},
		{Name: "crossover_segmented", Filter: crossoverSegmented, Params: withPair("switch_rate")},
		{Name: "crossover_tuple", Filter: crossoverTuple, Params: []string{"per_indiv_rate", "per_pair_rate", "per_gene_rate"}},
	}
	for _, spec := range filters {
		spec.Kind = KindFilter
		mustRegister(r, spec)
	}

	joiners := []Spec{
		{Name: "full_combine", Joiner: fullCombine, Params: []string{}},
		{Name: "best_with_rest", Joiner: bestWithRest, Params: []string{"best_from"}},
		{Name: "tuples", Joiner: tuples, Params: []string{}},
		{Name: "random_tuples", Joiner: randomTuples(false), Params: []string{"distinct"}},
		{Name: "distinct_random_tuples", Joiner: randomTuples(true), Params: []string{}},
	}
	for _, spec := range joiners {
		spec.Kind = KindJoiner
		mustRegister(r, spec)
	}
}

func mustRegister(r *Registry, spec Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// DefaultJoiner is used by JOIN statements without USING.
const DefaultJoiner = "full_combine"
