package evo

import (
	"math/rand"
	"testing"

	"esdl/internal/model"
	"esdl/internal/stream"
)

var sumEval = model.EvaluatorFunc(func(p []float64) (model.Fitness, error) {
	total := 0.0
	for _, v := range p {
		total += v
	}
	return model.Max(total), nil
})

func testEnv(seed int64) Env {
	return Env{Rand: rand.New(rand.NewSource(seed))}
}

func scored(values ...float64) model.Population {
	out := make(model.Population, len(values))
	for i, v := range values {
		out[i] = model.New([]float64{v}, model.FromSpecies(model.Traits{Evaluator: sumEval}), nil)
	}
	return out
}

func run(t *testing.T, f Filter, env Env, pop model.Population, args Args) stream.Stream {
	t.Helper()
	s, err := f(env, stream.Of(pop), args)
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	return s
}

func isPermutation(pop, out model.Population) bool {
	if len(pop) != len(out) {
		return false
	}
	seen := make(map[*model.Individual]int, len(pop))
	for _, ind := range pop {
		seen[ind]++
	}
	for _, ind := range out {
		seen[ind]--
		if seen[ind] < 0 {
			return false
		}
	}
	return true
}

func TestWithoutReplacementIsPermutation(t *testing.T) {
	pop := scored(3, 1, 4, 1, 5, 9, 2, 6, 5, 3)
	cases := []struct {
		name string
		f    Filter
		args Args
	}{
		{name: "tournament", f: tournamentSelector(2), args: Args{"replacement": false, "k": 3.0}},
		{name: "tournament not greedy", f: tournamentSelector(2), args: Args{"replacement": false, "greediness": 0.5}},
		{name: "uniform", f: uniformRandom(false), args: Args{"replacement": false}},
		{name: "shuffle", f: uniformRandom(true), args: Args{}},
		{name: "fitness proportional", f: fitnessProportional(false), args: Args{"replacement": false}},
		{name: "rank proportional", f: rankProportional(false), args: Args{"replacement": false}},
		{name: "rank inverted", f: rankProportional(false), args: Args{"replacement": false, "invert": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for seed := int64(1); seed <= 20; seed++ {
				out, err := stream.Collect(run(t, tc.f, testEnv(seed), pop, tc.args))
				if err != nil {
					t.Fatalf("collect: %v", err)
				}
				if !isPermutation(pop, out) {
					t.Fatalf("seed %d: output is not a permutation: %v", seed, out)
				}
			}
		})
	}
}

func TestWithReplacementMembership(t *testing.T) {
	pop := scored(-2, 0, 3, 7)
	members := make(map[*model.Individual]bool, len(pop))
	for _, ind := range pop {
		members[ind] = true
	}
	filters := map[string]Filter{
		"tournament":           tournamentSelector(2),
		"uniform":              uniformRandom(false),
		"fitness_proportional": fitnessProportional(false),
		"fitness_sus":          fitnessProportional(true),
		"rank_proportional":    rankProportional(false),
		"rank_sus":             rankProportional(true),
		"repeat":               repeatGroup,
	}
	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			for _, n := range []int{0, 1, 50} {
				out, err := stream.Take(run(t, f, testEnv(7), pop, Args{}), n)
				if err != nil {
					t.Fatalf("take %d: %v", n, err)
				}
				for _, ind := range out {
					if !members[ind] {
						t.Fatalf("selected individual %v not in population", ind)
					}
				}
			}
		})
	}
}

func TestBestAndWorstOrdering(t *testing.T) {
	pop := scored(2, 8, 5, 8, 1)
	best, err := stream.Collect(run(t, ordered(byBest, false), testEnv(1), pop, Args{}))
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	for i := 1; i < len(best); i++ {
		if best[i].Better(best[i-1]) {
			t.Fatalf("best not sorted at %d: %v", i, best)
		}
	}
	if best[0] != pop[1] || best[1] != pop[3] {
		t.Fatalf("expected stable order for ties, got %v", best)
	}

	worst, err := stream.Take(run(t, ordered(byWorst, false), testEnv(1), pop, Args{}), 2)
	if err != nil {
		t.Fatalf("worst: %v", err)
	}
	if worst[0] != pop[4] || worst[1] != pop[0] {
		t.Fatalf("unexpected worst order: %v", worst)
	}
}

func TestOnlyRepeatsExtreme(t *testing.T) {
	pop := scored(2, 8, 5, 8, 1)
	out, err := stream.Take(run(t, ordered(byBest, true), testEnv(1), pop, Args{}), 10)
	if err != nil {
		t.Fatalf("best_only: %v", err)
	}
	for _, ind := range out {
		if ind != pop[1] {
			t.Fatalf("expected best individual, got %v", ind)
		}
	}
	out, err = stream.Take(run(t, ordered(byWorst, false), testEnv(1), pop, Args{"only": true}), 3)
	if err != nil {
		t.Fatalf("worst only: %v", err)
	}
	for _, ind := range out {
		if ind != pop[4] {
			t.Fatalf("expected worst individual, got %v", ind)
		}
	}
}

func TestYoungestAndOldest(t *testing.T) {
	var clock model.Clock
	pop := scored(1, 2, 3)
	for _, i := range []int{2, 0, 1} {
		pop[i].Born(&clock)
	}
	young, err := stream.Collect(run(t, ordered(byYoung, false), testEnv(1), pop, Args{}))
	if err != nil {
		t.Fatalf("youngest: %v", err)
	}
	if young[0] != pop[1] || young[2] != pop[2] {
		t.Fatalf("unexpected youngest order: %v", young)
	}
	old, err := stream.Take(run(t, ordered(byOld, true), testEnv(1), pop, Args{}), 2)
	if err != nil {
		t.Fatalf("oldest_only: %v", err)
	}
	if old[0] != pop[2] || old[1] != pop[2] {
		t.Fatalf("unexpected oldest: %v", old)
	}
}

func TestTournamentRejectsSmallK(t *testing.T) {
	if _, err := tournamentSelector(2)(testEnv(1), stream.Of(scored(1, 2)), Args{"k": 1.0}); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestWithoutReplacementRest(t *testing.T) {
	pop := scored(1, 2, 3, 4, 5)
	s := run(t, uniformRandom(true), testEnv(3), pop, Args{})
	head, err := stream.Take(s, 2)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	rest, err := stream.Collect(s)
	if err != nil {
		t.Fatalf("rest: %v", err)
	}
	if !isPermutation(pop, append(head, rest...)) {
		t.Fatalf("head %v and rest %v do not cover population", head, rest)
	}
}

func TestFitnessProportionalSingleton(t *testing.T) {
	pop := scored(4)
	out, err := stream.Collect(run(t, fitnessProportional(false), testEnv(1), pop, Args{}))
	if err != nil || len(out) != 1 || out[0] != pop[0] {
		t.Fatalf("expected single individual, got %v %v", out, err)
	}
}

func TestSUSSpreadsSelections(t *testing.T) {
	pop := scored(1, 1, 1, 1)
	out, err := stream.Take(run(t, fitnessProportional(true), testEnv(5), pop, Args{"mu": 4.0}), 4)
	if err != nil {
		t.Fatalf("sus: %v", err)
	}
	if !isPermutation(pop, out) {
		t.Fatalf("equal weights with mu=size should select each once, got %v", out)
	}
}

func TestUnique(t *testing.T) {
	pop := scored(1, 2, 1, 3, 2)
	out, err := stream.Collect(run(t, unique, testEnv(1), pop, Args{}))
	if err != nil {
		t.Fatalf("unique: %v", err)
	}
	if len(out) != 3 || out[0] != pop[0] || out[1] != pop[1] || out[2] != pop[3] {
		t.Fatalf("unexpected unique output: %v", out)
	}
}

func TestBestOfTuple(t *testing.T) {
	a, b := scored(1, 9), scored(5, 2)
	joined := model.Population{
		model.NewJoined([]*model.Individual{a[0], b[0]}, []string{"a", "b"}),
		model.NewJoined([]*model.Individual{a[1], b[1]}, []string{"a", "b"}),
	}
	out, err := stream.Collect(run(t, bestOfTuple, testEnv(1), joined, Args{}))
	if err != nil {
		t.Fatalf("best_of_tuple: %v", err)
	}
	if out[0] != b[0] || out[1] != a[1] {
		t.Fatalf("unexpected winners: %v", out)
	}
	if _, err := stream.Collect(run(t, bestOfTuple, testEnv(1), a, Args{})); err == nil {
		t.Fatal("expected error for plain individuals")
	}
}
