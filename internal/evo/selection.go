package evo

import (
	"fmt"
	"math"
	"sort"

	"esdl/internal/model"
	"esdl/internal/stream"
)

// Selectors never alter individuals; they only reorder, repeat or drop
// them. Those that need random access materialise their source first.

// noReplacement yields each member of pop once, in the order given by pick.
// Rest hands back whatever has not been picked yet.
func noReplacement(pop model.Population, pick func(pool model.Population) int) *stream.Func {
	pool := append(model.Population(nil), pop...)
	s := stream.New(func() (*model.Individual, bool, error) {
		if len(pool) == 0 {
			return nil, false, nil
		}
		i := pick(pool)
		ind := pool[i]
		pool = append(pool[:i], pool[i+1:]...)
		return ind, true, nil
	})
	return s.WithRest(func() (model.Population, error) {
		out := pool
		pool = nil
		return out, nil
	})
}

func repeatOne(ind *model.Individual) *stream.Func {
	return stream.Endless(func() (*model.Individual, error) { return ind, nil })
}

func first(model.Population) int { return 0 }

func selectAll(_ Env, src stream.Stream, _ Args) (stream.Stream, error) {
	return src, nil
}

func repeatGroup(_ Env, src stream.Stream, _ Args) (stream.Stream, error) {
	pop, err := stream.Collect(src)
	if err != nil {
		return nil, err
	}
	if len(pop) == 0 {
		return stream.Empty(), nil
	}
	i := 0
	return stream.Endless(func() (*model.Individual, error) {
		ind := pop[i%len(pop)]
		i++
		return ind, nil
	}), nil
}

type ordering struct {
	sorted func(model.Population) model.Population
	pick   func(model.Population) *model.Individual
}

var (
	byBest  = ordering{sorted: model.Population.SortedBest, pick: model.Population.Best}
	byWorst = ordering{sorted: model.Population.SortedWorst, pick: model.Population.Worst}
	byYoung = ordering{
		sorted: func(p model.Population) model.Population {
			return sortedByBirthday(p, func(a, b uint64) bool { return a > b })
		},
		pick: func(p model.Population) *model.Individual {
			return sortedByBirthday(p, func(a, b uint64) bool { return a > b })[0]
		},
	}
	byOld = ordering{
		sorted: func(p model.Population) model.Population {
			return sortedByBirthday(p, func(a, b uint64) bool { return a < b })
		},
		pick: func(p model.Population) *model.Individual {
			return sortedByBirthday(p, func(a, b uint64) bool { return a < b })[0]
		},
	}
)

func sortedByBirthday(p model.Population, less func(a, b uint64) bool) model.Population {
	out := append(model.Population(nil), p...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i].Birthday(), out[j].Birthday()) })
	return out
}

// ordered returns a selector that yields the group in order, or repeats the
// single extreme individual when only is set.
func ordered(o ordering, forceOnly bool) Filter {
	return func(_ Env, src stream.Stream, args Args) (stream.Stream, error) {
		only, err := args.Bool("only", forceOnly)
		if err != nil {
			return nil, err
		}
		pop, err := stream.Collect(src)
		if err != nil {
			return nil, err
		}
		if only {
			if len(pop) == 0 {
				return stream.Empty(), nil
			}
			return repeatOne(o.pick(pop)), nil
		}
		return noReplacement(o.sorted(pop), first), nil
	}
}

func bestIndex(pool model.Population, idx []int) int {
	w := 0
	for k := 1; k < len(idx); k++ {
		if pool[idx[k]].Better(pool[idx[w]]) {
			w = k
		}
	}
	return w
}

func tournamentSelector(k int) Filter {
	return func(env Env, src stream.Stream, args Args) (stream.Stream, error) {
		size, err := args.Int("k", k)
		if err != nil {
			return nil, err
		}
		if size < 2 {
			return nil, fmt.Errorf("%w: tournament k must be at least 2, got %d", ErrConfiguration, size)
		}
		replacement, err := args.Bool("replacement", true)
		if err != nil {
			return nil, err
		}
		greediness, err := args.Float("greediness", 1.0)
		if err != nil {
			return nil, err
		}
		pop, err := stream.Collect(src)
		if err != nil {
			return nil, err
		}

		// compete draws size indices, returning the chosen position in idx.
		compete := func(pool model.Population, idx []int) int {
			for i := range idx {
				idx[i] = env.Rand.Intn(len(pool))
			}
			w := bestIndex(pool, idx)
			if env.Chance(greediness) {
				return idx[w]
			}
			rest := append(append([]int(nil), idx[:w]...), idx[w+1:]...)
			return rest[env.Rand.Intn(len(rest))]
		}

		if replacement {
			if len(pop) == 0 {
				return stream.Empty(), nil
			}
			idx := make([]int, size)
			return stream.Endless(func() (*model.Individual, error) {
				return pop[compete(pop, idx)], nil
			}), nil
		}
		idx := make([]int, size)
		return noReplacement(pop, func(pool model.Population) int {
			if len(pool) < size {
				return 0
			}
			return compete(pool, idx)
		}), nil
	}
}

func uniformRandom(forceNoReplacement bool) Filter {
	return func(env Env, src stream.Stream, args Args) (stream.Stream, error) {
		replacement, err := args.Bool("replacement", !forceNoReplacement)
		if err != nil {
			return nil, err
		}
		pop, err := stream.Collect(src)
		if err != nil {
			return nil, err
		}
		if !replacement {
			return noReplacement(pop, func(pool model.Population) int { return env.Rand.Intn(len(pool)) }), nil
		}
		if len(pop) == 0 {
			return stream.Empty(), nil
		}
		return stream.Endless(func() (*model.Individual, error) {
			return pop[env.Rand.Intn(len(pop))], nil
		}), nil
	}
}

// wheel is roulette selection over precomputed weights.
type wheel struct {
	env         Env
	sender      string
	items       model.Population
	weights     []float64
	total       float64
	replacement bool
	sus         bool
	oneOnMu     float64
	susProb     float64
}

func newWheel(env Env, sender string, items model.Population, weights []float64, replacement, sus bool, mu int) *wheel {
	w := &wheel{
		env:         env,
		sender:      sender,
		items:       append(model.Population(nil), items...),
		weights:     append([]float64(nil), weights...),
		replacement: replacement || sus,
		sus:         sus,
	}
	for _, v := range w.weights {
		w.total += v
	}
	if mu <= 0 {
		mu = len(items)
	}
	w.oneOnMu = 1.0 / float64(mu)
	if sus {
		w.susProb = env.Rand.Float64()*w.oneOnMu - w.oneOnMu
	}
	return w
}

func (w *wheel) spin() int {
	var prob float64
	if w.sus {
		w.susProb += w.oneOnMu
		if w.susProb >= 1.0 {
			w.susProb -= 1.0
		}
		prob = w.susProb * w.total
	} else {
		prob = w.env.Rand.Float64() * w.total
	}
	i := 0
	for i < len(w.items) && prob > w.weights[i] {
		prob -= w.weights[i]
		i++
	}
	if i >= len(w.items) {
		w.env.Report(w.sender, "wheel_failed", len(w.items))
		i = w.env.Rand.Intn(len(w.items))
	}
	return i
}

func (w *wheel) stream() stream.Stream {
	if w.replacement {
		if len(w.items) == 0 {
			return stream.Empty()
		}
		return stream.Endless(func() (*model.Individual, error) {
			return w.items[w.spin()], nil
		})
	}
	s := stream.New(func() (*model.Individual, bool, error) {
		if len(w.items) == 0 {
			return nil, false, nil
		}
		i := w.spin()
		ind := w.items[i]
		w.total -= w.weights[i]
		w.items = append(w.items[:i], w.items[i+1:]...)
		w.weights = append(w.weights[:i], w.weights[i+1:]...)
		return ind, true, nil
	})
	return s.WithRest(func() (model.Population, error) {
		out := w.items
		w.items, w.weights = nil, nil
		return out, nil
	})
}

type wheelOptions struct {
	replacement bool
	sus         bool
	mu          int
}

func parseWheelOptions(args Args, forceSUS bool) (wheelOptions, error) {
	var o wheelOptions
	var err error
	if o.replacement, err = args.Bool("replacement", true); err != nil {
		return o, err
	}
	if o.sus, err = args.Bool("sus", forceSUS); err != nil {
		return o, err
	}
	if o.mu, err = args.Int("mu", 0); err != nil {
		return o, err
	}
	return o, nil
}

func fitnessProportional(forceSUS bool) Filter {
	return func(env Env, src stream.Stream, args Args) (stream.Stream, error) {
		o, err := parseWheelOptions(args, forceSUS)
		if err != nil {
			return nil, err
		}
		pop, err := stream.Collect(src)
		if err != nil {
			return nil, err
		}
		group := pop.SortedBest()
		if len(group) <= 1 {
			return stream.Of(group), nil
		}
		weights := make([]float64, len(group))
		lowest := math.Inf(1)
		for i, ind := range group {
			v := ind.Fitness().Simple()
			if math.IsInf(v, 0) || math.IsNaN(v) {
				v = 0
			}
			weights[i] = v
			lowest = math.Min(lowest, v)
		}
		if lowest < 0 {
			for i := range weights {
				weights[i] -= lowest
			}
		}
		return newWheel(env, "fitness_proportional", group, weights, o.replacement, o.sus, o.mu).stream(), nil
	}
}

// rankProportional weights rank i (best first) with
// expectation - 2*(expectation-1)*i/(size-1).
func rankProportional(forceSUS bool) Filter {
	return func(env Env, src stream.Stream, args Args) (stream.Stream, error) {
		o, err := parseWheelOptions(args, forceSUS)
		if err != nil {
			return nil, err
		}
		expectation, err := args.Rate(1.1, "neta", "expectation")
		if err != nil {
			return nil, err
		}
		invert, err := args.Bool("invert", false)
		if err != nil {
			return nil, err
		}
		pop, err := stream.Collect(src)
		if err != nil {
			return nil, err
		}
		group := pop.SortedBest()
		if invert {
			group = pop.SortedWorst()
		}
		weights := make([]float64, len(group))
		for i := range group {
			if len(group) == 1 {
				weights[i] = expectation
				continue
			}
			weights[i] = expectation - 2.0*(expectation-1.0)*float64(i)/float64(len(group)-1)
		}
		return newWheel(env, "rank_proportional", group, weights, o.replacement, o.sus, o.mu).stream(), nil
	}
}

func unique(_ Env, src stream.Stream, _ Args) (stream.Stream, error) {
	seen := make(map[string]struct{})
	return stream.Filter(src, func(ind *model.Individual) bool {
		key := ind.String()
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
		return true
	}), nil
}

func bestOfTuple(_ Env, src stream.Stream, _ Args) (stream.Stream, error) {
	return stream.Map(src, func(ind *model.Individual) (*model.Individual, error) {
		if !ind.Joined() {
			return nil, fmt.Errorf("%w: best_of_tuple requires joined individuals", ErrConfiguration)
		}
		return model.Population(ind.Members()).Best(), nil
	}), nil
}
