package evo

import (
	"fmt"

	"esdl/internal/model"
	"esdl/internal/stream"
)

// product yields every combination of one member from each group, the last
// group varying fastest. fixed members are prepended to every tuple.
func product(groups []model.Population, names []string, fixed ...*model.Individual) stream.Stream {
	idx := make([]int, len(groups))
	done := len(groups) == 0 && len(fixed) == 0
	return stream.New(func() (*model.Individual, bool, error) {
		if done {
			return nil, false, nil
		}
		members := append([]*model.Individual(nil), fixed...)
		for k, g := range groups {
			members = append(members, g[idx[k]])
		}
		done = true
		for k := len(idx) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < len(groups[k]) {
				done = false
				break
			}
			idx[k] = 0
		}
		return model.NewJoined(members, names), true, nil
	})
}

// populated fails with ErrEmptyGroup naming the first group without members.
func populated(groups []model.Population, names []string) error {
	for k, g := range groups {
		if len(g) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyGroup, nameAt(names, k))
		}
	}
	return nil
}

func fullCombine(_ Env, groups []model.Population, names []string, _ Args) (stream.Stream, error) {
	if err := populated(groups, names); err != nil {
		return nil, err
	}
	return product(groups, names), nil
}

func bestWithRest(_ Env, groups []model.Population, names []string, args Args) (stream.Stream, error) {
	from, err := args.Int("best_from", 0)
	if err != nil {
		return nil, err
	}
	if from < 0 || from >= len(groups) {
		return nil, fmt.Errorf("%w: best_from=%d out of range for %d groups", ErrConfiguration, from, len(groups))
	}
	if err := populated(groups, names); err != nil {
		return nil, err
	}
	best := groups[from].Best()
	rest := make([]model.Population, 0, len(groups)-1)
	order := []string{nameAt(names, from)}
	for k, g := range groups {
		if k == from {
			continue
		}
		rest = append(rest, g)
		order = append(order, nameAt(names, k))
	}
	return product(rest, order, best), nil
}

func tuples(_ Env, groups []model.Population, names []string, _ Args) (stream.Stream, error) {
	if err := populated(groups, names); err != nil {
		return nil, err
	}
	shortest := 0
	for k, g := range groups {
		if k == 0 || len(g) < shortest {
			shortest = len(g)
		}
	}
	i := 0
	return stream.New(func() (*model.Individual, bool, error) {
		if i >= shortest {
			return nil, false, nil
		}
		members := make([]*model.Individual, len(groups))
		for k, g := range groups {
			members[k] = g[i]
		}
		i++
		return model.NewJoined(members, names), true, nil
	}), nil
}

func contains(members []*model.Individual, ind *model.Individual) bool {
	for _, m := range members {
		if m == ind {
			return true
		}
	}
	return false
}

// randomTuples pairs each member of the first group with random members of
// the others. With distinct, repeats within a tuple are avoided when a
// bounded number of retries and a linear fallback allow it.
func randomTuples(forceDistinct bool) Joiner {
	return func(env Env, groups []model.Population, names []string, args Args) (stream.Stream, error) {
		distinct, err := args.Bool("distinct", forceDistinct)
		if err != nil {
			return nil, err
		}
		if err := populated(groups, names); err != nil {
			return nil, err
		}
		if len(groups) == 0 {
			return stream.Empty(), nil
		}
		i := 0
		return stream.New(func() (*model.Individual, bool, error) {
			if i >= len(groups[0]) {
				return nil, false, nil
			}
			members := []*model.Individual{groups[0][i]}
			i++
			for _, other := range groups[1:] {
				pick := other[env.Rand.Intn(len(other))]
				if distinct {
					limit := len(other)
					for contains(members, pick) && limit > 0 {
						pick = other[env.Rand.Intn(len(other))]
						limit--
					}
					if limit <= 0 {
						for _, candidate := range other {
							if !contains(members, candidate) {
								pick = candidate
								break
							}
						}
					}
				}
				members = append(members, pick)
			}
			return model.NewJoined(members, names), true, nil
		}), nil
	}
}

func nameAt(names []string, k int) string {
	if k < len(names) {
		return names[k]
	}
	return fmt.Sprintf("group %d", k)
}
