package model

import (
	"errors"
	"sort"
)

// Population is a materialised group of individuals.
type Population []*Individual

// Best returns the fittest individual, the first one on ties.
func (p Population) Best() *Individual {
	var best *Individual
	for _, ind := range p {
		if best == nil || ind.Better(best) {
			best = ind
		}
	}
	return best
}

// Worst returns the least fit individual, the first one on ties.
func (p Population) Worst() *Individual {
	var worst *Individual
	for _, ind := range p {
		if worst == nil || worst.Better(ind) {
			worst = ind
		}
	}
	return worst
}

// SortedBest returns a copy ordered fittest first. The sort is stable.
func (p Population) SortedBest() Population {
	out := append(Population(nil), p...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Better(out[b]) })
	return out
}

// SortedWorst returns a copy ordered least fit first. The sort is stable.
func (p Population) SortedWorst() Population {
	out := append(Population(nil), p...)
	sort.SliceStable(out, func(a, b int) bool { return out[b].Better(out[a]) })
	return out
}

// Err returns the first evaluation error recorded in the population.
func (p Population) Err() error {
	for _, ind := range p {
		if err := ind.Err(); err != nil && !errors.Is(err, ErrNoEvaluator) {
			return err
		}
	}
	return nil
}
