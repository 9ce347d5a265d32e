package stats

import "esdl/internal/model"

// Dominates reports whether v1 is at least v2 in every dimension and larger
// in total. Vectors of different lengths never dominate each other.
func Dominates(v1, v2 []float64) bool {
	if v2 == nil || len(v1) != len(v2) {
		return false
	}
	acc := 0.0
	for i := range v1 {
		if v1[i] < v2[i] {
			return false
		}
		acc += v1[i] - v2[i]
	}
	return acc > 0
}

// countNonDominated counts the fitness vectors no other vector dominates.
// Minimised vectors are negated first so larger is always better.
func countNonDominated(vectors [][]float64, sense model.Sense) int {
	if sense == model.Minimise {
		flipped := make([][]float64, len(vectors))
		for i, v := range vectors {
			flipped[i] = make([]float64, len(v))
			for k, x := range v {
				flipped[i][k] = -x
			}
		}
		vectors = flipped
	}
	n := 0
	for i, v := range vectors {
		dominated := false
		for j, o := range vectors {
			if i != j && Dominates(o, v) {
				dominated = true
				break
			}
		}
		if !dominated {
			n++
		}
	}
	return n
}

// Tracker follows the best fitness of one group across generations.
type Tracker struct {
	best  model.Fitness
	stale int
	seen  bool
}

// Observe records s and fills in its StaleFor and Improved fields. The first
// observation always counts as an improvement.
func (t *Tracker) Observe(s *Summary) {
	switch {
	case !t.seen || s.Best.Better(t.best):
		t.best = s.Best
		t.stale = 0
		s.Improved = true
	default:
		t.stale++
	}
	t.seen = true
	s.StaleFor = t.stale
}

// Best is the fittest value observed so far.
func (t *Tracker) Best() model.Fitness { return t.best }
