// Package stats summarises populations for monitors and reports.
package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"esdl/internal/model"
)

// Summary describes one group at one generation. Mean, StdDev, Min and Max
// are taken over the first fitness value of every evaluated individual.
type Summary struct {
	Generation   int           `json:"generation"`
	Size         int           `json:"size"`
	Best         model.Fitness `json:"best"`
	Worst        model.Fitness `json:"worst"`
	BestPhenome  []float64     `json:"best_phenome,omitempty"`
	Mean         float64       `json:"mean"`
	StdDev       float64       `json:"stddev"`
	Min          float64       `json:"min"`
	Max          float64       `json:"max"`
	Unique       int           `json:"unique"`
	NonDominated int           `json:"non_dominated"`
	MeanLength   float64       `json:"mean_length"`
	Invalid      int           `json:"invalid"`
	Births       uint64        `json:"births"`
	Evaluations  uint64        `json:"evaluations"`
	StaleFor     int           `json:"stale_for"`
	Improved     bool          `json:"improved"`
}

// Summarize computes a Summary of pop. Individuals whose evaluation failed
// count as invalid and are left out of the fitness statistics.
func Summarize(pop model.Population) Summary {
	s := Summary{Size: len(pop)}
	if len(pop) == 0 {
		return s
	}
	values := make([]float64, 0, len(pop))
	lengths := make([]float64, 0, len(pop))
	vectors := make([][]float64, 0, len(pop))
	seen := make(map[string]struct{}, len(pop))
	var sense model.Sense
	for _, ind := range pop {
		lengths = append(lengths, float64(ind.Len()))
		seen[model.FormatValues(ind.Phenome())] = struct{}{}
		f := ind.Fitness()
		if !f.Valid() {
			s.Invalid++
			continue
		}
		sense = f.Sense
		values = append(values, f.Values[0])
		vectors = append(vectors, f.Values)
	}
	s.Unique = len(seen)
	s.MeanLength = stat.Mean(lengths, nil)
	if best := pop.Best(); best != nil {
		s.Best = best.Fitness()
		s.BestPhenome = append([]float64(nil), best.Phenome()...)
		s.Worst = pop.Worst().Fitness()
	}
	if len(values) == 0 {
		return s
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	if len(values) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	} else {
		s.Mean = values[0]
	}
	s.NonDominated = countNonDominated(vectors, sense)
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("gen=%d size=%d best=%v worst=%v mean=%.3f std=%.3f unique=%d",
		s.Generation, s.Size, s.Best, s.Worst, s.Mean, s.StdDev, s.Unique)
}
