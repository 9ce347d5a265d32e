package monitor

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat"

	"esdl/internal/model"
)

// Metrics exports run progress to prometheus, labelled by run id.
type Metrics struct {
	Base

	primary     string
	generation  *prometheus.GaugeVec
	births      *prometheus.GaugeVec
	evaluations *prometheus.GaugeVec
	best        *prometheus.GaugeVec
	mean        *prometheus.GaugeVec
	yields      *prometheus.CounterVec
	exceptions  *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. primary selects the yielded
// group whose fitness is exported; empty uses the first group yielded.
func NewMetrics(reg prometheus.Registerer, primary string) (*Metrics, error) {
	m := &Metrics{primary: primary}
	var err error
	if m.generation, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "esdl_generation", Help: "Completed generations."}, []string{"run_id"})); err != nil {
		return nil, err
	}
	if m.births, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "esdl_births", Help: "Individuals born so far."}, []string{"run_id"})); err != nil {
		return nil, err
	}
	if m.evaluations, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "esdl_evaluations", Help: "Fitness evaluations so far."}, []string{"run_id"})); err != nil {
		return nil, err
	}
	if m.best, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "esdl_best_fitness", Help: "Best fitness of the primary group."}, []string{"run_id"})); err != nil {
		return nil, err
	}
	if m.mean, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "esdl_mean_fitness", Help: "Mean fitness of the primary group."}, []string{"run_id"})); err != nil {
		return nil, err
	}
	if m.yields, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{Name: "esdl_yields_total", Help: "Groups yielded."}, []string{"run_id", "group"})); err != nil {
		return nil, err
	}
	if m.exceptions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{Name: "esdl_exceptions_total", Help: "Failed steps."}, []string{"run_id"})); err != nil {
		return nil, err
	}
	return m, nil
}

// register reuses a collector that is already registered under the same
// name, so several runs in one process share the vectors.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func (m *Metrics) OnPostReset(_ context.Context, s State) { m.counters(s) }

func (m *Metrics) OnPostBreed(_ context.Context, s State) { m.counters(s) }

func (m *Metrics) counters(s State) {
	id := s.RunID()
	m.generation.WithLabelValues(id).Set(float64(s.Generation()))
	m.births.WithLabelValues(id).Set(float64(s.Births()))
	m.evaluations.WithLabelValues(id).Set(float64(s.Evaluations()))
}

func (m *Metrics) OnYield(_ context.Context, s State, name string, group model.Population) {
	id := s.RunID()
	m.yields.WithLabelValues(id, name).Inc()
	if m.primary == "" {
		m.primary = name
	}
	if name != m.primary {
		return
	}
	values := make([]float64, 0, len(group))
	for _, ind := range group {
		if f := ind.Fitness(); f.Valid() {
			values = append(values, f.Values[0])
		}
	}
	if len(values) == 0 {
		return
	}
	if best := group.Best(); best != nil {
		m.best.WithLabelValues(id).Set(best.Fitness().Values[0])
	}
	m.mean.WithLabelValues(id).Set(stat.Mean(values, nil))
}

func (m *Metrics) OnException(_ context.Context, s State, _ error) {
	m.exceptions.WithLabelValues(s.RunID()).Inc()
}
