package system

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"esdl/internal/algorithms"
	"esdl/internal/config"
	"esdl/internal/esdl"
	"esdl/internal/evo"
	"esdl/internal/landscape"
	"esdl/internal/model"
	"esdl/internal/monitor"
	"esdl/internal/stats"
	"esdl/internal/storage"
)

type ExperimentConfig struct {
	// Config holds random_seed, system, landscape and monitor sections.
	Config *config.Tree
	// Evaluator replaces the configured landscape.
	Evaluator model.Evaluator
	// Monitors receive callbacks after the consumer monitor.
	Monitors []monitor.Monitor
	// Registerer enables the prometheus monitor. monitor.metrics=true uses
	// the default registerer when this is nil.
	Registerer prometheus.Registerer
	Operators  []evo.Spec
	// Store receives the run record and history. It must be initialised;
	// a private memory store is used when nil.
	Store storage.Store
}

// Result is what an experiment reports when it stops.
type Result struct {
	RunID       string
	Seed        int64
	Generations int
	Births      uint64
	Evaluations uint64
	Best        model.Fitness
	BestPhenome []float64
	Reason      string
	History     []stats.Summary
}

// Experiment runs one system over one landscape until a monitor asks it to
// stop or the context is cancelled.
type Experiment struct {
	cfg       *config.Tree
	Landscape *landscape.Landscape
	Consumer  *monitor.Consumer
	System    *System
	store     storage.Store
	ownStore  bool
	monitor   monitor.Monitor
}

func NewExperiment(ctx context.Context, cfg ExperimentConfig) (*Experiment, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("experiment config is required")
	}
	tree := cfg.Config.Clone()
	logger := klog.FromContext(ctx)

	if !tree.Has("random_seed") {
		tree.Set("random_seed", rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1<<31))
	}

	e := &Experiment{cfg: tree, store: cfg.Store}
	evaluator := cfg.Evaluator
	var operators []evo.Spec
	if tree.Has("landscape.class") {
		l, err := landscape.New(tree.Sub("landscape"))
		if err != nil {
			return nil, err
		}
		e.Landscape = l
		tree.Set("landscape", tree.Sub("landscape").Overlay(l.Describe()))
		if evaluator == nil {
			evaluator = l
		}
		operators = append(operators, algorithms.SuitableIndividuals(l))
		for _, line := range l.Info(1) {
			logger.V(2).Info(line)
		}
	}

	if e.store == nil {
		s, err := storage.NewStore("memory")
		if err != nil {
			return nil, err
		}
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		e.store, e.ownStore = s, true
	}

	consumerCfg, err := monitor.ConsumerConfigFrom(tree.Sub("monitor"))
	if err != nil {
		return nil, err
	}
	consumerCfg.Store = e.store
	if e.Consumer, err = monitor.NewConsumer(consumerCfg); err != nil {
		return nil, err
	}
	monitors := monitor.Multi{e.Consumer}
	reg := cfg.Registerer
	if enabled, err := tree.Bool("monitor.metrics", false); err != nil {
		return nil, err
	} else if reg == nil && enabled {
		reg = prometheus.DefaultRegisterer
	}
	if reg != nil {
		m, err := monitor.NewMetrics(reg, consumerCfg.Primary)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	monitors = append(monitors, cfg.Monitors...)
	e.monitor = monitors

	operators = append(operators, cfg.Operators...)
	if e.System, err = New(tree, Options{Evaluator: evaluator, Monitor: monitors, Operators: operators}); err != nil {
		return nil, err
	}
	if e.Landscape != nil {
		e.monitor.OnNotify("Experiment", "Landscape", e.Landscape.Class)
	}
	return e, nil
}

// Config is the configuration the experiment runs with, including the chosen
// seed and the landscape description.
func (e *Experiment) Config() *config.Tree { return e.cfg }

// Run begins the system, steps the generation block until a monitor asks to
// stop, then closes the system. The context is checked between generations.
// A failing step ends the run and its error is returned.
func (e *Experiment) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	runErr := e.System.Begin(ctx)
	for runErr == nil {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if e.monitor.ShouldTerminate(e.System) {
			break
		}
		runErr = e.System.Step(ctx, esdl.GenerationBlock)
	}
	if runErr != nil {
		// the consumer reports the failure as its reason
		e.monitor.ShouldTerminate(e.System)
	}
	e.System.Close(ctx)

	res := e.result(ctx)
	record := storage.RunRecord{
		RunID:       res.RunID,
		Seed:        res.Seed,
		Config:      e.cfg.Map(),
		Generations: res.Generations,
		Births:      res.Births,
		Evaluations: res.Evaluations,
		Reason:      res.Reason,
		Started:     started,
		Finished:    time.Now(),
	}
	if def, err := e.cfg.String("system.definition", ""); err == nil {
		record.Definition = def
	}
	if runErr != nil {
		record.Err = runErr.Error()
	}
	if err := e.store.SaveRun(ctx, record); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if e.ownStore {
		if err := storage.CloseIfSupported(e.store); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return res, runErr
}

func (e *Experiment) result(ctx context.Context) Result {
	s := e.System
	res := Result{
		RunID:       s.RunID(),
		Seed:        s.Seed(),
		Generations: s.Generation(),
		Births:      s.Births(),
		Evaluations: s.Evaluations(),
		Best:        e.Consumer.Best(),
		Reason:      e.Consumer.Reason(),
	}
	history, ok, err := e.store.GetHistory(ctx, s.RunID())
	if err == nil && ok {
		res.History = history
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Improved {
				res.BestPhenome = history[i].BestPhenome
				break
			}
		}
	}
	return res
}

// Info describes the experiment: the landscape and the system.
func (e *Experiment) Info(level int) []string {
	var out []string
	if e.Landscape != nil {
		out = append(out, e.Landscape.Info(level)...)
	}
	return append(out, e.System.Info(level)...)
}
