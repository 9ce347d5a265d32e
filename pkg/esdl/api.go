// Package esdl runs evolutionary system definitions.
package esdl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"esdl/internal/algorithms"
	"esdl/internal/config"
	lang "esdl/internal/esdl"
	"esdl/internal/evo"
	"esdl/internal/landscape"
	"esdl/internal/storage"
	"esdl/internal/system"
)

type Options struct {
	StoreKind string
	// Registerer receives the prometheus collectors of every run.
	Registerer prometheus.Registerer
}

type Client struct {
	store      storage.Store
	registerer prometheus.Registerer
}

// RunRequest layers configuration, lowest precedence first: the algorithm
// defaults, ConfigPath, then the remaining fields, then Overrides.
type RunRequest struct {
	Algorithm  string
	ConfigPath string
	Definition string
	Landscape  string
	// Seed zero leaves the seed to the configuration, or picks one at random.
	Seed        int64
	Generations int
	Workers     int
	// Overrides are path=value pairs such as system.size=20.
	Overrides []string
}

type RunSummary struct {
	RunID            string
	Seed             int64
	Generations      int
	Births           uint64
	Evaluations      uint64
	Reason           string
	FinalBestFitness float64
	BestPhenome      []float64
	BestByGeneration []float64
}

type RunItem struct {
	RunID       string
	Seed        int64
	Generations int
	Evaluations uint64
	Reason      string
	Err         string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	store, err := storage.NewStore(opts.StoreKind)
	if err != nil {
		return nil, err
	}
	if err := store.Init(context.Background()); err != nil {
		return nil, err
	}
	return &Client{store: store, registerer: opts.Registerer}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Run executes one experiment and keeps its record for Runs and
// FitnessHistory. A failed run still returns what it produced.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg, err := BuildConfig(req)
	if err != nil {
		return RunSummary{}, err
	}
	e, err := system.NewExperiment(ctx, system.ExperimentConfig{
		Config:     cfg,
		Registerer: c.registerer,
		Store:      c.store,
	})
	if err != nil {
		return RunSummary{}, err
	}
	res, runErr := e.Run(ctx)
	summary := RunSummary{
		RunID:       res.RunID,
		Seed:        res.Seed,
		Generations: res.Generations,
		Births:      res.Births,
		Evaluations: res.Evaluations,
		Reason:      res.Reason,
		BestPhenome: res.BestPhenome,
	}
	if res.Best.Valid() {
		summary.FinalBestFitness = res.Best.Values[0]
	}
	for _, h := range res.History {
		if h.Best.Valid() {
			summary.BestByGeneration = append(summary.BestByGeneration, h.Best.Values[0])
		}
	}
	return summary, runErr
}

// Run executes one experiment with a private in-memory store.
func Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	c, err := New(Options{})
	if err != nil {
		return RunSummary{}, err
	}
	defer c.Close()
	return c.Run(ctx, req)
}

// BuildConfig resolves the layered configuration of req. Without an
// algorithm or a definition from any layer the GA defaults apply.
func BuildConfig(req RunRequest) (*config.Tree, error) {
	cfg := config.New()
	if req.Algorithm != "" {
		a, err := algorithms.Lookup(req.Algorithm)
		if err != nil {
			return nil, err
		}
		cfg = a.Defaults()
	}
	if req.ConfigPath != "" {
		file, err := config.Load(req.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Overlay(file)
	}
	if req.Definition != "" {
		cfg.Set("system.definition", req.Definition)
	}
	if !cfg.Has("system.definition") {
		ga, err := algorithms.Lookup("ga")
		if err != nil {
			return nil, err
		}
		cfg = ga.Defaults().Overlay(cfg)
	}
	if req.Landscape != "" {
		cfg.Set("landscape.class", req.Landscape)
	}
	if req.Seed != 0 {
		cfg.Set("random_seed", req.Seed)
	}
	if req.Generations < 0 || req.Workers < 0 {
		return nil, fmt.Errorf("%w: generations and workers must not be negative", evo.ErrConfiguration)
	}
	if req.Generations > 0 {
		cfg.Set("monitor.limits.generations", req.Generations)
	}
	if req.Workers > 0 {
		cfg.Set("system.workers", req.Workers)
	}
	overrides, err := config.ParseOverrides(req.Overrides)
	if err != nil {
		return nil, err
	}
	return cfg.Overlay(overrides), nil
}

func (c *Client) Runs(ctx context.Context) ([]RunItem, error) {
	ids, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := c.store.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, RunItem{
			RunID:       rec.RunID,
			Seed:        rec.Seed,
			Generations: rec.Generations,
			Evaluations: rec.Evaluations,
			Reason:      rec.Reason,
			Err:         rec.Err,
		})
	}
	return out, nil
}

// FitnessHistory returns the best fitness of the primary group for each
// yielded generation.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID := req.RunID
	if req.Latest {
		ids, err := c.store.ListRuns(ctx)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errors.New("no runs available")
		}
		runID = ids[len(ids)-1]
	}
	if runID == "" {
		return nil, errors.New("fitness history requires run id or latest")
	}
	history, ok, err := c.store.GetHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	out := make([]float64, 0, len(history))
	for _, h := range history {
		if h.Best.Valid() {
			out = append(out, h.Best.Values[0])
		}
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Check compiles a definition and returns its warnings as "[code] message
// (line n)" strings.
func Check(definition string) ([]string, error) {
	prog, err := lang.Compile(definition)
	if err != nil {
		return nil, err
	}
	warnings := make([]string, 0, len(prog.Warnings))
	for _, w := range prog.Warnings {
		warnings = append(warnings, w.Error())
	}
	return warnings, nil
}

// Operators lists every registered operator name with its kind, sorted by
// name.
func Operators() []string {
	reg := evo.DefaultRegistry()
	var out []string
	for _, name := range reg.Names() {
		spec, err := reg.Resolve(name)
		if err != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s (%v)", name, spec.Kind))
	}
	return out
}

// Definitions lists the built-in algorithms.
func Definitions() []string { return algorithms.Names() }

// Definition returns the source and default configuration of a built-in
// algorithm, rendered as "path = value" lines.
func Definition(name string) (string, []string, error) {
	a, err := algorithms.Lookup(name)
	if err != nil {
		return "", nil, err
	}
	defaults := a.Defaults()
	var lines []string
	for _, line := range defaults.Lines() {
		if !strings.HasPrefix(line, "system.definition ") {
			lines = append(lines, line)
		}
	}
	return strings.Trim(a.Definition, "\n"), lines, nil
}

// Landscapes lists the built-in evaluators.
func Landscapes() []string { return landscape.Names() }
