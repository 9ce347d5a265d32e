package system

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"esdl/internal/config"
	"esdl/internal/model"
	"esdl/internal/monitor"
	"esdl/internal/storage"
)

func experimentConfig(generations int) *config.Tree {
	return config.FromMap(map[string]any{
		"random_seed": 12345,
		"system":      map[string]any{"definition": onemaxGA, "size": 10},
		"landscape":   map[string]any{"class": "onemax", "size": 10},
		"monitor":     map[string]any{"limits": map[string]any{"generations": generations}},
	})
}

func TestExperimentGenerationLimit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}
	e, err := NewExperiment(ctx, ExperimentConfig{Config: experimentConfig(5), Store: store})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	res, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Generations != 5 || res.Reason != monitor.ReasonGenerations {
		t.Fatalf("result = %+v", res)
	}
	if len(res.History) != 6 {
		t.Fatalf("expected 6 summaries, got %d", len(res.History))
	}
	if len(res.BestPhenome) != 10 || !res.Best.Valid() {
		t.Fatalf("best = %v %v", res.Best, res.BestPhenome)
	}

	rec, ok, err := store.GetRun(ctx, res.RunID)
	if err != nil || !ok {
		t.Fatalf("run record: %v %v", ok, err)
	}
	if rec.Seed != 12345 || rec.Generations != 5 || rec.Err != "" || rec.Definition == "" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestExperimentConfig(t *testing.T) {
	ctx := context.Background()
	cfg := experimentConfig(1)
	cfg.Set("random_seed", nil)
	e, err := NewExperiment(ctx, ExperimentConfig{Config: cfg})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	got := e.Config()
	if !got.Has("random_seed") {
		t.Fatal("expected a random seed to be chosen")
	}
	if cfg.Has("random_seed") {
		t.Fatal("the caller's configuration must not change")
	}
	for _, path := range []string{"landscape.size.exact", "landscape.maximise", "landscape.bounds.upper"} {
		if !got.Has(path) {
			t.Fatalf("expected %s in the experiment configuration", path)
		}
	}
	if e.Landscape == nil || e.Landscape.Class != "onemax" {
		t.Fatalf("landscape = %+v", e.Landscape)
	}
	want := []string{"Experiment.Landscape=1"}
	if diff := cmp.Diff(want, e.Consumer.Notifications()); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestExperimentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e, err := NewExperiment(ctx, ExperimentConfig{Config: experimentConfig(0)})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	cancel()
	res, err := e.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if e.System.Phase() != Terminated || res.Generations != 0 {
		t.Fatalf("phase %v, generations %d", e.System.Phase(), res.Generations)
	}
}

func TestExperimentStepFailure(t *testing.T) {
	ctx := context.Background()
	cfg := config.FromMap(map[string]any{
		"random_seed": 1,
		"system":      map[string]any{"definition": "x = 1\nBEGIN generation\ny = nothing\nEND generation"},
	})
	e, err := NewExperiment(ctx, ExperimentConfig{Config: cfg})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	res, err := e.Run(ctx)
	if err == nil || res.Reason != monitor.ReasonException {
		t.Fatalf("expected a failed run, reason %q err %v", res.Reason, err)
	}
	if res.Generations != 1 {
		t.Fatalf("generations = %d", res.Generations)
	}
}

func TestExperimentMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	e, err := NewExperiment(ctx, ExperimentConfig{Config: experimentConfig(3), Registerer: reg})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	res, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	n, err := testutil.GatherAndCount(reg, "esdl_generation")
	if err != nil || n != 1 {
		t.Fatalf("esdl_generation series = %d, %v", n, err)
	}
	if res.Evaluations == 0 {
		t.Fatal("expected evaluations to be reported")
	}
}

func TestExperimentInfo(t *testing.T) {
	e, err := NewExperiment(context.Background(), ExperimentConfig{Config: experimentConfig(1)})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	info := e.Info(0)
	if len(info) < 2 || info[0] != "Using the onemax landscape (maximise)" {
		t.Fatalf("info = %q", info)
	}
}

func TestExperimentEvaluationFailure(t *testing.T) {
	ctx := context.Background()
	e, err := NewExperiment(ctx, ExperimentConfig{Config: experimentConfig(3), Evaluator: failing})
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	res, err := e.Run(ctx)
	if !errors.Is(err, model.ErrEvaluation) {
		t.Fatalf("expected ErrEvaluation, got %v", err)
	}
	if res.Reason != monitor.ReasonException || res.Generations != 0 {
		t.Fatalf("reason %q after %d generations", res.Reason, res.Generations)
	}
}
