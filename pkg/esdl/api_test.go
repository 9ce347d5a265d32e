package esdl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"esdl/internal/algorithms"
	"esdl/internal/config"
	lang "esdl/internal/esdl"
	"esdl/internal/monitor"
	"esdl/internal/storage"
)

func TestRunDefaultsToGA(t *testing.T) {
	summary, err := Run(context.Background(), RunRequest{
		Seed:        9,
		Generations: 4,
		Overrides:   []string{"system.size=12", "landscape.size=8"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Generations != 4 || summary.Reason != monitor.ReasonGenerations || summary.Seed != 9 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.BestByGeneration) != 5 || len(summary.BestPhenome) != 8 {
		t.Fatalf("history %v, phenome %v", summary.BestByGeneration, summary.BestPhenome)
	}
	if summary.FinalBestFitness < 1 || summary.FinalBestFitness > 8 {
		t.Fatalf("final best = %v", summary.FinalBestFitness)
	}
}

func TestClientKeepsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(Options{Registerer: reg})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	first, err := c.Run(ctx, RunRequest{Algorithm: "de", Seed: 1, Generations: 3, Overrides: []string{"system.size=8"}})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := c.Run(ctx, RunRequest{Algorithm: "DERosenbrock", Landscape: "sphere", Seed: 2, Generations: 2, Overrides: []string{"system.size=8"}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	runs, err := c.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.RunID)
	}
	if diff := cmp.Diff([]string{first.RunID, second.RunID}, ids); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}

	latest, err := c.FitnessHistory(ctx, FitnessHistoryRequest{Latest: true})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if diff := cmp.Diff(second.BestByGeneration, latest); diff != "" {
		t.Fatalf("latest history mismatch (-want +got):\n%s", diff)
	}
	limited, err := c.FitnessHistory(ctx, FitnessHistoryRequest{RunID: first.RunID, Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Fatalf("limited history: %v %v", limited, err)
	}
	if n, err := testutil.GatherAndCount(reg, "esdl_generation"); err != nil || n != 2 {
		t.Fatalf("expected a generation series per run, got %d %v", n, err)
	}
}

func TestFitnessHistoryErrors(t *testing.T) {
	c, err := New(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()
	cases := []FitnessHistoryRequest{
		{RunID: "x", Latest: true},
		{Limit: -1},
		{},
		{Latest: true},
		{RunID: "missing"},
	}
	for _, req := range cases {
		if _, err := c.FitnessHistory(ctx, req); err == nil {
			t.Fatalf("expected an error for %+v", req)
		}
	}
	if _, err := New(Options{StoreKind: "sqlite"}); !errors.Is(err, storage.ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}

func TestBuildConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	yaml := "system:\n  size: 30\n  F: 0.5\nmonitor:\n  limits:\n    generations: 50\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := BuildConfig(RunRequest{
		Algorithm:   "de",
		ConfigPath:  path,
		Landscape:   "sphere",
		Seed:        5,
		Workers:     3,
		Generations: 7,
		Overrides:   []string{"system.cr=0.1"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := map[string]any{}
	for _, path := range []string{"system.size", "system.f", "system.cr", "landscape.class", "random_seed", "system.workers", "monitor.limits.generations", "monitor.limits.fitness"} {
		got[path], _ = cfg.Get(path)
	}
	want := map[string]any{
		"system.size":                30.0,
		"system.f":                   0.5,
		"system.cr":                  0.1,
		"landscape.class":            "sphere",
		"random_seed":                5.0,
		"system.workers":             3.0,
		"monitor.limits.generations": 7.0,
		"monitor.limits.fitness":     1e-6,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	if _, err := BuildConfig(RunRequest{Algorithm: "nsga"}); !errors.Is(err, algorithms.ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
	if _, err := BuildConfig(RunRequest{Overrides: []string{"no-equals"}}); !errors.Is(err, config.ErrFormat) {
		t.Fatalf("expected config.ErrFormat, got %v", err)
	}
	if _, err := BuildConfig(RunRequest{Workers: -1}); err == nil {
		t.Fatal("expected an error for negative workers")
	}
}

func TestCustomDefinitionKeepsGALandscape(t *testing.T) {
	cfg, err := BuildConfig(RunRequest{Definition: "FROM suitable_individuals SELECT 4 population\nYIELD population"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if def, _ := cfg.String("system.definition", ""); !strings.HasPrefix(def, "FROM suitable_individuals SELECT 4") {
		t.Fatalf("definition = %q", def)
	}
	if class, _ := cfg.String("landscape.class", ""); class != "onemax" {
		t.Fatalf("landscape = %q", class)
	}
}

func TestCheck(t *testing.T) {
	warnings, err := Check("FROM random_binary SELECT p, 5 q\nYIELD p")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "W2006") {
		t.Fatalf("warnings = %q", warnings)
	}
	_, err = Check("BEGIN generation\nBEGIN other\nEND other\nEND generation")
	var list lang.ErrorList
	if !errors.As(err, &list) || list.Codes()[0] != "E0005" {
		t.Fatalf("expected E0005, got %v", err)
	}
}

func TestCatalogue(t *testing.T) {
	ops := strings.Join(Operators(), "\n")
	for _, want := range []string{"mutate_de (filter)", "tournament (filter)", "random_binary (generator)", "tuples (joiner)", "sphere (evaluator)", "pheromone_map (function)", "pheromone_int (generator)"} {
		if !strings.Contains(ops, want) {
			t.Fatalf("operators missing %q", want)
		}
	}
	if diff := cmp.Diff([]string{"aco", "de", "ga", "pso"}, Definitions()); diff != "" {
		t.Fatalf("definitions mismatch (-want +got):\n%s", diff)
	}
	src, lines, err := Definition("pso")
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	if !strings.Contains(src, "update_velocity") || lines[0] != `landscape.class = "rosenbrock"` {
		t.Fatalf("definition = %q / %q", src, lines)
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "system.definition") {
			t.Fatal("configuration lines must not repeat the definition")
		}
	}
	if diff := cmp.Diff([]string{"onemax", "rosenbrock", "sphere"}, Landscapes()); diff != "" {
		t.Fatalf("landscapes mismatch (-want +got):\n%s", diff)
	}
}
