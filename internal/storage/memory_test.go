package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"esdl/internal/model"
	"esdl/internal/stats"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := RunRecord{
		RunID:       "run-1",
		Seed:        42,
		Config:      map[string]any{"system": map[string]any{"size": 10.0}},
		Generations: 5,
	}
	if err := store.SaveRun(ctx, input); err != nil {
		t.Fatalf("save run: %v", err)
	}
	input.Config["system"].(map[string]any)["size"] = 99.0

	output, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if output.Seed != 42 || output.Config["system"].(map[string]any)["size"] != 10.0 {
		t.Fatalf("unexpected run: %+v", output)
	}

	input.Generations = 6
	if err := store.SaveRun(ctx, input); err != nil {
		t.Fatalf("resave run: %v", err)
	}
	if err := store.SaveRun(ctx, RunRecord{RunID: "run-2"}); err != nil {
		t.Fatalf("save run 2: %v", err)
	}
	ids, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if diff := cmp.Diff([]string{"run-1", "run-2"}, ids); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}
	if _, ok, _ := store.GetRun(ctx, "missing"); ok {
		t.Fatal("expected missing run")
	}
}

func TestMemoryStoreHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	phenome := []float64{1, 2}
	for g := 0; g < 3; g++ {
		s := stats.Summary{Generation: g, Best: model.Max(float64(g)), BestPhenome: phenome}
		if err := store.AppendSummary(ctx, "run-1", s); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	phenome[0] = 7

	output, ok, err := store.GetHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok || len(output) != 3 {
		t.Fatalf("unexpected history: %+v", output)
	}
	if output[2].Generation != 2 || output[0].BestPhenome[0] != 1 {
		t.Fatalf("unexpected history: %+v", output)
	}
	output[0].Generation = 100
	again, _, _ := store.GetHistory(ctx, "run-1")
	if again[0].Generation != 0 {
		t.Fatal("history must be copied on read")
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), RunRecord{RunID: "x"}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := store.AppendSummary(context.Background(), "x", stats.Summary{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
