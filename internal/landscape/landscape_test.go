package landscape

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"esdl/internal/config"
	"esdl/internal/evo"
	"esdl/internal/model"
)

func build(t *testing.T, kv map[string]any) *Landscape {
	t.Helper()
	l, err := New(config.FromMap(kv))
	if err != nil {
		t.Fatalf("new landscape: %v", err)
	}
	return l
}

func TestBenchmarkValues(t *testing.T) {
	cases := []struct {
		class   string
		phenome []float64
		want    model.Fitness
	}{
		{"onemax", []float64{1, 0, 1, 1, 0, 0, 0, 0, 0, 1}, model.Max(4)},
		{"sphere", []float64{1, -2}, model.Min(5)},
		{"rosenbrock", []float64{1, 1}, model.Min(0)},
		{"rosenbrock", []float64{0, 0}, model.Min(1)},
	}
	for _, tc := range cases {
		l := build(t, map[string]any{"class": tc.class})
		got, err := l.Evaluate(tc.phenome)
		if err != nil {
			t.Fatalf("%s: %v", tc.class, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%s %v (-want +got):\n%s", tc.class, tc.phenome, diff)
		}
	}
}

func TestSizeLimits(t *testing.T) {
	l := build(t, map[string]any{"class": "sphere", "size": map[string]any{"min": 2, "max": 4}})
	if l.MinSize != 2 || l.MaxSize != 4 {
		t.Fatalf("size = %d..%d", l.MinSize, l.MaxSize)
	}
	if _, err := l.Evaluate([]float64{1}); !errors.Is(err, ErrSize) {
		t.Fatalf("expected ErrSize, got %v", err)
	}
	if _, err := l.Evaluate([]float64{1, 2, 3}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	exact := build(t, map[string]any{"class": "onemax", "size": map[string]any{"min": 3, "exact": 7}})
	if exact.MinSize != 7 || exact.MaxSize != 7 {
		t.Fatalf("exact size = %d..%d", exact.MinSize, exact.MaxSize)
	}
	flat := build(t, map[string]any{"class": "onemax", "size": 5})
	if flat.MinSize != 5 || flat.MaxSize != 5 || flat.Optimum() != 5 {
		t.Fatalf("flat size = %d..%d", flat.MinSize, flat.MaxSize)
	}
	collapsed := build(t, map[string]any{"class": "sphere", "size": map[string]any{"min": 6, "max": 3}})
	if collapsed.MaxSize != 6 {
		t.Fatalf("max below min should collapse to min, got %d", collapsed.MaxSize)
	}
}

func TestInvert(t *testing.T) {
	l := build(t, map[string]any{"class": "sphere", "invert": true, "offset": 10})
	got, err := l.Evaluate([]float64{1, 2})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got.Simple() != 5 || got.Sense != model.Minimise {
		t.Fatalf("inverted fitness = %v", got)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(config.FromMap(map[string]any{"class": "nope"})); !errors.Is(err, ErrUnknownLandscape) {
		t.Fatalf("expected ErrUnknownLandscape, got %v", err)
	}
	_, err := New(config.FromMap(map[string]any{"class": "sphere", "bounds": map[string]any{"lower": 1, "upper": 1}}))
	if !errors.Is(err, evo.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := New(config.FromMap(map[string]any{"class": "sphere", "size": 2.5})); !errors.Is(err, config.ErrType) {
		t.Fatalf("expected config.ErrType, got %v", err)
	}
}

func TestDescribeAndInfo(t *testing.T) {
	l := build(t, map[string]any{"class": "Rosenbrock", "size": map[string]any{"exact": 3}})
	d := l.Describe()
	if v, _ := d.Get("size.exact"); v != 3.0 {
		t.Fatalf("size.exact = %v", v)
	}
	if v, _ := d.Get("bounds.lower"); v != -2.048 {
		t.Fatalf("bounds.lower = %v", v)
	}
	if info := l.Info(1); len(info) != 1 || info[0] != "Using the rosenbrock landscape (minimise)" {
		t.Fatalf("info = %q", info)
	}
	if info := l.Info(5); len(info) != 3+len(d.Lines()) {
		t.Fatalf("verbose info = %q", info)
	}
	if !math.IsNaN(build(t, map[string]any{"class": "sphere", "bounds": map[string]any{"lower": math.Inf(-1)}}).Optimum()) {
		t.Fatalf("unbounded optimum should be NaN")
	}
}

func TestRegisteredAsEvaluator(t *testing.T) {
	spec, err := evo.DefaultRegistry().ResolveKind("sphere", evo.KindEvaluator)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	ev, err := spec.Evaluator(evo.Env{}, evo.Args{"size": 3.0})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, err := ev.Evaluate([]float64{1, 2}); !errors.Is(err, ErrSize) {
		t.Fatalf("expected size to be enforced, got %v", err)
	}
	if err := spec.CheckArgs(evo.Args{"colour": 1.0}); !errors.Is(err, evo.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}
