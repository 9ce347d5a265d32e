package evo

import (
	"errors"
	"testing"

	"esdl/internal/stream"
)

func noopFilter(_ Env, src stream.Stream, _ Args) (stream.Stream, error) { return src, nil }

func TestRegisterAndResolveOperator(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator(Spec{Name: "Noop", Kind: KindFilter, Filter: noopFilter}); err != nil {
		t.Fatalf("register: %v", err)
	}
	spec, err := ResolveOperator("NOOP")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if spec.Name != "Noop" || spec.Kind != KindFilter {
		t.Fatalf("unexpected operator: %+v", spec)
	}
}

func TestRegisterOperatorDuplicate(t *testing.T) {
	resetOperatorRegistryForTests()
	t.Cleanup(resetOperatorRegistryForTests)

	if err := RegisterOperator(Spec{Name: "noop", Kind: KindFilter, Filter: noopFilter}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := RegisterOperator(Spec{Name: "noop", Kind: KindFilter, Filter: noopFilter}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got: %v", err)
	}
	if err := RegisterOperator(Spec{Name: "BEST", Kind: KindFilter, Filter: noopFilter}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected builtin name clash, got: %v", err)
	}
}

func TestRegisterOperatorValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Spec{Kind: KindFilter, Filter: noopFilter}); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := r.Register(Spec{Name: "nil", Kind: KindFilter}); err == nil {
		t.Fatal("expected nil function error")
	}
	if err := r.Register(Spec{Name: "mismatch", Kind: KindJoiner, Filter: noopFilter}); err == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestResolveOperatorNotFoundAndKind(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.Resolve("missing"); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got: %v", err)
	}
	if _, err := r.ResolveKind("tuples", KindFilter); !errors.Is(err, ErrOperatorKind) {
		t.Fatalf("expected ErrOperatorKind, got: %v", err)
	}
	if _, err := r.ResolveKind("tuples", KindFilter, KindJoiner); err != nil {
		t.Fatalf("resolve joiner: %v", err)
	}
}

func TestCloneIsolatesOverrides(t *testing.T) {
	base := DefaultRegistry()
	clone := base.Clone()
	if err := clone.Override(Spec{Name: "best", Kind: KindFilter, Filter: noopFilter, Params: []string{"x"}}); err != nil {
		t.Fatalf("override: %v", err)
	}
	got, _ := base.Resolve("best")
	if len(got.Params) != 1 || got.Params[0] != "only" {
		t.Fatalf("base registry changed: %+v", got.Params)
	}
}

func TestCheckArgs(t *testing.T) {
	spec, err := DefaultRegistry().Resolve("tournament")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := spec.CheckArgs(Args{"k": 3.0}); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := spec.CheckArgs(Args{"size": 3.0}); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got: %v", err)
	}
}

func TestListOperatorsSortedAndComplete(t *testing.T) {
	names := ListOperators()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted: %q before %q", names[i-1], names[i])
		}
	}
	for _, want := range []string{"best", "tournament", "fitness_sus", "full_combine", "random_tuples", "crossover_tuple"} {
		if !DefaultRegistry().Has(want) {
			t.Fatalf("missing builtin %s", want)
		}
	}
}
