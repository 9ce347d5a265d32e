package algorithms_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"esdl/internal/algorithms"
	"esdl/internal/config"
	"esdl/internal/esdl"
	"esdl/internal/evo"
	"esdl/internal/landscape"
	"esdl/internal/model"
	"esdl/internal/stream"
	"esdl/internal/system"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"GA":                          "ga",
		" genetic_algorithm ":         "ga",
		"DERosenbrock":                "de",
		"differential-evolution":      "de",
		"PSO_Rosenbrock":              "pso",
		"Particle Swarm Optimization": "pso",
		"ACO_onemax":                  "aco",
		"Ant Colony Optimisation":     "aco",
		"es":                          "es",
		"":                            "",
	}
	for in, want := range cases {
		if got := algorithms.Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	if diff := cmp.Diff([]string{"aco", "de", "ga", "pso"}, algorithms.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	a, err := algorithms.Lookup("Differential Evolution")
	if err != nil || a.Name != "de" {
		t.Fatalf("lookup = %+v, %v", a, err)
	}
	if _, err := algorithms.Lookup("nsga"); !errors.Is(err, algorithms.ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestDefinitionsCompile(t *testing.T) {
	for _, name := range algorithms.Names() {
		a, _ := algorithms.Lookup(name)
		prog, err := esdl.Compile(a.Definition)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(prog.Warnings) != 0 {
			t.Fatalf("%s: unexpected warnings %v", name, prog.Warnings)
		}
		d := a.Defaults()
		if def, _ := d.String("system.definition", ""); def != a.Definition {
			t.Fatalf("%s: defaults do not carry the definition", name)
		}
		if !d.Has("landscape.class") {
			t.Fatalf("%s: defaults have no landscape", name)
		}
	}
}

func TestDefaultsAreFresh(t *testing.T) {
	a, _ := algorithms.Lookup("de")
	first := a.Defaults()
	first.Set("system.size", 3)
	if size, _ := a.Defaults().Int("system.size", 0); size != 15 {
		t.Fatalf("defaults were shared between calls: size %d", size)
	}
}

func TestAlgorithmsRun(t *testing.T) {
	overrides := map[string]map[string]any{
		"aco": {"size": 10},
		"ga":  {"size": 20},
		"de":  {"size": 10},
		"pso": {"size": 10, "limit": 5},
	}
	for _, name := range algorithms.Names() {
		t.Run(name, func(t *testing.T) {
			a, _ := algorithms.Lookup(name)
			cfg := a.Defaults()
			cfg.Set("random_seed", 42)
			cfg.Set("monitor.limits", map[string]any{"generations": 5})
			for k, v := range overrides[name] {
				cfg.Set("system."+k, v)
			}
			ctx := context.Background()
			e, err := system.NewExperiment(ctx, system.ExperimentConfig{Config: cfg})
			if err != nil {
				t.Fatalf("new experiment: %v", err)
			}
			res, err := e.Run(ctx)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Generations != 5 || !res.Best.Valid() {
				t.Fatalf("result = %+v", res)
			}
			first, last := res.History[0].Best, res.History[len(res.History)-1].Best
			if name == "de" && last.Compare(first) < 0 {
				t.Fatalf("best got worse: %v then %v", first, last)
			}
		})
	}
}

func TestSuitableIndividuals(t *testing.T) {
	cases := []struct {
		class   string
		species string
	}{
		{"onemax", "binary"},
		{"sphere", "real"},
	}
	for _, tc := range cases {
		l, err := landscape.New(config.FromMap(map[string]any{"class": tc.class, "size": 4}))
		if err != nil {
			t.Fatalf("landscape: %v", err)
		}
		spec := algorithms.SuitableIndividuals(l)
		st, err := spec.Generator(evo.Env{Rand: rand.New(rand.NewSource(1)), Evaluator: l}, evo.Args{})
		if err != nil {
			t.Fatalf("%s: %v", tc.class, err)
		}
		pop, err := stream.Take(st, 3)
		if err != nil {
			t.Fatalf("%s: %v", tc.class, err)
		}
		for _, ind := range pop {
			if ind.Species() != tc.species || ind.Len() != 4 {
				t.Fatalf("%s: got %s individual of length %d", tc.class, ind.Species(), ind.Len())
			}
			if lo, hi := ind.Traits().GeneBounds(0); tc.species == "real" && (lo != l.Lower || hi != l.Upper) {
				t.Fatalf("%s: bounds %g..%g", tc.class, lo, hi)
			}
		}
	}
	if _, err := algorithms.SuitableIndividuals(nil).Generator(evo.Env{}, nil); !errors.Is(err, evo.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without a landscape, got %v", err)
	}
}

func TestMutateDE(t *testing.T) {
	spec, err := evo.ResolveOperator("mutate_DE")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	traits := model.Traits{Species: "real", Bounds: model.Bounds{Lowest: -1, Highest: 1}}
	ind := func(g ...float64) *model.Individual { return model.New(g, model.FromSpecies(traits), nil) }
	tuple := model.NewJoined([]*model.Individual{ind(0.5, 0, 0.9), ind(1, 1, 1), ind(0, 0.5)}, []string{"a", "b", "c"})

	st, err := spec.Filter(evo.Env{}, stream.Of(model.Population{tuple}), evo.Args{"scale": 0.5})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	out, err := stream.Collect(st)
	if err != nil || len(out) != 1 {
		t.Fatalf("collect: %d %v", len(out), err)
	}
	want := []float64{1, 0.25}
	if diff := cmp.Diff(want, out[0].Genome(), cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-12 })); diff != "" {
		t.Fatalf("genome mismatch (-want +got):\n%s", diff)
	}
	if out[0].Statistic()["mutated"] != 1 {
		t.Fatalf("statistic = %v", out[0].Statistic())
	}

	pair := model.NewJoined([]*model.Individual{ind(0), ind(1)}, []string{"a", "b"})
	st, _ = spec.Filter(evo.Env{}, stream.Of(model.Population{pair}), evo.Args{})
	if _, err := stream.Collect(st); !errors.Is(err, evo.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for a pair, got %v", err)
	}
}

func TestDEOverSystem(t *testing.T) {
	def := `
FROM random_real(length=2, lowest=-1, highest=1) SELECT 6 population
JOIN population, population, population INTO mutators USING random_tuples(distinct=true)
FROM mutators SELECT mutants USING mutate_de(scale=F)
`
	cfg := config.FromMap(map[string]any{"random_seed": 3, "system": map[string]any{"definition": def, "f": 0.5}})
	s, err := system.New(cfg, system.Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	mutants, _ := s.Group("mutants")
	if len(mutants) != 6 {
		t.Fatalf("mutants = %d", len(mutants))
	}
	for _, m := range mutants {
		for _, g := range m.Genome() {
			if g < -1 || g > 1 {
				t.Fatalf("gene %g escaped the bounds", g)
			}
		}
	}
}

func TestPheromoneMap(t *testing.T) {
	if _, err := algorithms.NewPheromoneMap(-1); !errors.Is(err, evo.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for a negative level, got %v", err)
	}
	pm, err := algorithms.NewPheromoneMap(1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ind := func(fitness float64, g ...float64) *model.Individual {
		return model.New(g, model.FromSpecies(model.Traits{
			Species:   "binary",
			Evaluator: model.EvaluatorFunc(func([]float64) (model.Fitness, error) { return model.Max(fitness), nil }),
		}), nil)
	}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-12 })

	if err := pm.UpdateFitness(model.Population{ind(2, 1, 0), ind(1, 1, 1)}, 0.5, false, 0.5); err != nil {
		t.Fatalf("update fitness: %v", err)
	}
	got := []float64{pm.Level(0, 1), pm.Level(0, 0), pm.Level(1, 0), pm.Level(1, 1), pm.Level(2, 1)}
	// The initial level decays to 0.5 before deposits of 1 and 0.5.
	if diff := cmp.Diff([]float64{2, 0.5, 1.5, 1, 0.5}, got, approx); diff != "" {
		t.Fatalf("levels mismatch (-want +got):\n%s", diff)
	}

	if err := pm.UpdateFitness(model.Population{ind(4, 0)}, 1, true, 1); err != nil {
		t.Fatalf("update minimising: %v", err)
	}
	if l := pm.Level(0, 0); math.Abs(l-0.75) > 1e-12 {
		t.Fatalf("minimising deposit gave %g, want 0.75", l)
	}
	if err := pm.UpdateFitness(model.Population{ind(0, 1)}, 1, true, 1); !errors.Is(err, evo.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for a zero fitness when minimising, got %v", err)
	}
	if err := pm.UpdateFitness(nil, 1, false, 1.5); !errors.Is(err, evo.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for persistence above one, got %v", err)
	}

	ranked, _ := algorithms.NewPheromoneMap(0)
	if err := ranked.UpdateRank(model.Population{ind(3, 1), ind(1, 2), ind(2, 3)}, 0.3, 0.9); err != nil {
		t.Fatalf("update rank: %v", err)
	}
	got = []float64{ranked.Level(0, 2), ranked.Level(0, 3), ranked.Level(0, 1)}
	if diff := cmp.Diff([]float64{0.1, 0.2, 0.3}, got, approx); diff != "" {
		t.Fatalf("rank levels mismatch (-want +got):\n%s", diff)
	}
	if size, _ := ranked.Attr("size"); size != 3.0 {
		t.Fatalf("size = %v", size)
	}
}

func TestPheromoneMapMethods(t *testing.T) {
	pm, _ := algorithms.NewPheromoneMap(1)
	one := model.New([]float64{1}, model.FromSpecies(model.Traits{
		Species:   "binary",
		Evaluator: model.EvaluatorFunc(func([]float64) (model.Fitness, error) { return model.Max(1), nil }),
	}), nil)
	src := model.Population{one}

	if _, err := pm.CallMethod("update", evo.Args{"source": src, "use_rank": true, "persistence": 1.0}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if l := pm.Level(0, 1); l != 2 {
		t.Fatalf("rank update with default strength gave %g, want 2", l)
	}
	cases := []struct {
		method string
		args   evo.Args
		want   error
	}{
		{"update_rank", evo.Args{"source": src, "minimisation": true}, evo.ErrUnknownParameter},
		{"update_fitness", evo.Args{"strength": 1.0}, evo.ErrConfiguration},
		{"update_fitness", evo.Args{"source": src, "persistence": -0.1}, evo.ErrConfiguration},
		{"evaporate", evo.Args{"source": src}, evo.ErrOperatorNotFound},
	}
	for _, tc := range cases {
		if _, err := pm.CallMethod(tc.method, tc.args); !errors.Is(err, tc.want) {
			t.Fatalf("%s(%v): expected %v, got %v", tc.method, tc.args, tc.want, err)
		}
	}
}

func TestPheromoneIntFollowsPheromone(t *testing.T) {
	spec, err := evo.ResolveOperator("pheromone_int")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	pm, _ := algorithms.NewPheromoneMap(0)
	env := evo.Env{Rand: rand.New(rand.NewSource(5))}

	st, err := spec.Generator(env, evo.Args{"pheromone_map": pm, "length": 6, "lowest": 2, "highest": 5})
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	pop, err := stream.Take(st, 20)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	for _, ind := range pop {
		if ind.Species() != "integer" || ind.Len() != 6 {
			t.Fatalf("got %s individual of length %d", ind.Species(), ind.Len())
		}
		for _, g := range ind.Genome() {
			if g < 2 || g > 5 || g != math.Trunc(g) {
				t.Fatalf("gene %g outside the integers 2..5", g)
			}
		}
	}

	best := model.New([]float64{1, 0, 1}, model.FromSpecies(model.Traits{
		Species:   "binary",
		Evaluator: model.EvaluatorFunc(func([]float64) (model.Fitness, error) { return model.Max(1), nil }),
	}), nil)
	if err := pm.UpdateFitness(model.Population{best}, 1, false, 0); err != nil {
		t.Fatalf("update: %v", err)
	}
	st, _ = spec.Generator(env, evo.Args{"pheromone_map": pm, "length": 3})
	pop, _ = stream.Take(st, 10)
	for _, ind := range pop {
		if ind.Species() != "binary" {
			t.Fatalf("0/1 genomes should be binary, got %s", ind.Species())
		}
		if diff := cmp.Diff([]float64{1, 0, 1}, ind.Genome()); diff != "" {
			t.Fatalf("ant strayed from the only trail (-want +got):\n%s", diff)
		}
	}

	if _, err := spec.Generator(env, evo.Args{"length": 3}); !errors.Is(err, evo.ErrParameterType) {
		t.Fatalf("expected ErrParameterType without a map, got %v", err)
	}
	if _, err := spec.Generator(env, evo.Args{"pheromone_map": pm, "lowest": 3, "highest": 3}); !errors.Is(err, evo.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for an empty range, got %v", err)
	}
}

func TestPheromoneOverSystem(t *testing.T) {
	def := `
pheromone = pheromone_map(initial=1)
FROM binary_one(length=4) SELECT 3 ones
pheromone.update_rank(source=ones, persistence=0)
FROM pheromone_int(pheromone_map=pheromone, length=4) SELECT 10 ants
`
	cfg := config.FromMap(map[string]any{"random_seed": 7, "system": map[string]any{"definition": def}})
	s, err := system.New(cfg, system.Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	ants, _ := s.Group("ants")
	if len(ants) != 10 {
		t.Fatalf("ants = %d", len(ants))
	}
	for _, a := range ants {
		if diff := cmp.Diff([]float64{1, 1, 1, 1}, a.Genome()); diff != "" {
			t.Fatalf("ant mismatch (-want +got):\n%s", diff)
		}
	}

	bad := config.FromMap(map[string]any{"system": map[string]any{"definition": "size = 3\nsize.update(source=size)\n"}})
	s, err = system.New(bad, system.Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Begin(context.Background()); !errors.Is(err, esdl.ErrType) {
		t.Fatalf("expected ErrType calling a method of a number, got %v", err)
	}
}
