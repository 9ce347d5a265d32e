// Package algorithms holds the built-in definitions and their default
// configuration.
package algorithms

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"esdl/internal/config"
	"esdl/internal/evo"
	"esdl/internal/landscape"
	"esdl/internal/stream"
)

var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Algorithm is a named definition with the configuration it runs best with.
type Algorithm struct {
	Name        string
	Description string
	Definition  string
	defaults    map[string]any
}

// Defaults returns a fresh configuration holding the definition, its
// parameters, a landscape and monitor limits.
func (a Algorithm) Defaults() *config.Tree {
	t := config.FromMap(a.defaults)
	t.Set("system.definition", a.Definition)
	return t
}

const gaDefinition = `
FROM suitable_individuals SELECT (size) population
YIELD population

BEGIN generation
    FROM population SELECT (size) offspring USING binary_tournament
    FROM offspring  SELECT population       USING crossover_one(per_pair_rate=0.8), \
                                                  mutate_random(per_indiv_rate=(1.0/size))
    YIELD population
END generation
`

const deDefinition = `
FROM random_real(length=cfg.landscape.size.max, \
                 lowest=cfg.landscape.lower, highest=cfg.landscape.upper) \
        SELECT (size) population
YIELD population

BEGIN generation
    targets = population

    # Stochastic Universal Sampling for bases
    FROM population SELECT (size) bases USING fitness_sus(mu=size)

    # Ensure r0 != r1 != r2, but any may equal i
    JOIN bases, population, population INTO mutators USING random_tuples(distinct=true)

    FROM mutators SELECT mutants USING mutate_de(scale=F)

    JOIN targets, mutants INTO target_mutant_pairs USING tuples
    FROM target_mutant_pairs SELECT trials USING crossover_tuple(per_gene_rate=CR)

    JOIN targets, trials INTO target_trial_pairs USING tuples
    FROM target_trial_pairs SELECT population USING best_of_tuple

    YIELD population
END generation
`

const psoDefinition = `
FROM random_pso(length=cfg.landscape.size.max, lowest=init_lower, highest=init_upper, \
                position_bounds=[-100, 100], velocity_bounds=[-100, 100]) \
        SELECT (size) population
FROM population SELECT 1 global_best USING best_only
FROM population SELECT (size) p_bests
YIELD population

inertia = 0.9
inertia_step = (0.9 - 0.4) / limit

BEGIN generation
    JOIN population, p_bests INTO pairs USING tuples
    FROM pairs SELECT population USING update_velocity(global_best=global_best, w=inertia), \
                                       update_position_clamp

    JOIN population, p_bests INTO pairs USING tuples
    FROM pairs SELECT p_bests USING best_of_tuple

    FROM population, global_best SELECT 1 global_best USING best_only

    YIELD population, global_best
    inertia = inertia - inertia_step
END generation
`

const acoDefinition = `
pheromone = pheromone_map(initial=0.1)

BEGIN generation
    FROM pheromone_int(pheromone_map=pheromone, length=cfg.landscape.size.max, \
                       pheromone_power=power) SELECT (size) ants
    YIELD ants
    pheromone.update_fitness(source=ants, strength=strength, persistence=persistence)
END generation
`

var builtin = map[string]Algorithm{
	"aco": {
		Name:        "aco",
		Description: "Ant colony optimisation: ants built from a pheromone map reinforced by their fitness",
		Definition:  acoDefinition,
		defaults: map[string]any{
			"system":    map[string]any{"size": 20, "strength": 0.1, "persistence": 0.9, "power": 2},
			"landscape": map[string]any{"class": "onemax", "size": 20},
			"monitor":   map[string]any{"limits": map[string]any{"generations": 100, "fitness": 20}},
		},
	},
	"ga": {
		Name:        "ga",
		Description: "Generational genetic algorithm: binary tournament, one-point crossover, low random mutation",
		Definition:  gaDefinition,
		defaults: map[string]any{
			"system":    map[string]any{"size": 50},
			"landscape": map[string]any{"class": "onemax", "size": 20},
			"monitor":   map[string]any{"limits": map[string]any{"generations": 100, "fitness": 20}},
		},
	},
	"de": {
		Name:        "de",
		Description: "Differential evolution: SUS bases, distinct random tuples, tuple crossover, greedy replacement",
		Definition:  deDefinition,
		defaults: map[string]any{
			"system":    map[string]any{"size": 15, "f": 0.8, "cr": 0.8},
			"landscape": map[string]any{"class": "rosenbrock"},
			"monitor":   map[string]any{"limits": map[string]any{"generations": 1000, "fitness": 1e-6}},
		},
	},
	"pso": {
		Name:        "pso",
		Description: "Particle swarm optimisation with a global best and linearly decreasing inertia",
		Definition:  psoDefinition,
		defaults: map[string]any{
			"system": map[string]any{
				"size":       80,
				"init_lower": -30,
				"init_upper": 30,
				"limit":      1000,
			},
			"landscape": map[string]any{"class": "rosenbrock", "size": 10},
			"monitor":   map[string]any{"limits": map[string]any{"generations": 1000}},
		},
	},
}

// Names lists the built-in algorithms.
func Names() []string {
	out := make([]string, 0, len(builtin))
	for name := range builtin {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a name or alias.
func Lookup(name string) (Algorithm, error) {
	a, ok := builtin[Normalize(name)]
	if !ok {
		return Algorithm{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownAlgorithm, name, strings.Join(Names(), ", "))
	}
	return a, nil
}

// SuitableIndividuals binds the suitable_individuals generator to l: binary
// genomes for 0/1 integral landscapes, integers for other integral ones and
// reals otherwise, sized and bounded by the landscape.
func SuitableIndividuals(l *landscape.Landscape) evo.Spec {
	return evo.Spec{
		Name:   "suitable_individuals",
		Kind:   evo.KindGenerator,
		Params: []string{},
		Generator: func(env evo.Env, _ evo.Args) (stream.Stream, error) {
			if l == nil {
				return nil, fmt.Errorf("%w: suitable_individuals requires a landscape", evo.ErrConfiguration)
			}
			name, args := suitable(l)
			spec, err := evo.ResolveOperator(name)
			if err != nil {
				return nil, err
			}
			return spec.Generator(env, args)
		},
	}
}

func suitable(l *landscape.Landscape) (string, evo.Args) {
	args := evo.Args{
		"shortest": float64(l.MinSize),
		"longest":  float64(l.MaxSize),
	}
	if l.Integral() && l.Lower == 0 && l.Upper == 1 {
		return "random_binary", args
	}
	args["lowest"], args["highest"] = l.Lower, l.Upper
	if l.Integral() {
		return "random_int", args
	}
	return "random_real", args
}
