package algorithms

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/stream"
)

func init() {
	evo.MustRegisterOperator(evo.Spec{
		Name:     "pheromone_map",
		Kind:     evo.KindFunction,
		Function: newPheromoneMapFunc,
		Params:   []string{"initial"},
	})
	evo.MustRegisterOperator(evo.Spec{
		Name:      "pheromone_int",
		Kind:      evo.KindGenerator,
		Generator: pheromoneInt,
		Params:    []string{"pheromone_map", "length", "shortest", "longest", "lowest", "highest", "pheromone_power"},
	})
}

// component is a phenome value at a position.
type component struct {
	index int
	value float64
}

// PheromoneMap maps phenome components to pheromone levels. Components that
// were never reinforced read as the initial level, which decays with every
// update like the rest of the map.
type PheromoneMap struct {
	mu      sync.Mutex
	initial float64
	levels  map[component]float64
}

func NewPheromoneMap(initial float64) (*PheromoneMap, error) {
	if initial < 0 || math.IsNaN(initial) {
		return nil, fmt.Errorf("%w: initial pheromone must not be negative, got %g", evo.ErrConfiguration, initial)
	}
	return &PheromoneMap{initial: initial, levels: make(map[component]float64)}, nil
}

func newPheromoneMapFunc(_ evo.Env, args evo.Args) (any, error) {
	initial, err := args.Float("initial", 0.1)
	if err != nil {
		return nil, err
	}
	return NewPheromoneMap(initial)
}

// Level returns the pheromone of value at position index.
func (p *PheromoneMap) Level(index int, value float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level(component{index, value})
}

func (p *PheromoneMap) level(c component) float64 {
	if v, ok := p.levels[c]; ok {
		return v
	}
	return p.initial
}

func (p *PheromoneMap) decay(persistence float64) error {
	if persistence < 0 || persistence > 1 {
		return fmt.Errorf("%w: persistence must be within [0, 1], got %g", evo.ErrConfiguration, persistence)
	}
	for c := range p.levels {
		p.levels[c] *= persistence
	}
	p.initial *= persistence
	return nil
}

func (p *PheromoneMap) reinforce(ind *model.Individual, delta float64) {
	for i, v := range ind.Phenome() {
		c := component{i, v}
		p.levels[c] = p.level(c) + delta
	}
}

// UpdateFitness decays the map by persistence, then adds strength times the
// first fitness value of each individual to its components. With minimise
// the reciprocal of the fitness is used.
func (p *PheromoneMap) UpdateFitness(source model.Population, strength float64, minimise bool, persistence float64) error {
	deltas := make([]float64, len(source))
	for i, ind := range source {
		f := ind.Fitness()
		if !f.Valid() {
			return fmt.Errorf("%w: %s has no fitness to deposit", evo.ErrConfiguration, ind)
		}
		v := f.Values[0]
		if minimise {
			if v == 0 {
				return fmt.Errorf("%w: cannot deposit the reciprocal of a zero fitness", evo.ErrConfiguration)
			}
			deltas[i] = strength / v
		} else {
			deltas[i] = strength * v
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.decay(persistence); err != nil {
		return err
	}
	for i, ind := range source {
		p.reinforce(ind, deltas[i])
	}
	return nil
}

// UpdateRank decays the map by persistence, then deposits by rank: the
// fittest individual adds strength and each lower rank one step of
// strength/len(source) less.
func (p *PheromoneMap) UpdateRank(source model.Population, strength, persistence float64) error {
	ranked := source.SortedWorst()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.decay(persistence); err != nil {
		return err
	}
	if len(ranked) == 0 {
		return nil
	}
	step := strength / float64(len(ranked))
	for i, ind := range ranked {
		p.reinforce(ind, step*float64(i+1))
	}
	return nil
}

// CallMethod exposes update, update_fitness and update_rank to definitions.
func (p *PheromoneMap) CallMethod(name string, args evo.Args) (any, error) {
	var strength float64
	switch name {
	case "update":
		strength = 1.0
		if err := args.Expect("source", "strength", "minimisation", "minimization", "persistence", "use_fitness", "use_rank"); err != nil {
			return nil, err
		}
	case "update_fitness", "update_rank":
		strength = 0.1
		params := []string{"source", "strength", "persistence"}
		if name == "update_fitness" {
			params = append(params, "minimisation", "minimization")
		}
		if err := args.Expect(params...); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: pheromone map has no method %s", evo.ErrOperatorNotFound, name)
	}
	source, err := args.Population("source")
	if err != nil {
		return nil, err
	}
	if strength, err = args.Float("strength", strength); err != nil {
		return nil, err
	}
	persistence, err := args.Float("persistence", 0.9)
	if err != nil {
		return nil, err
	}
	minimise, err := args.Bool("minimisation", false)
	if err != nil {
		return nil, err
	}
	if args.Has("minimization") {
		if minimise, err = args.Bool("minimization", false); err != nil {
			return nil, err
		}
	}
	useRank := name == "update_rank"
	if name == "update" {
		useFitness, err := args.Bool("use_fitness", true)
		if err != nil {
			return nil, err
		}
		useRank = !useFitness
		if args.Has("use_rank") {
			if useRank, err = args.Bool("use_rank", false); err != nil {
				return nil, err
			}
		}
	}
	if useRank {
		return nil, p.UpdateRank(source, strength, persistence)
	}
	return nil, p.UpdateFitness(source, strength, minimise, persistence)
}

// Attr exposes the initial level and the number of reinforced components.
func (p *PheromoneMap) Attr(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch name {
	case "initial":
		return p.initial, true
	case "size", "length":
		return float64(len(p.levels)), true
	}
	return nil, false
}

func (p *PheromoneMap) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]component, 0, len(p.levels))
	for c := range p.levels {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].index != keys[j].index {
			return keys[i].index < keys[j].index
		}
		return keys[i].value < keys[j].value
	})
	parts := make([]string, len(keys))
	for i, c := range keys {
		parts[i] = fmt.Sprintf("%d:%g=%.3f", c.index, c.value, p.levels[c])
	}
	return fmt.Sprintf("pheromone(initial=%.3f; %s)", p.initial, strings.Join(parts, " "))
}

// pheromoneInt builds integer genomes one gene at a time, choosing each
// value in [lowest, highest] with probability proportional to its
// pheromone raised to pheromone_power. Genomes over {0, 1} are binary.
func pheromoneInt(env evo.Env, args evo.Args) (stream.Stream, error) {
	pm, ok := args["pheromone_map"].(*PheromoneMap)
	if !ok {
		return nil, fmt.Errorf("%w: pheromone_map must be a pheromone map, got %T", evo.ErrParameterType, args["pheromone_map"])
	}
	length, err := args.Int("length", 10)
	if err != nil {
		return nil, err
	}
	shortest, err := args.Int("shortest", length)
	if err != nil {
		return nil, err
	}
	longest, err := args.Int("longest", length)
	if err != nil {
		return nil, err
	}
	lowest, err := args.Int("lowest", 0)
	if err != nil {
		return nil, err
	}
	highest, err := args.Int("highest", 1)
	if err != nil {
		return nil, err
	}
	power, err := args.Float("pheromone_power", 1.0)
	if err != nil {
		return nil, err
	}
	if shortest < 1 || longest < shortest {
		return nil, fmt.Errorf("%w: lengths must satisfy 1 <= shortest (%d) <= longest (%d)", evo.ErrConfiguration, shortest, longest)
	}
	if highest <= lowest {
		return nil, fmt.Errorf("%w: highest (%d) must be higher than lowest (%d)", evo.ErrConfiguration, highest, lowest)
	}

	traits := model.Traits{
		Species:   "integer",
		Evaluator: env.Evaluator,
		Bounds:    model.Bounds{Lowest: float64(lowest), Highest: float64(highest)},
		Integral:  true,
	}
	if lowest == 0 && highest == 1 {
		traits.Species = "binary"
	}
	parent := model.FromSpecies(traits)
	weights := make([]float64, highest-lowest+1)
	return stream.Endless(func() (*model.Individual, error) {
		n := shortest
		if longest > shortest {
			n += env.Rand.Intn(longest - shortest + 1)
		}
		genes := make([]float64, n)
		pm.mu.Lock()
		for i := range genes {
			total := 0.0
			for k := range weights {
				weights[k] = math.Pow(pm.level(component{i, float64(lowest + k)}), power)
				total += weights[k]
			}
			genes[i] = float64(lowest + wheel(env, weights, total))
		}
		pm.mu.Unlock()
		return model.New(genes, parent, nil), nil
	}), nil
}

// wheel spins a roulette wheel over weights, uniformly when they are all
// zero.
func wheel(env evo.Env, weights []float64, total float64) int {
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return env.Rand.Intn(len(weights))
	}
	r := env.Rand.Float64() * total
	for k, w := range weights {
		if r < w {
			return k
		}
		r -= w
	}
	return len(weights) - 1
}
