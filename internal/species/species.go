package species

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"esdl/internal/evo"
	"esdl/internal/model"
	"esdl/internal/stream"
)

var (
	ErrSpeciesExists   = errors.New("species already registered")
	ErrSpeciesNotFound = errors.New("species not found")
	ErrUnsupported     = errors.New("operation not supported by species")
)

// RandomFunc returns n random genes that respect the bounds of template.
type RandomFunc func(env evo.Env, template *model.Individual, n int) []float64

// Species groups the operations that understand one genome type. Mutations
// are keyed by operator name and are looked up from the first individual of
// a stream.
type Species struct {
	Name      string
	Random    RandomFunc
	Mutations map[string]evo.Filter
}

var speciesRegistry = struct {
	mu sync.RWMutex
	m  map[string]*Species
}{
	m: make(map[string]*Species),
}

func Register(sp *Species) error {
	if sp == nil || sp.Name == "" {
		return errors.New("species name is required")
	}
	key := strings.ToLower(sp.Name)
	speciesRegistry.mu.Lock()
	defer speciesRegistry.mu.Unlock()
	if _, exists := speciesRegistry.m[key]; exists {
		return fmt.Errorf("%w: %s", ErrSpeciesExists, sp.Name)
	}
	speciesRegistry.m[key] = sp
	return nil
}

func MustRegister(sp *Species) {
	if err := Register(sp); err != nil {
		panic(err)
	}
}

func Lookup(name string) (*Species, error) {
	speciesRegistry.mu.RLock()
	defer speciesRegistry.mu.RUnlock()
	sp, ok := speciesRegistry.m[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSpeciesNotFound, name)
	}
	return sp, nil
}

// Names lists registered species in sorted order.
func Names() []string {
	speciesRegistry.mu.RLock()
	defer speciesRegistry.mu.RUnlock()
	out := make([]string, 0, len(speciesRegistry.m))
	for _, sp := range speciesRegistry.m {
		out = append(out, sp.Name)
	}
	sort.Strings(out)
	return out
}

// mutationParams lists what each dispatched mutation accepts across all
// species.
var mutationParams = map[string][]string{
	"mutate_random":        {"per_indiv_rate", "per_gene_rate", "genes"},
	"mutate_bitflip":       {"per_indiv_rate", "per_gene_rate", "genes"},
	"mutate_inversion":     {"per_indiv_rate"},
	"mutate_gap_inversion": {"per_indiv_rate", "length", "shortest", "longest"},
	"mutate_delta":         {"per_indiv_rate", "per_gene_rate", "step_size", "positive_rate"},
	"mutate_gaussian":      {"per_indiv_rate", "per_gene_rate", "step_size", "sigma"},
	"mutate_insert":        {"per_indiv_rate", "length", "shortest", "longest", "longest_result"},
	"mutate_delete":        {"per_indiv_rate", "length", "shortest", "longest", "shortest_result"},
}

// shared mutations apply to every species that does not override them.
var shared = map[string]evo.Filter{
	"mutate_insert": mutateInsert,
	"mutate_delete": mutateDelete,
}

// dispatch resolves name against the species of the first individual in
// the stream. An empty stream is returned as is.
func dispatch(name string) evo.Filter {
	return func(env evo.Env, src stream.Stream, args evo.Args) (stream.Stream, error) {
		first, rest, err := stream.Peek(src)
		if err != nil {
			return nil, err
		}
		if first == nil {
			return rest, nil
		}
		sp, err := Lookup(first.Species())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if m, ok := sp.Mutations[name]; ok {
			return m(env, rest, args)
		}
		if m, ok := shared[name]; ok {
			return m(env, rest, args)
		}
		return nil, fmt.Errorf("%w: %s on %s individuals", ErrUnsupported, name, sp.Name)
	}
}

func init() {
	names := make([]string, 0, len(mutationParams))
	for name := range mutationParams {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		evo.MustRegisterOperator(evo.Spec{
			Name:   name,
			Kind:   evo.KindFilter,
			Filter: dispatch(name),
			Params: mutationParams[name],
		})
	}
}

func registerGenerators(specs map[string]evo.Generator, params []string) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		evo.MustRegisterOperator(evo.Spec{Name: name, Kind: evo.KindGenerator, Generator: specs[name], Params: params})
	}
}
