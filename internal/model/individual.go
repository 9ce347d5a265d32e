package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrNoEvaluator = errors.New("individual has no evaluator")
	ErrEvaluation  = errors.New("evaluation failed")
)

// Evaluator maps a phenome to a fitness.
type Evaluator interface {
	Evaluate(phenome []float64) (Fitness, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(phenome []float64) (Fitness, error)

func (f EvaluatorFunc) Evaluate(phenome []float64) (Fitness, error) { return f(phenome) }

// Bounds is the inclusive scalar gene range of an individual.
type Bounds struct {
	Lowest  float64
	Highest float64
}

// Decoding describes how a binary genome is grouped into phenome values.
type Decoding struct {
	Resolution float64
	Offset     float64
	// Width is the number of genes per value; zero means the whole genome.
	Width int
	// Widths overrides Width per value index.
	Widths  []int
	Integer bool
}

// Traits are the species defaults carried from parent to child.
type Traits struct {
	Species   string
	Evaluator Evaluator
	Bounds    Bounds
	// Lower and Upper are per-gene bounds; when set they take precedence
	// over Bounds for that gene.
	Lower    []float64
	Upper    []float64
	Integral bool
	Decoding *Decoding
	// Particle marks genomes whose second half holds velocities.
	Particle bool
}

// GeneBounds returns the inclusive range of gene i.
func (t Traits) GeneBounds(i int) (float64, float64) {
	lo, hi := t.Bounds.Lowest, t.Bounds.Highest
	if i < len(t.Lower) {
		lo = t.Lower[i]
	}
	if i < len(t.Upper) {
		hi = t.Upper[i]
	}
	return lo, hi
}

// Parent is the source of defaults for a new individual: either an existing
// individual or the traits of a species.
type Parent struct {
	ind    *Individual
	traits Traits
}

func FromIndividual(ind *Individual) Parent { return Parent{ind: ind} }

func FromSpecies(traits Traits) Parent { return Parent{traits: traits} }

// Statistic counts events in an individual's ancestry.
type Statistic map[string]float64

// Merge returns a new statistic holding the sum of both inputs.
func (s Statistic) Merge(o Statistic) Statistic {
	out := make(Statistic, len(s)+len(o))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range o {
		out[k] += v
	}
	return out
}

// Clock hands out birthdays.
type Clock struct {
	n atomic.Uint64
}

// Births returns the number of birthdays handed out so far.
func (c *Clock) Births() uint64 { return c.n.Load() }

func (c *Clock) tick() uint64 { return c.n.Add(1) }

// Individual is one candidate solution. The genome never changes after
// construction; only the evaluator may be rebound with Reevaluate.
type Individual struct {
	genome    []float64
	traits    Traits
	statistic Statistic
	birthday  uint64

	members []*Individual
	sources map[string]int

	phenomeOnce sync.Once
	phenome     []float64

	mu        sync.Mutex
	evaluated bool
	fitness   Fitness
	evalErr   error
}

// New builds an individual that takes ownership of genome. Traits come from
// the parent and statistics are merged with the parent's.
func New(genome []float64, parent Parent, stat Statistic) *Individual {
	ind := &Individual{genome: genome}
	if parent.ind != nil {
		ind.traits = parent.ind.traits
		ind.statistic = parent.ind.statistic.Merge(stat)
	} else {
		ind.traits = parent.traits
		ind.statistic = Statistic(nil).Merge(stat)
	}
	return ind
}

// NewJoined builds a composite of members; sources names the group each
// member came from, in member order.
func NewJoined(members []*Individual, sources []string) *Individual {
	ind := &Individual{
		members:   append([]*Individual(nil), members...),
		sources:   make(map[string]int, len(sources)),
		statistic: Statistic{},
	}
	for i, name := range sources {
		key := strings.ToLower(name)
		if _, seen := ind.sources[key]; !seen && i < len(members) {
			ind.sources[key] = i
		}
	}
	if len(members) > 0 {
		ind.traits.Species = "joined"
		ind.traits.Evaluator = nil
	}
	return ind
}

func (i *Individual) Genome() []float64 { return i.genome }

func (i *Individual) Len() int { return len(i.genome) }

func (i *Individual) Traits() Traits { return i.traits }

func (i *Individual) Species() string { return i.traits.Species }

func (i *Individual) Bounds() Bounds { return i.traits.Bounds }

func (i *Individual) Statistic() Statistic { return i.statistic }

func (i *Individual) Birthday() uint64 { return i.birthday }

// Born assigns a birthday from clock if the individual has none yet.
func (i *Individual) Born(clock *Clock) {
	if i.birthday == 0 && clock != nil {
		i.birthday = clock.tick()
	}
}

// Joined reports whether the individual is a composite.
func (i *Individual) Joined() bool { return i.members != nil }

func (i *Individual) Members() []*Individual { return i.members }

// Member returns the first member taken from the named source group.
func (i *Individual) Member(source string) (*Individual, bool) {
	idx, ok := i.sources[strings.ToLower(source)]
	if !ok {
		return nil, false
	}
	return i.members[idx], true
}

// Sources lists source group names ordered by member index.
func (i *Individual) Sources() []string {
	names := make([]string, 0, len(i.sources))
	for name := range i.sources {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool { return i.sources[names[a]] < i.sources[names[b]] })
	return names
}

// Phenome returns the decoded view of the genome, computed once.
func (i *Individual) Phenome() []float64 {
	i.phenomeOnce.Do(func() {
		switch {
		case i.members != nil:
			for _, m := range i.members {
				i.phenome = append(i.phenome, m.Phenome()...)
			}
		case i.traits.Decoding != nil:
			i.phenome = decode(i.genome, *i.traits.Decoding)
		case i.traits.Particle:
			i.phenome = i.genome[:len(i.genome)/2]
		default:
			i.phenome = i.genome
		}
	})
	return i.phenome
}

// Fitness evaluates the individual at most once. An evaluation failure
// leaves the fitness unset and is reported by Err.
func (i *Individual) Fitness() Fitness {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.evaluated {
		return i.fitness
	}
	i.evaluated = true
	if i.traits.Evaluator == nil {
		i.evalErr = ErrNoEvaluator
		return i.fitness
	}
	f, err := i.traits.Evaluator.Evaluate(i.Phenome())
	if err != nil {
		i.evalErr = fmt.Errorf("%w: %s: %v", ErrEvaluation, i, err)
		return i.fitness
	}
	i.fitness = f
	return f
}

// Evaluated reports whether the fitness has already been computed.
func (i *Individual) Evaluated() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.evaluated
}

// Err returns the error recorded by the last evaluation.
func (i *Individual) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.evalErr
}

// Reevaluate rebinds the evaluator and drops any cached fitness.
func (i *Individual) Reevaluate(ev Evaluator) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.traits.Evaluator = ev
	i.evaluated = false
	i.fitness = Fitness{}
	i.evalErr = nil
}

// Better reports whether i is strictly fitter than o.
func (i *Individual) Better(o *Individual) bool {
	return i.Fitness().Better(o.Fitness())
}

func (i *Individual) String() string {
	if i.members != nil {
		parts := make([]string, len(i.members))
		for k, m := range i.members {
			parts[k] = m.String()
		}
		return "<" + strings.Join(parts, ", ") + ">"
	}
	return FormatValues(i.Phenome())
}

// FormatValues renders values compactly, integers without a fraction.
func FormatValues(values []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for k, v := range values {
		if k > 0 {
			b.WriteString(", ")
		}
		if v == float64(int64(v)) {
			fmt.Fprintf(&b, "%d", int64(v))
		} else {
			fmt.Fprintf(&b, "%g", v)
		}
	}
	b.WriteByte(']')
	return b.String()
}

func decode(genome []float64, d Decoding) []float64 {
	var widths []int
	switch {
	case len(d.Widths) > 0:
		widths = d.Widths
	case d.Width > 0:
		widths = make([]int, len(genome)/d.Width)
		for k := range widths {
			widths[k] = d.Width
		}
	default:
		widths = []int{len(genome)}
	}
	resolution := d.Resolution
	if resolution == 0 {
		resolution = 1
	}
	out := make([]float64, 0, len(widths))
	pos := 0
	for _, w := range widths {
		if w <= 0 || pos+w > len(genome) {
			break
		}
		sum := 0.0
		for _, g := range genome[pos : pos+w] {
			sum += g
		}
		v := d.Offset + resolution*sum
		if d.Integer {
			v = float64(int64(v))
		}
		out = append(out, v)
		pos += w
	}
	return out
}
