// Package landscape provides the built-in fitness landscapes.
package landscape

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"esdl/internal/config"
	"esdl/internal/evo"
	"esdl/internal/model"
)

var (
	ErrUnknownLandscape = errors.New("unknown landscape")
	ErrSize             = errors.New("phenome size outside landscape limits")
)

type definition struct {
	fn       func(x []float64) float64
	maximise bool
	size     int
	lower    float64
	upper    float64
	integral bool
}

var landscapes = map[string]definition{
	"onemax": {
		fn: func(x []float64) float64 {
			n := 0.0
			for _, v := range x {
				if v != 0 {
					n++
				}
			}
			return n
		},
		maximise: true, size: 10, lower: 0, upper: 1, integral: true,
	},
	"sphere": {
		fn: func(x []float64) float64 {
			sum := 0.0
			for _, v := range x {
				sum += v * v
			}
			return sum
		},
		size: 2, lower: -5.12, upper: 5.12,
	},
	"rosenbrock": {
		fn: func(x []float64) float64 {
			sum := 0.0
			for i := 1; i < len(x); i++ {
				a, b := x[i-1], x[i]
				sum += 100*(b-a*a)*(b-a*a) + (a-1)*(a-1)
			}
			return sum
		},
		size: 2, lower: -2.048, upper: 2.048,
	},
}

func init() {
	for _, name := range Names() {
		name := name
		evo.MustRegisterOperator(evo.Spec{
			Name: name,
			Kind: evo.KindEvaluator,
			Evaluator: func(_ evo.Env, args evo.Args) (model.Evaluator, error) {
				tree := config.New()
				tree.Set("class", name)
				for k, v := range args {
					tree.Set(k, v)
				}
				return New(tree)
			},
			Params: []string{"size", "invert", "offset"},
		})
	}
}

// Names lists the available landscapes.
func Names() []string {
	names := make([]string, 0, len(landscapes))
	for name := range landscapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Landscape evaluates phenomes against a benchmark function.
type Landscape struct {
	Class    string
	Maximise bool
	// MinSize and MaxSize bound the phenome length; zero disables a check.
	MinSize int
	MaxSize int
	Lower   float64
	Upper   float64
	Invert  bool
	Offset  float64

	def definition
}

// New builds the landscape described by a landscape config section: class,
// size (a number or min/max/exact), bounds, invert and offset.
func New(cfg *config.Tree) (*Landscape, error) {
	class, err := cfg.String("class", "")
	if err != nil {
		return nil, err
	}
	def, ok := landscapes[strings.ToLower(class)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownLandscape, class, strings.Join(Names(), ", "))
	}
	l := &Landscape{Class: strings.ToLower(class), Maximise: def.maximise, Lower: def.lower, Upper: def.upper, def: def}

	if err := l.readSize(cfg, def.size); err != nil {
		return nil, err
	}
	if l.Lower, err = cfg.Float("bounds.lower", l.Lower); err != nil {
		return nil, err
	}
	if l.Upper, err = cfg.Float("bounds.upper", l.Upper); err != nil {
		return nil, err
	}
	if l.Upper <= l.Lower {
		return nil, fmt.Errorf("%w: landscape upper bound %g must be above lower bound %g", evo.ErrConfiguration, l.Upper, l.Lower)
	}
	if l.Invert, err = cfg.Bool("invert", false); err != nil {
		return nil, err
	}
	if l.Offset, err = cfg.Float("offset", 0); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Landscape) readSize(cfg *config.Tree, def int) error {
	if v, ok := cfg.Get("size"); ok {
		if _, isTree := v.(*config.Tree); !isTree {
			n, err := cfg.Int("size", def)
			if err != nil {
				return err
			}
			l.MinSize, l.MaxSize = n, n
			return nil
		}
	}
	exact, err := cfg.Int("size.exact", 0)
	if err != nil {
		return err
	}
	if l.MinSize, err = cfg.Int("size.min", 0); err != nil {
		return err
	}
	if l.MaxSize, err = cfg.Int("size.max", 0); err != nil {
		return err
	}
	switch {
	case exact > 0:
		l.MinSize, l.MaxSize = exact, exact
	case l.MinSize == 0 && l.MaxSize == 0:
		l.MinSize, l.MaxSize = def, def
	case l.MinSize >= l.MaxSize:
		l.MaxSize = l.MinSize
	}
	return nil
}

// Evaluate implements model.Evaluator.
func (l *Landscape) Evaluate(phenome []float64) (model.Fitness, error) {
	if n := len(phenome); (l.MinSize > 0 && n < l.MinSize) || (l.MaxSize > 0 && n > l.MaxSize) {
		return model.Fitness{}, fmt.Errorf("%w: %s expects %d to %d values, got %d", ErrSize, l.Class, l.MinSize, l.MaxSize, n)
	}
	v := l.def.fn(phenome)
	if l.Invert {
		v = l.Offset - v
	}
	if l.Maximise {
		return model.Max(v), nil
	}
	return model.Min(v), nil
}

// Integral reports whether the landscape expects whole-number genes.
func (l *Landscape) Integral() bool { return l.def.integral }

// Describe returns the view of the landscape that definitions see as
// cfg.landscape.
func (l *Landscape) Describe() *config.Tree {
	t := config.New()
	t.Set("class", l.Class)
	t.Set("size.min", l.MinSize)
	t.Set("size.max", l.MaxSize)
	if l.MinSize == l.MaxSize {
		t.Set("size.exact", l.MinSize)
	}
	t.Set("bounds.lower", l.Lower)
	t.Set("bounds.upper", l.Upper)
	t.Set("lower", l.Lower)
	t.Set("upper", l.Upper)
	t.Set("maximise", l.Maximise)
	t.Set("integral", l.def.integral)
	t.Set("invert", l.Invert)
	t.Set("offset", l.Offset)
	return t
}

// Info describes the landscape for run headers.
func (l *Landscape) Info(level int) []string {
	sense := model.Minimise
	if l.Maximise {
		sense = model.Maximise
	}
	out := []string{fmt.Sprintf("Using the %s landscape (%v)", l.Class, sense)}
	if level > 3 {
		out = append(out, "", "Configuration:")
		out = append(out, l.Describe().Lines()...)
	}
	return out
}

// Optimum is the best achievable raw value for the configured size.
func (l *Landscape) Optimum() float64 {
	if l.Class == "onemax" {
		return float64(l.MaxSize)
	}
	if math.IsInf(l.Lower, 0) {
		return math.NaN()
	}
	return 0
}
