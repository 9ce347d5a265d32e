package model

import (
	"fmt"
	"math"
	"strings"
)

// Sense selects whether larger or smaller fitness values are preferred.
type Sense int

const (
	Maximise Sense = iota
	Minimise
)

func (s Sense) String() string {
	if s == Minimise {
		return "minimise"
	}
	return "maximise"
}

// Fitness is an ordered tuple of values compared lexicographically under a
// sense. The zero value is unset and is less fit than any set fitness.
type Fitness struct {
	Values []float64
	Sense  Sense
}

// Max builds a fitness where larger values are fitter.
func Max(values ...float64) Fitness {
	return Fitness{Values: values, Sense: Maximise}
}

// Min builds a fitness where smaller values are fitter.
func Min(values ...float64) Fitness {
	return Fitness{Values: values, Sense: Minimise}
}

// Valid reports whether the fitness carries at least one value.
func (f Fitness) Valid() bool {
	return len(f.Values) > 0
}

// Simple returns a single float where larger is always fitter.
func (f Fitness) Simple() float64 {
	if !f.Valid() {
		return math.Inf(-1)
	}
	if f.Sense == Minimise {
		return -f.Values[0]
	}
	return f.Values[0]
}

// Compare returns a positive number when f is fitter than o, negative when
// it is less fit and zero when they are equivalent.
func (f Fitness) Compare(o Fitness) int {
	switch {
	case !f.Valid() && !o.Valid():
		return 0
	case !f.Valid():
		return -1
	case !o.Valid():
		return 1
	}
	c := 0
	n := min(len(f.Values), len(o.Values))
	for i := 0; i < n && c == 0; i++ {
		a, b := f.Values[i], o.Values[i]
		switch {
		case a > b:
			c = 1
		case a < b:
			c = -1
		}
	}
	if c == 0 {
		switch {
		case len(f.Values) > len(o.Values):
			c = 1
		case len(f.Values) < len(o.Values):
			c = -1
		}
	}
	if f.Sense == Minimise {
		return -c
	}
	return c
}

// Better reports whether f is strictly fitter than o.
func (f Fitness) Better(o Fitness) bool {
	return f.Compare(o) > 0
}

func (f Fitness) String() string {
	switch len(f.Values) {
	case 0:
		return "None"
	case 1:
		return fmt.Sprintf("%.3f", f.Values[0])
	}
	parts := make([]string, len(f.Values))
	for i, v := range f.Values {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
