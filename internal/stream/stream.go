// Package stream provides the pull-based iterator that carries individuals
// between operators.
package stream

import (
	"errors"
	"fmt"

	"esdl/internal/model"
)

var (
	ErrExhausted = errors.New("stream exhausted before destination was filled")
	ErrUnbounded = errors.New("unbounded stream cannot fill an unsized destination")
)

// Stream yields individuals on demand. Next returns false at the end of the
// stream or after a failure, which Err then reports.
type Stream interface {
	Next() (*model.Individual, bool)
	Err() error
}

// Rester is implemented by streams that can hand over everything they have
// left in one call.
type Rester interface {
	Rest() (model.Population, error)
}

// Bounded is implemented by streams that know whether they end.
type Bounded interface {
	Unbounded() bool
}

// IsUnbounded reports whether s declares itself endless.
func IsUnbounded(s Stream) bool {
	b, ok := s.(Bounded)
	return ok && b.Unbounded()
}

// Func adapts a generator function. The function returns false to end the
// stream and may return an error to fail it.
type Func struct {
	next      func() (*model.Individual, bool, error)
	rest      func() (model.Population, error)
	unbounded bool
	err       error
	done      bool
}

// New builds a finite stream from next.
func New(next func() (*model.Individual, bool, error)) *Func {
	return &Func{next: next}
}

// Endless builds a stream from next that never ends on its own.
func Endless(next func() (*model.Individual, error)) *Func {
	return &Func{
		next: func() (*model.Individual, bool, error) {
			ind, err := next()
			return ind, err == nil, err
		},
		unbounded: true,
	}
}

// WithRest attaches a Rest implementation to a finite stream.
func (f *Func) WithRest(rest func() (model.Population, error)) *Func {
	f.rest = rest
	return f
}

func (f *Func) Next() (*model.Individual, bool) {
	if f.done {
		return nil, false
	}
	ind, ok, err := f.next()
	if err != nil {
		f.err = err
		f.done = true
		return nil, false
	}
	if !ok {
		f.done = true
		return nil, false
	}
	return ind, true
}

func (f *Func) Err() error { return f.err }

func (f *Func) Unbounded() bool { return f.unbounded }

func (f *Func) Rest() (model.Population, error) {
	if f.unbounded {
		return nil, ErrUnbounded
	}
	if f.done {
		return nil, f.err
	}
	if f.rest != nil {
		f.done = true
		out, err := f.rest()
		f.err = err
		return out, err
	}
	var out model.Population
	for {
		ind, ok := f.Next()
		if !ok {
			return out, f.err
		}
		out = append(out, ind)
	}
}

// Of streams a materialised population in order.
func Of(pop model.Population) *Func {
	i := 0
	f := New(func() (*model.Individual, bool, error) {
		if i >= len(pop) {
			return nil, false, nil
		}
		i++
		return pop[i-1], true, nil
	})
	return f.WithRest(func() (model.Population, error) {
		out := append(model.Population(nil), pop[i:]...)
		i = len(pop)
		return out, nil
	})
}

// Empty returns a stream with nothing in it.
func Empty() *Func { return Of(nil) }

// Map applies fn to every element of src. The result is unbounded when src is.
func Map(src Stream, fn func(*model.Individual) (*model.Individual, error)) *Func {
	return Derived(src, func() (*model.Individual, bool, error) {
		ind, ok := src.Next()
		if !ok {
			return nil, false, src.Err()
		}
		out, err := fn(ind)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	})
}

// Derived builds a stream pulling from src through next. It is unbounded
// whenever src is.
func Derived(src Stream, next func() (*model.Individual, bool, error)) *Func {
	f := New(next)
	f.unbounded = IsUnbounded(src)
	return f
}

// Filter yields the elements of src for which keep returns true.
func Filter(src Stream, keep func(*model.Individual) bool) *Func {
	return Derived(src, func() (*model.Individual, bool, error) {
		for {
			ind, ok := src.Next()
			if !ok {
				return nil, false, src.Err()
			}
			if keep(ind) {
				return ind, true, nil
			}
		}
	})
}

// Peek pulls the first element of src and returns a stream that still
// yields it.
func Peek(src Stream) (*model.Individual, Stream, error) {
	first, ok := src.Next()
	if !ok {
		return nil, Empty(), src.Err()
	}
	sent := false
	return first, Derived(src, func() (*model.Individual, bool, error) {
		if !sent {
			sent = true
			return first, true, nil
		}
		ind, ok := src.Next()
		if !ok {
			return nil, false, src.Err()
		}
		return ind, true, nil
	}), nil
}

// Concat yields every element of each source in turn.
func Concat(srcs ...Stream) Stream {
	if len(srcs) == 1 {
		return srcs[0]
	}
	unbounded := false
	for _, s := range srcs {
		unbounded = unbounded || IsUnbounded(s)
	}
	k := 0
	f := New(func() (*model.Individual, bool, error) {
		for k < len(srcs) {
			if ind, ok := srcs[k].Next(); ok {
				return ind, true, nil
			}
			if err := srcs[k].Err(); err != nil {
				return nil, false, err
			}
			k++
		}
		return nil, false, nil
	})
	f.unbounded = unbounded
	return f
}

// Take pulls exactly n individuals from src. Fewer is an ErrExhausted.
func Take(src Stream, n int) (model.Population, error) {
	out := make(model.Population, 0, max(n, 0))
	for len(out) < n {
		ind, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return out, err
			}
			return out, fmt.Errorf("%w: wanted %d, got %d", ErrExhausted, n, len(out))
		}
		out = append(out, ind)
	}
	return out, nil
}

// Collect drains src. Unbounded streams are rejected.
func Collect(src Stream) (model.Population, error) {
	if IsUnbounded(src) {
		return nil, ErrUnbounded
	}
	if r, ok := src.(Rester); ok {
		return r.Rest()
	}
	var out model.Population
	for {
		ind, ok := src.Next()
		if !ok {
			return out, src.Err()
		}
		out = append(out, ind)
	}
}

// Born gives every individual a birthday.
func Born(pop model.Population, clock *model.Clock) model.Population {
	for _, ind := range pop {
		ind.Born(clock)
	}
	return pop
}
