// Package monitor defines the callbacks a running system reports to and the
// stock monitors: a consumer that logs, records and applies limits, a
// prometheus exporter and a fan-out.
package monitor

import (
	"context"

	"esdl/internal/model"
)

// State is the read-only view of a system handed to monitors.
type State interface {
	RunID() string
	Seed() int64
	// Generation is zero during initialisation and counts completed Step
	// calls afterwards.
	Generation() int
	Births() uint64
	Evaluations() uint64
}

// Monitor receives lifecycle callbacks. Hooks run on the system's goroutine;
// OnNotify may be called from operator code at any point in a step.
type Monitor interface {
	OnRunStart(ctx context.Context, s State)
	OnPreReset(ctx context.Context, s State)
	OnPostReset(ctx context.Context, s State)
	OnPreBreed(ctx context.Context, s State)
	OnPostBreed(ctx context.Context, s State)
	OnYield(ctx context.Context, s State, name string, group model.Population)
	OnException(ctx context.Context, s State, err error)
	OnRunEnd(ctx context.Context, s State)
	OnNotify(sender, name string, value any)
	ShouldTerminate(s State) bool
}

// Base implements every hook as a no-op. Embed it to override a subset.
type Base struct{}

func (Base) OnRunStart(context.Context, State)                        {}
func (Base) OnPreReset(context.Context, State)                        {}
func (Base) OnPostReset(context.Context, State)                       {}
func (Base) OnPreBreed(context.Context, State)                        {}
func (Base) OnPostBreed(context.Context, State)                       {}
func (Base) OnYield(context.Context, State, string, model.Population) {}
func (Base) OnException(context.Context, State, error)                {}
func (Base) OnRunEnd(context.Context, State)                          {}
func (Base) OnNotify(string, string, any)                             {}
func (Base) ShouldTerminate(State) bool                               { return false }

// Multi forwards every hook to each monitor in order.
type Multi []Monitor

func (m Multi) OnRunStart(ctx context.Context, s State) {
	for _, mon := range m {
		mon.OnRunStart(ctx, s)
	}
}

func (m Multi) OnPreReset(ctx context.Context, s State) {
	for _, mon := range m {
		mon.OnPreReset(ctx, s)
	}
}

func (m Multi) OnPostReset(ctx context.Context, s State) {
	for _, mon := range m {
		mon.OnPostReset(ctx, s)
	}
}

func (m Multi) OnPreBreed(ctx context.Context, s State) {
	for _, mon := range m {
		mon.OnPreBreed(ctx, s)
	}
}

func (m Multi) OnPostBreed(ctx context.Context, s State) {
	for _, mon := range m {
		mon.OnPostBreed(ctx, s)
	}
}

func (m Multi) OnYield(ctx context.Context, s State, name string, group model.Population) {
	for _, mon := range m {
		mon.OnYield(ctx, s, name, group)
	}
}

func (m Multi) OnException(ctx context.Context, s State, err error) {
	for _, mon := range m {
		mon.OnException(ctx, s, err)
	}
}

func (m Multi) OnRunEnd(ctx context.Context, s State) {
	for _, mon := range m {
		mon.OnRunEnd(ctx, s)
	}
}

func (m Multi) OnNotify(sender, name string, value any) {
	for _, mon := range m {
		mon.OnNotify(sender, name, value)
	}
}

// ShouldTerminate asks every monitor so each can record its own reason, and
// stops when any of them says so.
func (m Multi) ShouldTerminate(s State) bool {
	stop := false
	for _, mon := range m {
		if mon.ShouldTerminate(s) {
			stop = true
		}
	}
	return stop
}
