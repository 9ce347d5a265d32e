// Package storage keeps run records and per-generation history.
package storage

import (
	"context"
	"errors"
	"time"

	"esdl/internal/stats"
)

var (
	ErrNotInitialized     = errors.New("store is not initialized")
	ErrUnsupportedBackend = errors.New("unsupported store backend")
)

// RunRecord describes one run of a definition.
type RunRecord struct {
	RunID       string         `json:"run_id"`
	Definition  string         `json:"definition,omitempty"`
	Seed        int64          `json:"seed"`
	Config      map[string]any `json:"config,omitempty"`
	Generations int            `json:"generations"`
	Births      uint64         `json:"births"`
	Evaluations uint64         `json:"evaluations"`
	Reason      string         `json:"reason,omitempty"`
	Err         string         `json:"error,omitempty"`
	Started     time.Time      `json:"started"`
	Finished    time.Time      `json:"finished"`
}

// Store persists run records and the generation summaries of their primary
// group.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]string, error)
	AppendSummary(ctx context.Context, runID string, summary stats.Summary) error
	GetHistory(ctx context.Context, runID string) ([]stats.Summary, bool, error)
}
