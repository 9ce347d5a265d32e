package monitor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"k8s.io/klog/v2"

	"esdl/internal/config"
	"esdl/internal/model"
	"esdl/internal/stats"
	"esdl/internal/storage"
)

// Termination reasons reported by Consumer.Reason.
const (
	ReasonGenerations = "generation limit reached"
	ReasonFitness     = "fitness limit reached"
	ReasonEvaluations = "evaluation limit reached"
	ReasonStable      = "best fitness stable"
	ReasonException   = "exception"
)

// Limits stop a run. Zero disables a limit; Fitness is disabled when NaN.
type Limits struct {
	Generations int
	Fitness     float64
	Evaluations uint64
	Stable      int
}

type ConsumerConfig struct {
	// Primary is the yielded group that is summarised. Empty selects the
	// first group yielded.
	Primary string
	Limits  Limits
	Store   storage.Store
	// Report logs every Report-th summary at V(1); zero logs all of them.
	Report int
}

// ConsumerConfigFrom reads the monitor section of a configuration.
func ConsumerConfigFrom(cfg *config.Tree) (ConsumerConfig, error) {
	var out ConsumerConfig
	var err error
	if out.Primary, err = cfg.String("primary", ""); err != nil {
		return out, err
	}
	if out.Limits.Generations, err = cfg.Int("limits.generations", 0); err != nil {
		return out, err
	}
	if out.Limits.Fitness, err = cfg.Float("limits.fitness", math.NaN()); err != nil {
		return out, err
	}
	evals, err := cfg.Int("limits.evaluations", 0)
	if err != nil {
		return out, err
	}
	out.Limits.Evaluations = uint64(max(evals, 0))
	if out.Limits.Stable, err = cfg.Int("limits.stable", 0); err != nil {
		return out, err
	}
	if out.Report, err = cfg.Int("report", 0); err != nil {
		return out, err
	}
	return out, nil
}

// Consumer summarises the primary group on every yield, appends the summary
// to the history store and applies the limits between steps.
type Consumer struct {
	Base

	cfg     ConsumerConfig
	logger  klog.Logger
	tracker stats.Tracker

	mu       sync.Mutex
	last     *stats.Summary
	reason   string
	err      error
	notified map[string]float64
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Limits.Generations < 0 || cfg.Limits.Stable < 0 {
		return nil, fmt.Errorf("monitor limits must be >= 0")
	}
	if cfg.Report < 0 {
		return nil, fmt.Errorf("monitor report interval must be >= 0")
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
		if err := cfg.Store.Init(context.Background()); err != nil {
			return nil, err
		}
	}
	return &Consumer{cfg: cfg, logger: klog.Background(), notified: map[string]float64{}}, nil
}

func (c *Consumer) OnRunStart(ctx context.Context, s State) {
	c.logger = klog.FromContext(ctx).WithValues("run", s.RunID())
	c.logger.V(1).Info("Run started", "seed", s.Seed())
}

func (c *Consumer) OnYield(ctx context.Context, s State, name string, group model.Population) {
	c.mu.Lock()
	if c.cfg.Primary == "" {
		c.cfg.Primary = name
	}
	primary := c.cfg.Primary == name
	c.mu.Unlock()
	if !primary {
		return
	}

	summary := stats.Summarize(group)
	summary.Generation = s.Generation()
	summary.Births = s.Births()
	summary.Evaluations = s.Evaluations()
	c.tracker.Observe(&summary)
	if err := c.cfg.Store.AppendSummary(ctx, s.RunID(), summary); err != nil {
		c.logger.Error(err, "Failed to record generation", "generation", summary.Generation)
	}

	c.mu.Lock()
	c.last = &summary
	c.mu.Unlock()

	if c.cfg.Report == 0 || summary.Generation%c.cfg.Report == 0 {
		c.logger.V(1).Info("Generation",
			"generation", summary.Generation,
			"group", name,
			"size", summary.Size,
			"best", summary.Best.String(),
			"mean", summary.Mean,
			"stddev", summary.StdDev,
			"unique", summary.Unique,
			"births", summary.Births,
			"evaluations", summary.Evaluations,
		)
	}
}

func (c *Consumer) OnException(_ context.Context, s State, err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.logger.Error(err, "Step failed", "generation", s.Generation())
}

func (c *Consumer) OnRunEnd(_ context.Context, s State) {
	c.logger.Info("Run finished",
		"generations", s.Generation(),
		"births", s.Births(),
		"evaluations", s.Evaluations(),
		"best", c.tracker.Best().String(),
		"reason", c.Reason(),
	)
}

// OnNotify totals numeric notification values per "sender.name"; other
// values count once.
func (c *Consumer) OnNotify(sender, name string, value any) {
	v := 1.0
	switch x := value.(type) {
	case int:
		v = float64(x)
	case float64:
		v = x
	}
	c.mu.Lock()
	c.notified[sender+"."+name] += v
	c.mu.Unlock()
}

// ShouldTerminate applies the limits to the most recent summary and the
// system counters.
func (c *Consumer) ShouldTerminate(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	lim := c.cfg.Limits
	switch {
	case c.err != nil:
		c.reason = ReasonException
	case lim.Generations > 0 && s.Generation() >= lim.Generations:
		c.reason = ReasonGenerations
	case lim.Evaluations > 0 && s.Evaluations() >= lim.Evaluations:
		c.reason = ReasonEvaluations
	case c.last != nil && reachedFitness(c.last.Best, lim.Fitness):
		c.reason = ReasonFitness
	case c.last != nil && lim.Stable > 0 && c.last.StaleFor >= lim.Stable:
		c.reason = ReasonStable
	default:
		return false
	}
	return true
}

// reachedFitness compares best against limit under best's sense, so a
// minimising run stops once its best value is at or below the limit.
func reachedFitness(best model.Fitness, limit float64) bool {
	if math.IsNaN(limit) || !best.Valid() {
		return false
	}
	return best.Compare(model.Fitness{Values: []float64{limit}, Sense: best.Sense}) >= 0
}

// Reason explains why ShouldTerminate last returned true.
func (c *Consumer) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Last returns the most recent summary of the primary group.
func (c *Consumer) Last() (stats.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return stats.Summary{}, false
	}
	return *c.last, true
}

// Best is the fittest value of the primary group seen during the run.
func (c *Consumer) Best() model.Fitness { return c.tracker.Best() }

func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Notifications returns the notification totals as sorted "key=value" lines.
func (c *Consumer) Notifications() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.notified))
	for k, v := range c.notified {
		out = append(out, fmt.Sprintf("%s=%g", k, v))
	}
	sort.Strings(out)
	return out
}

// Store is the history store summaries are appended to.
func (c *Consumer) Store() storage.Store { return c.cfg.Store }
