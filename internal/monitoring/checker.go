package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CheckerOptions configures the background checker.
type CheckerOptions struct {
	Interval      time.Duration
	LookbackHours int
	// FailRateThreshold logs a warning when the fail rate exceeds it; 0 disables.
	FailRateThreshold float64
}

// Checker logs queue health periodically in the background.
type Checker struct {
	collector *Collector
	opts      CheckerOptions
}

// NewChecker creates a background checker.
func NewChecker(collector *Collector, opts CheckerOptions) *Checker {
	return &Checker{collector: collector, opts: opts}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := c.opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting queue checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.opts.LookbackHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("queue checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check collects one snapshot and logs what needs an operator. It returns
// the number of warnings logged.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.opts.LookbackHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return 0
	}

	warnings := 0
	for _, s := range snap.Stale {
		warnings++
		log.Warn("monitoring: job stuck in processing",
			zap.String("job_id", s.ID),
			zap.String("company_id", s.CompanyID),
			zap.String("kind", string(s.Kind)),
			zap.String("age", s.Age),
		)
	}
	if c.opts.FailRateThreshold > 0 && snap.FailRate > c.opts.FailRateThreshold {
		warnings++
		log.Warn("monitoring: import failure rate above threshold",
			zap.Float64("fail_rate", snap.FailRate),
			zap.Float64("threshold", c.opts.FailRateThreshold),
			zap.Int("failed", snap.Failed),
			zap.Int("done", snap.Done),
		)
	}

	log.Debug("monitoring: check complete",
		zap.Int("pending", snap.Pending),
		zap.Int("processing", snap.Processing),
		zap.Int("warnings", warnings),
	)
	return warnings
}
