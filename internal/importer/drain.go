package importer

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fin-import/internal/model"
)

// DefaultDrainConcurrency bounds concurrent runs when Drain is given 0.
const DefaultDrainConcurrency = 4

// DrainResult counts the outcome of a Drain pass.
type DrainResult struct {
	Listed  int `json:"listed"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// Drain runs up to limit pending jobs, oldest first, with at most
// concurrency jobs in flight. A job claimed by another worker in the
// meantime is skipped. Failures of individual jobs never stop the pass;
// cancelling ctx stops launching new jobs while running ones finish.
func (o *Orchestrator) Drain(ctx context.Context, limit, concurrency int) (DrainResult, error) {
	var res DrainResult

	jobs, err := o.jobs.ListJobs(ctx, model.JobFilter{State: model.JobStatePending, Limit: limit})
	if err != nil {
		return res, eris.Wrap(err, "importer: list pending jobs")
	}
	res.Listed = len(jobs)
	if len(jobs) == 0 {
		return res, nil
	}
	if concurrency <= 0 {
		concurrency = DefaultDrainConcurrency
	}

	log := o.log.With(zap.Int("jobs", len(jobs)), zap.Int("concurrency", concurrency))
	log.Info("draining pending jobs")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			summary, err := o.RunImport(ctx, job.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrJobNotRunnable):
				res.Skipped++
			case summary != nil && summary.HasErrors():
				res.Failed++
			case err != nil:
				res.Errored++
				log.Error("job run failed", zap.String("job_id", job.ID), zap.Error(err))
			default:
				res.Done++
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("drain finished",
		zap.Int("done", res.Done),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("errored", res.Errored),
	)
	return res, ctx.Err()
}
