// Package monitoring reports the health of the import job queue.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fin-import/internal/model"
)

// maxScan bounds the jobs read per state when collecting a snapshot.
const maxScan = 10000

// JobLister is the part of the job store the collector reads.
type JobLister interface {
	ListJobs(ctx context.Context, filter model.JobFilter) ([]model.ImportJob, error)
}

// StaleJob is a job that has been processing for longer than the threshold.
type StaleJob struct {
	ID        string        `json:"id"`
	CompanyID string        `json:"company_id"`
	Kind      model.JobKind `json:"kind"`
	Age       string        `json:"age"`
}

// MetricsSnapshot holds a point-in-time view of the job queue.
type MetricsSnapshot struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`

	// Finished jobs created within the lookback window.
	Done     int     `json:"done"`
	Failed   int     `json:"failed"`
	FailRate float64 `json:"fail_rate"`

	// Rows across finished jobs in the window.
	TotalRows int `json:"total_rows"`
	ErrorRows int `json:"error_rows"`

	Stale []StaleJob `json:"stale"`

	// Truncated is set when a state held more jobs than could be scanned.
	Truncated bool `json:"truncated,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers queue metrics from the job store.
type Collector struct {
	jobs       JobLister
	staleAfter time.Duration
	scanLimit  int
	now        func() time.Time
}

// NewCollector creates a collector. Jobs processing for longer than
// staleAfter are reported as stale; 0 disables the check.
func NewCollector(jobs JobLister, staleAfter time.Duration) *Collector {
	return &Collector{jobs: jobs, staleAfter: staleAfter, scanLimit: maxScan, now: time.Now}
}

// Collect gathers a snapshot. Finished jobs are read newest first and only
// within the lookback window, so a long history never hides recent failures.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		Stale:         []StaleJob{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	for _, state := range []model.JobState{model.JobStatePending, model.JobStateProcessing, model.JobStateDone, model.JobStateFailed} {
		filter := model.JobFilter{State: state, Limit: c.scanLimit}
		if state.Terminal() {
			filter.NewestFirst = true
			if lookbackHours > 0 {
				filter.CreatedAfter = cutoff
			}
		}
		jobs, err := c.jobs.ListJobs(ctx, filter)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list %s jobs", state)
		}
		if len(jobs) >= c.scanLimit {
			snap.Truncated = true
		}

		for _, j := range jobs {
			switch state {
			case model.JobStatePending:
				snap.Pending++
			case model.JobStateProcessing:
				snap.Processing++
				if age := now.Sub(j.UpdatedAt); c.staleAfter > 0 && age > c.staleAfter {
					snap.Stale = append(snap.Stale, StaleJob{
						ID:        j.ID,
						CompanyID: j.CompanyID,
						Kind:      j.Kind,
						Age:       age.Truncate(time.Second).String(),
					})
				}
			default:
				if state == model.JobStateDone {
					snap.Done++
				} else {
					snap.Failed++
				}
				if j.Summary != nil {
					snap.TotalRows += j.Summary.TotalRows
					snap.ErrorRows += j.Summary.ErrorRows
				}
			}
		}
	}

	if finished := snap.Done + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
