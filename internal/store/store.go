// Package store persists import jobs, the concept catalog, and the validated
// financial records written by the import pipeline.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fin-import/internal/model"
)

var (
	// ErrJobNotFound is returned when no job has the requested id.
	ErrJobNotFound = eris.New("job not found")
	// ErrStateConflict is returned when a conditional state update finds the
	// job in a state other than the expected one.
	ErrStateConflict = eris.New("job state conflict")
)

// JobStore reads and transitions import jobs. SetState and SetSummary are
// conditional single-statement updates, so a reader never observes a
// terminal state without its summary.
type JobStore interface {
	CreateJob(ctx context.Context, job model.ImportJob) (*model.ImportJob, error)
	GetJob(ctx context.Context, id string) (*model.ImportJob, error)
	ListJobs(ctx context.Context, filter model.JobFilter) ([]model.ImportJob, error)
	// SetState moves the job from `from` to `to`. It fails with
	// ErrStateConflict when the job is not currently in `from`.
	SetState(ctx context.Context, id string, from, to model.JobState) error
	// SetSummary writes the terminal state and summary of a processing job.
	SetSummary(ctx context.Context, id string, state model.JobState, summary *model.JobSummary) error
}

// CatalogStore reads and seeds the concept catalog.
type CatalogStore interface {
	LoadConcepts(ctx context.Context) ([]model.ConceptEntry, error)
	UpsertConcepts(ctx context.Context, entries []model.ConceptEntry) (int64, error)
}

// RecordWriter upserts one validated record on its natural key.
type RecordWriter interface {
	Write(ctx context.Context, rec model.Record) error
}

// Store combines every persistence concern of the import pipeline.
type Store interface {
	JobStore
	CatalogStore
	RecordWriter

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
