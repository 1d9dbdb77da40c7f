package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fin-import/internal/model"
)

const defaultListLimit = 100

type scannable interface {
	Scan(dest ...any) error
}

// newJob validates a job about to be created and fills its defaults. New
// jobs always start pending without a summary.
func newJob(job model.ImportJob) (model.ImportJob, error) {
	kind, err := model.ParseJobKind(string(job.Kind))
	if err != nil {
		return job, eris.Wrap(err, "store: create job")
	}
	job.Kind = kind
	job.CompanyID = strings.TrimSpace(job.CompanyID)
	job.StoragePath = strings.TrimSpace(job.StoragePath)
	if job.CompanyID == "" {
		return job, eris.New("store: create job: company id is required")
	}
	if job.StoragePath == "" {
		return job, eris.New("store: create job: storage path is required")
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Format == "" {
		job.Format = model.FormatFromPath(job.StoragePath)
	}
	now := time.Now().UTC()
	job.State = model.JobStatePending
	job.Summary = nil
	job.CreatedAt = now
	job.UpdatedAt = now
	return job, nil
}

// listJobsQuery builds the job listing query; ph renders the i-th placeholder.
func listJobsQuery(filter model.JobFilter, ph func(i int) string) (string, []any) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE 1=1`
	var args []any

	if filter.State != "" {
		args = append(args, string(filter.State))
		query += ` AND state = ` + ph(len(args))
	}
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		query += ` AND company_id = ` + ph(len(args))
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter.UTC())
		query += ` AND created_at >= ` + ph(len(args))
	}
	// Oldest first so a drain processes jobs in upload order.
	if filter.NewestFirst {
		query += ` ORDER BY created_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at ASC, id ASC`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += ` LIMIT ` + ph(len(args))
	return query, args
}
