// Package importer runs import jobs: it claims a pending job, downloads and
// parses its file, validates and upserts every row, audits mandatory
// concepts, and records the summary together with the terminal state.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fin-import/internal/audit"
	"github.com/sells-group/fin-import/internal/blob"
	"github.com/sells-group/fin-import/internal/catalog"
	"github.com/sells-group/fin-import/internal/model"
	"github.com/sells-group/fin-import/internal/parser"
	"github.com/sells-group/fin-import/internal/store"
	"github.com/sells-group/fin-import/internal/validate"
)

// Options tunes a run.
type Options struct {
	Parser parser.Options
	// MaxErrors caps the row errors listed in a summary; 0 lists all.
	// Counts are always exact.
	MaxErrors int
	// Now is used for date bounds; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator owns the job lifecycle.
type Orchestrator struct {
	jobs    store.JobStore
	catalog catalog.Reader
	writer  store.RecordWriter
	blobs   blob.Store
	opts    Options
	log     *zap.Logger
}

// New creates an Orchestrator over its collaborators.
func New(jobs store.JobStore, cat catalog.Reader, writer store.RecordWriter, blobs blob.Store, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		jobs:    jobs,
		catalog: cat,
		writer:  writer,
		blobs:   blobs,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "importer")),
	}
}

// RunImport processes one pending job to a terminal state.
//
// A missing or non-pending job fails with a *StructuralError of code
// job_not_runnable (matching ErrJobNotRunnable) and has no side effects.
// Other structural failures finish the job as failed and return both the
// stored summary and the *StructuralError. Row and audit errors are not Go
// errors: the job finishes as failed and the summary lists them.
func (o *Orchestrator) RunImport(ctx context.Context, jobID string) (*model.JobSummary, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrJobNotFound) {
		return nil, notRunnable(err, "job %s does not exist", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "importer: get job %s", jobID)
	}
	if job.State != model.JobStatePending {
		return nil, notRunnable(nil, "job %s is %s, only pending jobs can run", jobID, job.State)
	}

	if err := o.jobs.SetState(ctx, jobID, model.JobStatePending, model.JobStateProcessing); err != nil {
		if errors.Is(err, store.ErrStateConflict) || errors.Is(err, store.ErrJobNotFound) {
			return nil, notRunnable(err, "job %s was claimed by another run", jobID)
		}
		return nil, eris.Wrapf(err, "importer: claim job %s", jobID)
	}

	// Once claimed the run completes even if the caller goes away, so the
	// job never stays in processing because of a dropped request.
	ctx = context.WithoutCancel(ctx)

	log := o.log.With(
		zap.String("job_id", job.ID),
		zap.String("company_id", job.CompanyID),
		zap.String("kind", string(job.Kind)),
	)
	start := time.Now()
	log.Info("import started", zap.String("storage_path", job.StoragePath))

	r := &run{o: o, job: job, log: log}
	summary, serr := r.execute(ctx)
	if serr != nil {
		summary = &model.JobSummary{
			Errors:   []model.RowError{{Row: 0, Messages: []string{fmt.Sprintf("%s: %s", serr.Code, serr.Message)}}},
			Warnings: []string{},
		}
		log.Warn("import failed structurally", zap.String("code", string(serr.Code)), zap.Error(serr.Err))
	}

	state := model.JobStateDone
	if summary.HasErrors() {
		state = model.JobStateFailed
	}
	if err := o.jobs.SetSummary(ctx, job.ID, state, summary); err != nil {
		log.Error("failed to record job summary", zap.Error(err))
		return nil, eris.Wrapf(err, "importer: finish job %s", job.ID)
	}

	log.Info("import finished",
		zap.String("state", string(state)),
		zap.Int("total_rows", summary.TotalRows),
		zap.Int("ok_rows", summary.OKRows),
		zap.Int("error_rows", summary.ErrorRows),
		zap.Duration("elapsed", time.Since(start)),
	)
	if serr != nil {
		return summary, serr
	}
	return summary, nil
}

// run holds the state of one job execution.
type run struct {
	o   *Orchestrator
	job *model.ImportJob
	log *zap.Logger
}

func (r *run) execute(ctx context.Context) (*model.JobSummary, *StructuralError) {
	tbl, serr := r.load(ctx)
	if serr != nil {
		return nil, serr
	}

	schema, ok := validate.SchemaFor(r.job.Kind)
	if !ok {
		return nil, structural(CodeUnsupportedFormat, nil, "job kind %q has no file layout", r.job.Kind)
	}
	if missing := schema.MissingHeaders(tbl.Header); len(missing) > 0 {
		return nil, structural(CodeMissingHeaders, nil, "missing required columns: %s", strings.Join(missing, ", "))
	}

	warnings := []string{}
	if unknown := schema.UnknownHeaders(tbl.Header); len(unknown) > 0 {
		warnings = append(warnings, fmt.Sprintf("ignored unknown columns: %s", strings.Join(unknown, ", ")))
	}

	var cat *catalog.Catalog
	if r.job.Kind.UsesCatalog() {
		var err error
		cat, err = catalog.Load(ctx, r.o.catalog)
		if err != nil {
			return nil, structural(CodeCatalogUnavailable, err, "the concept catalog could not be loaded")
		}
	}

	v := validate.New(r.job.Kind, tbl.Header, cat, validate.ScopeOf(r.job), r.o.opts.Now().Year())

	summary := &model.JobSummary{TotalRows: len(tbl.Rows), Warnings: warnings}
	var (
		rowErrs  []model.RowError
		accepted []model.Record
		firstRow = make(map[string]int, len(tbl.Rows))
	)
	for _, row := range tbl.Rows {
		rec, rowErr := v.Validate(row)
		if rowErr == nil {
			rowErr = r.persist(ctx, row.Index, rec, firstRow)
		}
		if rowErr != nil {
			rowErrs = append(rowErrs, *rowErr)
			continue
		}
		accepted = append(accepted, rec)
	}
	summary.OKRows = len(accepted)
	summary.ErrorRows = len(rowErrs)

	if limit := r.o.opts.MaxErrors; limit > 0 && len(rowErrs) > limit {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("only the first %d of %d row errors are listed", limit, len(rowErrs)))
		rowErrs = rowErrs[:limit]
	}
	summary.Errors = append(rowErrs, r.audit(accepted, cat)...)
	if summary.Errors == nil {
		summary.Errors = []model.RowError{}
	}
	return summary, nil
}

// load downloads and parses the job's file.
func (r *run) load(ctx context.Context) (*parser.Table, *StructuralError) {
	blobData, err := r.o.blobs.Download(ctx, r.job.StoragePath)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, structural(CodeDownloadFailed, err, "no file found at %q", r.job.StoragePath)
	}
	if err != nil {
		return nil, structural(CodeDownloadFailed, err, "the file at %q could not be downloaded", r.job.StoragePath)
	}

	format := r.job.Format
	if format == "" {
		format = model.FormatFromPath(r.job.StoragePath)
	}
	if format == "" {
		return nil, structural(CodeUnsupportedFormat, parser.ErrUnsupportedFormat,
			"unsupported file type %q (expected .csv, .xlsx or .xls)", r.job.StoragePath)
	}

	tbl, err := parser.Parse(blobData, format, r.o.opts.Parser)
	if err != nil {
		return nil, parseFailure(err)
	}
	if len(tbl.Rows) == 0 {
		return nil, structural(CodeEmptyFile, parser.ErrEmptyFile, "the file has a header row but no data rows")
	}
	return tbl, nil
}

// persist rejects in-file duplicates of an accepted natural key, then upserts rec.
func (r *run) persist(ctx context.Context, index int, rec model.Record, firstRow map[string]int) *model.RowError {
	key := rec.NaturalKey()
	if prev, dup := firstRow[key]; dup {
		return &model.RowError{Row: index, Messages: []string{fmt.Sprintf("duplicate of row %d", prev)}}
	}
	if err := r.o.writer.Write(ctx, rec); err != nil {
		r.log.Error("row write failed", zap.Int("row", index), zap.Error(err))
		return &model.RowError{Row: index, Messages: []string{fmt.Sprintf("could not be saved: %v", err)}}
	}
	firstRow[key] = index
	return nil
}

func (r *run) audit(accepted []model.Record, cat *catalog.Catalog) []model.RowError {
	if !r.job.Kind.AuditsMandatory() {
		return nil
	}
	errs := audit.Audit(accepted, cat)
	if len(errs) > 0 {
		r.log.Info("mandatory concepts missing", zap.Int("audit_errors", len(errs)))
	}
	return errs
}
