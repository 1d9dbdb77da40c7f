package importer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/fin-import/internal/blob"
	"github.com/sells-group/fin-import/internal/model"
	"github.com/sells-group/fin-import/internal/store"
)

// memJobs is an in-memory JobStore with the same conditional semantics as
// the SQL stores.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.ImportJob
	seq  int
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*model.ImportJob)}
}

func (m *memJobs) CreateJob(_ context.Context, job model.ImportJob) (*model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Format == "" {
		job.Format = model.FormatFromPath(job.StoragePath)
	}
	job.State = model.JobStatePending
	m.seq++
	job.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
	job.UpdatedAt = job.CreatedAt
	cp := job
	m.jobs[job.ID] = &cp
	return &job, nil
}

func (m *memJobs) GetJob(_ context.Context, id string) (*model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) ListJobs(_ context.Context, filter model.JobFilter) ([]model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ImportJob
	for _, j := range m.jobs {
		if filter.State != "" && j.State != filter.State {
			continue
		}
		if filter.CompanyID != "" && j.CompanyID != filter.CompanyID {
			continue
		}
		if !filter.CreatedAfter.IsZero() && j.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool {
		if filter.NewestFirst {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memJobs) SetState(_ context.Context, id string, from, to model.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if j.State != from || !from.CanTransition(to) {
		return store.ErrStateConflict
	}
	j.State = to
	return nil
}

func (m *memJobs) SetSummary(_ context.Context, id string, state model.JobState, summary *model.JobSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if j.State != model.JobStateProcessing || !state.Terminal() {
		return store.ErrStateConflict
	}
	j.State = state
	j.Summary = summary
	return nil
}

func (m *memJobs) state(id string) model.JobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id].State
}

type memCatalog struct {
	mu      sync.Mutex
	entries []model.ConceptEntry
	err     error
	calls   int
}

func (c *memCatalog) LoadConcepts(context.Context) ([]model.ConceptEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.entries, c.err
}

func testConcepts() *memCatalog {
	return &memCatalog{entries: []model.ConceptEntry{
		{Code: "PYG_INGRESOS", Name: "Ingresos", Mandatory: true, Sign: model.SignPositive},
		{Code: "PYG_GASTOS", Name: "Gastos", Mandatory: true, Sign: model.SignNegative},
		{Code: "PYG_OTROS", Name: "Otros"},
	}}
}

// memWriter upserts records by natural key.
type memWriter struct {
	mu      sync.Mutex
	records map[string]model.Record
	writes  int
	failOn  func(model.Record) error
}

func newMemWriter() *memWriter {
	return &memWriter{records: make(map[string]model.Record)}
}

func (w *memWriter) Write(_ context.Context, rec model.Record) error {
	if w.failOn != nil {
		if err := w.failOn(rec); err != nil {
			return err
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	w.records[rec.NaturalKey()] = rec
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (b *memBlobs) Download(_ context.Context, path string) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[path]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

var errWriteFailed = errors.New("connection reset")
