package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fin-import/internal/model"
	"github.com/sells-group/fin-import/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var jobRowColumns = []string{
	"id", "company_id", "company_code", "kind", "state", "storage_path", "format", "summary", "created_at", "updated_at",
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	summary, err := json.Marshal(model.JobSummary{TotalRows: 2, OKRows: 2})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, company_id, .* FROM import_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobRowColumns).
			AddRow("job-1", "c-1", "ACME", "analytic_pnl", "done", "u/a.csv", "csv", summary, now, now))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.KindAnalyticPnL, job.Kind)
	assert.Equal(t, model.JobStateDone, job.State)
	assert.Equal(t, "ACME", job.CompanyCode)
	require.NotNil(t, job.Summary)
	assert.Equal(t, 2, job.Summary.OKRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM import_jobs WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO import_jobs`).
		WithArgs(pgxmock.AnyArg(), "c-1", "", "debt_pool", "pending", "u/deuda.xlsx", "xlsx", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(), model.ImportJob{
		CompanyID:   "c-1",
		Kind:        "DEBT_POOL",
		StoragePath: "u/deuda.xlsx",
	})
	require.NoError(t, err)
	assert.Equal(t, model.KindDebtPool, job.Kind)
	assert.Equal(t, model.FormatXLSX, job.Format)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetState_Claimed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE import_jobs SET state = \$1, updated_at = \$2 WHERE id = \$3 AND state = \$4`).
		WithArgs("processing", pgxmock.AnyArg(), "job-1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetState(context.Background(), "job-1", model.JobStatePending, model.JobStateProcessing)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetState_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE import_jobs SET state`).
		WithArgs("processing", pgxmock.AnyArg(), "job-1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT state FROM import_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow("done"))

	err := s.SetState(context.Background(), "job-1", model.JobStatePending, model.JobStateProcessing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Contains(t, err.Error(), "is done")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetState_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE import_jobs SET state`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT state FROM import_jobs`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	err := s.SetState(context.Background(), "ghost", model.JobStatePending, model.JobStateProcessing)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSummary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE import_jobs SET state = \$1, summary = \$2, updated_at = \$3 WHERE id = \$4 AND state = \$5`).
		WithArgs("done", pgxmock.AnyArg(), pgxmock.AnyArg(), "job-1", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetSummary(context.Background(), "job-1", model.JobStateDone, &model.JobSummary{TotalRows: 1, OKRows: 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSummary_RejectsNonTerminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.SetSummary(context.Background(), "job-1", model.JobStateProcessing, &model.JobSummary{})
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM import_jobs WHERE 1=1 AND state = \$1 AND company_id = \$2 ORDER BY created_at ASC, id ASC LIMIT \$3`).
		WithArgs("pending", "c-1", 5).
		WillReturnRows(pgxmock.NewRows(jobRowColumns).
			AddRow("job-1", "c-1", "", "annual_pnl", "pending", "u/a.csv", "csv", nil, now, now).
			AddRow("job-2", "c-1", "", "annual_pnl", "pending", "u/b.csv", "csv", nil, now, now))

	jobs, err := s.ListJobs(context.Background(), model.JobFilter{State: model.JobStatePending, CompanyID: "c-1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Nil(t, jobs[0].Summary)
	assert.Equal(t, "job-2", jobs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_WindowNewestFirst(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE 1=1 AND state = \$1 AND created_at >= \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("failed", cutoff, 10000).
		WillReturnRows(pgxmock.NewRows(jobRowColumns))

	jobs, err := s.ListJobs(context.Background(), model.JobFilter{
		State: model.JobStateFailed, CreatedAfter: cutoff, NewestFirst: true, Limit: 10000,
	})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadConcepts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT code, name, grp, mandatory, sign FROM concept_catalog`).
		WillReturnRows(pgxmock.NewRows([]string{"code", "name", "grp", "mandatory", "sign"}).
			AddRow("PYG_INGRESOS", "Ingresos", "", true, "positive").
			AddRow("PYG_OTROS", "Otros", "otros", false, "any"))

	entries, err := s.LoadConcepts(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Mandatory)
	assert.Equal(t, model.SignPositive, entries[0].Sign)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Write_Annual(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "pyg_annual" .* ON CONFLICT \("company_id", "anio", "concepto_codigo"\) DO UPDATE SET "valor_total" = EXCLUDED."valor_total"`).
		WithArgs("c-1", 2024, "PYG_INGRESOS", "1000.5").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Write(context.Background(), model.AnnualPnL{
		CompanyID: "c-1", Year: 2024, ConceptCode: "PYG_INGRESOS", Value: decimal.RequireFromString("1000.50"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Write_DebtNulls(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "debt_pool"`).
		WithArgs("c-1", "base", "Banco X", "leasing", "500", nil, nil, nil, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Write(context.Background(), model.DebtPoolEntry{
		CompanyID: "c-1", Scenario: "base", Lender: "Banco X", Type: "leasing", Principal: decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Write_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "company_profiles"`).
		WillReturnError(fmt.Errorf("connection reset"))

	err := s.Write(context.Background(), model.CompanyProfile{CompanyID: "c-1", Alias: "A", Sector: "S"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert company_profiles")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Write_RetriesDeadlock(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	s.writeRetry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	mock.ExpectExec(`INSERT INTO "pyg_analytic"`).
		WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectExec(`INSERT INTO "pyg_analytic"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Write(context.Background(), model.AnalyticPnL{
		CompanyID: "c-1", Period: "2024-01", ConceptCode: "PYG_OTROS", Value: decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS import_jobs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
