package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fin-import/internal/db"
	"github.com/sells-group/fin-import/internal/model"
	"github.com/sells-group/fin-import/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	// writeRetry governs record upserts; only transient SQLSTATEs are retried.
	writeRetry resilience.RetryConfig
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const jobColumns = `id, company_id, company_code, kind, state, storage_path, format, summary, created_at, updated_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, writeRetry: resilience.DefaultRetryConfig()}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS import_jobs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id   TEXT NOT NULL,
	company_code TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	state        TEXT NOT NULL DEFAULT 'pending',
	storage_path TEXT NOT NULL,
	format       TEXT NOT NULL DEFAULT '',
	summary      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT import_jobs_terminal_summary CHECK (state NOT IN ('done', 'failed') OR summary IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_state ON import_jobs(state, created_at);
CREATE INDEX IF NOT EXISTS idx_import_jobs_company ON import_jobs(company_id);

CREATE TABLE IF NOT EXISTS concept_catalog (
	code      TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	grp       TEXT NOT NULL DEFAULT '',
	mandatory BOOLEAN NOT NULL DEFAULT false,
	sign      TEXT NOT NULL DEFAULT 'any'
);

CREATE TABLE IF NOT EXISTS pyg_annual (
	company_id      TEXT NOT NULL,
	anio            INTEGER NOT NULL,
	concepto_codigo TEXT NOT NULL,
	valor_total     NUMERIC NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, anio, concepto_codigo)
);

CREATE TABLE IF NOT EXISTS pyg_analytic (
	company_id      TEXT NOT NULL,
	periodo         TEXT NOT NULL,
	concepto_codigo TEXT NOT NULL,
	segmento        TEXT NOT NULL DEFAULT '',
	centro_coste    TEXT NOT NULL DEFAULT '',
	valor           NUMERIC NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, periodo, concepto_codigo, segmento, centro_coste)
);

CREATE TABLE IF NOT EXISTS company_profiles (
	company_id             TEXT PRIMARY KEY,
	company_alias          TEXT NOT NULL,
	sector                 TEXT NOT NULL,
	industria              TEXT NOT NULL DEFAULT '',
	anio_fundacion         INTEGER,
	empleados              INTEGER,
	ingresos_anuales       NUMERIC,
	sede                   TEXT NOT NULL DEFAULT '',
	sitio_web              TEXT NOT NULL DEFAULT '',
	descripcion            TEXT NOT NULL DEFAULT '',
	estructura_accionarial JSONB,
	organigrama            JSONB,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS debt_pool (
	company_id   TEXT NOT NULL,
	escenario    TEXT NOT NULL DEFAULT 'base',
	entidad      TEXT NOT NULL,
	tipo         TEXT NOT NULL,
	capital      NUMERIC NOT NULL,
	tir          NUMERIC,
	plazo_meses  INTEGER,
	cuota        NUMERIC,
	proximo_venc DATE,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, escenario, entidad, tipo)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job model.ImportJob) (*model.ImportJob, error) {
	job, err := newJob(job)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO import_jobs (id, company_id, company_code, kind, state, storage_path, format, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.CompanyID, job.CompanyCode, string(job.Kind), string(job.State),
		job.StoragePath, string(job.Format), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ImportJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrJobNotFound, "postgres: get job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter model.JobFilter) ([]model.ImportJob, error) {
	query, args := listJobsQuery(filter, func(i int) string { return "$" + strconv.Itoa(i) })

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) SetState(ctx context.Context, id string, from, to model.JobState) error {
	if !from.CanTransition(to) {
		return eris.Wrapf(ErrStateConflict, "postgres: transition %s -> %s", from, to)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set state %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id, from)
	}
	return nil
}

func (s *PostgresStore) SetSummary(ctx context.Context, id string, state model.JobState, summary *model.JobSummary) error {
	if !model.JobStateProcessing.CanTransition(state) {
		return eris.Wrapf(ErrStateConflict, "postgres: %s is not a terminal state", state)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET state = $1, summary = $2, updated_at = $3 WHERE id = $4 AND state = $5`,
		string(state), summaryJSON, time.Now().UTC(), id, string(model.JobStateProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set summary %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id, model.JobStateProcessing)
	}
	return nil
}

// missOrConflict explains a conditional update that matched no row.
func (s *PostgresStore) missOrConflict(ctx context.Context, id string, expected model.JobState) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT state FROM import_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrJobNotFound, "postgres: job %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read state %s", id)
	}
	return eris.Wrapf(ErrStateConflict, "postgres: job %s is %s, expected %s", id, current, expected)
}

// --- Catalog ---

func (s *PostgresStore) LoadConcepts(ctx context.Context) ([]model.ConceptEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, name, grp, mandatory, sign FROM concept_catalog ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load concepts")
	}
	defer rows.Close()

	var entries []model.ConceptEntry
	for rows.Next() {
		var e model.ConceptEntry
		var sign string
		if err := rows.Scan(&e.Code, &e.Name, &e.Group, &e.Mandatory, &sign); err != nil {
			return nil, eris.Wrap(err, "postgres: scan concept")
		}
		e.Sign = model.Sign(sign)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: load concepts iterate")
}

func (s *PostgresStore) UpsertConcepts(ctx context.Context, entries []model.ConceptEntry) (int64, error) {
	n, err := db.BulkUpsert(ctx, s.pool, conceptUpsert, conceptArgs(entries))
	return n, eris.Wrap(err, "postgres: upsert concepts")
}

// --- Records ---

func (s *PostgresStore) Write(ctx context.Context, rec model.Record) error {
	cfg, args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	sql, err := db.UpsertSQL(cfg, db.Postgres)
	if err != nil {
		return eris.Wrapf(err, "postgres: build upsert for %s", cfg.Table)
	}
	retry := s.writeRetry
	retry.OnRetry = resilience.LogRetries("record_upsert", zap.String("table", cfg.Table))
	err = resilience.Do(ctx, retry, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, sql, args...)
		return err
	})
	return eris.Wrapf(err, "postgres: upsert %s", cfg.Table)
}

func scanJob(row scannable) (*model.ImportJob, error) {
	var (
		j                   model.ImportJob
		kind, state, format string
		summaryJSON         []byte
	)
	if err := row.Scan(&j.ID, &j.CompanyID, &j.CompanyCode, &kind, &state, &j.StoragePath, &format,
		&summaryJSON, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Kind = model.JobKind(kind)
	j.State = model.JobState(state)
	j.Format = model.Format(format)
	if len(summaryJSON) > 0 {
		j.Summary = &model.JobSummary{}
		if err := json.Unmarshal(summaryJSON, j.Summary); err != nil {
			return nil, eris.Wrapf(err, "unmarshal summary of job %s", j.ID)
		}
	}
	return &j, nil
}
