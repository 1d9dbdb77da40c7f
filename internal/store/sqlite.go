package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fin-import/internal/db"
	"github.com/sells-group/fin-import/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS import_jobs (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL,
	company_code TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	state        TEXT NOT NULL DEFAULT 'pending',
	storage_path TEXT NOT NULL,
	format       TEXT NOT NULL DEFAULT '',
	summary      TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	CHECK (state NOT IN ('done', 'failed') OR summary IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_state ON import_jobs(state, created_at);
CREATE INDEX IF NOT EXISTS idx_import_jobs_company ON import_jobs(company_id);

CREATE TABLE IF NOT EXISTS concept_catalog (
	code      TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	grp       TEXT NOT NULL DEFAULT '',
	mandatory BOOLEAN NOT NULL DEFAULT 0,
	sign      TEXT NOT NULL DEFAULT 'any'
);

CREATE TABLE IF NOT EXISTS pyg_annual (
	company_id      TEXT NOT NULL,
	anio            INTEGER NOT NULL,
	concepto_codigo TEXT NOT NULL,
	valor_total     TEXT NOT NULL,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (company_id, anio, concepto_codigo)
);

CREATE TABLE IF NOT EXISTS pyg_analytic (
	company_id      TEXT NOT NULL,
	periodo         TEXT NOT NULL,
	concepto_codigo TEXT NOT NULL,
	segmento        TEXT NOT NULL DEFAULT '',
	centro_coste    TEXT NOT NULL DEFAULT '',
	valor           TEXT NOT NULL,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (company_id, periodo, concepto_codigo, segmento, centro_coste)
);

CREATE TABLE IF NOT EXISTS company_profiles (
	company_id             TEXT PRIMARY KEY,
	company_alias          TEXT NOT NULL,
	sector                 TEXT NOT NULL,
	industria              TEXT NOT NULL DEFAULT '',
	anio_fundacion         INTEGER,
	empleados              INTEGER,
	ingresos_anuales       TEXT,
	sede                   TEXT NOT NULL DEFAULT '',
	sitio_web              TEXT NOT NULL DEFAULT '',
	descripcion            TEXT NOT NULL DEFAULT '',
	estructura_accionarial TEXT,
	organigrama            TEXT,
	updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS debt_pool (
	company_id   TEXT NOT NULL,
	escenario    TEXT NOT NULL DEFAULT 'base',
	entidad      TEXT NOT NULL,
	tipo         TEXT NOT NULL,
	capital      TEXT NOT NULL,
	tir          TEXT,
	plazo_meses  INTEGER,
	cuota        TEXT,
	proximo_venc TEXT,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (company_id, escenario, entidad, tipo)
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job model.ImportJob) (*model.ImportJob, error) {
	job, err := newJob(job)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO import_jobs (id, company_id, company_code, kind, state, storage_path, format, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.CompanyID, job.CompanyCode, string(job.Kind), string(job.State),
		job.StoragePath, string(job.Format), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = ?`, id)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrJobNotFound, "sqlite: get job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter model.JobFilter) ([]model.ImportJob, error) {
	query, args := listJobsQuery(filter, func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.ImportJob
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) SetState(ctx context.Context, id string, from, to model.JobState) error {
	if !from.CanTransition(to) {
		return eris.Wrapf(ErrStateConflict, "sqlite: transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set state %s", id)
	}
	return s.checkTransition(ctx, res, id, from)
}

func (s *SQLiteStore) SetSummary(ctx context.Context, id string, state model.JobState, summary *model.JobSummary) error {
	if !model.JobStateProcessing.CanTransition(state) {
		return eris.Wrapf(ErrStateConflict, "sqlite: %s is not a terminal state", state)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs SET state = ?, summary = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(state), string(summaryJSON), time.Now().UTC(), id, string(model.JobStateProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set summary %s", id)
	}
	return s.checkTransition(ctx, res, id, model.JobStateProcessing)
}

// checkTransition turns a conditional update that matched no row into
// ErrJobNotFound or ErrStateConflict.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id string, expected model.JobState) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM import_jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrJobNotFound, "sqlite: job %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read state %s", id)
	}
	return eris.Wrapf(ErrStateConflict, "sqlite: job %s is %s, expected %s", id, current, expected)
}

// --- Catalog ---

func (s *SQLiteStore) LoadConcepts(ctx context.Context) ([]model.ConceptEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name, grp, mandatory, sign FROM concept_catalog ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load concepts")
	}
	defer rows.Close() //nolint:errcheck

	var entries []model.ConceptEntry
	for rows.Next() {
		var e model.ConceptEntry
		var sign string
		if err := rows.Scan(&e.Code, &e.Name, &e.Group, &e.Mandatory, &sign); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan concept")
		}
		e.Sign = model.Sign(sign)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: load concepts iterate")
}

// UpsertConcepts writes entries in one transaction.
func (s *SQLiteStore) UpsertConcepts(ctx context.Context, entries []model.ConceptEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	stmt, err := db.UpsertSQL(conceptUpsert, db.SQLite)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: build concept upsert")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, args := range conceptArgs(entries) {
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert concept %v", args[0])
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit concepts")
	}
	return total, nil
}

// --- Records ---

func (s *SQLiteStore) Write(ctx context.Context, rec model.Record) error {
	cfg, args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	stmt, err := db.UpsertSQL(cfg, db.SQLite)
	if err != nil {
		return eris.Wrapf(err, "sqlite: build upsert for %s", cfg.Table)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert %s", cfg.Table)
	}
	return nil
}

func scanSQLiteJob(row scannable) (*model.ImportJob, error) {
	var (
		j                   model.ImportJob
		kind, state, format string
		summaryJSON         sql.NullString
	)
	if err := row.Scan(&j.ID, &j.CompanyID, &j.CompanyCode, &kind, &state, &j.StoragePath, &format,
		&summaryJSON, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Kind = model.JobKind(kind)
	j.State = model.JobState(state)
	j.Format = model.Format(format)
	if summaryJSON.Valid && summaryJSON.String != "" {
		j.Summary = &model.JobSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), j.Summary); err != nil {
			return nil, eris.Wrapf(err, "unmarshal summary of job %s", j.ID)
		}
	}
	return &j, nil
}
