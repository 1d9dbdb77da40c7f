package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fin-import/internal/config"
	"github.com/sells-group/fin-import/internal/importer"
	"github.com/sells-group/fin-import/internal/model"
)

func TestFormatJobsList(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	jobs := []model.ImportJob{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			CompanyID: "c-1",
			Kind:      model.KindAnnualPnL,
			State:     model.JobStateFailed,
			Summary: &model.JobSummary{
				TotalRows: 10, OKRows: 8, ErrorRows: 2,
				Errors: []model.RowError{{Row: 3}, {Row: 7}},
			},
			CreatedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			CompanyID: "c-2",
			Kind:      model.KindDebtPool,
			State:     model.JobStatePending,
			CreatedAt: now.Add(time.Hour),
		},
	}

	var buf bytes.Buffer
	formatJobsList(&buf, jobs)

	out := buf.String()
	assert.Contains(t, out, "STATE")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "8/10")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "debt_pool")
	assert.Contains(t, out, "2026-03-02 09:15")
}

func TestRetryJob(t *testing.T) {
	prev := &model.ImportJob{
		ID:          "job-1",
		CompanyID:   "c-1",
		CompanyCode: "ACME",
		Kind:        model.KindAnalyticPnL,
		State:       model.JobStateFailed,
		StoragePath: "uploads/a.xlsx",
		Format:      model.FormatXLSX,
		Summary:     &model.JobSummary{},
	}
	got := retryJob(prev)
	assert.Empty(t, got.ID)
	assert.Empty(t, got.State)
	assert.Nil(t, got.Summary)
	assert.Equal(t, "ACME", got.CompanyCode)
	assert.Equal(t, model.FormatXLSX, got.Format)
	assert.Equal(t, "uploads/a.xlsx", got.StoragePath)
}

func TestRunResult(t *testing.T) {
	status, body := runResult(&model.JobSummary{TotalRows: 1, OKRows: 1}, nil)
	assert.Equal(t, model.JobStateDone, status)
	require.NotNil(t, body.Summary)
	assert.Nil(t, body.Error)

	status, body = runResult(nil, &importer.StructuralError{Code: importer.CodeEmptyFile, Message: "no data rows"})
	assert.Equal(t, model.JobStateFailed, status)
	require.NotNil(t, body.Error)
	assert.Equal(t, importer.CodeEmptyFile, body.Error.Code)
	assert.Nil(t, body.Summary)

	_, body = runResult(nil, errors.New("boom"))
	assert.Nil(t, body)
}

// withSQLiteConfig points the global config at a fresh sqlite file and a
// local file root.
func withSQLiteConfig(t *testing.T) (root string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "files")
	require.NoError(t, os.MkdirAll(root, 0o755))

	prev := cfg
	cfg = &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "fin.db")},
		Storage: config.StorageConfig{Provider: "local", LocalRoot: root, TimeoutSecs: 10},
		Import:  config.ImportConfig{Delimiter: ",", MaxErrors: 100, DrainConcurrency: 2, DrainLimit: 10},
		Server:  config.ServerConfig{Port: 8080},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
	t.Cleanup(func() { cfg = prev })
	return root
}

func TestInitPipeline_SQLiteEndToEnd(t *testing.T) {
	root := withSQLiteConfig(t)
	ctx := context.Background()

	env, err := initPipeline(ctx, "run")
	require.NoError(t, err)
	defer env.Close()

	_, err = env.Store.UpsertConcepts(ctx, []model.ConceptEntry{
		{Code: "PYG_INGRESOS", Name: "Ingresos", Mandatory: true, Sign: model.SignPositive},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "pyg.csv"),
		[]byte("anio,concepto_codigo,valor_total\n2024,PYG_INGRESOS,100\n2025,PYG_INGRESOS,120\n"), 0o644))

	job, err := env.Store.CreateJob(ctx, model.ImportJob{CompanyID: "c-1", Kind: model.KindAnnualPnL, StoragePath: "pyg.csv"})
	require.NoError(t, err)

	res, err := env.Orchestrator.Drain(ctx, cfg.Import.DrainLimit, cfg.Import.DrainConcurrency)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Done)

	got, err := env.Store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateDone, got.State)
	assert.Equal(t, 2, got.Summary.OKRows)
}

func TestOpenStore_InvalidConfig(t *testing.T) {
	withSQLiteConfig(t)
	cfg.Store.Driver = "mysql"

	_, err := openStore(context.Background(), "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestCatalogLoadCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "fin.db")
	seed := filepath.Join(dir, "concepts.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
concepts:
  - code: PYG_INGRESOS
    name: Ingresos
    mandatory: true
    sign: positive
  - code: PYG_GASTOS
    name: Gastos
    mandatory: true
    sign: negative
`), 0o644))

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	t.Setenv("FINIMPORT_STORE_DRIVER", "sqlite")
	t.Setenv("FINIMPORT_STORE_DATABASE_URL", dbPath)

	prev := cfg
	t.Cleanup(func() { cfg = prev })

	rootCmd.SetArgs([]string{"catalog", "load", "--file", seed})
	require.NoError(t, rootCmd.Execute())

	st, err := openStore(context.Background(), "catalog")
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	entries, err := st.LoadConcepts(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
