package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fin-import/internal/blob"
	"github.com/sells-group/fin-import/internal/importer"
	"github.com/sells-group/fin-import/internal/store"
)

// pipelineEnv holds the store, file source, and orchestrator needed by the
// run/drain/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Blobs        blob.Store
	Orchestrator *importer.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "fin-import.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the store. Callers should defer Close.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline sets up the store, the blob source, and the orchestrator.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	st, err := openStore(ctx, mode)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.New(cfg.BlobOptions())
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init blob store")
	}

	orch := importer.New(st, st, st, blobs, importer.Options{
		Parser:    cfg.ParserOptions(),
		MaxErrors: cfg.Import.MaxErrors,
	})

	zap.L().Debug("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("storage", cfg.Storage.Provider),
	)

	return &pipelineEnv{Store: st, Blobs: blobs, Orchestrator: orch}, nil
}
