package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fin-import/internal/importer"
	"github.com/sells-group/fin-import/internal/model"
	"github.com/sells-group/fin-import/internal/monitoring"
	"github.com/sells-group/fin-import/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP import server with a scheduled drain of pending jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if schedule := cfg.Import.DrainSchedule; schedule != "" {
			c := cron.New()
			_, err := c.AddFunc(schedule, func() {
				if _, err := env.Orchestrator.Drain(ctx, cfg.Import.DrainLimit, cfg.Import.DrainConcurrency); err != nil && ctx.Err() == nil {
					zap.L().Error("scheduled drain failed", zap.Error(err))
				}
			})
			if err != nil {
				return eris.Wrapf(err, "invalid drain schedule %q", schedule)
			}
			c.Start()
			defer func() { <-c.Stop().Done() }()
			zap.L().Info("drain scheduled", zap.String("schedule", schedule))
		}

		collector := monitoring.NewCollector(env.Store, time.Duration(cfg.Monitoring.StaleAfterMins)*time.Minute)
		checker := monitoring.NewChecker(collector, monitoring.CheckerOptions{
			Interval:          time.Duration(cfg.Monitoring.CheckIntervalSecs) * time.Second,
			LookbackHours:     cfg.Monitoring.LookbackWindowHours,
			FailRateThreshold: cfg.Monitoring.FailureRateThreshold,
		})
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Orchestrator, env.Store, collector),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// importRunner is the part of the orchestrator the HTTP surface drives.
type importRunner interface {
	RunImport(ctx context.Context, jobID string) (*model.JobSummary, error)
	Drain(ctx context.Context, limit, concurrency int) (importer.DrainResult, error)
}

// jobSource reads jobs and reports store health.
type jobSource interface {
	GetJob(ctx context.Context, id string) (*model.ImportJob, error)
	Ping(ctx context.Context) error
}

// statsSource collects queue health snapshots.
type statsSource interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

func newRouter(runner importRunner, jobs jobSource, stats statsSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := jobs.Ping(r.Context()); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/imports", func(r chi.Router) {
		r.Post("/run", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				JobID string `json:"job_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
				respondError(w, http.StatusBadRequest, "job_id is required")
				return
			}

			summary, err := runner.RunImport(r.Context(), req.JobID)
			_, body := runResult(summary, err)
			switch {
			case body == nil:
				zap.L().Error("import run failed", zap.String("job_id", req.JobID), zap.Error(err))
				respondError(w, http.StatusInternalServerError, "internal error")
			case errors.Is(err, importer.ErrJobNotRunnable):
				respondJSON(w, http.StatusConflict, body)
			case body.Error != nil:
				respondJSON(w, http.StatusUnprocessableEntity, body)
			default:
				respondJSON(w, http.StatusOK, body)
			}
		})

		r.Post("/drain", func(w http.ResponseWriter, r *http.Request) {
			req := struct {
				Limit       int `json:"limit"`
				Concurrency int `json:"concurrency"`
			}{Limit: cfgDrainLimit(), Concurrency: cfgDrainConcurrency()}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				respondError(w, http.StatusBadRequest, "invalid drain request")
				return
			}
			if req.Limit < 0 || req.Concurrency < 0 {
				respondError(w, http.StatusBadRequest, "limit and concurrency must not be negative")
				return
			}

			res, err := runner.Drain(r.Context(), req.Limit, req.Concurrency)
			if err != nil {
				zap.L().Error("drain failed", zap.Error(err))
				respondError(w, http.StatusInternalServerError, "internal error")
				return
			}
			respondJSON(w, http.StatusOK, res)
		})

		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			lookback := 24
			if cfg != nil && cfg.Monitoring.LookbackWindowHours > 0 {
				lookback = cfg.Monitoring.LookbackWindowHours
			}
			snap, err := stats.Collect(r.Context(), lookback)
			if err != nil {
				zap.L().Error("collect stats failed", zap.Error(err))
				respondError(w, http.StatusInternalServerError, "internal error")
				return
			}
			respondJSON(w, http.StatusOK, snap)
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			job, err := jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
			if errors.Is(err, store.ErrJobNotFound) {
				respondError(w, http.StatusNotFound, "job not found")
				return
			}
			if err != nil {
				zap.L().Error("get job failed", zap.Error(err))
				respondError(w, http.StatusInternalServerError, "internal error")
				return
			}
			respondJSON(w, http.StatusOK, job)
		})
	})

	return r
}

func cfgDrainLimit() int {
	if cfg == nil {
		return 0
	}
	return cfg.Import.DrainLimit
}

func cfgDrainConcurrency() int {
	if cfg == nil {
		return 0
	}
	return cfg.Import.DrainConcurrency
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
