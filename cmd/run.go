package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fin-import/internal/importer"
	"github.com/sells-group/fin-import/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run one pending import job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, runErr := env.Orchestrator.RunImport(ctx, args[0])
		status, body := runResult(summary, runErr)
		if body == nil {
			return eris.Wrap(runErr, "run import")
		}
		if err := writeJSON(os.Stdout, body); err != nil {
			return err
		}
		if status != model.JobStateDone {
			return eris.Errorf("job %s finished as %s", args[0], status)
		}
		return nil
	},
}

// runSummary is the summary part of a run response.
type runSummary struct {
	TotalRows int              `json:"total_rows"`
	OKRows    int              `json:"ok_rows"`
	ErrorRows int              `json:"error_rows"`
	Warnings  []string         `json:"warnings"`
	Errors    []model.RowError `json:"errors"`
}

// runError is the error part of a structural failure response.
type runError struct {
	Code    importer.Code `json:"code"`
	Message string        `json:"message"`
}

type runResponse struct {
	Status  model.JobState `json:"status"`
	Summary *runSummary    `json:"summary,omitempty"`
	Error   *runError      `json:"error,omitempty"`
}

// runResult shapes the outcome of RunImport for callers. A nil body means
// the error is neither a finished job nor a structural failure.
func runResult(summary *model.JobSummary, err error) (model.JobState, *runResponse) {
	if se, ok := importer.AsStructural(err); ok {
		return model.JobStateFailed, &runResponse{
			Status: model.JobStateFailed,
			Error:  &runError{Code: se.Code, Message: se.Message},
		}
	}
	if err != nil || summary == nil {
		return "", nil
	}

	status := model.JobStateDone
	if summary.HasErrors() {
		status = model.JobStateFailed
	}
	return status, &runResponse{
		Status: status,
		Summary: &runSummary{
			TotalRows: summary.TotalRows,
			OKRows:    summary.OKRows,
			ErrorRows: summary.ErrorRows,
			Warnings:  summary.Warnings,
			Errors:    summary.Errors,
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run pending import jobs, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if limit == 0 {
			limit = cfg.Import.DrainLimit
		}
		if concurrency == 0 {
			concurrency = cfg.Import.DrainConcurrency
		}

		res, err := env.Orchestrator.Drain(ctx, limit, concurrency)
		if err != nil {
			return eris.Wrap(err, "drain")
		}
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	drainCmd.Flags().Int("limit", 0, "max jobs to run (default from config)")
	drainCmd.Flags().Int("concurrency", 0, "max concurrent jobs (default from config)")
	rootCmd.AddCommand(runCmd, drainCmd)
}
