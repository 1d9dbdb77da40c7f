package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fin-import/internal/model"
	"github.com/sells-group/fin-import/internal/report"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Create and inspect import jobs",
	Long:  "Commands for creating, listing, viewing, retrying, and reporting on import jobs.",
}

// -- jobs create --

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending import job for an uploaded file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		company, _ := cmd.Flags().GetString("company")
		code, _ := cmd.Flags().GetString("code")
		kindFlag, _ := cmd.Flags().GetString("kind")
		path, _ := cmd.Flags().GetString("path")

		kind, err := model.ParseJobKind(kindFlag)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "jobs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.CreateJob(ctx, model.ImportJob{
			CompanyID:   company,
			CompanyCode: code,
			Kind:        kind,
			StoragePath: path,
		})
		if err != nil {
			return eris.Wrap(err, "jobs create")
		}
		fmt.Fprintln(os.Stdout, job.ID)
		return nil
	},
}

// -- jobs get --

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job and its summary as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "jobs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs get")
		}
		return writeJSON(os.Stdout, job)
	},
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import jobs, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "jobs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, _ := cmd.Flags().GetString("state")
		company, _ := cmd.Flags().GetString("company")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := st.ListJobs(ctx, model.JobFilter{
			State:     model.JobState(state),
			CompanyID: company,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// formatJobsList writes a table of jobs.
func formatJobsList(w io.Writer, jobs []model.ImportJob) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tKIND\tSTATE\tROWS\tERRORS\tCREATED")
	for _, j := range jobs {
		rows, errs := "-", "-"
		if j.Summary != nil {
			rows = fmt.Sprintf("%d/%d", j.Summary.OKRows, j.Summary.TotalRows)
			errs = fmt.Sprintf("%d", len(j.Summary.Errors))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(j.ID), j.CompanyID, j.Kind, j.State, rows, errs,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// -- jobs retry --

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Create a new pending job for the same file as a finished job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "jobs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		prev, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs retry")
		}
		if !prev.State.Terminal() {
			return eris.Errorf("job %s is %s; only done or failed jobs can be retried", prev.ID, prev.State)
		}

		job, err := st.CreateJob(ctx, retryJob(prev))
		if err != nil {
			return eris.Wrap(err, "jobs retry")
		}
		fmt.Fprintln(os.Stdout, job.ID)
		return nil
	},
}

// retryJob copies the scope and source of prev into a fresh job.
func retryJob(prev *model.ImportJob) model.ImportJob {
	return model.ImportJob{
		CompanyID:   prev.CompanyID,
		CompanyCode: prev.CompanyCode,
		Kind:        prev.Kind,
		StoragePath: prev.StoragePath,
		Format:      prev.Format,
	}
}

// -- jobs report --

var jobsReportCmd = &cobra.Command{
	Use:   "report <job-id>",
	Short: "Export a finished job's summary and errors as an .xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "jobs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs report")
		}

		out, _ := cmd.Flags().GetString("out")
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "create %s", out)
		}
		if err := report.WriteXLSX(f, job); err != nil {
			f.Close()      //nolint:errcheck
			os.Remove(out) //nolint:errcheck
			return err
		}
		return eris.Wrapf(f.Close(), "close %s", out)
	},
}

func init() {
	jobsCreateCmd.Flags().String("company", "", "company id (required)")
	jobsCreateCmd.Flags().String("code", "", "external company code embedded in analytic rows")
	jobsCreateCmd.Flags().String("kind", "", "annual_pnl, analytic_pnl, company_profile or debt_pool (required)")
	jobsCreateCmd.Flags().String("path", "", "storage path of the uploaded file (required)")
	_ = jobsCreateCmd.MarkFlagRequired("company")
	_ = jobsCreateCmd.MarkFlagRequired("kind")
	_ = jobsCreateCmd.MarkFlagRequired("path")

	jobsListCmd.Flags().String("state", "", "filter by state (pending, processing, done, failed)")
	jobsListCmd.Flags().String("company", "", "filter by company id")
	jobsListCmd.Flags().Int("limit", 50, "max jobs to list")

	jobsReportCmd.Flags().String("out", "errors.xlsx", "output workbook path")

	jobsCmd.AddCommand(jobsCreateCmd, jobsGetCmd, jobsListCmd, jobsRetryCmd, jobsReportCmd)
	rootCmd.AddCommand(jobsCmd)
}
