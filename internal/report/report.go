// Package report renders an import job's summary as a spreadsheet that can be
// handed back to whoever uploaded the file.
package report

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/fin-import/internal/model"
)

// Sheet names of the workbook.
const (
	SummarySheet = "Resumen"
	ErrorsSheet  = "Errores"
)

// ErrNoSummary is returned for jobs that have not finished.
var ErrNoSummary = eris.New("report: job has no summary yet")

// WriteXLSX writes a workbook with a summary sheet and one row per error.
// Multiple messages of the same row are joined with "; ".
func WriteXLSX(w io.Writer, job *model.ImportJob) error {
	if job == nil || job.Summary == nil {
		return ErrNoSummary
	}
	s := job.Summary

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return eris.Wrap(err, "report: rename summary sheet")
	}
	summaryRows := [][]any{
		{"job_id", job.ID},
		{"company_id", job.CompanyID},
		{"kind", string(job.Kind)},
		{"state", string(job.State)},
		{"storage_path", job.StoragePath},
		{"total_rows", s.TotalRows},
		{"ok_rows", s.OKRows},
		{"error_rows", s.ErrorRows},
	}
	for _, warning := range s.Warnings {
		summaryRows = append(summaryRows, []any{"warning", warning})
	}
	if err := writeRows(f, SummarySheet, summaryRows); err != nil {
		return err
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 14); err != nil {
		return eris.Wrap(err, "report: column width")
	}
	if err := f.SetColWidth(SummarySheet, "B", "B", 60); err != nil {
		return eris.Wrap(err, "report: column width")
	}

	if _, err := f.NewSheet(ErrorsSheet); err != nil {
		return eris.Wrap(err, "report: create errors sheet")
	}
	errorRows := make([][]any, 0, len(s.Errors)+1)
	errorRows = append(errorRows, []any{"fila", "errores"})
	for _, e := range s.Errors {
		errorRows = append(errorRows, []any{e.Row, strings.Join(e.Messages, "; ")})
	}
	if err := writeRows(f, ErrorsSheet, errorRows); err != nil {
		return err
	}
	if err := f.SetColWidth(ErrorsSheet, "B", "B", 100); err != nil {
		return eris.Wrap(err, "report: column width")
	}

	if _, err := f.WriteTo(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return eris.Wrap(err, "report: cell name")
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return eris.Wrapf(err, "report: write %s row %d", sheet, i+1)
		}
	}
	return nil
}
