package model

import (
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// JobState represents the lifecycle state of an import job.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateDone       JobState = "done"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether no transition may leave the state.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateFailed
}

// CanTransition reports whether moving from s to next is allowed.
// The lifecycle is pending -> processing -> {done, failed}.
func (s JobState) CanTransition(next JobState) bool {
	switch s {
	case JobStatePending:
		return next == JobStateProcessing
	case JobStateProcessing:
		return next == JobStateDone || next == JobStateFailed
	default:
		return false
	}
}

// JobKind selects the file layout, validation rules, and target store of a job.
type JobKind string

const (
	KindAnnualPnL      JobKind = "annual_pnl"
	KindAnalyticPnL    JobKind = "analytic_pnl"
	KindCompanyProfile JobKind = "company_profile"
	KindDebtPool       JobKind = "debt_pool"
)

// JobKinds lists every supported kind in a stable order.
var JobKinds = []JobKind{KindAnnualPnL, KindAnalyticPnL, KindCompanyProfile, KindDebtPool}

// ParseJobKind converts a string into a JobKind.
func ParseJobKind(s string) (JobKind, error) {
	k := JobKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range JobKinds {
		if k == known {
			return k, nil
		}
	}
	return "", eris.Errorf("unknown job kind: %q (valid: annual_pnl, analytic_pnl, company_profile, debt_pool)", s)
}

// UsesCatalog reports whether rows of this kind carry a concept code.
func (k JobKind) UsesCatalog() bool {
	return k == KindAnnualPnL || k == KindAnalyticPnL
}

// AuditsMandatory reports whether the mandatory-concept audit runs for this kind.
// Analytic breakdowns are partial by nature and are not audited.
func (k JobKind) AuditsMandatory() bool {
	return k == KindAnnualPnL
}

// Format is the decoder used for a job's source file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// FormatFromPath resolves the file format from a storage path extension.
// It returns an empty Format when the extension is not recognised.
func FormatFromPath(p string) Format {
	switch strings.ToLower(path.Ext(p)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	default:
		return ""
	}
}

// ImportJob is the persisted record driving one run of the import pipeline.
type ImportJob struct {
	ID          string      `json:"id"`
	CompanyID   string      `json:"company_id"`
	CompanyCode string      `json:"company_code,omitempty"`
	Kind        JobKind     `json:"kind"`
	State       JobState    `json:"state"`
	StoragePath string      `json:"storage_path"`
	Format      Format      `json:"format,omitempty"`
	Summary     *JobSummary `json:"summary,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// RowError describes every rule violated by one data row.
// Row is 1-based counting data rows after the header; 0 marks job-level errors.
type RowError struct {
	Row      int      `json:"row"`
	Messages []string `json:"messages"`
}

// JobSummary is written once, together with the terminal state.
type JobSummary struct {
	TotalRows int        `json:"total_rows"`
	OKRows    int        `json:"ok_rows"`
	ErrorRows int        `json:"error_rows"`
	Errors    []RowError `json:"errors"`
	Warnings  []string   `json:"warnings"`
}

// HasErrors reports whether any row, audit, or structural error was recorded.
func (s *JobSummary) HasErrors() bool {
	return s != nil && (len(s.Errors) > 0 || s.ErrorRows > 0)
}

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	State     JobState `json:"state,omitempty"`
	CompanyID string   `json:"company_id,omitempty"`
	// CreatedAfter keeps jobs created at or after this instant when set.
	CreatedAfter time.Time `json:"created_after,omitzero"`
	// NewestFirst reverses the default oldest-first order.
	NewestFirst bool `json:"newest_first,omitempty"`
	Limit       int  `json:"limit,omitempty"`
}
