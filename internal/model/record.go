package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a validated, normalised row ready for the target store.
// The set of implementations is closed: AnnualPnL, AnalyticPnL,
// CompanyProfile, and DebtPoolEntry.
type Record interface {
	Kind() JobKind
	// NaturalKey identifies "the same fact" across rows and re-imports.
	NaturalKey() string
	isRecord()
}

// ConceptFact is implemented by records that carry a catalog concept for a period.
type ConceptFact interface {
	Record
	Scope() string
	PeriodKey() string
	Concept() string
}

// AnnualPnL is one yearly profit-and-loss figure.
type AnnualPnL struct {
	CompanyID   string          `json:"company_id"`
	Year        int             `json:"anio"`
	ConceptCode string          `json:"concepto_codigo"`
	Value       decimal.Decimal `json:"valor_total"`
}

func (AnnualPnL) Kind() JobKind { return KindAnnualPnL }
func (AnnualPnL) isRecord()     {}

func (r AnnualPnL) NaturalKey() string {
	return joinKey(r.CompanyID, strconv.Itoa(r.Year), r.ConceptCode)
}

func (r AnnualPnL) Scope() string     { return r.CompanyID }
func (r AnnualPnL) PeriodKey() string { return strconv.Itoa(r.Year) }
func (r AnnualPnL) Concept() string   { return r.ConceptCode }

// AnalyticPnL is a P&L figure broken down by period and optional dimensions.
// Period is either "YYYY" or "YYYY-MM". Empty dimensions are stored as "".
type AnalyticPnL struct {
	CompanyID   string          `json:"company_id"`
	Period      string          `json:"periodo"`
	ConceptCode string          `json:"concepto_codigo"`
	Value       decimal.Decimal `json:"valor"`
	Segment     string          `json:"segmento"`
	CostCenter  string          `json:"centro_coste"`
}

func (AnalyticPnL) Kind() JobKind { return KindAnalyticPnL }
func (AnalyticPnL) isRecord()     {}

func (r AnalyticPnL) NaturalKey() string {
	return joinKey(r.CompanyID, r.Period, r.ConceptCode, r.Segment, r.CostCenter)
}

func (r AnalyticPnL) Scope() string     { return r.CompanyID }
func (r AnalyticPnL) PeriodKey() string { return r.Period }
func (r AnalyticPnL) Concept() string   { return r.ConceptCode }

// CompanyProfile is the singleton descriptive record of a company.
type CompanyProfile struct {
	CompanyID     string              `json:"company_id"`
	Alias         string              `json:"company_alias"`
	Sector        string              `json:"sector"`
	Industry      string              `json:"industria"`
	FoundedYear   *int                `json:"anio_fundacion,omitempty"`
	Employees     *int                `json:"empleados,omitempty"`
	AnnualRevenue decimal.NullDecimal `json:"ingresos_anuales"`
	Headquarters  string              `json:"sede"`
	Website       string              `json:"sitio_web"`
	Description   string              `json:"descripcion"`
	Shareholders  json.RawMessage     `json:"estructura_accionarial,omitempty"`
	OrgChart      json.RawMessage     `json:"organigrama,omitempty"`
}

func (CompanyProfile) Kind() JobKind { return KindCompanyProfile }
func (CompanyProfile) isRecord()     {}

func (r CompanyProfile) NaturalKey() string { return r.CompanyID }

// DebtPoolEntry is one financing instrument of a company under a scenario.
type DebtPoolEntry struct {
	CompanyID    string              `json:"company_id"`
	Lender       string              `json:"entidad"`
	Type         string              `json:"tipo"`
	Principal    decimal.Decimal     `json:"capital"`
	Rate         decimal.NullDecimal `json:"tir"`
	TermMonths   *int                `json:"plazo_meses,omitempty"`
	Installment  decimal.NullDecimal `json:"cuota"`
	NextMaturity *time.Time          `json:"proximo_venc,omitempty"`
	Scenario     string              `json:"escenario"`
}

func (DebtPoolEntry) Kind() JobKind { return KindDebtPool }
func (DebtPoolEntry) isRecord()     {}

func (r DebtPoolEntry) NaturalKey() string {
	return joinKey(r.CompanyID, r.Scenario, r.Lender, r.Type)
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}
