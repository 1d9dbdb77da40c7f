package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/fin-import/internal/catalog"
	"github.com/sells-group/fin-import/internal/model"
	"github.com/sells-group/fin-import/internal/parser"
)

// Scope identifies the company owning a job. Rows that embed a company code
// must match Code (or ID when the job carries no code).
type Scope struct {
	CompanyID string
	Code      string
}

// ScopeOf returns the scope of job.
func ScopeOf(job *model.ImportJob) Scope {
	return Scope{CompanyID: job.CompanyID, Code: job.CompanyCode}
}

func (s Scope) matches(code string) bool {
	want := s.Code
	if want == "" {
		want = s.CompanyID
	}
	return strings.EqualFold(strings.TrimSpace(code), strings.TrimSpace(want))
}

func (s Scope) label() string {
	if s.Code != "" {
		return s.Code
	}
	return s.CompanyID
}

// Validator validates rows of one job. It is safe for concurrent use because
// it only reads its catalog and schema.
type Validator struct {
	kind    model.JobKind
	schema  Schema
	catalog *catalog.Catalog
	scope   Scope
	header  *parser.Header
	pos     map[string]int
	year    int
}

// Bounds of the anio column of annual P&L files.
const (
	minReportYear = 1900
	maxReportYear = 2100
)

// New builds a validator for rows under header. cat may be nil for kinds
// that do not use the concept catalog. currentYear bounds founding years.
func New(kind model.JobKind, header *parser.Header, cat *catalog.Catalog, scope Scope, currentYear int) *Validator {
	schema := schemas[kind]
	v := &Validator{
		kind:    kind,
		schema:  schema,
		catalog: cat,
		scope:   scope,
		header:  header,
		pos:     make(map[string]int, len(schema.Columns)),
		year:    currentYear,
	}
	for _, c := range schema.Columns {
		if i, ok := c.position(header); ok {
			v.pos[c.Name] = i
		}
	}
	return v
}

// Validate returns either an accepted record or the row's error, never both.
// Rules run in three categories: row shape, mandatory presence, and field
// content. A failing category stops the later ones; within a category every
// violation is reported.
func (v *Validator) Validate(row parser.Row) (model.Record, *model.RowError) {
	if len(row.Fields) != v.header.Len() {
		return nil, rowError(row.Index, fmt.Sprintf("expected %d columns, found %d", v.header.Len(), len(row.Fields)))
	}

	var missing []string
	for _, c := range v.schema.Columns {
		if c.Mandatory && v.get(row, c.Name) == "" {
			missing = append(missing, c.Name+": value is required")
		}
	}
	if len(missing) > 0 {
		return nil, rowError(row.Index, missing...)
	}

	f := &fieldErrs{}
	var rec model.Record
	switch v.kind {
	case model.KindAnnualPnL:
		rec = v.annualPnL(row, f)
	case model.KindAnalyticPnL:
		rec = v.analyticPnL(row, f)
	case model.KindCompanyProfile:
		rec = v.companyProfile(row, f)
	case model.KindDebtPool:
		rec = v.debtPool(row, f)
	default:
		f.add("", fmt.Sprintf("unsupported job kind %q", v.kind))
	}
	if len(f.msgs) > 0 {
		return nil, rowError(row.Index, f.msgs...)
	}
	return rec, nil
}

func (v *Validator) get(row parser.Row, col string) string {
	i, ok := v.pos[col]
	if !ok || i >= len(row.Fields) {
		return ""
	}
	return strings.TrimSpace(row.Fields[i])
}

func rowError(index int, msgs ...string) *model.RowError {
	return &model.RowError{Row: index, Messages: msgs}
}

type fieldErrs struct {
	msgs []string
}

func (f *fieldErrs) add(col, msg string) {
	if col == "" {
		f.msgs = append(f.msgs, msg)
		return
	}
	f.msgs = append(f.msgs, col+": "+msg)
}

// decimalField parses a required or optional number. Empty optional values
// yield an invalid NullDecimal.
func (v *Validator) decimalField(row parser.Row, col string, f *fieldErrs) decimal.NullDecimal {
	raw := v.get(row, col)
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, err := ParseDecimal(raw)
	if err != nil {
		f.add(col, fmt.Sprintf("%q is not a valid number", raw))
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func (v *Validator) intField(row parser.Row, col string, f *fieldErrs) *int {
	raw := v.get(row, col)
	if raw == "" {
		return nil
	}
	n, err := ParseInt(raw)
	if err != nil {
		f.add(col, fmt.Sprintf("%q is not a valid whole number", raw))
		return nil
	}
	return &n
}

func nonNegative(d decimal.NullDecimal, col string, f *fieldErrs) {
	if d.Valid && d.Decimal.IsNegative() {
		f.add(col, fmt.Sprintf("%s must be >= 0", d.Decimal))
	}
}

func inRange(d decimal.NullDecimal, lo, hi int64, col string, f *fieldErrs) {
	if !d.Valid {
		return
	}
	if d.Decimal.LessThan(decimal.NewFromInt(lo)) || d.Decimal.GreaterThan(decimal.NewFromInt(hi)) {
		f.add(col, fmt.Sprintf("%s is outside the range [%d, %d]", d.Decimal, lo, hi))
	}
}

// concept checks code against the catalog and value against its sign convention.
func (v *Validator) concept(code string, value decimal.NullDecimal, valueCol string, f *fieldErrs) string {
	entry, ok := v.catalog.Lookup(code)
	if !ok {
		f.add(ColConceptoCodigo, fmt.Sprintf("unknown concept code %q", code))
		return catalog.NormalizeCode(code)
	}
	if value.Valid {
		switch {
		case entry.Sign == model.SignPositive && value.Decimal.IsNegative():
			f.add(valueCol, fmt.Sprintf("%s is negative but %s (%s) only accepts positive values", value.Decimal, entry.Code, entry.Name))
		case entry.Sign == model.SignNegative && value.Decimal.IsPositive():
			f.add(valueCol, fmt.Sprintf("%s is positive but %s (%s) only accepts negative values", value.Decimal, entry.Code, entry.Name))
		}
	}
	return entry.Code
}

func (v *Validator) annualPnL(row parser.Row, f *fieldErrs) model.Record {
	rawYear := v.get(row, ColAnio)
	year := 0
	if !IsYear(rawYear) {
		f.add(ColAnio, fmt.Sprintf("%q is not a valid year (expected YYYY)", rawYear))
	} else {
		year, _ = ParseInt(rawYear)
		if year < minReportYear || year > maxReportYear {
			f.add(ColAnio, fmt.Sprintf("%d is outside the range [%d, %d]", year, minReportYear, maxReportYear))
		}
	}

	value := v.decimalField(row, ColValorTotal, f)
	code := v.concept(v.get(row, ColConceptoCodigo), value, ColValorTotal, f)

	return model.AnnualPnL{
		CompanyID:   v.scope.CompanyID,
		Year:        year,
		ConceptCode: code,
		Value:       value.Decimal,
	}
}

func (v *Validator) analyticPnL(row parser.Row, f *fieldErrs) model.Record {
	if code := v.get(row, ColCompanyCode); !v.scope.matches(code) {
		f.add(ColCompanyCode, fmt.Sprintf("%q does not match the job's company %q", code, v.scope.label()))
	}

	period := v.get(row, ColPeriodo)
	if !IsPeriod(period) {
		f.add(ColPeriodo, fmt.Sprintf("%q is not a valid period (expected YYYY or YYYY-MM)", period))
	}

	value := v.decimalField(row, ColValor, f)
	code := v.concept(v.get(row, ColConceptoCodigo), value, ColValor, f)

	return model.AnalyticPnL{
		CompanyID:   v.scope.CompanyID,
		Period:      period,
		ConceptCode: code,
		Value:       value.Decimal,
		Segment:     v.get(row, ColSegmento),
		CostCenter:  v.get(row, ColCentroCoste),
	}
}

func (v *Validator) companyProfile(row parser.Row, f *fieldErrs) model.Record {
	founded := v.intField(row, ColAnioFundacion, f)
	if founded != nil && (*founded < 1800 || *founded > v.year) {
		f.add(ColAnioFundacion, fmt.Sprintf("%d is outside the range [1800, %d]", *founded, v.year))
	}

	employees := v.intField(row, ColEmpleados, f)
	if employees != nil && *employees < 0 {
		f.add(ColEmpleados, fmt.Sprintf("%d must be >= 0", *employees))
	}

	revenue := v.decimalField(row, ColIngresosAnuales, f)
	nonNegative(revenue, ColIngresosAnuales, f)

	website := v.get(row, ColSitioWeb)
	if website != "" && !isAbsoluteURL(website) {
		f.add(ColSitioWeb, fmt.Sprintf("%q is not an absolute URL (expected e.g. https://example.com)", website))
	}

	return model.CompanyProfile{
		CompanyID:     v.scope.CompanyID,
		Alias:         v.get(row, ColCompanyAlias),
		Sector:        v.get(row, ColSector),
		Industry:      v.get(row, ColIndustria),
		FoundedYear:   founded,
		Employees:     employees,
		AnnualRevenue: revenue,
		Headquarters:  v.get(row, ColSede),
		Website:       website,
		Description:   v.get(row, ColDescripcion),
		Shareholders:  v.jsonField(row, ColEstructuraAccion, f),
		OrgChart:      v.jsonField(row, ColOrganigrama, f),
	}
}

func (v *Validator) debtPool(row parser.Row, f *fieldErrs) model.Record {
	principal := v.decimalField(row, ColCapital, f)
	nonNegative(principal, ColCapital, f)

	rate := v.decimalField(row, ColTIR, f)
	inRange(rate, 0, 100, ColTIR, f)

	term := v.intField(row, ColPlazoMeses, f)
	if term != nil && *term < 0 {
		f.add(ColPlazoMeses, fmt.Sprintf("%d must be >= 0", *term))
	}

	installment := v.decimalField(row, ColCuota, f)
	nonNegative(installment, ColCuota, f)

	rec := model.DebtPoolEntry{
		CompanyID:   v.scope.CompanyID,
		Lender:      v.get(row, ColEntidad),
		Type:        strings.ToLower(v.get(row, ColTipo)),
		Principal:   principal.Decimal,
		Rate:        rate,
		TermMonths:  term,
		Installment: installment,
		Scenario:    strings.ToLower(v.get(row, ColEscenario)),
	}
	if rec.Scenario == "" {
		rec.Scenario = DefaultScenario
	}

	if raw := v.get(row, ColProximoVenc); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			f.add(ColProximoVenc, fmt.Sprintf("%q is not a valid date (expected YYYY-MM-DD)", raw))
		} else {
			rec.NextMaturity = &d
		}
	}
	return rec
}

// DefaultScenario is used for debt-pool rows without an escenario.
const DefaultScenario = "base"

// jsonField accepts a JSON object or array and returns it compacted.
func (v *Validator) jsonField(row parser.Row, col string, f *fieldErrs) json.RawMessage {
	raw := v.get(row, col)
	if raw == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		f.add(col, fmt.Sprintf("invalid JSON: %v", err))
		return nil
	}
	if c := buf.Bytes()[0]; c != '{' && c != '[' {
		f.add(col, "JSON value must be an object or an array")
		return nil
	}
	return buf.Bytes()
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
}
