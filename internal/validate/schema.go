// Package validate decides, row by row, whether uploaded data is accepted and
// normalises accepted rows into typed records.
package validate

import (
	"sort"

	"github.com/sells-group/fin-import/internal/model"
	"github.com/sells-group/fin-import/internal/parser"
)

// Column names used in uploaded files.
const (
	ColAnio             = "anio"
	ColConceptoCodigo   = "concepto_codigo"
	ColValorTotal       = "valor_total"
	ColCompanyCode      = "company_code"
	ColPeriodo          = "periodo"
	ColValor            = "valor"
	ColSegmento         = "segmento"
	ColCentroCoste      = "centro_coste"
	ColCompanyAlias     = "company_alias"
	ColSector           = "sector"
	ColIndustria        = "industria"
	ColAnioFundacion    = "anio_fundacion"
	ColEmpleados        = "empleados"
	ColIngresosAnuales  = "ingresos_anuales"
	ColSede             = "sede"
	ColSitioWeb         = "sitio_web"
	ColDescripcion      = "descripcion"
	ColEstructuraAccion = "estructura_accionarial"
	ColOrganigrama      = "organigrama"
	ColEntidad          = "entidad"
	ColTipo             = "tipo"
	ColCapital          = "capital"
	ColTIR              = "tir"
	ColPlazoMeses       = "plazo_meses"
	ColCuota            = "cuota"
	ColProximoVenc      = "proximo_venc"
	ColEscenario        = "escenario"
)

// Column declares one column of a job kind's file layout.
type Column struct {
	Name string
	// Optional columns may be absent from the header.
	Optional bool
	// Mandatory values must be present and non-empty in every row.
	Mandatory bool
	// Aliases are alternative header spellings accepted for Name.
	Aliases []string
}

// Schema is the file layout of a job kind.
type Schema struct {
	Kind    model.JobKind
	Columns []Column
}

var schemas = map[model.JobKind]Schema{
	model.KindAnnualPnL: {
		Kind: model.KindAnnualPnL,
		Columns: []Column{
			{Name: ColAnio, Mandatory: true, Aliases: []string{"ano", "year"}},
			{Name: ColConceptoCodigo, Mandatory: true},
			{Name: ColValorTotal, Mandatory: true},
		},
	},
	model.KindAnalyticPnL: {
		Kind: model.KindAnalyticPnL,
		Columns: []Column{
			{Name: ColCompanyCode, Mandatory: true},
			{Name: ColPeriodo, Mandatory: true},
			{Name: ColConceptoCodigo, Mandatory: true},
			{Name: ColValor, Mandatory: true},
			{Name: ColSegmento, Optional: true},
			{Name: ColCentroCoste, Optional: true},
		},
	},
	model.KindCompanyProfile: {
		Kind: model.KindCompanyProfile,
		Columns: []Column{
			{Name: ColCompanyAlias, Mandatory: true},
			{Name: ColSector, Mandatory: true},
			{Name: ColIndustria},
			{Name: ColAnioFundacion, Aliases: []string{"ano_fundacion"}},
			{Name: ColEmpleados},
			{Name: ColIngresosAnuales},
			{Name: ColSede},
			{Name: ColSitioWeb},
			{Name: ColDescripcion},
			{Name: ColEstructuraAccion},
			{Name: ColOrganigrama},
		},
	},
	model.KindDebtPool: {
		Kind: model.KindDebtPool,
		Columns: []Column{
			{Name: ColEntidad, Mandatory: true},
			{Name: ColTipo, Mandatory: true},
			{Name: ColCapital, Mandatory: true},
			{Name: ColTIR},
			{Name: ColPlazoMeses},
			{Name: ColCuota},
			{Name: ColProximoVenc},
			{Name: ColEscenario},
		},
	},
}

// SchemaFor returns the layout of kind.
func SchemaFor(kind model.JobKind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// position returns the header position of col, trying aliases after the name.
func (c Column) position(h *parser.Header) (int, bool) {
	if i, ok := h.Lookup(c.Name); ok {
		return i, true
	}
	for _, a := range c.Aliases {
		if i, ok := h.Lookup(a); ok {
			return i, true
		}
	}
	return 0, false
}

// MissingHeaders lists required columns absent from h, sorted and deduplicated.
func (s Schema) MissingHeaders(h *parser.Header) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, c := range s.Columns {
		if c.Optional || seen[c.Name] {
			continue
		}
		if _, ok := c.position(h); !ok {
			seen[c.Name] = true
			missing = append(missing, c.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

// UnknownHeaders lists header names that map to no column of the schema.
func (s Schema) UnknownHeaders(h *parser.Header) []string {
	known := make(map[int]bool, len(s.Columns))
	for _, c := range s.Columns {
		if i, ok := c.position(h); ok {
			known[i] = true
		}
	}
	var unknown []string
	for i, n := range h.Names {
		if !known[i] && n != "" {
			unknown = append(unknown, n)
		}
	}
	return unknown
}

// Column returns the declared column called name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
