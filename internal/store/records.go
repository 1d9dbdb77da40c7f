package store

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/fin-import/internal/db"
	"github.com/sells-group/fin-import/internal/model"
)

// Target tables of validated records.
const (
	TableAnnualPnL   = "pyg_annual"
	TableAnalyticPnL = "pyg_analytic"
	TableProfiles    = "company_profiles"
	TableDebtPool    = "debt_pool"
	TableConcepts    = "concept_catalog"
	TableJobs        = "import_jobs"
)

var recordUpserts = map[model.JobKind]db.UpsertConfig{
	model.KindAnnualPnL: {
		Table:        TableAnnualPnL,
		Columns:      []string{"company_id", "anio", "concepto_codigo", "valor_total"},
		ConflictKeys: []string{"company_id", "anio", "concepto_codigo"},
		TouchColumn:  "updated_at",
	},
	model.KindAnalyticPnL: {
		Table:        TableAnalyticPnL,
		Columns:      []string{"company_id", "periodo", "concepto_codigo", "segmento", "centro_coste", "valor"},
		ConflictKeys: []string{"company_id", "periodo", "concepto_codigo", "segmento", "centro_coste"},
		TouchColumn:  "updated_at",
	},
	model.KindCompanyProfile: {
		Table: TableProfiles,
		Columns: []string{
			"company_id", "company_alias", "sector", "industria", "anio_fundacion", "empleados",
			"ingresos_anuales", "sede", "sitio_web", "descripcion", "estructura_accionarial", "organigrama",
		},
		ConflictKeys: []string{"company_id"},
		TouchColumn:  "updated_at",
	},
	model.KindDebtPool: {
		Table: TableDebtPool,
		Columns: []string{
			"company_id", "escenario", "entidad", "tipo", "capital", "tir", "plazo_meses", "cuota", "proximo_venc",
		},
		ConflictKeys: []string{"company_id", "escenario", "entidad", "tipo"},
		TouchColumn:  "updated_at",
	},
}

var conceptUpsert = db.UpsertConfig{
	Table:        TableConcepts,
	Columns:      []string{"code", "name", "grp", "mandatory", "sign"},
	ConflictKeys: []string{"code"},
}

// recordArgs maps a record onto its upsert statement arguments. Decimals are
// passed as text so both drivers store them without float rounding.
func recordArgs(rec model.Record) (db.UpsertConfig, []any, error) {
	switch r := rec.(type) {
	case model.AnnualPnL:
		return recordUpserts[model.KindAnnualPnL], []any{
			r.CompanyID, r.Year, r.ConceptCode, r.Value.String(),
		}, nil
	case model.AnalyticPnL:
		return recordUpserts[model.KindAnalyticPnL], []any{
			r.CompanyID, r.Period, r.ConceptCode, r.Segment, r.CostCenter, r.Value.String(),
		}, nil
	case model.CompanyProfile:
		return recordUpserts[model.KindCompanyProfile], []any{
			r.CompanyID, r.Alias, r.Sector, r.Industry, intOrNil(r.FoundedYear), intOrNil(r.Employees),
			decimalOrNil(r.AnnualRevenue), r.Headquarters, r.Website, r.Description,
			jsonOrNil(r.Shareholders), jsonOrNil(r.OrgChart),
		}, nil
	case model.DebtPoolEntry:
		var maturity any
		if r.NextMaturity != nil {
			maturity = r.NextMaturity.Format("2006-01-02")
		}
		return recordUpserts[model.KindDebtPool], []any{
			r.CompanyID, r.Scenario, r.Lender, r.Type, r.Principal.String(),
			decimalOrNil(r.Rate), intOrNil(r.TermMonths), decimalOrNil(r.Installment), maturity,
		}, nil
	default:
		return db.UpsertConfig{}, nil, eris.Errorf("store: unsupported record type %T", rec)
	}
}

func conceptArgs(entries []model.ConceptEntry) [][]any {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		sign := e.Sign
		if sign == "" {
			sign = model.SignAny
		}
		rows = append(rows, []any{e.Code, e.Name, e.Group, e.Mandatory, string(sign)})
	}
	return rows
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func decimalOrNil(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func jsonOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
