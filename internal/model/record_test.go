package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Kinds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindAnnualPnL, AnnualPnL{}.Kind())
	assert.Equal(t, KindAnalyticPnL, AnalyticPnL{}.Kind())
	assert.Equal(t, KindCompanyProfile, CompanyProfile{}.Kind())
	assert.Equal(t, KindDebtPool, DebtPoolEntry{}.Kind())
}

func TestRecord_NaturalKeys(t *testing.T) {
	t.Parallel()

	a := AnnualPnL{CompanyID: "c-1", Year: 2024, ConceptCode: "PYG_INGRESOS", Value: decimal.NewFromInt(10)}
	b := a
	b.Value = decimal.NewFromInt(20)
	assert.Equal(t, a.NaturalKey(), b.NaturalKey(), "value is not part of the key")

	b.Year = 2025
	assert.NotEqual(t, a.NaturalKey(), b.NaturalKey())

	seg := AnalyticPnL{CompanyID: "c-1", Period: "2024-01", ConceptCode: "X", Segment: "retail"}
	noSeg := seg
	noSeg.Segment = ""
	assert.NotEqual(t, seg.NaturalKey(), noSeg.NaturalKey())

	// separator keeps adjacent parts from bleeding into each other
	x := AnalyticPnL{CompanyID: "c-1", Period: "2024", ConceptCode: "X", Segment: "ab", CostCenter: ""}
	y := AnalyticPnL{CompanyID: "c-1", Period: "2024", ConceptCode: "X", Segment: "a", CostCenter: "b"}
	assert.NotEqual(t, x.NaturalKey(), y.NaturalKey())

	assert.Equal(t, "c-1", CompanyProfile{CompanyID: "c-1", Alias: "Acme"}.NaturalKey())

	base := DebtPoolEntry{CompanyID: "c-1", Scenario: "base", Lender: "Banco X", Type: "prestamo"}
	stress := base
	stress.Scenario = "stress"
	assert.NotEqual(t, base.NaturalKey(), stress.NaturalKey())
}

func TestConceptFact(t *testing.T) {
	t.Parallel()

	var f ConceptFact = AnalyticPnL{CompanyID: "c-1", Period: "2024-03", ConceptCode: "PYG_OTROS"}
	assert.Equal(t, "c-1", f.Scope())
	assert.Equal(t, "2024-03", f.PeriodKey())
	assert.Equal(t, "PYG_OTROS", f.Concept())

	f = AnnualPnL{CompanyID: "c-1", Year: 2023, ConceptCode: "PYG_GASTOS"}
	assert.Equal(t, "2023", f.PeriodKey())

	var r Record = CompanyProfile{}
	_, ok := r.(ConceptFact)
	assert.False(t, ok)
}

func TestParseSign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Sign
	}{
		{"", SignAny},
		{"any", SignAny},
		{" Positive ", SignPositive},
		{"+", SignPositive},
		{"NEGATIVE", SignNegative},
		{"-", SignNegative},
	}
	for _, tt := range tests {
		got, err := ParseSign(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseSign("sometimes")
	assert.ErrorContains(t, err, "unknown sign convention")
}
