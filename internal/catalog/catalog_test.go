package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fin-import/internal/model"
)

type staticReader struct {
	entries []model.ConceptEntry
	err     error
	calls   int
}

func (r *staticReader) LoadConcepts(context.Context) ([]model.ConceptEntry, error) {
	r.calls++
	return r.entries, r.err
}

func TestNew_IndexesAndSortsMandatory(t *testing.T) {
	c, err := New([]model.ConceptEntry{
		{Code: "pyg_gastos", Name: "Gastos", Sign: model.SignNegative},
		{Code: "PYG_INGRESOS", Name: "Ingresos", Mandatory: true},
		{Code: " PYG_EBITDA ", Name: "EBITDA", Mandatory: true},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())

	e, ok := c.Lookup("PYG_GASTOS")
	require.True(t, ok)
	assert.Equal(t, "Gastos", e.Name)
	assert.Equal(t, model.SignNegative, e.Sign)

	e, ok = c.Lookup("pyg_ingresos")
	require.True(t, ok)
	assert.Equal(t, model.SignAny, e.Sign)

	_, ok = c.Lookup("PYG_UNKNOWN")
	assert.False(t, ok)

	mandatory := c.Mandatory()
	require.Len(t, mandatory, 2)
	assert.Equal(t, "PYG_EBITDA", mandatory[0].Code)
	assert.Equal(t, "PYG_INGRESOS", mandatory[1].Code)
}

func TestNew_RejectsDuplicatesAndEmpty(t *testing.T) {
	_, err := New([]model.ConceptEntry{{Code: "A"}, {Code: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate code")

	_, err = New([]model.ConceptEntry{{Code: "  "}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty code")
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	_, ok := c.Lookup("X")
	assert.False(t, ok)
	assert.Nil(t, c.Mandatory())
	assert.Equal(t, 0, c.Len())
}

func TestLoad_CallsReaderOnce(t *testing.T) {
	r := &staticReader{entries: []model.ConceptEntry{{Code: "A", Name: "a"}}}
	c, err := Load(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 1, c.Len())
}

func TestLoad_ReaderError(t *testing.T) {
	r := &staticReader{err: errors.New("connection refused")}
	_, err := Load(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog: load concepts")
}

func TestParseYAML(t *testing.T) {
	doc := `
concepts:
  - code: pyg_ingresos
    name: Ingresos de explotación
    group: ingresos
    mandatory: true
    sign: positive
  - code: PYG_GASTOS
    sign: negative
`
	entries, err := ParseYAML([]byte(doc))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "PYG_INGRESOS", entries[0].Code)
	assert.True(t, entries[0].Mandatory)
	assert.Equal(t, model.SignPositive, entries[0].Sign)
	assert.Equal(t, "PYG_GASTOS", entries[1].Name)
}

func TestParseYAML_Invalid(t *testing.T) {
	_, err := ParseYAML([]byte("concepts:\n  - code: A\n    sign: maybe\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sign convention")

	_, err = ParseYAML([]byte("concepts:\n  - name: nameless\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no code")

	_, err = ParseYAML([]byte("concepts: [\n"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concepts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concepts:\n  - code: A\n    name: Alpha\n"), 0o600))

	entries, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alpha", entries[0].Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
