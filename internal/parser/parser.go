// Package parser turns uploaded CSV, XLSX, and XLS blobs into a header row
// plus ordered data rows of text fields.
package parser

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fin-import/internal/model"
)

var (
	// ErrUnsupportedFormat is returned for formats with no available decoder.
	ErrUnsupportedFormat = eris.New("unsupported file format")
	// ErrUnreadableEncoding is returned when the blob is not valid text in a known charset.
	ErrUnreadableEncoding = eris.New("unreadable file encoding")
	// ErrEmptyFile is returned when no header row (or no data row) is present.
	ErrEmptyFile = eris.New("empty file")
	// ErrMalformed is returned for input the decoder cannot tokenise (e.g. an unterminated quote).
	ErrMalformed = eris.New("malformed file")
)

// Options configures parsing.
type Options struct {
	Delimiter       rune   // CSV delimiter, default ','
	FallbackCharset string // charset used when the CSV is not valid UTF-8 (e.g. "windows-1252"); empty disables
	SheetIndex      int    // spreadsheet sheet, default 0
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// Row is one data row. Index is 1-based and counts data rows after the header;
// blank lines are skipped and do not consume an index.
type Row struct {
	Index  int
	Fields []string
	Header *Header
}

// Value returns the field under the named column, or "" when the column is
// absent or the row is too short.
func (r Row) Value(name string) string {
	if r.Header == nil {
		return ""
	}
	i, ok := r.Header.Lookup(name)
	if !ok || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// Table is the parsed content of one file.
type Table struct {
	Header *Header
	Rows   []Row
}

// ParseFile resolves the format from filename and parses blob.
func ParseFile(blob []byte, filename string, opts Options) (*Table, error) {
	format := model.FormatFromPath(filename)
	if format == "" {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "parser: extension of %q", filename)
	}
	return Parse(blob, format, opts)
}

// Parse decodes blob according to format into a header and data rows.
func Parse(blob []byte, format model.Format, opts Options) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case model.FormatCSV:
		records, err = readCSVBlob(blob, opts)
	case model.FormatXLSX:
		records, err = readXLSX(blob, opts)
	case model.FormatXLS:
		records, err = readXLS(blob, opts)
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "parser: format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buildTable(records)
}

// buildTable splits the first record off as header and indexes the remaining rows.
func buildTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, eris.Wrap(ErrEmptyFile, "parser: no header row")
	}

	names := make([]string, len(records[0]))
	for i, n := range records[0] {
		names[i] = strings.TrimSpace(n)
	}
	header := NewHeader(names)

	t := &Table{Header: header, Rows: make([]Row, 0, len(records)-1)}
	for i, rec := range records[1:] {
		t.Rows = append(t.Rows, Row{Index: i + 1, Fields: rec, Header: header})
	}
	return t, nil
}

// isBlank reports whether every field is empty after trimming.
func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
