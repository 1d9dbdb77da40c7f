package parser

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// readXLSX reads the selected sheet of an XLSX workbook.
func readXLSX(blob []byte, opts Options) ([][]string, error) {
	f, err := xlsx.OpenBinary(blob)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformed, "parser: open xlsx: %v", err)
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Wrapf(ErrEmptyFile, "parser: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	sheet := f.Sheets[opts.SheetIndex]

	raw := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			raw = append(raw, nil)
			continue
		}
		raw = append(raw, rowToStrings(row))
	}
	return squareSheet(raw), nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cell.String()
	}
	return cells
}

// squareSheet trims cells, drops blank rows, and pads or truncates every data
// row to the header width. Spreadsheet writers omit trailing empty cells, so
// a short row there is not a column-count mismatch the way it is in CSV.
func squareSheet(raw [][]string) [][]string {
	var out [][]string
	width := -1
	for _, rec := range raw {
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if isBlank(rec) {
			continue
		}
		if width < 0 {
			rec = trimTrailingEmpty(rec)
			width = len(rec)
			out = append(out, rec)
			continue
		}
		switch {
		case len(rec) < width:
			padded := make([]string, width)
			copy(padded, rec)
			rec = padded
		case len(rec) > width:
			extra := rec[width:]
			if isBlank(extra) {
				rec = rec[:width]
			}
		}
		out = append(out, rec)
	}
	return out
}

func trimTrailingEmpty(rec []string) []string {
	n := len(rec)
	for n > 0 && rec[n-1] == "" {
		n--
	}
	return rec[:n]
}
