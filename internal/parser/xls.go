package parser

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/shakinm/xlsReader/xls"
)

// readXLS reads the selected sheet of a legacy BIFF (.xls) workbook. The
// decoder only opens files by path, so the blob is staged in a temp file.
func readXLS(blob []byte, opts Options) ([][]string, error) {
	tmp, err := os.CreateTemp("", "fin-import-*.xls")
	if err != nil {
		return nil, eris.Wrap(err, "parser: create temp xls")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return nil, eris.Wrap(err, "parser: write temp xls")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "parser: close temp xls")
	}

	book, err := xls.OpenFile(tmp.Name())
	if err != nil {
		return nil, eris.Wrapf(ErrMalformed, "parser: open xls: %v", err)
	}

	sheet, err := book.GetSheet(opts.SheetIndex)
	if err != nil || sheet == nil {
		return nil, eris.Wrapf(ErrEmptyFile, "parser: xls sheet %d not found", opts.SheetIndex)
	}

	var raw [][]string
	for _, row := range sheet.GetRows() {
		cols := row.GetCols()
		rec := make([]string, 0, len(cols))
		for _, col := range cols {
			rec = append(rec, col.GetString())
		}
		raw = append(raw, rec)
	}
	return squareSheet(raw), nil
}
