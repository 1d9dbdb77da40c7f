package parser

import (
	"strings"

	"github.com/rotisserie/eris"
)

// readCSVBlob decodes blob to text and splits it into records.
func readCSVBlob(blob []byte, opts Options) ([][]string, error) {
	text, err := decodeText(blob, opts.FallbackCharset)
	if err != nil {
		return nil, err
	}
	return ReadCSV(text, opts.delimiter())
}

// ReadCSV splits text into records. Quoted fields may contain the delimiter,
// doubled quotes, and line breaks, and keep their inner whitespace; unquoted
// fields are trimmed. Lines whose fields are all empty (",,") are dropped
// like blank spreadsheet rows, unless one of the fields was quoted.
//
// encoding/csv is not used because it does not report whether a field was
// quoted, which the trimming rule depends on.
func ReadCSV(text string, delim rune) ([][]string, error) {
	var (
		records [][]string
		record  []string
		field   strings.Builder
		quoted  bool // current field started with a quote
		inQuote bool // inside the quoted section
		closed  bool // quoted section has been closed
		anyQ    bool // some field of the current record was quoted
		line    = 1
		start   = 1 // line on which the current record started
	)

	endField := func() {
		v := field.String()
		if !quoted {
			v = strings.TrimSpace(v)
		}
		record = append(record, v)
		field.Reset()
		quoted, closed = false, false
	}
	endRecord := func() {
		endField()
		if anyQ || !isBlank(record) {
			records = append(records, record)
		}
		record, anyQ = nil, false
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inQuote {
			switch {
			case r == '"' && i+1 < len(runes) && runes[i+1] == '"':
				field.WriteRune('"')
				i++
			case r == '"':
				inQuote, closed = false, true
			default:
				if r == '\n' {
					line++
				}
				field.WriteRune(r)
			}
			continue
		}

		switch {
		case r == delim:
			endField()
		case r == '\r' && i+1 < len(runes) && runes[i+1] == '\n':
			// handled by the following '\n'
		case r == '\n' || r == '\r':
			line++
			endRecord()
			start = line
		case r == '"' && !quoted && strings.TrimSpace(field.String()) == "":
			// Leading whitespace before an opening quote is not part of the value.
			field.Reset()
			quoted, inQuote, anyQ = true, true, true
		case closed && (r == ' ' || r == '\t'):
			// whitespace between a closing quote and the delimiter
		default:
			field.WriteRune(r)
		}
	}

	if inQuote {
		return nil, eris.Wrapf(ErrMalformed, "parser: unterminated quoted field starting on line %d", start)
	}
	if field.Len() > 0 || len(record) > 0 || quoted {
		endRecord()
	}
	return records, nil
}
