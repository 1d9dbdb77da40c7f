package parser

import (
	"bytes"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText returns blob as UTF-8 text. UTF-8 and UTF-16 byte-order marks are
// honoured; other non-UTF-8 input is decoded with fallback when one is
// configured and rejected otherwise.
func decodeText(blob []byte, fallback string) (string, error) {
	switch {
	case bytes.HasPrefix(blob, bomUTF8):
		blob = blob[len(bomUTF8):]
	case bytes.HasPrefix(blob, bomUTF16LE), bytes.HasPrefix(blob, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(blob)
		if err != nil {
			return "", eris.Wrapf(ErrUnreadableEncoding, "parser: utf-16 decode: %v", err)
		}
		return string(out), nil
	}

	if utf8.Valid(blob) {
		return string(blob), nil
	}

	if fallback == "" {
		return "", eris.Wrap(ErrUnreadableEncoding, "parser: input is not valid UTF-8")
	}

	enc, err := htmlindex.Get(fallback)
	if err != nil {
		return "", eris.Wrapf(ErrUnreadableEncoding, "parser: unknown fallback charset %q", fallback)
	}
	out, err := enc.NewDecoder().Bytes(blob)
	if err != nil {
		return "", eris.Wrapf(ErrUnreadableEncoding, "parser: decode %s: %v", fallback, err)
	}
	return string(out), nil
}
