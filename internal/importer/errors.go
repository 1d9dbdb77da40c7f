package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fin-import/internal/parser"
)

// ErrJobNotRunnable is returned when a job does not exist or is not pending.
var ErrJobNotRunnable = eris.New("job not runnable")

// Code classifies a structural failure.
type Code string

const (
	CodeJobNotRunnable     Code = "job_not_runnable"
	CodeDownloadFailed     Code = "download_failed"
	CodeUnsupportedFormat  Code = "unsupported_format"
	CodeUnreadableEncoding Code = "unreadable_encoding"
	CodeMalformedFile      Code = "malformed_file"
	CodeEmptyFile          Code = "empty_file"
	CodeMissingHeaders     Code = "missing_headers"
	CodeCatalogUnavailable Code = "catalog_unavailable"
)

// StructuralError is a file- or job-level defect that stops the run before
// any row is written.
type StructuralError struct {
	Code    Code
	Message string
	Err     error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StructuralError) Unwrap() error { return e.Err }

func structural(code Code, err error, format string, args ...any) *StructuralError {
	return &StructuralError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func notRunnable(err error, format string, args ...any) *StructuralError {
	if err == nil {
		err = ErrJobNotRunnable
	} else {
		err = errors.Join(ErrJobNotRunnable, err)
	}
	return structural(CodeJobNotRunnable, err, format, args...)
}

// parseFailure maps a parser error onto its structural code.
func parseFailure(err error) *StructuralError {
	switch {
	case errors.Is(err, parser.ErrUnsupportedFormat):
		return structural(CodeUnsupportedFormat, err, "no decoder is available for this file format")
	case errors.Is(err, parser.ErrUnreadableEncoding):
		return structural(CodeUnreadableEncoding, err, "the file is not valid UTF-8 text")
	case errors.Is(err, parser.ErrEmptyFile):
		return structural(CodeEmptyFile, err, "the file contains no header row")
	default:
		return structural(CodeMalformedFile, err, "the file could not be read: %s", strings.TrimPrefix(err.Error(), "parser: "))
	}
}

// AsStructural returns the structural failure carried by err, if any.
func AsStructural(err error) (*StructuralError, bool) {
	var se *StructuralError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
