package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyFile is returned when a file has no data rows.
var ErrEmptyFile = errors.New("empty file: no data rows")

// UnsupportedFileTypeError is returned for file extensions other than
// csv, xlsx and json. It is raised before any content is read.
type UnsupportedFileTypeError struct {
	FileName string
	Ext      string
}

func (e *UnsupportedFileTypeError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("unsupported file type: %q", e.FileName)
	}
	return fmt.Sprintf("unsupported file type: %q", e.Ext)
}

// FieldError is a single rule violation at a dotted path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e FieldError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// RowError ties an error to a data row (0-based Index).
type RowError struct {
	Index int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index+1, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// SchemaValidationError lists every violation found in one record.
type SchemaValidationError struct {
	Errors []FieldError
}

func (e *SchemaValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return "schema validation failed: " + strings.Join(msgs, "; ")
}

// BatchValidationError rejects a whole file. No row of the batch has been
// stored when it is returned.
type BatchValidationError struct {
	Phase    Phase // phase that found the failures
	Rows     int
	Failures []RowFailure
}

func (e *BatchValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch rejected during %s: %d of %d rows failed",
		e.Phase, len(e.Failures), e.Rows)
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(f.String())
	}
	return b.String()
}
