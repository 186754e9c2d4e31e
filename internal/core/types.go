package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/leadintake/internal/pathmap"
)

// Row is one line of a tabular file: cells in header order.
type Row []pathmap.Cell

// FileExt is a supported lead file format.
type FileExt string

const (
	ExtCSV  FileExt = "csv"
	ExtXLSX FileExt = "xlsx"
	ExtJSON FileExt = "json"
)

// SupportedExts lists the accepted formats in display order.
var SupportedExts = []FileExt{ExtCSV, ExtXLSX, ExtJSON}

// ParseExt returns the format named by the file's extension (the
// lower-cased suffix after the last dot). Unknown extensions fail with
// *UnsupportedFileTypeError.
func ParseExt(fileName string) (FileExt, error) {
	i := strings.LastIndex(fileName, ".")
	if i < 0 {
		return "", &UnsupportedFileTypeError{FileName: fileName}
	}
	ext, err := ParseExtName(fileName[i+1:])
	if err != nil {
		return "", &UnsupportedFileTypeError{FileName: fileName, Ext: strings.ToLower(fileName[i+1:])}
	}
	return ext, nil
}

// ParseExtName parses a bare extension such as "csv" or "XLSX".
func ParseExtName(name string) (FileExt, error) {
	ext := FileExt(strings.ToLower(strings.TrimSpace(name)))
	for _, e := range SupportedExts {
		if e == ext {
			return e, nil
		}
	}
	return "", &UnsupportedFileTypeError{Ext: string(ext)}
}

// ContentType returns the media type used when serving files of this format.
func (e FileExt) ContentType() string {
	switch e {
	case ExtCSV:
		return "text/csv; charset=utf-8"
	case ExtXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ExtJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Phase indicates the current stage of an ingest run.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseParsing     Phase = "parsing"
	PhaseNormalizing Phase = "normalizing"
	PhaseValidating  Phase = "validating"
	PhaseCommitting  Phase = "committing"
	PhaseRejected    Phase = "rejected"
	PhaseDone        Phase = "done"
)

// PhaseFunc is called on every phase transition of an ingest run.
type PhaseFunc func(ingestID string, from, to Phase)

// RowFailure collects every problem found in one input row.
// Row is the 1-based position of the data row in the file.
type RowFailure struct {
	Row    int          `json:"row"`
	Errors []FieldError `json:"errors"`
}

func (f RowFailure) String() string {
	msgs := make([]string, len(f.Errors))
	for i, e := range f.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("row %d: %s", f.Row, strings.Join(msgs, "; "))
}

// IngestResult is the outcome of a bulk ingest.
type IngestResult struct {
	IngestID string        `json:"ingest_id"`
	FileName string        `json:"file_name"`
	Phase    Phase         `json:"phase"`
	Rows     int           `json:"rows"`
	Created  int           `json:"created_count"`
	Failures []RowFailure  `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ExportFile is a file written to the export directory.
// The caller owns the file and must remove it.
type ExportFile struct {
	Path string
	Name string
	Ext  FileExt
	Rows int
}

// ContentType returns the media type for the file's format.
func (f *ExportFile) ContentType() string { return f.Ext.ContentType() }
