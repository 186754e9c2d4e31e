package core

// ingest.go reads lead files into flat rows.
//
// Each format is exposed as a lazy RowSource so the pipeline pulls rows one
// at a time. Keys come from the header row (csv, xlsx) or from object keys in
// source order (json). Blank cells become nil.

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/leadintake/internal/pathmap"
)

// Supported source encodings for CSV files.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1251 = "windows-1251"
)

// IngestOptions configures how a file is parsed.
type IngestOptions struct {
	Encoding  string // csv only: utf-8 (default) or windows-1251
	Delimiter rune   // csv only: default ','

	// IsTest, when set, overrides meta.is_test on every ingested lead.
	IsTest *bool
}

// RowSource yields rows lazily. Next returns ok=false once the input is
// exhausted.
type RowSource interface {
	Next() (row Row, ok bool, err error)
	Close() error
}

// OpenTable returns a RowSource for data in the given format.
func OpenTable(ext FileExt, data []byte, opts IngestOptions) (RowSource, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	switch ext {
	case ExtCSV:
		return newCSVSource(data, opts)
	case ExtXLSX:
		return newXLSXSource(data)
	case ExtJSON:
		return newJSONSource(data)
	default:
		return nil, &UnsupportedFileTypeError{Ext: string(ext)}
	}
}

// textReader decodes raw bytes into UTF-8. A leading BOM is dropped and
// invalid UTF-8 sequences are replaced with U+FFFD.
func textReader(data []byte, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingUTF8, "utf8":
		return transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	case EncodingWindows1251, "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(bytes.NewReader(data)), nil
	default:
		return nil, fmt.Errorf("encoding error: unsupported encoding %q", encoding)
	}
}

// =============================================================================
// CSV
// =============================================================================

type csvSource struct {
	reader *csv.Reader
	header []string
}

func newCSVSource(data []byte, opts IngestOptions) (*csvSource, error) {
	r, err := textReader(data, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	return &csvSource{reader: reader, header: cleanHeader(header)}, nil
}

func (s *csvSource) Next() (Row, bool, error) {
	for {
		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("invalid csv: %w", err)
		}
		if blankRecord(record) {
			continue
		}
		return buildRow(s.header, record), true, nil
	}
}

func (s *csvSource) Close() error { return nil }

// =============================================================================
// XLSX
// =============================================================================

// xlsxSource reads the first sheet with raw cell values. Numeric cells
// styled with a date format are Excel serials and are rendered back to
// timestamps, so date columns parse the same as in csv.
type xlsxSource struct {
	file     *excelize.File
	sheet    string
	rows     *excelize.Rows
	rowNum   int
	header   []string
	date1904 bool
	isDate   map[int]bool
}

func newXLSXSource(data []byte) (*xlsxSource, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, ErrEmptyFile
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}

	s := &xlsxSource{file: f, sheet: sheets[0], rows: rows, isDate: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		s.date1904 = *props.Date1904
	}
	for {
		s.rowNum++
		if !rows.Next() {
			s.Close()
			if err := rows.Error(); err != nil {
				return nil, fmt.Errorf("invalid xlsx: %w", err)
			}
			return nil, ErrEmptyFile
		}
		header, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("invalid xlsx header: %w", err)
		}
		if !blankRecord(header) {
			s.header = cleanHeader(header)
			return s, nil
		}
	}
}

func (s *xlsxSource) Next() (Row, bool, error) {
	for s.rows.Next() {
		s.rowNum++
		record, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, false, fmt.Errorf("invalid xlsx: %w", err)
		}
		if blankRecord(record) {
			continue
		}
		s.resolveDates(record)
		return buildRow(s.header, record), true, nil
	}
	if err := s.rows.Error(); err != nil {
		return nil, false, fmt.Errorf("invalid xlsx: %w", err)
	}
	return nil, false, nil
}

// resolveDates rewrites date-styled serials in record as ISO timestamps.
func (s *xlsxSource) resolveDates(record []string) {
	for i, v := range record {
		serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, s.rowNum)
		if err != nil {
			continue
		}
		styleID, err := s.file.GetCellStyle(s.sheet, cell)
		if err != nil || !s.dateStyle(styleID) {
			continue
		}
		t, err := excelize.ExcelDateToTime(serial, s.date1904)
		if err != nil {
			continue
		}
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			record[i] = t.Format("2006-01-02")
		} else {
			record[i] = t.Format("2006-01-02T15:04:05")
		}
	}
}

func (s *xlsxSource) dateStyle(id int) bool {
	if id == 0 {
		return false
	}
	if known, ok := s.isDate[id]; ok {
		return known
	}
	style, err := s.file.GetStyle(id)
	isDate := err == nil && isDateNumFmt(style)
	s.isDate[id] = isDate
	return isDate
}

// Built-in number format ids that render dates or times.
var builtinDateFmts = [][2]int{{14, 22}, {27, 36}, {45, 47}, {50, 58}, {71, 81}}

func isDateNumFmt(style *excelize.Style) bool {
	if style.CustomNumFmt != nil {
		return customDateFmt(*style.CustomNumFmt)
	}
	for _, r := range builtinDateFmts {
		if style.NumFmt >= r[0] && style.NumFmt <= r[1] {
			return true
		}
	}
	return false
}

// customDateFmt reports whether a format code has date or time tokens
// outside quoted literals and bracketed sections.
func customDateFmt(code string) bool {
	var b strings.Builder
	quoted, bracket := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '[':
			bracket = true
		case c == ']':
			bracket = false
		case bracket:
		case c == '\\':
			i++
		default:
			b.WriteByte(c)
		}
	}
	return strings.ContainsAny(strings.ToLower(b.String()), "ydhms")
}

func (s *xlsxSource) Close() error {
	var errs []error
	if s.rows != nil {
		errs = append(errs, s.rows.Close())
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}

// =============================================================================
// JSON
// =============================================================================

// jsonSource reads a top-level array of objects. Nested objects are
// flattened to dotted keys so every format reaches the normalizer in the
// same flat shape.
type jsonSource struct {
	dec  *json.Decoder
	done bool
}

func newJSONSource(data []byte) (*jsonSource, error) {
	r, err := textReader(data, EncodingUTF8)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errors.New("invalid json: expected an array of lead objects")
	}
	return &jsonSource{dec: dec}, nil
}

func (s *jsonSource) Next() (Row, bool, error) {
	if s.done {
		return nil, false, nil
	}
	if !s.dec.More() {
		s.done = true
		if _, err := s.dec.Token(); err != nil {
			return nil, false, fmt.Errorf("invalid json: %w", err)
		}
		return nil, false, nil
	}

	v, err := pathmap.DecodeValue(s.dec)
	if err != nil {
		return nil, false, fmt.Errorf("invalid json: %w", err)
	}
	if v.Kind() != pathmap.KindNested {
		return nil, false, fmt.Errorf("invalid json: array element is %s, expected an object", v.Kind())
	}
	return Row(pathmap.Flatten(v.Record(), pathmap.DefaultSep)), true, nil
}

func (s *jsonSource) Close() error { return nil }

// =============================================================================
// Helpers
// =============================================================================

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// buildRow pairs header keys with record cells. Missing or blank cells are
// nil; cells beyond the header are dropped.
func buildRow(header, record []string) Row {
	row := make(Row, 0, len(header))
	for i, key := range header {
		if key == "" {
			continue
		}
		var v any
		if i < len(record) && strings.TrimSpace(record[i]) != "" {
			v = record[i]
		}
		row = append(row, pathmap.Cell{Key: key, Value: v})
	}
	return row
}
