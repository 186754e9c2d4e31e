package core

// export.go writes stored leads back out as flat files.
//
// Each lead is flattened to dotted columns in schema order with sales
// encoded as JSON text, the same shape the ingest path reads. Exporting
// and re-ingesting a file therefore reproduces the stored leads.

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/leadintake/internal/logging"
	"github.com/JonMunkholm/leadintake/internal/pathmap"
	"github.com/JonMunkholm/leadintake/internal/schema"
	"github.com/JonMunkholm/leadintake/internal/store"
)

// Sheet names used in xlsx output.
const (
	ExportSheet   = "Lead"
	TemplateSheet = "AcceptLead"
)

// ErrNoLeads is returned by Export when the filter matches nothing.
var ErrNoLeads = fmt.Errorf("no leads match the filter: %w", store.ErrNotFound)

// table is a header plus rows aligned to it.
type table struct {
	header []string
	rows   [][]any
}

// Export writes every lead matching filter to a new file in the export
// directory. The caller must remove the file.
func (p *Pipeline) Export(ctx context.Context, filter store.Filter, ext FileExt) (*ExportFile, error) {
	leads, err := p.store.FindMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, ErrNoLeads
	}

	tbl := &table{}
	for _, stored := range leads {
		cells, err := p.LeadCells(&stored.Lead)
		if err != nil {
			return nil, fmt.Errorf("export lead %d: %w", stored.ID, err)
		}
		tbl.add(cells)
	}

	name := fmt.Sprintf("lead_export_%d_%s.%s", p.now().Unix(), uuid.NewString(), ext)
	file, err := p.writeFile(name, ext, ExportSheet, tbl)
	if err != nil {
		return nil, err
	}

	p.metrics.IncrementExport(string(ext), "export")
	logging.FromContext(ctx).Info("leads exported", "file", file.Name, "rows", file.Rows)
	return file, nil
}

// Template writes a file with the lead column headers. With exampleRow it
// also holds one filled-in row, taken from the first stored lead or, when
// the store is empty, a built-in example.
func (p *Pipeline) Template(ctx context.Context, ext FileExt, exampleRow bool) (*ExportFile, error) {
	lead := schema.ExampleLead()
	if exampleRow {
		one := 1
		stored, err := p.store.FindMany(ctx, store.Filter{Take: &one})
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			lead = &stored[0].Lead
		}
	}

	cells, err := p.LeadCells(lead)
	if err != nil {
		return nil, err
	}
	tbl := &table{}
	tbl.add(cells)
	if !exampleRow {
		tbl.rows = nil
	}

	name := fmt.Sprintf("accept_lead_template_%d_%s.%s", p.now().Unix(), uuid.NewString()[:8], ext)
	file, err := p.writeFile(name, ext, TemplateSheet, tbl)
	if err != nil {
		return nil, err
	}
	p.metrics.IncrementExport(string(ext), "template")
	return file, nil
}

// LeadCells flattens a lead into export columns. applied_at is written in
// UTC at whole seconds and sales as a JSON string.
func (p *Pipeline) LeadCells(lead *schema.Lead) ([]pathmap.Cell, error) {
	out := *lead
	if out.AppliedAt != nil {
		t := out.AppliedAt.UTC().Truncate(time.Second)
		out.AppliedAt = &t
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, err
	}
	rec := pathmap.NewRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}

	sales, _ := rec.Get(p.normalize.SalesKey)
	encoded, err := encodeSalesJSON(sales.Interface())
	if err != nil {
		return nil, fmt.Errorf("encode sales: %w", err)
	}
	rec.Set(p.normalize.SalesKey, pathmap.Scalar(encoded))

	return pathmap.Flatten(rec, p.normalize.Sep), nil
}

// add appends cells as a row. New keys extend the header; missing keys are
// nil.
func (t *table) add(cells []pathmap.Cell) {
	index := make(map[string]int, len(t.header))
	for i, h := range t.header {
		index[h] = i
	}
	row := make([]any, len(t.header), len(t.header)+len(cells))
	for _, c := range cells {
		i, ok := index[c.Key]
		if !ok {
			t.header = append(t.header, c.Key)
			row = append(row, nil)
			i = len(row) - 1
			index[c.Key] = i
		}
		row[i] = c.Value
	}
	t.rows = append(t.rows, row)
	for j := range t.rows {
		for len(t.rows[j]) < len(t.header) {
			t.rows[j] = append(t.rows[j], nil)
		}
	}
}

func (p *Pipeline) writeFile(name string, ext FileExt, sheet string, tbl *table) (*ExportFile, error) {
	dir := p.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, name)

	var err error
	switch ext {
	case ExtCSV:
		err = writeCSV(path, tbl)
	case ExtXLSX:
		err = writeXLSX(path, sheet, tbl)
	case ExtJSON:
		err = writeJSON(path, tbl)
	default:
		return nil, &UnsupportedFileTypeError{Ext: string(ext)}
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write %s file: %w", ext, err)
	}
	return &ExportFile{Path: path, Name: name, Ext: ext, Rows: len(tbl.rows)}, nil
}

func writeCSV(path string, tbl *table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tbl.header); err != nil {
		return err
	}
	record := make([]string, len(tbl.header))
	for _, row := range tbl.rows {
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeXLSX(path, sheet string, tbl *table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	header := make([]any, len(tbl.header))
	for i, h := range tbl.header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for r, row := range tbl.rows {
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = xlsxValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func writeJSON(path string, tbl *table) error {
	records := make([]*pathmap.Record, len(tbl.rows))
	for r, row := range tbl.rows {
		rec := pathmap.NewRecord()
		for i, v := range row {
			rec.Set(tbl.header[i], pathmap.Scalar(v))
		}
		records[r] = rec
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// formatCell renders a value as CSV text.
func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

// xlsxValue keeps numbers numeric in the workbook.
func xlsxValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
