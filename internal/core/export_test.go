package core

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/leadintake/internal/schema"
	"github.com/JonMunkholm/leadintake/internal/store"
)

func seededPipeline(t *testing.T, leads ...*schema.Lead) (*Pipeline, string) {
	t.Helper()
	s := store.NewMemoryStore()
	if len(leads) > 0 {
		_, err := s.CreateMany(context.Background(), leads)
		require.NoError(t, err)
	}
	dir := t.TempDir()
	return NewPipeline(s, WithTempDir(dir)), dir
}

func storedLeadsJSON(t *testing.T, s store.Store) string {
	t.Helper()
	stored, err := s.FindMany(context.Background(), store.Filter{})
	require.NoError(t, err)
	leads := make([]schema.Lead, len(stored))
	for i, sl := range stored {
		leads[i] = sl.Lead
	}
	data, err := json.Marshal(leads)
	require.NoError(t, err)
	return string(data)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

// ============================================================================
// Export
// ============================================================================

func TestExport_ReingestReproducesLeads(t *testing.T) {
	leads := sampleLeads(2)
	leads[1].Meta.IsTest = false
	leads[1].Sales = []schema.Sale{{CampaignID: "c1"}, {CampaignID: "c2"}}

	for _, ext := range SupportedExts {
		t.Run(string(ext), func(t *testing.T) {
			p, dir := seededPipeline(t, leads...)
			original := storedLeadsJSON(t, p.store)

			file, err := p.Export(context.Background(), store.Filter{}, ext)
			require.NoError(t, err)
			assert.Equal(t, dir, filepath.Dir(file.Path))
			assert.Equal(t, 2, file.Rows)
			assert.True(t, strings.HasPrefix(file.Name, "lead_export_"))
			assert.True(t, strings.HasSuffix(file.Name, "."+string(ext)))

			data, err := os.ReadFile(file.Path)
			require.NoError(t, err)

			target := store.NewMemoryStore()
			result, err := NewPipeline(target).Ingest(context.Background(), file.Name, data, IngestOptions{})
			require.NoError(t, err)
			assert.Equal(t, 2, result.Created)

			assert.JSONEq(t, original, storedLeadsJSON(t, target))
		})
	}
}

func TestExport_FilteredColumns(t *testing.T) {
	leads := sampleLeads(3)
	leads[1].Stream = "other"
	p, _ := seededPipeline(t, leads...)

	file, err := p.Export(context.Background(), store.Filter{Where: json.RawMessage(`{"stream":"other"}`)}, ExtCSV)
	require.NoError(t, err)

	records := readCSV(t, file.Path)
	require.Len(t, records, 2)
	header := records[0]
	assert.Equal(t, []string{"type", "api_token", "product", "stream", "applied_at"}, header[:5])
	assert.NotContains(t, header, "id")
	assert.NotContains(t, header, "created_at")

	col := make(map[string]string, len(header))
	for i, h := range header {
		col[h] = records[1][i]
	}
	assert.Equal(t, "other", col["stream"])
	assert.Equal(t, "79990000002", col["user.phone"])
	assert.Equal(t, "2024-06-01T12:00:00Z", col["applied_at"])
	assert.Equal(t, `[{"campaignID":"campaign1"}]`, col["sales"])
	assert.Equal(t, "Иван", col["user.first_name"])
}

func TestExport_NoLeads(t *testing.T) {
	p, dir := seededPipeline(t)

	_, err := p.Export(context.Background(), store.Filter{}, ExtCSV)
	assert.ErrorIs(t, err, ErrNoLeads)
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file is left behind")
}

func TestExport_UnsupportedFormat(t *testing.T) {
	p, _ := seededPipeline(t, sampleLeads(1)...)

	_, err := p.Export(context.Background(), store.Filter{}, FileExt("pdf"))
	var typeErr *UnsupportedFileTypeError
	assert.True(t, errors.As(err, &typeErr))
}

// ============================================================================
// Template
// ============================================================================

func TestTemplate_HeaderOnly(t *testing.T) {
	p, _ := seededPipeline(t)

	file, err := p.Template(context.Background(), ExtCSV, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(file.Name, "accept_lead_template_"))
	assert.Equal(t, 0, file.Rows)

	records := readCSV(t, file.Path)
	require.Len(t, records, 1)

	cells, err := p.LeadCells(schema.ExampleLead())
	require.NoError(t, err)
	want := make([]string, len(cells))
	for i, c := range cells {
		want[i] = c.Key
	}
	assert.Equal(t, want, records[0])
}

func TestTemplate_ExampleRowUsesStoredLead(t *testing.T) {
	lead := schema.ExampleLead()
	lead.Stream = "fromstore"
	p, _ := seededPipeline(t, lead)

	file, err := p.Template(context.Background(), ExtXLSX, true)
	require.NoError(t, err)
	assert.Equal(t, 1, file.Rows)

	f, err := excelize.OpenFile(file.Path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{TemplateSheet}, f.GetSheetList())
	rows, err := f.GetRows(TemplateSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "stream", rows[0][3])
	assert.Equal(t, "fromstore", rows[1][3])
}

func TestTemplate_ExampleRowFallsBackToBuiltIn(t *testing.T) {
	p, _ := seededPipeline(t)

	file, err := p.Template(context.Background(), ExtJSON, true)
	require.NoError(t, err)

	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "stream1", rows[0]["stream"])
	assert.Equal(t, `[{"campaignID":"campaign1"}]`, rows[0]["sales"])

	// A template with an example row is itself a valid upload.
	_, err = NewPipeline(store.NewMemoryStore()).Ingest(context.Background(), file.Name, data, IngestOptions{})
	assert.NoError(t, err)
}
