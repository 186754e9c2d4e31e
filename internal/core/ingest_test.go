package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/JonMunkholm/leadintake/internal/pathmap"
)

// drain reads every row from a RowSource.
func drain(t *testing.T, ext FileExt, data []byte, opts IngestOptions) []Row {
	t.Helper()
	src, err := OpenTable(ext, data, opts)
	require.NoError(t, err)
	defer src.Close()

	var rows []Row
	for {
		row, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

func rowMap(row Row) map[string]any {
	m := make(map[string]any, len(row))
	for _, c := range row {
		m[c.Key] = c.Value
	}
	return m
}

func rowKeys(row Row) []string {
	keys := make([]string, len(row))
	for i, c := range row {
		keys[i] = c.Key
	}
	return keys
}

// ============================================================================
// ParseExt
// ============================================================================

func TestParseExt(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		want    FileExt
		wantErr bool
	}{
		{"csv", "leads.csv", ExtCSV, false},
		{"upper case", "LEADS.XLSX", ExtXLSX, false},
		{"json", "export.2024.json", ExtJSON, false},
		{"txt", "leads.txt", "", true},
		{"legacy xls", "leads.xls", "", true},
		{"no extension", "leads", "", true},
		{"trailing dot", "leads.", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExt(tt.file)
			if tt.wantErr {
				var typeErr *UnsupportedFileTypeError
				require.True(t, errors.As(err, &typeErr))
				assert.Equal(t, tt.file, typeErr.FileName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ============================================================================
// CSV
// ============================================================================

func TestCSVSource(t *testing.T) {
	data := []byte("\ufeffstream, user.phone ,sales\n" +
		"web01,79990000000,\"[{\"\"campaignID\"\":\"\"c1\"\"}]\"\n" +
		",,\n" +
		"\n" +
		"web02,,\n")

	rows := drain(t, ExtCSV, data, IngestOptions{})
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"stream", "user.phone", "sales"}, rowKeys(rows[0]))
	assert.Equal(t, map[string]any{
		"stream":     "web01",
		"user.phone": "79990000000",
		"sales":      `[{"campaignID":"c1"}]`,
	}, rowMap(rows[0]))
	assert.Equal(t, map[string]any{"stream": "web02", "user.phone": nil, "sales": nil}, rowMap(rows[1]))
}

func TestCSVSource_Windows1251(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().Bytes([]byte("user.first_name;stream\nИван;web01\n"))
	require.NoError(t, err)

	rows := drain(t, ExtCSV, encoded, IngestOptions{Encoding: "windows-1251", Delimiter: ';'})
	require.Len(t, rows, 1)
	assert.Equal(t, "Иван", rowMap(rows[0])["user.first_name"])
}

func TestCSVSource_Errors(t *testing.T) {
	_, err := OpenTable(ExtCSV, []byte("a,b\n1,2\n"), IngestOptions{Encoding: "koi8-r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding error")

	_, err = OpenTable(ExtCSV, []byte("   \n"), IngestOptions{})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

// ============================================================================
// XLSX
// ============================================================================

func xlsxBytes(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestXLSXSource(t *testing.T) {
	data := xlsxBytes(t,
		[]any{"stream", "user.phone", "credit.amount"},
		[]any{"web01", int64(79990000000), 1500.5},
		[]any{"", "", ""},
		[]any{"web02", "79990000001"},
	)

	rows := drain(t, ExtXLSX, data, IngestOptions{})
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{
		"stream":        "web01",
		"user.phone":    "79990000000",
		"credit.amount": "1500.5",
	}, rowMap(rows[0]))
	assert.Equal(t, map[string]any{
		"stream":        "web02",
		"user.phone":    "79990000001",
		"credit.amount": nil,
	}, rowMap(rows[1]))
}

func TestXLSXSource_DateCells(t *testing.T) {
	data := xlsxBytes(t,
		[]any{"applied_at", "user.birth_date", "user.phone"},
		[]any{
			time.Date(2024, time.June, 1, 12, 30, 15, 0, time.UTC),
			time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
			int64(79990000000),
		},
	)

	rows := drain(t, ExtXLSX, data, IngestOptions{})
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{
		"applied_at":      "2024-06-01T12:30:15",
		"user.birth_date": "1990-01-01",
		"user.phone":      "79990000000",
	}, rowMap(rows[0]))
}

func TestCustomDateFmt(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"dd.mm.yyyy", true},
		{"yyyy-mm-dd hh:mm:ss", true},
		{"[$-419]d mmmm yyyy", true},
		{"#,##0.00", false},
		{`0" days"`, false},
		{"[Red]0.00", false},
		{`\d0`, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, customDateFmt(tt.code))
		})
	}
}

func TestXLSXSource_Invalid(t *testing.T) {
	_, err := OpenTable(ExtXLSX, []byte("not a zip archive"), IngestOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid xlsx")
}

// ============================================================================
// JSON
// ============================================================================

func TestJSONSource(t *testing.T) {
	data := []byte(`[
		{"stream": "web01", "user": {"phone": 79990000000, "last_name": null}, "sales": [{"campaignID": "c1"}]},
		{"user.phone": "79990000001", "stream": "web02"}
	]`)

	rows := drain(t, ExtJSON, data, IngestOptions{})
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"stream", "user.phone", "user.last_name", "sales"}, rowKeys(rows[0]))
	first := rowMap(rows[0])
	assert.Equal(t, json.Number("79990000000"), first["user.phone"])
	assert.Nil(t, first["user.last_name"])

	assert.Equal(t, []string{"user.phone", "stream"}, rowKeys(rows[1]))
}

func TestJSONSource_Invalid(t *testing.T) {
	tests := map[string]string{
		"object":        `{"stream":"web01"}`,
		"truncated":     `[{"stream":"web01"`,
		"scalar member": `[1, 2]`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			src, err := OpenTable(ExtJSON, []byte(body), IngestOptions{})
			if err == nil {
				defer src.Close()
				_, _, err = src.Next()
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid json")
		})
	}
}

// ============================================================================
// Normalize
// ============================================================================

func TestNormalizeRow(t *testing.T) {
	row := Row{
		{Key: "stream", Value: "web01"},
		{Key: "user.phone", Value: "79990000000"},
		{Key: "user.email", Value: nil},
		{Key: "sales", Value: `[{"campaignID":"c1"},{"campaignID":2}]`},
	}

	rec, err := NormalizeRow(0, row, NormalizeOptions{})
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"stream": "web01",
		"user": {"phone": "79990000000", "email": null},
		"sales": [{"campaignID": "c1"}, {"campaignID": 2}]
	}`, string(data))
	assert.Equal(t, []string{"stream", "user", "sales"}, rec.Keys())
}

func TestNormalizeRow_Sales(t *testing.T) {
	tests := []struct {
		name string
		cell any
		kind pathmap.Kind
	}{
		{"blank", nil, pathmap.KindList},
		{"empty text", "  ", pathmap.KindList},
		{"json list", `[]`, pathmap.KindList},
		{"not json", "campaign1", pathmap.KindScalar},
		{"trailing garbage", `[] []`, pathmap.KindScalar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NormalizeRow(0, Row{{Key: "sales", Value: tt.cell}}, NormalizeOptions{})
			require.NoError(t, err)
			v, ok := rec.Get("sales")
			require.True(t, ok)
			assert.Equal(t, tt.kind, v.Kind())
		})
	}
}

func TestNormalizeRow_Collision(t *testing.T) {
	row := Row{
		{Key: "user", Value: "x"},
		{Key: "user.phone", Value: "79990000000"},
	}

	_, err := NormalizeRow(4, row, NormalizeOptions{})

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 4, rowErr.Index)

	var collision *pathmap.PathCollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, "user", collision.At)

	failure, ok := collisionFailure(err)
	require.True(t, ok)
	assert.Equal(t, 5, failure.Row)
	assert.Equal(t, "user.phone", failure.Errors[0].Path)
}

func TestNormalizeRow_CustomSeparator(t *testing.T) {
	rec, err := NormalizeRow(0, Row{{Key: "user/phone", Value: "1"}}, NormalizeOptions{Sep: "/"})
	require.NoError(t, err)
	v, ok := rec.Lookup("user", "phone")
	require.True(t, ok)
	assert.Equal(t, "1", v.Scalar())
}

func TestEncodeSalesJSON(t *testing.T) {
	got, err := encodeSalesJSON([]any{map[string]any{"campaignID": "кампания<1>"}})
	require.NoError(t, err)
	assert.Equal(t, `[{"campaignID":"кампания<1>"}]`, got)

	got, err = encodeSalesJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", got)

	// JSON cells survive a round trip through the row reader.
	var buf bytes.Buffer
	buf.WriteString("sales\n\"" + `[{""campaignID"":""c1""}]` + "\"\n")
	rows := drain(t, ExtCSV, buf.Bytes(), IngestOptions{})
	rec, err := NormalizeRow(0, rows[0], NormalizeOptions{})
	require.NoError(t, err)
	v, _ := rec.Get("sales")
	assert.Equal(t, pathmap.KindList, v.Kind())
}
