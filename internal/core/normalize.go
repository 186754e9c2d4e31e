package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/JonMunkholm/leadintake/internal/pathmap"
	"github.com/JonMunkholm/leadintake/internal/schema"
)

// NormalizeOptions controls how flat rows become nested records.
type NormalizeOptions struct {
	Sep      string // path separator, default "."
	SalesKey string // column holding the JSON-encoded sales list, default "sales"
}

func (o NormalizeOptions) withDefaults() NormalizeOptions {
	if o.Sep == "" {
		o.Sep = pathmap.DefaultSep
	}
	if o.SalesKey == "" {
		o.SalesKey = schema.PathSales
	}
	return o
}

// NormalizeRow builds the nested record for one row. Cells are applied in
// column order; a path collision is returned as *RowError carrying index.
//
// The sales cell is decoded from its JSON text into a list. Blank sales
// become an empty list; text that is not JSON is kept as-is so the
// validator can report it.
func NormalizeRow(index int, row Row, opts NormalizeOptions) (*pathmap.Record, error) {
	opts = opts.withDefaults()
	rec := pathmap.NewRecord()

	for _, cell := range row {
		path := pathmap.Split(cell.Key, opts.Sep)

		var err error
		if cell.Key == opts.SalesKey {
			err = pathmap.SetValue(rec, path, decodeSales(cell.Value))
		} else {
			err = pathmap.SetPath(rec, path, cell.Value)
		}
		if err != nil {
			return nil, &RowError{Index: index, Err: err}
		}
	}
	return rec, nil
}

func decodeSales(v any) pathmap.Value {
	switch t := v.(type) {
	case nil:
		return pathmap.List()
	case pathmap.Value:
		if t.IsNull() {
			return pathmap.List()
		}
		return t
	case []any:
		return pathmap.ValueOf(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return pathmap.List()
		}
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		decoded, err := pathmap.DecodeValue(dec)
		if err != nil || dec.More() {
			return pathmap.Scalar(t)
		}
		return decoded
	default:
		// NaN and other scalars fall through to Scalar's own handling.
		sv := pathmap.Scalar(v)
		if sv.IsNull() {
			return pathmap.List()
		}
		return sv
	}
}

// collisionFailure converts a normalization error into a row failure.
func collisionFailure(err error) (RowFailure, bool) {
	var rowErr *RowError
	if !errors.As(err, &rowErr) {
		return RowFailure{}, false
	}
	fe := FieldError{Message: rowErr.Err.Error()}
	var collision *pathmap.PathCollisionError
	if errors.As(rowErr.Err, &collision) {
		fe.Path = strings.Join(collision.Path, pathmap.DefaultSep)
	}
	return RowFailure{Row: rowErr.Index + 1, Errors: []FieldError{fe}}, true
}

// encodeSalesJSON renders a sales value as compact JSON text for tabular
// export. Non-ASCII text is written as-is.
func encodeSalesJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if v == nil {
		v = []any{}
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
