package pathmap

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSep joins path segments in flat column names.
const DefaultSep = "."

// ErrEmptyPath is returned when SetPath receives no segments.
var ErrEmptyPath = errors.New("pathmap: empty path")

// PathCollisionError reports a key that would have to hold both a scalar
// and a nested record.
type PathCollisionError struct {
	Path []string // full path being written
	At   string   // key where the conflict was found
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("dictionary key already occupied: %q (writing %q)",
		e.At, strings.Join(e.Path, DefaultSep))
}

// Split breaks a flat key into path segments. Empty segments are kept.
func Split(key, sep string) []string {
	if sep == "" {
		sep = DefaultSep
	}
	return strings.Split(key, sep)
}

// SetPath stores a plain value at path, creating intermediate records as
// needed. NaN and nil become null.
func SetPath(rec *Record, path []string, v any) error {
	return SetValue(rec, path, Scalar(v))
}

// SetValue stores an already tagged value at path.
//
// A scalar or null sitting on an intermediate key, a nested record sitting
// on the final key, or a nested value written over a scalar are all
// collisions. A scalar written over a scalar replaces it.
func SetValue(rec *Record, path []string, v Value) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	cur := rec
	for _, key := range path[:len(path)-1] {
		existing, ok := cur.Get(key)
		if !ok {
			next := NewRecord()
			cur.Set(key, Nested(next))
			cur = next
			continue
		}
		if existing.Kind() != KindNested {
			return &PathCollisionError{Path: path, At: key}
		}
		cur = existing.Record()
	}

	last := path[len(path)-1]
	if existing, ok := cur.Get(last); ok {
		if existing.Kind() == KindNested {
			return &PathCollisionError{Path: path, At: last}
		}
		if v.Kind() == KindNested {
			return &PathCollisionError{Path: path, At: last}
		}
	}
	cur.Set(last, v)
	return nil
}

// Cell is one flattened key/value pair.
type Cell struct {
	Key   string
	Value any
}

// Flatten walks rec depth-first in insertion order and joins nested keys
// with sep. Lists are emitted as single leaves holding []any, so callers
// that need a tabular cell should encode them first.
func Flatten(rec *Record, sep string) []Cell {
	if sep == "" {
		sep = DefaultSep
	}
	var out []Cell
	flattenInto(&out, rec, nil, sep)
	return out
}

func flattenInto(out *[]Cell, rec *Record, prefix []string, sep string) {
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		path := append(prefix[:len(prefix):len(prefix)], k)
		if v.Kind() == KindNested {
			// An empty sub-record has no leaves and vanishes from the flat form.
			flattenInto(out, v.Record(), path, sep)
			continue
		}
		key := strings.Join(path, sep)
		*out = append(*out, Cell{Key: key, Value: v.Interface()})
	}
}

// Unflatten builds a nested record from flat cells, applying SetPath in
// order.
func Unflatten(cells []Cell, sep string) (*Record, error) {
	rec := NewRecord()
	for _, c := range cells {
		if err := SetPath(rec, Split(c.Key, sep), c.Value); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
