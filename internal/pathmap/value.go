// Package pathmap converts between flat rows keyed by delimited paths
// ("user.first_name") and nested, insertion-ordered records.
//
// Spreadsheets and CSV files can only carry one value per cell, so nested
// lead records travel through them as dotted column names. [SetPath] builds
// the nested shape one cell at a time and [Flatten] walks it back out.
//
// # Values
//
// Every slot in a [Record] holds a tagged [Value]: null, scalar, nested
// record or list. Callers never have to type-switch on a generic container
// to find out whether a key holds a sub-record.
//
// # Collisions
//
// A key can hold either a scalar or a nested record, never both. Writing
// "a.b" after "a" (or "a" after "a.b") fails with [*PathCollisionError].
// Writing the same scalar key twice keeps the latest value.
package pathmap

import (
	"encoding/json"
	"math"
	"sort"
)

// Kind identifies what a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindNested
	KindList
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindNested:
		return "nested"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a tagged slot in a Record.
// The zero Value is null.
type Value struct {
	kind   Kind
	scalar any
	nested *Record
	list   []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Scalar wraps a leaf value. nil and floating-point NaN become null.
func Scalar(v any) Value {
	if v == nil || isNaN(v) {
		return Value{}
	}
	return Value{kind: KindScalar, scalar: v}
}

// Nested wraps a sub-record. A nil record becomes null.
func Nested(r *Record) Value {
	if r == nil {
		return Value{}
	}
	return Value{kind: KindNested, nested: r}
}

// List wraps an ordered list of values.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Kind reports what the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Scalar returns the leaf value, or nil for non-scalars.
func (v Value) Scalar() any { return v.scalar }

// Record returns the sub-record, or nil for non-nested values.
func (v Value) Record() *Record { return v.nested }

// Items returns the list elements, or nil for non-lists.
func (v Value) Items() []Value { return v.list }

// Interface converts the value into plain Go data: nil, the scalar,
// map[string]any for nested records and []any for lists.
func (v Value) Interface() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindNested:
		return v.nested.ToMap()
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the value as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNested:
		return v.nested.MarshalJSON()
	case KindList:
		return json.Marshal(v.list)
	case KindScalar:
		return json.Marshal(v.scalar)
	default:
		return []byte("null"), nil
	}
}

// ValueOf tags arbitrary Go data. Values pass through unchanged,
// *Record becomes nested, map[string]any becomes a nested record with
// keys in sorted order, []any becomes a list, and everything else is a
// scalar (with NaN coerced to null).
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case *Record:
		return Nested(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := NewRecord()
		for _, k := range keys {
			rec.Set(k, ValueOf(t[k]))
		}
		return Nested(rec)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = ValueOf(item)
		}
		return List(items...)
	default:
		return Scalar(x)
	}
}

func isNaN(v any) bool {
	switch f := v.(type) {
	case float64:
		return math.IsNaN(f)
	case float32:
		return math.IsNaN(float64(f))
	}
	return false
}
