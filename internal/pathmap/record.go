package pathmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Record is an insertion-ordered mapping from key to Value.
// The zero Record is empty and ready to use.
type Record struct {
	keys   []string
	values map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]Value)}
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	if r == nil || r.values == nil {
		return Value{}, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Set stores v under key. An existing key keeps its position.
func (r *Record) Set(key string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Delete removes key if present.
func (r *Record) Delete(key string) {
	if r == nil || r.values == nil {
		return
	}
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Lookup follows path through nested records.
func (r *Record) Lookup(path ...string) (Value, bool) {
	cur := r
	for i, key := range path {
		v, ok := cur.Get(key)
		if !ok {
			return Value{}, false
		}
		if i == len(path)-1 {
			return v, true
		}
		if v.Kind() != KindNested {
			return Value{}, false
		}
		cur = v.Record()
	}
	return Nested(r), true
}

// Clone returns a deep copy. Scalars are shared.
func (r *Record) Clone() *Record {
	out := NewRecord()
	if r == nil {
		return out
	}
	for _, k := range r.keys {
		out.Set(k, cloneValue(r.values[k]))
	}
	return out
}

func cloneValue(v Value) Value {
	switch v.kind {
	case KindNested:
		return Nested(v.nested.Clone())
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = cloneValue(item)
		}
		return List(items...)
	default:
		return v
	}
}

// ToMap converts the record into plain Go maps, slices and scalars.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, r.Len())
	if r == nil {
		return out
	}
	for _, k := range r.keys {
		out[k] = r.values[k].Interface()
	}
	return out
}

// FromMap builds a record from plain Go data. Map keys are inserted in
// sorted order at every level.
func FromMap(m map[string]any) *Record {
	rec := NewRecord()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.Set(k, ValueOf(m[k]))
	}
	return rec
}

// MarshalJSON encodes the record as a JSON object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := r.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order from the input.
// Numbers are kept as json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := DecodeValue(dec)
	if err != nil {
		return err
	}
	if v.Kind() != KindNested {
		return fmt.Errorf("pathmap: expected JSON object, got %s", v.Kind())
	}
	*r = *v.Record()
	return nil
}

// DecodeValue reads one JSON value from dec, preserving object key order.
// The decoder should have UseNumber set so numbers arrive as json.Number.
func DecodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFrom(dec, tok)
}

func decodeFrom(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec := NewRecord()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("pathmap: unexpected object key %v", kt)
				}
				v, err := DecodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				rec.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Nested(rec), nil
		case '[':
			items := []Value{}
			for dec.More() {
				v, err := DecodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		default:
			return Value{}, fmt.Errorf("pathmap: unexpected delimiter %q", t)
		}
	default:
		return Scalar(tok), nil
	}
}
