package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	// KindInvalid marks the zero Value.
	KindInvalid ValueKind = iota
	// KindString holds a scalar string.
	KindString
	// KindNumber holds a scalar number.
	KindNumber
	// KindList holds an ordered list of scalar values.
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Value is a property or attribute value. Property typing is open-ended, so a
// value is one of a scalar string, a scalar number or a list of scalars.
type Value struct {
	kind  ValueKind
	str   string
	num   float64
	items []Value
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int returns a numeric value holding an integer.
func Int(i int64) Value { return Value{kind: KindNumber, num: float64(i)} }

// List returns a list value. Nested lists are flattened out of the contract:
// only scalar items are accepted and any list item makes the result invalid.
func List(items ...Value) Value {
	out := make([]Value, 0, len(items))
	for _, it := range items {
		if it.kind != KindString && it.kind != KindNumber {
			return Value{}
		}
		out = append(out, it)
	}
	return Value{kind: KindList, items: out}
}

// Kind reports the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// Valid reports whether v holds a value.
func (v Value) Valid() bool { return v.kind != KindInvalid }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether v is a number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Items returns a copy of the list payload and whether v is a list.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]Value(nil), v.items...), true
}

// IsInteger reports whether v is a number without a fractional part.
func (v Value) IsInteger() bool {
	return v.kind == KindNumber && !math.IsInf(v.num, 0) && v.num == math.Trunc(v.num)
}

// Finite reports whether v holds a value and every number in it is finite.
// NaN and infinities cannot be stored.
func (v Value) Finite() bool {
	switch v.kind {
	case KindNumber:
		return !math.IsNaN(v.num) && !math.IsInf(v.num, 0)
	case KindList:
		for _, it := range v.items {
			if !it.Finite() {
				return false
			}
		}
		return true
	default:
		return v.kind == KindString
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Interface returns the value as plain Go data (string, float64 or []any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindList:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Interface()
		}
		return out
	default:
		return nil
	}
}

// GoString renders v for diagnostics.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindList:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes the variant as a JSON string, number or array.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("value: unsupported number %v", v.num)
		}
		return json.Marshal(v.num)
	case KindList:
		return json.Marshal(v.items)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON string, number or array of scalars.
func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts plain Go data into a Value. Supported inputs are strings,
// Go numeric types, json.Number, Value and slices of scalars.
func ValueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case Value:
		if !x.Valid() {
			return Value{}, fmt.Errorf("value: invalid value")
		}
		return x, nil
	case string:
		return String(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: %w", err)
		}
		return Number(f), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = String(s)
		}
		return List(items...), nil
	case []float64:
		items := make([]Value, len(x))
		for i, f := range x {
			items[i] = Number(f)
		}
		return List(items...), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, it := range x {
			iv, err := ValueOf(it)
			if err != nil {
				return Value{}, err
			}
			if iv.kind == KindList {
				return Value{}, fmt.Errorf("value: nested lists are not supported")
			}
			items = append(items, iv)
		}
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", raw)
	}
}

// Properties maps property names to values.
type Properties map[string]Value

// Clone returns a copy of p.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the sorted property names.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Name returns the "name" property when it is a string.
func (p Properties) Name() string {
	if v, ok := p[PropertyName]; ok {
		if s, ok := v.Str(); ok {
			return s
		}
	}
	return ""
}
