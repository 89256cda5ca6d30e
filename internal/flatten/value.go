package flatten

import (
	json "github.com/goccy/go-json"
)

// Kind says how many times a tag was seen.
type Kind int

const (
	Absent Kind = iota
	Single
	Multiple
)

// Value is an extracted field: absent, a single string, or an ordered list
// once the tag repeats.
type Value struct {
	kind   Kind
	values []string
}

// Add returns v with s appended. Absent becomes Single, Single becomes
// Multiple; a Multiple stays Multiple.
func (v Value) Add(s string) Value {
	next := Value{values: make([]string, 0, len(v.values)+1)}
	next.values = append(next.values, v.values...)
	next.values = append(next.values, s)
	switch v.kind {
	case Absent:
		next.kind = Single
	default:
		next.kind = Multiple
	}
	return next
}

// Kind returns the variant.
func (v Value) Kind() Kind {
	return v.kind
}

// Values returns the extracted strings in file order.
func (v Value) Values() []string {
	out := make([]string, len(v.values))
	copy(out, v.values)
	return out
}

// MarshalJSON encodes Absent as null, Single as a string and Multiple as an
// array.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Single:
		return json.Marshal(v.values[0])
	case Multiple:
		return json.Marshal(v.values)
	default:
		return []byte("null"), nil
	}
}
