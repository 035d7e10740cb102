package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a configuration value. The set of implementations is closed:
// String, Scalar, Opaque and *Tree.
type Value interface {
	isValue()
}

// String is a textual scalar. Only strings may carry placeholders.
type String string

// Scalar holds a non-string scalar: a number, a boolean or nil (null).
// Numbers decoded from JSON documents are kept as json.Number so their
// literal text survives a round trip.
type Scalar struct {
	V any
}

// Opaque wraps a handle (a function, a struct pointer, ...) that is carried
// through the tree without ever being inspected.
type Opaque struct {
	V any
}

func (String) isValue() {}
func (Scalar) isValue() {}
func (Opaque) isValue() {}

// Null returns the null scalar.
func Null() Scalar { return Scalar{} }

// Bool wraps a boolean scalar.
func Bool(b bool) Scalar { return Scalar{V: b} }

// Int wraps an integer scalar.
func Int(i int64) Scalar { return Scalar{V: i} }

// Float wraps a floating point scalar.
func Float(f float64) Scalar { return Scalar{V: f} }

// IsNull reports whether the scalar is null.
func (s Scalar) IsNull() bool { return s.V == nil }

// Text renders the scalar the way it appears when interpolated into a
// string. Null renders as the empty string. Booleans render as "true" or
// "false", never as "1" or the empty string.
func (s Scalar) Text() string {
	switch v := s.V.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// MarshalJSON encodes the scalar as its JSON literal.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if n, ok := s.V.(json.Number); ok {
		return []byte(n.String()), nil
	}
	return json.Marshal(s.V)
}

// Text renders the opaque handle with fmt's default formatting.
func (o Opaque) Text() string {
	return fmt.Sprint(o.V)
}

// MarshalJSON encodes the wrapped handle with encoding/json; handles that
// have no JSON form (functions, channels) produce an error.
func (o Opaque) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.V)
}

// Text renders any value as interpolation text. Trees render as JSON.
func Text(v Value) string {
	switch tv := v.(type) {
	case String:
		return string(tv)
	case Scalar:
		return tv.Text()
	case Opaque:
		return tv.Text()
	case *Tree:
		data, err := json.Marshal(tv)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// Clone returns a deep copy of trees and the value itself otherwise. Opaque
// handles keep their identity.
func Clone(v Value) Value {
	if t, ok := v.(*Tree); ok {
		return t.Clone()
	}
	return v
}
