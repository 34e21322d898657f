package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
)

var intType = reflect.TypeOf(int64(0))

// OptionalInt tracks a JSON integer field that may be absent, explicitly null, or a value.
// Set is true once the key appeared in the document; Valid is true only for a non-null value.
type OptionalInt struct {
	Set   bool
	Valid bool
	Value int64
}

// Int builds a present, non-null OptionalInt.
func Int(v int64) OptionalInt {
	return OptionalInt{Set: true, Valid: true, Value: v}
}

// Null builds a present OptionalInt carrying null.
func Null() OptionalInt {
	return OptionalInt{Set: true}
}

// Ptr returns the value as a pointer, nil when absent or null.
func (o OptionalInt) Ptr() *int64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// UnmarshalJSON is only invoked when the key is present, which is what sets Set.
func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Valid = false
		o.Value = 0
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f != float64(int64(f)) {
			return &json.UnmarshalTypeError{Value: "number " + n.String(), Type: intType}
		}
		v = int64(f)
	}
	o.Valid = true
	o.Value = v
	return nil
}

// MarshalJSON renders null for absent and null values.
func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(o.Value, 10)), nil
}
