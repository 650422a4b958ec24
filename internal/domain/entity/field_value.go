package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type valueKind int

const (
	valueNull valueKind = iota
	valueString
	valueNumber
	valueBool
)

// FieldValue is a JSON scalar carried by human corrections and correction rules.
// The zero value is null.
type FieldValue struct {
	kind valueKind
	str  string
	num  float64
	b    bool
}

// NullValue returns the null value
func NullValue() FieldValue { return FieldValue{} }

// StringValue wraps a string literal
func StringValue(s string) FieldValue { return FieldValue{kind: valueString, str: s} }

// NumberValue wraps a numeric literal
func NumberValue(n float64) FieldValue { return FieldValue{kind: valueNumber, num: n} }

// BoolValue wraps a boolean literal
func BoolValue(b bool) FieldValue { return FieldValue{kind: valueBool, b: b} }

// IsNull reports whether the value is JSON null
func (v FieldValue) IsNull() bool { return v.kind == valueNull }

// AsString returns the string payload when the value is a string
func (v FieldValue) AsString() (string, bool) {
	return v.str, v.kind == valueString
}

// AsNumber returns the numeric payload when the value is a number
func (v FieldValue) AsNumber() (float64, bool) {
	return v.num, v.kind == valueNumber
}

// Equal reports strict equality: same kind and same payload
func (v FieldValue) Equal(other FieldValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case valueString:
		return v.str == other.str
	case valueNumber:
		return v.num == other.num
	case valueBool:
		return v.b == other.b
	default:
		return true
	}
}

// String renders the value for reasoning and correction messages
func (v FieldValue) String() string {
	switch v.kind {
	case valueString:
		return v.str
	case valueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case valueBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

// MarshalJSON implements json.Marshaler
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case valueString:
		return json.Marshal(v.str)
	case valueNumber:
		return json.Marshal(v.num)
	case valueBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler; only scalars are accepted
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = NullValue()
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
	case float64:
		*v = NumberValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return fmt.Errorf("field value must be a JSON scalar, got %s", string(data))
	}
	return nil
}
