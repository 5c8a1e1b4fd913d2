package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// ValueKind discriminates the arms of Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueBool
	ValueInt
	ValueFloat
	ValueDecimal
	ValueList
	ValueTime
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueString:
		return "string"
	case ValueBool:
		return "bool"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueDecimal:
		return "decimal"
	case ValueList:
		return "list"
	case ValueTime:
		return "time"
	}
	return "unknown"
}

// Value is the typed form of a custom field value. It is a tagged variant:
// exactly one arm is populated, selected by Kind. The zero Value is null.
//
// Stored forms per field type: string/select/user → string arm,
// boolean → bool, numeric → int, float or decimal, tags → list,
// datetime → time (UTC), image → int (attachment number).
type Value struct {
	kind ValueKind
	str  string
	b    bool
	i    int64
	f    float64
	list []string
	t    time.Time
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// StringValue wraps a string arm.
func StringValue(s string) Value { return Value{kind: ValueString, str: s} }

// BoolValue wraps a bool arm.
func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

// IntValue wraps an int arm.
func IntValue(i int64) Value { return Value{kind: ValueInt, i: i} }

// FloatValue wraps a float arm.
func FloatValue(f float64) Value { return Value{kind: ValueFloat, f: f} }

// DecimalValue wraps a decimal arm. The string must already be a valid
// decimal literal; ParseDecimal validates raw input.
func DecimalValue(s string) Value { return Value{kind: ValueDecimal, str: s} }

// ListValue wraps a list arm.
func ListValue(items []string) Value { return Value{kind: ValueList, list: items} }

// TimeValue wraps a time arm, normalized to UTC.
func TimeValue(t time.Time) Value { return Value{kind: ValueTime, t: t.UTC()} }

// ParseDecimal validates s as a plain decimal literal and returns its Value.
func ParseDecimal(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "/eE") {
		return Value{}, fmt.Errorf("invalid decimal: %q", s)
	}
	if _, ok := new(big.Rat).SetString(s); !ok {
		return Value{}, fmt.Errorf("invalid decimal: %q", s)
	}
	return DecimalValue(s), nil
}

// Kind reports which arm is populated.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == ValueNull }

// Str returns the string arm (string, select, user and decimal values).
func (v Value) Str() string { return v.str }

// Bool returns the bool arm.
func (v Value) Bool() bool { return v.b }

// Int returns the int arm.
func (v Value) Int() int64 { return v.i }

// Float returns the float arm.
func (v Value) Float() float64 { return v.f }

// List returns the list arm.
func (v Value) List() []string { return v.list }

// Time returns the time arm.
func (v Value) Time() time.Time { return v.t }

// AsFloat converts any numeric arm to float64 for range checks.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case ValueInt:
		return float64(v.i), true
	case ValueFloat:
		return v.f, true
	case ValueDecimal:
		r, ok := new(big.Rat).SetString(v.str)
		if !ok {
			return 0, false
		}
		f, _ := r.Float64()
		return f, true
	}
	return 0, false
}

// Canonical returns the canonical string form of the value: the form that,
// parsed back through the owning field definition, yields an equal Value.
func (v Value) Canonical() string {
	switch v.kind {
	case ValueNull:
		return ""
	case ValueString, ValueDecimal:
		return v.str
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueList:
		return strings.Join(v.list, ", ")
	case ValueTime:
		return v.t.UTC().Format("2006-01-02T15:04:05Z")
	}
	return ""
}

// Equal reports deep equality of two values. Decimals compare numerically.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueNull:
		return true
	case ValueString:
		return v.str == o.str
	case ValueBool:
		return v.b == o.b
	case ValueInt:
		return v.i == o.i
	case ValueFloat:
		return v.f == o.f
	case ValueDecimal:
		a, aok := new(big.Rat).SetString(v.str)
		b, bok := new(big.Rat).SetString(o.str)
		if aok && bok {
			return a.Cmp(b) == 0
		}
		return v.str == o.str
	case ValueList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case ValueTime:
		return v.t.Equal(o.t)
	}
	return false
}

// Plain returns the plain JSON-facing representation: nil, string, bool,
// int64, float64, []string, or an RFC3339 UTC timestamp string. This is the
// form persisted in the document store and handed to templates.
func (v Value) Plain() any {
	switch v.kind {
	case ValueNull:
		return nil
	case ValueString, ValueDecimal:
		return v.str
	case ValueBool:
		return v.b
	case ValueInt:
		return v.i
	case ValueFloat:
		return v.f
	case ValueList:
		return v.list
	case ValueTime:
		return v.t.UTC().Format(time.RFC3339)
	}
	return nil
}

// MarshalJSON encodes the plain representation.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Plain())
}

// UnmarshalJSON re-types a plain scalar by JSON shape: numbers become int or
// float depending on their representation, arrays become string lists.
// Schema-aware re-typing (decimal, datetime, image) goes through DecodeValue;
// here decimals and timestamps come back as strings, which share their
// canonical form and bind identically in queries.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch rv := raw.(type) {
	case nil:
		*v = NullValue()
	case string:
		*v = StringValue(rv)
	case bool:
		*v = BoolValue(rv)
	case json.Number:
		if !strings.ContainsAny(rv.String(), ".eE") {
			i, err := rv.Int64()
			if err != nil {
				return fmt.Errorf("invalid number %q", rv.String())
			}
			*v = IntValue(i)
			return nil
		}
		f, err := rv.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q", rv.String())
		}
		*v = FloatValue(f)
	case []any:
		items := make([]string, 0, len(rv))
		for _, it := range rv {
			s, ok := it.(string)
			if !ok {
				return fmt.Errorf("expected string list item, got %T", it)
			}
			items = append(items, s)
		}
		*v = ListValue(items)
	default:
		return fmt.Errorf("cannot decode %T into a field value", raw)
	}
	return nil
}

// DecodeValue re-types a decoded JSON value according to the field
// definition it belongs to. It is the inverse of Plain for a known schema.
func DecodeValue(field *FieldDef, raw any) (Value, error) {
	if raw == nil {
		return NullValue(), nil
	}
	switch field.Type {
	case FieldString, FieldSelect, FieldUser:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("field %q: expected string, got %T", field.Name, raw)
		}
		return StringValue(s), nil
	case FieldBoolean:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("field %q: expected bool, got %T", field.Name, raw)
		}
		return BoolValue(b), nil
	case FieldNumeric:
		kind := NumericInt
		if field.Numeric != nil {
			kind = field.Numeric.Kind
		}
		return decodeNumeric(field.Name, kind, raw)
	case FieldTags:
		return decodeStringList(field.Name, raw)
	case FieldDatetime:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("field %q: expected timestamp string, got %T", field.Name, raw)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Value{}, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return TimeValue(t), nil
	case FieldImage:
		return decodeNumeric(field.Name, NumericInt, raw)
	}
	return Value{}, fmt.Errorf("field %q: unknown type %q", field.Name, field.Type)
}

func decodeNumeric(name string, kind NumericKind, raw any) (Value, error) {
	switch kind {
	case NumericInt:
		switch n := raw.(type) {
		case int64:
			return IntValue(n), nil
		case float64:
			return IntValue(int64(n)), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", name, err)
			}
			return IntValue(i), nil
		}
	case NumericFloat:
		switch n := raw.(type) {
		case int64:
			return FloatValue(float64(n)), nil
		case float64:
			return FloatValue(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", name, err)
			}
			return FloatValue(f), nil
		}
	case NumericDecimal:
		if s, ok := raw.(string); ok {
			return ParseDecimal(s)
		}
	}
	return Value{}, fmt.Errorf("field %q: cannot decode %T as %s", name, raw, kind)
}

func decodeStringList(name string, raw any) (Value, error) {
	switch l := raw.(type) {
	case []string:
		return ListValue(l), nil
	case []any:
		items := make([]string, 0, len(l))
		for _, it := range l {
			s, ok := it.(string)
			if !ok {
				return Value{}, fmt.Errorf("field %q: expected string list item, got %T", name, it)
			}
			items = append(items, s)
		}
		return ListValue(items), nil
	}
	return Value{}, fmt.Errorf("field %q: expected list, got %T", name, raw)
}

// FieldValues maps field names to their typed values.
type FieldValues map[string]Value

// Plain converts all values to their plain representations.
func (fv FieldValues) Plain() map[string]any {
	out := make(map[string]any, len(fv))
	for name, v := range fv {
		out[name] = v.Plain()
	}
	return out
}

// FieldChange records an old→new transition for one field.
type FieldChange struct {
	Old Value `json:"old"`
	New Value `json:"new"`
}
