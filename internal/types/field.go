// Package types defines the core value types of the note engine: field and
// filter definitions, notes, comments, attachments and messenger records.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldType is the closed set of custom field types.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldBoolean  FieldType = "boolean"
	FieldNumeric  FieldType = "numeric"
	FieldSelect   FieldType = "select"
	FieldTags     FieldType = "tags"
	FieldUser     FieldType = "user"
	FieldDatetime FieldType = "datetime"
	FieldImage    FieldType = "image"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldBoolean, FieldNumeric, FieldSelect, FieldTags, FieldUser, FieldDatetime, FieldImage:
		return true
	}
	return false
}

// StringKind narrows the accepted format of a string field.
type StringKind string

const (
	StringLine     StringKind = "line"
	StringText     StringKind = "text"
	StringMarkdown StringKind = "markdown"
	StringJSON     StringKind = "json"
	StringTOML     StringKind = "toml"
	StringYAML     StringKind = "yaml"
)

// Valid reports whether k is a known string kind.
func (k StringKind) Valid() bool {
	switch k {
	case StringLine, StringText, StringMarkdown, StringJSON, StringTOML, StringYAML:
		return true
	}
	return false
}

// NumericKind selects the stored representation of a numeric field.
type NumericKind string

const (
	NumericInt     NumericKind = "int"
	NumericFloat   NumericKind = "float"
	NumericDecimal NumericKind = "decimal"
)

// Valid reports whether k is a known numeric kind.
func (k NumericKind) Valid() bool {
	switch k {
	case NumericInt, NumericFloat, NumericDecimal:
		return true
	}
	return false
}

// StringOptions configures a string field.
type StringOptions struct {
	Kind      StringKind `json:"kind"`
	MinLength *int       `json:"min_length,omitempty"`
	MaxLength *int       `json:"max_length,omitempty"`
}

// NumericOptions configures a numeric field.
type NumericOptions struct {
	Kind NumericKind `json:"kind"`
	Min  *float64    `json:"min,omitempty"`
	Max  *float64    `json:"max,omitempty"`
}

// SelectOptions configures a select field. ValueMaps are named
// value→display-label maps that must cover Values exactly.
type SelectOptions struct {
	Values    []string                     `json:"values"`
	ValueMaps map[string]map[string]string `json:"value_maps,omitempty"`
}

// ImageOptions configures an image field.
type ImageOptions struct {
	MaxWidth *int `json:"max_width,omitempty"`
}

// FieldDef is one typed column of a space schema. Options live in the arm
// matching Type; the other arms stay nil.
type FieldDef struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`

	String  *StringOptions  `json:"string_options,omitempty"`
	Numeric *NumericOptions `json:"numeric_options,omitempty"`
	Select  *SelectOptions  `json:"select_options,omitempty"`
	Image   *ImageOptions   `json:"image_options,omitempty"`

	// Default is the raw default value: a canonical literal or one of the
	// special forms ($me, $now, $exif.created_at:<field>[|<fallback>]).
	// Empty means no default.
	Default string `json:"default,omitempty"`
}

// DecodeFieldValues re-types a JSON fields document against a schema.
// Keys that no longer resolve in the schema are dropped (schema evolution:
// removing a field orphans its stored values).
func DecodeFieldValues(fields []FieldDef, doc []byte) (FieldValues, error) {
	if len(doc) == 0 {
		return FieldValues{}, nil
	}
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	byName := make(map[string]*FieldDef, len(fields))
	for i := range fields {
		byName[fields[i].Name] = &fields[i]
	}
	out := make(FieldValues, len(raw))
	for name, rv := range raw {
		def, ok := byName[name]
		if !ok {
			continue
		}
		v, err := DecodeValue(def, rv)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
