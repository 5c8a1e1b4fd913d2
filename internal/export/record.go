// Package export implements the space round trip: a self-describing record
// holding the full space configuration and, optionally, its data. Attachment
// bytes are never exported, only their metadata.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// FormatVersion is written into every record. Imports reject other versions.
const FormatVersion = 1

// Record is one exported space. Field values are carried in their plain JSON
// form and re-typed against the schema on import.
type Record struct {
	Version     int                 `json:"version"`
	ExportedAt  time.Time           `json:"exported_at"`
	Space       *types.Space        `json:"space"`
	Notes       []NoteRecord        `json:"notes,omitempty"`
	Comments    []*types.Comment    `json:"comments,omitempty"`
	Attachments []*types.Attachment `json:"attachments,omitempty"`
}

// NoteRecord is a note with untyped field values.
type NoteRecord struct {
	Number      int64          `json:"number"`
	Author      string         `json:"author"`
	CreatedAt   time.Time      `json:"created_at"`
	EditedAt    *time.Time     `json:"edited_at,omitempty"`
	CommentedAt *time.Time     `json:"commented_at,omitempty"`
	ActivityAt  time.Time      `json:"activity_at"`
	Fields      map[string]any `json:"fields"`
}

// Format selects the wire encoding of a record.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	}
	return "", errs.Validation("unknown export format %q", s)
}

// Encode writes the record in the given format.
func Encode(w io.Writer, rec *Record, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case FormatYAML:
		// The record types carry json tags only, so YAML goes through the
		// JSON representation to keep both encodings key-compatible.
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		return yaml.NewEncoder(w).Encode(doc)
	}
	return errs.Validation("unknown export format %q", format)
}

// Decode reads a record in either format, sniffing JSON by its leading brace.
func Decode(data []byte) (*Record, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errs.Validation("export record is empty")
	}
	if trimmed[0] != '{' {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errs.Validation("invalid export record: %v", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml record: %w", err)
		}
		data = converted
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errs.Validation("invalid export record: %v", err)
	}
	return &rec, nil
}
