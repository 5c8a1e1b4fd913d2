// Package field implements the typed custom field system: definition
// validation when a field joins a space schema, and parsing of raw string
// submissions into typed values.
//
// Every value enters the engine as a string (or is absent). Parsing resolves
// special forms ($me, $now, $exif.created_at), applies defaults, and enforces
// per-type constraints before anything touches storage.
package field

import (
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// Special default/input forms.
const (
	SpecialMe  = "$me"
	SpecialNow = "$now"
	// SpecialExifPrefix starts a datetime default of the form
	// $exif.created_at:<image_field> with an optional |<fallback> suffix.
	SpecialExifPrefix = "$exif.created_at:"
)

// ParseContext carries the ambient inputs of a parse: who is submitting, the
// whole raw submission (for cross-field defaults), and a resolver for pending
// attachment metadata. Now is overridable for tests; nil means time.Now.
type ParseContext struct {
	CurrentUser string
	Raw         map[string]string
	Now         func() time.Time
	// PendingMeta resolves a pending attachment number to its metadata.
	// Nil disables $exif defaults.
	PendingMeta func(number int64) (*types.AttachmentMeta, error)
}

func (ctx *ParseContext) now() time.Time {
	if ctx != nil && ctx.Now != nil {
		return ctx.Now()
	}
	return time.Now().UTC()
}

// ParseFields parses a complete submission against the schema. Every schema
// field is considered: missing required fields without defaults fail, missing
// optional fields resolve their default or stay absent. Unknown keys are
// rejected.
func ParseFields(space *types.Space, raw map[string]string, ctx *ParseContext) (types.FieldValues, error) {
	for name := range raw {
		if space.Field(name) == nil {
			return nil, errs.Validation("unknown field %q", name)
		}
	}
	out := make(types.FieldValues, len(space.Fields))
	for i := range space.Fields {
		def := &space.Fields[i]
		var rawValue *string
		if v, ok := raw[def.Name]; ok {
			rawValue = &v
		}
		value, err := ParseValue(space, def, rawValue, ctx)
		if err != nil {
			return nil, err
		}
		out[def.Name] = value
	}
	return out, nil
}

// ParsePartialFields parses only the provided keys, for partial note updates.
// Defaults do not apply; an explicitly empty optional field becomes null.
func ParsePartialFields(space *types.Space, raw map[string]string, ctx *ParseContext) (types.FieldValues, error) {
	out := make(types.FieldValues, len(raw))
	for name, rawValue := range raw {
		def := space.Field(name)
		if def == nil {
			return nil, errs.Validation("unknown field %q", name)
		}
		v := rawValue
		value, err := ParseValue(space, def, &v, ctx)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// ParseValue parses one raw value (nil means absent) into its typed form.
func ParseValue(space *types.Space, def *types.FieldDef, raw *string, ctx *ParseContext) (types.Value, error) {
	if raw == nil {
		if def.Default != "" {
			return parseDefault(space, def, ctx)
		}
		if def.Required {
			return types.Value{}, errs.Validation("required field %q has no value", def.Name)
		}
		return types.NullValue(), nil
	}
	if *raw == "" {
		if def.Required {
			return types.Value{}, errs.Validation("required field %q cannot be empty", def.Name)
		}
		return types.NullValue(), nil
	}
	return parseTyped(space, def, *raw, ctx)
}

// parseDefault resolves the field's default. $exif.created_at needs the whole
// submission: it reads the pending attachment referenced by another image
// field and takes its camera timestamp.
func parseDefault(space *types.Space, def *types.FieldDef, ctx *ParseContext) (types.Value, error) {
	d := def.Default
	if def.Type == types.FieldDatetime && isExifDefault(d) {
		return resolveExifDefault(space, def, ctx)
	}
	return parseTyped(space, def, d, ctx)
}
