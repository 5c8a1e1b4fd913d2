package field

import (
	"strings"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// ValidateDefinition checks a field definition before it joins a space
// schema. Name collisions are the space service's concern; everything
// type-local is checked here, including that the default parses.
func ValidateDefinition(space *types.Space, def *types.FieldDef) error {
	if !types.ValidFieldName(def.Name) {
		return errs.Validation("invalid field name %q", def.Name)
	}
	if !def.Type.Valid() {
		return errs.Validation("unknown field type %q", def.Type)
	}
	if err := validateOptionArms(def); err != nil {
		return err
	}

	switch def.Type {
	case types.FieldString:
		return validateStringDef(space, def)
	case types.FieldNumeric:
		return validateNumericDef(space, def)
	case types.FieldSelect:
		return validateSelectDef(space, def)
	case types.FieldUser:
		return validateUserDef(space, def)
	case types.FieldDatetime:
		return validateDatetimeDef(space, def)
	case types.FieldImage:
		return validateImageDef(def)
	default:
		return validateLiteralDefault(space, def)
	}
}

// validateOptionArms rejects options belonging to a different type.
func validateOptionArms(def *types.FieldDef) error {
	if def.String != nil && def.Type != types.FieldString {
		return errs.Validation("field %q: string options on %s field", def.Name, def.Type)
	}
	if def.Numeric != nil && def.Type != types.FieldNumeric {
		return errs.Validation("field %q: numeric options on %s field", def.Name, def.Type)
	}
	if def.Select != nil && def.Type != types.FieldSelect {
		return errs.Validation("field %q: select options on %s field", def.Name, def.Type)
	}
	if def.Image != nil && def.Type != types.FieldImage {
		return errs.Validation("field %q: image options on %s field", def.Name, def.Type)
	}
	return nil
}

func validateStringDef(space *types.Space, def *types.FieldDef) error {
	if def.String != nil {
		if def.String.Kind != "" && !def.String.Kind.Valid() {
			return errs.Validation("field %q: unknown string kind %q", def.Name, def.String.Kind)
		}
		if def.String.MinLength != nil && *def.String.MinLength < 0 {
			return errs.Validation("field %q: min_length must not be negative", def.Name)
		}
		if def.String.MaxLength != nil && *def.String.MaxLength < 0 {
			return errs.Validation("field %q: max_length must not be negative", def.Name)
		}
		if def.String.MinLength != nil && def.String.MaxLength != nil && *def.String.MinLength > *def.String.MaxLength {
			return errs.Validation("field %q: min_length exceeds max_length", def.Name)
		}
	}
	return validateLiteralDefault(space, def)
}

func validateNumericDef(space *types.Space, def *types.FieldDef) error {
	if def.Numeric == nil {
		return errs.Validation("field %q: numeric fields need numeric options", def.Name)
	}
	if !def.Numeric.Kind.Valid() {
		return errs.Validation("field %q: unknown numeric kind %q", def.Name, def.Numeric.Kind)
	}
	if def.Numeric.Min != nil && def.Numeric.Max != nil && *def.Numeric.Min > *def.Numeric.Max {
		return errs.Validation("field %q: min exceeds max", def.Name)
	}
	return validateLiteralDefault(space, def)
}

func validateSelectDef(space *types.Space, def *types.FieldDef) error {
	if def.Select == nil || len(def.Select.Values) == 0 {
		return errs.Validation("field %q: select fields need a values list", def.Name)
	}
	seen := make(map[string]struct{}, len(def.Select.Values))
	for _, v := range def.Select.Values {
		if v == "" {
			return errs.Validation("field %q: empty select value", def.Name)
		}
		if _, dup := seen[v]; dup {
			return errs.Validation("field %q: duplicate select value %q", def.Name, v)
		}
		seen[v] = struct{}{}
	}
	// Each value map must label every value exactly once.
	for mapName, m := range def.Select.ValueMaps {
		for _, v := range def.Select.Values {
			if _, ok := m[v]; !ok {
				return errs.Validation("field %q: value map %q misses entry for %q", def.Name, mapName, v)
			}
		}
		for k := range m {
			if _, ok := seen[k]; !ok {
				return errs.Validation("field %q: value map %q has unknown key %q", def.Name, mapName, k)
			}
		}
	}
	return validateLiteralDefault(space, def)
}

func validateUserDef(space *types.Space, def *types.FieldDef) error {
	if def.Default == "" || def.Default == SpecialMe {
		return nil
	}
	if !space.IsMember(def.Default) {
		return errs.Validation("field %q: default user %q is not a member of this space", def.Name, def.Default)
	}
	return nil
}

func validateDatetimeDef(space *types.Space, def *types.FieldDef) error {
	d := def.Default
	if d == "" || d == SpecialNow {
		return nil
	}
	if isExifDefault(d) {
		spec := strings.TrimPrefix(d, SpecialExifPrefix)
		imageField, fallback, hasFallback := strings.Cut(spec, "|")
		imgDef := space.Field(strings.TrimSpace(imageField))
		if imgDef == nil || imgDef.Type != types.FieldImage {
			return errs.Validation("field %q: default references %q which is not an image field", def.Name, strings.TrimSpace(imageField))
		}
		if hasFallback {
			if _, err := parseDatetime(def, strings.TrimSpace(fallback), nil); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := parseDatetime(def, d, nil)
	return err
}

func validateImageDef(def *types.FieldDef) error {
	if def.Image != nil && def.Image.MaxWidth != nil && *def.Image.MaxWidth <= 0 {
		return errs.Validation("field %q: max_width must be positive", def.Name)
	}
	if def.Default != "" {
		return errs.Validation("field %q: image fields cannot have a default", def.Name)
	}
	return nil
}

// validateLiteralDefault parses the default through the field's own parser so
// a bad default never reaches note creation.
func validateLiteralDefault(space *types.Space, def *types.FieldDef) error {
	if def.Default == "" {
		return nil
	}
	if _, err := parseTyped(space, def, def.Default, nil); err != nil {
		return errs.Validation("field %q: invalid default: %v", def.Name, err)
	}
	return nil
}
