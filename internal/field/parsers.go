package field

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

func parseTyped(space *types.Space, def *types.FieldDef, raw string, ctx *ParseContext) (types.Value, error) {
	switch def.Type {
	case types.FieldString:
		return parseString(def, raw)
	case types.FieldBoolean:
		return parseBoolean(def, raw)
	case types.FieldNumeric:
		return parseNumeric(def, raw)
	case types.FieldSelect:
		return parseSelect(def, raw)
	case types.FieldTags:
		return parseTags(raw)
	case types.FieldUser:
		return parseUser(space, def, raw, ctx)
	case types.FieldDatetime:
		return parseDatetime(def, raw, ctx)
	case types.FieldImage:
		return parseImage(def, raw)
	}
	return types.Value{}, errs.Validation("field %q has unknown type %q", def.Name, def.Type)
}

func parseString(def *types.FieldDef, raw string) (types.Value, error) {
	kind := types.StringLine
	var minLen, maxLen *int
	if def.String != nil {
		if def.String.Kind != "" {
			kind = def.String.Kind
		}
		minLen, maxLen = def.String.MinLength, def.String.MaxLength
	}

	n := utf8.RuneCountInString(raw)
	if minLen != nil && n < *minLen {
		return types.Value{}, errs.Validation("field %q is shorter than %d characters", def.Name, *minLen)
	}
	if maxLen != nil && n > *maxLen {
		return types.Value{}, errs.Validation("field %q is longer than %d characters", def.Name, *maxLen)
	}

	switch kind {
	case types.StringLine:
		if strings.ContainsAny(raw, "\r\n") {
			return types.Value{}, errs.Validation("field %q must be a single line", def.Name)
		}
	case types.StringText, types.StringMarkdown:
		// Free-form.
	case types.StringJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return types.Value{}, errs.Validation("field %q is not valid JSON: %v", def.Name, err)
		}
	case types.StringTOML:
		var v map[string]any
		if err := toml.Unmarshal([]byte(raw), &v); err != nil {
			return types.Value{}, errs.Validation("field %q is not valid TOML: %v", def.Name, err)
		}
	case types.StringYAML:
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return types.Value{}, errs.Validation("field %q is not valid YAML: %v", def.Name, err)
		}
	}
	return types.StringValue(raw), nil
}

func parseBoolean(def *types.FieldDef, raw string) (types.Value, error) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on":
		return types.BoolValue(true), nil
	case "false", "0", "no", "off":
		return types.BoolValue(false), nil
	}
	return types.Value{}, errs.Validation("invalid boolean value for field %q: %q", def.Name, raw)
}

func parseNumeric(def *types.FieldDef, raw string) (types.Value, error) {
	kind := types.NumericInt
	if def.Numeric != nil {
		kind = def.Numeric.Kind
	}
	var value types.Value
	switch kind {
	case types.NumericInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return types.Value{}, errs.Validation("invalid integer value for field %q: %q", def.Name, raw)
		}
		value = types.IntValue(i)
	case types.NumericFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Value{}, errs.Validation("invalid float value for field %q: %q", def.Name, raw)
		}
		value = types.FloatValue(f)
	case types.NumericDecimal:
		v, err := types.ParseDecimal(raw)
		if err != nil {
			return types.Value{}, errs.Validation("invalid decimal value for field %q: %q", def.Name, raw)
		}
		value = v
	default:
		return types.Value{}, errs.Validation("field %q has unknown numeric kind %q", def.Name, kind)
	}

	if def.Numeric != nil {
		f, _ := value.AsFloat()
		if def.Numeric.Min != nil && f < *def.Numeric.Min {
			return types.Value{}, errs.Validation("value for field %q is below minimum: %s < %v", def.Name, raw, *def.Numeric.Min)
		}
		if def.Numeric.Max != nil && f > *def.Numeric.Max {
			return types.Value{}, errs.Validation("value for field %q is above maximum: %s > %v", def.Name, raw, *def.Numeric.Max)
		}
	}
	return value, nil
}

func parseSelect(def *types.FieldDef, raw string) (types.Value, error) {
	if def.Select == nil {
		return types.Value{}, errs.Validation("field %q has no select options", def.Name)
	}
	for _, v := range def.Select.Values {
		if v == raw {
			return types.StringValue(raw), nil
		}
	}
	return types.Value{}, errs.Validation("invalid choice for field %q: %q (allowed: %s)",
		def.Name, raw, strings.Join(def.Select.Values, ", "))
}

// parseTags splits on commas, trims, drops empties, and deduplicates while
// keeping first-seen order.
func parseTags(raw string) (types.Value, error) {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		tag := strings.TrimSpace(p)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return types.ListValue(tags), nil
}

func parseUser(space *types.Space, def *types.FieldDef, raw string, ctx *ParseContext) (types.Value, error) {
	username := raw
	if raw == SpecialMe {
		if ctx == nil || ctx.CurrentUser == "" {
			return types.Value{}, errs.Validation("cannot use %s without a logged-in user", SpecialMe)
		}
		username = ctx.CurrentUser
	}
	if !space.IsMember(username) {
		return types.Value{}, errs.Validation("user %q is not a member of this space", username)
	}
	return types.StringValue(username), nil
}

// datetimeLayouts are the accepted input forms, tried in order. All are
// interpreted as UTC.
var datetimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05Z",
}

func parseDatetime(def *types.FieldDef, raw string, ctx *ParseContext) (types.Value, error) {
	if raw == SpecialNow {
		return types.TimeValue(ctx.now()), nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return types.TimeValue(t), nil
		}
	}
	return types.Value{}, errs.Validation("invalid datetime format for field %q: %q", def.Name, raw)
}

func parseImage(def *types.FieldDef, raw string) (types.Value, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return types.Value{}, errs.Validation("invalid image reference for field %q: %q", def.Name, raw)
	}
	return types.IntValue(n), nil
}

func isExifDefault(d string) bool {
	return strings.HasPrefix(d, SpecialExifPrefix)
}

// resolveExifDefault reads the camera timestamp of the pending attachment the
// submission assigned to the referenced image field. When the attachment has
// no usable timestamp the fallback after | applies; without one the value is
// null (or an error for required fields).
func resolveExifDefault(space *types.Space, def *types.FieldDef, ctx *ParseContext) (types.Value, error) {
	spec := strings.TrimPrefix(def.Default, SpecialExifPrefix)
	imageField, fallback, hasFallback := strings.Cut(spec, "|")
	imageField = strings.TrimSpace(imageField)

	t := exifCreatedAt(space, imageField, ctx)
	if t != nil {
		return types.TimeValue(*t), nil
	}
	if hasFallback {
		return parseDatetime(def, strings.TrimSpace(fallback), ctx)
	}
	if def.Required {
		return types.Value{}, errs.Validation("required field %q has no value", def.Name)
	}
	return types.NullValue(), nil
}

func exifCreatedAt(space *types.Space, imageField string, ctx *ParseContext) *time.Time {
	if ctx == nil || ctx.PendingMeta == nil || ctx.Raw == nil {
		return nil
	}
	imgDef := space.Field(imageField)
	if imgDef == nil || imgDef.Type != types.FieldImage {
		return nil
	}
	raw, ok := ctx.Raw[imageField]
	if !ok || raw == "" {
		return nil
	}
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || number <= 0 {
		return nil
	}
	meta, err := ctx.PendingMeta(number)
	if err != nil || meta == nil || meta.Image == nil {
		return nil
	}
	return meta.Image.ExifCreatedAt
}
