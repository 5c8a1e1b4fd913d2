package filter

import (
	"strconv"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// normalizeValue re-types a loosely typed condition operand against the
// field definition. Adhoc parsing coerces only by shape; this is where the
// schema gets a say.
func normalizeValue(space *types.Space, def *types.FieldDef, op types.FilterOperator, v types.ConditionValue) (types.ConditionValue, error) {
	if op.IsArray() || def.Type == types.FieldTags {
		return normalizeListValue(def, op, v)
	}
	if v.IsMe {
		if def.Type != types.FieldUser {
			return types.ConditionValue{}, errs.Validation("$me is only valid for user fields, not %s", def.Type)
		}
		return types.ConditionValue{IsMe: true}, nil
	}
	if v.Value.IsNull() {
		if op != types.OpEq && op != types.OpNe {
			return types.ConditionValue{}, errs.Validation("operator %q cannot be used with null", op)
		}
		return types.ConditionValue{}, nil
	}

	switch def.Type {
	case types.FieldString:
		if v.Value.Kind() != types.ValueString {
			return types.ConditionValue{}, errs.Validation("filter value for string field %q must be a string", def.Name)
		}
		return v, nil
	case types.FieldBoolean:
		if v.Value.Kind() != types.ValueBool {
			return types.ConditionValue{}, errs.Validation("filter value for boolean field %q must be a boolean", def.Name)
		}
		return v, nil
	case types.FieldNumeric:
		nv, err := normalizeNumeric(def, v.Value)
		if err != nil {
			return types.ConditionValue{}, err
		}
		return types.ConditionValue{Value: nv}, nil
	case types.FieldDatetime:
		nv, err := normalizeDatetime(def, v.Value)
		if err != nil {
			return types.ConditionValue{}, err
		}
		return types.ConditionValue{Value: nv}, nil
	case types.FieldUser:
		if v.Value.Kind() != types.ValueString {
			return types.ConditionValue{}, errs.Validation("filter value for user field %q must be a username or $me", def.Name)
		}
		if !space.IsMember(v.Value.Str()) {
			return types.ConditionValue{}, errs.Validation("user %q is not a member of this space", v.Value.Str())
		}
		return v, nil
	case types.FieldSelect:
		if v.Value.Kind() != types.ValueString {
			return types.ConditionValue{}, errs.Validation("filter value for select field %q must be a string", def.Name)
		}
		if err := checkSelectValue(def, v.Value.Str()); err != nil {
			return types.ConditionValue{}, err
		}
		return v, nil
	}
	return types.ConditionValue{}, errs.Validation("field type %s does not support filtering", def.Type)
}

func normalizeListValue(def *types.FieldDef, op types.FilterOperator, v types.ConditionValue) (types.ConditionValue, error) {
	if v.List == nil {
		return types.ConditionValue{}, errs.Validation("operator %q on field %q needs a list value", op, def.Name)
	}
	if def.Type == types.FieldSelect {
		for _, item := range v.List {
			if err := checkSelectValue(def, item); err != nil {
				return types.ConditionValue{}, err
			}
		}
	}
	return types.ConditionValue{List: v.List}, nil
}

func checkSelectValue(def *types.FieldDef, s string) error {
	if def.Select == nil {
		return errs.Validation("field %q has no select options", def.Name)
	}
	for _, allowed := range def.Select.Values {
		if allowed == s {
			return nil
		}
	}
	return errs.Validation("invalid choice for field %q: %q", def.Name, s)
}

func normalizeNumeric(def *types.FieldDef, v types.Value) (types.Value, error) {
	kind := types.NumericInt
	if def.Numeric != nil {
		kind = def.Numeric.Kind
	}
	switch kind {
	case types.NumericInt:
		switch v.Kind() {
		case types.ValueInt:
			return v, nil
		case types.ValueString:
			if i, err := strconv.ParseInt(v.Str(), 10, 64); err == nil {
				return types.IntValue(i), nil
			}
		}
	case types.NumericFloat:
		switch v.Kind() {
		case types.ValueFloat:
			return v, nil
		case types.ValueInt:
			return types.FloatValue(float64(v.Int())), nil
		case types.ValueString:
			if f, err := strconv.ParseFloat(v.Str(), 64); err == nil {
				return types.FloatValue(f), nil
			}
		}
	case types.NumericDecimal:
		var s string
		switch v.Kind() {
		case types.ValueDecimal:
			return v, nil
		case types.ValueInt:
			s = strconv.FormatInt(v.Int(), 10)
		case types.ValueFloat:
			s = strconv.FormatFloat(v.Float(), 'f', -1, 64)
		case types.ValueString:
			s = v.Str()
		}
		if s != "" {
			if dv, err := types.ParseDecimal(s); err == nil {
				return dv, nil
			}
		}
	}
	return types.Value{}, errs.Validation("filter value for %s field %q must be a valid %s", kind, def.Name, kind)
}

// datetimeLayouts mirrors the accepted input forms of datetime fields.
var datetimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05Z",
}

func normalizeDatetime(def *types.FieldDef, v types.Value) (types.Value, error) {
	if v.Kind() == types.ValueTime {
		return v, nil
	}
	if v.Kind() == types.ValueString {
		for _, layout := range datetimeLayouts {
			if t, err := time.ParseInLocation(layout, v.Str(), time.UTC); err == nil {
				return types.TimeValue(t), nil
			}
		}
	}
	return types.Value{}, errs.Validation("invalid datetime filter value for field %q", def.Name)
}
