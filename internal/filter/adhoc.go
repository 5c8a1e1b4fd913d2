package filter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// ParseAdhoc parses the adhoc query language into validated conditions.
//
// Syntax: comma-separated conditions of the form field:operator:value.
// Array operators (in, nin, all) take pipe-separated values. Literal commas
// and pipes inside a value are escaped as %2C and %7C; each value is
// URL-decoded after splitting, so the escapes survive the delimiters.
//
// Scalar values coerce by shape: null, true and false (case-insensitive),
// then integer, then float, then plain string. The schema re-types them
// afterwards, so "2026-01-01" against a datetime field becomes a timestamp.
func ParseAdhoc(space *types.Space, query string) ([]types.Condition, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	var conditions []types.Condition
	for _, raw := range strings.Split(query, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		cond, err := parseCondition(space, raw)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

func parseCondition(space *types.Space, raw string) (types.Condition, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return types.Condition{}, errs.Validation("invalid condition syntax %q, expected field:operator:value", raw)
	}
	fieldPath, opStr, valueRaw := parts[0], parts[1], parts[2]

	op := types.FilterOperator(opStr)
	if !op.Valid() {
		return types.Condition{}, errs.Validation("unknown operator %q", opStr)
	}

	value, err := parseValue(valueRaw, op)
	if err != nil {
		return types.Condition{}, err
	}

	return ValidateCondition(space, types.Condition{Field: fieldPath, Operator: op, Value: value})
}

// parseValue splits array operands before decoding escapes, so %7C yields a
// literal pipe inside a single value.
func parseValue(raw string, op types.FilterOperator) (types.ConditionValue, error) {
	if op.IsArray() {
		parts := strings.Split(raw, "|")
		items := make([]string, len(parts))
		for i, p := range parts {
			decoded, err := url.PathUnescape(p)
			if err != nil {
				return types.ConditionValue{}, errs.Validation("invalid escape in value %q", p)
			}
			items[i] = decoded
		}
		return types.ConditionValue{List: items}, nil
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return types.ConditionValue{}, errs.Validation("invalid escape in value %q", raw)
	}
	return coerceScalar(decoded), nil
}

func coerceScalar(s string) types.ConditionValue {
	switch strings.ToLower(s) {
	case "null":
		return types.ConditionValue{}
	case "true":
		return types.ConditionValue{Value: types.BoolValue(true)}
	case "false":
		return types.ConditionValue{Value: types.BoolValue(false)}
	}
	if s == "$me" {
		return types.ConditionValue{IsMe: true}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.ConditionValue{Value: types.IntValue(i)}
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return types.ConditionValue{Value: types.FloatValue(f)}
		}
	}
	return types.ConditionValue{Value: types.StringValue(s)}
}
