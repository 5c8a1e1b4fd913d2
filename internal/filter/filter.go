// Package filter implements saved filters and the adhoc query language:
// definition validation against a space schema, parsing of adhoc condition
// strings, and compilation into storage queries.
package filter

import (
	"strings"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// customFieldPrefix is an accepted alias for custom fields in adhoc queries
// and saved filters; it is stripped before schema lookup.
const customFieldPrefix = "note.fields."

// systemFields are the built-in note attributes available for filtering and
// sorting alongside custom fields.
var systemFields = map[string]types.FieldType{
	"note.number":       types.FieldNumeric,
	"note.author":       types.FieldUser,
	"note.created_at":   types.FieldDatetime,
	"note.edited_at":    types.FieldDatetime,
	"note.commented_at": types.FieldDatetime,
	"note.activity_at":  types.FieldDatetime,
}

// displayOnlyColumns can appear in default_columns but never in conditions.
var displayOnlyColumns = map[string]bool{
	"note.title": true,
}

// resolveField maps a condition/sort field path to its definition. System
// fields get synthetic definitions; custom fields come from the schema.
func resolveField(space *types.Space, name string) (string, *types.FieldDef, error) {
	if t, ok := systemFields[name]; ok {
		def := &types.FieldDef{Name: name, Type: t}
		if t == types.FieldNumeric {
			def.Numeric = &types.NumericOptions{Kind: types.NumericInt}
		}
		return name, def, nil
	}
	custom := strings.TrimPrefix(name, customFieldPrefix)
	if strings.HasPrefix(custom, "note.") {
		return "", nil, errs.Validation("unknown field %q", name)
	}
	def := space.Field(custom)
	if def == nil {
		return "", nil, errs.Validation("unknown field %q", name)
	}
	return custom, def, nil
}

// operatorsFor lists the operators a field type supports.
func operatorsFor(t types.FieldType) []types.FilterOperator {
	switch t {
	case types.FieldString:
		return []types.FilterOperator{types.OpEq, types.OpNe, types.OpContains, types.OpStartsWith, types.OpEndsWith}
	case types.FieldBoolean:
		return []types.FilterOperator{types.OpEq, types.OpNe}
	case types.FieldNumeric, types.FieldDatetime:
		return []types.FilterOperator{types.OpEq, types.OpNe, types.OpGt, types.OpGte, types.OpLt, types.OpLte}
	case types.FieldSelect:
		return []types.FilterOperator{types.OpEq, types.OpNe, types.OpIn, types.OpNin}
	case types.FieldTags:
		return []types.FilterOperator{types.OpEq, types.OpNe, types.OpIn, types.OpNin, types.OpAll}
	case types.FieldUser:
		return []types.FilterOperator{types.OpEq, types.OpNe}
	}
	// Image fields cannot be filtered.
	return nil
}

func operatorAllowed(t types.FieldType, op types.FilterOperator) bool {
	for _, allowed := range operatorsFor(t) {
		if allowed == op {
			return true
		}
	}
	return false
}

// ValidateFilter checks a saved filter definition against the space and
// returns it with field paths and values normalized.
func ValidateFilter(space *types.Space, f types.FilterDef) (types.FilterDef, error) {
	if !types.ValidFieldName(f.Name) {
		return types.FilterDef{}, errs.Validation("invalid filter name %q", f.Name)
	}
	if f.Name == types.AllFilterName && len(f.DefaultColumns) == 0 {
		return types.FilterDef{}, errs.Validation("filter %q must have at least one default column", types.AllFilterName)
	}

	out := types.FilterDef{Name: f.Name, DefaultColumns: f.DefaultColumns}
	for _, c := range f.Conditions {
		vc, err := ValidateCondition(space, c)
		if err != nil {
			return types.FilterDef{}, err
		}
		out.Conditions = append(out.Conditions, vc)
	}
	for _, s := range f.Sort {
		if err := validateSortField(space, s); err != nil {
			return types.FilterDef{}, err
		}
		out.Sort = append(out.Sort, s)
	}
	if err := ValidateColumns(space, f.DefaultColumns); err != nil {
		return types.FilterDef{}, err
	}
	return out, nil
}

// ValidateColumns checks default column references: display-only columns and
// anything filterable are acceptable.
func ValidateColumns(space *types.Space, columns []string) error {
	for _, col := range columns {
		if displayOnlyColumns[col] {
			continue
		}
		if _, _, err := resolveField(space, col); err != nil {
			return errs.Validation("unknown column %q", col)
		}
	}
	return nil
}

func validateSortField(space *types.Space, s string) error {
	name := strings.TrimPrefix(s, "-")
	if _, _, err := resolveField(space, name); err != nil {
		return errs.Validation("unknown sort field %q", name)
	}
	return nil
}

// ReferencesField reports whether the filter mentions the custom field name
// in its conditions, sort keys or default columns, under either the bare name
// or the note.fields. alias.
func ReferencesField(f *types.FilterDef, name string) bool {
	matches := func(path string) bool {
		return strings.TrimPrefix(path, customFieldPrefix) == name
	}
	for i := range f.Conditions {
		if matches(f.Conditions[i].Field) {
			return true
		}
	}
	for _, s := range f.Sort {
		if matches(strings.TrimPrefix(s, "-")) {
			return true
		}
	}
	for _, col := range f.DefaultColumns {
		if matches(col) {
			return true
		}
	}
	return false
}

// ValidateCondition checks one condition and normalizes its field path and
// value to storage form. $me on user fields stays symbolic until query time.
func ValidateCondition(space *types.Space, c types.Condition) (types.Condition, error) {
	name, def, err := resolveField(space, c.Field)
	if err != nil {
		return types.Condition{}, err
	}
	if !operatorAllowed(def.Type, c.Operator) {
		return types.Condition{}, errs.Validation("operator %q not valid for field %q of type %s", c.Operator, c.Field, def.Type)
	}

	value, err := normalizeValue(space, def, c.Operator, c.Value)
	if err != nil {
		return types.Condition{}, err
	}
	// System fields keep their note. prefix so the storage layer can map
	// them to columns; custom fields lose any alias prefix.
	field := name
	if _, system := systemFields[c.Field]; system {
		field = c.Field
	}
	return types.Condition{Field: field, Operator: c.Operator, Value: value}, nil
}
