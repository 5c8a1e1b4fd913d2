package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
)

// Note queries are compiled to SQL over the fields JSON column. Custom field
// names are validated upstream against [a-z0-9][a-z0-9_-]*, so embedding them
// in a json path is safe. Built-in note.* fields map to real columns.

var noteColumnFor = map[string]string{
	"note.number":       "number",
	"note.author":       "author",
	"note.created_at":   "created_at",
	"note.edited_at":    "edited_at",
	"note.commented_at": "commented_at",
	"note.activity_at":  "activity_at",
}

func fieldExpr(field string) (string, error) {
	if col, ok := noteColumnFor[field]; ok {
		return col, nil
	}
	if strings.HasPrefix(field, "note.") {
		return "", fmt.Errorf("unknown note attribute %q", field)
	}
	if !types.ValidFieldName(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return `json_extract(fields, '$."` + field + `"')`, nil
}

// buildNoteWhere renders conditions as an AND chain appended to the space
// predicate. Returned SQL starts with " AND" or is empty.
func buildNoteWhere(space *types.Space, conds []types.Condition) (string, []any, error) {
	var sb strings.Builder
	var args []any
	for _, c := range conds {
		expr, err := fieldExpr(c.Field)
		if err != nil {
			return "", nil, err
		}
		isTags := false
		if f := space.Field(c.Field); f != nil && f.Type == types.FieldTags {
			isTags = true
		}
		clause, clauseArgs, err := buildCondition(expr, c, isTags)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND ")
		sb.WriteString(clause)
		args = append(args, clauseArgs...)
	}
	return sb.String(), args, nil
}

func buildCondition(expr string, c types.Condition, isTags bool) (string, []any, error) {
	if isTags {
		return buildTagsCondition(expr, c)
	}
	switch c.Operator {
	case types.OpEq:
		if c.Value.Value.IsNull() {
			return expr + " IS NULL", nil, nil
		}
		return expr + " = ?", []any{bindValue(c.Value.Value)}, nil
	case types.OpNe:
		if c.Value.Value.IsNull() {
			return expr + " IS NOT NULL", nil, nil
		}
		// Mongo-style ne also matches absent values.
		return "(" + expr + " IS NULL OR " + expr + " != ?)", []any{bindValue(c.Value.Value)}, nil
	case types.OpContains:
		return expr + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(c.Value.Value.Str()) + "%"}, nil
	case types.OpStartsWith:
		return expr + ` LIKE ? ESCAPE '\'`, []any{escapeLike(c.Value.Value.Str()) + "%"}, nil
	case types.OpEndsWith:
		return expr + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(c.Value.Value.Str())}, nil
	case types.OpIn:
		ph, args := placeholders(c.Value.List)
		return expr + " IN (" + ph + ")", args, nil
	case types.OpNin:
		ph, args := placeholders(c.Value.List)
		return "(" + expr + " IS NULL OR " + expr + " NOT IN (" + ph + "))", args, nil
	case types.OpGt, types.OpGte, types.OpLt, types.OpLte:
		return expr + " " + comparisonSQL(c.Operator) + " ?", []any{bindValue(c.Value.Value)}, nil
	}
	return "", nil, fmt.Errorf("operator %q not supported for field %q", c.Operator, c.Field)
}

// buildTagsCondition handles list-typed fields through json_each.
func buildTagsCondition(expr string, c types.Condition) (string, []any, error) {
	each := "(SELECT 1 FROM json_each(" + expr + ") WHERE json_each.value"
	switch c.Operator {
	case types.OpEq:
		doc, err := json.Marshal(c.Value.List)
		if err != nil {
			return "", nil, err
		}
		return expr + " = ?", []any{string(doc)}, nil
	case types.OpNe:
		doc, err := json.Marshal(c.Value.List)
		if err != nil {
			return "", nil, err
		}
		return "(" + expr + " IS NULL OR " + expr + " != ?)", []any{string(doc)}, nil
	case types.OpIn:
		ph, args := placeholders(c.Value.List)
		return "EXISTS " + each + " IN (" + ph + "))", args, nil
	case types.OpNin:
		ph, args := placeholders(c.Value.List)
		return "NOT EXISTS " + each + " IN (" + ph + "))", args, nil
	case types.OpAll:
		var clauses []string
		var args []any
		for _, item := range c.Value.List {
			clauses = append(clauses, "EXISTS "+each+" = ?)")
			args = append(args, item)
		}
		if len(clauses) == 0 {
			return "1 = 1", nil, nil
		}
		return "(" + strings.Join(clauses, " AND ") + ")", args, nil
	}
	return "", nil, fmt.Errorf("operator %q not supported for tags field", c.Operator)
}

func comparisonSQL(op types.FilterOperator) string {
	switch op {
	case types.OpGt:
		return ">"
	case types.OpGte:
		return ">="
	case types.OpLt:
		return "<"
	case types.OpLte:
		return "<="
	}
	return "="
}

func placeholders(items []string) (string, []any) {
	if len(items) == 0 {
		// Empty IN list matches nothing; NULL never equals anything.
		return "NULL", nil
	}
	args := make([]any, len(items))
	for i, it := range items {
		args[i] = it
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", "), args
}

// bindValue converts a typed value to its SQL parameter form. Booleans bind
// as 0/1 because json_extract returns JSON booleans as integers.
func bindValue(v types.Value) any {
	switch v.Kind() {
	case types.ValueString, types.ValueDecimal:
		return v.Str()
	case types.ValueBool:
		if v.Bool() {
			return int64(1)
		}
		return int64(0)
	case types.ValueInt:
		return v.Int()
	case types.ValueFloat:
		return v.Float()
	case types.ValueTime:
		return v.Canonical()
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// buildNoteOrder renders the ORDER BY clause. Number descending is always the
// final tiebreak so paging is stable.
func buildNoteOrder(sort []storage.SortKey) string {
	var keys []string
	for _, k := range sort {
		expr, err := fieldExpr(k.Field)
		if err != nil {
			continue
		}
		if k.Desc {
			keys = append(keys, expr+" DESC")
		} else {
			keys = append(keys, expr+" ASC")
		}
	}
	keys = append(keys, "number DESC")
	return " ORDER BY " + strings.Join(keys, ", ")
}
