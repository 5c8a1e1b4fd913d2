package types

import (
	"regexp"
	"time"
)

var slugRE = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a valid space slug: lowercase alphanumeric
// segments joined by single hyphens.
func ValidSlug(s string) bool { return slugRE.MatchString(s) }

var fieldNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidFieldName reports whether s is a valid field name.
func ValidFieldName(s string) bool { return fieldNameRE.MatchString(s) }

// AllFilterName is the reserved name of the implicit unfiltered view. It
// cannot be redefined or removed.
const AllFilterName = "all"

// FilterOperator is the closed set of condition operators.
type FilterOperator string

const (
	OpEq         FilterOperator = "eq"
	OpNe         FilterOperator = "ne"
	OpContains   FilterOperator = "contains"
	OpStartsWith FilterOperator = "startswith"
	OpEndsWith   FilterOperator = "endswith"
	OpIn         FilterOperator = "in"
	OpNin        FilterOperator = "nin"
	OpAll        FilterOperator = "all"
	OpGt         FilterOperator = "gt"
	OpGte        FilterOperator = "gte"
	OpLt         FilterOperator = "lt"
	OpLte        FilterOperator = "lte"
)

// Valid reports whether op is a known operator.
func (op FilterOperator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpContains, OpStartsWith, OpEndsWith, OpIn, OpNin, OpAll, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// IsArray reports whether op takes a list operand.
func (op FilterOperator) IsArray() bool {
	switch op {
	case OpIn, OpNin, OpAll:
		return true
	}
	return false
}

// ConditionValue is the operand of a filter condition: either a typed scalar,
// a string list for array operators, or the $me placeholder resolved against
// the querying user.
type ConditionValue struct {
	Value Value    `json:"value,omitempty"`
	List  []string `json:"list,omitempty"`
	IsMe  bool     `json:"is_me,omitempty"`
}

// Condition is one predicate of a saved filter.
type Condition struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    ConditionValue `json:"value"`
}

// FilterDef is a named saved view over a space's notes.
type FilterDef struct {
	Name           string      `json:"name"`
	DefaultColumns []string    `json:"default_columns,omitempty"`
	Conditions     []Condition `json:"conditions,omitempty"`
	Sort           []string    `json:"sort,omitempty"`
}

// DefaultAllFilter returns the implicit unfiltered view.
func DefaultAllFilter() FilterDef {
	return FilterDef{
		Name:           AllFilterName,
		DefaultColumns: []string{"note.title"},
	}
}

// TelegramSettings holds the per-space messenger channel bindings. An empty
// channel ID disables the corresponding flow.
type TelegramSettings struct {
	ActivityChannel string `json:"activity_channel,omitempty"`
	MirrorChannel   string `json:"mirror_channel,omitempty"`
}

// Space is a tenant: its schema, membership, saved filters and presentation
// settings.
type Space struct {
	Slug                    string            `json:"slug"`
	Title                   string            `json:"title"`
	Description             string            `json:"description,omitempty"`
	Members                 []string          `json:"members"`
	Fields                  []FieldDef        `json:"fields"`
	Filters                 []FilterDef       `json:"filters"`
	HiddenFieldsOnCreate    []string          `json:"hidden_fields_on_create,omitempty"`
	EditableFieldsOnComment []string          `json:"editable_fields_on_comment,omitempty"`
	Templates               map[string]string `json:"templates,omitempty"`
	Telegram                *TelegramSettings `json:"telegram,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
}

// Field returns the field definition named name, or nil.
func (s *Space) Field(name string) *FieldDef {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// Filter returns the filter named name, including the implicit "all" view,
// or nil.
func (s *Space) Filter(name string) *FilterDef {
	for i := range s.Filters {
		if s.Filters[i].Name == name {
			return &s.Filters[i]
		}
	}
	if name == AllFilterName {
		f := DefaultAllFilter()
		return &f
	}
	return nil
}

// IsMember reports whether username belongs to the space.
func (s *Space) IsMember(username string) bool {
	for _, m := range s.Members {
		if m == username {
			return true
		}
	}
	return false
}

// Template returns the template source for key, or "" when unset.
func (s *Space) Template(key string) string {
	if s.Templates == nil {
		return ""
	}
	return s.Templates[key]
}
