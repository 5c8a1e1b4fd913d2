package storage

import "github.com/spacenote/spacenote/internal/types"

// SpaceUpdate is one typed mutation of a space document. Services build a
// plan of updates; the backend applies them in order inside one transaction.
// No raw document fragments cross this boundary.
type SpaceUpdate interface {
	isSpaceUpdate()
}

// SetTitle replaces the space title.
type SetTitle struct{ Title string }

// SetDescription replaces the space description.
type SetDescription struct{ Description string }

// SetMembers replaces the member list.
type SetMembers struct{ Members []string }

// AddField appends a field definition to the schema.
type AddField struct{ Field types.FieldDef }

// RemoveField deletes a field definition by name.
type RemoveField struct{ Name string }

// AddFilter appends a saved filter.
type AddFilter struct{ Filter types.FilterDef }

// ReplaceFilter swaps the filter with the same name.
type ReplaceFilter struct{ Filter types.FilterDef }

// RemoveFilter deletes a saved filter by name.
type RemoveFilter struct{ Name string }

// SetHiddenFieldsOnCreate replaces the create-form hidden field list.
type SetHiddenFieldsOnCreate struct{ Names []string }

// SetEditableFieldsOnComment replaces the comment-time editable field list.
type SetEditableFieldsOnComment struct{ Names []string }

// SetTemplate sets the template source for a key. Empty source removes the
// key, falling back to the built-in default.
type SetTemplate struct {
	Key    string
	Source string
}

// SetTelegram replaces the messenger settings. Nil clears them.
type SetTelegram struct{ Settings *types.TelegramSettings }

func (SetTitle) isSpaceUpdate()                   {}
func (SetDescription) isSpaceUpdate()             {}
func (SetMembers) isSpaceUpdate()                 {}
func (AddField) isSpaceUpdate()                   {}
func (RemoveField) isSpaceUpdate()                {}
func (AddFilter) isSpaceUpdate()                  {}
func (ReplaceFilter) isSpaceUpdate()              {}
func (RemoveFilter) isSpaceUpdate()               {}
func (SetHiddenFieldsOnCreate) isSpaceUpdate()    {}
func (SetEditableFieldsOnComment) isSpaceUpdate() {}
func (SetTemplate) isSpaceUpdate()                {}
func (SetTelegram) isSpaceUpdate()                {}
