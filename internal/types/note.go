package types

import "time"

// Note is one record of a space. Numbers are sequential per space and never
// reused. Title is computed from the space's note:title template at read
// time and is not persisted.
type Note struct {
	SpaceSlug   string      `json:"space_slug"`
	Number      int64       `json:"number"`
	Author      string      `json:"author"`
	CreatedAt   time.Time   `json:"created_at"`
	EditedAt    *time.Time  `json:"edited_at,omitempty"`
	CommentedAt *time.Time  `json:"commented_at,omitempty"`
	ActivityAt  time.Time   `json:"activity_at"`
	Fields      FieldValues `json:"fields"`

	Title string `json:"title,omitempty"`
}

// Comment is one entry of a note's discussion thread. Numbers are sequential
// per note.
type Comment struct {
	SpaceSlug    string     `json:"space_slug"`
	NoteNumber   int64      `json:"note_number"`
	Number       int64      `json:"number"`
	Author       string     `json:"author"`
	Content      string     `json:"content"`
	CreatedAt    time.Time  `json:"created_at"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	ParentNumber *int64     `json:"parent_number,omitempty"`
}

// Page is one window of a larger result set.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

const (
	// DefaultPageLimit applies when a caller passes limit 0.
	DefaultPageLimit = 50
	// MaxPageLimit caps the page size of any listing.
	MaxPageLimit = 100
)
