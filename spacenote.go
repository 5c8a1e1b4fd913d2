// Package spacenote provides a minimal public API for embedding the note
// engine in other Go programs.
//
// It exports only the essential types and the store constructor; richer
// workflows (authorization, telegram mirroring, image renditions) live behind
// the CLI and internal/app.
package spacenote

import (
	"context"

	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/storage/sqlite"
	"github.com/spacenote/spacenote/internal/types"
)

// Core types for working with spaces and notes
type (
	Space      = types.Space
	FieldDef   = types.FieldDef
	Note       = types.Note
	Comment    = types.Comment
	Attachment = types.Attachment
	User       = types.User
)

// Field type constants
const (
	FieldString   = types.FieldString
	FieldBoolean  = types.FieldBoolean
	FieldNumeric  = types.FieldNumeric
	FieldSelect   = types.FieldSelect
	FieldTags     = types.FieldTags
	FieldUser     = types.FieldUser
	FieldDatetime = types.FieldDatetime
	FieldImage    = types.FieldImage
)

// Store is the minimal persistence interface for embedders.
type Store = storage.Store

// Open opens a spacenote SQLite database for programmatic access.
func Open(ctx context.Context, dbPath string) (Store, error) {
	return sqlite.New(ctx, dbPath)
}
