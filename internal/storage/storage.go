// Package storage defines the persistence interface of the note engine.
//
// The interface is deliberately wide and flat, one method per operation, so
// that backends stay mechanical and services own all semantics. The only
// backend today is sqlite (internal/storage/sqlite); tests share the same
// implementation through an in-memory database.
package storage

import (
	"context"
	"time"

	"github.com/spacenote/spacenote/internal/types"
)

// SortKey is one component of a note ordering.
type SortKey struct {
	Field string
	Desc  bool
}

// NoteQuery is a compiled note selection: conditions already validated and
// resolved ($me replaced by a concrete username) by the filter engine.
type NoteQuery struct {
	Conditions []types.Condition
	Sort       []SortKey
	Limit      int
	Offset     int
}

// Store is the full persistence surface. All methods return errs.ErrNotFound
// (wrapped) for missing entities and backend-specific errors otherwise.
// Fetch-or-nil is expressed by the Get* methods returning (nil, nil) only
// where documented; everywhere else absence is an error.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, username string) (*types.User, error)
	ListUsers(ctx context.Context) ([]*types.User, error)
	SetUserPassword(ctx context.Context, username, passwordHash string) error
	DeleteUser(ctx context.Context, username string) error
	// CountAuthored reports how many notes and comments across all spaces
	// name username as author. Used to block deletion of active authors.
	CountAuthored(ctx context.Context, username string) (int64, error)

	// Sessions
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, authToken string) (*types.Session, error)
	DeleteSession(ctx context.Context, authToken string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)

	// Spaces
	CreateSpace(ctx context.Context, space *types.Space) error
	GetSpace(ctx context.Context, slug string) (*types.Space, error)
	ListSpaces(ctx context.Context) ([]*types.Space, error)
	// UpdateSpace applies the ops to the stored space document atomically
	// and returns the updated space.
	UpdateSpace(ctx context.Context, slug string, ops ...SpaceUpdate) (*types.Space, error)
	DeleteSpace(ctx context.Context, slug string) error

	// Counters. noteNumber is nil for space-scoped sequences and set for
	// per-note ones (comments). The global scope uses
	// types.GlobalCounterScope as the space slug.
	NextSequence(ctx context.Context, kind types.CounterKind, spaceSlug string, noteNumber *int64) (int64, error)
	SetSequence(ctx context.Context, kind types.CounterKind, spaceSlug string, noteNumber *int64, value int64) error
	SequenceValue(ctx context.Context, kind types.CounterKind, spaceSlug string, noteNumber *int64) (int64, error)
	DeleteCountersBySpace(ctx context.Context, spaceSlug string) error
	DeleteCountersByNote(ctx context.Context, spaceSlug string, noteNumber int64) error

	// Notes. Reads take the owning space so field documents can be re-typed
	// against the current schema.
	InsertNote(ctx context.Context, note *types.Note) error
	InsertNotes(ctx context.Context, notes []*types.Note) error
	GetNote(ctx context.Context, space *types.Space, number int64) (*types.Note, error)
	// QueryNotes returns one page of matches plus the unpaged total.
	QueryNotes(ctx context.Context, space *types.Space, q NoteQuery) ([]*types.Note, int64, error)
	ListAllNotes(ctx context.Context, space *types.Space) ([]*types.Note, error)
	SetNoteFields(ctx context.Context, spaceSlug string, number int64, fields types.FieldValues, editedAt time.Time) error
	// BumpNoteActivity advances activity_at and, when commented is set,
	// commented_at.
	BumpNoteActivity(ctx context.Context, spaceSlug string, number int64, at time.Time, commented bool) error
	DeleteNote(ctx context.Context, spaceSlug string, number int64) error
	DeleteNotesBySpace(ctx context.Context, spaceSlug string) error

	// Comments
	InsertComment(ctx context.Context, comment *types.Comment) error
	InsertComments(ctx context.Context, comments []*types.Comment) error
	GetComment(ctx context.Context, spaceSlug string, noteNumber, number int64) (*types.Comment, error)
	ListComments(ctx context.Context, spaceSlug string, noteNumber int64, limit, offset int) ([]*types.Comment, int64, error)
	ListAllComments(ctx context.Context, spaceSlug string) ([]*types.Comment, error)
	SetCommentContent(ctx context.Context, spaceSlug string, noteNumber, number int64, content string, editedAt time.Time) error
	DeleteComment(ctx context.Context, spaceSlug string, noteNumber, number int64) error
	DeleteCommentsByNote(ctx context.Context, spaceSlug string, noteNumber int64) error
	DeleteCommentsBySpace(ctx context.Context, spaceSlug string) error

	// Pending attachments
	InsertPendingAttachment(ctx context.Context, spaceSlug string, att *types.PendingAttachment) error
	GetPendingAttachment(ctx context.Context, spaceSlug string, number int64) (*types.PendingAttachment, error)
	ListPendingAttachments(ctx context.Context, spaceSlug string) ([]*types.PendingAttachment, error)
	DeletePendingAttachment(ctx context.Context, spaceSlug string, number int64) error

	// Attachments
	InsertAttachment(ctx context.Context, att *types.Attachment) error
	InsertAttachments(ctx context.Context, atts []*types.Attachment) error
	GetAttachment(ctx context.Context, spaceSlug string, noteNumber *int64, number int64) (*types.Attachment, error)
	ListAttachments(ctx context.Context, spaceSlug string, noteNumber *int64) ([]*types.Attachment, error)
	ListAllAttachments(ctx context.Context, spaceSlug string) ([]*types.Attachment, error)
	DeleteAttachmentsByNote(ctx context.Context, spaceSlug string, noteNumber int64) error
	DeleteAttachmentsBySpace(ctx context.Context, spaceSlug string) error

	// Telegram tasks
	InsertTelegramTask(ctx context.Context, task *types.TelegramTask) error
	// NextPendingTelegramTask returns the globally oldest pending task, or
	// (nil, nil) when the queue is empty.
	NextPendingTelegramTask(ctx context.Context) (*types.TelegramTask, error)
	MarkTelegramTaskCompleted(ctx context.Context, number int64) error
	MarkTelegramTaskFailed(ctx context.Context, number int64, errMsg string) error
	// RecordTelegramTaskAttempt increments retries and stamps attempted_at,
	// leaving the task pending.
	RecordTelegramTaskAttempt(ctx context.Context, number int64, at time.Time, errMsg string) error
	ListTelegramTasks(ctx context.Context, limit, offset int) ([]*types.TelegramTask, int64, error)
	DeleteTelegramTasksByNote(ctx context.Context, spaceSlug string, noteNumber int64) error
	DeleteTelegramTasksBySpace(ctx context.Context, spaceSlug string) error

	// Telegram mirrors
	InsertTelegramMirror(ctx context.Context, mirror *types.TelegramMirror) error
	// GetTelegramMirror returns (nil, nil) when no mirror exists yet.
	GetTelegramMirror(ctx context.Context, spaceSlug string, noteNumber int64) (*types.TelegramMirror, error)
	TouchTelegramMirror(ctx context.Context, spaceSlug string, noteNumber int64, at time.Time) error
	DeleteTelegramMirror(ctx context.Context, spaceSlug string, noteNumber int64) error
	DeleteTelegramMirrorsBySpace(ctx context.Context, spaceSlug string) error

	Close() error
}
