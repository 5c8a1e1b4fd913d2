// Package comment manages note discussion threads.
package comment

import (
	"context"
	"log/slog"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/note"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/telegram"
	"github.com/spacenote/spacenote/internal/types"
)

// Service manages comments. Comment numbers are sequential per note.
type Service struct {
	store    storage.Store
	notes    *note.Service
	telegram *telegram.Service
	log      *slog.Logger
}

func NewService(store storage.Store, notes *note.Service, tg *telegram.Service, log *slog.Logger) *Service {
	return &Service{store: store, notes: notes, telegram: tg, log: log.With("service", "comment")}
}

// Create adds a comment to a note. When raw fields are supplied, every key
// must be listed in the space's editable_fields_on_comment; the field update
// folds into the comment's activity event instead of emitting its own.
func (s *Service) Create(ctx context.Context, space *types.Space, noteNumber int64, author, content string, parentNumber *int64, rawFields map[string]string) (*types.Comment, error) {
	if content == "" {
		return nil, errs.Validation("comment content must not be empty")
	}
	n, err := s.notes.Get(ctx, space, noteNumber)
	if err != nil {
		return nil, err
	}

	var changes map[string]types.FieldChange
	if len(rawFields) > 0 {
		for name := range rawFields {
			if !editableOnComment(space, name) {
				return nil, errs.Validation("field %q is not editable when commenting", name)
			}
		}
		n, changes, err = s.notes.UpdateFieldsQuiet(ctx, space, noteNumber, rawFields, author)
		if err != nil {
			return nil, err
		}
	}

	if parentNumber != nil {
		if _, err := s.store.GetComment(ctx, space.Slug, noteNumber, *parentNumber); err != nil {
			return nil, errs.Validation("parent comment %d not found", *parentNumber)
		}
	}

	number, err := s.store.NextSequence(ctx, types.CounterComment, space.Slug, &noteNumber)
	if err != nil {
		return nil, err
	}
	comment := &types.Comment{
		SpaceSlug:    space.Slug,
		NoteNumber:   noteNumber,
		Number:       number,
		Author:       author,
		Content:      content,
		CreatedAt:    time.Now().UTC(),
		ParentNumber: parentNumber,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	if err := s.notes.BumpActivity(ctx, space.Slug, noteNumber, true); err != nil {
		return nil, err
	}
	s.log.Debug("comment created", "space", space.Slug, "note", noteNumber, "number", number, "author", author)

	if err := s.telegram.EnqueueCommentCreated(ctx, space, n, comment, changes); err != nil {
		return nil, err
	}
	return comment, nil
}

// Get returns one comment by natural key.
func (s *Service) Get(ctx context.Context, spaceSlug string, noteNumber, number int64) (*types.Comment, error) {
	return s.store.GetComment(ctx, spaceSlug, noteNumber, number)
}

// List returns one page of a note's comments, oldest first.
func (s *Service) List(ctx context.Context, spaceSlug string, noteNumber int64, limit, offset int) (*types.Page[*types.Comment], error) {
	if limit == 0 {
		limit = types.DefaultPageLimit
	}
	if limit < 1 || limit > types.MaxPageLimit {
		return nil, errs.Validation("limit must be between 1 and %d", types.MaxPageLimit)
	}
	if offset < 0 {
		return nil, errs.Validation("offset must not be negative")
	}
	items, total, err := s.store.ListComments(ctx, spaceSlug, noteNumber, limit, offset)
	if err != nil {
		return nil, err
	}
	return &types.Page[*types.Comment]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// ListAll returns every comment of a space. Used by export.
func (s *Service) ListAll(ctx context.Context, spaceSlug string) ([]*types.Comment, error) {
	return s.store.ListAllComments(ctx, spaceSlug)
}

// Update replaces a comment's content and bumps the note's activity.
func (s *Service) Update(ctx context.Context, spaceSlug string, noteNumber, number int64, content string) (*types.Comment, error) {
	if content == "" {
		return nil, errs.Validation("comment content must not be empty")
	}
	if _, err := s.store.GetComment(ctx, spaceSlug, noteNumber, number); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.store.SetCommentContent(ctx, spaceSlug, noteNumber, number, content, now); err != nil {
		return nil, err
	}
	if err := s.notes.BumpActivity(ctx, spaceSlug, noteNumber, false); err != nil {
		return nil, err
	}
	s.log.Debug("comment updated", "space", spaceSlug, "note", noteNumber, "number", number)
	return s.store.GetComment(ctx, spaceSlug, noteNumber, number)
}

// Delete removes one comment. Replies stay in place with a dangling parent
// reference.
func (s *Service) Delete(ctx context.Context, spaceSlug string, noteNumber, number int64) error {
	if _, err := s.store.GetComment(ctx, spaceSlug, noteNumber, number); err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, spaceSlug, noteNumber, number); err != nil {
		return err
	}
	if err := s.notes.BumpActivity(ctx, spaceSlug, noteNumber, false); err != nil {
		return err
	}
	s.log.Debug("comment deleted", "space", spaceSlug, "note", noteNumber, "number", number)
	return nil
}

// Import bulk-inserts exported comments.
func (s *Service) Import(ctx context.Context, comments []*types.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	return s.store.InsertComments(ctx, comments)
}

func editableOnComment(space *types.Space, name string) bool {
	for _, f := range space.EditableFieldsOnComment {
		if f == name {
			return true
		}
	}
	return false
}
