// Package note manages the note lifecycle: creation with typed field
// parsing, filtered listing, partial field updates and activity timestamps.
package note

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/spacenote/spacenote/internal/attachment"
	"github.com/spacenote/spacenote/internal/field"
	"github.com/spacenote/spacenote/internal/filter"
	"github.com/spacenote/spacenote/internal/image"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/telegram"
	"github.com/spacenote/spacenote/internal/telemetry"
	"github.com/spacenote/spacenote/internal/template"
	"github.com/spacenote/spacenote/internal/types"
)

var (
	tracer       = telemetry.Tracer("spacenote/note")
	notesCreated metric.Int64Counter
)

func init() {
	notesCreated, _ = telemetry.Meter("spacenote/note").Int64Counter("spacenote.notes.created")
}

// Service manages notes. Titles are computed on read, never persisted.
type Service struct {
	store       storage.Store
	templates   *template.Service
	images      *image.Service
	attachments *attachment.Service
	telegram    *telegram.Service
	log         *slog.Logger
}

func NewService(store storage.Store, templates *template.Service, images *image.Service, attachments *attachment.Service, tg *telegram.Service, log *slog.Logger) *Service {
	return &Service{
		store:       store,
		templates:   templates,
		images:      images,
		attachments: attachments,
		telegram:    tg,
		log:         log.With("service", "note"),
	}
}

func (s *Service) parseContext(ctx context.Context, currentUser string) *field.ParseContext {
	return &field.ParseContext{
		CurrentUser: currentUser,
		PendingMeta: func(number int64) (*types.AttachmentMeta, error) {
			pending, err := s.attachments.GetPending(ctx, number)
			if err != nil {
				return nil, err
			}
			return &pending.Meta, nil
		},
	}
}

// Create parses raw fields against the schema, assigns the next note number
// and binds any referenced pending image uploads. Messenger tasks are
// enqueued per the space's channel configuration.
func (s *Service) Create(ctx context.Context, space *types.Space, author string, raw map[string]string) (*types.Note, error) {
	ctx, span := tracer.Start(ctx, "note.create",
		trace.WithAttributes(attribute.String("space", space.Slug)))
	defer span.End()

	fields, err := field.ParseFields(space, raw, s.parseContext(ctx, author))
	if err != nil {
		return nil, err
	}
	number, err := s.store.NextSequence(ctx, types.CounterNote, space.Slug, nil)
	if err != nil {
		return nil, err
	}

	if err := s.bindImageFields(ctx, space, number, fields); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	note := &types.Note{
		SpaceSlug:  space.Slug,
		Number:     number,
		Author:     author,
		CreatedAt:  now,
		ActivityAt: now,
		Fields:     fields,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return nil, err
	}
	note.Title = s.templates.NoteTitle(space, note)
	notesCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("space", space.Slug)))
	s.log.Debug("note created", "space", space.Slug, "number", number, "author", author)

	if err := s.telegram.EnqueueNoteCreated(ctx, space, note); err != nil {
		return nil, err
	}
	return note, nil
}

// bindImageFields finalizes pending uploads referenced by image field values
// and rewrites those values to the bound attachment numbers.
func (s *Service) bindImageFields(ctx context.Context, space *types.Space, noteNumber int64, fields types.FieldValues) error {
	pendingByField := map[string]int64{}
	for name, v := range fields {
		def := space.Field(name)
		if def == nil || def.Type != types.FieldImage || v.Kind() != types.ValueInt {
			continue
		}
		pendingByField[name] = v.Int()
	}
	if len(pendingByField) == 0 {
		return nil
	}
	bound, err := s.images.ProcessImageFields(ctx, space, noteNumber, pendingByField)
	if err != nil {
		return err
	}
	for name, number := range bound {
		fields[name] = types.IntValue(number)
	}
	return nil
}

// Get returns one note with its computed title.
func (s *Service) Get(ctx context.Context, space *types.Space, number int64) (*types.Note, error) {
	note, err := s.store.GetNote(ctx, space, number)
	if err != nil {
		return nil, err
	}
	note.Title = s.templates.NoteTitle(space, note)
	return note, nil
}

// List returns one page of notes matching a saved filter plus optional adhoc
// conditions.
func (s *Service) List(ctx context.Context, space *types.Space, currentUser, filterName, adhoc string, limit, offset int) (*types.Page[*types.Note], error) {
	q, err := filter.BuildQuery(space, filterName, adhoc, currentUser, limit, offset)
	if err != nil {
		return nil, err
	}
	items, total, err := s.store.QueryNotes(ctx, space, q)
	if err != nil {
		return nil, err
	}
	for _, n := range items {
		n.Title = s.templates.NoteTitle(space, n)
	}
	return &types.Page[*types.Note]{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// ListAll returns every note of a space, oldest first, without titles. Used
// by export.
func (s *Service) ListAll(ctx context.Context, space *types.Space) ([]*types.Note, error) {
	return s.store.ListAllNotes(ctx, space)
}

// UpdateFields applies a partial field update: only the supplied keys are
// parsed and written, together with edited_at and activity_at. It returns
// the updated note and the old→new change map for the supplied keys.
func (s *Service) UpdateFields(ctx context.Context, space *types.Space, number int64, raw map[string]string, currentUser string) (*types.Note, map[string]types.FieldChange, error) {
	return s.updateFields(ctx, space, number, raw, currentUser, true)
}

// UpdateFieldsQuiet is UpdateFields without messenger notifications, for
// callers that fold the change into their own event.
func (s *Service) UpdateFieldsQuiet(ctx context.Context, space *types.Space, number int64, raw map[string]string, currentUser string) (*types.Note, map[string]types.FieldChange, error) {
	return s.updateFields(ctx, space, number, raw, currentUser, false)
}

func (s *Service) updateFields(ctx context.Context, space *types.Space, number int64, raw map[string]string, currentUser string, notify bool) (*types.Note, map[string]types.FieldChange, error) {
	note, err := s.store.GetNote(ctx, space, number)
	if err != nil {
		return nil, nil, err
	}
	parsed, err := field.ParsePartialFields(space, raw, s.parseContext(ctx, currentUser))
	if err != nil {
		return nil, nil, err
	}

	if err := s.bindImageFields(ctx, space, number, parsed); err != nil {
		return nil, nil, err
	}

	changes := make(map[string]types.FieldChange, len(parsed))
	merged := make(types.FieldValues, len(note.Fields)+len(parsed))
	for name, v := range note.Fields {
		merged[name] = v
	}
	for name, v := range parsed {
		changes[name] = types.FieldChange{Old: note.Fields[name], New: v}
		merged[name] = v
	}

	now := time.Now().UTC()
	if err := s.store.SetNoteFields(ctx, space.Slug, number, merged, now); err != nil {
		return nil, nil, err
	}

	updated, err := s.store.GetNote(ctx, space, number)
	if err != nil {
		return nil, nil, err
	}
	updated.Title = s.templates.NoteTitle(space, updated)
	s.log.Debug("note updated", "space", space.Slug, "number", number, "fields", len(parsed))

	if notify {
		if err := s.telegram.EnqueueNoteUpdated(ctx, space, updated, changes, currentUser); err != nil {
			return nil, nil, err
		}
	}
	return updated, changes, nil
}

// BumpActivity advances activity_at, and commented_at when the trigger is a
// comment.
func (s *Service) BumpActivity(ctx context.Context, spaceSlug string, number int64, commented bool) error {
	return s.store.BumpNoteActivity(ctx, spaceSlug, number, time.Now().UTC(), commented)
}

// Delete removes a note and everything hanging off it: comments,
// attachments with their blobs, renditions, per-note counters, queued tasks
// and the mirror binding.
func (s *Service) Delete(ctx context.Context, space *types.Space, number int64) error {
	if _, err := s.store.GetNote(ctx, space, number); err != nil {
		return err
	}
	if err := s.store.DeleteTelegramTasksByNote(ctx, space.Slug, number); err != nil {
		return err
	}
	if err := s.store.DeleteTelegramMirror(ctx, space.Slug, number); err != nil {
		return err
	}
	if err := s.attachments.DeleteNote(ctx, space.Slug, number); err != nil {
		return err
	}
	if err := s.images.DeleteNote(space.Slug, number); err != nil {
		return err
	}
	if err := s.store.DeleteCommentsByNote(ctx, space.Slug, number); err != nil {
		return err
	}
	if err := s.store.DeleteCountersByNote(ctx, space.Slug, number); err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, space.Slug, number); err != nil {
		return err
	}
	s.log.Debug("note deleted", "space", space.Slug, "number", number)
	return nil
}

// Import bulk-inserts exported notes.
func (s *Service) Import(ctx context.Context, notes []*types.Note) error {
	if len(notes) == 0 {
		return nil
	}
	return s.store.InsertNotes(ctx, notes)
}
