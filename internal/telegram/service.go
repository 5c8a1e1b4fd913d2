// Package telegram implements the durable messenger queue: enqueueing tasks
// on note and comment events and the single worker that delivers them.
package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/template"
	"github.com/spacenote/spacenote/internal/types"
)

// Service enqueues messenger tasks. A task is created only when the space
// configures a channel for the event's role; spaces without telegram
// settings cost nothing.
type Service struct {
	store storage.Store
	log   *slog.Logger
}

func NewService(store storage.Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log.With("service", "telegram")}
}

// EnqueueNoteCreated queues the activity notification and the initial mirror
// for a fresh note.
func (s *Service) EnqueueNoteCreated(ctx context.Context, space *types.Space, note *types.Note) error {
	payload := map[string]any{"note": template.NoteContext(note)}
	if err := s.enqueueActivity(ctx, space, types.TaskActivityNoteCreated, note.Number, payload); err != nil {
		return err
	}
	return s.enqueueMirror(ctx, space, types.TaskMirrorCreate, note.Number, payload)
}

// EnqueueNoteUpdated queues the activity notification and a mirror refresh
// after a field update.
func (s *Service) EnqueueNoteUpdated(ctx context.Context, space *types.Space, note *types.Note, changes map[string]types.FieldChange, editedBy string) error {
	payload := map[string]any{
		"note":      template.NoteContext(note),
		"edited_by": editedBy,
	}
	if len(changes) > 0 {
		payload["changes"] = changesContext(changes)
	}
	if err := s.enqueueActivity(ctx, space, types.TaskActivityNoteUpdated, note.Number, payload); err != nil {
		return err
	}
	return s.enqueueMirror(ctx, space, types.TaskMirrorUpdate, note.Number, payload)
}

// EnqueueCommentCreated queues the activity notification for a new comment,
// including any inline field changes the comment applied.
func (s *Service) EnqueueCommentCreated(ctx context.Context, space *types.Space, note *types.Note, comment *types.Comment, changes map[string]types.FieldChange) error {
	payload := map[string]any{
		"note":    template.NoteContext(note),
		"comment": template.CommentContext(comment),
	}
	if len(changes) > 0 {
		payload["changes"] = changesContext(changes)
	}
	if err := s.enqueueActivity(ctx, space, types.TaskActivityCommentCreated, note.Number, payload); err != nil {
		return err
	}
	// An inline field edit also refreshes the mirror.
	if len(changes) > 0 {
		return s.enqueueMirror(ctx, space, types.TaskMirrorUpdate, note.Number, payload)
	}
	return nil
}

func (s *Service) enqueueActivity(ctx context.Context, space *types.Space, taskType types.TelegramTaskType, noteNumber int64, payload map[string]any) error {
	if space.Telegram == nil || space.Telegram.ActivityChannel == "" {
		return nil
	}
	return s.enqueue(ctx, space, taskType, space.Telegram.ActivityChannel, noteNumber, payload)
}

func (s *Service) enqueueMirror(ctx context.Context, space *types.Space, taskType types.TelegramTaskType, noteNumber int64, payload map[string]any) error {
	if space.Telegram == nil || space.Telegram.MirrorChannel == "" {
		return nil
	}
	return s.enqueue(ctx, space, taskType, space.Telegram.MirrorChannel, noteNumber, payload)
}

// enqueue allocates a queue position from the global task sequence. Numbers
// give the worker a stable oldest-first order across all spaces.
func (s *Service) enqueue(ctx context.Context, space *types.Space, taskType types.TelegramTaskType, channelID string, noteNumber int64, payload map[string]any) error {
	number, err := s.store.NextSequence(ctx, types.CounterTelegramTask, types.GlobalCounterScope, nil)
	if err != nil {
		return err
	}
	task := &types.TelegramTask{
		Number:     number,
		TaskType:   taskType,
		ChannelID:  channelID,
		SpaceSlug:  space.Slug,
		NoteNumber: noteNumber,
		Payload:    payload,
		Status:     types.TaskPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertTelegramTask(ctx, task); err != nil {
		return err
	}
	s.log.Debug("telegram task enqueued",
		"number", number, "type", taskType, "space", space.Slug, "note", noteNumber)
	return nil
}

func changesContext(changes map[string]types.FieldChange) map[string]any {
	out := make(map[string]any, len(changes))
	for name, ch := range changes {
		out[name] = map[string]any{"old": ch.Old.Plain(), "new": ch.New.Plain()}
	}
	return out
}
