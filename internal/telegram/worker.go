package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/telemetry"
	"github.com/spacenote/spacenote/internal/template"
	"github.com/spacenote/spacenote/internal/types"
)

var (
	tracer         = telemetry.Tracer("spacenote/telegram")
	tasksProcessed metric.Int64Counter
	tasksFailed    metric.Int64Counter
)

func init() {
	meter := telemetry.Meter("spacenote/telegram")
	tasksProcessed, _ = meter.Int64Counter("spacenote.telegram.tasks.processed")
	tasksFailed, _ = meter.Int64Counter("spacenote.telegram.tasks.failed")
}

const (
	idleSleep  = 3 * time.Second
	paceSleep  = 1 * time.Second
	maxRetries = 3
)

// SpaceSource resolves slugs to spaces. Satisfied by the space service.
type SpaceSource interface {
	Get(slug string) (*types.Space, error)
}

// RenditionSource reads produced WebP renditions. Satisfied by the image
// service.
type RenditionSource interface {
	Rendition(spaceSlug string, noteNumber, attachmentNumber int64) ([]byte, error)
}

// Worker drains the task queue against a provider. Exactly one worker runs
// per process; it owns mirror state transitions.
type Worker struct {
	store      storage.Store
	spaces     SpaceSource
	templates  *template.Service
	renditions RenditionSource
	provider   Provider
	log        *slog.Logger
}

func NewWorker(store storage.Store, spaces SpaceSource, templates *template.Service, renditions RenditionSource, provider Provider, log *slog.Logger) *Worker {
	return &Worker{
		store:      store,
		spaces:     spaces,
		templates:  templates,
		renditions: renditions,
		provider:   provider,
		log:        log.With("service", "telegram-worker"),
	}
}

// Run polls for pending tasks until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("telegram worker started")
	for {
		processed, err := w.Step(ctx)
		if err != nil {
			w.log.Error("telegram worker step failed", "error", err)
		}
		pause := paceSleep
		if !processed {
			pause = idleSleep
		}
		if !sleep(ctx, pause) {
			w.log.Info("telegram worker stopped")
			return
		}
	}
}

// Step takes the oldest pending task, if any, through one delivery attempt.
// It reports whether a task was picked up. The returned error covers queue
// infrastructure only; delivery errors land on the task itself.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	task, err := w.store.NextPendingTelegramTask(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	ctx, span := tracer.Start(ctx, "telegram.task",
		trace.WithAttributes(
			attribute.String("type", string(task.TaskType)),
			attribute.String("space", task.SpaceSlug),
		))
	defer span.End()

	err = w.process(ctx, task)
	switch {
	case err == nil:
		tasksProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(task.TaskType))))
		return true, w.store.MarkTelegramTaskCompleted(ctx, task.Number)
	case isRateLimited(err):
		var rl *RateLimitedError
		errors.As(err, &rl)
		w.log.Warn("telegram rate limited", "task", task.Number, "retry_after", rl.RetryAfter)
		sleep(ctx, rl.RetryAfter)
		return true, nil
	default:
		w.log.Warn("telegram task attempt failed", "task", task.Number, "type", task.TaskType, "error", err)
		if recErr := w.store.RecordTelegramTaskAttempt(ctx, task.Number, time.Now().UTC(), err.Error()); recErr != nil {
			return true, recErr
		}
		if task.Retries+1 >= maxRetries {
			tasksFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(task.TaskType))))
			return true, w.store.MarkTelegramTaskFailed(ctx, task.Number, err.Error())
		}
		return true, nil
	}
}

func (w *Worker) process(ctx context.Context, task *types.TelegramTask) error {
	space, err := w.spaces.Get(task.SpaceSlug)
	if err != nil {
		return fmt.Errorf("resolve space: %w", err)
	}

	switch task.TaskType {
	case types.TaskActivityNoteCreated, types.TaskActivityNoteUpdated, types.TaskActivityCommentCreated:
		text := w.templates.RenderTelegram(space, string(task.TaskType), task.Payload)
		if text == "" {
			return fmt.Errorf("template %s rendered empty", task.TaskType)
		}
		_, err := w.provider.SendText(ctx, task.ChannelID, text)
		return err
	case types.TaskMirrorCreate:
		return w.createMirror(ctx, space, task)
	case types.TaskMirrorUpdate:
		return w.updateMirror(ctx, space, task)
	}
	return fmt.Errorf("unknown task type %q", task.TaskType)
}

// createMirror sends the mirror message in the mode the template selects and
// records the binding.
func (w *Worker) createMirror(ctx context.Context, space *types.Space, task *types.TelegramTask) error {
	photoField, body := w.templates.MirrorPlan(space)
	if body == "" && photoField == "" {
		return fmt.Errorf("no mirror template configured for space %q", space.Slug)
	}
	text := w.templates.RenderSource(body, task.Payload)

	var messageID int64
	format := types.MessageText
	if photoField != "" {
		photo, err := w.renditionFor(space, task, photoField)
		if err != nil {
			return err
		}
		messageID, err = w.provider.SendPhoto(ctx, task.ChannelID, photo, text)
		if err != nil {
			return err
		}
		format = types.MessagePhoto
	} else {
		var err error
		messageID, err = w.provider.SendText(ctx, task.ChannelID, text)
		if err != nil {
			return err
		}
	}

	return w.store.InsertTelegramMirror(ctx, &types.TelegramMirror{
		SpaceSlug:     task.SpaceSlug,
		NoteNumber:    task.NoteNumber,
		ChannelID:     task.ChannelID,
		MessageID:     messageID,
		MessageFormat: format,
		CreatedAt:     time.Now().UTC(),
	})
}

// updateMirror edits the existing message in its recorded mode. A gone
// message drops the stale binding and falls through to create; an unchanged
// edit counts as success and still advances updated_at.
func (w *Worker) updateMirror(ctx context.Context, space *types.Space, task *types.TelegramTask) error {
	mirror, err := w.store.GetTelegramMirror(ctx, task.SpaceSlug, task.NoteNumber)
	if err != nil {
		return err
	}
	if mirror == nil {
		return w.createMirror(ctx, space, task)
	}

	photoField, body := w.templates.MirrorPlan(space)
	text := w.templates.RenderSource(body, task.Payload)

	switch mirror.MessageFormat {
	case types.MessagePhoto:
		photo, rerr := w.renditionFor(space, task, photoField)
		if rerr != nil {
			return rerr
		}
		err = w.provider.EditPhoto(ctx, mirror.ChannelID, mirror.MessageID, photo, text)
	default:
		err = w.provider.EditText(ctx, mirror.ChannelID, mirror.MessageID, text)
	}

	switch {
	case err == nil, errors.Is(err, ErrNotModified):
		return w.store.TouchTelegramMirror(ctx, task.SpaceSlug, task.NoteNumber, time.Now().UTC())
	case errors.Is(err, ErrMessageGone):
		if derr := w.store.DeleteTelegramMirror(ctx, task.SpaceSlug, task.NoteNumber); derr != nil {
			return derr
		}
		return w.createMirror(ctx, space, task)
	}
	return err
}

// renditionFor resolves the photo bytes for the mirror's image field. The
// field value in the payload is the bound attachment number. A rendition the
// background pipeline has not produced yet fails the task; there is no
// silent fallback to text.
func (w *Worker) renditionFor(space *types.Space, task *types.TelegramTask, photoField string) ([]byte, error) {
	if photoField == "" {
		return nil, fmt.Errorf("mirror template no longer selects a photo field")
	}
	note, ok := task.Payload["note"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("task payload carries no note")
	}
	fields, ok := note["fields"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("task payload carries no note fields")
	}
	number, ok := asInt64(fields[photoField])
	if !ok {
		return nil, fmt.Errorf("note has no value for image field %q", photoField)
	}
	return w.renditions.Rendition(space.Slug, task.NoteNumber, number)
}

// asInt64 tolerates the numeric shapes a payload value can take after a JSON
// round trip through storage.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func isRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// sleep waits d unless the context ends first. It reports whether the wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
