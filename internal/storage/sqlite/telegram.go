package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

const telegramTaskColumns = `number, task_type, channel_id, space_slug, note_number, payload, status, created_at, attempted_at, retries, error`

func (s *Store) InsertTelegramTask(ctx context.Context, task *types.TelegramTask) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("encode task payload: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO telegram_tasks (`+telegramTaskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.Number, string(task.TaskType), task.ChannelID, task.SpaceSlug, task.NoteNumber,
		string(payload), string(task.Status), fmtTime(task.CreatedAt),
		fmtTimePtr(task.AttemptedAt), task.Retries, task.Error)
	if err != nil {
		return fmt.Errorf("insert telegram task: %w", err)
	}
	return nil
}

func (s *Store) NextPendingTelegramTask(ctx context.Context) (*types.TelegramTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+telegramTaskColumns+` FROM telegram_tasks WHERE status = ? ORDER BY number LIMIT 1`,
		string(types.TaskPending))
	task, err := scanTelegramTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending task: %w", err)
	}
	return task, nil
}

func (s *Store) MarkTelegramTaskCompleted(ctx context.Context, number int64) error {
	res, err := s.exec(ctx,
		`UPDATE telegram_tasks SET status = ?, error = '' WHERE number = ?`,
		string(types.TaskCompleted), number)
	if err != nil {
		return fmt.Errorf("complete telegram task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("telegram task %d", number)
	}
	return nil
}

func (s *Store) MarkTelegramTaskFailed(ctx context.Context, number int64, errMsg string) error {
	res, err := s.exec(ctx,
		`UPDATE telegram_tasks SET status = ?, error = ? WHERE number = ?`,
		string(types.TaskFailed), errMsg, number)
	if err != nil {
		return fmt.Errorf("fail telegram task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("telegram task %d", number)
	}
	return nil
}

func (s *Store) RecordTelegramTaskAttempt(ctx context.Context, number int64, at time.Time, errMsg string) error {
	res, err := s.exec(ctx,
		`UPDATE telegram_tasks SET retries = retries + 1, attempted_at = ?, error = ? WHERE number = ?`,
		fmtTime(at), errMsg, number)
	if err != nil {
		return fmt.Errorf("record task attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("telegram task %d", number)
	}
	return nil
}

func (s *Store) ListTelegramTasks(ctx context.Context, limit, offset int) ([]*types.TelegramTask, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telegram_tasks`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count telegram tasks: %w", err)
	}
	query := `SELECT ` + telegramTaskColumns + ` FROM telegram_tasks ORDER BY number DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list telegram tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.TelegramTask
	for rows.Next() {
		task, err := scanTelegramTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("list telegram tasks: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, total, rows.Err()
}

func (s *Store) DeleteTelegramTasksByNote(ctx context.Context, spaceSlug string, noteNumber int64) error {
	if _, err := s.exec(ctx,
		`DELETE FROM telegram_tasks WHERE space_slug = ? AND note_number = ?`, spaceSlug, noteNumber); err != nil {
		return fmt.Errorf("delete note telegram tasks: %w", err)
	}
	return nil
}

func (s *Store) DeleteTelegramTasksBySpace(ctx context.Context, spaceSlug string) error {
	if _, err := s.exec(ctx, `DELETE FROM telegram_tasks WHERE space_slug = ?`, spaceSlug); err != nil {
		return fmt.Errorf("delete space telegram tasks: %w", err)
	}
	return nil
}

func scanTelegramTask(row rowScanner) (*types.TelegramTask, error) {
	var task types.TelegramTask
	var taskType, status, payload, createdAt string
	var attemptedAt sql.NullString
	err := row.Scan(&task.Number, &taskType, &task.ChannelID, &task.SpaceSlug, &task.NoteNumber,
		&payload, &status, &createdAt, &attemptedAt, &task.Retries, &task.Error)
	if err != nil {
		return nil, err
	}
	task.TaskType = types.TelegramTaskType(taskType)
	task.Status = types.TelegramTaskStatus(status)
	if payload != "" && payload != "null" {
		if err := json.Unmarshal([]byte(payload), &task.Payload); err != nil {
			return nil, fmt.Errorf("decode task payload: %w", err)
		}
	}
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if task.AttemptedAt, err = parseTimePtr(attemptedAt); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Store) InsertTelegramMirror(ctx context.Context, mirror *types.TelegramMirror) error {
	_, err := s.exec(ctx,
		`INSERT INTO telegram_mirrors (space_slug, note_number, channel_id, message_id, message_format, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mirror.SpaceSlug, mirror.NoteNumber, mirror.ChannelID, mirror.MessageID,
		string(mirror.MessageFormat), fmtTime(mirror.CreatedAt), fmtTimePtr(mirror.UpdatedAt))
	if isConstraint(err) {
		return errs.Validation("mirror for note %s/%d already exists", mirror.SpaceSlug, mirror.NoteNumber)
	}
	if err != nil {
		return fmt.Errorf("insert telegram mirror: %w", err)
	}
	return nil
}

func (s *Store) GetTelegramMirror(ctx context.Context, spaceSlug string, noteNumber int64) (*types.TelegramMirror, error) {
	var mirror types.TelegramMirror
	var format, createdAt string
	var updatedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT space_slug, note_number, channel_id, message_id, message_format, created_at, updated_at
		 FROM telegram_mirrors WHERE space_slug = ? AND note_number = ?`,
		spaceSlug, noteNumber).Scan(&mirror.SpaceSlug, &mirror.NoteNumber, &mirror.ChannelID,
		&mirror.MessageID, &format, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get telegram mirror: %w", err)
	}
	mirror.MessageFormat = types.MessageFormat(format)
	if mirror.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if mirror.UpdatedAt, err = parseTimePtr(updatedAt); err != nil {
		return nil, err
	}
	return &mirror, nil
}

func (s *Store) TouchTelegramMirror(ctx context.Context, spaceSlug string, noteNumber int64, at time.Time) error {
	res, err := s.exec(ctx,
		`UPDATE telegram_mirrors SET updated_at = ? WHERE space_slug = ? AND note_number = ?`,
		fmtTime(at), spaceSlug, noteNumber)
	if err != nil {
		return fmt.Errorf("touch telegram mirror: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("mirror for note %s/%d", spaceSlug, noteNumber)
	}
	return nil
}

func (s *Store) DeleteTelegramMirror(ctx context.Context, spaceSlug string, noteNumber int64) error {
	if _, err := s.exec(ctx,
		`DELETE FROM telegram_mirrors WHERE space_slug = ? AND note_number = ?`, spaceSlug, noteNumber); err != nil {
		return fmt.Errorf("delete telegram mirror: %w", err)
	}
	return nil
}

func (s *Store) DeleteTelegramMirrorsBySpace(ctx context.Context, spaceSlug string) error {
	if _, err := s.exec(ctx, `DELETE FROM telegram_mirrors WHERE space_slug = ?`, spaceSlug); err != nil {
		return fmt.Errorf("delete space telegram mirrors: %w", err)
	}
	return nil
}
