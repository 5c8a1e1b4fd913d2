package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
)

func (s *Store) InsertNote(ctx context.Context, note *types.Note) error {
	fields, err := json.Marshal(note.Fields.Plain())
	if err != nil {
		return fmt.Errorf("encode note fields: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO notes (space_slug, number, author, created_at, edited_at, commented_at, activity_at, fields)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		note.SpaceSlug, note.Number, note.Author,
		fmtTime(note.CreatedAt), fmtTimePtr(note.EditedAt), fmtTimePtr(note.CommentedAt),
		fmtTime(note.ActivityAt), string(fields))
	if isConstraint(err) {
		return errs.Validation("note %s/%d already exists", note.SpaceSlug, note.Number)
	}
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *Store) InsertNotes(ctx context.Context, notes []*types.Note) error {
	if len(notes) == 0 {
		return nil
	}
	return s.withTx(ctx, func(conn *sql.Conn) error {
		for _, note := range notes {
			fields, err := json.Marshal(note.Fields.Plain())
			if err != nil {
				return fmt.Errorf("encode note fields: %w", err)
			}
			_, err = conn.ExecContext(ctx,
				`INSERT INTO notes (space_slug, number, author, created_at, edited_at, commented_at, activity_at, fields)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				note.SpaceSlug, note.Number, note.Author,
				fmtTime(note.CreatedAt), fmtTimePtr(note.EditedAt), fmtTimePtr(note.CommentedAt),
				fmtTime(note.ActivityAt), string(fields))
			if err != nil {
				return fmt.Errorf("insert note %d: %w", note.Number, err)
			}
		}
		return nil
	})
}

const noteColumns = `space_slug, number, author, created_at, edited_at, commented_at, activity_at, fields`

func (s *Store) GetNote(ctx context.Context, space *types.Space, number int64) (*types.Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE space_slug = ? AND number = ?`,
		space.Slug, number)
	note, err := scanNote(space, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("note %s/%d", space.Slug, number)
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return note, nil
}

func (s *Store) QueryNotes(ctx context.Context, space *types.Space, q storage.NoteQuery) ([]*types.Note, int64, error) {
	where, args, err := buildNoteWhere(space, q.Conditions)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countArgs := append([]any{space.Slug}, args...)
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE space_slug = ?`+where, countArgs...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	query := `SELECT ` + noteColumns + ` FROM notes WHERE space_slug = ?` + where +
		buildNoteOrder(q.Sort)
	pageArgs := countArgs
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(pageArgs, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []*types.Note
	for rows.Next() {
		note, err := scanNote(space, rows)
		if err != nil {
			return nil, 0, fmt.Errorf("query notes: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, total, rows.Err()
}

func (s *Store) ListAllNotes(ctx context.Context, space *types.Space) ([]*types.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE space_slug = ? ORDER BY number`, space.Slug)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []*types.Note
	for rows.Next() {
		note, err := scanNote(space, rows)
		if err != nil {
			return nil, fmt.Errorf("list notes: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (s *Store) SetNoteFields(ctx context.Context, spaceSlug string, number int64, fields types.FieldValues, editedAt time.Time) error {
	doc, err := json.Marshal(fields.Plain())
	if err != nil {
		return fmt.Errorf("encode note fields: %w", err)
	}
	res, err := s.exec(ctx,
		`UPDATE notes SET fields = ?, edited_at = ?, activity_at = ? WHERE space_slug = ? AND number = ?`,
		string(doc), fmtTime(editedAt), fmtTime(editedAt), spaceSlug, number)
	if err != nil {
		return fmt.Errorf("set note fields: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("note %s/%d", spaceSlug, number)
	}
	return nil
}

func (s *Store) BumpNoteActivity(ctx context.Context, spaceSlug string, number int64, at time.Time, commented bool) error {
	var res sql.Result
	var err error
	if commented {
		res, err = s.exec(ctx,
			`UPDATE notes SET activity_at = ?, commented_at = ? WHERE space_slug = ? AND number = ?`,
			fmtTime(at), fmtTime(at), spaceSlug, number)
	} else {
		res, err = s.exec(ctx,
			`UPDATE notes SET activity_at = ? WHERE space_slug = ? AND number = ?`,
			fmtTime(at), spaceSlug, number)
	}
	if err != nil {
		return fmt.Errorf("bump note activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("note %s/%d", spaceSlug, number)
	}
	return nil
}

func (s *Store) DeleteNote(ctx context.Context, spaceSlug string, number int64) error {
	res, err := s.exec(ctx, `DELETE FROM notes WHERE space_slug = ? AND number = ?`, spaceSlug, number)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("note %s/%d", spaceSlug, number)
	}
	return nil
}

func (s *Store) DeleteNotesBySpace(ctx context.Context, spaceSlug string) error {
	if _, err := s.exec(ctx, `DELETE FROM notes WHERE space_slug = ?`, spaceSlug); err != nil {
		return fmt.Errorf("delete notes: %w", err)
	}
	return nil
}

func scanNote(space *types.Space, row rowScanner) (*types.Note, error) {
	var note types.Note
	var createdAt, activityAt, fieldsDoc string
	var editedAt, commentedAt sql.NullString
	err := row.Scan(&note.SpaceSlug, &note.Number, &note.Author,
		&createdAt, &editedAt, &commentedAt, &activityAt, &fieldsDoc)
	if err != nil {
		return nil, err
	}
	if note.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if note.ActivityAt, err = parseTime(activityAt); err != nil {
		return nil, err
	}
	if note.EditedAt, err = parseTimePtr(editedAt); err != nil {
		return nil, err
	}
	if note.CommentedAt, err = parseTimePtr(commentedAt); err != nil {
		return nil, err
	}
	note.Fields, err = types.DecodeFieldValues(space.Fields, []byte(fieldsDoc))
	if err != nil {
		return nil, err
	}
	return &note, nil
}
