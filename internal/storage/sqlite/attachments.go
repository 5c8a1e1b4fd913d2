package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

func (s *Store) InsertPendingAttachment(ctx context.Context, spaceSlug string, att *types.PendingAttachment) error {
	meta, err := json.Marshal(att.Meta)
	if err != nil {
		return fmt.Errorf("encode attachment meta: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO pending_attachments (space_slug, number, author, filename, size, mime_type, meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		spaceSlug, att.Number, att.Author, att.Filename, att.Size, att.MimeType,
		string(meta), fmtTime(att.CreatedAt))
	if isConstraint(err) {
		return errs.Validation("pending attachment %s/%d already exists", spaceSlug, att.Number)
	}
	if err != nil {
		return fmt.Errorf("insert pending attachment: %w", err)
	}
	return nil
}

func (s *Store) GetPendingAttachment(ctx context.Context, spaceSlug string, number int64) (*types.PendingAttachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT number, author, filename, size, mime_type, meta, created_at
		 FROM pending_attachments WHERE space_slug = ? AND number = ?`,
		spaceSlug, number)
	att, err := scanPendingAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("pending attachment %s/%d", spaceSlug, number)
	}
	if err != nil {
		return nil, fmt.Errorf("get pending attachment: %w", err)
	}
	return att, nil
}

func (s *Store) ListPendingAttachments(ctx context.Context, spaceSlug string) ([]*types.PendingAttachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, author, filename, size, mime_type, meta, created_at
		 FROM pending_attachments WHERE space_slug = ? ORDER BY number`, spaceSlug)
	if err != nil {
		return nil, fmt.Errorf("list pending attachments: %w", err)
	}
	defer rows.Close()

	var atts []*types.PendingAttachment
	for rows.Next() {
		att, err := scanPendingAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending attachments: %w", err)
		}
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

func (s *Store) DeletePendingAttachment(ctx context.Context, spaceSlug string, number int64) error {
	res, err := s.exec(ctx,
		`DELETE FROM pending_attachments WHERE space_slug = ? AND number = ?`, spaceSlug, number)
	if err != nil {
		return fmt.Errorf("delete pending attachment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("pending attachment %s/%d", spaceSlug, number)
	}
	return nil
}

const attachmentColumns = `space_slug, note_number, number, author, filename, size, mime_type, meta, created_at`

func (s *Store) InsertAttachment(ctx context.Context, att *types.Attachment) error {
	meta, err := json.Marshal(att.Meta)
	if err != nil {
		return fmt.Errorf("encode attachment meta: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO attachments (`+attachmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		att.SpaceSlug, nullableInt(att.NoteNumber), att.Number, att.Author,
		att.Filename, att.Size, att.MimeType, string(meta), fmtTime(att.CreatedAt))
	if isConstraint(err) {
		return errs.Validation("attachment %s/%d already exists", att.SpaceSlug, att.Number)
	}
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *Store) InsertAttachments(ctx context.Context, atts []*types.Attachment) error {
	if len(atts) == 0 {
		return nil
	}
	return s.withTx(ctx, func(conn *sql.Conn) error {
		for _, att := range atts {
			meta, err := json.Marshal(att.Meta)
			if err != nil {
				return fmt.Errorf("encode attachment meta: %w", err)
			}
			_, err = conn.ExecContext(ctx,
				`INSERT INTO attachments (`+attachmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				att.SpaceSlug, nullableInt(att.NoteNumber), att.Number, att.Author,
				att.Filename, att.Size, att.MimeType, string(meta), fmtTime(att.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert attachment %d: %w", att.Number, err)
			}
		}
		return nil
	})
}

func (s *Store) GetAttachment(ctx context.Context, spaceSlug string, noteNumber *int64, number int64) (*types.Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments
		 WHERE space_slug = ? AND IFNULL(note_number, 0) = ? AND number = ?`,
		spaceSlug, counterNote(noteNumber), number)
	att, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("attachment %s/%d", spaceSlug, number)
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return att, nil
}

func (s *Store) ListAttachments(ctx context.Context, spaceSlug string, noteNumber *int64) ([]*types.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments
		 WHERE space_slug = ? AND IFNULL(note_number, 0) = ? ORDER BY number`,
		spaceSlug, counterNote(noteNumber))
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return collectAttachments(rows)
}

func (s *Store) ListAllAttachments(ctx context.Context, spaceSlug string) ([]*types.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments
		 WHERE space_slug = ? ORDER BY IFNULL(note_number, 0), number`, spaceSlug)
	if err != nil {
		return nil, fmt.Errorf("list all attachments: %w", err)
	}
	return collectAttachments(rows)
}

func (s *Store) DeleteAttachmentsByNote(ctx context.Context, spaceSlug string, noteNumber int64) error {
	if _, err := s.exec(ctx,
		`DELETE FROM attachments WHERE space_slug = ? AND note_number = ?`, spaceSlug, noteNumber); err != nil {
		return fmt.Errorf("delete note attachments: %w", err)
	}
	return nil
}

func (s *Store) DeleteAttachmentsBySpace(ctx context.Context, spaceSlug string) error {
	if _, err := s.exec(ctx, `DELETE FROM attachments WHERE space_slug = ?`, spaceSlug); err != nil {
		return fmt.Errorf("delete space attachments: %w", err)
	}
	return nil
}

func collectAttachments(rows *sql.Rows) ([]*types.Attachment, error) {
	defer rows.Close()
	var atts []*types.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

func scanPendingAttachment(row rowScanner) (*types.PendingAttachment, error) {
	var att types.PendingAttachment
	var meta, createdAt string
	err := row.Scan(&att.Number, &att.Author, &att.Filename, &att.Size, &att.MimeType, &meta, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &att.Meta); err != nil {
		return nil, fmt.Errorf("decode attachment meta: %w", err)
	}
	if att.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &att, nil
}

func scanAttachment(row rowScanner) (*types.Attachment, error) {
	var att types.Attachment
	var meta, createdAt string
	var noteNumber sql.NullInt64
	err := row.Scan(&att.SpaceSlug, &noteNumber, &att.Number, &att.Author,
		&att.Filename, &att.Size, &att.MimeType, &meta, &createdAt)
	if err != nil {
		return nil, err
	}
	if noteNumber.Valid {
		att.NoteNumber = &noteNumber.Int64
	}
	if err := json.Unmarshal([]byte(meta), &att.Meta); err != nil {
		return nil, fmt.Errorf("decode attachment meta: %w", err)
	}
	if att.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &att, nil
}
