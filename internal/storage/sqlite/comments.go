package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

const commentColumns = `space_slug, note_number, number, author, content, created_at, edited_at, parent_number`

func (s *Store) InsertComment(ctx context.Context, comment *types.Comment) error {
	_, err := s.exec(ctx,
		`INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		comment.SpaceSlug, comment.NoteNumber, comment.Number, comment.Author,
		comment.Content, fmtTime(comment.CreatedAt), fmtTimePtr(comment.EditedAt),
		nullableInt(comment.ParentNumber))
	if isConstraint(err) {
		return errs.Validation("comment %s/%d/%d already exists", comment.SpaceSlug, comment.NoteNumber, comment.Number)
	}
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *Store) InsertComments(ctx context.Context, comments []*types.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	return s.withTx(ctx, func(conn *sql.Conn) error {
		for _, c := range comments {
			_, err := conn.ExecContext(ctx,
				`INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				c.SpaceSlug, c.NoteNumber, c.Number, c.Author,
				c.Content, fmtTime(c.CreatedAt), fmtTimePtr(c.EditedAt), nullableInt(c.ParentNumber))
			if err != nil {
				return fmt.Errorf("insert comment %d: %w", c.Number, err)
			}
		}
		return nil
	})
}

func (s *Store) GetComment(ctx context.Context, spaceSlug string, noteNumber, number int64) (*types.Comment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE space_slug = ? AND note_number = ? AND number = ?`,
		spaceSlug, noteNumber, number)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("comment %s/%d/%d", spaceSlug, noteNumber, number)
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, spaceSlug string, noteNumber int64, limit, offset int) ([]*types.Comment, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE space_slug = ? AND note_number = ?`,
		spaceSlug, noteNumber).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	query := `SELECT ` + commentColumns + ` FROM comments WHERE space_slug = ? AND note_number = ? ORDER BY number`
	args := []any{spaceSlug, noteNumber}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []*types.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("list comments: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, total, rows.Err()
}

func (s *Store) ListAllComments(ctx context.Context, spaceSlug string) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE space_slug = ? ORDER BY note_number, number`,
		spaceSlug)
	if err != nil {
		return nil, fmt.Errorf("list all comments: %w", err)
	}
	defer rows.Close()

	var comments []*types.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("list all comments: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) SetCommentContent(ctx context.Context, spaceSlug string, noteNumber, number int64, content string, editedAt time.Time) error {
	res, err := s.exec(ctx,
		`UPDATE comments SET content = ?, edited_at = ? WHERE space_slug = ? AND note_number = ? AND number = ?`,
		content, fmtTime(editedAt), spaceSlug, noteNumber, number)
	if err != nil {
		return fmt.Errorf("set comment content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("comment %s/%d/%d", spaceSlug, noteNumber, number)
	}
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, spaceSlug string, noteNumber, number int64) error {
	res, err := s.exec(ctx,
		`DELETE FROM comments WHERE space_slug = ? AND note_number = ? AND number = ?`,
		spaceSlug, noteNumber, number)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("comment %s/%d/%d", spaceSlug, noteNumber, number)
	}
	return nil
}

func (s *Store) DeleteCommentsByNote(ctx context.Context, spaceSlug string, noteNumber int64) error {
	if _, err := s.exec(ctx,
		`DELETE FROM comments WHERE space_slug = ? AND note_number = ?`, spaceSlug, noteNumber); err != nil {
		return fmt.Errorf("delete note comments: %w", err)
	}
	return nil
}

func (s *Store) DeleteCommentsBySpace(ctx context.Context, spaceSlug string) error {
	if _, err := s.exec(ctx, `DELETE FROM comments WHERE space_slug = ?`, spaceSlug); err != nil {
		return fmt.Errorf("delete space comments: %w", err)
	}
	return nil
}

func nullableInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func scanComment(row rowScanner) (*types.Comment, error) {
	var c types.Comment
	var createdAt string
	var editedAt sql.NullString
	var parent sql.NullInt64
	err := row.Scan(&c.SpaceSlug, &c.NoteNumber, &c.Number, &c.Author,
		&c.Content, &createdAt, &editedAt, &parent)
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.EditedAt, err = parseTimePtr(editedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		c.ParentNumber = &parent.Int64
	}
	return &c, nil
}
