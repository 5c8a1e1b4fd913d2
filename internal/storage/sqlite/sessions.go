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

func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	_, err := s.exec(ctx,
		`INSERT INTO sessions (auth_token, username, created_at) VALUES (?, ?, ?)`,
		session.AuthToken, session.Username, fmtTime(session.CreatedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, authToken string) (*types.Session, error) {
	var sess types.Session
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT auth_token, username, created_at FROM sessions WHERE auth_token = ?`,
		authToken).Scan(&sess.AuthToken, &sess.Username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("session")
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = t
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, authToken string) error {
	if _, err := s.exec(ctx, `DELETE FROM sessions WHERE auth_token = ?`, authToken); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM sessions WHERE created_at < ?`, fmtTime(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
