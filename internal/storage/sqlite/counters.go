package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spacenote/spacenote/internal/types"
)

// Counters are (kind, space, note) rows holding the last issued number.
// note_number 0 stands in for "no note" because the primary key cannot hold
// NULL. Real note numbers start at 1 so the sentinel never collides.

func counterNote(noteNumber *int64) int64 {
	if noteNumber == nil {
		return 0
	}
	return *noteNumber
}

func (s *Store) NextSequence(ctx context.Context, kind types.CounterKind, spaceSlug string, noteNumber *int64) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO counters (kind, space_slug, note_number, seq) VALUES (?, ?, ?, 1)
		 ON CONFLICT (kind, space_slug, note_number) DO UPDATE SET seq = seq + 1
		 RETURNING seq`,
		string(kind), spaceSlug, counterNote(noteNumber)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s/%s: %w", kind, spaceSlug, err)
	}
	return seq, nil
}

func (s *Store) SetSequence(ctx context.Context, kind types.CounterKind, spaceSlug string, noteNumber *int64, value int64) error {
	_, err := s.exec(ctx,
		`INSERT INTO counters (kind, space_slug, note_number, seq) VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, space_slug, note_number) DO UPDATE SET seq = excluded.seq`,
		string(kind), spaceSlug, counterNote(noteNumber), value)
	if err != nil {
		return fmt.Errorf("set sequence %s/%s: %w", kind, spaceSlug, err)
	}
	return nil
}

func (s *Store) SequenceValue(ctx context.Context, kind types.CounterKind, spaceSlug string, noteNumber *int64) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM counters WHERE kind = ? AND space_slug = ? AND note_number = ?`,
		string(kind), spaceSlug, counterNote(noteNumber)).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sequence value %s/%s: %w", kind, spaceSlug, err)
	}
	return seq, nil
}

func (s *Store) DeleteCountersBySpace(ctx context.Context, spaceSlug string) error {
	if _, err := s.exec(ctx, `DELETE FROM counters WHERE space_slug = ?`, spaceSlug); err != nil {
		return fmt.Errorf("delete counters: %w", err)
	}
	return nil
}

func (s *Store) DeleteCountersByNote(ctx context.Context, spaceSlug string, noteNumber int64) error {
	if _, err := s.exec(ctx, `DELETE FROM counters WHERE space_slug = ? AND note_number = ?`, spaceSlug, noteNumber); err != nil {
		return fmt.Errorf("delete note counters: %w", err)
	}
	return nil
}
