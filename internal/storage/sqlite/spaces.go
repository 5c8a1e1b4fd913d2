package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
)

// Spaces are stored as one JSON document per row. Updates are typed ops
// applied to the decoded document inside a write transaction; callers never
// hand raw fragments across the storage boundary.

func (s *Store) CreateSpace(ctx context.Context, space *types.Space) error {
	doc, err := json.Marshal(space)
	if err != nil {
		return fmt.Errorf("encode space: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO spaces (slug, doc) VALUES (?, ?)`, space.Slug, string(doc))
	if isConstraint(err) {
		return errs.Validation("space %q already exists", space.Slug)
	}
	if err != nil {
		return fmt.Errorf("create space: %w", err)
	}
	return nil
}

func (s *Store) GetSpace(ctx context.Context, slug string) (*types.Space, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM spaces WHERE slug = ?`, slug).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("space %q", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	return decodeSpace(doc)
}

func (s *Store) ListSpaces(ctx context.Context) ([]*types.Space, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM spaces ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*types.Space
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("list spaces: %w", err)
		}
		space, err := decodeSpace(doc)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, space)
	}
	return spaces, rows.Err()
}

func (s *Store) UpdateSpace(ctx context.Context, slug string, ops ...storage.SpaceUpdate) (*types.Space, error) {
	var updated *types.Space
	err := s.withTx(ctx, func(conn *sql.Conn) error {
		var doc string
		err := conn.QueryRowContext(ctx, `SELECT doc FROM spaces WHERE slug = ?`, slug).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound("space %q", slug)
		}
		if err != nil {
			return fmt.Errorf("update space: %w", err)
		}
		space, err := decodeSpace(doc)
		if err != nil {
			return err
		}
		for _, op := range ops {
			applySpaceUpdate(space, op)
		}
		out, err := json.Marshal(space)
		if err != nil {
			return fmt.Errorf("encode space: %w", err)
		}
		if _, err := conn.ExecContext(ctx, `UPDATE spaces SET doc = ? WHERE slug = ?`, string(out), slug); err != nil {
			return fmt.Errorf("update space: %w", err)
		}
		updated = space
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteSpace(ctx context.Context, slug string) error {
	res, err := s.exec(ctx, `DELETE FROM spaces WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("delete space: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("space %q", slug)
	}
	return nil
}

func decodeSpace(doc string) (*types.Space, error) {
	var space types.Space
	if err := json.Unmarshal([]byte(doc), &space); err != nil {
		return nil, fmt.Errorf("decode space: %w", err)
	}
	return &space, nil
}

// applySpaceUpdate applies one op mechanically. Validation (name collisions,
// member existence, reserved filter names) belongs to the space service; the
// backend only edits the document.
func applySpaceUpdate(space *types.Space, op storage.SpaceUpdate) {
	switch u := op.(type) {
	case storage.SetTitle:
		space.Title = u.Title
	case storage.SetDescription:
		space.Description = u.Description
	case storage.SetMembers:
		space.Members = u.Members
	case storage.AddField:
		space.Fields = append(space.Fields, u.Field)
	case storage.RemoveField:
		space.Fields = removeByName(space.Fields, u.Name, func(f types.FieldDef) string { return f.Name })
	case storage.AddFilter:
		space.Filters = append(space.Filters, u.Filter)
	case storage.ReplaceFilter:
		replaced := false
		for i := range space.Filters {
			if space.Filters[i].Name == u.Filter.Name {
				space.Filters[i] = u.Filter
				replaced = true
				break
			}
		}
		if !replaced {
			space.Filters = append(space.Filters, u.Filter)
		}
	case storage.RemoveFilter:
		space.Filters = removeByName(space.Filters, u.Name, func(f types.FilterDef) string { return f.Name })
	case storage.SetHiddenFieldsOnCreate:
		space.HiddenFieldsOnCreate = u.Names
	case storage.SetEditableFieldsOnComment:
		space.EditableFieldsOnComment = u.Names
	case storage.SetTemplate:
		if u.Source == "" {
			delete(space.Templates, u.Key)
			if len(space.Templates) == 0 {
				space.Templates = nil
			}
			return
		}
		if space.Templates == nil {
			space.Templates = make(map[string]string)
		}
		space.Templates[u.Key] = u.Source
	case storage.SetTelegram:
		space.Telegram = u.Settings
	}
}

func removeByName[T any](items []T, name string, key func(T) string) []T {
	out := items[:0]
	for _, it := range items {
		if key(it) != name {
			out = append(out, it)
		}
	}
	return out
}
