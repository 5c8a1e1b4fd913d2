package filter

import (
	"strings"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
)

// BuildQuery compiles a saved filter plus extra adhoc conditions into a
// storage query. $me placeholders resolve against currentUser here, at the
// last moment before execution.
func BuildQuery(space *types.Space, filterName, adhoc, currentUser string, limit, offset int) (storage.NoteQuery, error) {
	f := space.Filter(filterName)
	if f == nil {
		return storage.NoteQuery{}, errs.NotFound("filter %q in space %q", filterName, space.Slug)
	}

	limit, offset, err := normalizePage(limit, offset)
	if err != nil {
		return storage.NoteQuery{}, err
	}

	conditions := make([]types.Condition, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		conditions = append(conditions, resolveMe(c, currentUser))
	}
	extra, err := ParseAdhoc(space, adhoc)
	if err != nil {
		return storage.NoteQuery{}, err
	}
	for _, c := range extra {
		conditions = append(conditions, resolveMe(c, currentUser))
	}

	return storage.NoteQuery{
		Conditions: conditions,
		Sort:       sortKeys(f.Sort),
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func resolveMe(c types.Condition, currentUser string) types.Condition {
	if c.Value.IsMe {
		c.Value = types.ConditionValue{Value: types.StringValue(currentUser)}
	}
	return c
}

// sortKeys converts "-field" strings to storage sort keys. Empty sort means
// newest first.
func sortKeys(sort []string) []storage.SortKey {
	if len(sort) == 0 {
		return []storage.SortKey{{Field: "note.created_at", Desc: true}}
	}
	keys := make([]storage.SortKey, 0, len(sort))
	for _, s := range sort {
		if name, ok := strings.CutPrefix(s, "-"); ok {
			keys = append(keys, storage.SortKey{Field: normalizeFieldPath(name), Desc: true})
		} else {
			keys = append(keys, storage.SortKey{Field: normalizeFieldPath(s)})
		}
	}
	return keys
}

func normalizeFieldPath(name string) string {
	if _, ok := systemFields[name]; ok {
		return name
	}
	return strings.TrimPrefix(name, customFieldPrefix)
}

func normalizePage(limit, offset int) (int, int, error) {
	if limit == 0 {
		limit = types.DefaultPageLimit
	}
	if limit < 1 || limit > types.MaxPageLimit {
		return 0, 0, errs.Validation("limit must be between 1 and %d", types.MaxPageLimit)
	}
	if offset < 0 {
		return 0, 0, errs.Validation("offset must not be negative")
	}
	return limit, offset, nil
}
