// Package space manages tenant configuration: schema, membership, saved
// filters, templates and messenger settings.
package space

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/field"
	"github.com/spacenote/spacenote/internal/filter"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/template"
	"github.com/spacenote/spacenote/internal/types"
	"github.com/spacenote/spacenote/internal/user"
)

// Service manages spaces with an in-memory cache backed by storage.
type Service struct {
	store     storage.Store
	users     *user.Service
	templates *template.Service
	log       *slog.Logger

	mu     sync.RWMutex
	spaces map[string]*types.Space
}

func NewService(store storage.Store, users *user.Service, templates *template.Service, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		users:     users,
		templates: templates,
		log:       log.With("service", "space"),
		spaces:    make(map[string]*types.Space),
	}
}

// Start loads all spaces into the cache.
func (s *Service) Start(ctx context.Context) error {
	spaces, err := s.store.ListSpaces(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.spaces = make(map[string]*types.Space, len(spaces))
	for _, sp := range spaces {
		s.spaces[sp.Slug] = sp
	}
	s.mu.Unlock()
	s.log.Debug("space service started", "space_count", len(spaces))
	return nil
}

// Get returns the cached space.
func (s *Service) Get(slug string) (*types.Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.spaces[slug]
	if !ok {
		return nil, errs.NotFound("space %q", slug)
	}
	return sp, nil
}

// Has reports whether the space exists.
func (s *Service) Has(slug string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spaces[slug]
	return ok
}

// List returns all spaces sorted by slug.
func (s *Service) List() []*types.Space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Space, 0, len(s.spaces))
	for _, sp := range s.spaces {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// ListForMember returns the spaces username belongs to, sorted by slug.
func (s *Service) ListForMember(username string) []*types.Space {
	var out []*types.Space
	for _, sp := range s.List() {
		if sp.IsMember(username) {
			out = append(out, sp)
		}
	}
	return out
}

// Create adds an empty space. Every space starts with the implicit "all"
// filter stored explicitly so its columns and sort can be tuned later.
func (s *Service) Create(ctx context.Context, slug, title string, members []string) (*types.Space, error) {
	if !types.ValidSlug(slug) {
		return nil, errs.Validation("space slug must be a valid slug (lowercase alphanumeric with hyphens)")
	}
	if s.Has(slug) {
		return nil, errs.Validation("space %q already exists", slug)
	}
	if title == "" {
		return nil, errs.Validation("space title must not be empty")
	}
	if err := s.validateMembers(members); err != nil {
		return nil, err
	}
	sp := &types.Space{
		Slug:      slug,
		Title:     title,
		Members:   slices.Clone(members),
		Fields:    []types.FieldDef{},
		Filters:   []types.FilterDef{types.DefaultAllFilter()},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateSpace(ctx, sp); err != nil {
		return nil, err
	}
	s.cachePut(sp)
	s.log.Debug("space created", "slug", slug)
	return sp, nil
}

// Import inserts a fully formed space, used by the export/import pipeline.
// The slug must be free; member and filter contents are trusted as exported.
func (s *Service) Import(ctx context.Context, sp *types.Space) error {
	if !types.ValidSlug(sp.Slug) {
		return errs.Validation("space slug must be a valid slug (lowercase alphanumeric with hyphens)")
	}
	if s.Has(sp.Slug) {
		return errs.Validation("space %q already exists", sp.Slug)
	}
	if !hasFilter(sp, types.AllFilterName) {
		sp.Filters = append(sp.Filters, types.DefaultAllFilter())
	}
	if err := s.store.CreateSpace(ctx, sp); err != nil {
		return err
	}
	s.cachePut(sp)
	return nil
}

// UpdateTitle replaces the space title.
func (s *Service) UpdateTitle(ctx context.Context, slug, title string) (*types.Space, error) {
	if title == "" {
		return nil, errs.Validation("space title must not be empty")
	}
	return s.apply(ctx, slug, storage.SetTitle{Title: title})
}

// UpdateDescription replaces the space description.
func (s *Service) UpdateDescription(ctx context.Context, slug, description string) (*types.Space, error) {
	return s.apply(ctx, slug, storage.SetDescription{Description: description})
}

// UpdateMembers replaces the member list. Members must exist and the admin
// account is never a member.
func (s *Service) UpdateMembers(ctx context.Context, slug string, members []string) (*types.Space, error) {
	if err := s.validateMembers(members); err != nil {
		return nil, err
	}
	return s.apply(ctx, slug, storage.SetMembers{Members: slices.Clone(members)})
}

// UpdateHiddenFieldsOnCreate replaces the create-form hidden list. A hidden
// field must be fillable without input: optional, or required with a default.
func (s *Service) UpdateHiddenFieldsOnCreate(ctx context.Context, slug string, names []string) (*types.Space, error) {
	sp, err := s.Get(slug)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		def := sp.Field(name)
		if def == nil {
			return nil, errs.Validation("field %q not found in space", name)
		}
		if def.Required && def.Default == "" {
			return nil, errs.Validation("field %q is required and has no default, cannot be hidden", name)
		}
	}
	return s.apply(ctx, slug, storage.SetHiddenFieldsOnCreate{Names: slices.Clone(names)})
}

// UpdateEditableFieldsOnComment replaces the list of fields a comment may
// update inline.
func (s *Service) UpdateEditableFieldsOnComment(ctx context.Context, slug string, names []string) (*types.Space, error) {
	sp, err := s.Get(slug)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if sp.Field(name) == nil {
			return nil, errs.Validation("field %q not found in space", name)
		}
	}
	return s.apply(ctx, slug, storage.SetEditableFieldsOnComment{Names: slices.Clone(names)})
}

// AddField validates and appends a field definition.
func (s *Service) AddField(ctx context.Context, slug string, def types.FieldDef) (*types.Space, error) {
	sp, err := s.Get(slug)
	if err != nil {
		return nil, err
	}
	if sp.Field(def.Name) != nil {
		return nil, errs.Validation("field %q already exists in space", def.Name)
	}
	if err := field.ValidateDefinition(sp, &def); err != nil {
		return nil, err
	}
	return s.apply(ctx, slug, storage.AddField{Field: def})
}

// RemoveField drops a field definition and scrubs it from the hidden and
// editable lists. Saved filters must stop referencing the field first.
// Stored note values for the field become orphaned and are ignored on read.
func (s *Service) RemoveField(ctx context.Context, slug, name string) (*types.Space, error) {
	sp, err := s.Get(slug)
	if err != nil {
		return nil, err
	}
	if sp.Field(name) == nil {
		return nil, errs.NotFound("field %q in space %q", name, slug)
	}
	for i := range sp.Filters {
		if filter.ReferencesField(&sp.Filters[i], name) {
			return nil, errs.Validation("field %q is referenced by filter %q", name, sp.Filters[i].Name)
		}
	}
	updates := []storage.SpaceUpdate{storage.RemoveField{Name: name}}
	if slices.Contains(sp.HiddenFieldsOnCreate, name) {
		updates = append(updates, storage.SetHiddenFieldsOnCreate{Names: remove(sp.HiddenFieldsOnCreate, name)})
	}
	if slices.Contains(sp.EditableFieldsOnComment, name) {
		updates = append(updates, storage.SetEditableFieldsOnComment{Names: remove(sp.EditableFieldsOnComment, name)})
	}
	return s.apply(ctx, slug, updates...)
}

// AddFilter validates and appends a saved filter.
func (s *Service) AddFilter(ctx context.Context, slug string, f types.FilterDef) (*types.Space, error) {
	sp, err := s.Get(slug)
	if err != nil {
		return nil, err
	}
	if f.Name == types.AllFilterName {
		return nil, errs.Validation("filter name %q is reserved", types.AllFilterName)
	}
	if hasFilter(sp, f.Name) {
		return nil, errs.Validation("filter %q already exists in space", f.Name)
	}
	normalized, err := filter.ValidateFilter(sp, f)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, slug, storage.AddFilter{Filter: normalized})
}

// UpdateFilter replaces a saved filter in place. The "all" view keeps its
// name and empty conditions; only its columns and sort may change.
func (s *Service) UpdateFilter(ctx context.Context, slug string, f types.FilterDef) (*types.Space, error) {
	sp, err := s.Get(slug)
	if err != nil {
		return nil, err
	}
	if f.Name == types.AllFilterName && len(f.Conditions) > 0 {
		return nil, errs.Validation("the %q filter cannot have conditions", types.AllFilterName)
	}
	if f.Name != types.AllFilterName && !hasFilter(sp, f.Name) {
		return nil, errs.NotFound("filter %q in space %q", f.Name, slug)
	}
	normalized, err := filter.ValidateFilter(sp, f)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, slug, storage.ReplaceFilter{Filter: normalized})
}

// RemoveFilter deletes a saved filter. The "all" view cannot be removed.
func (s *Service) RemoveFilter(ctx context.Context, slug, name string) (*types.Space, error) {
	if name == types.AllFilterName {
		return nil, errs.Validation("the %q filter cannot be deleted", types.AllFilterName)
	}
	sp, err := s.Get(slug)
	if err != nil {
		return nil, err
	}
	if !hasFilter(sp, name) {
		return nil, errs.NotFound("filter %q in space %q", name, slug)
	}
	return s.apply(ctx, slug, storage.RemoveFilter{Name: name})
}

// SetTemplate stores a template under key. Empty source removes the key.
func (s *Service) SetTemplate(ctx context.Context, slug, key, source string) (*types.Space, error) {
	sp, err := s.Get(slug)
	if err != nil {
		return nil, err
	}
	if err := s.templates.Validate(sp, key, source); err != nil {
		return nil, err
	}
	return s.apply(ctx, slug, storage.SetTemplate{Key: key, Source: source})
}

// SetTelegram replaces the messenger settings. Nil clears them.
func (s *Service) SetTelegram(ctx context.Context, slug string, settings *types.TelegramSettings) (*types.Space, error) {
	return s.apply(ctx, slug, storage.SetTelegram{Settings: settings})
}

// Delete removes the space and every row that belongs to it. Blob cleanup is
// the caller's concern; this handles storage only. Order matters: content
// rows go before the space row so a crash leaves no orphans pointing at a
// missing space.
func (s *Service) Delete(ctx context.Context, slug string) error {
	if _, err := s.Get(slug); err != nil {
		return err
	}
	steps := []func(context.Context, string) error{
		s.store.DeleteTelegramTasksBySpace,
		s.store.DeleteTelegramMirrorsBySpace,
		s.store.DeleteAttachmentsBySpace,
		s.store.DeleteCommentsBySpace,
		s.store.DeleteNotesBySpace,
		s.store.DeleteCountersBySpace,
		s.store.DeleteSpace,
	}
	for _, step := range steps {
		if err := step(ctx, slug); err != nil {
			return err
		}
	}
	s.mu.Lock()
	delete(s.spaces, slug)
	s.mu.Unlock()
	s.log.Debug("space deleted", "slug", slug)
	return nil
}

// apply runs typed updates against storage and refreshes the cache with the
// updated document.
func (s *Service) apply(ctx context.Context, slug string, updates ...storage.SpaceUpdate) (*types.Space, error) {
	sp, err := s.store.UpdateSpace(ctx, slug, updates...)
	if err != nil {
		return nil, err
	}
	s.cachePut(sp)
	return sp, nil
}

func (s *Service) cachePut(sp *types.Space) {
	s.mu.Lock()
	s.spaces[sp.Slug] = sp
	s.mu.Unlock()
}

func (s *Service) validateMembers(members []string) error {
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m == types.AdminUsername {
			return errs.Validation("admin cannot be a space member")
		}
		if !s.users.Has(m) {
			return errs.Validation("user %q does not exist", m)
		}
		if seen[m] {
			return errs.Validation("duplicate member %q", m)
		}
		seen[m] = true
	}
	return nil
}

func hasFilter(sp *types.Space, name string) bool {
	for i := range sp.Filters {
		if sp.Filters[i].Name == name {
			return true
		}
	}
	return false
}

func remove(list []string, name string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}
