// Package template renders note titles and messenger payloads with Liquid
// templates stored per space.
package template

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/osteele/liquid"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// Recognized template keys. Web presentation templates are stored for
// external renderers and never rendered here.
const (
	KeyNoteTitle              = "note:title"
	KeyTelegramMirror         = "telegram:mirror"
	KeyActivityNoteCreated    = "telegram:activity_note_created"
	KeyActivityNoteUpdated    = "telegram:activity_note_updated"
	KeyActivityCommentCreated = "telegram:activity_comment_created"

	keyWebNoteDetail       = "web:note:detail"
	keyWebNoteListPrefix   = "web:note:list:"
	keyReactNoteDetail     = "web_react:note:detail"
	keyReactNoteListPrefix = "web_react:note:list:"
	keyTelegramPrefix      = "telegram:"
)

// defaultTemplates apply when a space has not overridden a key.
var defaultTemplates = map[string]string{
	KeyNoteTitle:              "Note #{{ note.number }}",
	KeyActivityNoteCreated:    "📝 New note #{{ note.number }}\n{{ note.title }}\nby {{ note.author }}",
	KeyActivityNoteUpdated:    "✏️ Note #{{ note.number }} updated\n{{ note.title }}",
	KeyActivityCommentCreated: "💬 Comment on {{ note.title }}\n{{ comment.content }}\nby {{ comment.author }}",
}

// photoDirectiveRE matches a leading photo directive on the mirror template.
var photoDirectiveRE = regexp.MustCompile(`^\{#\s*photo:\s*([a-z0-9][a-z0-9_-]*)\s*#\}\s*`)

// Service validates and renders space templates.
type Service struct {
	engine  *liquid.Engine
	siteURL string
	log     *slog.Logger
}

func NewService(siteURL string, log *slog.Logger) *Service {
	return &Service{
		engine:  liquid.NewEngine(),
		siteURL: strings.TrimRight(siteURL, "/"),
		log:     log.With("service", "template"),
	}
}

// Validate checks a key/source pair before it is stored. Liquid syntax is
// checked for renderable keys; web presentation keys are stored opaquely,
// except that list keys must reference an existing filter.
func (s *Service) Validate(space *types.Space, key, source string) error {
	switch {
	case key == KeyNoteTitle:
		return s.checkSyntax(source)
	case key == keyWebNoteDetail || key == keyReactNoteDetail:
		return nil
	case strings.HasPrefix(key, keyWebNoteListPrefix):
		return checkListFilter(space, strings.TrimPrefix(key, keyWebNoteListPrefix))
	case strings.HasPrefix(key, keyReactNoteListPrefix):
		return checkListFilter(space, strings.TrimPrefix(key, keyReactNoteListPrefix))
	case strings.HasPrefix(key, keyTelegramPrefix):
		return s.checkSyntax(photoDirectiveRE.ReplaceAllString(source, ""))
	}
	return errs.Validation("invalid template key %q", key)
}

func (s *Service) checkSyntax(source string) error {
	if strings.TrimSpace(source) == "" {
		return nil
	}
	if _, err := s.engine.ParseString(source); err != nil {
		return errs.Validation("invalid template syntax: %v", err)
	}
	return nil
}

func checkListFilter(space *types.Space, filterName string) error {
	if filterName == "" || space.Filter(filterName) == nil {
		return errs.Validation("filter %q not found", filterName)
	}
	return nil
}

// NoteTitle renders the note:title template. Rendering failures fall back to
// the default form so note reads never fail on a bad template.
func (s *Service) NoteTitle(space *types.Space, note *types.Note) string {
	title := s.render(space, KeyNoteTitle, map[string]any{
		"note":  NoteContext(note),
		"space": spaceContext(space),
	})
	if title == "" {
		title = fmt.Sprintf("Note #%d", note.Number)
	}
	return title
}

// RenderTelegram renders a telegram template with the task payload as
// context. When the payload carries a note, a site URL is added; comment
// events link to the comment anchor.
func (s *Service) RenderTelegram(space *types.Space, key string, payload map[string]any) string {
	context := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		context[k] = v
	}
	if note, ok := payload["note"].(map[string]any); ok {
		url := fmt.Sprintf("%s/s/%v/%v", s.siteURL, note["space_slug"], note["number"])
		if comment, ok := payload["comment"].(map[string]any); ok && key == KeyActivityCommentCreated {
			url += fmt.Sprintf("#comment-%v", comment["number"])
		}
		context["url"] = url
	}
	return s.render(space, key, context)
}

// MirrorPlan resolves the mirror template into its message mode. A leading
// {# photo: field #} directive selects photo mode with the rest as caption.
func (s *Service) MirrorPlan(space *types.Space) (photoField, body string) {
	source := s.lookup(space, KeyTelegramMirror)
	if m := photoDirectiveRE.FindStringSubmatch(source); m != nil {
		return m[1], strings.TrimPrefix(source, m[0])
	}
	return "", source
}

// RenderSource renders an inline template body with the telegram context
// rules. Used for the mirror caption after directive stripping.
func (s *Service) RenderSource(source string, payload map[string]any) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	out, err := s.engine.ParseAndRenderString(source, payload)
	if err != nil {
		s.log.Warn("template render failed", "error", err)
		return ""
	}
	return out
}

func (s *Service) render(space *types.Space, key string, context map[string]any) string {
	source := s.lookup(space, key)
	if source == "" {
		s.log.Warn("template not found", "space", space.Slug, "key", key)
		return ""
	}
	out, err := s.engine.ParseAndRenderString(source, context)
	if err != nil {
		s.log.Warn("template render failed", "space", space.Slug, "key", key, "error", err)
		return ""
	}
	return out
}

func (s *Service) lookup(space *types.Space, key string) string {
	if source, ok := space.Templates[key]; ok && source != "" {
		return source
	}
	return defaultTemplates[key]
}

// NoteContext converts a note into the mapping templates see.
func NoteContext(note *types.Note) map[string]any {
	ctx := map[string]any{
		"space_slug": note.SpaceSlug,
		"number":     note.Number,
		"author":     note.Author,
		"created_at": note.CreatedAt,
		"fields":     note.Fields.Plain(),
		"title":      note.Title,
	}
	if note.EditedAt != nil {
		ctx["edited_at"] = *note.EditedAt
	}
	if note.CommentedAt != nil {
		ctx["commented_at"] = *note.CommentedAt
	}
	ctx["activity_at"] = note.ActivityAt
	return ctx
}

// CommentContext converts a comment into the mapping templates see.
func CommentContext(c *types.Comment) map[string]any {
	ctx := map[string]any{
		"space_slug":  c.SpaceSlug,
		"note_number": c.NoteNumber,
		"number":      c.Number,
		"author":      c.Author,
		"content":     c.Content,
		"created_at":  c.CreatedAt,
	}
	if c.ParentNumber != nil {
		ctx["parent_number"] = *c.ParentNumber
	}
	return ctx
}

func spaceContext(space *types.Space) map[string]any {
	return map[string]any{
		"slug":        space.Slug,
		"title":       space.Title,
		"description": space.Description,
		"members":     space.Members,
	}
}
