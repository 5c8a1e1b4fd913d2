package export

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spacenote/spacenote/internal/attachment"
	"github.com/spacenote/spacenote/internal/comment"
	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/note"
	"github.com/spacenote/spacenote/internal/space"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
	"github.com/spacenote/spacenote/internal/user"
)

// Service builds export records and replays them into an empty slug.
type Service struct {
	store       storage.Store
	users       *user.Service
	spaces      *space.Service
	notes       *note.Service
	comments    *comment.Service
	attachments *attachment.Service
	log         *slog.Logger
}

func NewService(store storage.Store, users *user.Service, spaces *space.Service, notes *note.Service, comments *comment.Service, attachments *attachment.Service, log *slog.Logger) *Service {
	return &Service{
		store:       store,
		users:       users,
		spaces:      spaces,
		notes:       notes,
		comments:    comments,
		attachments: attachments,
		log:         log.With("service", "export"),
	}
}

// Export snapshots a space. With includeData, all notes, comments and
// attachment metadata ride along.
func (s *Service) Export(ctx context.Context, slug string, includeData bool) (*Record, error) {
	sp, err := s.spaces.Get(slug)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		Version:    FormatVersion,
		ExportedAt: time.Now().UTC(),
		Space:      sp,
	}
	if !includeData {
		return rec, nil
	}

	notes, err := s.notes.ListAll(ctx, sp)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		rec.Notes = append(rec.Notes, NoteRecord{
			Number:      n.Number,
			Author:      n.Author,
			CreatedAt:   n.CreatedAt,
			EditedAt:    n.EditedAt,
			CommentedAt: n.CommentedAt,
			ActivityAt:  n.ActivityAt,
			Fields:      n.Fields.Plain(),
		})
	}
	if rec.Comments, err = s.comments.ListAll(ctx, slug); err != nil {
		return nil, err
	}
	if rec.Attachments, err = s.attachments.ListAll(ctx, slug); err != nil {
		return nil, err
	}
	s.log.Info("space exported", "slug", slug,
		"notes", len(rec.Notes), "comments", len(rec.Comments), "attachments", len(rec.Attachments))
	return rec, nil
}

// Import replays a record into a free slug. Referenced users that do not
// exist are created with random passwords; every per-scope counter lands on
// the maximum observed number so future allocations never collide.
func (s *Service) Import(ctx context.Context, rec *Record) error {
	if rec.Version != FormatVersion {
		return errs.Validation("unsupported export version %d", rec.Version)
	}
	if rec.Space == nil {
		return errs.Validation("export record carries no space")
	}
	sp := rec.Space
	if s.spaces.Has(sp.Slug) {
		return errs.Validation("space %q already exists", sp.Slug)
	}

	notes, err := decodeNotes(sp, rec.Notes)
	if err != nil {
		return err
	}

	if err := s.ensureAuthors(ctx, rec); err != nil {
		return err
	}
	if err := s.spaces.Import(ctx, sp); err != nil {
		return err
	}
	if err := s.notes.Import(ctx, notes); err != nil {
		return err
	}
	if err := s.comments.Import(ctx, rec.Comments); err != nil {
		return err
	}
	for _, att := range rec.Attachments {
		att.SpaceSlug = sp.Slug
	}
	if err := s.attachments.Import(ctx, rec.Attachments); err != nil {
		return err
	}
	if err := s.restoreCounters(ctx, sp.Slug, rec); err != nil {
		return err
	}
	s.log.Info("space imported", "slug", sp.Slug,
		"notes", len(rec.Notes), "comments", len(rec.Comments), "attachments", len(rec.Attachments))
	return nil
}

// decodeNotes re-types the plain field maps against the imported schema.
func decodeNotes(sp *types.Space, records []NoteRecord) ([]*types.Note, error) {
	notes := make([]*types.Note, 0, len(records))
	for _, nr := range records {
		fields := make(types.FieldValues, len(nr.Fields))
		for name, raw := range nr.Fields {
			def := sp.Field(name)
			if def == nil {
				return nil, errs.Validation("note %d references unknown field %q", nr.Number, name)
			}
			v, err := types.DecodeValue(def, raw)
			if err != nil {
				return nil, errs.Validation("note %d: %v", nr.Number, err)
			}
			fields[name] = v
		}
		notes = append(notes, &types.Note{
			SpaceSlug:   sp.Slug,
			Number:      nr.Number,
			Author:      nr.Author,
			CreatedAt:   nr.CreatedAt,
			EditedAt:    nr.EditedAt,
			CommentedAt: nr.CommentedAt,
			ActivityAt:  nr.ActivityAt,
			Fields:      fields,
		})
	}
	return notes, nil
}

// ensureAuthors creates every referenced user that does not exist yet. The
// generated passwords are throwaways; an admin resets them out of band.
func (s *Service) ensureAuthors(ctx context.Context, rec *Record) error {
	referenced := map[string]bool{}
	for _, m := range rec.Space.Members {
		referenced[m] = true
	}
	for _, n := range rec.Notes {
		referenced[n.Author] = true
	}
	for _, c := range rec.Comments {
		referenced[c.Author] = true
	}
	for _, a := range rec.Attachments {
		referenced[a.Author] = true
	}

	missing := make([]string, 0, len(referenced))
	for username := range referenced {
		if !s.users.Has(username) {
			missing = append(missing, username)
		}
	}
	sort.Strings(missing)
	for _, username := range missing {
		password, err := randomPassword()
		if err != nil {
			return err
		}
		if _, err := s.users.Create(ctx, username, password); err != nil {
			return fmt.Errorf("create imported user %q: %w", username, err)
		}
		s.log.Info("created imported user", "username", username)
	}
	return nil
}

// restoreCounters sets every sequence to the maximum observed number in its
// scope.
func (s *Service) restoreCounters(ctx context.Context, slug string, rec *Record) error {
	var maxNote int64
	for _, n := range rec.Notes {
		maxNote = max(maxNote, n.Number)
	}
	if maxNote > 0 {
		if err := s.store.SetSequence(ctx, types.CounterNote, slug, nil, maxNote); err != nil {
			return err
		}
	}

	maxComment := map[int64]int64{}
	for _, c := range rec.Comments {
		maxComment[c.NoteNumber] = max(maxComment[c.NoteNumber], c.Number)
	}
	for noteNumber, n := range maxComment {
		noteNumber := noteNumber
		if err := s.store.SetSequence(ctx, types.CounterComment, slug, &noteNumber, n); err != nil {
			return err
		}
	}

	// Attachments count per note, with nil for the space scope.
	maxSpaceAtt := int64(0)
	maxNoteAtt := map[int64]int64{}
	for _, a := range rec.Attachments {
		if a.NoteNumber == nil {
			maxSpaceAtt = max(maxSpaceAtt, a.Number)
		} else {
			maxNoteAtt[*a.NoteNumber] = max(maxNoteAtt[*a.NoteNumber], a.Number)
		}
	}
	if maxSpaceAtt > 0 {
		if err := s.store.SetSequence(ctx, types.CounterAttachment, slug, nil, maxSpaceAtt); err != nil {
			return err
		}
	}
	for noteNumber, n := range maxNoteAtt {
		noteNumber := noteNumber
		if err := s.store.SetSequence(ctx, types.CounterAttachment, slug, &noteNumber, n); err != nil {
			return err
		}
	}
	return nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
