// Package attachment manages uploaded files: pending uploads, binding to
// spaces and notes, and the blob layout on disk.
package attachment

import (
	"context"
	"log/slog"
	"time"

	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
)

// Service manages attachment records and their blobs together.
type Service struct {
	store storage.Store
	blobs *BlobStore
	log   *slog.Logger
}

func NewService(store storage.Store, blobs *BlobStore, log *slog.Logger) *Service {
	return &Service{store: store, blobs: blobs, log: log.With("service", "attachment")}
}

// Blobs exposes the blob store for collaborators that read raw bytes.
func (s *Service) Blobs() *BlobStore { return s.blobs }

// CreatePending uploads a file into the pending area. Numbers come from the
// global pending sequence.
func (s *Service) CreatePending(ctx context.Context, author, filename string, content []byte, mimeType string) (*types.PendingAttachment, error) {
	number, err := s.store.NextSequence(ctx, types.CounterPendingAttachment, types.GlobalCounterScope, nil)
	if err != nil {
		return nil, err
	}
	if err := s.blobs.WritePending(number, content); err != nil {
		return nil, err
	}
	pending := &types.PendingAttachment{
		Number:    number,
		Author:    author,
		Filename:  filename,
		Size:      int64(len(content)),
		MimeType:  mimeType,
		Meta:      ExtractMetadata(content, mimeType),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertPendingAttachment(ctx, types.GlobalCounterScope, pending); err != nil {
		return nil, err
	}
	s.log.Debug("pending attachment created", "number", number, "author", author)
	return pending, nil
}

// GetPending returns a pending attachment record.
func (s *Service) GetPending(ctx context.Context, number int64) (*types.PendingAttachment, error) {
	return s.store.GetPendingAttachment(ctx, types.GlobalCounterScope, number)
}

// ReadPending returns the raw bytes of a pending upload.
func (s *Service) ReadPending(ctx context.Context, number int64) ([]byte, error) {
	if _, err := s.GetPending(ctx, number); err != nil {
		return nil, err
	}
	return s.blobs.ReadPending(number)
}

// Create binds an upload directly to a space or note. Numbers are sequential
// within the (space, note) scope.
func (s *Service) Create(ctx context.Context, spaceSlug string, noteNumber *int64, author, filename string, content []byte, mimeType string) (*types.Attachment, error) {
	number, err := s.store.NextSequence(ctx, types.CounterAttachment, spaceSlug, noteNumber)
	if err != nil {
		return nil, err
	}
	if err := s.blobs.WriteAttachment(spaceSlug, noteNumber, number, content); err != nil {
		return nil, err
	}
	att := &types.Attachment{
		SpaceSlug:  spaceSlug,
		NoteNumber: noteNumber,
		Number:     number,
		Author:     author,
		Filename:   filename,
		Size:       int64(len(content)),
		MimeType:   mimeType,
		Meta:       ExtractMetadata(content, mimeType),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertAttachment(ctx, att); err != nil {
		return nil, err
	}
	s.log.Debug("attachment created", "space", spaceSlug, "number", number)
	return att, nil
}

// Get returns one bound attachment record.
func (s *Service) Get(ctx context.Context, spaceSlug string, noteNumber *int64, number int64) (*types.Attachment, error) {
	return s.store.GetAttachment(ctx, spaceSlug, noteNumber, number)
}

// Read returns the raw bytes of a bound attachment.
func (s *Service) Read(ctx context.Context, spaceSlug string, noteNumber *int64, number int64) ([]byte, error) {
	if _, err := s.Get(ctx, spaceSlug, noteNumber, number); err != nil {
		return nil, err
	}
	return s.blobs.ReadAttachment(spaceSlug, noteNumber, number)
}

// List returns the attachments of one scope: a note, or the space level when
// noteNumber is nil.
func (s *Service) List(ctx context.Context, spaceSlug string, noteNumber *int64) ([]*types.Attachment, error) {
	return s.store.ListAttachments(ctx, spaceSlug, noteNumber)
}

// ListAll returns every attachment of a space across scopes.
func (s *Service) ListAll(ctx context.Context, spaceSlug string) ([]*types.Attachment, error) {
	return s.store.ListAllAttachments(ctx, spaceSlug)
}

// Finalize promotes a pending upload to a note attachment: the blob moves to
// its bound location, the record is created under a scope-local number and
// the pending row disappears.
func (s *Service) Finalize(ctx context.Context, pendingNumber int64, spaceSlug string, noteNumber int64) (*types.Attachment, error) {
	pending, err := s.GetPending(ctx, pendingNumber)
	if err != nil {
		return nil, err
	}
	number, err := s.store.NextSequence(ctx, types.CounterAttachment, spaceSlug, &noteNumber)
	if err != nil {
		return nil, err
	}
	if err := s.blobs.Promote(pendingNumber, spaceSlug, noteNumber, number); err != nil {
		return nil, err
	}
	att := &types.Attachment{
		SpaceSlug:  spaceSlug,
		NoteNumber: &noteNumber,
		Number:     number,
		Author:     pending.Author,
		Filename:   pending.Filename,
		Size:       pending.Size,
		MimeType:   pending.MimeType,
		Meta:       pending.Meta,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertAttachment(ctx, att); err != nil {
		return nil, err
	}
	if err := s.store.DeletePendingAttachment(ctx, types.GlobalCounterScope, pendingNumber); err != nil {
		return nil, err
	}
	s.log.Debug("pending attachment finalized",
		"pending", pendingNumber, "space", spaceSlug, "note", noteNumber, "number", number)
	return att, nil
}

// Import bulk-inserts exported attachment records. Blobs are not part of an
// export, so only metadata lands.
func (s *Service) Import(ctx context.Context, atts []*types.Attachment) error {
	if len(atts) == 0 {
		return nil
	}
	return s.store.InsertAttachments(ctx, atts)
}

// DeleteNote removes the attachment rows and blobs of one note.
func (s *Service) DeleteNote(ctx context.Context, spaceSlug string, noteNumber int64) error {
	if err := s.store.DeleteAttachmentsByNote(ctx, spaceSlug, noteNumber); err != nil {
		return err
	}
	return s.blobs.DeleteNote(spaceSlug, noteNumber)
}

// DeleteSpace removes every attachment row and blob of a space.
func (s *Service) DeleteSpace(ctx context.Context, spaceSlug string) error {
	if err := s.store.DeleteAttachmentsBySpace(ctx, spaceSlug); err != nil {
		return err
	}
	return s.blobs.DeleteSpace(spaceSlug)
}
