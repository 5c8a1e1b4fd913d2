// Package image produces WebP renditions of image attachments.
//
// Finalizing a note's image fields schedules background rendition jobs on a
// bounded pool; mirror messages and web consumers read the produced files.
// On-demand conversion re-encodes any image attachment without touching the
// rendition store.
package image

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/spacenote/spacenote/internal/attachment"
	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// defaultWorkers bounds concurrent rendition jobs.
const defaultWorkers = 4

// Service generates and serves WebP renditions.
type Service struct {
	fs          afero.Fs
	base        string
	attachments *attachment.Service
	log         *slog.Logger

	group *errgroup.Group
}

func NewService(fs afero.Fs, base string, attachments *attachment.Service, log *slog.Logger) *Service {
	g := &errgroup.Group{}
	g.SetLimit(defaultWorkers)
	return &Service{
		fs:          fs,
		base:        filepath.Clean(base),
		attachments: attachments,
		log:         log.With("service", "image"),
		group:       g,
	}
}

func (s *Service) renditionPath(spaceSlug string, noteNumber, attachmentNumber int64) (string, error) {
	for _, p := range []string{spaceSlug} {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return "", errs.Validation("invalid rendition path component %q", p)
		}
	}
	full := filepath.Join(s.base, spaceSlug,
		strconv.FormatInt(noteNumber, 10), strconv.FormatInt(attachmentNumber, 10))
	if !strings.HasPrefix(full, s.base+string(filepath.Separator)) {
		return "", errs.Validation("rendition path escapes storage root")
	}
	return full, nil
}

// ProcessImageFields finalizes the pending uploads bound to a note's image
// fields and schedules a rendition for each. It returns the field values
// rewritten from pending numbers to bound attachment numbers.
func (s *Service) ProcessImageFields(ctx context.Context, space *types.Space, noteNumber int64, pendingByField map[string]int64) (map[string]int64, error) {
	bound := make(map[string]int64, len(pendingByField))
	for fieldName, pendingNumber := range pendingByField {
		def := space.Field(fieldName)
		if def == nil || def.Type != types.FieldImage {
			return nil, errs.Validation("field %q is not an image field", fieldName)
		}
		att, err := s.attachments.Finalize(ctx, pendingNumber, space.Slug, noteNumber)
		if err != nil {
			return nil, err
		}
		bound[fieldName] = att.Number

		var maxWidth *int
		if def.Image != nil {
			maxWidth = def.Image.MaxWidth
		}
		s.schedule(space.Slug, noteNumber, att.Number, maxWidth)
	}
	return bound, nil
}

// schedule queues one rendition job. Failures are logged, never propagated;
// the rendition stays absent and reads report it as still processing.
func (s *Service) schedule(spaceSlug string, noteNumber, attachmentNumber int64, maxWidth *int) {
	s.group.Go(func() error {
		if err := s.generate(spaceSlug, noteNumber, attachmentNumber, maxWidth); err != nil {
			s.log.Error("rendition generation failed",
				"space", spaceSlug, "note", noteNumber, "attachment", attachmentNumber, "error", err)
		} else {
			s.log.Debug("rendition generated",
				"space", spaceSlug, "note", noteNumber, "attachment", attachmentNumber)
		}
		return nil
	})
}

func (s *Service) generate(spaceSlug string, noteNumber, attachmentNumber int64, maxWidth *int) error {
	content, err := s.attachments.Blobs().ReadAttachment(spaceSlug, &noteNumber, attachmentNumber)
	if err != nil {
		return err
	}
	out, err := ConvertWebP(content, maxWidth)
	if err != nil {
		return err
	}
	path, err := s.renditionPath(spaceSlug, noteNumber, attachmentNumber)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create rendition dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, out, 0o644); err != nil {
		return fmt.Errorf("write rendition: %w", err)
	}
	return nil
}

// Rendition returns the produced WebP bytes for a bound attachment. A
// rendition that background work has not written yet is reported as still
// processing, not as missing.
func (s *Service) Rendition(spaceSlug string, noteNumber, attachmentNumber int64) ([]byte, error) {
	path, err := s.renditionPath(spaceSlug, noteNumber, attachmentNumber)
	if err != nil {
		return nil, err
	}
	content, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: rendition %s/%d/%d", errs.ErrImageProcessing, spaceSlug, noteNumber, attachmentNumber)
	}
	return content, nil
}

// ConvertPending converts a pending upload to WebP on demand.
func (s *Service) ConvertPending(ctx context.Context, number int64, opts Options) ([]byte, error) {
	pending, err := s.attachments.GetPending(ctx, number)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(pending.MimeType, "image/") {
		return nil, errs.Validation("pending attachment %d is not an image", number)
	}
	content, err := s.attachments.Blobs().ReadPending(number)
	if err != nil {
		return nil, err
	}
	return ConvertWebP(content, opts.MaxWidth)
}

// ConvertAttachment converts a bound attachment to WebP on demand.
func (s *Service) ConvertAttachment(ctx context.Context, spaceSlug string, noteNumber *int64, number int64, opts Options) ([]byte, error) {
	att, err := s.attachments.Get(ctx, spaceSlug, noteNumber, number)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(att.MimeType, "image/") {
		return nil, errs.Validation("attachment %d is not an image", number)
	}
	content, err := s.attachments.Blobs().ReadAttachment(spaceSlug, noteNumber, number)
	if err != nil {
		return nil, err
	}
	return ConvertWebP(content, opts.MaxWidth)
}

// DeleteSpace removes every rendition of a space.
func (s *Service) DeleteSpace(spaceSlug string) error {
	if spaceSlug == "" || strings.ContainsAny(spaceSlug, `/\`) || spaceSlug == ".." {
		return errs.Validation("invalid rendition path component %q", spaceSlug)
	}
	if err := s.fs.RemoveAll(filepath.Join(s.base, spaceSlug)); err != nil {
		return fmt.Errorf("delete space renditions: %w", err)
	}
	return nil
}

// DeleteNote removes the renditions of one note.
func (s *Service) DeleteNote(spaceSlug string, noteNumber int64) error {
	path, err := s.renditionPath(spaceSlug, noteNumber, 0)
	if err != nil {
		return err
	}
	if err := s.fs.RemoveAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("delete note renditions: %w", err)
	}
	return nil
}

// Drain waits for in-flight rendition jobs, up to the grace period.
func (s *Service) Drain(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.log.Warn("rendition jobs still running at shutdown", "grace", grace)
	}
}
