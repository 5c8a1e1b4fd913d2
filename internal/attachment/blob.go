package attachment

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/spacenote/spacenote/internal/errs"
)

// SpaceDirName holds space-level attachments that belong to no note.
const SpaceDirName = "__space__"

const pendingDirName = "pending"

// BlobStore lays attachment bytes out under a base directory:
//
//	<base>/pending/<number>                      uploads not yet bound
//	<base>/<space>/<note-number>/<number>        note attachments
//	<base>/<space>/__space__/<number>            space attachments
type BlobStore struct {
	fs   afero.Fs
	base string
}

func NewBlobStore(fs afero.Fs, base string) *BlobStore {
	return &BlobStore{fs: fs, base: filepath.Clean(base)}
}

// securePath joins parts under the base directory, rejecting any component
// that could climb out of it.
func (b *BlobStore) securePath(parts ...string) (string, error) {
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return "", errs.Validation("invalid attachment path component %q", p)
		}
	}
	full := filepath.Join(append([]string{b.base}, parts...)...)
	if full != b.base && !strings.HasPrefix(full, b.base+string(filepath.Separator)) {
		return "", errs.Validation("attachment path escapes storage root")
	}
	return full, nil
}

func (b *BlobStore) pendingPath(number int64) (string, error) {
	return b.securePath(pendingDirName, strconv.FormatInt(number, 10))
}

func (b *BlobStore) attachmentPath(spaceSlug string, noteNumber *int64, number int64) (string, error) {
	dir := SpaceDirName
	if noteNumber != nil {
		dir = strconv.FormatInt(*noteNumber, 10)
	}
	return b.securePath(spaceSlug, dir, strconv.FormatInt(number, 10))
}

func (b *BlobStore) write(path string, content []byte) error {
	if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create attachment dir: %w", err)
	}
	if err := afero.WriteFile(b.fs, path, content, 0o644); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	return nil
}

// WritePending stores an unbound upload.
func (b *BlobStore) WritePending(number int64, content []byte) error {
	path, err := b.pendingPath(number)
	if err != nil {
		return err
	}
	return b.write(path, content)
}

// ReadPending returns the bytes of an unbound upload.
func (b *BlobStore) ReadPending(number int64) ([]byte, error) {
	path, err := b.pendingPath(number)
	if err != nil {
		return nil, err
	}
	content, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, errs.NotFound("pending attachment blob %d", number)
	}
	return content, nil
}

// DeletePending removes an unbound upload blob if it exists.
func (b *BlobStore) DeletePending(number int64) error {
	path, err := b.pendingPath(number)
	if err != nil {
		return err
	}
	if err := b.fs.Remove(path); err != nil && !isNotExist(err) {
		return fmt.Errorf("delete pending blob: %w", err)
	}
	return nil
}

// WriteAttachment stores a bound attachment blob.
func (b *BlobStore) WriteAttachment(spaceSlug string, noteNumber *int64, number int64, content []byte) error {
	path, err := b.attachmentPath(spaceSlug, noteNumber, number)
	if err != nil {
		return err
	}
	return b.write(path, content)
}

// ReadAttachment returns the bytes of a bound attachment.
func (b *BlobStore) ReadAttachment(spaceSlug string, noteNumber *int64, number int64) ([]byte, error) {
	path, err := b.attachmentPath(spaceSlug, noteNumber, number)
	if err != nil {
		return nil, err
	}
	content, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, errs.NotFound("attachment blob %s/%d", spaceSlug, number)
	}
	return content, nil
}

// AttachmentPath exposes the resolved blob path for consumers that hand the
// file to an external process.
func (b *BlobStore) AttachmentPath(spaceSlug string, noteNumber *int64, number int64) (string, error) {
	return b.attachmentPath(spaceSlug, noteNumber, number)
}

// Promote moves a pending blob to its bound location.
func (b *BlobStore) Promote(pendingNumber int64, spaceSlug string, noteNumber int64, attachmentNumber int64) error {
	src, err := b.pendingPath(pendingNumber)
	if err != nil {
		return err
	}
	dst, err := b.attachmentPath(spaceSlug, &noteNumber, attachmentNumber)
	if err != nil {
		return err
	}
	if err := b.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create attachment dir: %w", err)
	}
	if err := b.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("promote pending blob %d: %w", pendingNumber, err)
	}
	return nil
}

// DeleteSpace removes every blob of a space.
func (b *BlobStore) DeleteSpace(spaceSlug string) error {
	path, err := b.securePath(spaceSlug)
	if err != nil {
		return err
	}
	if err := b.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("delete space blobs: %w", err)
	}
	return nil
}

// DeleteNote removes every blob of one note.
func (b *BlobStore) DeleteNote(spaceSlug string, noteNumber int64) error {
	path, err := b.securePath(spaceSlug, strconv.FormatInt(noteNumber, 10))
	if err != nil {
		return err
	}
	if err := b.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("delete note blobs: %w", err)
	}
	return nil
}
