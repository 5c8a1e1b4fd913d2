package attachment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/storage/sqlite"
)

func newTestService(t *testing.T) (*Service, afero.Fs) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	fs := afero.NewMemMapFs()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, NewBlobStore(fs, "/data/attachments"), log), fs
}

// pngBytes encodes a solid-color PNG of the given size.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPendingLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	content := pngBytes(t, 40, 30)
	pending, err := svc.CreatePending(ctx, "alice", "photo.png", content, "image/png")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if pending.Number != 1 {
		t.Errorf("number = %d, want 1", pending.Number)
	}
	if pending.Size != int64(len(content)) {
		t.Errorf("size = %d", pending.Size)
	}
	if pending.Meta.Image == nil {
		t.Fatal("image metadata missing")
	}
	if pending.Meta.Image.Width != 40 || pending.Meta.Image.Height != 30 || pending.Meta.Image.Format != "png" {
		t.Errorf("image meta = %+v", pending.Meta.Image)
	}

	got, err := svc.ReadPending(ctx, pending.Number)
	if err != nil {
		t.Fatalf("ReadPending: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("pending bytes differ")
	}

	if _, err := svc.ReadPending(ctx, 99); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing pending: got %v, want ErrNotFound", err)
	}

	// Non-image mime gets no metadata and no error.
	doc, err := svc.CreatePending(ctx, "alice", "notes.txt", []byte("hello"), "text/plain")
	if err != nil {
		t.Fatalf("CreatePending text: %v", err)
	}
	if doc.Number != 2 {
		t.Errorf("second number = %d", doc.Number)
	}
	if doc.Meta.Image != nil || doc.Meta.Error != "" {
		t.Errorf("text meta = %+v", doc.Meta)
	}

	// Broken image bytes record the failure but do not fail the upload.
	bad, err := svc.CreatePending(ctx, "alice", "bad.png", []byte("not a png"), "image/png")
	if err != nil {
		t.Fatalf("CreatePending bad: %v", err)
	}
	if bad.Meta.Error == "" {
		t.Error("decode failure not recorded")
	}
}

func TestFinalize(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	content := pngBytes(t, 10, 10)
	pending, err := svc.CreatePending(ctx, "alice", "photo.png", content, "image/png")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}

	att, err := svc.Finalize(ctx, pending.Number, "tasks", 5)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if att.Number != 1 || att.NoteNumber == nil || *att.NoteNumber != 5 {
		t.Errorf("attachment = %+v", att)
	}
	if att.Author != "alice" || att.Filename != "photo.png" {
		t.Errorf("attachment metadata lost: %+v", att)
	}

	// The blob moved.
	if _, err := fs.Stat("/data/attachments/pending/1"); err == nil {
		t.Error("pending blob still present")
	}
	note := int64(5)
	got, err := svc.Read(ctx, "tasks", &note, att.Number)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("bound bytes differ")
	}

	// The pending row is gone.
	if _, err := svc.GetPending(ctx, pending.Number); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("pending row survives: %v", err)
	}
	if _, err := svc.Finalize(ctx, pending.Number, "tasks", 5); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("double finalize: got %v, want ErrNotFound", err)
	}
}

func TestScopedNumbering(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	note := int64(1)

	first, err := svc.Create(ctx, "tasks", nil, "alice", "a.txt", []byte("a"), "text/plain")
	if err != nil {
		t.Fatalf("Create space-level: %v", err)
	}
	second, err := svc.Create(ctx, "tasks", &note, "alice", "b.txt", []byte("b"), "text/plain")
	if err != nil {
		t.Fatalf("Create note-level: %v", err)
	}
	// Space scope and note scope count independently.
	if first.Number != 1 || second.Number != 1 {
		t.Errorf("numbers = %d / %d, want 1 / 1", first.Number, second.Number)
	}

	spaceLevel, err := svc.List(ctx, "tasks", nil)
	if err != nil {
		t.Fatalf("List space-level: %v", err)
	}
	if len(spaceLevel) != 1 || spaceLevel[0].NoteNumber != nil {
		t.Errorf("space-level list = %+v", spaceLevel)
	}
	all, err := svc.ListAll(ctx, "tasks")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d attachments", len(all))
	}
}

func TestPathSafety(t *testing.T) {
	blobs := NewBlobStore(afero.NewMemMapFs(), "/data/attachments")

	evil := []string{"../escape", "a/b", `a\b`, "..", "."}
	for _, slug := range evil {
		if err := blobs.WriteAttachment(slug, nil, 1, []byte("x")); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("slug %q: got %v, want ErrValidation", slug, err)
		}
	}
}

func TestDeleteScopes(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()
	note := int64(1)

	if _, err := svc.Create(ctx, "tasks", &note, "alice", "a.txt", []byte("a"), "text/plain"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, "tasks", nil, "alice", "b.txt", []byte("b"), "text/plain"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.DeleteNote(ctx, "tasks", 1); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := fs.Stat("/data/attachments/tasks/1/1"); err == nil {
		t.Error("note blob survives")
	}
	if _, err := fs.Stat("/data/attachments/tasks/__space__/1"); err != nil {
		t.Error("space blob removed by note delete")
	}

	if err := svc.DeleteSpace(ctx, "tasks"); err != nil {
		t.Fatalf("DeleteSpace: %v", err)
	}
	all, err := svc.ListAll(ctx, "tasks")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("rows survive space delete: %d", len(all))
	}
}
