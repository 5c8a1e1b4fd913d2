package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/spacenote/spacenote/internal/config"
	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/storage/sqlite"
	"github.com/spacenote/spacenote/internal/types"
	"github.com/spacenote/spacenote/internal/user"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	cfg := &config.Config{
		DatabasePath:    "test.db",
		AttachmentsPath: "/data/attachments",
		ImagesPath:      "/data/images",
		SiteURL:         "https://example.test",
		MaxUploadSize:   1 << 20,
		ShutdownGrace:   time.Second,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := build(cfg, log, store, afero.NewMemMapFs())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start app: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Stop(ctx); err != nil {
			t.Errorf("stop app: %v", err)
		}
	})
	return a
}

// adminToken logs in as the bootstrapped admin.
func adminToken(t *testing.T, a *App) string {
	t.Helper()
	token, err := a.Login(context.Background(), types.AdminUsername, user.DefaultAdminPassword)
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	return token
}

// memberToken creates a user and logs them in.
func memberToken(t *testing.T, a *App, admin, username string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := a.CreateUser(ctx, admin, username, "secret"); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	token, err := a.Login(ctx, username, "secret")
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return token
}

func setupSpace(t *testing.T, a *App, admin string, members ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := a.CreateSpace(ctx, admin, "tasks", "Tasks", members); err != nil {
		t.Fatalf("create space: %v", err)
	}
	if _, err := a.AddField(ctx, admin, "tasks", types.FieldDef{Name: "title", Type: types.FieldString, Required: true}); err != nil {
		t.Fatalf("add field: %v", err)
	}
}

func TestLoginLogout(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	token := adminToken(t, a)

	me, err := a.Me(ctx, token)
	if err != nil || me.Username != types.AdminUsername {
		t.Fatalf("Me = %v, %v", me, err)
	}
	if err := a.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := a.Me(ctx, token); !errors.Is(err, errs.ErrAuthentication) {
		t.Errorf("Me after logout: got %v, want ErrAuthentication", err)
	}
	if _, err := a.Login(ctx, types.AdminUsername, "wrong"); !errors.Is(err, errs.ErrAuthentication) {
		t.Errorf("bad password: got %v, want ErrAuthentication", err)
	}
}

func TestAdminGuards(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	admin := adminToken(t, a)
	alice := memberToken(t, a, admin, "alice")

	if _, err := a.CreateUser(ctx, alice, "eve", "secret"); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("non-admin CreateUser: got %v, want ErrAccessDenied", err)
	}
	if _, err := a.CreateSpace(ctx, alice, "tasks", "Tasks", nil); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("non-admin CreateSpace: got %v, want ErrAccessDenied", err)
	}
	if _, err := a.CreateSpace(ctx, "no-such-token", "tasks", "Tasks", nil); !errors.Is(err, errs.ErrAuthentication) {
		t.Errorf("bad token: got %v, want ErrAuthentication", err)
	}
}

func TestMembershipGuards(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	admin := adminToken(t, a)
	alice := memberToken(t, a, admin, "alice")
	mallory := memberToken(t, a, admin, "mallory")
	setupSpace(t, a, admin, "alice")

	if _, err := a.CreateNote(ctx, alice, "tasks", map[string]string{"title": "mine"}); err != nil {
		t.Fatalf("member CreateNote: %v", err)
	}
	if _, err := a.CreateNote(ctx, mallory, "tasks", map[string]string{"title": "theirs"}); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("non-member CreateNote: got %v, want ErrAccessDenied", err)
	}
	// Admin reads without membership but cannot write.
	if _, err := a.GetNote(ctx, admin, "tasks", 1); err != nil {
		t.Errorf("admin GetNote: %v", err)
	}
	if _, err := a.CreateNote(ctx, admin, "tasks", map[string]string{"title": "x"}); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("admin CreateNote: got %v, want ErrAccessDenied", err)
	}
	if _, err := a.ListNotes(ctx, mallory, "tasks", "all", "", 0, 0); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("non-member ListNotes: got %v, want ErrAccessDenied", err)
	}
}

func TestHiddenFieldsOnCreate(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	admin := adminToken(t, a)
	alice := memberToken(t, a, admin, "alice")
	setupSpace(t, a, admin, "alice")

	if _, err := a.AddField(ctx, admin, "tasks", types.FieldDef{
		Name: "status", Type: types.FieldSelect, Default: "new",
		Select: &types.SelectOptions{Values: []string{"new", "done"}},
	}); err != nil {
		t.Fatalf("add field: %v", err)
	}
	if _, err := a.UpdateHiddenFieldsOnCreate(ctx, admin, "tasks", []string{"status"}); err != nil {
		t.Fatalf("hide field: %v", err)
	}

	if _, err := a.CreateNote(ctx, alice, "tasks", map[string]string{"title": "x", "status": "done"}); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("hidden field supplied: got %v, want ErrValidation", err)
	}
	n, err := a.CreateNote(ctx, alice, "tasks", map[string]string{"title": "x"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if n.Fields["status"].Str() != "new" {
		t.Errorf("hidden field default = %v", n.Fields["status"].Plain())
	}
}

func TestCommentAuthorGuard(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	admin := adminToken(t, a)
	alice := memberToken(t, a, admin, "alice")
	bob := memberToken(t, a, admin, "bob")
	setupSpace(t, a, admin, "alice", "bob")

	if _, err := a.CreateNote(ctx, alice, "tasks", map[string]string{"title": "x"}); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	c, err := a.CreateComment(ctx, alice, "tasks", 1, "mine", nil, nil)
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}

	if _, err := a.UpdateComment(ctx, bob, "tasks", 1, c.Number, "hijack"); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("foreign UpdateComment: got %v, want ErrAccessDenied", err)
	}
	if err := a.DeleteComment(ctx, bob, "tasks", 1, c.Number); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("foreign DeleteComment: got %v, want ErrAccessDenied", err)
	}
	if _, err := a.UpdateComment(ctx, alice, "tasks", 1, c.Number, "edited"); err != nil {
		t.Errorf("own UpdateComment: %v", err)
	}
}

func TestPendingAttachmentOwnership(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	admin := adminToken(t, a)
	alice := memberToken(t, a, admin, "alice")
	bob := memberToken(t, a, admin, "bob")

	pending, err := a.UploadPending(ctx, alice, "notes.txt", []byte("hello"), "text/plain")
	if err != nil {
		t.Fatalf("UploadPending: %v", err)
	}
	if _, err := a.ReadPendingAttachment(ctx, bob, pending.Number); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("foreign read: got %v, want ErrAccessDenied", err)
	}
	content, err := a.ReadPendingAttachment(ctx, alice, pending.Number)
	if err != nil || string(content) != "hello" {
		t.Errorf("own read = %q, %v", content, err)
	}

	// Size cap.
	big := make([]byte, a.cfg.MaxUploadSize+1)
	if _, err := a.UploadPending(ctx, alice, "big.bin", big, "application/octet-stream"); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("oversized upload: got %v, want ErrValidation", err)
	}
}

func TestDeleteSpaceCascade(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	admin := adminToken(t, a)
	alice := memberToken(t, a, admin, "alice")
	setupSpace(t, a, admin, "alice")

	if _, err := a.CreateNote(ctx, alice, "tasks", map[string]string{"title": "x"}); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if err := a.DeleteSpace(ctx, admin, "tasks"); err != nil {
		t.Fatalf("DeleteSpace: %v", err)
	}
	if _, err := a.GetSpace(ctx, admin, "tasks"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("space survives: %v", err)
	}
}

func TestExportImportFacade(t *testing.T) {
	source := newTestApp(t)
	ctx := context.Background()
	admin := adminToken(t, source)
	alice := memberToken(t, source, admin, "alice")
	setupSpace(t, source, admin, "alice")
	if _, err := source.CreateNote(ctx, alice, "tasks", map[string]string{"title": "x"}); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	rec, err := source.ExportSpace(ctx, admin, "tasks", true)
	if err != nil {
		t.Fatalf("ExportSpace: %v", err)
	}
	if _, err := source.ExportSpace(ctx, alice, "tasks", true); !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("non-admin export: got %v, want ErrAccessDenied", err)
	}

	target := newTestApp(t)
	targetAdmin := adminToken(t, target)
	if err := target.ImportSpace(ctx, targetAdmin, rec); err != nil {
		t.Fatalf("ImportSpace: %v", err)
	}
	sp, err := target.GetSpace(ctx, targetAdmin, "tasks")
	if err != nil || len(sp.Fields) != 1 {
		t.Errorf("imported space = %+v, %v", sp, err)
	}
}
