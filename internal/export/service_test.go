package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/spacenote/spacenote/internal/attachment"
	"github.com/spacenote/spacenote/internal/comment"
	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/image"
	"github.com/spacenote/spacenote/internal/note"
	"github.com/spacenote/spacenote/internal/space"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/storage/sqlite"
	"github.com/spacenote/spacenote/internal/telegram"
	"github.com/spacenote/spacenote/internal/template"
	"github.com/spacenote/spacenote/internal/types"
	"github.com/spacenote/spacenote/internal/user"
)

type instance struct {
	export   *Service
	users    *user.Service
	spaces   *space.Service
	notes    *note.Service
	comments *comment.Service
	store    storage.Store
}

// newInstance wires a full engine against its own database, standing in for
// one deployment in a cross-instance transfer.
func newInstance(t *testing.T) *instance {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fs := afero.NewMemMapFs()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates := template.NewService("https://example.test", log)
	users := user.NewService(store, log)
	spaces := space.NewService(store, users, templates, log)
	atts := attachment.NewService(store, attachment.NewBlobStore(fs, "/data/attachments"), log)
	images := image.NewService(fs, "/data/images", atts, log)
	tg := telegram.NewService(store, log)
	notes := note.NewService(store, templates, images, atts, tg, log)
	comments := comment.NewService(store, notes, tg, log)

	if err := users.Start(ctx); err != nil {
		t.Fatalf("start users: %v", err)
	}
	if err := spaces.Start(ctx); err != nil {
		t.Fatalf("start spaces: %v", err)
	}
	return &instance{
		export:   NewService(store, users, spaces, notes, comments, atts, log),
		users:    users,
		spaces:   spaces,
		notes:    notes,
		comments: comments,
		store:    store,
	}
}

// seed populates one space with a couple of users, notes and comments.
func (in *instance) seed(t *testing.T) *types.Space {
	t.Helper()
	ctx := context.Background()
	for _, u := range []string{"alice", "bob"} {
		if _, err := in.users.Create(ctx, u, "secret"); err != nil {
			t.Fatalf("create user %s: %v", u, err)
		}
	}
	sp, err := in.spaces.Create(ctx, "tasks", "Tasks", []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("create space: %v", err)
	}
	sp, err = in.spaces.AddField(ctx, "tasks", types.FieldDef{Name: "title", Type: types.FieldString, Required: true})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	sp, err = in.spaces.AddField(ctx, "tasks", types.FieldDef{
		Name: "status", Type: types.FieldSelect, Default: "new",
		Select: &types.SelectOptions{Values: []string{"new", "done"}},
	})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	sp, err = in.spaces.AddField(ctx, "tasks", types.FieldDef{
		Name: "priority", Type: types.FieldNumeric,
		Numeric: &types.NumericOptions{Kind: types.NumericInt},
	})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	sp, err = in.spaces.AddFilter(ctx, "tasks", types.FilterDef{
		Name: "hot",
		Conditions: []types.Condition{
			{Field: "priority", Operator: types.OpGte, Value: types.ConditionValue{Value: types.IntValue(3)}},
		},
	})
	if err != nil {
		t.Fatalf("add filter: %v", err)
	}

	n1, err := in.notes.Create(ctx, sp, "alice", map[string]string{"title": "first"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if _, err := in.notes.Create(ctx, sp, "bob", map[string]string{"title": "second", "status": "done"}); err != nil {
		t.Fatalf("create note: %v", err)
	}
	if _, err := in.comments.Create(ctx, sp, n1.Number, "bob", "hello", nil, nil); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	return sp
}

func TestRoundTrip(t *testing.T) {
	source := newInstance(t)
	ctx := context.Background()
	source.seed(t)

	rec, err := source.export.Export(ctx, "tasks", true)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if rec.Version != FormatVersion || rec.Space == nil {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Notes) != 2 || len(rec.Comments) != 1 {
		t.Fatalf("record data = %d notes, %d comments", len(rec.Notes), len(rec.Comments))
	}

	// Through the wire encoding, into a fresh instance.
	var buf bytes.Buffer
	if err := Encode(&buf, rec, FormatJSON); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	target := newInstance(t)
	if err := target.export.Import(ctx, decoded); err != nil {
		t.Fatalf("Import: %v", err)
	}

	sp, err := target.spaces.Get("tasks")
	if err != nil {
		t.Fatalf("imported space missing: %v", err)
	}
	if len(sp.Fields) != 3 || len(sp.Members) != 2 {
		t.Errorf("space = %+v", sp)
	}

	// Saved filters keep their typed condition values across the transfer.
	hot := sp.Filter("hot")
	if hot == nil {
		t.Fatal("imported filter missing")
	}
	if v := hot.Conditions[0].Value.Value; v.Kind() != types.ValueInt || v.Int() != 3 {
		t.Errorf("condition value = %v (%v)", v.Plain(), v.Kind())
	}

	// Referenced users exist on the target.
	for _, u := range []string{"alice", "bob"} {
		if !target.users.Has(u) {
			t.Errorf("user %s not created", u)
		}
	}

	// Typed fields survived the plain round trip.
	n, err := target.notes.Get(ctx, sp, 2)
	if err != nil {
		t.Fatalf("imported note missing: %v", err)
	}
	if n.Fields["status"].Str() != "done" {
		t.Errorf("status = %v", n.Fields["status"].Plain())
	}
	page, err := target.comments.List(ctx, "tasks", 1, 0, 0)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("comments = %d", page.Total)
	}

	// Counters land past the imported numbers.
	n3, err := target.notes.Create(ctx, sp, "alice", map[string]string{"title": "third"})
	if err != nil {
		t.Fatalf("create after import: %v", err)
	}
	if n3.Number != 3 {
		t.Errorf("next note number = %d, want 3", n3.Number)
	}
	c2, err := target.comments.Create(ctx, sp, 1, "alice", "again", nil, nil)
	if err != nil {
		t.Fatalf("comment after import: %v", err)
	}
	if c2.Number != 2 {
		t.Errorf("next comment number = %d, want 2", c2.Number)
	}
}

func TestRoundTripYAML(t *testing.T) {
	source := newInstance(t)
	ctx := context.Background()
	source.seed(t)

	rec, err := source.export.Export(ctx, "tasks", true)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, rec, FormatYAML); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Space == nil || decoded.Space.Slug != "tasks" || len(decoded.Notes) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Notes[1].Fields["status"] != "done" {
		t.Errorf("status = %v", decoded.Notes[1].Fields["status"])
	}
}

func TestExportConfigOnly(t *testing.T) {
	source := newInstance(t)
	source.seed(t)

	rec, err := source.export.Export(context.Background(), "tasks", false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(rec.Notes) != 0 || len(rec.Comments) != 0 || len(rec.Attachments) != 0 {
		t.Errorf("config-only export carries data: %+v", rec)
	}
}

func TestImportRejections(t *testing.T) {
	in := newInstance(t)
	ctx := context.Background()
	in.seed(t)

	rec, err := in.export.Export(ctx, "tasks", false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	// Existing slug.
	if err := in.export.Import(ctx, rec); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("existing slug: got %v, want ErrValidation", err)
	}

	// Wrong version.
	target := newInstance(t)
	bad := *rec
	bad.Version = 99
	if err := target.export.Import(ctx, &bad); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("bad version: got %v, want ErrValidation", err)
	}

	// Unknown field in note data.
	rec2, err := in.export.Export(ctx, "tasks", true)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	rec2.Notes[0].Fields["ghost"] = "boo"
	if err := target.export.Import(ctx, rec2); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("unknown field: got %v, want ErrValidation", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("ParseFormat(%q) err = %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
}
