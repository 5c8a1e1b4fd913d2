package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/storage"
	"github.com/spacenote/spacenote/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := &types.User{Username: "alice", PasswordHash: "h1", CreatedAt: testTime("2026-01-01T10:00:00Z")}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, u); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("duplicate CreateUser: got %v, want ErrValidation", err)
	}

	got, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.PasswordHash != "h1" || !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("GetUser: got %+v", got)
	}

	if err := s.SetUserPassword(ctx, "alice", "h2"); err != nil {
		t.Fatalf("SetUserPassword: %v", err)
	}
	got, _ = s.GetUser(ctx, "alice")
	if got.PasswordHash != "h2" {
		t.Errorf("password not updated: %q", got.PasswordHash)
	}

	if _, err := s.GetUser(ctx, "bob"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("GetUser missing: got %v, want ErrNotFound", err)
	}

	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := s.DeleteUser(ctx, "alice"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("DeleteUser twice: got %v, want ErrNotFound", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateUser(ctx, &types.User{Username: "alice", PasswordHash: "h", CreatedAt: testTime("2026-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}
	old := &types.Session{AuthToken: "tok-old", Username: "alice", CreatedAt: testTime("2026-01-01T00:00:00Z")}
	fresh := &types.Session{AuthToken: "tok-new", Username: "alice", CreatedAt: testTime("2026-02-01T00:00:00Z")}
	for _, sess := range []*types.Session{old, fresh} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	n, err := s.DeleteExpiredSessions(ctx, testTime("2026-01-15T00:00:00Z"))
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d sessions, want 1", n)
	}
	if _, err := s.GetSession(ctx, "tok-old"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("old session still present: %v", err)
	}
	if _, err := s.GetSession(ctx, "tok-new"); err != nil {
		t.Errorf("fresh session gone: %v", err)
	}
}

func testSpace() *types.Space {
	return &types.Space{
		Slug:    "tasks",
		Title:   "Tasks",
		Members: []string{"alice"},
		Fields: []types.FieldDef{
			{Name: "title", Type: types.FieldString, Required: true,
				String: &types.StringOptions{Kind: types.StringLine}},
			{Name: "priority", Type: types.FieldNumeric,
				Numeric: &types.NumericOptions{Kind: types.NumericInt}},
			{Name: "tags", Type: types.FieldTags},
		},
		CreatedAt: testTime("2026-01-01T00:00:00Z"),
	}
}

func TestSpaceUpdatePlan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateSpace(ctx, testSpace()); err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	updated, err := s.UpdateSpace(ctx, "tasks",
		storage.SetTitle{Title: "Team tasks"},
		storage.SetMembers{Members: []string{"alice", "bob"}},
		storage.AddField{Field: types.FieldDef{Name: "done", Type: types.FieldBoolean}},
		storage.SetTemplate{Key: "note_list", Source: "{{ note.fields.title }}"},
	)
	if err != nil {
		t.Fatalf("UpdateSpace: %v", err)
	}
	if updated.Title != "Team tasks" || len(updated.Members) != 2 {
		t.Errorf("update not applied: %+v", updated)
	}
	if updated.Field("done") == nil {
		t.Error("added field missing")
	}
	if updated.Template("note_list") == "" {
		t.Error("template not set")
	}

	updated, err = s.UpdateSpace(ctx, "tasks",
		storage.RemoveField{Name: "done"},
		storage.SetTemplate{Key: "note_list", Source: ""},
	)
	if err != nil {
		t.Fatalf("UpdateSpace remove: %v", err)
	}
	if updated.Field("done") != nil {
		t.Error("field not removed")
	}
	if updated.Template("note_list") != "" {
		t.Error("template not removed")
	}

	// Round trip through storage.
	got, err := s.GetSpace(ctx, "tasks")
	if err != nil {
		t.Fatalf("GetSpace: %v", err)
	}
	if got.Title != "Team tasks" {
		t.Errorf("persisted title %q", got.Title)
	}

	if _, err := s.UpdateSpace(ctx, "nope", storage.SetTitle{Title: "x"}); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("UpdateSpace missing: got %v, want ErrNotFound", err)
	}
}

func TestSequences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextSequence(ctx, types.CounterNote, "tasks", nil)
		if err != nil {
			t.Fatalf("NextSequence: %v", err)
		}
		if got != want {
			t.Errorf("NextSequence = %d, want %d", got, want)
		}
	}

	// Per-note comment sequence is independent of the space sequence.
	note := int64(1)
	got, err := s.NextSequence(ctx, types.CounterComment, "tasks", &note)
	if err != nil {
		t.Fatalf("NextSequence comment: %v", err)
	}
	if got != 1 {
		t.Errorf("comment sequence = %d, want 1", got)
	}

	if err := s.SetSequence(ctx, types.CounterNote, "tasks", nil, 10); err != nil {
		t.Fatalf("SetSequence: %v", err)
	}
	v, err := s.SequenceValue(ctx, types.CounterNote, "tasks", nil)
	if err != nil {
		t.Fatalf("SequenceValue: %v", err)
	}
	if v != 10 {
		t.Errorf("SequenceValue = %d, want 10", v)
	}
	next, _ := s.NextSequence(ctx, types.CounterNote, "tasks", nil)
	if next != 11 {
		t.Errorf("NextSequence after set = %d, want 11", next)
	}

	v, err = s.SequenceValue(ctx, types.CounterComment, "other", nil)
	if err != nil || v != 0 {
		t.Errorf("missing sequence = %d, %v, want 0, nil", v, err)
	}
}

func insertTestNotes(t *testing.T, s *Store, space *types.Space) {
	t.Helper()
	notes := []*types.Note{
		{SpaceSlug: space.Slug, Number: 1, Author: "alice",
			CreatedAt: testTime("2026-01-01T10:00:00Z"), ActivityAt: testTime("2026-01-01T10:00:00Z"),
			Fields: types.FieldValues{
				"title":    types.StringValue("Fix 100% CPU usage"),
				"priority": types.IntValue(3),
				"tags":     types.ListValue([]string{"bug", "urgent"}),
			}},
		{SpaceSlug: space.Slug, Number: 2, Author: "bob",
			CreatedAt: testTime("2026-01-02T10:00:00Z"), ActivityAt: testTime("2026-01-02T10:00:00Z"),
			Fields: types.FieldValues{
				"title":    types.StringValue("Write docs"),
				"priority": types.IntValue(1),
				"tags":     types.ListValue([]string{"docs"}),
			}},
		{SpaceSlug: space.Slug, Number: 3, Author: "alice",
			CreatedAt: testTime("2026-01-03T10:00:00Z"), ActivityAt: testTime("2026-01-03T10:00:00Z"),
			Fields: types.FieldValues{
				"title":    types.StringValue("Ship release"),
				"priority": types.IntValue(5),
				"tags":     types.ListValue([]string{"release", "urgent"}),
			}},
	}
	if err := s.InsertNotes(context.Background(), notes); err != nil {
		t.Fatalf("InsertNotes: %v", err)
	}
}

func noteNumbers(notes []*types.Note) []int64 {
	out := make([]int64, len(notes))
	for i, n := range notes {
		out[i] = n.Number
	}
	return out
}

func TestQueryNotes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := testSpace()
	if err := s.CreateSpace(ctx, space); err != nil {
		t.Fatal(err)
	}
	insertTestNotes(t, s, space)

	tests := []struct {
		name      string
		query     storage.NoteQuery
		want      []int64
		wantTotal int64
	}{
		{
			name:      "no conditions newest first",
			query:     storage.NoteQuery{Sort: []storage.SortKey{{Field: "note.created_at", Desc: true}}},
			want:      []int64{3, 2, 1},
			wantTotal: 3,
		},
		{
			name: "author eq",
			query: storage.NoteQuery{Conditions: []types.Condition{
				{Field: "note.author", Operator: types.OpEq, Value: types.ConditionValue{Value: types.StringValue("alice")}},
			}},
			want:      []int64{3, 1},
			wantTotal: 2,
		},
		{
			name: "priority gt",
			query: storage.NoteQuery{Conditions: []types.Condition{
				{Field: "priority", Operator: types.OpGt, Value: types.ConditionValue{Value: types.IntValue(2)}},
			}, Sort: []storage.SortKey{{Field: "priority", Desc: true}}},
			want:      []int64{3, 1},
			wantTotal: 2,
		},
		{
			name: "contains escapes metacharacters",
			query: storage.NoteQuery{Conditions: []types.Condition{
				{Field: "title", Operator: types.OpContains, Value: types.ConditionValue{Value: types.StringValue("100% CPU")}},
			}},
			want:      []int64{1},
			wantTotal: 1,
		},
		{
			name: "tags all",
			query: storage.NoteQuery{Conditions: []types.Condition{
				{Field: "tags", Operator: types.OpAll, Value: types.ConditionValue{List: []string{"urgent", "bug"}}},
			}},
			want:      []int64{1},
			wantTotal: 1,
		},
		{
			name: "tags in overlaps",
			query: storage.NoteQuery{Conditions: []types.Condition{
				{Field: "tags", Operator: types.OpIn, Value: types.ConditionValue{List: []string{"docs", "release"}}},
			}},
			want:      []int64{3, 2},
			wantTotal: 2,
		},
		{
			name: "same field conjunction",
			query: storage.NoteQuery{Conditions: []types.Condition{
				{Field: "priority", Operator: types.OpGte, Value: types.ConditionValue{Value: types.IntValue(2)}},
				{Field: "priority", Operator: types.OpLte, Value: types.ConditionValue{Value: types.IntValue(4)}},
			}},
			want:      []int64{1},
			wantTotal: 1,
		},
		{
			name: "pagination",
			query: storage.NoteQuery{
				Sort: []storage.SortKey{{Field: "note.created_at", Desc: true}}, Limit: 2, Offset: 1,
			},
			want:      []int64{2, 1},
			wantTotal: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes, total, err := s.QueryNotes(ctx, space, tt.query)
			if err != nil {
				t.Fatalf("QueryNotes: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			got := noteNumbers(notes)
			if len(got) != len(tt.want) {
				t.Fatalf("numbers = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("numbers = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestNoteFieldRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := testSpace()
	if err := s.CreateSpace(ctx, space); err != nil {
		t.Fatal(err)
	}
	insertTestNotes(t, s, space)

	note, err := s.GetNote(ctx, space, 1)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if v := note.Fields["priority"]; v.Kind() != types.ValueInt || v.Int() != 3 {
		t.Errorf("priority = %v", v)
	}
	if v := note.Fields["tags"]; v.Kind() != types.ValueList || len(v.List()) != 2 {
		t.Errorf("tags = %v", v)
	}

	// Dropping a field from the schema orphans its stored values.
	narrowed := *space
	narrowed.Fields = space.Fields[:2]
	note, err = s.GetNote(ctx, &narrowed, 1)
	if err != nil {
		t.Fatalf("GetNote narrowed: %v", err)
	}
	if _, ok := note.Fields["tags"]; ok {
		t.Error("orphaned field still decoded")
	}
}

func TestBumpNoteActivity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := testSpace()
	if err := s.CreateSpace(ctx, space); err != nil {
		t.Fatal(err)
	}
	insertTestNotes(t, s, space)

	at := testTime("2026-01-05T12:00:00Z")
	if err := s.BumpNoteActivity(ctx, space.Slug, 1, at, true); err != nil {
		t.Fatalf("BumpNoteActivity: %v", err)
	}
	note, _ := s.GetNote(ctx, space, 1)
	if !note.ActivityAt.Equal(at) {
		t.Errorf("activity_at = %v, want %v", note.ActivityAt, at)
	}
	if note.CommentedAt == nil || !note.CommentedAt.Equal(at) {
		t.Errorf("commented_at = %v, want %v", note.CommentedAt, at)
	}
	if note.EditedAt != nil {
		t.Errorf("edited_at should stay nil, got %v", note.EditedAt)
	}
}

func TestAttachmentScopes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	noteOne := int64(1)
	atts := []*types.Attachment{
		{SpaceSlug: "tasks", Number: 1, Author: "alice", Filename: "a.webp", Size: 10,
			MimeType: "image/webp", CreatedAt: testTime("2026-01-01T00:00:00Z")},
		{SpaceSlug: "tasks", NoteNumber: &noteOne, Number: 1, Author: "alice", Filename: "b.webp", Size: 20,
			MimeType: "image/webp", CreatedAt: testTime("2026-01-01T00:00:00Z")},
	}
	if err := s.InsertAttachments(ctx, atts); err != nil {
		t.Fatalf("InsertAttachments: %v", err)
	}

	// Space scope and note scope number 1 coexist.
	spaceScoped, err := s.GetAttachment(ctx, "tasks", nil, 1)
	if err != nil {
		t.Fatalf("GetAttachment space scope: %v", err)
	}
	if spaceScoped.Filename != "a.webp" {
		t.Errorf("space scope = %q", spaceScoped.Filename)
	}
	noteScoped, err := s.GetAttachment(ctx, "tasks", &noteOne, 1)
	if err != nil {
		t.Fatalf("GetAttachment note scope: %v", err)
	}
	if noteScoped.Filename != "b.webp" {
		t.Errorf("note scope = %q", noteScoped.Filename)
	}

	// Duplicate number within the same scope is rejected.
	err = s.InsertAttachment(ctx, &types.Attachment{
		SpaceSlug: "tasks", NoteNumber: &noteOne, Number: 1, Author: "bob",
		Filename: "c.webp", Size: 5, MimeType: "image/webp", CreatedAt: testTime("2026-01-02T00:00:00Z")})
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("duplicate attachment: got %v, want ErrValidation", err)
	}

	if err := s.DeleteAttachmentsByNote(ctx, "tasks", noteOne); err != nil {
		t.Fatalf("DeleteAttachmentsByNote: %v", err)
	}
	all, err := s.ListAllAttachments(ctx, "tasks")
	if err != nil {
		t.Fatalf("ListAllAttachments: %v", err)
	}
	if len(all) != 1 || all[0].NoteNumber != nil {
		t.Errorf("remaining attachments = %+v", all)
	}
}

func TestTelegramQueueOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tasks := []*types.TelegramTask{
		{Number: 1, TaskType: types.TaskMirrorCreate, ChannelID: "c1", SpaceSlug: "tasks", NoteNumber: 1,
			Status: types.TaskPending, CreatedAt: testTime("2026-01-01T00:00:00Z"),
			Payload: map[string]any{"text": "hello"}},
		{Number: 2, TaskType: types.TaskActivityNoteCreated, ChannelID: "c2", SpaceSlug: "tasks", NoteNumber: 1,
			Status: types.TaskPending, CreatedAt: testTime("2026-01-01T00:00:01Z")},
	}
	for _, task := range tasks {
		if err := s.InsertTelegramTask(ctx, task); err != nil {
			t.Fatalf("InsertTelegramTask: %v", err)
		}
	}

	next, err := s.NextPendingTelegramTask(ctx)
	if err != nil {
		t.Fatalf("NextPendingTelegramTask: %v", err)
	}
	if next == nil || next.Number != 1 {
		t.Fatalf("next = %+v, want task 1", next)
	}
	if next.Payload["text"] != "hello" {
		t.Errorf("payload = %v", next.Payload)
	}

	if err := s.RecordTelegramTaskAttempt(ctx, 1, testTime("2026-01-01T00:01:00Z"), "flood wait"); err != nil {
		t.Fatalf("RecordTelegramTaskAttempt: %v", err)
	}
	next, _ = s.NextPendingTelegramTask(ctx)
	if next == nil || next.Number != 1 || next.Retries != 1 || next.Error != "flood wait" {
		t.Fatalf("after attempt = %+v", next)
	}

	if err := s.MarkTelegramTaskCompleted(ctx, 1); err != nil {
		t.Fatalf("MarkTelegramTaskCompleted: %v", err)
	}
	next, _ = s.NextPendingTelegramTask(ctx)
	if next == nil || next.Number != 2 {
		t.Fatalf("after complete = %+v, want task 2", next)
	}

	if err := s.MarkTelegramTaskFailed(ctx, 2, "gone"); err != nil {
		t.Fatalf("MarkTelegramTaskFailed: %v", err)
	}
	next, err = s.NextPendingTelegramTask(ctx)
	if err != nil {
		t.Fatalf("NextPendingTelegramTask empty: %v", err)
	}
	if next != nil {
		t.Fatalf("queue should be drained, got %+v", next)
	}
}

func TestTelegramMirror(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.GetTelegramMirror(ctx, "tasks", 1)
	if err != nil {
		t.Fatalf("GetTelegramMirror: %v", err)
	}
	if m != nil {
		t.Fatalf("mirror should be absent, got %+v", m)
	}

	mirror := &types.TelegramMirror{
		SpaceSlug: "tasks", NoteNumber: 1, ChannelID: "c1", MessageID: 42,
		MessageFormat: types.MessagePhoto, CreatedAt: testTime("2026-01-01T00:00:00Z"),
	}
	if err := s.InsertTelegramMirror(ctx, mirror); err != nil {
		t.Fatalf("InsertTelegramMirror: %v", err)
	}
	if err := s.InsertTelegramMirror(ctx, mirror); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("duplicate mirror: got %v, want ErrValidation", err)
	}

	at := testTime("2026-01-02T00:00:00Z")
	if err := s.TouchTelegramMirror(ctx, "tasks", 1, at); err != nil {
		t.Fatalf("TouchTelegramMirror: %v", err)
	}
	m, _ = s.GetTelegramMirror(ctx, "tasks", 1)
	if m.UpdatedAt == nil || !m.UpdatedAt.Equal(at) {
		t.Errorf("updated_at = %v, want %v", m.UpdatedAt, at)
	}

	if err := s.DeleteTelegramMirror(ctx, "tasks", 1); err != nil {
		t.Fatalf("DeleteTelegramMirror: %v", err)
	}
	m, _ = s.GetTelegramMirror(ctx, "tasks", 1)
	if m != nil {
		t.Errorf("mirror should be deleted, got %+v", m)
	}
}
