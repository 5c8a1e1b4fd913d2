package field

import (
	"errors"
	"testing"
	"time"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

func intPtr(n int) *int              { return &n }
func floatPtr(f float64) *float64    { return &f }
func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func parseSpace() *types.Space {
	return &types.Space{
		Slug:    "journal",
		Title:   "Journal",
		Members: []string{"alice", "bob"},
		Fields: []types.FieldDef{
			{Name: "title", Type: types.FieldString, Required: true,
				String: &types.StringOptions{Kind: types.StringLine, MaxLength: intPtr(20)}},
			{Name: "body", Type: types.FieldString,
				String: &types.StringOptions{Kind: types.StringMarkdown}},
			{Name: "config", Type: types.FieldString,
				String: &types.StringOptions{Kind: types.StringJSON}},
			{Name: "done", Type: types.FieldBoolean, Default: "false"},
			{Name: "priority", Type: types.FieldNumeric,
				Numeric: &types.NumericOptions{Kind: types.NumericInt, Min: floatPtr(1), Max: floatPtr(5)}},
			{Name: "price", Type: types.FieldNumeric,
				Numeric: &types.NumericOptions{Kind: types.NumericDecimal}},
			{Name: "status", Type: types.FieldSelect,
				Select: &types.SelectOptions{Values: []string{"open", "closed"}}, Default: "open"},
			{Name: "tags", Type: types.FieldTags},
			{Name: "assignee", Type: types.FieldUser, Default: "$me"},
			{Name: "due", Type: types.FieldDatetime},
			{Name: "photo", Type: types.FieldImage,
				Image: &types.ImageOptions{MaxWidth: intPtr(1200)}},
			{Name: "shot_at", Type: types.FieldDatetime, Default: "$exif.created_at:photo|$now"},
		},
	}
}

func fixedNow() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestParseValue(t *testing.T) {
	space := parseSpace()
	ctx := &ParseContext{CurrentUser: "alice", Now: fixedNow}

	tests := []struct {
		name    string
		field   string
		raw     *string
		want    types.Value
		wantErr bool
	}{
		{name: "string ok", field: "title", raw: strPtr("Morning run"), want: types.StringValue("Morning run")},
		{name: "string too long", field: "title", raw: strPtr("this title is far too long"), wantErr: true},
		{name: "line rejects newline", field: "title", raw: strPtr("a\nb"), wantErr: true},
		{name: "markdown keeps newline", field: "body", raw: strPtr("a\n\nb"), want: types.StringValue("a\n\nb")},
		{name: "json kind valid", field: "config", raw: strPtr(`{"a": 1}`), want: types.StringValue(`{"a": 1}`)},
		{name: "json kind invalid", field: "config", raw: strPtr(`{"a": `), wantErr: true},
		{name: "required missing", field: "title", raw: nil, wantErr: true},
		{name: "required empty", field: "title", raw: strPtr(""), wantErr: true},
		{name: "optional empty is null", field: "body", raw: strPtr(""), want: types.NullValue()},
		{name: "bool yes", field: "done", raw: strPtr("Yes"), want: types.BoolValue(true)},
		{name: "bool off", field: "done", raw: strPtr("off"), want: types.BoolValue(false)},
		{name: "bool default", field: "done", raw: nil, want: types.BoolValue(false)},
		{name: "bool invalid", field: "done", raw: strPtr("maybe"), wantErr: true},
		{name: "int ok", field: "priority", raw: strPtr("3"), want: types.IntValue(3)},
		{name: "int below min", field: "priority", raw: strPtr("0"), wantErr: true},
		{name: "int above max", field: "priority", raw: strPtr("6"), wantErr: true},
		{name: "int not a number", field: "priority", raw: strPtr("high"), wantErr: true},
		{name: "decimal ok", field: "price", raw: strPtr("19.99"), want: types.DecimalValue("19.99")},
		{name: "decimal rejects exponent", field: "price", raw: strPtr("1e3"), wantErr: true},
		{name: "select ok", field: "status", raw: strPtr("closed"), want: types.StringValue("closed")},
		{name: "select default", field: "status", raw: nil, want: types.StringValue("open")},
		{name: "select invalid", field: "status", raw: strPtr("pending"), wantErr: true},
		{name: "tags dedupe and trim", field: "tags", raw: strPtr("a, b ,a, ,b"),
			want: types.ListValue([]string{"a", "b"})},
		{name: "user me default", field: "assignee", raw: nil, want: types.StringValue("alice")},
		{name: "user explicit member", field: "assignee", raw: strPtr("bob"), want: types.StringValue("bob")},
		{name: "user not a member", field: "assignee", raw: strPtr("mallory"), wantErr: true},
		{name: "datetime date only", field: "due", raw: strPtr("2026-03-15"),
			want: types.TimeValue(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))},
		{name: "datetime with seconds", field: "due", raw: strPtr("2026-03-15T09:30:00"),
			want: types.TimeValue(time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC))},
		{name: "datetime now", field: "due", raw: strPtr("$now"), want: types.TimeValue(fixedNow())},
		{name: "datetime invalid", field: "due", raw: strPtr("15.03.2026"), wantErr: true},
		{name: "image ok", field: "photo", raw: strPtr("7"), want: types.IntValue(7)},
		{name: "image not positive", field: "photo", raw: strPtr("0"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := space.Field(tt.field)
			if def == nil {
				t.Fatalf("field %q missing from test space", tt.field)
			}
			got, err := ParseValue(space, def, tt.raw, ctx)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrValidation) {
					t.Fatalf("got %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseValue: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got.Plain(), tt.want.Plain())
			}
		})
	}
}

func TestRequiredEmptyTags(t *testing.T) {
	space := parseSpace()
	ctx := &ParseContext{CurrentUser: "alice", Now: fixedNow}
	def := &types.FieldDef{Name: "labels", Type: types.FieldTags, Required: true}

	if _, err := ParseValue(space, def, strPtr(""), ctx); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestExifDefault(t *testing.T) {
	space := parseSpace()
	shot := time.Date(2025, 12, 24, 18, 30, 0, 0, time.UTC)

	withMeta := &ParseContext{
		CurrentUser: "alice",
		Now:         fixedNow,
		Raw:         map[string]string{"photo": "3"},
		PendingMeta: func(number int64) (*types.AttachmentMeta, error) {
			if number != 3 {
				t.Errorf("looked up pending %d, want 3", number)
			}
			return &types.AttachmentMeta{
				Image: &types.ImageMeta{Width: 100, Height: 100, Format: "jpeg", ExifCreatedAt: timePtr(shot)},
			}, nil
		},
	}
	def := space.Field("shot_at")

	got, err := ParseValue(space, def, nil, withMeta)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if !got.Time().Equal(shot) {
		t.Errorf("shot_at = %v, want %v", got.Time(), shot)
	}

	// No camera timestamp falls back to $now.
	noExif := &ParseContext{
		CurrentUser: "alice",
		Now:         fixedNow,
		Raw:         map[string]string{"photo": "3"},
		PendingMeta: func(int64) (*types.AttachmentMeta, error) {
			return &types.AttachmentMeta{Image: &types.ImageMeta{Width: 1, Height: 1, Format: "png"}}, nil
		},
	}
	got, err = ParseValue(space, def, nil, noExif)
	if err != nil {
		t.Fatalf("ParseValue fallback: %v", err)
	}
	if !got.Time().Equal(fixedNow()) {
		t.Errorf("fallback = %v, want %v", got.Time(), fixedNow())
	}

	// No photo in the submission also falls back.
	noPhoto := &ParseContext{CurrentUser: "alice", Now: fixedNow, Raw: map[string]string{},
		PendingMeta: func(int64) (*types.AttachmentMeta, error) { return nil, nil }}
	got, err = ParseValue(space, def, nil, noPhoto)
	if err != nil {
		t.Fatalf("ParseValue no photo: %v", err)
	}
	if !got.Time().Equal(fixedNow()) {
		t.Errorf("no photo fallback = %v", got.Time())
	}
}

func TestParseFields(t *testing.T) {
	space := parseSpace()
	ctx := &ParseContext{CurrentUser: "alice", Now: fixedNow}

	got, err := ParseFields(space, map[string]string{
		"title":    "Run",
		"priority": "2",
		"tags":     "sport, outdoors",
	}, ctx)
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}
	if got["title"].Str() != "Run" {
		t.Errorf("title = %v", got["title"].Plain())
	}
	// Defaults fill absent fields.
	if got["status"].Str() != "open" {
		t.Errorf("status default = %v", got["status"].Plain())
	}
	if got["assignee"].Str() != "alice" {
		t.Errorf("assignee default = %v", got["assignee"].Plain())
	}
	// Absent optional without default is null.
	if !got["due"].IsNull() {
		t.Errorf("due = %v, want null", got["due"].Plain())
	}

	if _, err := ParseFields(space, map[string]string{"title": "x", "bogus": "y"}, ctx); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("unknown key: got %v, want ErrValidation", err)
	}
	if _, err := ParseFields(space, map[string]string{}, ctx); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("missing required: got %v, want ErrValidation", err)
	}
}

func TestParsePartialFields(t *testing.T) {
	space := parseSpace()
	ctx := &ParseContext{CurrentUser: "bob", Now: fixedNow}

	got, err := ParsePartialFields(space, map[string]string{"priority": "4", "body": ""}, ctx)
	if err != nil {
		t.Fatalf("ParsePartialFields: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("parsed %d fields, want 2", len(got))
	}
	if got["priority"].Int() != 4 {
		t.Errorf("priority = %v", got["priority"].Plain())
	}
	// Explicit empty clears the optional field.
	if !got["body"].IsNull() {
		t.Errorf("body = %v, want null", got["body"].Plain())
	}
	// Untouched fields stay untouched: no defaults sneak in.
	if _, ok := got["status"]; ok {
		t.Error("partial parse must not apply defaults")
	}

	if _, err := ParsePartialFields(space, map[string]string{"bogus": "1"}, ctx); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("unknown key: got %v, want ErrValidation", err)
	}
}

func TestValidateDefinition(t *testing.T) {
	space := parseSpace()

	tests := []struct {
		name    string
		def     types.FieldDef
		wantErr bool
	}{
		{name: "plain string", def: types.FieldDef{Name: "notes", Type: types.FieldString}},
		{name: "bad name", def: types.FieldDef{Name: "Bad Name", Type: types.FieldString}, wantErr: true},
		{name: "bad type", def: types.FieldDef{Name: "x", Type: "enum"}, wantErr: true},
		{name: "wrong options arm", def: types.FieldDef{Name: "x", Type: types.FieldBoolean,
			Select: &types.SelectOptions{Values: []string{"a"}}}, wantErr: true},
		{name: "numeric needs options", def: types.FieldDef{Name: "x", Type: types.FieldNumeric}, wantErr: true},
		{name: "numeric min over max", def: types.FieldDef{Name: "x", Type: types.FieldNumeric,
			Numeric: &types.NumericOptions{Kind: types.NumericInt, Min: floatPtr(5), Max: floatPtr(1)}}, wantErr: true},
		{name: "select empty values", def: types.FieldDef{Name: "x", Type: types.FieldSelect,
			Select: &types.SelectOptions{}}, wantErr: true},
		{name: "select default not in values", def: types.FieldDef{Name: "x", Type: types.FieldSelect,
			Select: &types.SelectOptions{Values: []string{"a", "b"}}, Default: "c"}, wantErr: true},
		{name: "select value map incomplete", def: types.FieldDef{Name: "x", Type: types.FieldSelect,
			Select: &types.SelectOptions{Values: []string{"a", "b"},
				ValueMaps: map[string]map[string]string{"emoji": {"a": "🟢"}}}}, wantErr: true},
		{name: "select value map complete", def: types.FieldDef{Name: "x", Type: types.FieldSelect,
			Select: &types.SelectOptions{Values: []string{"a", "b"},
				ValueMaps: map[string]map[string]string{"emoji": {"a": "🟢", "b": "🔴"}}}}},
		{name: "user default member", def: types.FieldDef{Name: "x", Type: types.FieldUser, Default: "bob"}},
		{name: "user default stranger", def: types.FieldDef{Name: "x", Type: types.FieldUser, Default: "mallory"}, wantErr: true},
		{name: "datetime default now", def: types.FieldDef{Name: "x", Type: types.FieldDatetime, Default: "$now"}},
		{name: "datetime default literal", def: types.FieldDef{Name: "x", Type: types.FieldDatetime, Default: "2026-01-01"}},
		{name: "datetime default garbage", def: types.FieldDef{Name: "x", Type: types.FieldDatetime, Default: "soon"}, wantErr: true},
		{name: "exif default ok", def: types.FieldDef{Name: "x", Type: types.FieldDatetime,
			Default: "$exif.created_at:photo|$now"}},
		{name: "exif default non image field", def: types.FieldDef{Name: "x", Type: types.FieldDatetime,
			Default: "$exif.created_at:title"}, wantErr: true},
		{name: "image negative max width", def: types.FieldDef{Name: "x", Type: types.FieldImage,
			Image: &types.ImageOptions{MaxWidth: intPtr(-1)}}, wantErr: true},
		{name: "image default forbidden", def: types.FieldDef{Name: "x", Type: types.FieldImage, Default: "1"}, wantErr: true},
		{name: "bad literal default", def: types.FieldDef{Name: "x", Type: types.FieldBoolean, Default: "perhaps"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinition(space, &tt.def)
			if tt.wantErr && !errors.Is(err, errs.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
